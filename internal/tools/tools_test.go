package tools

import (
	"context"
	"testing"
	"time"

	"github.com/flitsinc/go-golem/internal/gameworld"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) (*Registry, *gameworld.Fake) {
	t.Helper()
	world := gameworld.NewFake("golem")
	registry := NewRegistry()
	require.NoError(t, RegisterGameSkills(registry, world))
	return registry, world
}

func TestValidateRequiredAndTypes(t *testing.T) {
	registry, _ := newRegistry(t)
	tool, ok := registry.Get("goToCoordinates")
	require.True(t, ok)

	assert.NoError(t, tool.Validate(map[string]any{"x": 1.0, "y": 64.0, "z": -3.0}))
	assert.Error(t, tool.Validate(map[string]any{"x": 1.0, "y": 64.0}))
	assert.Error(t, tool.Validate(map[string]any{"x": "one", "y": 64.0, "z": -3.0}))
	assert.Error(t, tool.Validate(map[string]any{"x": 1.0, "y": 64.0, "z": -3.0, "speed": 2.0}))
}

func TestValidateOptionalParamMayBeAbsent(t *testing.T) {
	registry, _ := newRegistry(t)
	tool, _ := registry.Get("collectItem")

	assert.NoError(t, tool.Validate(map[string]any{}))
	assert.NoError(t, tool.Validate(map[string]any{"item": "oak_log"}))
	assert.Error(t, tool.Validate(map[string]any{"item": 7.0}))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry, _ := newRegistry(t)
	err := registry.Register(Tool{
		Name: "chat",
		Execute: func(context.Context, map[string]any) (gameworld.SkillResult, error) {
			return gameworld.SkillResult{}, nil
		},
	})
	assert.Error(t, err)
}

func TestPhysicalSkillForwardsToWorld(t *testing.T) {
	registry, world := newRegistry(t)
	world.StubSkill("goToPlayer", gameworld.SkillResult{OK: true, DistanceMoved: 8}, 0)

	tool, _ := registry.Get("goToPlayer")
	result, err := tool.Execute(context.Background(), map[string]any{"player": "Steve"})
	require.NoError(t, err)
	assert.True(t, result.OK)

	invocations := world.Invocations()
	require.Len(t, invocations, 1)
	assert.Equal(t, "goToPlayer", invocations[0].Skill)
	assert.Equal(t, "Steve", invocations[0].Params["player"])
}

func TestQueryEntitiesReadsStatus(t *testing.T) {
	registry, world := newRegistry(t)
	world.SetStatus(gameworld.Status{
		Players:  []gameworld.EntityRef{{ID: "p1", Name: "Steve", Pos: gameworld.Vec3{X: 4}}},
		PolledAt: time.Now().UTC(),
	})

	tool, _ := registry.Get("queryEntities")
	require.True(t, tool.ReadOnly)

	result, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	players := result.Data["players"].([]map[string]any)
	require.Len(t, players, 1)
	assert.Equal(t, "Steve", players[0]["name"])
	assert.Empty(t, world.Invocations())
}

func TestGiveUpSucceedsWithoutWorldCall(t *testing.T) {
	registry, world := newRegistry(t)
	tool, _ := registry.Get("giveUp")
	require.False(t, tool.ReadOnly)

	result, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Empty(t, world.Invocations())
}

func TestSchemaCarriesDeclaredParameters(t *testing.T) {
	registry, _ := newRegistry(t)
	tool, _ := registry.Get("goToPlayer")

	schema := tool.Schema()
	assert.Equal(t, "goToPlayer", schema.Name)
	assert.Contains(t, schema.Description, "player string")
	assert.Equal(t, "object", schema.Parameters.Type)
}

func TestQuerySchemasExposesOnlyNoArgReadOnlyTools(t *testing.T) {
	registry, _ := newRegistry(t)

	var names []string
	for _, schema := range registry.QuerySchemas() {
		names = append(names, schema.Name)
	}
	assert.Equal(t, []string{"queryEntities", "querySelf"}, names)
}

func TestPromptDocsListsEveryTool(t *testing.T) {
	registry, _ := newRegistry(t)
	docs := registry.PromptDocs()
	for _, tool := range registry.List() {
		assert.Contains(t, docs, tool.Name)
	}
	assert.Contains(t, docs, "[read-only]")
}
