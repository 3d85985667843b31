package tools

import (
	"context"
	"fmt"

	"github.com/flitsinc/go-golem/internal/gameworld"
)

// GameSkills builds the standard tool set bound to a world client. Physical
// skills forward straight to Invoke; read-only queries answer from Status.
func GameSkills(world gameworld.Client) []Tool {
	return []Tool{
		{
			Name:        "goToPlayer",
			Description: "Walk to a player and stop nearby",
			Params: []Param{
				{Name: "player", Type: "string", Description: "Player name or id", Required: true},
			},
			Execute: invoke(world, "goToPlayer"),
		},
		{
			Name:        "goToCoordinates",
			Description: "Walk to the given coordinates",
			Params: []Param{
				{Name: "x", Type: "number", Required: true},
				{Name: "y", Type: "number", Required: true},
				{Name: "z", Type: "number", Required: true},
			},
			Execute: invoke(world, "goToCoordinates"),
		},
		{
			Name:        "followPlayer",
			Description: "Follow a player until interrupted",
			Params: []Param{
				{Name: "player", Type: "string", Description: "Player name or id", Required: true},
			},
			Execute: invoke(world, "followPlayer"),
		},
		{
			Name:        "breakBlock",
			Description: "Break the block at the given coordinates",
			Params: []Param{
				{Name: "x", Type: "number", Required: true},
				{Name: "y", Type: "number", Required: true},
				{Name: "z", Type: "number", Required: true},
			},
			Execute: invoke(world, "breakBlock"),
		},
		{
			Name:        "placeBlock",
			Description: "Place a block at the given coordinates",
			Params: []Param{
				{Name: "x", Type: "number", Required: true},
				{Name: "y", Type: "number", Required: true},
				{Name: "z", Type: "number", Required: true},
				{Name: "block", Type: "string", Description: "Block type to place", Required: true},
			},
			Execute: invoke(world, "placeBlock"),
		},
		{
			Name:        "attack",
			Description: "Attack the named entity",
			Params: []Param{
				{Name: "target", Type: "string", Description: "Entity name or id", Required: true},
			},
			Execute: invoke(world, "attack"),
		},
		{
			Name:        "collectItem",
			Description: "Pick up a nearby dropped item",
			Params: []Param{
				{Name: "item", Type: "string", Description: "Item name to collect", Required: false},
			},
			Execute: invoke(world, "collectItem"),
		},
		{
			Name:        "lookAt",
			Description: "Turn to face an entity",
			Params: []Param{
				{Name: "target", Type: "string", Description: "Entity name or id", Required: true},
			},
			ReadOnly: true,
			Execute:  invoke(world, "lookAt"),
		},
		{
			Name:        "chat",
			Description: "Say something in chat",
			Params: []Param{
				{Name: "message", Type: "string", Required: true},
			},
			ReadOnly: true,
			Execute:  invoke(world, "chat"),
		},
		{
			Name:        "giveUp",
			Description: "Abort the current physical action",
			Execute: func(ctx context.Context, params map[string]any) (gameworld.SkillResult, error) {
				return gameworld.SkillResult{OK: true}, nil
			},
		},
		{
			Name:        "queryEntities",
			Description: "List nearby players and their positions",
			ReadOnly:    true,
			Execute: func(ctx context.Context, params map[string]any) (gameworld.SkillResult, error) {
				status, err := world.Status(ctx)
				if err != nil {
					return gameworld.SkillResult{}, fmt.Errorf("query entities: %w", err)
				}
				players := make([]map[string]any, 0, len(status.Players))
				for _, p := range status.Players {
					players = append(players, map[string]any{
						"id": p.ID, "name": p.Name,
						"x": p.Pos.X, "y": p.Pos.Y, "z": p.Pos.Z,
					})
				}
				return gameworld.SkillResult{
					OK:   true,
					Data: map[string]any{"players": players},
				}, nil
			},
		},
		{
			Name:        "querySelf",
			Description: "Report own position, vitals, time and weather",
			ReadOnly:    true,
			Execute: func(ctx context.Context, params map[string]any) (gameworld.SkillResult, error) {
				status, err := world.Status(ctx)
				if err != nil {
					return gameworld.SkillResult{}, fmt.Errorf("query self: %w", err)
				}
				return gameworld.SkillResult{
					OK:     true,
					EndPos: status.Position,
					Data: map[string]any{
						"health":      status.Vitals.Health,
						"food":        status.Vitals.Food,
						"time_of_day": status.TimeOfDay,
						"weather":     status.Weather,
					},
				}, nil
			},
		},
	}
}

// RegisterGameSkills registers the standard set into a registry.
func RegisterGameSkills(registry *Registry, world gameworld.Client) error {
	for _, tool := range GameSkills(world) {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func invoke(world gameworld.Client, skill string) func(context.Context, map[string]any) (gameworld.SkillResult, error) {
	return func(ctx context.Context, params map[string]any) (gameworld.SkillResult, error) {
		return world.Invoke(ctx, skill, params)
	}
}
