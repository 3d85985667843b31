package planner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flitsinc/go-golem/internal/gameworld"
	"github.com/flitsinc/go-golem/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDispatcher struct {
	calls   []string
	params  []map[string]any
	results map[string]StepResult
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, tool string, params map[string]any) StepResult {
	d.calls = append(d.calls, tool)
	d.params = append(d.params, params)
	if result, ok := d.results[tool]; ok {
		result.Tool = tool
		return result
	}
	return StepResult{Tool: tool, OK: true}
}

func newRunner(t *testing.T, opts ...RunnerOption) (*Runner, *fakeDispatcher) {
	t.Helper()
	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterGameSkills(registry, gameworld.NewFake("golem")))
	return NewRunner(zap.NewNop(), registry, opts...), &fakeDispatcher{results: map[string]StepResult{}}
}

func TestScriptCallsToolsInOrder(t *testing.T) {
	runner, dispatcher := newRunner(t)

	script := `
golem.Chat(map[string]interface{}{"message": "on my way"})
golem.GoToPlayer(map[string]interface{}{"player": "Steve"})
`
	out, err := runner.Execute(context.Background(), script, nil, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, []string{"chat", "goToPlayer"}, dispatcher.calls)
	assert.Equal(t, 2, out.ToolCalls)
	require.Len(t, out.Steps, 2)
	assert.True(t, out.Steps[0].OK)
}

func TestSkipThenToolRejectsBeforeExecution(t *testing.T) {
	runner, dispatcher := newRunner(t)

	script := `
golem.Skip()
golem.Chat(map[string]interface{}{"message": "should not happen"})
`
	out, err := runner.Execute(context.Background(), script, nil, dispatcher)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "skip")
	assert.Empty(t, dispatcher.calls)
	assert.Zero(t, out.ToolCalls)
}

func TestSkipAfterToolRejects(t *testing.T) {
	runner, dispatcher := newRunner(t)

	script := `
golem.Chat(map[string]interface{}{"message": "hi"})
golem.Skip()
`
	_, err := runner.Execute(context.Background(), script, nil, dispatcher)
	require.Error(t, err)
	assert.Len(t, dispatcher.calls, 1)
}

func TestFailedValidationStepDoesNotAbortScript(t *testing.T) {
	runner, dispatcher := newRunner(t)
	dispatcher.results["goToPlayer"] = StepResult{OK: false, Err: "missing required parameter \"player\""}

	script := `
r := golem.GoToPlayer(map[string]interface{}{})
if r["ok"] == false {
	golem.Chat(map[string]interface{}{"message": "cannot path there"})
}
`
	out, err := runner.Execute(context.Background(), script, nil, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, []string{"goToPlayer", "chat"}, dispatcher.calls)
	assert.Equal(t, 2, out.ToolCalls)
	assert.False(t, out.Steps[0].OK)
	assert.True(t, out.Steps[1].OK)
}

func TestToolCapAborts(t *testing.T) {
	runner, dispatcher := newRunner(t, WithToolCap(2))

	script := `
golem.Chat(map[string]interface{}{"message": "1"})
golem.Chat(map[string]interface{}{"message": "2"})
golem.Chat(map[string]interface{}{"message": "3"})
`
	_, err := runner.Execute(context.Background(), script, nil, dispatcher)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cap")
	assert.Len(t, dispatcher.calls, 2)
}

func TestWallClockTimeout(t *testing.T) {
	runner, dispatcher := newRunner(t, WithTimeout(100*time.Millisecond))

	script := `
n := 0
for {
	n++
}
`
	_, err := runner.Execute(context.Background(), script, nil, dispatcher)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

// gatedDispatcher blocks its first call until the gate closes so tests can
// hold a script past its deadline.
type gatedDispatcher struct {
	gate chan struct{}

	mu    sync.Mutex
	calls []string
}

func (d *gatedDispatcher) Dispatch(ctx context.Context, tool string, params map[string]any) StepResult {
	d.mu.Lock()
	d.calls = append(d.calls, tool)
	first := len(d.calls) == 1
	d.mu.Unlock()
	if first {
		<-d.gate
	}
	return StepResult{Tool: tool, OK: true}
}

func (d *gatedDispatcher) recorded() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

func TestTimedOutScriptCannotKeepDispatching(t *testing.T) {
	runner, _ := newRunner(t, WithTimeout(50*time.Millisecond))
	dispatcher := &gatedDispatcher{gate: make(chan struct{})}

	script := `
golem.Chat(map[string]interface{}{"message": "first"})
golem.Chat(map[string]interface{}{"message": "second"})
`
	_, err := runner.Execute(context.Background(), script, nil, dispatcher)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")

	// Unblock the stuck call; the script must not reach the dispatcher again.
	close(dispatcher.gate)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"chat"}, dispatcher.recorded())
}

func TestTrailingExpressionValueCaptured(t *testing.T) {
	runner, dispatcher := newRunner(t)

	out, err := runner.Execute(context.Background(), "21 * 2", nil, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Value)
}

func TestScratchPersistsAcrossScripts(t *testing.T) {
	runner, dispatcher := newRunner(t)

	_, err := runner.Execute(context.Background(), `golem.Scratch()["visits"] = 3`, nil, dispatcher)
	require.NoError(t, err)

	out, err := runner.Execute(context.Background(), `golem.Scratch()["visits"]`, nil, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Value)
}

func TestSnapshotIsCopied(t *testing.T) {
	runner, dispatcher := newRunner(t)
	data := map[string]any{
		"snapshot": map[string]any{"health": 20.0},
	}

	script := `
s := golem.Snapshot()
s["health"] = 0.0
`
	_, err := runner.Execute(context.Background(), script, data, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, 20.0, data["snapshot"].(map[string]any)["health"])
}

func TestImportsRejected(t *testing.T) {
	runner, dispatcher := newRunner(t)

	_, err := runner.Execute(context.Background(), "import \"os\"\n", nil, dispatcher)
	require.Error(t, err)
	assert.Empty(t, dispatcher.calls)
}

func TestAssertMovedViolationAborts(t *testing.T) {
	runner, dispatcher := newRunner(t)
	dispatcher.results["goToCoordinates"] = StepResult{OK: true, DistanceMoved: 1.5}

	script := `
golem.GoToCoordinates(map[string]interface{}{"x": 10.0, "y": 64.0, "z": 10.0})
golem.AssertMoved(5.0)
`
	_, err := runner.Execute(context.Background(), script, nil, dispatcher)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertMoved")
}

func TestAssertNearPasses(t *testing.T) {
	runner, dispatcher := newRunner(t)
	dispatcher.results["goToCoordinates"] = StepResult{
		OK:     true,
		EndPos: gameworld.Vec3{X: 10, Y: 64, Z: 10},
	}

	script := `
golem.GoToCoordinates(map[string]interface{}{"x": 10.0, "y": 64.0, "z": 10.0})
golem.AssertNear(10.0, 64.0, 10.0, 2.0)
`
	_, err := runner.Execute(context.Background(), script, nil, dispatcher)
	assert.NoError(t, err)
}
