package planner

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/flitsinc/go-golem/internal/gameworld"
	"github.com/flitsinc/go-golem/internal/tools"
	"github.com/traefik/yaegi/interp"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 5 * time.Second
	DefaultToolCap = 8
)

// StepResult records one tool call made by a script. Detached marks a
// physical action still running after the script returned.
type StepResult struct {
	Tool          string         `json:"tool"`
	OK            bool           `json:"ok"`
	Err           string         `json:"error,omitempty"`
	Detached      bool           `json:"detached,omitempty"`
	DistanceMoved float64        `json:"distance_moved,omitempty"`
	EndPos        gameworld.Vec3 `json:"end_pos"`
	Data          map[string]any `json:"data,omitempty"`
}

// Dispatcher executes a tool call on behalf of a script. Validation failures
// come back as a failed StepResult, never as an abort.
type Dispatcher interface {
	Dispatch(ctx context.Context, tool string, params map[string]any) StepResult
}

// Outcome is what one script execution produced.
type Outcome struct {
	Steps     []StepResult
	ToolCalls int
	Skipped   bool
	Value     any
}

// Runner evaluates action scripts in a fresh yaegi interpreter per script.
// Only the golem package bindings are visible; no stdlib, no imports.
type Runner struct {
	log      *zap.Logger
	registry *tools.Registry
	timeout  time.Duration
	toolCap  int

	mu      sync.Mutex
	scratch map[string]any
}

type RunnerOption func(*Runner)

func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithToolCap(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.toolCap = n
		}
	}
}

func NewRunner(log *zap.Logger, registry *tools.Registry, opts ...RunnerOption) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{
		log:      log,
		registry: registry,
		timeout:  DefaultTimeout,
		toolCap:  DefaultToolCap,
		scratch:  map[string]any{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// scriptAbort carries a guardrail violation out of a binding via panic; it
// aborts the script but is reported as an ordinary error.
type scriptAbort struct {
	err error
}

type turnState struct {
	mu        sync.Mutex
	steps     []StepResult
	toolCalls int
	skipped   bool
	last      *StepResult
}

// Execute runs one script. The data map (snapshot, event) is cloned on every
// access so scripts cannot mutate the brain's view of the world. Past the
// time budget the interpreter is stopped at the next statement and call
// refuses further dispatch, so a timed-out script cannot keep acting.
func (r *Runner) Execute(ctx context.Context, script string, data map[string]any, dispatch Dispatcher) (Outcome, error) {
	if err := rejectImports(script); err != nil {
		return Outcome{}, err
	}

	evalCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	state := &turnState{}
	i := interp.New(interp.Options{})
	if err := i.Use(r.exports(evalCtx, state, data, dispatch)); err != nil {
		return Outcome{}, fmt.Errorf("load script bindings: %w", err)
	}
	if _, err := i.Eval(`import "golem"`); err != nil {
		return Outcome{}, fmt.Errorf("import script bindings: %w", err)
	}

	type evalResult struct {
		value reflect.Value
		err   error
	}
	done := make(chan evalResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				if abort, ok := rec.(*scriptAbort); ok {
					done <- evalResult{err: abort.err}
					return
				}
				done <- evalResult{err: fmt.Errorf("script panicked: %v", rec)}
			}
		}()
		value, err := i.EvalWithContext(evalCtx, script)
		done <- evalResult{value: value, err: normalizeEvalErr(err)}
	}()

	result := <-done
	out := state.outcome()
	switch {
	case result.err == nil:
		if result.value.IsValid() && result.value.CanInterface() {
			out.Value = result.value.Interface()
		}
		return out, nil
	case ctx.Err() != nil:
		return out, ctx.Err()
	case errors.Is(result.err, context.DeadlineExceeded):
		r.log.Warn("script timed out", zap.Duration("timeout", r.timeout))
		return out, fmt.Errorf("script timed out after %s", r.timeout)
	default:
		return out, result.err
	}
}

// normalizeEvalErr unwraps a guardrail abort that yaegi caught and converted
// into an interp.Panic.
func normalizeEvalErr(err error) error {
	if err == nil {
		return nil
	}
	if p, ok := err.(interp.Panic); ok {
		if abort, ok := p.Value.(*scriptAbort); ok {
			return abort.err
		}
	}
	return err
}

func rejectImports(script string) error {
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import ") || trimmed == "import (" {
			return fmt.Errorf("scripts may not import packages")
		}
	}
	return nil
}

func (r *Runner) exports(ctx context.Context, state *turnState, data map[string]any, dispatch Dispatcher) interp.Exports {
	symbols := map[string]reflect.Value{
		"Use": reflect.ValueOf(func(name string, params map[string]any) map[string]any {
			return r.call(ctx, state, dispatch, name, params)
		}),
		"Skip": reflect.ValueOf(func() {
			state.skip()
		}),
		"Scratch": reflect.ValueOf(func() map[string]any {
			return r.scratchMap()
		}),
		"Snapshot": reflect.ValueOf(func() map[string]any {
			return cloneMap(mapValue(data, "snapshot"))
		}),
		"Event": reflect.ValueOf(func() map[string]any {
			return cloneMap(mapValue(data, "event"))
		}),
		"LastResult": reflect.ValueOf(func() map[string]any {
			return state.lastMap()
		}),
		"AssertNear": reflect.ValueOf(func(x, y, z, radius float64) {
			state.assertNear(gameworld.Vec3{X: x, Y: y, Z: z}, radius)
		}),
		"AssertMoved": reflect.ValueOf(func(min float64) {
			state.assertMoved(min)
		}),
	}
	for _, tool := range r.registry.List() {
		name := tool.Name
		symbols[exportName(name)] = reflect.ValueOf(func(params map[string]any) map[string]any {
			return r.call(ctx, state, dispatch, name, params)
		})
	}
	return interp.Exports{"golem/golem": symbols}
}

func (r *Runner) call(ctx context.Context, state *turnState, dispatch Dispatcher, name string, params map[string]any) map[string]any {
	if err := ctx.Err(); err != nil {
		panic(&scriptAbort{fmt.Errorf("tool call %s refused: script deadline passed", name)})
	}
	state.mu.Lock()
	if state.skipped {
		state.mu.Unlock()
		panic(&scriptAbort{fmt.Errorf("skip() may not be combined with tool call %s", name)})
	}
	if state.toolCalls >= r.toolCap {
		state.mu.Unlock()
		panic(&scriptAbort{fmt.Errorf("tool call cap exceeded (%d per script)", r.toolCap)})
	}
	state.toolCalls++
	state.mu.Unlock()

	step := dispatch.Dispatch(ctx, name, cloneMap(params))

	state.mu.Lock()
	state.steps = append(state.steps, step)
	state.last = &step
	state.mu.Unlock()

	return stepMap(step)
}

func (s *turnState) skip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.toolCalls > 0 {
		panic(&scriptAbort{fmt.Errorf("skip() may not follow a tool call")})
	}
	s.skipped = true
}

func (s *turnState) outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	steps := make([]StepResult, len(s.steps))
	copy(steps, s.steps)
	return Outcome{Steps: steps, ToolCalls: s.toolCalls, Skipped: s.skipped}
}

func (s *turnState) lastMap() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	return stepMap(*s.last)
}

func (s *turnState) assertNear(target gameworld.Vec3, radius float64) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		panic(&scriptAbort{fmt.Errorf("assertNear: no tool result to check")})
	}
	if dist := last.EndPos.DistanceTo(target); dist > radius {
		panic(&scriptAbort{fmt.Errorf("assertNear: ended %.1f blocks from target, wanted within %.1f", dist, radius)})
	}
}

func (s *turnState) assertMoved(min float64) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		panic(&scriptAbort{fmt.Errorf("assertMoved: no tool result to check")})
	}
	if last.DistanceMoved < min {
		panic(&scriptAbort{fmt.Errorf("assertMoved: moved %.1f blocks, wanted at least %.1f", last.DistanceMoved, min)})
	}
}

func (r *Runner) scratchMap() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scratch
}

func stepMap(step StepResult) map[string]any {
	out := map[string]any{
		"tool":     step.Tool,
		"ok":       step.OK,
		"detached": step.Detached,
	}
	if step.Err != "" {
		out["error"] = step.Err
	}
	if step.DistanceMoved != 0 {
		out["distance_moved"] = step.DistanceMoved
	}
	out["end_x"] = step.EndPos.X
	out["end_y"] = step.EndPos.Y
	out["end_z"] = step.EndPos.Z
	for k, v := range step.Data {
		out[k] = v
	}
	return out
}

func mapValue(data map[string]any, key string) map[string]any {
	if data == nil {
		return nil
	}
	if m, ok := data[key].(map[string]any); ok {
		return m
	}
	return nil
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func exportName(toolName string) string {
	if toolName == "" {
		return ""
	}
	return strings.ToUpper(toolName[:1]) + toolName[1:]
}
