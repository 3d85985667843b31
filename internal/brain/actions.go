package brain

import (
	"context"
	"fmt"

	"github.com/flitsinc/go-golem/internal/gameworld"
	"github.com/flitsinc/go-golem/internal/planner"
	"go.uber.org/zap"
)

// dispatcher routes script tool calls back into the brain so read-only and
// physical dispatch follow the same rules as single-instruction turns.
type dispatcher struct {
	brain *Brain
	flags *turnFlags
}

func (d *dispatcher) Dispatch(ctx context.Context, tool string, params map[string]any) planner.StepResult {
	return d.brain.dispatchStep(ctx, tool, params, d.flags)
}

// dispatchStep validates and executes one tool call. Read-only tools run
// inline without touching the cancellation token. Physical tools cancel the
// previous token, mint a new one, and run in the background; completion
// re-enters the queue as feedback unless the action was cancelled.
func (b *Brain) dispatchStep(ctx context.Context, name string, params map[string]any, flags *turnFlags) planner.StepResult {
	tool, ok := b.registry.Get(name)
	if !ok {
		return planner.StepResult{Tool: name, OK: false, Err: fmt.Sprintf("unknown tool %q", name)}
	}
	if params == nil {
		params = map[string]any{}
	}
	if err := tool.Validate(params); err != nil {
		return planner.StepResult{Tool: name, OK: false, Err: err.Error()}
	}

	if name == "giveUp" {
		b.cancelCurrent()
		flags.note(name, true)
		return planner.StepResult{Tool: name, OK: true}
	}

	if tool.ReadOnly {
		result, err := tool.Execute(ctx, params)
		step := stepFromResult(name, result, err)
		flags.note(name, step.OK)
		return step
	}

	token := b.mintToken()
	runCtx, cancel := context.WithCancel(ctx)
	token.OnCancel(cancel)

	go func() {
		defer cancel()
		result, err := tool.Execute(runCtx, params)
		b.releaseToken(token)
		if token.Cancelled() {
			b.log.Debug("physical action cancelled", zap.String("tool", name))
			return
		}
		step := stepFromResult(name, result, err)
		payload := map[string]any{
			"tool":        name,
			"ok":          step.OK,
			"description": feedbackText(step),
		}
		if step.Err != "" {
			payload["error"] = step.Err
		}
		if step.DistanceMoved != 0 {
			payload["distance_moved"] = step.DistanceMoved
		}
		b.Push(Event{Type: EventFeedback, Payload: payload, Source: "action." + name})
	}()

	return planner.StepResult{Tool: name, OK: true, Detached: true}
}

// mintToken makes a fresh token current, cancelling the previous physical
// action.
func (b *Brain) mintToken() *Token {
	b.mu.Lock()
	prev := b.token
	token := NewToken()
	b.token = token
	b.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
	return token
}

func (b *Brain) cancelCurrent() {
	b.mu.Lock()
	prev := b.token
	b.token = nil
	b.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
}

// releaseToken clears the current token once its action settles, unless a
// newer action already replaced it.
func (b *Brain) releaseToken(token *Token) {
	b.mu.Lock()
	if b.token == token {
		b.token = nil
	}
	b.mu.Unlock()
}

func stepFromResult(name string, result gameworld.SkillResult, err error) planner.StepResult {
	if err != nil {
		return planner.StepResult{Tool: name, OK: false, Err: err.Error()}
	}
	return planner.StepResult{
		Tool:          name,
		OK:            result.OK,
		Err:           result.Err,
		DistanceMoved: result.DistanceMoved,
		EndPos:        result.EndPos,
		Data:          result.Data,
	}
}

func feedbackText(step planner.StepResult) string {
	if step.OK {
		return fmt.Sprintf("%s completed", step.Tool)
	}
	return fmt.Sprintf("%s failed: %s", step.Tool, step.Err)
}
