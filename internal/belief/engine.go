package belief

import (
	"fmt"
	"sync"
	"time"

	"github.com/flitsinc/go-golem/internal/gameworld"
	"go.uber.org/zap"
)

// Belief is a confidence-scored inference about an entity's ongoing
// behavior. Computed on demand, never stored.
type Belief struct {
	Confidence float64        `json:"confidence"`
	Data       map[string]any `json:"data,omitempty"`
}

// PatternInput is everything a pattern may consult.
type PatternInput struct {
	State   EntityState
	History []StateChange
	SelfPos gameworld.Vec3
	Now     time.Time
}

// Pattern is a registered behavioral detector. Evaluate errors and panics
// degrade to a zero-confidence belief rather than propagating.
type Pattern struct {
	Name     string
	Lookback time.Duration
	Evaluate func(PatternInput) (Belief, error)
}

type Engine struct {
	log     *zap.Logger
	store   *EntityStore
	buffer  *TemporalBuffer
	selfPos func() gameworld.Vec3
	nowFn   func() time.Time

	mu       sync.Mutex
	patterns []Pattern
}

type EngineOption func(*Engine)

func WithEngineClock(nowFn func() time.Time) EngineOption {
	return func(e *Engine) {
		if nowFn != nil {
			e.nowFn = nowFn
		}
	}
}

func NewEngine(log *zap.Logger, store *EntityStore, buffer *TemporalBuffer, selfPos func() gameworld.Vec3, opts ...EngineOption) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if selfPos == nil {
		selfPos = func() gameworld.Vec3 { return gameworld.Vec3{} }
	}
	e := &Engine{
		log:     log,
		store:   store,
		buffer:  buffer,
		selfPos: selfPos,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *Engine) Register(pattern Pattern) error {
	if pattern.Name == "" {
		return fmt.Errorf("pattern name is required")
	}
	if pattern.Evaluate == nil {
		return fmt.Errorf("pattern %s has no evaluate func", pattern.Name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.patterns {
		if existing.Name == pattern.Name {
			return fmt.Errorf("pattern %s already registered", pattern.Name)
		}
	}
	e.patterns = append(e.patterns, pattern)
	return nil
}

// Compute runs every registered pattern against the entity's current state
// and recent history. Unknown entities yield an empty map.
func (e *Engine) Compute(entityID string) map[string]Belief {
	state, ok := e.store.Get(entityID)
	if !ok {
		return map[string]Belief{}
	}
	now := e.nowFn()

	e.mu.Lock()
	patterns := make([]Pattern, len(e.patterns))
	copy(patterns, e.patterns)
	e.mu.Unlock()

	out := make(map[string]Belief, len(patterns))
	for _, pattern := range patterns {
		lookback := pattern.Lookback
		if lookback <= 0 {
			lookback = DefaultChangeMaxAge
		}
		input := PatternInput{
			State:   state,
			History: e.buffer.Query(entityID, now.Add(-lookback)),
			SelfPos: e.selfPos(),
			Now:     now,
		}
		out[pattern.Name] = e.evaluate(pattern, input)
	}
	return out
}

func (e *Engine) evaluate(pattern Pattern, input PatternInput) (belief Belief) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("belief pattern panicked",
				zap.String("pattern", pattern.Name),
				zap.String("entity", input.State.ID),
				zap.Any("panic", r))
			belief = Belief{}
		}
	}()
	result, err := pattern.Evaluate(input)
	if err != nil {
		e.log.Debug("belief pattern failed",
			zap.String("pattern", pattern.Name),
			zap.Error(err))
		return Belief{}
	}
	return result
}
