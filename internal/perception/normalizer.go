package perception

import (
	"context"
	"sync"
	"time"

	"github.com/flitsinc/go-golem/internal/eventbus"
	"go.uber.org/zap"
)

const (
	DefaultMovementThrottle = 100 * time.Millisecond
)

// Sink receives raw events the normalizer accepted.
type Sink func(ctx context.Context, raw Raw)

// Normalizer sits between the collector's raw events and the detector:
// it gates by distance, throttles per-entity movement spam to one event
// per throttle interval, and only forwards boolean-state kinds on actual
// flips so noisy re-reports of the same state don't become event storms.
type Normalizer struct {
	log         *zap.Logger
	maxDistance float64
	throttle    time.Duration
	nowFn       func() time.Time

	mu           sync.Mutex
	lastMovement map[string]time.Time
	lastFlag     map[string]bool
	sinks        []Sink
}

type NormalizerOption func(*Normalizer)

func WithNormalizerMaxDistance(d float64) NormalizerOption {
	return func(n *Normalizer) {
		if d > 0 {
			n.maxDistance = d
		}
	}
}

func WithMovementThrottle(d time.Duration) NormalizerOption {
	return func(n *Normalizer) {
		if d > 0 {
			n.throttle = d
		}
	}
}

func WithNormalizerClock(nowFn func() time.Time) NormalizerOption {
	return func(n *Normalizer) {
		if nowFn != nil {
			n.nowFn = nowFn
		}
	}
}

func NewNormalizer(log *zap.Logger, opts ...NormalizerOption) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	n := &Normalizer{
		log:          log,
		maxDistance:  DefaultMaxDistance,
		throttle:     DefaultMovementThrottle,
		nowFn:        func() time.Time { return time.Now().UTC() },
		lastMovement: map[string]time.Time{},
		lastFlag:     map[string]bool{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// AddSink appends a consumer of accepted raw events.
func (n *Normalizer) AddSink(sink Sink) {
	if sink == nil {
		return
	}
	n.mu.Lock()
	n.sinks = append(n.sinks, sink)
	n.mu.Unlock()
}

// Attach subscribes the normalizer to all raw events on the bus.
func (n *Normalizer) Attach(bus *eventbus.Bus) func() {
	return bus.Subscribe("raw:*", func(ctx context.Context, evt eventbus.Event) {
		raw, ok := RawFromEvent(evt)
		if !ok {
			return
		}
		n.Observe(ctx, raw)
	})
}

// Observe runs the gating rules and forwards accepted events to the sinks.
func (n *Normalizer) Observe(ctx context.Context, raw Raw) {
	if !n.accept(raw) {
		return
	}
	n.mu.Lock()
	sinks := make([]Sink, len(n.sinks))
	copy(sinks, n.sinks)
	n.mu.Unlock()
	for _, sink := range sinks {
		sink(ctx, raw)
	}
}

func (n *Normalizer) accept(raw Raw) bool {
	if raw.Distance > n.maxDistance {
		return false
	}
	now := n.nowFn()

	n.mu.Lock()
	defer n.mu.Unlock()

	if raw.Kind == KindEntityMoved {
		if last, ok := n.lastMovement[raw.EntityID]; ok && now.Sub(last) < n.throttle {
			return false
		}
		n.lastMovement[raw.EntityID] = now
		return true
	}

	if raw.Kind == KindSneakToggle {
		key := raw.EntityID + "|" + raw.Kind
		if prev, ok := n.lastFlag[key]; ok && prev == raw.Flag {
			return false
		}
		n.lastFlag[key] = raw.Flag
		return true
	}

	return true
}
