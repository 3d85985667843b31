package eventbus

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/flitsinc/go-golem/internal/idgen"
)

const (
	DefaultCapacity = 512
	DefaultMaxDepth = 32
)

// Handler receives a delivered event. The context carries the event's trace,
// so nested Emit calls made inside a handler inherit it automatically.
type Handler func(ctx context.Context, evt Event)

type subscription struct {
	id      uint64
	pattern string
	fn      Handler
}

// Bus is the only component holding shared mutable state: a fixed-capacity
// ring buffer of past events and the subscription table. Dispatch is
// synchronous per emission and may be entered re-entrantly by handlers;
// depth is capped to keep pathological handler chains bounded.
type Bus struct {
	log *zap.Logger

	mu     sync.Mutex
	ring   []Event
	start  int
	count  int
	subs   []subscription
	nextID uint64

	capacity int
	maxDepth int
	nowFn    func() time.Time
}

type Option func(*Bus)

func WithCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.capacity = n
		}
	}
}

func WithMaxDepth(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.maxDepth = n
		}
	}
}

func WithClock(nowFn func() time.Time) Option {
	return func(b *Bus) {
		if nowFn != nil {
			b.nowFn = nowFn
		}
	}
}

func NewBus(log *zap.Logger, opts ...Option) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bus{
		log:      log,
		capacity: DefaultCapacity,
		maxDepth: DefaultMaxDepth,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.ring = make([]Event, b.capacity)
	return b
}

// Emit creates, stores and synchronously dispatches an event. Trace
// resolution: explicit input trace > ambient context trace > new trace.
func (b *Bus) Emit(ctx context.Context, input Input) Event {
	if ctx == nil {
		ctx = context.Background()
	}
	traceID := strings.TrimSpace(input.TraceID)
	parentID := ""
	if traceID == "" {
		if ambient, ok := traceFromContext(ctx); ok {
			traceID = ambient.TraceID
			parentID = ambient.ParentID
		}
	}
	if traceID == "" {
		traceID = idgen.New()
	}

	evt := Event{
		ID:        ulid.Make().String(),
		TraceID:   traceID,
		ParentID:  parentID,
		Type:      input.Type,
		Payload:   clonePayload(input.Payload),
		Timestamp: b.nowFn(),
		Source:    input.Source,
	}

	b.store(evt)
	b.dispatch(ctx, evt)
	return cloneEvent(evt)
}

// EmitChild emits an event that continues the parent's causal chain.
func (b *Bus) EmitChild(ctx context.Context, parent Event, input Input) Event {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = WithTrace(ctx, parent.TraceID, parent.ID)
	evt := Event{
		ID:        ulid.Make().String(),
		TraceID:   parent.TraceID,
		ParentID:  parent.ID,
		Type:      input.Type,
		Payload:   clonePayload(input.Payload),
		Timestamp: b.nowFn(),
		Source:    input.Source,
	}
	b.store(evt)
	b.dispatch(ctx, evt)
	return cloneEvent(evt)
}

// Subscribe registers a handler for a type pattern. Patterns are exact
// matches or prefix wildcards ("raw:*" matches "raw:sighted:punch").
// The returned func removes the subscription.
func (b *Bus) Subscribe(pattern string, fn Handler) func() {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, pattern: pattern, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// History returns the buffered events, oldest first.
func (b *Bus) History() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, 0, b.count)
	for i := 0; i < b.count; i++ {
		out = append(out, cloneEvent(b.ring[(b.start+i)%b.capacity]))
	}
	return out
}

// EventsByTrace returns buffered events sharing a trace, oldest first.
func (b *Bus) EventsByTrace(traceID string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for i := 0; i < b.count; i++ {
		evt := b.ring[(b.start+i)%b.capacity]
		if evt.TraceID == traceID {
			out = append(out, cloneEvent(evt))
		}
	}
	return out
}

// Replay re-dispatches events without storing them or minting new
// identities. Intended for tests and debug tooling.
func (b *Bus) Replay(ctx context.Context, events []Event) {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, evt := range events {
		b.dispatch(ctx, evt)
	}
}

func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) store(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count < b.capacity {
		b.ring[(b.start+b.count)%b.capacity] = evt
		b.count++
		return
	}
	b.ring[b.start] = evt
	b.start = (b.start + 1) % b.capacity
}

func (b *Bus) dispatch(ctx context.Context, evt Event) {
	depth := depthFromContext(ctx) + 1
	if depth > b.maxDepth {
		b.log.Warn("event dispatch depth exceeded, dropping delivery",
			zap.String("type", evt.Type),
			zap.String("trace_id", evt.TraceID),
			zap.Int("depth", depth))
		return
	}

	b.mu.Lock()
	matched := make([]subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if matchPattern(sub.pattern, evt.Type) {
			matched = append(matched, sub)
		}
	}
	b.mu.Unlock()

	handlerCtx := withDepth(WithTrace(ctx, evt.TraceID, evt.ID), depth)
	for _, sub := range matched {
		b.invoke(handlerCtx, sub, evt)
	}
}

func (b *Bus) invoke(ctx context.Context, sub subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				zap.String("pattern", sub.pattern),
				zap.String("type", evt.Type),
				zap.String("trace_id", evt.TraceID),
				zap.Any("panic", r))
		}
	}()
	sub.fn(ctx, cloneEvent(evt))
}

func matchPattern(pattern, eventType string) bool {
	if pattern == eventType || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(eventType, strings.TrimSuffix(pattern, "*"))
	}
	return false
}
