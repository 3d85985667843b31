package belief

import (
	"sync"
	"time"
)

const DefaultChangeMaxAge = 5 * time.Second

// TemporalBuffer keeps recent state changes per entity, pruned by age.
// Append-only between prunes; queries return copies.
type TemporalBuffer struct {
	maxAge time.Duration
	nowFn  func() time.Time

	mu      sync.Mutex
	changes map[string][]StateChange
}

type BufferOption func(*TemporalBuffer)

func WithMaxAge(d time.Duration) BufferOption {
	return func(b *TemporalBuffer) {
		if d > 0 {
			b.maxAge = d
		}
	}
}

func WithBufferClock(nowFn func() time.Time) BufferOption {
	return func(b *TemporalBuffer) {
		if nowFn != nil {
			b.nowFn = nowFn
		}
	}
}

func NewTemporalBuffer(opts ...BufferOption) *TemporalBuffer {
	b := &TemporalBuffer{
		maxAge:  DefaultChangeMaxAge,
		nowFn:   func() time.Time { return time.Now().UTC() },
		changes: map[string][]StateChange{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *TemporalBuffer) Record(change StateChange) {
	if change.EntityID == "" {
		return
	}
	b.mu.Lock()
	b.changes[change.EntityID] = append(b.changes[change.EntityID], change)
	b.mu.Unlock()
}

// Query returns changes for an entity at or after since, oldest first.
func (b *TemporalBuffer) Query(entityID string, since time.Time) []StateChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []StateChange
	for _, change := range b.changes[entityID] {
		if !change.Timestamp.Before(since) {
			out = append(out, change)
		}
	}
	return out
}

// Prune drops changes older than maxAge and empty entity slots.
func (b *TemporalBuffer) Prune() {
	cutoff := b.nowFn().Add(-b.maxAge)
	b.mu.Lock()
	defer b.mu.Unlock()
	for entityID, list := range b.changes {
		keep := list[:0]
		for _, change := range list {
			if change.Timestamp.After(cutoff) {
				keep = append(keep, change)
			}
		}
		if len(keep) == 0 {
			delete(b.changes, entityID)
			continue
		}
		b.changes[entityID] = keep
	}
}
