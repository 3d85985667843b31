package belief

import (
	"github.com/flitsinc/go-golem/internal/gameworld"
)

// Recorder feeds world callbacks into the entity store and temporal buffer.
// It runs alongside the perception collector on the same connection.
type Recorder struct {
	store  *EntityStore
	buffer *TemporalBuffer
	selfID string
}

func NewRecorder(store *EntityStore, buffer *TemporalBuffer, selfID string) *Recorder {
	return &Recorder{store: store, buffer: buffer, selfID: selfID}
}

// Callbacks returns the world callback set that keeps beliefs current.
func (r *Recorder) Callbacks() gameworld.Callbacks {
	return gameworld.Callbacks{
		EntityMoved:    r.onMoved,
		EntityAppeared: r.onAppeared,
		SneakToggle:    r.onSneakToggle,
	}
}

func (r *Recorder) onMoved(update gameworld.EntityUpdate) {
	if update.ID == r.selfID {
		return
	}
	r.apply(update.ID, Partial{
		Type:        ptr(update.Type),
		Name:        ptr(update.Name),
		Position:    ptr(update.Pos),
		Velocity:    ptr(update.Velocity),
		Yaw:         ptr(update.Yaw),
		Pitch:       ptr(update.Pitch),
		IsSneaking:  ptr(update.IsSneaking),
		IsSprinting: ptr(update.IsSprinting),
		OnGround:    ptr(update.OnGround),
	})
}

func (r *Recorder) onAppeared(ref gameworld.EntityRef) {
	if ref.ID == r.selfID {
		return
	}
	r.apply(ref.ID, Partial{
		Type:     ptr(ref.Type),
		Name:     ptr(ref.Name),
		Position: ptr(ref.Pos),
	})
}

func (r *Recorder) onSneakToggle(ref gameworld.EntityRef, sneaking bool) {
	if ref.ID == r.selfID {
		return
	}
	r.apply(ref.ID, Partial{
		Position:   ptr(ref.Pos),
		IsSneaking: ptr(sneaking),
	})
}

func (r *Recorder) apply(id string, partial Partial) {
	for _, change := range r.store.Update(id, partial) {
		r.buffer.Record(change)
	}
}

func ptr[T any](v T) *T { return &v }
