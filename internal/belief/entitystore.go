package belief

import (
	"sync"
	"time"

	"github.com/flitsinc/go-golem/internal/gameworld"
)

// EntityState is the rolling view of one entity. Mutated only through
// EntityStore.Update partial updates; readers always get copies.
type EntityState struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Name        string         `json:"name,omitempty"`
	Position    gameworld.Vec3 `json:"position"`
	Velocity    gameworld.Vec3 `json:"velocity"`
	Yaw         float64        `json:"yaw"`
	Pitch       float64        `json:"pitch"`
	IsSneaking  bool           `json:"is_sneaking"`
	IsSprinting bool           `json:"is_sprinting"`
	OnGround    bool           `json:"on_ground"`
	FirstSeen   time.Time      `json:"first_seen"`
	LastUpdate  time.Time      `json:"last_update"`
}

// Partial is a sparse update; nil fields are left untouched.
type Partial struct {
	Type        *string
	Name        *string
	Position    *gameworld.Vec3
	Velocity    *gameworld.Vec3
	Yaw         *float64
	Pitch       *float64
	IsSneaking  *bool
	IsSprinting *bool
	OnGround    *bool
}

// StateChange records one tracked-field transition.
type StateChange struct {
	EntityID  string    `json:"entity_id"`
	Field     string    `json:"field"`
	From      any       `json:"from"`
	To        any       `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

type EntityStore struct {
	mu       sync.Mutex
	entities map[string]*EntityState
	nowFn    func() time.Time
}

type StoreOption func(*EntityStore)

func WithStoreClock(nowFn func() time.Time) StoreOption {
	return func(s *EntityStore) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

func NewEntityStore(opts ...StoreOption) *EntityStore {
	s := &EntityStore{
		entities: map[string]*EntityState{},
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Update applies a partial update, creating the entity on first sight.
// It returns change records for tracked boolean fields that flipped.
func (s *EntityStore) Update(id string, partial Partial) []StateChange {
	if id == "" {
		return nil
	}
	now := s.nowFn()

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.entities[id]
	if !ok {
		state = &EntityState{ID: id, FirstSeen: now}
		s.entities[id] = state
		applyPartial(state, partial)
		state.LastUpdate = now
		return nil
	}

	var changes []StateChange
	track := func(field string, from, to bool) {
		if from != to {
			changes = append(changes, StateChange{
				EntityID: id, Field: field, From: from, To: to, Timestamp: now,
			})
		}
	}
	if partial.IsSneaking != nil {
		track("is_sneaking", state.IsSneaking, *partial.IsSneaking)
	}
	if partial.IsSprinting != nil {
		track("is_sprinting", state.IsSprinting, *partial.IsSprinting)
	}
	if partial.OnGround != nil {
		track("on_ground", state.OnGround, *partial.OnGround)
	}

	applyPartial(state, partial)
	state.LastUpdate = now
	return changes
}

func applyPartial(state *EntityState, partial Partial) {
	if partial.Type != nil {
		state.Type = *partial.Type
	}
	if partial.Name != nil {
		state.Name = *partial.Name
	}
	if partial.Position != nil {
		state.Position = *partial.Position
	}
	if partial.Velocity != nil {
		state.Velocity = *partial.Velocity
	}
	if partial.Yaw != nil {
		state.Yaw = *partial.Yaw
	}
	if partial.Pitch != nil {
		state.Pitch = *partial.Pitch
	}
	if partial.IsSneaking != nil {
		state.IsSneaking = *partial.IsSneaking
	}
	if partial.IsSprinting != nil {
		state.IsSprinting = *partial.IsSprinting
	}
	if partial.OnGround != nil {
		state.OnGround = *partial.OnGround
	}
}

func (s *EntityStore) Get(id string) (EntityState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.entities[id]
	if !ok {
		return EntityState{}, false
	}
	return *state, true
}

func (s *EntityStore) All() []EntityState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntityState, 0, len(s.entities))
	for _, state := range s.entities {
		out = append(out, *state)
	}
	return out
}

// PruneStale drops entities not updated within maxAge.
func (s *EntityStore) PruneStale(maxAge time.Duration) int {
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned int
	for id, state := range s.entities {
		if now.Sub(state.LastUpdate) > maxAge {
			delete(s.entities, id)
			pruned++
		}
	}
	return pruned
}
