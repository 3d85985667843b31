package reflex

import (
	"context"
	"sync"
	"time"

	"github.com/flitsinc/go-golem/internal/eventbus"
	"github.com/flitsinc/go-golem/internal/gameworld"
	"github.com/flitsinc/go-golem/internal/perception"
)

const (
	socialRecency = 30 * time.Second
	threatWindow  = 10 * time.Second
)

type Self struct {
	Position gameworld.Vec3 `json:"position"`
	Health   float64        `json:"health"`
	Food     float64        `json:"food"`
}

type Environment struct {
	TimeOfDay float64               `json:"time_of_day"`
	Weather   string                `json:"weather"`
	Players   []gameworld.EntityRef `json:"players"`
}

type Social struct {
	LastSender    string    `json:"last_sender,omitempty"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastChatAt    time.Time `json:"last_chat_at"`
	LastGestureBy string    `json:"last_gesture_by,omitempty"`
	LastGestureAt time.Time `json:"last_gesture_at"`
}

type Threat struct {
	Level  float64   `json:"level"`
	Source string    `json:"source,omitempty"`
	At     time.Time `json:"at"`
}

type Attention struct {
	EntityID    string    `json:"entity_id,omitempty"`
	Signal      string    `json:"signal,omitempty"`
	Description string    `json:"description,omitempty"`
	At          time.Time `json:"at"`
}

// Context is the frozen per-tick view behaviors read. Produced only by
// ContextStore.Snapshot; never shared mutable.
type Context struct {
	Now         time.Time   `json:"now"`
	Self        Self        `json:"self"`
	Environment Environment `json:"environment"`
	Social      Social      `json:"social"`
	Threat      Threat      `json:"threat"`
	Attention   Attention   `json:"attention"`
}

type Mode string

const (
	ModeIdle   Mode = "idle"
	ModeSocial Mode = "social"
	ModeAlert  Mode = "alert"
)

// DeriveMode maps the snapshot to the scheduler mode: any live threat wins,
// then recent chat, then idle.
func DeriveMode(c Context) Mode {
	if c.Threat.Level > 0 {
		return ModeAlert
	}
	if !c.Social.LastChatAt.IsZero() && c.Now.Sub(c.Social.LastChatAt) < socialRecency {
		return ModeSocial
	}
	return ModeIdle
}

// ContextStore holds the mutable runtime context. All mutation goes through
// the explicit update methods; readers get deep copies via Snapshot.
type ContextStore struct {
	nowFn func() time.Time

	mu          sync.Mutex
	self        Self
	environment Environment
	social      Social
	threat      Threat
	attention   Attention
}

type StoreOption func(*ContextStore)

func WithStoreClock(nowFn func() time.Time) StoreOption {
	return func(s *ContextStore) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

func NewContextStore(opts ...StoreOption) *ContextStore {
	s := &ContextStore{
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *ContextStore) SetStatus(status gameworld.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.self = Self{
		Position: status.Position,
		Health:   status.Vitals.Health,
		Food:     status.Vitals.Food,
	}
	players := make([]gameworld.EntityRef, len(status.Players))
	copy(players, status.Players)
	s.environment = Environment{
		TimeOfDay: status.TimeOfDay,
		Weather:   status.Weather,
		Players:   players,
	}
}

func (s *ContextStore) NoteChat(sender, message string) {
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.social.LastSender = sender
	s.social.LastMessage = message
	s.social.LastChatAt = now
}

func (s *ContextStore) NoteGesture(entityID string) {
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.social.LastGestureBy = entityID
	s.social.LastGestureAt = now
}

func (s *ContextStore) NoteThreat(level float64, source string) {
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threat = Threat{Level: level, Source: source, At: now}
}

func (s *ContextStore) NoteAttention(entityID, signal, description string) {
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attention = Attention{
		EntityID:    entityID,
		Signal:      signal,
		Description: description,
		At:          now,
	}
}

// Snapshot returns a deep copy with threat decay applied: a threat older
// than its window reads as level 0.
func (s *ContextStore) Snapshot() Context {
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()

	players := make([]gameworld.EntityRef, len(s.environment.Players))
	copy(players, s.environment.Players)

	threat := s.threat
	if !threat.At.IsZero() && now.Sub(threat.At) > threatWindow {
		threat.Level = 0
	}

	return Context{
		Now:  now,
		Self: s.self,
		Environment: Environment{
			TimeOfDay: s.environment.TimeOfDay,
			Weather:   s.environment.Weather,
			Players:   players,
		},
		Social:    s.social,
		Threat:    threat,
		Attention: s.attention,
	}
}

// Attach subscribes the store to perception signals so the context stays
// current without the scheduler polling the bus.
func (s *ContextStore) Attach(bus *eventbus.Bus) func() {
	return bus.Subscribe("signal:*", func(ctx context.Context, evt eventbus.Event) {
		sig, ok := perception.SignalFromEvent(evt)
		if !ok {
			return
		}
		switch sig.Type {
		case perception.SignalChatMessage:
			sender, _ := sig.Metadata["sender"].(string)
			message, _ := sig.Metadata["message"].(string)
			s.NoteChat(sender, message)
		case perception.SignalSocialGesture:
			s.NoteGesture(sig.SourceID)
			s.NoteAttention(sig.SourceID, string(sig.Type), sig.Description)
		case perception.SignalEnvironmentalAnomaly:
			if kind, _ := sig.Metadata["kind"].(string); kind == "damage" {
				s.NoteThreat(1.0, sig.SourceID)
				return
			}
			s.NoteAttention(sig.SourceID, string(sig.Type), sig.Description)
		case perception.SignalEntityAttention, perception.SignalSaliencyHigh, perception.SignalSocialPresence:
			s.NoteAttention(sig.SourceID, string(sig.Type), sig.Description)
		}
	})
}
