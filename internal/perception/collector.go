package perception

import (
	"context"
	"errors"
	"time"

	"github.com/flitsinc/go-golem/internal/eventbus"
	"github.com/flitsinc/go-golem/internal/gameworld"
	"go.uber.org/zap"
)

var errNotRaw = errors.New("not a raw perception event type")

const DefaultMaxDistance = 32.0

// Collector adapts world-client callbacks into raw perception events on the
// bus. Events from the agent itself and events beyond MaxDistance are
// dropped here, before they cost anything downstream. Line-of-sight style
// fields are approximated from distance rather than ray-cast.
type Collector struct {
	log         *zap.Logger
	bus         *eventbus.Bus
	selfID      string
	selfPos     func() gameworld.Vec3
	maxDistance float64
	nowFn       func() time.Time
}

type CollectorOption func(*Collector)

func WithMaxDistance(d float64) CollectorOption {
	return func(c *Collector) {
		if d > 0 {
			c.maxDistance = d
		}
	}
}

func WithCollectorClock(nowFn func() time.Time) CollectorOption {
	return func(c *Collector) {
		if nowFn != nil {
			c.nowFn = nowFn
		}
	}
}

func NewCollector(log *zap.Logger, bus *eventbus.Bus, selfID string, selfPos func() gameworld.Vec3, opts ...CollectorOption) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	if selfPos == nil {
		selfPos = func() gameworld.Vec3 { return gameworld.Vec3{} }
	}
	c := &Collector{
		log:         log,
		bus:         bus,
		selfID:      selfID,
		selfPos:     selfPos,
		maxDistance: DefaultMaxDistance,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Callbacks returns the world-client callback set feeding this collector.
func (c *Collector) Callbacks() gameworld.Callbacks {
	return gameworld.Callbacks{
		EntityMoved: func(upd gameworld.EntityUpdate) {
			c.emitEntity(ModalitySighted, KindEntityMoved, upd.EntityRef, Raw{})
		},
		EntityAppeared: func(ref gameworld.EntityRef) {
			c.emitEntity(ModalitySighted, KindEntityAppeared, ref, Raw{})
		},
		ArmSwing: func(ref gameworld.EntityRef) {
			c.emitEntity(ModalitySighted, KindArmSwing, ref, Raw{})
		},
		SneakToggle: func(ref gameworld.EntityRef, sneaking bool) {
			c.emitEntity(ModalitySighted, KindSneakToggle, ref, Raw{Flag: sneaking})
		},
		HealthChanged: func(vitals gameworld.Vitals) {
			if vitals.LastDamage <= 0 {
				return
			}
			c.emit(Raw{
				Modality: ModalityFelt,
				Kind:     KindDamageTaken,
				EntityID: vitals.Attacker,
				Pos:      c.selfPos(),
			})
		},
		Sound: func(snd gameworld.Sound) {
			c.emit(Raw{
				Modality: ModalityHeard,
				Kind:     KindSound,
				EntityID: snd.ID,
				Name:     snd.Name,
				Distance: c.selfPos().DistanceTo(snd.Pos),
				Pos:      snd.Pos,
			})
		},
		ItemCollected: func(ref gameworld.EntityRef, item string) {
			c.emitEntity(ModalitySystem, KindItemCollected, ref, Raw{Text: item})
		},
		Chat: func(chat gameworld.Chat) {
			if chat.Sender == c.selfID {
				return
			}
			c.emit(Raw{
				Modality: ModalityHeard,
				Kind:     KindChatMessage,
				EntityID: chat.Sender,
				Name:     chat.Sender,
				Text:     chat.Message,
			})
		},
		System: func(message string) {
			c.emit(Raw{
				Modality: ModalitySystem,
				Kind:     KindSystemMessage,
				Text:     message,
			})
		},
	}
}

func (c *Collector) emitEntity(modality Modality, kind string, ref gameworld.EntityRef, extra Raw) {
	if ref.ID == c.selfID {
		return
	}
	raw := Raw{
		Modality: modality,
		Kind:     kind,
		EntityID: ref.ID,
		Name:     ref.Name,
		Distance: c.selfPos().DistanceTo(ref.Pos),
		Pos:      ref.Pos,
		Flag:     extra.Flag,
		Text:     extra.Text,
	}
	c.emit(raw)
}

func (c *Collector) emit(raw Raw) {
	if raw.Distance > c.maxDistance {
		return
	}
	raw.At = c.nowFn()
	c.bus.Emit(context.Background(), eventbus.Input{
		Type:    raw.EventType(),
		Payload: raw.busPayload(),
		Source:  "perception.collector",
	})
}
