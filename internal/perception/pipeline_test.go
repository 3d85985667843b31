package perception

import (
	"context"
	"testing"
	"time"

	"github.com/flitsinc/go-golem/internal/eventbus"
	"github.com/flitsinc/go-golem/internal/gameworld"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func collectSignals(bus *eventbus.Bus) *[]Signal {
	out := &[]Signal{}
	bus.Subscribe("signal:*", func(ctx context.Context, evt eventbus.Event) {
		if sig, ok := SignalFromEvent(evt); ok {
			*out = append(*out, sig)
		}
	})
	return out
}

func TestThreeSwingsOnePunchSignal(t *testing.T) {
	clock := newFakeClock()
	bus := eventbus.NewBus(zap.NewNop())
	detector := NewDetector(zap.NewNop(), bus, WithDetectorClock(clock.Now))
	signals := collectSignals(bus)

	raw := Raw{Modality: ModalitySighted, Kind: KindArmSwing, EntityID: "player-1", Name: "Steve"}
	for i := 0; i < 3; i++ {
		detector.Observe(context.Background(), raw)
		clock.Advance(50 * time.Millisecond)
	}

	require.Len(t, *signals, 1)
	assert.Equal(t, SignalEntityAttention, (*signals)[0].Type)
	assert.Equal(t, "player-1", (*signals)[0].SourceID)
	assert.Equal(t, "punch", (*signals)[0].Metadata["gesture"])

	// A fourth swing inside the same burst must not fire again.
	detector.Observe(context.Background(), raw)
	assert.Len(t, *signals, 1)
}

func TestSwingBurstRefiresAfterDrain(t *testing.T) {
	clock := newFakeClock()
	bus := eventbus.NewBus(zap.NewNop())
	detector := NewDetector(zap.NewNop(), bus, WithDetectorClock(clock.Now))
	signals := collectSignals(bus)

	raw := Raw{Modality: ModalitySighted, Kind: KindArmSwing, EntityID: "player-1"}
	for i := 0; i < 3; i++ {
		detector.Observe(context.Background(), raw)
	}
	require.Len(t, *signals, 1)

	clock.Advance(5 * time.Second)
	for i := 0; i < 3; i++ {
		detector.Observe(context.Background(), raw)
	}
	assert.Len(t, *signals, 2)
}

func TestMovementRequiresSustainThenCooldown(t *testing.T) {
	clock := newFakeClock()
	bus := eventbus.NewBus(zap.NewNop())
	detector := NewDetector(zap.NewNop(), bus, WithDetectorClock(clock.Now))
	signals := collectSignals(bus)

	raw := Raw{Modality: ModalitySighted, Kind: KindEntityMoved, EntityID: "player-2"}

	// 500ms of movement: below the sustain requirement.
	for i := 0; i < 5; i++ {
		detector.Observe(context.Background(), raw)
		clock.Advance(100 * time.Millisecond)
	}
	assert.Empty(t, *signals)

	// Crossing 600ms of sustained movement fires once.
	for i := 0; i < 3; i++ {
		detector.Observe(context.Background(), raw)
		clock.Advance(100 * time.Millisecond)
	}
	require.Len(t, *signals, 1)
	assert.Equal(t, SignalSaliencyHigh, (*signals)[0].Type)

	// Still moving inside the cooldown: no refire.
	detector.Observe(context.Background(), raw)
	assert.Len(t, *signals, 1)
}

func TestCrouchSpamSignal(t *testing.T) {
	clock := newFakeClock()
	bus := eventbus.NewBus(zap.NewNop())
	detector := NewDetector(zap.NewNop(), bus, WithDetectorClock(clock.Now))
	signals := collectSignals(bus)

	raw := Raw{Modality: ModalitySighted, Kind: KindSneakToggle, EntityID: "player-3"}
	for i := 0; i < 4; i++ {
		detector.Observe(context.Background(), raw)
		clock.Advance(200 * time.Millisecond)
	}

	require.Len(t, *signals, 1)
	assert.Equal(t, SignalSocialGesture, (*signals)[0].Type)
}

func TestChatBecomesSignalImmediately(t *testing.T) {
	bus := eventbus.NewBus(zap.NewNop())
	detector := NewDetector(zap.NewNop(), bus)
	signals := collectSignals(bus)

	detector.Observe(context.Background(), Raw{
		Modality: ModalityHeard,
		Kind:     KindChatMessage,
		EntityID: "player-1",
		Name:     "Steve",
		Text:     "hello golem",
	})

	require.Len(t, *signals, 1)
	assert.Equal(t, SignalChatMessage, (*signals)[0].Type)
	assert.Equal(t, "hello golem", (*signals)[0].Metadata["message"])
}

func TestSignalInheritsRawTrace(t *testing.T) {
	bus := eventbus.NewBus(zap.NewNop())
	normalizer := NewNormalizer(zap.NewNop())
	detector := NewDetector(zap.NewNop(), bus)
	normalizer.AddSink(detector.Sink())
	normalizer.Attach(bus)

	raw := Raw{Modality: ModalityHeard, Kind: KindChatMessage, EntityID: "p1", Text: "hi"}
	emitted := bus.Emit(context.Background(), eventbus.Input{
		Type:    raw.EventType(),
		Payload: raw.busPayload(),
		Source:  "test",
	})

	chain := bus.EventsByTrace(emitted.TraceID)
	require.Len(t, chain, 2)
	assert.Equal(t, emitted.ID, chain[1].ParentID)
}

func TestNormalizerThrottlesMovement(t *testing.T) {
	clock := newFakeClock()
	normalizer := NewNormalizer(zap.NewNop(), WithNormalizerClock(clock.Now))

	var accepted []Raw
	normalizer.AddSink(func(ctx context.Context, raw Raw) {
		accepted = append(accepted, raw)
	})

	raw := Raw{Modality: ModalitySighted, Kind: KindEntityMoved, EntityID: "p1"}
	for i := 0; i < 5; i++ {
		normalizer.Observe(context.Background(), raw)
		clock.Advance(30 * time.Millisecond)
	}
	// 150ms of 30ms-spaced events through a 100ms throttle: first at 0ms,
	// next accepted at 120ms.
	assert.Len(t, accepted, 2)
}

func TestNormalizerDedupsSneakToggles(t *testing.T) {
	normalizer := NewNormalizer(zap.NewNop())

	var accepted []Raw
	normalizer.AddSink(func(ctx context.Context, raw Raw) {
		accepted = append(accepted, raw)
	})

	toggle := func(flag bool) Raw {
		return Raw{Modality: ModalitySighted, Kind: KindSneakToggle, EntityID: "p1", Flag: flag}
	}
	normalizer.Observe(context.Background(), toggle(true))
	normalizer.Observe(context.Background(), toggle(true)) // duplicate state
	normalizer.Observe(context.Background(), toggle(false))
	normalizer.Observe(context.Background(), toggle(false)) // duplicate state
	normalizer.Observe(context.Background(), toggle(true))

	assert.Len(t, accepted, 3)
}

func TestNormalizerDropsDistantEvents(t *testing.T) {
	normalizer := NewNormalizer(zap.NewNop(), WithNormalizerMaxDistance(10))

	var accepted []Raw
	normalizer.AddSink(func(ctx context.Context, raw Raw) {
		accepted = append(accepted, raw)
	})

	normalizer.Observe(context.Background(), Raw{Kind: KindSound, Distance: 50})
	normalizer.Observe(context.Background(), Raw{Kind: KindSound, Distance: 5})

	assert.Len(t, accepted, 1)
}

func TestCollectorSkipsSelfAndDistance(t *testing.T) {
	bus := eventbus.NewBus(zap.NewNop())
	selfPos := func() gameworld.Vec3 { return gameworld.Vec3{} }
	collector := NewCollector(zap.NewNop(), bus, "golem", selfPos, WithMaxDistance(16))
	cb := collector.Callbacks()

	var raws []eventbus.Event
	bus.Subscribe("raw:*", func(ctx context.Context, evt eventbus.Event) {
		raws = append(raws, evt)
	})

	cb.ArmSwing(gameworld.EntityRef{ID: "golem", Pos: gameworld.Vec3{X: 1}})
	cb.ArmSwing(gameworld.EntityRef{ID: "far", Pos: gameworld.Vec3{X: 100}})
	cb.ArmSwing(gameworld.EntityRef{ID: "near", Name: "Steve", Pos: gameworld.Vec3{X: 3}})

	require.Len(t, raws, 1)
	assert.Equal(t, "raw:sighted:arm_swing", raws[0].Type)
	assert.Equal(t, "near", raws[0].Payload["entity_id"])
}

func TestCollectorIgnoresOwnChat(t *testing.T) {
	bus := eventbus.NewBus(zap.NewNop())
	collector := NewCollector(zap.NewNop(), bus, "golem", nil)
	cb := collector.Callbacks()

	var count int
	bus.Subscribe("raw:*", func(ctx context.Context, evt eventbus.Event) { count++ })

	cb.Chat(gameworld.Chat{Sender: "golem", Message: "talking to myself"})
	cb.Chat(gameworld.Chat{Sender: "Steve", Message: "hi"})

	assert.Equal(t, 1, count)
}
