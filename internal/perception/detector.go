package perception

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flitsinc/go-golem/internal/eventbus"
	"go.uber.org/zap"
)

// Gating thresholds. Burst-style kinds run through leaky buckets; sustained
// kinds run through windowed counters. The two models intentionally coexist:
// buckets for discrete bursts (swings, sounds), windows where duration and
// slot precision matter (movement, crouch spam).
const (
	swingCapacity  = 4.0
	swingLeakPerS  = 1.5
	swingThreshold = 3.0

	soundCapacity  = 6.0
	soundLeakPerS  = 2.0
	soundThreshold = 4.0

	movementSlots    = 50
	movementSustain  = 600 * time.Millisecond
	movementCooldown = 2 * time.Second

	crouchSlots     = 100
	crouchThreshold = 4

	presenceCooldown = 30 * time.Second

	gateIdleEviction = 10 * time.Second
	sweepInterval    = time.Second
)

// Detector turns accepted raw events into semantic signals. Per pattern key
// (kind + entity/sound id) it keeps a gate; crossing the gate's threshold
// emits exactly one signal and resets that key.
type Detector struct {
	log   *zap.Logger
	bus   *eventbus.Bus
	nowFn func() time.Time

	mu           sync.Mutex
	buckets      map[string]*leakyBucket
	windows      map[string]*windowedCounter
	lastPresence map[string]time.Time
	lastSweep    time.Time
}

type DetectorOption func(*Detector)

func WithDetectorClock(nowFn func() time.Time) DetectorOption {
	return func(d *Detector) {
		if nowFn != nil {
			d.nowFn = nowFn
		}
	}
}

func NewDetector(log *zap.Logger, bus *eventbus.Bus, opts ...DetectorOption) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Detector{
		log:          log,
		bus:          bus,
		nowFn:        func() time.Time { return time.Now().UTC() },
		buckets:      map[string]*leakyBucket{},
		windows:      map[string]*windowedCounter{},
		lastPresence: map[string]time.Time{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Sink returns the normalizer sink feeding this detector.
func (d *Detector) Sink() Sink {
	return func(ctx context.Context, raw Raw) {
		d.Observe(ctx, raw)
	}
}

func (d *Detector) Observe(ctx context.Context, raw Raw) {
	now := d.nowFn()
	d.sweep(now)

	switch {
	case raw.Modality == ModalitySighted && raw.Kind == KindArmSwing:
		if d.bucketAdd("swing|"+raw.EntityID, swingCapacity, swingLeakPerS, swingThreshold, now) {
			d.emit(ctx, Signal{
				Type:        SignalEntityAttention,
				Description: fmt.Sprintf("%s is punching at me", entityLabel(raw)),
				SourceID:    raw.EntityID,
				Confidence:  0.9,
				Metadata:    map[string]any{"gesture": "punch"},
			})
		}
	case raw.Modality == ModalityHeard && raw.Kind == KindSound:
		if d.bucketAdd("sound|"+raw.EntityID, soundCapacity, soundLeakPerS, soundThreshold, now) {
			d.emit(ctx, Signal{
				Type:        SignalEnvironmentalAnomaly,
				Description: fmt.Sprintf("repeated %s sounds nearby", raw.Name),
				SourceID:    raw.EntityID,
				Confidence:  0.7,
				Metadata:    map[string]any{"sound": raw.Name},
			})
		}
	case raw.Modality == ModalitySighted && raw.Kind == KindEntityMoved:
		if d.movementSustained("move|"+raw.EntityID, now) {
			d.emit(ctx, Signal{
				Type:        SignalSaliencyHigh,
				Description: fmt.Sprintf("%s has been moving around me", entityLabel(raw)),
				SourceID:    raw.EntityID,
				Confidence:  0.8,
			})
		}
	case raw.Modality == ModalitySighted && raw.Kind == KindSneakToggle:
		if d.crouchSpam("crouch|"+raw.EntityID, now) {
			d.emit(ctx, Signal{
				Type:        SignalSocialGesture,
				Description: fmt.Sprintf("%s is crouch-spamming at me", entityLabel(raw)),
				SourceID:    raw.EntityID,
				Confidence:  0.85,
				Metadata:    map[string]any{"gesture": "crouch_spam"},
			})
		}
	case raw.Kind == KindEntityAppeared:
		if d.presenceAllowed(raw.EntityID, now) {
			d.emit(ctx, Signal{
				Type:        SignalSocialPresence,
				Description: fmt.Sprintf("%s appeared nearby", entityLabel(raw)),
				SourceID:    raw.EntityID,
				Confidence:  1.0,
			})
		}
	case raw.Kind == KindDamageTaken:
		d.emit(ctx, Signal{
			Type:        SignalEnvironmentalAnomaly,
			Description: "I took damage",
			SourceID:    raw.EntityID,
			Confidence:  1.0,
			Metadata:    map[string]any{"kind": "damage"},
		})
	case raw.Kind == KindChatMessage:
		d.emit(ctx, Signal{
			Type:        SignalChatMessage,
			Description: fmt.Sprintf("%s said: %s", entityLabel(raw), raw.Text),
			SourceID:    raw.EntityID,
			Confidence:  1.0,
			Metadata:    map[string]any{"message": raw.Text, "sender": raw.Name},
		})
	case raw.Kind == KindSystemMessage:
		d.emit(ctx, Signal{
			Type:        SignalSystemMessage,
			Description: raw.Text,
			Confidence:  1.0,
		})
	}
}

func (d *Detector) bucketAdd(key string, capacity, leak, threshold float64, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	bucket, ok := d.buckets[key]
	if !ok {
		bucket = newLeakyBucket(capacity, leak, threshold, now)
		d.buckets[key] = bucket
	}
	return bucket.add(1, now)
}

func (d *Detector) movementSustained(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	window, ok := d.windows[key]
	if !ok {
		window = newWindowedCounter(movementSlots, windowQuantum, now)
		d.windows[key] = window
	}
	window.add(1, now)
	if window.activeFor(now) < movementSustain {
		return false
	}
	if window.sinceFire(now) < movementCooldown {
		return false
	}
	window.markFired(now)
	return true
}

func (d *Detector) crouchSpam(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	window, ok := d.windows[key]
	if !ok {
		window = newWindowedCounter(crouchSlots, windowQuantum, now)
		d.windows[key] = window
	}
	window.add(1, now)
	if window.count(now) < crouchThreshold {
		return false
	}
	window.markFired(now)
	window.reset(now)
	return true
}

func (d *Detector) presenceAllowed(entityID string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lastPresence[entityID]; ok && now.Sub(last) < presenceCooldown {
		return false
	}
	d.lastPresence[entityID] = now
	return true
}

func (d *Detector) emit(ctx context.Context, sig Signal) {
	sig.Timestamp = d.nowFn()
	d.bus.Emit(ctx, sig.Input("perception.detector"))
}

// sweep evicts gates idle past their window so per-entity state can't grow
// without bound.
func (d *Detector) sweep(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if now.Sub(d.lastSweep) < sweepInterval {
		return
	}
	d.lastSweep = now
	for key, bucket := range d.buckets {
		if bucket.idleSince(now) > gateIdleEviction {
			delete(d.buckets, key)
		}
	}
	for key, window := range d.windows {
		if window.idleSince(now) > window.windowSpan()+gateIdleEviction {
			delete(d.windows, key)
		}
	}
	for entityID, last := range d.lastPresence {
		if now.Sub(last) > 2*presenceCooldown {
			delete(d.lastPresence, entityID)
		}
	}
}

func entityLabel(raw Raw) string {
	if raw.Name != "" {
		return raw.Name
	}
	if raw.EntityID != "" {
		return raw.EntityID
	}
	return "someone"
}
