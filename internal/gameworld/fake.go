package gameworld

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Fake is an in-memory world used by tests and by golemd's offline mode.
// Push observations in with the Push* methods; script skill outcomes with
// StubSkill. Invoke honors ctx cancellation, optionally after a delay.
type Fake struct {
	selfID string

	mu      sync.Mutex
	cb      Callbacks
	status  Status
	stubs   map[string]SkillResult
	delays  map[string]time.Duration
	invoked []Invocation
	started bool
}

type Invocation struct {
	Skill  string
	Params map[string]any
}

func NewFake(selfID string) *Fake {
	return &Fake{
		selfID: selfID,
		status: Status{Weather: "clear", PolledAt: time.Now().UTC()},
		stubs:  map[string]SkillResult{},
		delays: map[string]time.Duration{},
	}
}

func (f *Fake) SelfID() string { return f.selfID }

func (f *Fake) Start(ctx context.Context, cb Callbacks) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
	f.started = true
	return nil
}

func (f *Fake) Close() error { return nil }

func (f *Fake) SetStatus(status Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status.PolledAt.IsZero() {
		status.PolledAt = time.Now().UTC()
	}
	f.status = status
}

func (f *Fake) Status(ctx context.Context) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

// StubSkill sets the result Invoke returns for a skill. A zero delay makes
// the invocation synchronous.
func (f *Fake) StubSkill(skill string, result SkillResult, delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs[skill] = result
	f.delays[skill] = delay
}

func (f *Fake) Invoke(ctx context.Context, skill string, params map[string]any) (SkillResult, error) {
	f.mu.Lock()
	f.invoked = append(f.invoked, Invocation{Skill: skill, Params: params})
	result, ok := f.stubs[skill]
	delay := f.delays[skill]
	f.mu.Unlock()

	if !ok {
		return SkillResult{}, fmt.Errorf("unknown skill: %s", skill)
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return SkillResult{}, ctx.Err()
		case <-timer.C:
		}
	}
	return result, nil
}

func (f *Fake) Invocations() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Invocation, len(f.invoked))
	copy(out, f.invoked)
	return out
}

func (f *Fake) callbacks() Callbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *Fake) PushEntityMoved(upd EntityUpdate) {
	if cb := f.callbacks(); cb.EntityMoved != nil {
		cb.EntityMoved(upd)
	}
}

func (f *Fake) PushEntityAppeared(ref EntityRef) {
	if cb := f.callbacks(); cb.EntityAppeared != nil {
		cb.EntityAppeared(ref)
	}
}

func (f *Fake) PushArmSwing(ref EntityRef) {
	if cb := f.callbacks(); cb.ArmSwing != nil {
		cb.ArmSwing(ref)
	}
}

func (f *Fake) PushSneakToggle(ref EntityRef, sneaking bool) {
	if cb := f.callbacks(); cb.SneakToggle != nil {
		cb.SneakToggle(ref, sneaking)
	}
}

func (f *Fake) PushHealth(vitals Vitals) {
	if cb := f.callbacks(); cb.HealthChanged != nil {
		cb.HealthChanged(vitals)
	}
}

func (f *Fake) PushSound(snd Sound) {
	if cb := f.callbacks(); cb.Sound != nil {
		cb.Sound(snd)
	}
}

func (f *Fake) PushItemCollected(ref EntityRef, item string) {
	if cb := f.callbacks(); cb.ItemCollected != nil {
		cb.ItemCollected(ref, item)
	}
}

func (f *Fake) PushChat(chat Chat) {
	if cb := f.callbacks(); cb.Chat != nil {
		cb.Chat(chat)
	}
}

func (f *Fake) PushSystem(message string) {
	if cb := f.callbacks(); cb.System != nil {
		cb.System(message)
	}
}
