package perception

import "time"

const windowQuantum = 20 * time.Millisecond

// windowedCounter gates sustained patterns with slot-level precision: a
// circular array of per-quantum counts and a running total. Advancing past
// a slot subtracts its expired count from the total.
type windowedCounter struct {
	slots   []int
	quantum time.Duration

	cursor    int
	slotStart time.Time
	total     int

	activeSince time.Time // start of the current uninterrupted activity run
	lastFire    time.Time
	lastSeen    time.Time
}

func newWindowedCounter(slotCount int, quantum time.Duration, now time.Time) *windowedCounter {
	if slotCount <= 0 {
		slotCount = 1
	}
	if quantum <= 0 {
		quantum = windowQuantum
	}
	return &windowedCounter{
		slots:     make([]int, slotCount),
		quantum:   quantum,
		slotStart: now,
		lastSeen:  now,
	}
}

func (w *windowedCounter) windowSpan() time.Duration {
	return time.Duration(len(w.slots)) * w.quantum
}

// advance rotates the cursor forward to now, expiring old slot counts.
func (w *windowedCounter) advance(now time.Time) {
	steps := int(now.Sub(w.slotStart) / w.quantum)
	if steps <= 0 {
		return
	}
	if steps >= len(w.slots) {
		for i := range w.slots {
			w.slots[i] = 0
		}
		w.total = 0
		w.cursor = 0
		w.slotStart = now
		return
	}
	for i := 0; i < steps; i++ {
		w.cursor = (w.cursor + 1) % len(w.slots)
		w.total -= w.slots[w.cursor]
		w.slots[w.cursor] = 0
	}
	w.slotStart = w.slotStart.Add(time.Duration(steps) * w.quantum)
}

func (w *windowedCounter) add(n int, now time.Time) {
	w.advance(now)
	if w.total == 0 {
		w.activeSince = now
	}
	w.slots[w.cursor] += n
	w.total += n
	w.lastSeen = now
}

func (w *windowedCounter) count(now time.Time) int {
	w.advance(now)
	return w.total
}

func (w *windowedCounter) activeFor(now time.Time) time.Duration {
	w.advance(now)
	if w.total == 0 || w.activeSince.IsZero() {
		return 0
	}
	return now.Sub(w.activeSince)
}

func (w *windowedCounter) markFired(now time.Time) {
	w.lastFire = now
}

func (w *windowedCounter) sinceFire(now time.Time) time.Duration {
	if w.lastFire.IsZero() {
		return time.Duration(1<<62 - 1)
	}
	return now.Sub(w.lastFire)
}

func (w *windowedCounter) reset(now time.Time) {
	for i := range w.slots {
		w.slots[i] = 0
	}
	w.total = 0
	w.cursor = 0
	w.slotStart = now
	w.activeSince = time.Time{}
}

func (w *windowedCounter) idleSince(now time.Time) time.Duration {
	return now.Sub(w.lastSeen)
}
