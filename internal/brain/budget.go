package brain

import "sync"

// Budget gates how many consecutive no-action turns may self-chain. Any
// player chat resets it; exhaustion reports true exactly once per depletion.
type Budget struct {
	mu        sync.Mutex
	remaining int
	def       int
	max       int
	notified  bool
}

func NewBudget(def, max int) *Budget {
	if def <= 0 {
		def = 3
	}
	if max < def {
		max = def
	}
	return &Budget{remaining: def, def: def, max: max}
}

func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining = b.def
	b.notified = false
}

// Extend raises the remaining budget, clamped to the configured maximum.
func (b *Budget) Extend(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining += n
	if b.remaining > b.max {
		b.remaining = b.max
	}
	b.notified = false
}

// Consume burns one no-action turn. exhaustedNow is true only on the turn
// that hits zero, so the exhaustion alert fires once.
func (b *Budget) Consume() (remaining int, exhaustedNow bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining > 0 {
		b.remaining--
	}
	if b.remaining == 0 && !b.notified {
		b.notified = true
		return 0, true
	}
	return b.remaining, false
}

func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}
