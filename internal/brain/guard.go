package brain

import (
	"sync"
	"time"
)

// Guard is the error-burst breaker: too many error turns inside a sliding
// window of recent turns forces a mandatory give-up+communicate pair before
// normal operation resumes.
type Guard struct {
	threshold int
	window    int
	cooldown  time.Duration

	mu          sync.Mutex
	recent      []turnRecord
	active      bool
	triggeredAt int
}

type turnRecord struct {
	id      int
	isError bool
}

// GuardState is the read-only view exposed to observability.
type GuardState struct {
	Active          bool  `json:"active"`
	ErrorCount      int   `json:"error_count"`
	RecentTurns     []int `json:"recent_turns"`
	TriggeredAt     int   `json:"triggered_at,omitempty"`
	CooldownSeconds int   `json:"suggested_cooldown_seconds"`
}

func NewGuard(threshold, window int, cooldown time.Duration) *Guard {
	if threshold <= 0 {
		threshold = 3
	}
	if window <= 0 {
		window = 10
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Guard{threshold: threshold, window: window, cooldown: cooldown}
}

// RecordTurn notes one finished turn and reports whether this record just
// activated the guard.
func (g *Guard) RecordTurn(turnID int, hadError bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recent = append(g.recent, turnRecord{id: turnID, isError: hadError})
	if len(g.recent) > g.window {
		g.recent = g.recent[len(g.recent)-g.window:]
	}
	if g.active {
		return false
	}
	if g.errorCountLocked() >= g.threshold {
		g.active = true
		g.triggeredAt = turnID
		return true
	}
	return false
}

func (g *Guard) errorCountLocked() int {
	var count int
	for _, record := range g.recent {
		if record.isError {
			count++
		}
	}
	return count
}

func (g *Guard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Clear resets the guard after a successful give-up+communicate turn.
func (g *Guard) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
	g.triggeredAt = 0
	g.recent = nil
}

func (g *Guard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	turns := make([]int, len(g.recent))
	for i, record := range g.recent {
		turns[i] = record.id
	}
	return GuardState{
		Active:          g.active,
		ErrorCount:      g.errorCountLocked(),
		RecentTurns:     turns,
		TriggeredAt:     g.triggeredAt,
		CooldownSeconds: int(g.cooldown / time.Second),
	}
}
