package reflex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flitsinc/go-golem/internal/eventbus"
	"github.com/flitsinc/go-golem/internal/gameworld"
	"go.uber.org/zap"
)

const DefaultTick = 250 * time.Millisecond

// API is what a running behavior acts through.
type API struct {
	World gameworld.Client
	Bus   *eventbus.Bus
	Log   *zap.Logger
}

// Handle is the claim an asynchronous behavior holds on the scheduler.
// Selection is blocked until the behavior settles it.
type Handle struct {
	once sync.Once
	done chan struct{}
	err  error
}

func NewHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) Settle(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

func (h *Handle) Done() <-chan struct{} { return h.done }

// Err is valid once Done is closed.
func (h *Handle) Err() error { return h.err }

func (h *Handle) settled() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Behavior is a scored, cooldown-gated reactive rule. Run returns a Handle
// for asynchronous work, or nil when it completed synchronously.
type Behavior struct {
	ID       string
	Modes    []Mode
	Cooldown time.Duration
	When     func(Context) bool
	Score    func(Context) float64
	Run      func(ctx context.Context, api API, snap Context) (*Handle, error)
}

type registered struct {
	behavior    Behavior
	lastAttempt time.Time
}

// Scheduler runs at most one behavior per tick: the registered behavior
// with the strictly highest positive score among those matching the current
// mode, passing their predicate, and off cooldown. Ties go to registration
// order.
type Scheduler struct {
	log   *zap.Logger
	store *ContextStore
	api   API
	tick  time.Duration
	nowFn func() time.Time

	mu       sync.Mutex
	entries  []*registered
	active   *Handle
	activeID string
}

type SchedulerOption func(*Scheduler)

func WithTick(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

func WithSchedulerClock(nowFn func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

func NewScheduler(log *zap.Logger, store *ContextStore, api API, opts ...SchedulerOption) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if api.Log == nil {
		api.Log = log
	}
	s := &Scheduler{
		log:   log,
		store: store,
		api:   api,
		tick:  DefaultTick,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Scheduler) Register(b Behavior) error {
	if b.ID == "" {
		return fmt.Errorf("behavior id is required")
	}
	if b.When == nil || b.Score == nil || b.Run == nil {
		return fmt.Errorf("behavior %s must define when, score and run", b.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.behavior.ID == b.ID {
			return fmt.Errorf("behavior %s already registered", b.ID)
		}
	}
	s.entries = append(s.entries, &registered{behavior: b})
	return nil
}

// ActiveBehavior reports the behavior currently holding the async claim.
func (s *Scheduler) ActiveBehavior() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Mode reports the mode the next tick would run under.
func (s *Scheduler) Mode() Mode {
	return DeriveMode(s.store.Snapshot())
}

// Run ticks until ctx ends.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling round: refresh context, derive mode, settle or
// honor the async claim, select and run one behavior.
func (s *Scheduler) Tick(ctx context.Context) {
	if status, err := s.api.World.Status(ctx); err != nil {
		s.log.Warn("world status poll failed", zap.Error(err))
	} else {
		s.store.SetStatus(status)
	}

	snap := s.store.Snapshot()
	mode := DeriveMode(snap)

	s.mu.Lock()
	if s.active != nil {
		if !s.active.settled() {
			s.mu.Unlock()
			return
		}
		if err := s.active.Err(); err != nil {
			s.log.Warn("behavior settled with error",
				zap.String("behavior", s.activeID), zap.Error(err))
		}
		s.active = nil
		s.activeID = ""
	}

	chosen := s.selectLocked(snap, mode)
	if chosen == nil {
		s.mu.Unlock()
		return
	}
	chosen.lastAttempt = snap.Now
	s.mu.Unlock()

	s.runBehavior(ctx, chosen.behavior, snap, mode)
}

func (s *Scheduler) selectLocked(snap Context, mode Mode) *registered {
	var best *registered
	var bestScore float64
	for _, entry := range s.entries {
		b := entry.behavior
		if !modeMatches(b.Modes, mode) {
			continue
		}
		if b.Cooldown > 0 && !entry.lastAttempt.IsZero() && snap.Now.Sub(entry.lastAttempt) < b.Cooldown {
			continue
		}
		if !s.safeWhen(b, snap) {
			continue
		}
		score := s.safeScore(b, snap)
		if score <= 0 {
			continue
		}
		if best == nil || score > bestScore {
			best = entry
			bestScore = score
		}
	}
	return best
}

func (s *Scheduler) runBehavior(ctx context.Context, b Behavior, snap Context, mode Mode) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("behavior panicked",
				zap.String("behavior", b.ID), zap.Any("panic", r))
		}
	}()

	s.log.Debug("running behavior",
		zap.String("behavior", b.ID), zap.String("mode", string(mode)))

	handle, err := b.Run(ctx, s.api, snap)
	if err != nil {
		s.log.Warn("behavior failed", zap.String("behavior", b.ID), zap.Error(err))
		return
	}
	if handle != nil {
		s.mu.Lock()
		s.active = handle
		s.activeID = b.ID
		s.mu.Unlock()
	}
}

func (s *Scheduler) safeWhen(b Behavior, snap Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("behavior predicate panicked",
				zap.String("behavior", b.ID), zap.Any("panic", r))
			ok = false
		}
	}()
	return b.When(snap)
}

func (s *Scheduler) safeScore(b Behavior, snap Context) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("behavior score panicked",
				zap.String("behavior", b.ID), zap.Any("panic", r))
			score = 0
		}
	}()
	return b.Score(snap)
}

func modeMatches(modes []Mode, mode Mode) bool {
	for _, m := range modes {
		if m == mode {
			return true
		}
	}
	return false
}
