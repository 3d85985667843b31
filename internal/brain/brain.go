package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flitsinc/go-golem/internal/eventbus"
	"github.com/flitsinc/go-golem/internal/perception"
	"github.com/flitsinc/go-golem/internal/planner"
	"github.com/flitsinc/go-golem/internal/reflex"
	"github.com/flitsinc/go-golem/internal/tools"
	"github.com/flitsinc/go-llms/content"
	"github.com/flitsinc/go-llms/llms"
	"go.uber.org/zap"
)

// Completer is the LLM transport boundary.
type Completer interface {
	Complete(ctx context.Context, system string, messages []llms.Message) (string, error)
}

// ScriptRunner executes one action script per turn.
type ScriptRunner interface {
	Execute(ctx context.Context, script string, data map[string]any, dispatch planner.Dispatcher) (planner.Outcome, error)
}

type Config struct {
	MaxAttempts    int
	RetryDelay     time.Duration
	BudgetDefault  int
	BudgetMax      int
	GuardThreshold int
	GuardWindow    int
	GuardCooldown  time.Duration
	HistoryLimit   int
	Persona        string
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.BudgetDefault <= 0 {
		c.BudgetDefault = 3
	}
	if c.BudgetMax < c.BudgetDefault {
		c.BudgetMax = 5
	}
	if c.GuardThreshold <= 0 {
		c.GuardThreshold = 3
	}
	if c.GuardWindow <= 0 {
		c.GuardWindow = 10
	}
	if c.GuardCooldown <= 0 {
		c.GuardCooldown = 30 * time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 40
	}
	if c.Persona == "" {
		c.Persona = "You are a golem living in a voxel world. Decide one action per turn."
	}
	return c
}

// Brain is the single-flight deliberation loop: one worker drains the event
// queue, one decision at a time, while physical actions run in background
// under cancellation tokens.
type Brain struct {
	log      *zap.Logger
	bus      *eventbus.Bus
	registry *tools.Registry
	llm      Completer
	scripts  ScriptRunner
	snapshot func() reflex.Context
	cfg      Config
	nowFn    func() time.Time

	budget *Budget
	guard  *Guard

	mu          sync.Mutex
	queue       []*queued
	kick        chan struct{}
	token       *Token
	lastContext string
	lastPrompt  string
	history     []llms.Message
	turnID      int
}

type Option func(*Brain)

func WithClock(nowFn func() time.Time) Option {
	return func(b *Brain) {
		if nowFn != nil {
			b.nowFn = nowFn
		}
	}
}

func New(log *zap.Logger, bus *eventbus.Bus, registry *tools.Registry, llm Completer, scripts ScriptRunner, snapshot func() reflex.Context, cfg Config, opts ...Option) *Brain {
	if log == nil {
		log = zap.NewNop()
	}
	if snapshot == nil {
		snapshot = func() reflex.Context { return reflex.Context{} }
	}
	cfg = cfg.withDefaults()
	b := &Brain{
		log:      log,
		bus:      bus,
		registry: registry,
		llm:      llm,
		scripts:  scripts,
		snapshot: snapshot,
		cfg:      cfg,
		nowFn:    func() time.Time { return time.Now().UTC() },
		budget:   NewBudget(cfg.BudgetDefault, cfg.BudgetMax),
		guard:    NewGuard(cfg.GuardThreshold, cfg.GuardWindow, cfg.GuardCooldown),
		kick:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Push queues an event for deliberation. The returned channel settles when
// the event's turn completes, or with nil if coalescing dropped it.
func (b *Brain) Push(event Event) <-chan error {
	done := make(chan error, 1)
	if event.Timestamp.IsZero() {
		event.Timestamp = b.nowFn()
	}
	if event.IsPlayerChat() {
		b.budget.Reset()
	}
	b.mu.Lock()
	b.queue = append(b.queue, &queued{event: event, done: done})
	b.mu.Unlock()
	select {
	case b.kick <- struct{}{}:
	default:
	}
	return done
}

// AttachSignals bridges perception signals from the bus into the queue.
func (b *Brain) AttachSignals(bus *eventbus.Bus) func() {
	return bus.Subscribe("signal:*", func(ctx context.Context, evt eventbus.Event) {
		sig, ok := perception.SignalFromEvent(evt)
		if !ok {
			return
		}
		payload := map[string]any{
			"signal":      string(sig.Type),
			"description": sig.Description,
			"source_id":   sig.SourceID,
			"confidence":  sig.Confidence,
		}
		for k, v := range sig.Metadata {
			payload[k] = v
		}
		b.Push(Event{Type: EventPerception, Payload: payload, Source: "perception"})
	})
}

// Run drains the queue until ctx ends. Strictly single-flight: no two turns
// overlap.
func (b *Brain) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.failPending(ctx.Err())
			return
		case <-b.kick:
		}
		for {
			item := b.dequeue()
			if item == nil {
				break
			}
			item.done <- b.runTurn(ctx, item.event)
		}
	}
}

func (b *Brain) dequeue() *queued {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil
	}
	if len(b.queue) >= 2 {
		b.queue = coalesce(b.queue)
	}
	item := b.queue[0]
	b.queue = b.queue[1:]
	return item
}

// coalesce promotes player chat to the front (stable among chats and among
// the rest) and drops queued follow-ups when chat is present, resolving
// their continuations as no-ops.
func coalesce(queue []*queued) []*queued {
	hasChat := false
	for _, item := range queue {
		if item.event.IsPlayerChat() {
			hasChat = true
			break
		}
	}
	var chats, rest []*queued
	for _, item := range queue {
		switch {
		case item.event.IsPlayerChat():
			chats = append(chats, item)
		case hasChat && item.event.isFollowup():
			item.done <- nil
		default:
			rest = append(rest, item)
		}
	}
	return append(chats, rest...)
}

func (b *Brain) failPending(err error) {
	b.mu.Lock()
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()
	for _, item := range pending {
		item.done <- err
	}
}

type turnFlags struct {
	mu      sync.Mutex
	gaveUp  bool
	chatted bool
}

func (f *turnFlags) note(tool string, ok bool) {
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch tool {
	case "giveUp":
		f.gaveUp = true
	case "chat":
		f.chatted = true
	}
}

func (f *turnFlags) remediated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gaveUp && f.chatted
}

func (b *Brain) runTurn(ctx context.Context, event Event) error {
	b.mu.Lock()
	b.turnID++
	turnID := b.turnID
	b.mu.Unlock()

	flags := &turnFlags{}
	err := b.turn(ctx, event, flags)

	if b.guard.Active() && flags.remediated() {
		b.guard.Clear()
		b.log.Info("error burst guard cleared",
			zap.String("tag", "guard_cleared"), zap.Int("turn", turnID))
	}
	if b.guard.RecordTurn(turnID, err != nil) {
		b.log.Warn("error burst guard activated", zap.Int("turn", turnID))
		b.bus.Emit(ctx, eventbus.Input{
			Type:    "brain:guard_triggered",
			Payload: map[string]any{"turn": turnID},
			Source:  "brain",
		})
	}
	return err
}

func (b *Brain) turn(ctx context.Context, event Event, flags *turnFlags) error {
	snap := b.snapshot()
	userMsg := b.buildUserMessage(event, snap)
	system := b.systemPrompt()

	b.mu.Lock()
	messages := make([]llms.Message, 0, len(b.history)+1)
	messages = append(messages, b.history...)
	messages = append(messages, llms.Message{Role: "user", Content: content.FromText(userMsg)})
	b.lastPrompt = userMsg
	b.mu.Unlock()

	reply, err := b.complete(ctx, system, messages)
	if err != nil {
		b.log.Warn("llm call failed", zap.Error(err))
		b.Push(Event{
			Type:    EventFeedback,
			Payload: map[string]any{"error": err.Error(), "stage": "llm"},
			Source:  "brain.llm",
		})
		return fmt.Errorf("llm call: %w", err)
	}
	b.appendHistory(userMsg, reply)

	instr, err := ParseInstruction(reply)
	if err != nil {
		b.log.Warn("reply is not a structured instruction", zap.Error(err))
		return fmt.Errorf("parse reply: %w", err)
	}

	toolCalls, err := b.act(ctx, event, snap, instr, flags)
	if err != nil {
		return err
	}

	if toolCalls == 0 && event.Type != EventFeedback {
		remaining, exhausted := b.budget.Consume()
		switch {
		case remaining > 0:
			b.Push(Event{
				Type:    EventWorldUpdate,
				Payload: map[string]any{"note": "nothing happened, continue thinking"},
				Source:  followupSource,
			})
		case exhausted:
			b.log.Info("no-action budget exhausted")
			b.bus.Emit(ctx, eventbus.Input{
				Type:    "brain:budget_exhausted",
				Payload: map[string]any{"turn": b.Status().Turn},
				Source:  "brain",
			})
			b.say(ctx, "I'll stay put until something happens.")
		}
	}
	return nil
}

// act executes one parsed instruction and reports how many tool calls the
// turn performed.
func (b *Brain) act(ctx context.Context, event Event, snap reflex.Context, instr Instruction, flags *turnFlags) (int, error) {
	switch {
	case instr.Skip:
		return 0, nil
	case instr.Script != "":
		data := map[string]any{
			"snapshot": snapshotMap(snap),
			"event":    event.Payload,
		}
		outcome, err := b.scripts.Execute(ctx, instr.Script, data, &dispatcher{brain: b, flags: flags})
		if err != nil {
			b.log.Warn("script failed", zap.Error(err))
			return outcome.ToolCalls, fmt.Errorf("script: %w", err)
		}
		return outcome.ToolCalls, nil
	case instr.Tool != "":
		step := b.dispatchStep(ctx, instr.Tool, instr.Params, flags)
		if !step.OK && !step.Detached {
			return 1, fmt.Errorf("tool %s: %s", instr.Tool, step.Err)
		}
		return 1, nil
	default:
		b.log.Warn("reply contained no action")
		return 0, nil
	}
}

func (b *Brain) complete(ctx context.Context, system string, messages []llms.Message) (string, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(b.cfg.RetryDelay), uint64(b.cfg.MaxAttempts-1)),
		ctx,
	)
	return backoff.RetryWithData(func() (string, error) {
		reply, err := b.llm.Complete(ctx, system, messages)
		if err != nil {
			if IsTerminal(err) {
				return "", backoff.Permanent(err)
			}
			if IsRateLimited(err) {
				b.log.Debug("rate limited, backing off", zap.Duration("delay", b.cfg.RetryDelay))
			}
			return "", err
		}
		return reply, nil
	}, policy)
}

func (b *Brain) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString(b.cfg.Persona)
	sb.WriteString("\n\nReply with exactly one JSON object:\n")
	sb.WriteString(`{"skip": true} to do nothing, {"tool": "name", "params": {...}} for one action, or {"script": "..."} for a multi-step plan.`)
	sb.WriteString("\n\nAvailable tools:\n")
	sb.WriteString(b.registry.PromptDocs())
	return sb.String()
}

func (b *Brain) buildUserMessage(event Event, snap reflex.Context) string {
	var sb strings.Builder
	sb.WriteString(describeEvent(event))

	ctxJSON := contextJSON(snap)
	b.mu.Lock()
	changed := ctxJSON != b.lastContext
	if changed {
		b.lastContext = ctxJSON
	}
	b.mu.Unlock()
	if changed {
		sb.WriteString("\n\nWorld context:\n")
		sb.WriteString(ctxJSON)
	}

	if b.guard.Active() {
		sb.WriteString("\n\nMANDATORY: repeated failures detected. You must call giveUp to abort the current action and chat to tell players what went wrong, both this turn.")
	}
	return sb.String()
}

func describeEvent(event Event) string {
	description, _ := event.Payload["description"].(string)
	if description == "" {
		raw, err := json.Marshal(event.Payload)
		if err == nil {
			description = string(raw)
		}
	}
	return fmt.Sprintf("[%s] %s", event.Type, description)
}

// contextJSON renders the snapshot without its timestamp so diffing ignores
// the clock.
func contextJSON(snap reflex.Context) string {
	snap.Now = time.Time{}
	raw, err := json.Marshal(snap)
	if err != nil {
		return ""
	}
	return string(raw)
}

func snapshotMap(snap reflex.Context) map[string]any {
	raw, err := json.Marshal(snap)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func (b *Brain) appendHistory(user, assistant string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history,
		llms.Message{Role: "user", Content: content.FromText(user)},
		llms.Message{Role: "assistant", Content: content.FromText(assistant)},
	)
	if len(b.history) > b.cfg.HistoryLimit {
		b.history = b.history[len(b.history)-b.cfg.HistoryLimit:]
	}
}

// say speaks via the chat tool, best effort.
func (b *Brain) say(ctx context.Context, message string) {
	tool, ok := b.registry.Get("chat")
	if !ok {
		return
	}
	if _, err := tool.Execute(ctx, map[string]any{"message": message}); err != nil {
		b.log.Warn("spoken notice failed", zap.Error(err))
	}
}

// Status is the observability snapshot.
type Status struct {
	QueueDepth      int        `json:"queue_depth"`
	Turn            int        `json:"turn"`
	ActionInFlight  bool       `json:"action_in_flight"`
	BudgetRemaining int        `json:"budget_remaining"`
	Guard           GuardState `json:"guard"`
	LastPrompt      string     `json:"last_prompt,omitempty"`
}

func (b *Brain) Status() Status {
	b.mu.Lock()
	depth := len(b.queue)
	turn := b.turnID
	inFlight := b.token != nil && !b.token.Cancelled()
	lastPrompt := b.lastPrompt
	b.mu.Unlock()
	return Status{
		QueueDepth:      depth,
		Turn:            turn,
		ActionInFlight:  inFlight,
		BudgetRemaining: b.budget.Remaining(),
		Guard:           b.guard.State(),
		LastPrompt:      lastPrompt,
	}
}
