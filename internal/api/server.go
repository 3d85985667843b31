package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flitsinc/go-golem/internal/brain"
	"github.com/flitsinc/go-golem/internal/eventbus"
	"github.com/flitsinc/go-golem/internal/journal"
	"github.com/flitsinc/go-golem/internal/perception"
	"github.com/flitsinc/go-golem/internal/reflex"
)

// Server exposes the agent's internals over HTTP. Everything is read-only
// except /api/inject, which feeds a synthetic signal into the bus.
type Server struct {
	Log       *zap.Logger
	Brain     *brain.Brain
	Scheduler *reflex.Scheduler
	Bus       *eventbus.Bus
	Journal   *journal.Journal
	StartedAt time.Time
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/trace/", s.handleTrace)
	mux.HandleFunc("/api/inject", s.handleInject)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
}

// StatusResponse is the full observability snapshot.
type StatusResponse struct {
	Time           time.Time    `json:"time"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	GoVersion      string       `json:"go_version"`
	Brain          brain.Status `json:"brain"`
	ActiveBehavior string       `json:"active_behavior,omitempty"`
	Mode           string       `json:"mode,omitempty"`
	Subscribers    int          `json:"bus_subscribers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	now := time.Now().UTC()
	started := s.StartedAt
	if started.IsZero() {
		started = now
	}
	resp := StatusResponse{
		Time:          now,
		UptimeSeconds: int64(now.Sub(started).Seconds()),
		GoVersion:     runtime.Version(),
	}
	if s.Brain != nil {
		resp.Brain = s.Brain.Status()
	}
	if s.Scheduler != nil {
		resp.ActiveBehavior = s.Scheduler.ActiveBehavior()
		resp.Mode = string(s.Scheduler.Mode())
	}
	if s.Bus != nil {
		resp.Subscribers = s.Bus.SubscriberCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	if s.Journal != nil {
		events, err := s.Journal.Recent(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
		return
	}
	if s.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no event source"))
		return
	}
	events := s.Bus.History()
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	// Match journal ordering: newest first.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	writeJSON(w, http.StatusOK, events)
}

// handleTrace returns the causal chain for one trace, oldest first. The
// journal is preferred because it outlives the bus ring buffer.
func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	traceID := strings.TrimPrefix(r.URL.Path, "/api/trace/")
	if traceID == "" || strings.Contains(traceID, "/") {
		writeError(w, http.StatusBadRequest, errors.New("missing trace id"))
		return
	}
	var events []eventbus.Event
	if s.Journal != nil {
		var err error
		events, err = s.Journal.ByTrace(r.Context(), traceID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if len(events) == 0 && s.Bus != nil {
		events = s.Bus.EventsByTrace(traceID)
	}
	if len(events) == 0 {
		writeError(w, http.StatusNotFound, errors.New("trace not found"))
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type injectRequest struct {
	Type        string         `json:"type"`
	Description string         `json:"description"`
	SourceID    string         `json:"source_id"`
	Confidence  float64        `json:"confidence"`
	Metadata    map[string]any `json:"metadata"`
}

// handleInject emits a synthetic perception signal so operators can poke the
// cognitive loop without a game world attached.
func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if s.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no event bus"))
		return
	}
	var req injectRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, errors.New("type is required"))
		return
	}
	if req.Confidence <= 0 {
		req.Confidence = 1.0
	}
	sig := perception.Signal{
		Type:        perception.SignalType(req.Type),
		Description: req.Description,
		SourceID:    req.SourceID,
		Confidence:  req.Confidence,
		Metadata:    req.Metadata,
	}
	evt := s.Bus.Emit(r.Context(), sig.Input("api.inject"))
	if s.Log != nil {
		s.Log.Info("signal injected",
			zap.String("type", req.Type),
			zap.String("trace_id", evt.TraceID))
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"event_id": evt.ID,
		"trace_id": evt.TraceID,
	})
}

func decodeJSON(body io.Reader, dest any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
