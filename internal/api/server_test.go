package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flitsinc/go-golem/internal/eventbus"
	"github.com/flitsinc/go-golem/internal/perception"
)

func newTestServer(t *testing.T) (*Server, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.NewBus(zap.NewNop())
	return &Server{Log: zap.NewNop(), Bus: bus}, bus
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusWithoutBrain(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Brain.QueueDepth)
	assert.NotEmpty(t, resp.GoVersion)
}

func TestInjectEmitsSignal(t *testing.T) {
	srv, bus := newTestServer(t)

	var seen []perception.Signal
	bus.Subscribe("signal:*", func(ctx context.Context, evt eventbus.Event) {
		if sig, ok := perception.SignalFromEvent(evt); ok {
			seen = append(seen, sig)
		}
	})

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/inject",
		`{"type":"chat_message","description":"hello there","source_id":"op","metadata":{"sender":"op"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, seen, 1)
	assert.Equal(t, perception.SignalChatMessage, seen[0].Type)
	assert.Equal(t, "hello there", seen[0].Description)
	assert.Equal(t, 1.0, seen[0].Confidence)
	assert.Equal(t, "op", seen[0].Metadata["sender"])
}

func TestInjectRejectsMissingType(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/inject", `{"description":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInjectRejectsGet(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/inject", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTraceFromBus(t *testing.T) {
	srv, bus := newTestServer(t)

	root := bus.Emit(context.Background(), eventbus.Input{
		Type:    "raw:sighted:arm_swing",
		Payload: map[string]any{"entity_id": "p1"},
		Source:  "test",
	})
	bus.EmitChild(context.Background(), root, eventbus.Input{
		Type:   "signal:entity_attention",
		Source: "test",
	})

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/trace/"+root.TraceID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var events []eventbus.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, root.ID, events[0].ID)
	assert.Equal(t, root.ID, events[1].ParentID)
}

func TestTraceNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/trace/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsNewestFirstWithLimit(t *testing.T) {
	srv, bus := newTestServer(t)

	for _, eventType := range []string{"raw:a", "raw:b", "raw:c"} {
		bus.Emit(context.Background(), eventbus.Input{Type: eventType, Source: "test"})
	}

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/events?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var events []eventbus.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, "raw:c", events[0].Type)
	assert.Equal(t, "raw:b", events[1].Type)
}
