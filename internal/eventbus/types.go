package eventbus

import "time"

// Event is an immutable, trace-tagged record. TraceID is shared across a
// causal chain; ParentID points at the event that caused this one. Payloads
// are cloned on emit and again on every delivery, so a handler can never
// mutate what another handler or the history sees.
type Event struct {
	ID        string         `json:"id"`
	TraceID   string         `json:"trace_id"`
	ParentID  string         `json:"parent_id,omitempty"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
}

type Input struct {
	Type    string
	Payload map[string]any
	Source  string
	TraceID string // explicit trace override; wins over the ambient trace
}

func clonePayload(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return clonePayload(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}

func cloneEvent(evt Event) Event {
	evt.Payload = clonePayload(evt.Payload)
	return evt
}
