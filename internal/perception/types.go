package perception

import (
	"time"

	"github.com/flitsinc/go-golem/internal/eventbus"
	"github.com/flitsinc/go-golem/internal/gameworld"
)

type Modality string

const (
	ModalitySighted Modality = "sighted"
	ModalityHeard   Modality = "heard"
	ModalityFelt    Modality = "felt"
	ModalitySystem  Modality = "system"
)

const (
	KindArmSwing       = "arm_swing"
	KindSneakToggle    = "sneak_toggle"
	KindEntityMoved    = "entity_moved"
	KindEntityAppeared = "entity_appeared"
	KindSound          = "sound"
	KindDamageTaken    = "damage_taken"
	KindItemCollected  = "item_collected"
	KindChatMessage    = "chat_message"
	KindSystemMessage  = "system_message"
)

// Raw is a short-lived perception event: created by the Collector, consumed
// once by the Normalizer and Detector, never retained beyond the bus ring.
type Raw struct {
	Modality Modality
	Kind     string
	EntityID string
	Name     string
	Distance float64
	Pos      gameworld.Vec3
	Flag     bool   // boolean-state kinds (sneak_toggle)
	Text     string // chat/system kinds
	At       time.Time
}

func (r Raw) EventType() string {
	return "raw:" + string(r.Modality) + ":" + r.Kind
}

func (r Raw) busPayload() map[string]any {
	payload := map[string]any{
		"entity_id": r.EntityID,
		"distance":  r.Distance,
		"pos_x":     r.Pos.X,
		"pos_y":     r.Pos.Y,
		"pos_z":     r.Pos.Z,
	}
	if r.Name != "" {
		payload["name"] = r.Name
	}
	if r.Text != "" {
		payload["text"] = r.Text
	}
	payload["flag"] = r.Flag
	return payload
}

// RawFromEvent reconstructs a Raw from its bus representation.
func RawFromEvent(evt eventbus.Event) (Raw, bool) {
	var modality Modality
	var kind string
	if n, err := splitRawType(evt.Type); err == nil {
		modality, kind = n.modality, n.kind
	} else {
		return Raw{}, false
	}
	raw := Raw{Modality: modality, Kind: kind, At: evt.Timestamp}
	if v, ok := evt.Payload["entity_id"].(string); ok {
		raw.EntityID = v
	}
	if v, ok := evt.Payload["name"].(string); ok {
		raw.Name = v
	}
	if v, ok := evt.Payload["distance"].(float64); ok {
		raw.Distance = v
	}
	if v, ok := evt.Payload["pos_x"].(float64); ok {
		raw.Pos.X = v
	}
	if v, ok := evt.Payload["pos_y"].(float64); ok {
		raw.Pos.Y = v
	}
	if v, ok := evt.Payload["pos_z"].(float64); ok {
		raw.Pos.Z = v
	}
	if v, ok := evt.Payload["flag"].(bool); ok {
		raw.Flag = v
	}
	if v, ok := evt.Payload["text"].(string); ok {
		raw.Text = v
	}
	return raw, true
}

type rawType struct {
	modality Modality
	kind     string
}

func splitRawType(eventType string) (rawType, error) {
	const prefix = "raw:"
	if len(eventType) <= len(prefix) || eventType[:len(prefix)] != prefix {
		return rawType{}, errNotRaw
	}
	rest := eventType[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			return rawType{modality: Modality(rest[:i]), kind: rest[i+1:]}, nil
		}
	}
	return rawType{}, errNotRaw
}

type SignalType string

const (
	SignalEntityAttention      SignalType = "entity_attention"
	SignalEnvironmentalAnomaly SignalType = "environmental_anomaly"
	SignalSaliencyHigh         SignalType = "saliency_high"
	SignalSocialGesture        SignalType = "social_gesture"
	SignalSocialPresence       SignalType = "social_presence"
	SignalSystemMessage        SignalType = "system_message"
	SignalChatMessage          SignalType = "chat_message"
)

// Signal is the semantic, behavior- and LLM-facing perception summary.
type Signal struct {
	Type        SignalType     `json:"type"`
	Description string         `json:"description"`
	SourceID    string         `json:"source_id,omitempty"`
	Confidence  float64        `json:"confidence"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (s Signal) EventType() string {
	return "signal:" + string(s.Type)
}

func (s Signal) busPayload() map[string]any {
	payload := map[string]any{
		"description": s.Description,
		"confidence":  s.Confidence,
	}
	if s.SourceID != "" {
		payload["source_id"] = s.SourceID
	}
	for k, v := range s.Metadata {
		payload["meta_"+k] = v
	}
	return payload
}

// Input packages the signal for bus emission.
func (s Signal) Input(source string) eventbus.Input {
	return eventbus.Input{Type: s.EventType(), Payload: s.busPayload(), Source: source}
}

// SignalFromEvent reconstructs a Signal from its bus representation.
func SignalFromEvent(evt eventbus.Event) (Signal, bool) {
	const prefix = "signal:"
	if len(evt.Type) <= len(prefix) || evt.Type[:len(prefix)] != prefix {
		return Signal{}, false
	}
	sig := Signal{Type: SignalType(evt.Type[len(prefix):]), Timestamp: evt.Timestamp}
	if v, ok := evt.Payload["description"].(string); ok {
		sig.Description = v
	}
	if v, ok := evt.Payload["confidence"].(float64); ok {
		sig.Confidence = v
	}
	if v, ok := evt.Payload["source_id"].(string); ok {
		sig.SourceID = v
	}
	for k, v := range evt.Payload {
		if len(k) > 5 && k[:5] == "meta_" {
			if sig.Metadata == nil {
				sig.Metadata = map[string]any{}
			}
			sig.Metadata[k[5:]] = v
		}
	}
	return sig, true
}
