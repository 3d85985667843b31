package brain

import (
	"time"

	"github.com/flitsinc/go-golem/internal/perception"
)

type EventType string

const (
	EventPerception  EventType = "perception"
	EventFeedback    EventType = "feedback"
	EventWorldUpdate EventType = "world_update"
	EventSystemAlert EventType = "system_alert"
)

// followupSource marks synthetic continuation events the brain queues for
// itself; coalescing may drop them when fresher player input arrives.
const followupSource = "brain.followup"

// Event is one item on the brain's decision queue.
type Event struct {
	Type      EventType
	Payload   map[string]any
	Source    string
	Timestamp time.Time
}

// IsPlayerChat reports whether the event carries a player chat message, the
// highest-value stimulus for coalescing and budget resets.
func (e Event) IsPlayerChat() bool {
	if e.Type != EventPerception {
		return false
	}
	signal, _ := e.Payload["signal"].(string)
	return signal == string(perception.SignalChatMessage)
}

func (e Event) isFollowup() bool {
	return e.Source == followupSource
}

type queued struct {
	event Event
	done  chan error
}
