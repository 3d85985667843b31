package belief

import (
	"time"
)

const (
	crouchSpamWindow      = 2 * time.Second
	crouchSpamMinToggles  = 4
	crouchSpamMaxToggles  = 8.0
	crouchSpamMaxHz       = 4.0
	crouchSpamMaxDistance = 15.0
	crouchCountWeight     = 0.6
	crouchRateWeight      = 0.4
)

// RapidCrouchPattern detects the crouch-spam greeting gesture: at least four
// sneak flips inside two seconds. Confidence blends toggle count (capped at
// 8) with toggle frequency (capped at 4Hz) and drops to zero past 15 blocks.
func RapidCrouchPattern() Pattern {
	return Pattern{
		Name:     "rapid_crouch",
		Lookback: crouchSpamWindow,
		Evaluate: func(input PatternInput) (Belief, error) {
			var toggles []StateChange
			for _, change := range input.History {
				if change.Field == "is_sneaking" {
					toggles = append(toggles, change)
				}
			}
			if len(toggles) < crouchSpamMinToggles {
				return Belief{}, nil
			}
			if input.SelfPos.DistanceTo(input.State.Position) > crouchSpamMaxDistance {
				return Belief{}, nil
			}

			span := toggles[len(toggles)-1].Timestamp.Sub(toggles[0].Timestamp)
			if span <= 0 {
				span = time.Millisecond
			}
			hz := float64(len(toggles)-1) / span.Seconds()

			countScore := float64(len(toggles)) / crouchSpamMaxToggles
			if countScore > 1 {
				countScore = 1
			}
			rateScore := hz / crouchSpamMaxHz
			if rateScore > 1 {
				rateScore = 1
			}

			return Belief{
				Confidence: crouchCountWeight*countScore + crouchRateWeight*rateScore,
				Data: map[string]any{
					"toggles":   len(toggles),
					"hz":        hz,
					"window_ms": span.Milliseconds(),
				},
			}, nil
		},
	}
}
