package reflex

import (
	"context"
	"fmt"
	"time"

	"github.com/flitsinc/go-golem/internal/gameworld"
)

const (
	attentionFreshness = 5 * time.Second
	gestureFreshness   = 8 * time.Second
	fleeDistance       = 12.0
)

// LookAtAttention turns the agent toward whatever most recently grabbed
// attention. Cheap, runs in any mode, low score so anything social or
// defensive outranks it.
func LookAtAttention() Behavior {
	return Behavior{
		ID:       "look_at_attention",
		Modes:    []Mode{ModeIdle, ModeSocial, ModeAlert},
		Cooldown: 2 * time.Second,
		When: func(c Context) bool {
			return c.Attention.EntityID != "" && c.Now.Sub(c.Attention.At) < attentionFreshness
		},
		Score: func(c Context) float64 { return 1 },
		Run: func(ctx context.Context, api API, snap Context) (*Handle, error) {
			_, err := api.World.Invoke(ctx, "lookAt", map[string]any{
				"target": snap.Attention.EntityID,
			})
			return nil, err
		},
	}
}

// GreetOnGesture answers a crouch-spam greeting with a wave in chat.
func GreetOnGesture() Behavior {
	return Behavior{
		ID:       "greet_on_gesture",
		Modes:    []Mode{ModeIdle, ModeSocial},
		Cooldown: 30 * time.Second,
		When: func(c Context) bool {
			return c.Social.LastGestureBy != "" && c.Now.Sub(c.Social.LastGestureAt) < gestureFreshness
		},
		Score: func(c Context) float64 { return 2 },
		Run: func(ctx context.Context, api API, snap Context) (*Handle, error) {
			_, err := api.World.Invoke(ctx, "chat", map[string]any{
				"message": "o/",
			})
			return nil, err
		},
	}
}

// FleeOnThreat paths away from the attacker. Asynchronous: pathing takes
// seconds, so it claims the scheduler until the move settles.
func FleeOnThreat() Behavior {
	return Behavior{
		ID:       "flee_on_threat",
		Modes:    []Mode{ModeAlert},
		Cooldown: 5 * time.Second,
		When: func(c Context) bool {
			return c.Threat.Level > 0
		},
		Score: func(c Context) float64 { return 10 * c.Threat.Level },
		Run: func(ctx context.Context, api API, snap Context) (*Handle, error) {
			dest := fleeDestination(snap)
			handle := NewHandle()
			go func() {
				result, err := api.World.Invoke(ctx, "goToCoordinates", map[string]any{
					"x": dest.X, "y": dest.Y, "z": dest.Z,
				})
				if err == nil && !result.OK {
					err = fmt.Errorf("flee move failed: %s", result.Err)
				}
				handle.Settle(err)
			}()
			return handle, nil
		},
	}
}

// fleeDestination picks a point away from the threat source when it is a
// visible player, else a fixed offset from the current position.
func fleeDestination(snap Context) gameworld.Vec3 {
	self := snap.Self.Position
	for _, player := range snap.Environment.Players {
		if player.ID != snap.Threat.Source && player.Name != snap.Threat.Source {
			continue
		}
		dx := self.X - player.Pos.X
		dz := self.Z - player.Pos.Z
		dist := gameworld.Vec3{X: dx, Z: dz}.DistanceTo(gameworld.Vec3{})
		if dist < 0.001 {
			break
		}
		return gameworld.Vec3{
			X: self.X + dx/dist*fleeDistance,
			Y: self.Y,
			Z: self.Z + dz/dist*fleeDistance,
		}
	}
	return gameworld.Vec3{X: self.X + fleeDistance, Y: self.Y, Z: self.Z}
}
