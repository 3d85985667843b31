package gameworld

import (
	"math"
	"time"
)

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) DistanceTo(o Vec3) float64 {
	dx := v.X - o.X
	dy := v.Y - o.Y
	dz := v.Z - o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

type EntityRef struct {
	ID   string `json:"id"`
	Type string `json:"type"` // player, mob, item, object
	Name string `json:"name,omitempty"`
	Pos  Vec3   `json:"pos"`
}

type EntityUpdate struct {
	EntityRef
	Velocity    Vec3    `json:"velocity"`
	Yaw         float64 `json:"yaw"`
	Pitch       float64 `json:"pitch"`
	IsSneaking  bool    `json:"is_sneaking"`
	IsSprinting bool    `json:"is_sprinting"`
	OnGround    bool    `json:"on_ground"`
}

type Sound struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Pos  Vec3   `json:"pos"`
}

type Chat struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

type Vitals struct {
	Health     float64 `json:"health"`
	Food       float64 `json:"food"`
	LastDamage float64 `json:"last_damage,omitempty"`
	Attacker   string  `json:"attacker,omitempty"`
}

// Status is the polled world snapshot used to refresh the reflex context.
type Status struct {
	Position  Vec3        `json:"position"`
	Vitals    Vitals      `json:"vitals"`
	TimeOfDay float64     `json:"time_of_day"`
	Weather   string      `json:"weather"`
	Players   []EntityRef `json:"players"`
	PolledAt  time.Time   `json:"polled_at"`
}

// SkillResult is the opaque outcome of a primitive skill invocation.
type SkillResult struct {
	OK            bool           `json:"ok"`
	Err           string         `json:"error,omitempty"`
	DistanceMoved float64        `json:"distance_moved,omitempty"`
	EndPos        Vec3           `json:"end_pos"`
	Data          map[string]any `json:"data,omitempty"`
}

// Callbacks receives push-style world observations. Nil funcs are skipped.
type Callbacks struct {
	EntityMoved    func(EntityUpdate)
	EntityAppeared func(EntityRef)
	ArmSwing       func(EntityRef)
	SneakToggle    func(ref EntityRef, sneaking bool)
	HealthChanged  func(Vitals)
	Sound          func(Sound)
	ItemCollected  func(ref EntityRef, item string)
	Chat           func(Chat)
	System         func(message string)
}
