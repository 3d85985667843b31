package gameworld

import "context"

// Client is the boundary to the game-world process. Skills are opaque async
// operations; Invoke blocks until the skill settles or ctx is cancelled, in
// which case it must return promptly with ctx.Err().
type Client interface {
	// Start registers callbacks and begins delivering world observations.
	// It returns once the client is connected; delivery stops when ctx ends.
	Start(ctx context.Context, cb Callbacks) error

	// Status polls the current world snapshot.
	Status(ctx context.Context) (Status, error)

	// Invoke runs a primitive skill by name (goToPlayer, breakBlock, ...).
	Invoke(ctx context.Context, skill string, params map[string]any) (SkillResult, error)

	// SelfID identifies the agent's own entity, so perception can exclude it.
	SelfID() string

	Close() error
}
