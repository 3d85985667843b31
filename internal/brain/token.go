package brain

import "sync"

// Token is the cooperative cancellation handle for one physical action. At
// most one token is current; starting a new physical action cancels the
// previous holder.
type Token struct {
	mu        sync.Mutex
	cancelled bool
	callbacks []func()
}

func NewToken() *Token {
	return &Token{}
}

// Cancel fires every registered callback exactly once.
func (t *Token) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	callbacks := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()
	for _, cb := range callbacks {
		cb()
	}
}

func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// OnCancel registers a callback, invoking it immediately if the token is
// already cancelled.
func (t *Token) OnCancel(cb func()) {
	if cb == nil {
		return
	}
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		cb()
		return
	}
	t.callbacks = append(t.callbacks, cb)
	t.mu.Unlock()
}
