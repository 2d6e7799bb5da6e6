package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mastermindcache/internal/domain"
)

// Cursor holds the current session and the rotating index into the remotes
// list that reconnect() should try next (original_source/src/
// mastermind_impl.cpp's m_next_remote / reconnect()): each reconnect starts
// at the cursor and tries every remote once, advancing the cursor past
// whichever one finally succeeded so the next reconnect starts fresh.
type Cursor struct {
	remotes []domain.Remote

	// OnReconnect, if set, is invoked once after every successful Reconnect
	// (including the implicit first connect from Current), for callers that
	// want to track reconnect counts (e.g. internal/telemetry.Metrics).
	OnReconnect func()

	mu      sync.Mutex
	next    int
	session domain.Session
}

// NewCursor starts a cursor over remotes with no live session; the first
// Current or Reconnect call dials remotes[0].
func NewCursor(remotes []domain.Remote) *Cursor {
	return &Cursor{remotes: remotes}
}

// Current returns the live session, dialing one if none exists yet.
func (c *Cursor) Current(ctx context.Context, dialer domain.Dialer, timeout time.Duration) (domain.Session, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session != nil {
		return session, nil
	}
	return c.Reconnect(ctx, dialer, timeout)
}

// Reconnect closes any existing session and tries every remote starting at
// the cursor, advancing past the one that succeeds. It fails only once
// every remote has been tried.
func (c *Cursor) Reconnect(ctx context.Context, dialer domain.Dialer, timeout time.Duration) (domain.Session, error) {
	c.mu.Lock()
	if c.session != nil {
		_ = c.session.Close()
		c.session = nil
	}
	remotes := c.remotes
	start := c.next
	c.mu.Unlock()

	if len(remotes) == 0 {
		return nil, domain.ErrRemotesEmpty
	}

	var lastErr error
	for i := 0; i < len(remotes); i++ {
		idx := (start + i) % len(remotes)
		dialCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			dialCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		session, err := dialer.Dial(dialCtx, remotes[idx])
		if cancel != nil {
			cancel()
		}
		if err != nil {
			lastErr = err
			continue
		}

		c.mu.Lock()
		c.session = session
		c.next = (idx + 1) % len(remotes)
		c.mu.Unlock()
		if c.OnReconnect != nil {
			c.OnReconnect()
		}
		return session, nil
	}

	return nil, fmt.Errorf("reconnect: exhausted %d remotes: %w", len(remotes), lastErr)
}

// Close releases the cursor's current session, if any.
func (c *Cursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}
