// Package transport implements the RPC session the refresh worker uses to
// talk to the control service: dial, one decoded request/reply exchange,
// and a reconnect-once-retry-once recovery path (spec.md §4.3).
//
// Grounded on wibus-wee-mcpv/internal/infra/transport/connection.go's
// pending-map-plus-readLoop connection shape (adapted here to a single
// blocking request/reply call instead of a multiplexed notification
// stream, since the control service protocol has no server-initiated
// pushes) and on original_source/src/mastermind_impl.cpp's reconnect():
// remotes are tried starting from a rotating cursor and wrapping around
// once, and enqueue_with_reconnect retries exactly once after a single
// reconnect.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mastermindcache/internal/domain"
)

// tcpSession is one connection to a single control-service endpoint.
type tcpSession struct {
	conn   net.Conn
	logger *zap.Logger

	mu        sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// TCPDialer opens tcpSessions over plain TCP, encoding requests and
// decoding replies with the wire codec in wire.go.
type TCPDialer struct {
	Logger *zap.Logger
}

func (d *TCPDialer) Dial(ctx context.Context, remote domain.Remote) (domain.Session, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", remote.String())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", remote, err)
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &tcpSession{conn: conn, logger: logger, closed: make(chan struct{})}, nil
}

// Enqueue sends one request frame and waits for one reply frame, honoring
// ctx's deadline. The control service protocol here is strictly
// request-then-reply (no concurrent in-flight calls per session), so,
// unlike the teacher's multiplexed clientConn, Enqueue holds the session
// mutex for the duration of the call rather than dispatching through a
// pending-request map.
func (s *tcpSession) Enqueue(ctx context.Context, event string, args any) (any, error) {
	if s.isClosed() {
		return nil, fmt.Errorf("enqueue %s: %w", event, errSessionClosed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetDeadline(deadline)
	}

	traceID := uuid.New().String()
	s.logger.Debug("enqueue start", zap.String("event", event), zap.String("trace_id", traceID))
	defer s.logger.Debug("enqueue done", zap.String("event", event), zap.String("trace_id", traceID))
	if err := writeFrame(s.conn, requestFrame{Event: event, TraceID: traceID, Args: args}); err != nil {
		return nil, fmt.Errorf("enqueue %s: write: %w", event, err)
	}

	reply, err := readFrame(s.conn)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: read: %w", event, err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("enqueue %s: remote error: %s", event, reply.Error)
	}
	return reply.Result, nil
}

func (s *tcpSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}

func (s *tcpSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

var errSessionClosed = fmt.Errorf("session closed")

// EnqueueWithReconnect runs one enqueue attempt against the current
// session; on failure it reconnects exactly once (rotating to the next
// remote via cursor) and retries exactly once more, mirroring
// enqueue_with_reconnect's two-try budget.
func EnqueueWithReconnect(ctx context.Context, cursor *Cursor, dialer domain.Dialer, reconnectTimeout time.Duration, event string, args any) (any, error) {
	session, err := cursor.Current(ctx, dialer, reconnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("enqueue_with_reconnect %s: %w", event, err)
	}

	result, err := session.Enqueue(ctx, event, args)
	if err == nil {
		return result, nil
	}

	reconnected, reconnErr := cursor.Reconnect(ctx, dialer, reconnectTimeout)
	if reconnErr != nil {
		return nil, fmt.Errorf("enqueue_with_reconnect %s: reconnect: %w", event, reconnErr)
	}

	result, err = reconnected.Enqueue(ctx, event, args)
	if err != nil {
		return nil, fmt.Errorf("enqueue_with_reconnect %s: bad connection: %w", event, err)
	}
	return result, nil
}
