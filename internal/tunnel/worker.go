package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jpillora/backoff"

	"github.com/portalbox-app/portalbox/internal/bridge"
	"github.com/portalbox-app/portalbox/internal/logging"
	"github.com/portalbox-app/portalbox/internal/router"
	"github.com/portalbox-app/portalbox/internal/secret"
	"github.com/portalbox-app/portalbox/internal/tlsdial"
	"github.com/portalbox-app/portalbox/internal/wire"
)

// worker carries one reverse-connection from dial through bridge
// (SPEC_FULL.md §4.3). It is single-shot: a worker is never reused once it
// terminates, matching spec.md §3 "A worker ... is never reused."
type worker struct {
	log         logging.Logger
	dialer      *tlsdial.Dialer
	proxyAddr   string
	subdomain   string
	token       secret.Token
	ports       router.Ports
	pingTimeout time.Duration
	maxBackoff  time.Duration

	// refill is the pool's replenishment sender. Sending on it is a
	// non-blocking try-send; see pool.go for why.
	refill chan<- struct{}
}

// run executes the full worker lifecycle. It returns ErrAuthFailed if the
// proxy rejected the token, which the pool treats as fatal for every
// sibling worker; any other returned error is local to this worker and the
// pool continues unaffected (SPEC_FULL.md §7 propagation table).
func (w *worker) run(ctx context.Context) error {
	// w.token is this worker's own Clone (see pool.spawnWorker), so
	// zeroing it here on every exit path never affects the
	// registration's token or a sibling worker's copy.
	defer w.token.Discard()

	conn, err := w.dialAndAuthenticate(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// A pending read has no deadline driven by ctx, so cancellation
	// (the pool observing AuthFailed on a sibling) would otherwise sit
	// unnoticed until the next 30s ping timeout. Closing the stream as
	// soon as ctx is done gives prompt, bounded termination instead
	// (SPEC_FULL.md §8 Testable Property 5).
	stopWatch := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopWatch()

	tag, err := w.awaitActivation(ctx, conn)
	if err != nil {
		// Pending (awaiting activation): terminate silently, no
		// refill credit (spec.md §4.3 step 2 failure note).
		w.log.Debugf("pending worker terminated without activation: %v", err)
		return nil
	}

	// The replenishment signal MUST be emitted before the local dial
	// below. This ordering is load-bearing (SPEC_FULL.md §5): the pool
	// refills even if the local service turns out to be unreachable.
	w.tryRefill()

	port, err := w.ports.PortFor(tag)
	if err != nil {
		return fmt.Errorf("tunnel: %s: %w", tag, err)
	}
	local, err := router.Dial(ctx, port)
	if err != nil {
		w.log.Errorf("local service unavailable for %s: %v", tag, err)
		return fmt.Errorf("%w: %v", ErrLocalUnavailable, err)
	}
	defer local.Close()

	stats, err := bridge.Run(w.log, conn, local)
	w.log.Debugf("bridge closed for %s: %s", tag, stats)
	return err
}

// dialAndAuthenticate implements spec.md §4.3 step 1: dial, TLS handshake,
// hello, read one message. AuthOk ends the loop successfully; AuthFailed
// ends it with ErrAuthFailed and no further retries; anything else is
// transient and retried with exponential backoff capped at maxBackoff,
// which never gives up (spec.md §4.4 "max_elapsed_time = None") except on
// cancellation or AuthFailed.
func (w *worker) dialAndAuthenticate(ctx context.Context) (net.Conn, error) {
	b := &backoff.Backoff{Max: w.maxBackoff}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conn, err := w.attemptAuth(ctx)
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, ErrAuthFailed) {
			return nil, err
		}

		d := b.Duration()
		w.log.Debugf("dial/auth attempt %d failed: %v; retrying in %s", int(b.Attempt()), err, d)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
	}
}

func (w *worker) attemptAuth(ctx context.Context) (net.Conn, error) {
	conn, err := w.dialer.DialContext(ctx, w.proxyAddr, w.subdomain)
	if err != nil {
		return nil, err
	}
	// The hello write and auth-response read below have no deadline of
	// their own; closing the socket as soon as ctx is cancelled gives
	// the pool's cancellation prompt effect even mid-handshake.
	stopWatch := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopWatch()

	if err := wire.WriteHello(conn, w.token); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write hello: %w", err)
	}
	msg, err := wire.ReadMessage(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read auth response: %w", err)
	}
	switch msg {
	case wire.AuthOk:
		return conn, nil
	case wire.AuthFailed:
		conn.Close()
		return nil, ErrAuthFailed
	default:
		conn.Close()
		return nil, fmt.Errorf("unexpected message %s while authenticating", msg)
	}
}

// awaitActivation implements spec.md §4.3 step 2: read frames with a
// per-read timeout, replying to Ping with Pong, until an activation tag
// arrives.
func (w *worker) awaitActivation(ctx context.Context, conn net.Conn) (wire.Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := conn.SetReadDeadline(time.Now().Add(w.pingTimeout)); err != nil {
			return 0, err
		}
		msg, err := wire.ReadMessage(conn)
		if err != nil {
			if isTimeout(err) {
				return 0, ErrPingTimeout
			}
			return 0, err
		}
		switch {
		case msg == wire.Ping:
			if err := wire.WriteMessage(conn, wire.Pong); err != nil {
				return 0, err
			}
		case msg.IsDataActivation():
			return msg, nil
		default:
			return 0, fmt.Errorf("%w: %s while pending", wire.ErrUnknownFrame, msg)
		}
	}
}

// tryRefill sends one replenishment signal without blocking. A full
// channel means MaxReadyConnections spawn signals are already queued; the
// signal is then dropped rather than queued, per spec.md §4.4's
// non-blocking try-send design choice.
func (w *worker) tryRefill() {
	select {
	case w.refill <- struct{}{}:
	default:
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
