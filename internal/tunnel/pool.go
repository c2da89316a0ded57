package tunnel

import (
	"errors"
	"time"

	"github.com/portalbox-app/portalbox/internal/lifecycle"
	"github.com/portalbox-app/portalbox/internal/logging"
	"github.com/portalbox-app/portalbox/internal/tlsdial"
)

// pool is the supervisor for one TunnelRegistration (SPEC_FULL.md §4.4). It
// owns a bounded replenishment channel, a root cancellation scope shared by
// every worker it spawns, and a refresh ticker.
type pool struct {
	log    logging.Logger
	reg    TunnelRegistration
	cfg    Config
	dialer *tlsdial.Dialer
	scope  *lifecycle.Scope

	refill chan struct{}
}

// newPool constructs a pool ready to run. cfg has already had its zero
// fields filled with spec defaults.
func newPool(log logging.Logger, reg TunnelRegistration, cfg Config, dialer *tlsdial.Dialer, parent *lifecycle.Scope) *pool {
	return &pool{
		log:    log,
		reg:    reg,
		cfg:    cfg,
		dialer: dialer,
		scope:  parent.Child(),
		refill: make(chan struct{}, cfg.MaxReadyConnections),
	}
}

// run drives the pool until its scope is cancelled (by AuthFailed from any
// worker, or by the daemon shutting down). It blocks until every spawned
// worker has returned.
func (p *pool) run() {
	for i := 0; i < p.cfg.MaxReadyConnections; i++ {
		p.refill <- struct{}{}
	}

	ticker := time.NewTicker(p.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.scope.Done():
			p.log.Infof("pool for %s shutting down: %v", p.reg.BaseSubDomain, p.scope.Err())
			p.scope.Wait()
			return

		case <-p.refill:
			p.spawnWorker()

		case <-ticker.C:
			// Slow roll: replace potentially stale pending
			// connections. The tick adds one worker even when every
			// worker is already pending, a transient overshoot that
			// is accepted (spec.md §4.4 "Open question"); the
			// non-blocking send drops the tick only when the refill
			// channel already holds MaxReadyConnections unconsumed
			// signals.
			select {
			case p.refill <- struct{}{}:
			default:
			}
		}
	}
}

func (p *pool) spawnWorker() {
	ws := p.scope.Child()
	w := &worker{
		log:         p.log.Fork("worker"),
		dialer:      p.dialer,
		proxyAddr:   p.reg.ProxyAddr,
		subdomain:   p.reg.BaseSubDomain,
		token:       p.reg.Token.Clone(),
		ports:       p.cfg.Ports,
		pingTimeout: p.cfg.PingTimeout,
		maxBackoff:  p.cfg.MaxBackoffInterval,
		refill:      p.refill,
	}
	p.scope.Go(func() {
		if err := w.run(ws.Context()); err != nil {
			if errors.Is(err, ErrAuthFailed) {
				p.log.Errorf("auth failed for %s: proxy rejected token, tearing down pool", p.reg.BaseSubDomain)
				p.scope.Cancel(ErrAuthFailed)
				return
			}
			if ws.Context().Err() == nil {
				p.log.Debugf("worker for %s exited: %v", p.reg.BaseSubDomain, err)
			}
		}
	})
}
