// Package proxy serves the filtering JSON-RPC endpoint in front of the node.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coreguard/coreguard/internal/observability/logging"
	"github.com/coreguard/coreguard/internal/observability/metrics"
	"github.com/coreguard/coreguard/internal/policy"
)

// DefaultShutdownTimeout is how long in-flight requests get to drain.
const DefaultShutdownTimeout = 10 * time.Second

type Config struct {
	ListenAddr      string
	UpstreamTimeout time.Duration
	ShutdownTimeout time.Duration
	Metrics         bool
}

type Proxy struct {
	cfg      Config
	enforcer *Enforcer
	metrics  *metrics.Metrics
	handler  http.Handler
}

func New(cfg Config, pol *policy.Config, caller Caller) (*Proxy, error) {
	if caller == nil {
		return nil, errors.New("upstream caller is required")
	}
	enforcer, err := NewEnforcer(pol)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New()
	}
	fwd := NewForwarder(enforcer, caller, cfg.UpstreamTimeout, m)

	return &Proxy{
		cfg:      cfg,
		enforcer: enforcer,
		metrics:  m,
		handler:  NewRouter(fwd, m),
	}, nil
}

// Handler is the complete HTTP surface.
func (p *Proxy) Handler() http.Handler {
	return p.handler
}

// Enforcer exposes the effective allowlist and rules.
func (p *Proxy) Enforcer() *Enforcer {
	return p.enforcer
}

// Run listens on cfg.ListenAddr until ctx is cancelled.
func (p *Proxy) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", p.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.cfg.ListenAddr, err)
	}
	return p.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then drains in-flight
// requests for at most ShutdownTimeout. Request contexts inherit ctx values
// (logger, tracer, audit writer) but not its cancellation.
func (p *Proxy) Serve(ctx context.Context, ln net.Listener) error {
	log := logging.From(ctx)
	base := context.WithoutCancel(ctx)

	srv := &http.Server{
		Handler:           p.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	log.Event(ctx, "server.start", map[string]any{
		"listen":  ln.Addr().String(),
		"methods": p.enforcer.Allowlist().Len(),
		"metrics": p.metrics != nil,
	})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(base, p.cfg.ShutdownTimeout)
	defer cancel()

	log.Event(ctx, "server.shutdown", nil)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
