// Package daemon wires configuration, logging and tracing to the web chat server
// and runs it until its context ends.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/gemchat/internal/config"
	"github.com/harun/gemchat/internal/logger"
	"github.com/harun/gemchat/internal/observability"
	"github.com/harun/gemchat/internal/tracing"
	"github.com/harun/gemchat/pkg/chat"
	"github.com/harun/gemchat/pkg/gateway"
	"github.com/harun/gemchat/pkg/provider"
	"github.com/harun/gemchat/pkg/render"
	"golang.org/x/sync/errgroup"
)

// Daemon represents the gemchat web service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	provider      chat.CompletionProvider
	gatewayServer *gateway.Server

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status represents daemon status
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	Addr      string
	Clients   int
}

var newProvider = func(ctx context.Context, cfg config.GeminiConfig, opts provider.Options) (chat.CompletionProvider, error) {
	return provider.New(ctx, cfg, opts)
}

// New validates cfg and builds the provider and the web server.
// A missing API key fails here with a *config.ConfigurationError.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			log.Info().Msg("Tracing initialized successfully")
		}
	}

	p, err := newProvider(context.Background(), cfg.Gemini, provider.Options{
		Logger: log.Component("provider"),
	})
	if err != nil {
		d.shutdownTracing()
		return nil, fmt.Errorf("failed to initialize provider: %w", err)
	}
	d.provider = p

	srv, err := gateway.NewServer(gateway.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		Provider:          p,
		RequestTimeout:    cfg.Gemini.Timeout(),
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		ShutdownTimeout:   time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
		UI:                cfg.UI,
		Renderer:          render.New(),
		Logger:            log.Component("gateway"),
	})
	if err != nil {
		d.shutdownTracing()
		return nil, fmt.Errorf("failed to initialize gateway server: %w", err)
	}
	d.gatewayServer = srv

	return d, nil
}

// Run serves until ctx is cancelled or the server fails, then shuts down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		d.shutdownTracing()
	}()

	if err := d.gatewayServer.Listen(); err != nil {
		return err
	}

	logger := d.logger.GetZerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().
		Str("addr", d.gatewayServer.Addr()).
		Str("provider", d.provider.Name()).
		Str("model", d.config.Gemini.Model).
		Msg("Starting gemchat")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(d.gatewayServer.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()

		status := d.Status()
		logger.Info().
			Dur("uptime", status.Uptime).
			Int("clients", status.Clients).
			Msg("Stopping gemchat")

		grace := time.Duration(d.config.Server.ShutdownTimeout)*time.Second + 5*time.Second
		stopCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return d.gatewayServer.Stop(stopCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info().Dur("uptime", time.Since(d.startTime)).Msg("gemchat stopped")
	return nil
}

func (d *Daemon) shutdownTracing() {
	if !d.tracingEnabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to flush traces")
	}
	d.tracingEnabled = false
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
		Addr:    d.gatewayServer.Addr(),
		Clients: len(d.gatewayServer.GetConnectedClients()),
	}
	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}
