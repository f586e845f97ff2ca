package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhengjr9/claude-gateway/internal/a2a"
	"github.com/zhengjr9/claude-gateway/internal/backend"
	"github.com/zhengjr9/claude-gateway/internal/config"
	"github.com/zhengjr9/claude-gateway/internal/dify"
	"github.com/zhengjr9/claude-gateway/internal/gemini"
	"github.com/zhengjr9/claude-gateway/internal/metrics"
	"github.com/zhengjr9/claude-gateway/internal/proxy"
	"github.com/zhengjr9/claude-gateway/internal/session"
)

const shutdownTimeout = 15 * time.Second

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
	}
	cfg := config.Load(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		slog.SetDefault(newLogger(cfg))

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	}
	return cmd
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// newBackend returns the factory for the configured backend. The client is
// built on first use.
func newBackend(cfg *config.Config) backend.Factory {
	if cfg.Backend == config.BackendGemini {
		return func(ctx context.Context) (backend.Client, error) {
			return gemini.NewClient(ctx, gemini.Options{
				APIKey:  cfg.GeminiAPIKey,
				BaseURL: cfg.GeminiBaseURL,
				Timeout: cfg.RequestTimeout,
			})
		}
	}
	return func(context.Context) (backend.Client, error) {
		return dify.NewClient(dify.Options{
			BaseURL:   cfg.DifyBaseURL,
			APIKey:    cfg.DifyAPIKey,
			User:      cfg.DefaultUser,
			ProxyURL:  cfg.DifyProxyURL,
			Timeout:   cfg.RequestTimeout,
			Streaming: cfg.DifyStreaming,
		}), nil
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	var catalog []backend.Model
	if cfg.ModelsFile != "" {
		var err error
		if catalog, err = backend.LoadCatalog(cfg.ModelsFile); err != nil {
			return err
		}
	}

	var m *metrics.Collector
	if cfg.MetricsEnabled {
		m = metrics.New("gateway")
	}

	sessions := session.NewManager(backend.NewShared(newBackend(cfg)), cfg.Model(), catalog, m)

	slog.Info("starting anthropic-gateway",
		"version", version,
		"listen", cfg.ListenAddr(),
		"backend", cfg.Backend,
		"model", cfg.Model(),
		"cors_origin", cfg.CORSOrigin,
		"a2a_enabled", cfg.A2AEnabled,
	)

	srv := proxy.New(cfg, sessions, m)
	proxyErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			proxyErr <- err
		}
	}()

	a2aErr := make(chan error, 1)
	if cfg.A2AEnabled {
		if err := startA2A(ctx, cfg, sessions, a2aErr); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-proxyErr:
		return fmt.Errorf("gateway server: %w", err)
	case err := <-a2aErr:
		return fmt.Errorf("a2a server: %w", err)
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Error("gateway shutdown error", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

func startA2A(ctx context.Context, cfg *config.Config, sessions *session.Manager, errc chan<- error) error {
	agent, err := a2a.New(a2a.AgentConfig{
		Name:        cfg.AgentName,
		Description: cfg.AgentDesc,
		Sessions:    sessions,
	})
	if err != nil {
		return fmt.Errorf("create A2A agent: %w", err)
	}

	slog.Info("starting A2A server", "port", cfg.A2APort, "agent_name", cfg.AgentName)
	app := newA2AApp(cfg.A2APort)
	go func() {
		if err := app.Run(ctx, newRunConfig(agent)); err != nil {
			errc <- err
		}
	}()
	return nil
}
