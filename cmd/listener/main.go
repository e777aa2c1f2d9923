package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/realtime-client/internal/archive"
	"github.com/rickgao/realtime-client/internal/auth"
	"github.com/rickgao/realtime-client/internal/client"
	"github.com/rickgao/realtime-client/internal/config"
	"github.com/rickgao/realtime-client/internal/connection"
	"github.com/rickgao/realtime-client/internal/database"
	"github.com/rickgao/realtime-client/internal/jsoncodec"
	"github.com/rickgao/realtime-client/internal/metrics"
	"github.com/rickgao/realtime-client/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/listener.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("listener failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging
	logger := newLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting listener",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
		"host", cfg.Pusher.Host,
		"channels", len(cfg.Channels),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	var (
		reg *prometheus.Registry
		m   *metrics.Metrics
	)
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		if err := m.Register(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	opts := []client.Option{
		client.WithLogger(logger),
		client.WithMetrics(m),
	}

	if cfg.Auth.Endpoint != "" {
		opts = append(opts, client.WithAuthorizer(newAuthorizer(cfg.Auth, logger)))
	}

	var writer *archive.Writer
	if cfg.Archive.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := archive.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		writer = archive.NewWriter(archive.Config{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
			BufferSize:    cfg.Archive.BufferSize,
		}, pool, logger.With("component", "archive"), m)
		opts = append(opts, client.WithObserver(writer.Observe))
	}

	c, err := client.New(client.FromConfig(cfg), opts...)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	c.OnError(func(err error) {
		logger.Warn("server error", "error", err)
	})
	c.OnStateChanged(func(change connection.StateChange) {
		logger.Info("connection state", "from", change.Previous, "to", change.Current)
	})

	for _, name := range cfg.Channels {
		ch, err := c.Subscribe(ctx, name)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", name, err)
		}
		ch.BindAll(func(event, data string) {
			logger.Info("event", "channel", name, "event", event, "data", data)
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	if reg != nil {
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           newMux(cfg.Metrics.Path, reg, c),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if writer != nil {
		if err := writer.Start(gctx); err != nil {
			return fmt.Errorf("start archive: %w", err)
		}
	}

	c.Connect()

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		// Stop producing events before draining the archive
		c.Disconnect()

		if writer == nil {
			return nil
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return writer.Stop(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("listener stopped")
	return err
}

func newAuthorizer(cfg config.AuthConfig, logger *slog.Logger) *auth.Authorizer {
	opts := []auth.Option{
		auth.WithLogger(logger.With("component", "auth")),
		auth.WithTimeout(cfg.Timeout),
		auth.WithRetries(cfg.MaxRetries, 500*time.Millisecond),
	}
	for k, v := range cfg.Headers {
		opts = append(opts, auth.WithHeader(k, v))
	}
	for k, v := range cfg.Params {
		opts = append(opts, auth.WithParam(k, v))
	}
	return auth.New(cfg.Endpoint, opts...)
}

// newLogger builds the handler selected in config.
func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// newMux serves metrics and a health endpoint reporting the connection.
func newMux(metricsPath string, reg *prometheus.Registry, c *client.Client) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		state := c.State()
		stats := c.Stats()

		health := struct {
			Status   string   `json:"status"`
			State    string   `json:"state"`
			SocketID string   `json:"socket_id,omitempty"`
			Channels []string `json:"channels"`
			Received int64    `json:"received"`
			Dropped  int64    `json:"dropped"`
			Version  string   `json:"version"`
		}{
			Status:   "healthy",
			State:    state.String(),
			SocketID: c.SocketID(),
			Channels: c.Channels(),
			Received: stats.Received,
			Dropped:  stats.Dropped,
			Version:  version.String(),
		}
		if state != connection.StateConnected {
			health.Status = "degraded"
		}

		body, err := jsoncodec.Marshal(health)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if state != connection.StateConnected {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		w.Write(body)
	})

	return mux
}
