// Command kulti-server runs the Kulti stream relay.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kulti/stream/internal/cache"
	"github.com/kulti/stream/internal/config"
	"github.com/kulti/stream/internal/database"
	"github.com/kulti/stream/internal/fanout"
	"github.com/kulti/stream/internal/mock"
	"github.com/kulti/stream/internal/persist"
	"github.com/kulti/stream/internal/procstat"
	"github.com/kulti/stream/internal/ratelimit"
	"github.com/kulti/stream/internal/relay"
	"github.com/kulti/stream/internal/stream"
	"github.com/kulti/stream/internal/ws"
)

func main() {
	mockMode := flag.Bool("mock", false, "Feed synthetic agents through the relay")
	configPath := flag.String("config", "", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	logJSON := flag.Bool("log-json", false, "Log as JSON")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid environment: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if *logJSON {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mockMode); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, mockMode bool) error {
	reg := stream.NewRegistry(stream.Limits{
		Terminal:      cfg.Stream.TerminalLimit,
		Thoughts:      cfg.Stream.ThoughtLimit,
		Milestones:    cfg.Stream.MilestoneLimit,
		Errors:        cfg.Stream.ErrorLimit,
		PreviewDomain: cfg.Stream.PreviewDomain,
	})
	relayOpts := relay.Options{DefaultAgent: cfg.Stream.DefaultAgent}
	stats := map[string]ws.StatsFunc{}

	if p, err := procstat.New(); err != nil {
		slog.Warn("process stats unavailable", "error", err)
	} else {
		stats["process"] = func() any {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return p.Sample(sctx)
		}
	}

	// Persistence.
	var sink persist.Sink = persist.LogSink{}
	var db *database.Client
	if cfg.Database.URL != "" {
		var err error
		db, err = database.NewClient(ctx, database.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: 30 * time.Minute,
			HydrateThoughts: cfg.Database.HydrateThoughts,
		})
		if err != nil {
			return err
		}
		defer db.Close()
		sink = db
		relayOpts.Hydrator = db
		stats["database"] = func() any {
			hctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			h, _ := db.Health(hctx)
			return h
		}
		slog.Info("persistence enabled")
	} else {
		slog.Info("no database configured, persistence is logged only")
	}

	outbox := persist.NewOutbox(sink, persist.OutboxConfig{
		Capacity:         cfg.Outbox.Capacity,
		WriteTimeout:     cfg.Outbox.WriteTimeout,
		FailureThreshold: cfg.Outbox.FailureThreshold,
	})
	outbox.Start()
	relayOpts.Outbox = outbox
	stats["outbox"] = func() any { return outbox.Stats() }

	// State cache.
	backend, err := openCache(cfg.Cache)
	if err != nil {
		return err
	}
	var writer *cache.Writer
	if backend != nil {
		defer backend.Close()
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		n, err := cache.Restore(rctx, backend, reg)
		cancel()
		if err != nil {
			slog.Warn("cache restore incomplete", "error", err)
		}
		slog.Info("restored agents from cache", "backend", cfg.Cache.Backend, "agents", n)

		writer = cache.NewWriter(backend, reg, cache.WriterConfig{
			TerminalKeep:  cfg.Cache.TerminalKeep,
			ThoughtKeep:   cfg.Cache.ThoughtKeep,
			FlushInterval: cfg.Cache.FlushInterval,
		})
		relayOpts.Cache = writer
		stats["cache"] = func() any { return writer.Stats() }
	}

	// Cross-instance fan-out.
	var publisher *fanout.Publisher
	var listener *fanout.Listener
	var r *relay.Relay
	if cfg.Fanout.Enabled && db != nil {
		origin := uuid.NewString()
		publisher = fanout.NewPublisher(db.DB(), cfg.Fanout.Channel, origin, 256)
		relayOpts.Publisher = publisher
		listener = fanout.NewListener(cfg.Database.URL, cfg.Fanout.Channel, origin, func(env fanout.Envelope) {
			r.ApplyRemote(env)
		})
		stats["fanout"] = func() any {
			s := publisher.Stats()
			s.Received = listener.Received()
			return s
		}
	}

	r = relay.New(reg, relayOpts)

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.IdleTTL)
	hub := ws.NewHub(cfg.WS.MaxConnections)
	server := ws.NewServer(cfg, r, hub, limiter)
	for name, fn := range stats {
		server.AddStats(name, fn)
	}
	httpServer := ws.NewHTTPServer(cfg, server.Handler())

	if listener != nil {
		if err := listener.Start(ctx); err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			listener.Stop(sctx)
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("relay listening", "addr", httpServer.Addr, "auth", cfg.AuthEnabled())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		hub.CloseAll()
		return httpServer.Shutdown(sctx)
	})
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	if writer != nil {
		g.Go(func() error { return writer.Run(gctx) })
	}
	if publisher != nil {
		g.Go(func() error { return publisher.Run(gctx) })
	}
	if mockMode {
		gen := mock.NewGenerator(r, 0)
		slog.Info("mock agents enabled", "agents", gen.AgentIDs())
		g.Go(func() error { return gen.Run(gctx) })
	}

	err = g.Wait()

	// Ingest has stopped; drain what is queued.
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if cerr := outbox.Close(sctx); cerr != nil {
		slog.Warn("outbox not drained", "error", cerr)
	}
	return err
}

// openCache returns nil when caching is disabled.
func openCache(cfg config.CacheConfig) (cache.Backend, error) {
	switch cfg.Backend {
	case config.CacheFile:
		return cache.NewFileBackend(cfg.Dir)
	case config.CacheRedis:
		return cache.NewRedisBackend(cfg.RedisURL, cfg.TTL)
	}
	return nil, nil
}
