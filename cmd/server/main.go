// Ngong Town driving school chat widget server.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/Wainainajnr/ngongtownbot/internal/analytics"
	"github.com/Wainainajnr/ngongtownbot/internal/api"
	"github.com/Wainainajnr/ngongtownbot/internal/assistant"
	"github.com/Wainainajnr/ngongtownbot/internal/catalog"
	"github.com/Wainainajnr/ngongtownbot/internal/chatws"
	"github.com/Wainainajnr/ngongtownbot/internal/completion"
	"github.com/Wainainajnr/ngongtownbot/internal/config"
	"github.com/Wainainajnr/ngongtownbot/internal/convlog"
	"github.com/Wainainajnr/ngongtownbot/internal/health"
	"github.com/Wainainajnr/ngongtownbot/internal/i18n"
	"github.com/Wainainajnr/ngongtownbot/internal/identity"
	"github.com/Wainainajnr/ngongtownbot/internal/intent"
	"github.com/Wainainajnr/ngongtownbot/internal/lead"
	"github.com/Wainainajnr/ngongtownbot/internal/middleware"
	"github.com/Wainainajnr/ngongtownbot/internal/ratelimit"
	"github.com/Wainainajnr/ngongtownbot/internal/session"
	"github.com/Wainainajnr/ngongtownbot/internal/store"
	"github.com/Wainainajnr/ngongtownbot/internal/validation"
	"github.com/Wainainajnr/ngongtownbot/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

//nolint:gocognit // Startup wiring stays sequential so dependency order is visible.
func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "version", cfg.Version, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load()
	if err != nil {
		return err
	}
	msgs, err := i18n.Load()
	if err != nil {
		return err
	}

	var repo store.LeadRepository
	if cfg.LeadStore {
		sqlite, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := sqlite.Close(); closeErr != nil {
				slog.Error("Failed to close lead store", "error", closeErr)
			}
		}()
		if err := sqlite.Ping(ctx); err != nil {
			return err
		}
		repo = sqlite
		slog.Info("Lead store connected", "path", cfg.DBPath)
	} else {
		slog.Info("Lead store disabled")
	}

	provider, err := completion.New(ctx, cfg.Completion)
	if err != nil {
		return err
	}
	if provider != nil {
		slog.Info("Completion fallback enabled", "provider", provider.Name())
		if closer, ok := provider.(io.Closer); ok {
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					slog.Warn("Failed to close completion provider", "error", closeErr)
				}
			}()
		}
	} else {
		slog.Info("Completion fallback disabled, unmatched input gets the fallback reply")
	}

	var tracker analytics.Tracker = analytics.NewLogTracker(logger)
	if cfg.PostHog.APIKey != "" {
		ph, err := analytics.NewPostHogTracker(analytics.PostHogConfig{
			APIKey:   cfg.PostHog.APIKey,
			Endpoint: cfg.PostHog.Endpoint,
			Version:  cfg.Version,
		})
		if err != nil {
			return err
		}
		tracker = ph
	}
	defer func() {
		if closeErr := tracker.Close(); closeErr != nil {
			slog.Warn("Failed to flush analytics", "error", closeErr)
		}
	}()

	transcript, err := convlog.New(convlog.Config{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return err
	}
	defer func() { _ = transcript.Close() }()

	limiter, err := ratelimit.New(cfg.RateLimit)
	if err != nil {
		return err
	}
	defer limiter.Stop()

	resolverOpts := []assistant.Option{assistant.WithTimeout(cfg.Completion.Timeout)}
	if provider != nil {
		resolverOpts = append(resolverOpts, assistant.WithProvider(provider))
	}
	resolver := assistant.New(cat, intent.NewRouter(cat, cfg.RoutingMode), msgs, resolverOpts...)

	pipelineOpts := []lead.Option{
		lead.WithPersistTimeout(cfg.PersistTimeout),
		lead.WithEscalationNumber(cfg.EscalationNumber),
	}
	if repo != nil {
		pipelineOpts = append(pipelineOpts, lead.WithRepository(repo))
	}
	pipeline := lead.NewPipeline(validation.New(msgs), msgs, cat, pipelineOpts...)
	// Registered after the store's deferred Close so that pending writes
	// finish first.
	defer pipeline.Wait()

	sessions := session.NewManager(session.Deps{
		Resolver:   resolver,
		Pipeline:   pipeline,
		Catalog:    cat,
		Messages:   msgs,
		Tracker:    tracker,
		Transcript: transcript,
		Channel:    "chat_ws",
	})
	sessions.StartTTLWorker(ctx, session.DefaultSweepInterval, cfg.SessionTTL)

	apiHandler := api.NewHandler(api.Deps{
		Resolver:        resolver,
		Pipeline:        pipeline,
		Catalog:         cat,
		Messages:        msgs,
		Limiter:         limiter,
		Repo:            repo,
		Tracker:         tracker,
		Transcript:      transcript,
		Version:         cfg.Version,
		DefaultLanguage: cfg.DefaultLanguage,
		MaxBodyBytes:    cfg.MaxRequestBody,
		HealthTimeout:   cfg.HealthTimeout,
	})
	wsHandler := chatws.NewHandler(sessions, chatws.Options{
		AllowedOrigins:  cfg.Origins(),
		IsDev:           cfg.IsDevelopment(),
		DefaultLanguage: cfg.DefaultLanguage,
		Limiter:         limiter,
		Tracker:         tracker,
		Messages:        msgs,
	})

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.Origins()))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	apiHandler.RegisterRoutes(r)
	r.Get("/ws/chat", wsHandler.ServeHTTP)
	r.Handle("/*", web.SPAHandler())

	// No WriteTimeout: websocket connections are long-lived.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	var pinger health.Pinger
	if repo != nil {
		pinger = repo
	}
	healthSrv := health.New(pinger, health.WithTimeout(cfg.HealthTimeout))
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return healthSrv.Serve(grpcLis) })
	g.Go(func() error {
		healthSrv.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		healthSrv.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
			return err
		}
		return nil
	})

	return g.Wait()
}
