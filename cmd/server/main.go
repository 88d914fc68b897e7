package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wondr/rembg/docs"
	"github.com/wondr/rembg/internal/audit"
	"github.com/wondr/rembg/internal/config"
	"github.com/wondr/rembg/internal/database"
	"github.com/wondr/rembg/internal/engine"
	"github.com/wondr/rembg/internal/events"
	"github.com/wondr/rembg/internal/handlers"
	"github.com/wondr/rembg/internal/imaging"
	"github.com/wondr/rembg/internal/logging"
	"github.com/wondr/rembg/internal/metrics"
	"github.com/wondr/rembg/internal/services"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// @title Background Removal API
// @version 1.0
// @description Credit-metered background removal
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	docs.SwaggerInfo.Title = "Background Removal API"
	docs.SwaggerInfo.Version = "1.0"

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	auditLogger := audit.NewLogger(log)

	var (
		ledger       services.LedgerClient
		healthChecks []handlers.HealthCheck
		rdb          = lazyRedis(cfg.Redis, log)
	)
	defer rdb.close()

	switch cfg.Ledger.Backend {
	case config.BackendSupabase:
		ledger = services.NewSupabaseLedger(cfg.Supabase, &http.Client{Timeout: cfg.Ledger.CallTimeout})
	case config.BackendPostgres:
		db, err := database.InitDB(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer db.Close()

		pg := services.NewPostgresLedger(db)
		if cfg.Database.EnsureSchema {
			if err := pg.EnsureSchema(ctx); err != nil {
				return err
			}
		}
		ledger = pg
		healthChecks = append(healthChecks, handlers.HealthCheck{Name: "ledger", Check: db.PingContext})
	case config.BackendRedis:
		client, err := rdb.get(ctx)
		if err != nil {
			return err
		}
		ledger = services.NewRedisLedger(client)
		healthChecks = append(healthChecks, handlers.HealthCheck{Name: "ledger", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	case config.BackendMemory:
		log.Warn("[STARTUP] using in-memory ledger, balances will not survive a restart")
		ledger = services.NewMemoryLedger(nil)
	}

	credits := services.NewCreditCoordinator(ledger, cfg.Ledger, log, auditLogger, m)
	if cfg.Ledger.Consistency == config.ConsistencyOverwrite {
		log.Warn("[STARTUP] ledger consistency is 'overwrite', concurrent requests for one user can lose updates")
	}

	publisher, err := events.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
	if err != nil {
		return err
	}
	defer publisher.Close()
	credits.SetPublisher(publisher)

	var worker *services.RefundWorker
	if cfg.Refunds.Enabled {
		client, err := rdb.get(ctx)
		if err != nil {
			return err
		}
		queue := services.NewRefundQueue(client)
		credits.SetRefundQueue(queue)
		worker = services.NewRefundWorker(queue, credits, cfg.Refunds, log, auditLogger, m)
	}

	eng, err := engine.InitEngine(ctx, engine.Config{
		URL:          cfg.Engine.URL,
		APIKey:       cfg.Engine.APIKey,
		Timeout:      cfg.Engine.Timeout,
		ProbeOnStart: cfg.Engine.ProbeOnStart,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	healthChecks = append(healthChecks, handlers.HealthCheck{Name: "engine", Check: eng.Health})

	verifier := services.NewTokenVerifier(cfg.JWT.SecretKey, cfg.JWT.IdentityClaim)
	codec := imaging.NewCodec(cfg.Image)
	removal := services.NewRemovalService(verifier, credits, codec, eng, log, m)

	router := handlers.NewRouter(handlers.RouterConfig{
		Removal:        handlers.NewRemovalHandler(removal, credits, cfg.Server.MaxBodyBytes, log),
		Verifier:       verifier,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		HealthChecks:   healthChecks,
		Log:            log,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("[STARTUP] server starting",
			zap.String("addr", server.Addr),
			zap.String("ledger", cfg.Ledger.Backend),
			zap.String("consistency", cfg.Ledger.Consistency),
			zap.Bool("refund_queue", worker != nil))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if worker != nil {
		g.Go(func() error {
			return worker.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("[SHUTDOWN] server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("[SHUTDOWN] server stopped")
	return nil
}
