package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aegismesh/aegis-meta/internal/advisors"
	"github.com/aegismesh/aegis-meta/internal/api"
	"github.com/aegismesh/aegis-meta/internal/cache"
	"github.com/aegismesh/aegis-meta/internal/confidence"
	"github.com/aegismesh/aegis-meta/internal/config"
	"github.com/aegismesh/aegis-meta/internal/dispatch"
	"github.com/aegismesh/aegis-meta/internal/engine"
	"github.com/aegismesh/aegis-meta/internal/memory"
	"github.com/aegismesh/aegis-meta/internal/metrics"
	"github.com/aegismesh/aegis-meta/internal/models"
	"github.com/aegismesh/aegis-meta/internal/recovery"
	"github.com/aegismesh/aegis-meta/internal/routing"
	"github.com/aegismesh/aegis-meta/internal/safety"
	"github.com/aegismesh/aegis-meta/internal/services"
	"github.com/aegismesh/aegis-meta/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	format := "text"
	if cfg.Logging.JSON {
		format = "json"
	}
	logger := utils.NewLogger(cfg.Logging.Level, format)
	logger.Info("starting aegis-meta", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	var valkeyCloser cache.Provider
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkey(cache.ValkeyOptions{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		}, logger)
		if err != nil {
			logger.Warn("valkey cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			valkeyCloser = provider
		}
	}
	if valkeyCloser != nil {
		defer valkeyCloser.Close()
	}

	policy, err := safety.LoadPolicy(cfg.Safety.PolicyPath)
	if err != nil {
		logger.Error("failed to load safety policy", slog.String("path", cfg.Safety.PolicyPath), slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Safety.MinReplicas > 0 {
		policy.MinReplicas = cfg.Safety.MinReplicas
	}
	if cfg.Safety.MaxReplicas > 0 {
		policy.MaxReplicas = cfg.Safety.MaxReplicas
	}
	validator := safety.NewValidator(policy, utils.ComponentLogger(logger, "safety"))

	var archive memory.Archive
	if cfg.Memory.SQLitePath != "" {
		sqliteArchive, err := memory.NewSQLiteArchive(cfg.Memory.SQLitePath, cfg.Memory.ArchiveMaxSize)
		if err != nil {
			logger.Error("failed to open decision archive", slog.String("path", cfg.Memory.SQLitePath), slog.Any("error", err))
			os.Exit(1)
		}
		archive = sqliteArchive
		logger.Info("decision archive on sqlite", slog.String("path", cfg.Memory.SQLitePath))
	}

	mem := memory.NewMemory(memory.Options{
		MaxEvents:      cfg.Memory.MaxEvents,
		MaxDecisions:   cfg.Memory.MaxDecisions,
		EmbeddingDim:   cfg.Memory.EmbeddingDim,
		ArchiveMaxSize: cfg.Memory.ArchiveMaxSize,
		Archive:        archive,
		Cache:          cacheProvider,
		SimilarTTL:     cfg.Cache.SimilarDecisionsTTL,
		Logger:         utils.ComponentLogger(logger, "memory"),
	})
	defer mem.Close()

	estimator := confidence.NewEstimator(utils.ComponentLogger(logger, "confidence"))
	router := routing.NewAdaptiveRouter(models.AgentType(cfg.Engine.DefaultAgent), utils.ComponentLogger(logger, "routing"))

	advisorClients := make([]engine.Advisor, 0, len(cfg.Advisors))
	for _, a := range cfg.Advisors {
		advisorClients = append(advisorClients, advisors.NewHTTPAdvisor(a.Name, a.BaseURL, a.RecommendPath, a.HealthPath, a.Timeout))
		logger.Info("advisor registered", slog.String("name", a.Name), slog.String("base_url", a.BaseURL))
	}

	eng := engine.NewEngine(engine.Options{
		Logger:          utils.ComponentLogger(logger, "engine"),
		Router:          router,
		Estimator:       estimator,
		Validator:       validator,
		Memory:          mem,
		Recovery:        recovery.NewCoordinator(),
		Dispatcher:      dispatch.NewGateway(utils.ComponentLogger(logger, "dispatch")),
		Advisors:        advisorClients,
		Cache:           cacheProvider,
		AdvisorTimeout:  cfg.Engine.AdvisorTimeout,
		Priority:        cfg.Engine.Priority,
		IntakeCapacity:  cfg.Engine.IntakeCapacity,
		HealthInterval:  cfg.Engine.HealthInterval,
		SummaryInterval: cfg.Engine.SummaryInterval,
		MiningInterval:  cfg.Engine.MiningInterval,
	})

	service := services.NewMetaService(logger, eng, mem, estimator, validator)

	server, err := api.NewServer(cfg.Server)
	if err != nil {
		logger.Error("failed to create ops server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.Start(ctx)

	if cfg.Safety.Watch {
		go func() {
			if err := validator.WatchPolicy(ctx, cfg.Safety.PolicyPath); err != nil {
				logger.Warn("safety policy watcher stopped", slog.Any("error", err))
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/statistics", func(w http.ResponseWriter, r *http.Request) {
			stats, err := service.Statistics()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(stats); err != nil {
				logger.Warn("statistics encoding failed", slog.Any("error", err))
			}
		})
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("ops server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	eng.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("aegis-meta stopped")
}
