package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/Skufu/triage/internal/attribution"
	"github.com/Skufu/triage/internal/cache"
	"github.com/Skufu/triage/internal/config"
	"github.com/Skufu/triage/internal/feedback"
	"github.com/Skufu/triage/internal/inference"
	"github.com/Skufu/triage/internal/logger"
	"github.com/Skufu/triage/internal/metrics"
	"github.com/Skufu/triage/internal/pipeline"
	"github.com/Skufu/triage/internal/redflag"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}

	gin.SetMode(cfg.GinMode)
	logger.InitLogger(cfg.LogLevel, cfg.AppName)
	metrics.InitMetrics(metrics.Options{
		Host:         cfg.TelegrafHost,
		Port:         cfg.TelegrafPort,
		SamplingRate: cfg.MetricsSamplingRate,
		Env:          cfg.AppEnv,
		Service:      cfg.AppName,
	})

	ctx := context.Background()
	var (
		db    HealthChecker
		store FeedbackSaver
	)
	if cfg.EnableDB {
		pool, err := connectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		defer pool.Close()
		fs := feedback.NewStore(pool)
		if err := fs.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("feedback schema setup failed")
		}
		db, store = pool, fs
	}

	svc, closeCache, err := buildPipeline(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("pipeline setup failed")
	}
	defer closeCache()

	router := setupRouter(db, svc, store, cfg.MaxBodyBytes)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	logger.Info(fmt.Sprintf("server listening on :%s", cfg.Port))
	waitForShutdown(server)
}

// buildPipeline assembles the analysis stages from cfg. The returned func
// releases the result cache.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, func(), error) {
	caps := inference.DetectCapabilities(inference.CapabilityOptions{
		DisableNumericRuntime:      !cfg.NumericRuntimeEnabled,
		DisableIntegratedGradients: !cfg.IGEnabled,
		DisableKernelSHAP:          !cfg.SHAPEnabled,
	})
	engine := inference.NewEngine(inference.NewLoader(cfg.ModelWeightsPath), caps)
	if cfg.ModelEagerLoad && caps.NumericRuntime {
		if _, err := engine.Model(); err != nil {
			return nil, nil, err
		}
	}

	rules := slices.Clone(redflag.DefaultRules)
	if cfg.RedFlagRulesPath != "" {
		extra, err := redflag.LoadRules(cfg.RedFlagRulesPath)
		if err != nil {
			return nil, nil, err
		}
		rules = append(rules, extra...)
		logger.Info(fmt.Sprintf("Loaded %d red flag rules from %s", len(extra), cfg.RedFlagRulesPath))
	}
	evaluator, err := redflag.New(rules)
	if err != nil {
		return nil, nil, err
	}

	explainer := attribution.New(caps, attribution.Options{
		Steps:      cfg.IGSteps,
		Background: attribution.Background(cfg.SHAPBackground),
	})

	var opts []pipeline.Option
	closeCache := func() {}
	if cfg.CacheEnabled {
		c, err := cache.New(cfg.CacheSize, cfg.CacheTTLSec)
		if err != nil {
			return nil, nil, fmt.Errorf("create cache: %w", err)
		}
		opts = append(opts, pipeline.WithCache(c))
		closeCache = c.Close
	}

	log.Info().
		Bool("numericRuntime", caps.NumericRuntime).
		Bool("integratedGradients", caps.IntegratedGradients).
		Bool("kernelShap", caps.KernelSHAP).
		Bool("cache", cfg.CacheEnabled).
		Msg("Pipeline configured")
	return pipeline.New(engine, explainer, evaluator, opts...), closeCache, nil
}

func connectDB(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

func waitForShutdown(server *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", err)
	}
}
