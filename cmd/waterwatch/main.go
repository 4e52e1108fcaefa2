package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/waterwatch/internal/catalog"
	"github.com/hamed0406/waterwatch/internal/config"
	"github.com/hamed0406/waterwatch/internal/dates"
	"github.com/hamed0406/waterwatch/internal/httpapi"
	apimw "github.com/hamed0406/waterwatch/internal/httpapi/middleware"
	"github.com/hamed0406/waterwatch/internal/lifecycle"
	"github.com/hamed0406/waterwatch/internal/logging"
	"github.com/hamed0406/waterwatch/internal/metrics"
	"github.com/hamed0406/waterwatch/internal/notify"
	"github.com/hamed0406/waterwatch/internal/outage"
	"github.com/hamed0406/waterwatch/internal/pipeline"
	"github.com/hamed0406/waterwatch/internal/scheduler"
	"github.com/hamed0406/waterwatch/internal/state"
	"github.com/hamed0406/waterwatch/internal/store"
	"github.com/hamed0406/waterwatch/internal/store/file"
	"github.com/hamed0406/waterwatch/internal/store/memory"
	"github.com/hamed0406/waterwatch/internal/store/postgres"
	"github.com/hamed0406/waterwatch/internal/store/redis"
	"github.com/hamed0406/waterwatch/internal/tabs"
	"github.com/hamed0406/waterwatch/internal/upstream"
)

func main() {
	cfgPath := flag.String("config", "waterwatch.yaml", "path to the YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.Log.Dir, cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", zap.Error(err))
		_ = logger.Sync()
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(cfg.Metrics.Enabled, reg)

	kv, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Warn("store_close_error", zap.Error(err))
		}
	}()
	st := state.New(kv, cfg.DefaultSettings(), logger)

	cat, err := catalog.Default()
	if err != nil {
		return err
	}

	client := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout, cfg.Upstream.DateFrom, cfg.Upstream.DateTo, logger)
	fetcher := upstream.NewCachedFetcher(client, cfg.Upstream.CacheTTL, cfg.Upstream.CacheSizeMB, rec, logger)
	agg := outage.NewAggregator(fetcher, cfg.Upstream.NoInterruptionsPhrase, dates.Location(cfg.Upstream.Timezone), rec, logger)

	hub := tabs.NewHub(cfg.Server.AllowedOrigins, logger)
	defer hub.Close()

	system := notify.Multi{notify.NewLog(logger)}
	if s := notify.NewSlack(cfg.Notify.SlackWebhook); s != nil {
		system = append(system, s)
	}
	if w := notify.NewWebhook(cfg.Notify.WebhookURL); w != nil {
		system = append(system, w)
	}
	disp := notify.NewDispatcher(hub, system, rec, logger)

	pipe := pipeline.New(st, agg, disp, pipeline.Options{
		NoInterruptionsPhrase: cfg.Upstream.NoInterruptionsPhrase,
		SerializeRuns:         cfg.Pipeline.SerializeRuns,
	}, rec, logger)

	sched := scheduler.New(ctx, logger)
	defer sched.Stop()

	rt := lifecycle.New(pipe, st, sched, lifecycle.Options{
		AlarmName:            cfg.Alarm.Name,
		DefaultPeriodMinutes: cfg.Alarm.DefaultPeriodMinutes,
		DevPollInterval:      cfg.Alarm.DevPollInterval,
	}, logger)
	hub.OnCheck(func(ctx context.Context) error {
		_, err := rt.RequestCheck(ctx)
		return err
	})

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	api := httpapi.NewServer(logger, st, rt, cat, disp, hub, metricsHandler)
	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.Router(httpapi.RouterOptions{
			Keys:           apimw.Keys{Public: cfg.Server.PublicKeys, Admin: cfg.Server.AdminKeys},
			AllowedOrigins: cfg.Server.AllowedOrigins,
			PublicRPM:      cfg.Server.PublicRPM,
			PublicBurst:    cfg.Server.PublicBurst,
			AdminRPM:       cfg.Server.AdminRPM,
			AdminBurst:     cfg.Server.AdminBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Server.Addr), zap.String("store", cfg.Store.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("start lifecycle: %w", err)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting_down")
	rt.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Close()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.KV, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "file":
		return file.Open(cfg.FilePath, logger)
	case "redis":
		return redis.New(ctx, cfg.RedisAddr, cfg.RedisPrefix, logger)
	case "postgres":
		return postgres.New(ctx, cfg.DatabaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
