package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"regcore/internal/label"
	labelstore "regcore/internal/label/store"
	"regcore/internal/platform/config"
	"regcore/internal/platform/database"
	"regcore/internal/platform/httpserver"
	"regcore/internal/platform/logger"
	"regcore/internal/platform/metrics"
	"regcore/internal/platform/redis"
	"regcore/internal/platform/tcpserver"
	"regcore/internal/ratelimit"
	ratelimitstore "regcore/internal/ratelimit/store"
	"regcore/internal/whois"
	whoisstore "regcore/internal/whois/store"
	"regcore/internal/zonecache"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML configuration file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "whois: %v\n", err)
		os.Exit(2)
	}

	log, closeLog := logger.New(cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()
	if err != nil {
		log.Error("whois server stopped", "error", err)
	}
	_ = closeLog()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	checks := map[string]httpserver.HealthCheck{"db": db.PingContext}

	zoneOpts := []zonecache.Option{zonecache.WithLogger(log), zonecache.WithMetrics(m)}
	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		log.WarnContext(ctx, "redis unavailable, zone cache stays in process", "error", err)
	}
	if rdb != nil {
		defer rdb.Close()
		zoneOpts = append(zoneOpts, zonecache.WithRedis(rdb.Client))
		checks["redis"] = rdb.Health
	}
	zones := zonecache.New(labelstore.NewPostgres(db), cfg.Registry.ZoneCacheTTL, zoneOpts...)
	validator := label.NewValidator(zones,
		label.WithLogger(log),
		label.WithTestZones(cfg.Registry.TestZones),
		label.WithPatternTimeout(cfg.Registry.PatternTimeout),
	)

	engine := whois.New(cfg.WHOIS, cfg.Registry.ROID, whoisstore.NewPostgres(db), validator, zones,
		whois.WithLogger(log),
		whois.WithMetrics(m),
	)
	serverOpts := []tcpserver.Option{
		tcpserver.WithLogger(log),
		tcpserver.WithMetrics(m),
		tcpserver.WithWorkers(cfg.WHOIS.Workers),
		tcpserver.WithMaxRequests(cfg.WHOIS.MaxRequests),
	}
	if cfg.RateLimit.WHOIS > 0 {
		var windows ratelimit.Store = ratelimitstore.NewInMemory()
		if rdb != nil {
			windows = ratelimitstore.NewRedis(rdb.Client)
		}
		limiter := ratelimit.New(windows, "whois", cfg.RateLimit.WHOIS, cfg.RateLimit.Window, ratelimit.WithLogger(log))
		serverOpts = append(serverOpts, tcpserver.WithRateLimit(limiter))
	}
	server := tcpserver.New("whois", engine, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.ListenAndServe(gctx, cfg.WHOIS.Addr) })
	if cfg.Ops.Addr != "" {
		ops := httpserver.New(cfg.Ops.Addr, httpserver.NewOpsRouter(reg, checks))
		g.Go(func() error { return httpserver.Run(gctx, ops) })
	}

	log.InfoContext(ctx, "starting whois server", "addr", cfg.WHOIS.Addr, "privacy", cfg.WHOIS.Privacy)
	return g.Wait()
}
