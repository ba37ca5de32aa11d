package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"regcore/internal/accesslist"
	accessstore "regcore/internal/accesslist/store"
	"regcore/internal/epp"
	eppstore "regcore/internal/epp/store"
	"regcore/internal/label"
	labelstore "regcore/internal/label/store"
	"regcore/internal/ledger"
	ledgerstore "regcore/internal/ledger/store"
	"regcore/internal/platform/config"
	"regcore/internal/platform/database"
	"regcore/internal/platform/httpserver"
	"regcore/internal/platform/kafka"
	"regcore/internal/platform/logger"
	"regcore/internal/platform/metrics"
	"regcore/internal/platform/redis"
	"regcore/internal/platform/tcpserver"
	"regcore/internal/ratelimit"
	ratelimitstore "regcore/internal/ratelimit/store"
	"regcore/internal/registrar"
	registrarstore "regcore/internal/registrar/store"
	"regcore/internal/tariff"
	tariffstore "regcore/internal/tariff/store"
	"regcore/internal/zonecache"
)

// main loads configuration and keeps the process lifecycle small. Wiring
// lives in run so deferred cleanups execute before the exit code is set.
func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML configuration file")
	migrate := pflag.Bool("migrate", false, "apply the database schema before serving")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "epp: %v\n", err)
		os.Exit(2)
	}

	log, closeLog := logger.New(cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log, *migrate)
	stop()
	if err != nil {
		log.Error("epp server stopped", "error", err)
	}
	_ = closeLog()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, migrate bool) error {
	var tlsConfig *tls.Config
	if cfg.EPP.TLSCertFile != "" {
		var err error
		if tlsConfig, err = loadTLS(cfg.EPP); err != nil {
			return err
		}
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	if migrate {
		if err := database.Migrate(ctx, db, cfg.Database.Driver); err != nil {
			return err
		}
	}

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

	g, gctx := errgroup.WithContext(ctx)

	ledgerOpts := []ledger.Option{ledger.WithLogger(log)}
	if cfg.Kafka.Enabled() {
		publisher, err := kafka.New(ctx, cfg.Kafka, kafka.WithLogger(log), kafka.WithMetrics(m))
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer publisher.Close()
		ledgerOpts = append(ledgerOpts, ledger.WithPublisher(publisher))
		checks["kafka"] = publisher.Health
		g.Go(func() error { return ignoreCanceled(publisher.Run(gctx)) })
	}
	transactions := ledger.New(ledgerstore.NewPostgres(db), ledgerOpts...)

	check := epp.NewDomainCheck(validator, zones, eppstore.NewPostgres(db),
		epp.WithPricer(tariff.New(tariffstore.NewPostgres(db), tariff.WithLogger(log)), cfg.EPP.Currency),
	)
	engine := epp.New(cfg.EPP, transactions,
		registrar.New(registrarstore.NewPostgres(db), registrar.WithLogger(log)),
		epp.WithLogger(log),
		epp.WithMetrics(m),
		epp.WithHandler("domain:check", check),
	)

	serverOpts := []tcpserver.Option{
		tcpserver.WithLogger(log),
		tcpserver.WithMetrics(m),
		tcpserver.WithWorkers(cfg.EPP.Workers),
		tcpserver.WithMaxRequests(cfg.EPP.MaxRequests),
	}
	if tlsConfig != nil {
		serverOpts = append(serverOpts, tcpserver.WithTLS(tlsConfig))
	}
	if cfg.RateLimit.EPP > 0 {
		var windows ratelimit.Store = ratelimitstore.NewInMemory()
		if rdb != nil {
			windows = ratelimitstore.NewRedis(rdb.Client)
		}
		limiter := ratelimit.New(windows, "epp", cfg.RateLimit.EPP, cfg.RateLimit.Window, ratelimit.WithLogger(log))
		serverOpts = append(serverOpts, tcpserver.WithRateLimit(limiter))
	}
	if cfg.AccessList.Enforce {
		permitted, synchronizer := newAccessList(ctx, accessstore.NewPostgres(db), log, m)
		serverOpts = append(serverOpts, tcpserver.WithAdmit(permitted.Contains))
		g.Go(func() error { return ignoreCanceled(synchronizer.Start(gctx, cfg.AccessList.RefreshInterval)) })
	}
	server := tcpserver.New("epp", engine, serverOpts...)
	g.Go(func() error { return server.ListenAndServe(gctx, cfg.EPP.Addr) })

	if cfg.Ops.Addr != "" {
		ops := httpserver.New(cfg.Ops.Addr, httpserver.NewOpsRouter(reg, checks))
		g.Go(func() error { return httpserver.Run(gctx, ops) })
	}

	log.InfoContext(ctx, "starting epp server", "addr", cfg.EPP.Addr, "server_id", cfg.EPP.ServerID)
	return g.Wait()
}

// newAccessList loads the whitelist once before the listener accepts, so
// permitted registrars are not refused while the first refresh is pending.
// A failed load is logged; the synchronizer retries on its interval.
func newAccessList(ctx context.Context, source accesslist.Source, log *slog.Logger, m *metrics.Metrics) (*accesslist.PermittedIPs, *accesslist.Synchronizer) {
	permitted := accesslist.NewPermittedIPs()
	synchronizer := accesslist.NewSynchronizer(source, permitted,
		accesslist.WithLogger(log),
		accesslist.WithMetrics(m),
	)
	if err := synchronizer.Refresh(ctx); err != nil {
		log.ErrorContext(ctx, "initial access list refresh failed", "error", err)
	}
	return permitted, synchronizer
}

func loadTLS(cfg config.EPP) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
