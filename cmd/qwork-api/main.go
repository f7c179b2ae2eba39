package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"

	"github.com/songzhibin97/qwork/internal/config"
	"github.com/songzhibin97/qwork/internal/filestore"
	"github.com/songzhibin97/qwork/internal/log/driver/stdout"
	"github.com/songzhibin97/qwork/internal/market/auth"
	"github.com/songzhibin97/qwork/internal/market/coordinator"
	"github.com/songzhibin97/qwork/internal/market/notify"
	"github.com/songzhibin97/qwork/internal/market/repository/memory"
	"github.com/songzhibin97/qwork/internal/market/repository/postgres"
	"github.com/songzhibin97/qwork/internal/market/server"
	"github.com/songzhibin97/qwork/internal/market/service"
	"github.com/songzhibin97/qwork/internal/ratelimit"
	storemem "github.com/songzhibin97/qwork/internal/store/driver/memory"
	storeredis "github.com/songzhibin97/qwork/internal/store/driver/redis"
	"github.com/songzhibin97/qwork/internal/tracing"
	"github.com/songzhibin97/qwork/pkg/log"
	"github.com/songzhibin97/qwork/pkg/market"
	"github.com/songzhibin97/qwork/pkg/store"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "Configuration file path")
	version    = flag.Bool("version", false, "Show version information")
)

const (
	// Version information
	Version   = "v1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("qwork-api %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	logCfg, err := stdout.FromSettings(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		stdlog.Fatalf("Invalid logging configuration: %v", err)
	}
	logger, err := stdout.New(logCfg)
	if err != nil {
		stdlog.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("qwork-api exited with error", log.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	kv, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	files, err := filestore.NewOS(cfg.Uploads.Dir)
	if err != nil {
		return err
	}

	tp, err := tracing.NewTracerProvider(&cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Tracer shutdown failed", log.Error(err))
		}
	}()

	var (
		registry *prometheus.Registry
		tracer   trace.Tracer
		opts     []coordinator.Option
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, coordinator.WithMetrics(coordinator.NewMetrics(cfg.Metrics.Namespace, registry)))
	}
	if tp.IsEnabled() {
		tracer = tp.Tracer("qwork-api")
		opts = append(opts, coordinator.WithTracer(tracer))
	}
	coord := coordinator.New(repo, files, logger, opts...)

	if cfg.Reconcile.Enabled {
		reconciler := coordinator.NewReconciler(repo, files, logger, cfg.Reconcile.Grace, opts...)
		go reconciler.Start(ctx, cfg.Reconcile.Interval)
	}

	notifier, err := openNotifier(cfg, logger)
	if err != nil {
		return err
	}
	async := notify.NewAsyncNotifier(notifier, cfg.Mail.QueueSize, logger)
	defer async.Close()
	mailer := notify.NewMailer(async, cfg.Mail.ClientURL)

	tokens, err := auth.NewJWTManager(auth.Config{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
		Issuer:        cfg.Auth.Issuer,
	})
	if err != nil {
		return err
	}
	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)

	svcCfg := service.Config{
		BaseURL: cfg.Uploads.BaseURL,
		Media: filestore.MediaOptions{
			MaxImageDimension: cfg.Uploads.MaxImageDimension,
			JPEGQuality:       cfg.Uploads.JPEGQuality,
		},
		Cooldown:        cfg.Moderation.Cooldown,
		RequireDocument: cfg.Moderation.RequireDocument,
		ResetTokenTTL:   cfg.Auth.ResetTokenTTL,
	}
	accounts := service.NewAccountService(repo, coord, hasher, tokens, auth.NewDenylist(kv), mailer, svcCfg, logger)
	portfolios := service.NewPortfolioService(repo, coord, mailer, svcCfg, logger)
	admins := service.NewAdminService(repo, hasher, tokens, mailer, logger)

	if b := cfg.Auth.BootstrapAdmin; b.Email != "" {
		_, created, err := admins.EnsureAdmin(ctx, b.Email, b.Password, b.Name)
		if err != nil {
			return fmt.Errorf("failed to bootstrap admin: %w", err)
		}
		if created {
			logger.Info("Bootstrap admin created", log.String(log.FieldEmail, b.Email))
		}
	}

	deps := server.Dependencies{
		Repo:       repo,
		Store:      kv,
		Files:      files,
		Tokens:     tokens,
		Accounts:   accounts,
		Portfolios: portfolios,
		Admins:     admins,
		Registry:   registry,
		Tracer:     tracer,
	}
	if cfg.RateLimit.Enabled {
		deps.Limiter = ratelimit.NewLimiter(kv, &ratelimit.Config{
			MaxRequests: cfg.RateLimit.MaxRequests,
			WindowSize:  cfg.RateLimit.WindowSize,
			KeyPrefix:   "ratelimit:",
		}, logger)
	}

	srv, err := server.NewServer(cfg, deps, logger)
	if err != nil {
		return err
	}
	errCh, err := srv.Start()
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutting down qwork-api")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func openRepository(cfg *config.Config, logger log.Logger) (market.Repository, error) {
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("Using the in-memory repository, data is lost on restart")
		return memory.NewRepository(), nil
	case "postgres", "":
		repo, err := postgres.NewRepository(&postgres.Config{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			MigrationPath:   cfg.Database.MigrationPath,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := repo.Migrate(); err != nil {
				repo.Close()
				return nil, err
			}
			logger.Info("Database migrations applied")
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

func openStore(cfg *config.Config) (store.AtomicStore, error) {
	storeCfg := store.DefaultConfig()
	storeCfg.Type = cfg.Store.Type
	storeCfg.KeyPrefix = cfg.Store.KeyPrefix

	switch cfg.Store.Type {
	case "memory", "":
		return storemem.New(storeCfg), nil
	case "redis":
		r := cfg.Store.Redis
		storeCfg.Address = r.Address
		storeCfg.Password = r.Password
		storeCfg.Database = r.DB
		storeCfg.PoolSize = r.PoolSize
		storeCfg.DialTimeout = r.DialTimeout
		storeCfg.ReadTimeout = r.ReadTimeout
		storeCfg.WriteTimeout = r.WriteTimeout
		return storeredis.New(storeCfg)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Store.Type)
	}
}

func openNotifier(cfg *config.Config, logger log.Logger) (notify.Notifier, error) {
	switch cfg.Mail.Driver {
	case "log", "":
		return notify.NewLogNotifier(logger), nil
	case "smtp":
		return notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.Mail.SMTP.Host,
			Port:     cfg.Mail.SMTP.Port,
			Username: cfg.Mail.SMTP.Username,
			Password: cfg.Mail.SMTP.Password,
			From:     cfg.Mail.From,
		})
	default:
		return nil, fmt.Errorf("unsupported mail driver: %s", cfg.Mail.Driver)
	}
}
