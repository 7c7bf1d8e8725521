// Package app assembles the reconciliation engine and its collaborators from
// configuration. Both the HTTP server and reconcilectl start from here.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"golang.org/x/crypto/bcrypt"

	"github.com/vouh/Course-corner-sub000/internal/cache"
	"github.com/vouh/Course-corner-sub000/internal/config"
	"github.com/vouh/Course-corner-sub000/internal/db"
	"github.com/vouh/Course-corner-sub000/internal/jobs"
	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/provider"
	"github.com/vouh/Course-corner-sub000/internal/realtime"
	"github.com/vouh/Course-corner-sub000/internal/reconcile"
	"github.com/vouh/Course-corner-sub000/internal/repo"
	"github.com/vouh/Course-corner-sub000/internal/services"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger

	Transactions services.TransactionStore
	Engine       *reconcile.Engine
	Hub          *realtime.Hub

	Auth       *services.AuthService
	Intake     *services.IntakeService
	Status     *services.StatusService
	Callbacks  *services.CallbackService
	Redemption *services.RedemptionService
	Sweeper    *services.Sweeper
	Referrals  *services.ReferralDispatcher

	// Enqueuer and Processor are nil when no Redis is configured.
	Enqueuer  *jobs.Enqueuer
	Processor *jobs.Processor

	closers []func()
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	var (
		users     services.UserStore
		sink      services.ReferralSink
		recorder  services.CallbackRecorder
		rdb       *redis.Client
		sessCache cache.SessionCache
	)

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pg, err := db.Connect(ctx, cfg.DBURL, int32(cfg.DBMaxConns))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		if err := db.EnsureSchema(ctx, pg.Pool); err != nil {
			a.Close()
			return nil, err
		}
		if err := db.EnsureOperator(ctx, pg.Pool, cfg.RequestTimeout, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			a.Close()
			return nil, err
		}

		gdb, err := db.ConnectGorm(ctx, cfg.DBURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, gdb.Close)
		if err := gdb.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}

		referrers := repo.NewReferrerRepo(gdb.DB, cfg.RequestTimeout)
		if err := referrers.EnsureReferrers(ctx, cfg.ReferrerCodes); err != nil {
			a.Close()
			return nil, err
		}

		a.Transactions = repo.NewTransactionRepo(pg.Pool, cfg.RequestTimeout)
		users = repo.NewUserRepo(pg.Pool, cfg.RequestTimeout)
		sink = referrers
		recorder = repo.NewCallbackEventRepo(gdb.DB, cfg.RequestTimeout)
	default:
		memUsers, err := memoryOperators(cfg)
		if err != nil {
			return nil, err
		}
		a.Transactions = repo.NewMemoryTransactionRepo()
		users = memUsers
		sink = repo.NewMemoryReferrerRepo(cfg.ReferrerCodes...)
		recorder = repo.NewMemoryCallbackEventRepo()
	}

	if cfg.JobsEnabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}

	if cfg.CacheDriver == config.DriverRedis {
		sessCache = cache.NewRedis(rdb, cfg.CacheTTL, logger)
	} else {
		sessCache = cache.NewLRU(cfg.CacheSize, cfg.CacheTTL)
	}

	client := provider.NewDaraja(provider.DarajaConfig{
		BaseURL:        cfg.Provider.BaseURL,
		ConsumerKey:    cfg.Provider.ConsumerKey,
		ConsumerSecret: cfg.Provider.ConsumerSecret,
		ShortCode:      cfg.Provider.ShortCode,
		Passkey:        cfg.Provider.Passkey,
		CallbackURL:    cfg.Provider.CallbackURL,
		Timeout:        cfg.Provider.Timeout,
	})

	a.Hub = realtime.NewHub(cfg.PollQueryAfter, logger)
	a.Referrals = services.NewReferralDispatcher(a.Transactions, sink, cfg.ReferralCommission, logger)
	a.Engine = reconcile.NewEngine(a.Transactions, logger,
		reconcile.WithCreditDispatcher(a.Referrals),
		reconcile.WithObserver(cache.Refresher{Cache: sessCache}),
		reconcile.WithObserver(a.Hub),
	)

	a.Auth = services.NewAuthService(users, services.AuthConfig{Secret: cfg.JWTSecret, Expiry: cfg.JWTExpiry})
	a.Intake = services.NewIntakeService(a.Transactions, sessCache, client, a.Engine, logger, cfg.Provider.Timeout)
	a.Status = services.NewStatusService(a.Transactions, sessCache, client, a.Engine, logger, cfg.PollQueryAfter, cfg.Provider.Timeout)
	a.Callbacks = services.NewCallbackService(a.Transactions, sessCache, a.Engine, recorder, logger)
	a.Redemption = services.NewRedemptionService(a.Transactions, logger)
	a.Sweeper = services.NewSweeper(a.Transactions, client, a.Engine, logger, services.SweepConfig{
		MinAge:          cfg.SweepMinAge,
		ExpireAfter:     cfg.SweepExpireAfter,
		QueryInterval:   cfg.SweepQueryInterval,
		BatchSize:       cfg.SweepBatchSize,
		ProviderTimeout: cfg.Provider.Timeout,
	})

	if rdb != nil {
		asynqClient := asynq.NewClient(a.RedisConnOpt())
		a.closers = append(a.closers, func() { _ = asynqClient.Close() })
		a.Enqueuer = jobs.NewEnqueuer(asynqClient)
		a.Referrals.SetRetryQueue(a.Enqueuer)
		a.Processor = jobs.NewProcessor(a.Sweeper, a.Referrals, jobs.NewRedisLocker(rdb), cfg.SweepLockTTL, logger)
	}

	return a, nil
}

func (a *App) RedisConnOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.Config.RedisAddr,
		Password: a.Config.RedisPassword,
		DB:       a.Config.RedisDB,
	}
}

// NewWorker builds the background worker. It returns nil when jobs are
// disabled.
func (a *App) NewWorker() (*jobs.Worker, error) {
	if a.Processor == nil {
		return nil, nil
	}
	return jobs.NewWorker(a.RedisConnOpt(), a.Processor, jobs.WorkerConfig{
		Concurrency: a.Config.WorkerConcurrency,
		SweepEvery:  a.Config.SweepEvery,
	}, a.Logger)
}

// NewLocalScheduler runs sweeps and pending credit redelivery in-process,
// for deployments without Redis.
func (a *App) NewLocalScheduler() *jobs.LocalScheduler {
	return jobs.NewLocalScheduler(a.Sweeper, a.Referrals, a.Config.SweepEvery, a.Logger)
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func memoryOperators(cfg *config.Config) (*repo.MemoryUserRepo, error) {
	if cfg.AdminPassword == "" {
		return repo.NewMemoryUserRepo(), nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash operator password: %w", err)
	}
	now := time.Now()
	return repo.NewMemoryUserRepo(models.User{
		ID:           "operator",
		Username:     cfg.AdminUsername,
		Role:         "admin",
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}), nil
}
