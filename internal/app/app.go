// Package app assembles the wallet service graph shared by the API server
// and the worker.
package app

import (
	"fmt"
	"sort"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/vultiwallet/config"
	"github.com/vultisig/vultiwallet/internal/bus"
	"github.com/vultisig/vultiwallet/internal/explorer"
	"github.com/vultisig/vultiwallet/internal/tasks"
	"github.com/vultisig/vultiwallet/internal/txproposal"
	"github.com/vultisig/vultiwallet/internal/walletcache"
	"github.com/vultisig/vultiwallet/internal/walletlock"
	"github.com/vultisig/vultiwallet/service"
	"github.com/vultisig/vultiwallet/storage"
	"github.com/vultisig/vultiwallet/storage/postgres"
)

type App struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Redis     *redis.Client
	DB        *postgres.PostgresBackend
	Explorers map[string]*explorer.Cached
	Bus       *bus.Redis
	Notifier  *bus.Notifier
	Cache     *walletcache.Manager
	Wallets   *service.WalletService
	Queue     *asynq.Client
	Submitter *tasks.Submitter
	SDClient  statsd.ClientInterface
}

// Explorers builds one cached explorer per configured network.
func Explorers(cfg *config.Config, logger *logrus.Logger) (map[string]*explorer.Cached, error) {
	networks := make([]string, 0, len(cfg.Explorer))
	for network := range cfg.Explorer {
		networks = append(networks, network)
	}
	sort.Strings(networks)

	out := make(map[string]*explorer.Cached, len(networks))
	for _, network := range networks {
		ec := cfg.Explorer[network]
		insight, err := explorer.NewInsight(explorer.Config{
			Hosts:             ec.Hosts,
			APIPrefix:         ec.APIPrefix,
			Network:           network,
			Timeout:           ec.Timeout,
			RequestsPerSecond: ec.RequestsPerSecond,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("fail to create %s explorer: %w", network, err)
		}
		out[network] = explorer.NewCached(insight, cfg.Wallet.BlockheightCacheTime, logger)
	}
	return out, nil
}

func New(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	redisClient, err := storage.NewRedisClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("fail to connect to redis: %w", err)
	}
	db, err := postgres.NewPostgresBackend(cfg.Database.DSN, logger)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("fail to connect to database: %w", err)
	}
	explorers, err := Explorers(cfg, logger)
	if err != nil {
		_ = redisClient.Close()
		_ = db.Close()
		return nil, err
	}
	registry := explorer.Registry{}
	for network, e := range explorers {
		registry[network] = e
	}

	sdClient, err := statsd.New(cfg.Datadog.Host + ":" + cfg.Datadog.Port)
	if err != nil {
		_ = redisClient.Close()
		_ = db.Close()
		return nil, fmt.Errorf("fail to create statsd client: %w", err)
	}

	notifyBus := bus.NewRedis(redisClient, "", logger)
	notifier := bus.NewNotifier(db, notifyBus, logger)

	cacheCfg := walletcache.DefaultConfig()
	cacheCfg.TwoStepBalanceThreshold = cfg.Wallet.TwoStepBalanceThreshold
	cacheCfg.HistoryLimit = cfg.Wallet.HistoryLimit
	cacheCfg.HistoryCacheAddressThresh = cfg.Wallet.HistoryCacheAddressThresh
	cacheCfg.ConfirmationsToCache = cfg.Wallet.ConfirmationsToCache
	cache := walletcache.NewManager(cacheCfg, db, registry, notifier, logger)

	engineCfg := txproposal.DefaultConfig()
	engineCfg.Selection = cfg.Wallet.SelectionPolicy(0, 0, "")
	engineCfg.MinFeePerKb = cfg.Wallet.MinFeePerKb
	engineCfg.MaxFeePerKb = cfg.Wallet.MaxFeePerKb
	engineCfg.BackoffOffset = cfg.Wallet.BackoffOffset
	engineCfg.BackoffTime = cfg.Wallet.BackoffTime
	engineCfg.DeleteLockTime = cfg.Wallet.DeleteLockTime
	engine := txproposal.NewEngine(engineCfg, db, cache, notifier, logger)

	svcCfg := service.Config{
		LockWait:          cfg.Lock.WaitTime,
		MaxMainAddressGap: cfg.Wallet.MaxMainAddressGap,
		ScanAddressGap:    cfg.Wallet.ScanAddressGap,
		SessionExpiration: cfg.Auth.SessionExpiration,
	}
	locker := walletlock.NewRedisLocker(redisClient, cfg.Lock.ExecTime, cfg.Lock.PollInterval)
	sessions := storage.NewRedisStorage(redisClient, cfg.Auth.SessionExpiration)
	wallets := service.NewWalletService(svcCfg, db, sessions, locker, cache, engine, notifier,
		service.NewAuthService(cfg.Auth.JWTSecret), logger)

	queue := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	submitter := tasks.NewSubmitter(queue, cfg.Worker.Queue, logger)
	cache.SetBalanceScheduler(submitter)
	wallets.SetScanScheduler(submitter)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Redis:     redisClient,
		DB:        db,
		Explorers: explorers,
		Bus:       notifyBus,
		Notifier:  notifier,
		Cache:     cache,
		Wallets:   wallets,
		Queue:     queue,
		Submitter: submitter,
		SDClient:  sdClient,
	}, nil
}

func (a *App) Close() {
	if err := a.Queue.Close(); err != nil {
		a.Logger.Errorf("fail to close asynq client, err: %v", err)
	}
	if err := a.Bus.Close(); err != nil {
		a.Logger.Errorf("fail to close notification bus, err: %v", err)
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Errorf("fail to close database, err: %v", err)
	}
	if err := a.Redis.Close(); err != nil {
		a.Logger.Errorf("fail to close redis, err: %v", err)
	}
	if c, ok := a.SDClient.(*statsd.Client); ok {
		if err := c.Close(); err != nil {
			a.Logger.Errorf("fail to close statsd client, err: %v", err)
		}
	}
}
