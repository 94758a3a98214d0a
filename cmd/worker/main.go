package main

import (
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/vultiwallet/config"
	"github.com/vultisig/vultiwallet/internal/app"
	"github.com/vultisig/vultiwallet/internal/scheduler"
	"github.com/vultisig/vultiwallet/service"
)

func main() {
	logger := logrus.New()
	cfg, err := config.ReadConfig("config")
	if err != nil {
		logger.Fatalf("fail to read config, err: %v", err)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatalf("fail to start, err: %v", err)
	}
	defer a.Close()

	networks := make(map[string]scheduler.HeightSource, len(a.Explorers))
	for network, e := range a.Explorers {
		networks[network] = e
	}
	blocks := scheduler.NewSchedulerService(cfg.Scheduler.BlockPollSpec, networks, a.DB, a.Notifier, logger)
	if err := blocks.Start(); err != nil {
		logger.Fatalf("fail to start block monitor, err: %v", err)
	}
	defer blocks.Stop()

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr(),
			Username: cfg.Redis.User,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Logger:      logger,
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				cfg.Worker.Queue: 10,
			},
		},
	)

	logger.WithFields(logrus.Fields{
		"redis": cfg.Redis.Addr(),
		"queue": cfg.Worker.Queue,
	}).Info("Starting worker")

	worker := service.NewWorker(a.Wallets, a.Cache, a.SDClient, logger)
	if cfg.EmailServer.ApiKey != "" {
		email := service.NewEmailService(service.EmailConfig{
			APIKey:        cfg.EmailServer.ApiKey,
			Endpoint:      cfg.EmailServer.Endpoint,
			SendingDomain: cfg.EmailServer.SendingDomain,
		}, a.DB, a.Submitter, logger)
		a.Bus.OnMessage(email.OnNotification)
		worker.SetEmailSender(email)
	}

	mux := asynq.NewServeMux()
	worker.Register(mux)
	if err := srv.Run(mux); err != nil {
		logger.Errorf("could not run server: %v", err)
	}
}
