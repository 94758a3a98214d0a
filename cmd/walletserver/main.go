package main

import (
	"github.com/sirupsen/logrus"

	"github.com/vultisig/vultiwallet/api"
	"github.com/vultisig/vultiwallet/config"
	"github.com/vultisig/vultiwallet/internal/app"
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

	server := api.NewServer(api.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		BodyLimit: cfg.Server.BodyLimit,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	}, a.Wallets, a.SDClient, logger)

	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting wallet server")
	if err := server.StartServer(); err != nil {
		logger.Errorf("server stopped, err: %v", err)
	}
}
