package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/vultiwallet/contexthelper"
	"github.com/vultisig/vultiwallet/internal/tasks"
	"github.com/vultisig/vultiwallet/internal/types"
	"github.com/vultisig/vultiwallet/internal/walletcache"
)

// WorkerService runs the background wallet tasks queued by the API.
type WorkerService struct {
	wallets  *WalletService
	cache    *walletcache.Manager
	logger   *logrus.Logger
	sdClient statsd.ClientInterface
	email    EmailSender
}

// EmailSender delivers a queued notification email.
type EmailSender interface {
	Send(ctx context.Context, p tasks.EmailNotificationPayload) error
}

func NewWorker(wallets *WalletService, cache *walletcache.Manager, sdClient statsd.ClientInterface, logger *logrus.Logger) *WorkerService {
	return &WorkerService{
		wallets:  wallets,
		cache:    cache,
		logger:   logger,
		sdClient: sdClient,
	}
}

func (s *WorkerService) incCounter(name string, tags []string) {
	if err := s.sdClient.Count(name, 1, tags, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}
}

func (s *WorkerService) measureTime(name string, start time.Time, tags []string) {
	if err := s.sdClient.Timing(name, time.Since(start), tags, 1); err != nil {
		s.logger.Errorf("fail to measure time metric, err: %v", err)
	}
}

// SetEmailSender enables delivery of notification emails.
func (s *WorkerService) SetEmailSender(sender EmailSender) {
	s.email = sender
}

// Register binds every task type to its handler.
func (s *WorkerService) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(tasks.TypeBalanceRecompute, s.HandleBalanceRecompute)
	mux.HandleFunc(tasks.TypeWalletScan, s.HandleWalletScan)
	mux.HandleFunc(tasks.TypeEmailNotification, s.HandleEmailNotification)
}

func (s *WorkerService) HandleBalanceRecompute(ctx context.Context, t *asynq.Task) error {
	if err := contexthelper.CheckCancellation(ctx); err != nil {
		return err
	}
	defer s.measureTime("worker.balance.recompute.latency", time.Now(), []string{})
	var req tasks.BalanceRecomputePayload
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	s.logger.WithFields(logrus.Fields{
		"wallet_id": req.WalletID,
	}).Debug("recomputing balance")

	notified, err := s.cache.RecomputeBalance(ctx, req.WalletID, req.Partial)
	if err != nil {
		s.incCounter("worker.balance.recompute.error", []string{})
		if errors.Is(err, types.ErrWalletNotFound) {
			return fmt.Errorf("wallet %s is gone: %w", req.WalletID, asynq.SkipRetry)
		}
		return fmt.Errorf("fail to recompute balance: %w", err)
	}
	if notified {
		s.incCounter("worker.balance.updated", []string{})
	}
	return nil
}

func (s *WorkerService) HandleWalletScan(ctx context.Context, t *asynq.Task) error {
	if err := contexthelper.CheckCancellation(ctx); err != nil {
		return err
	}
	defer s.measureTime("worker.wallet.scan.latency", time.Now(), []string{})
	var req tasks.WalletScanPayload
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	s.logger.WithFields(logrus.Fields{
		"wallet_id":                req.WalletID,
		"copayer_id":               req.CopayerID,
		"include_copayer_branches": req.IncludeCopayerBranches,
	}).Info("scanning wallet")

	if err := s.wallets.RunScan(ctx, req.WalletID, req.IncludeCopayerBranches); err != nil {
		s.incCounter("worker.wallet.scan.error", []string{})
		// The outcome was already announced; a rerun would start over.
		return fmt.Errorf("fail to scan wallet: %v: %w", err, asynq.SkipRetry)
	}
	s.incCounter("worker.wallet.scan.success", []string{})
	return nil
}

func (s *WorkerService) HandleEmailNotification(ctx context.Context, t *asynq.Task) error {
	if err := contexthelper.CheckCancellation(ctx); err != nil {
		return err
	}
	var req tasks.EmailNotificationPayload
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if s.email == nil {
		return fmt.Errorf("email delivery is not configured: %w", asynq.SkipRetry)
	}
	s.logger.WithFields(logrus.Fields{
		"wallet_id":       req.WalletID,
		"notification_id": req.NotificationID,
		"type":            req.Type,
	}).Info("sending notification email")
	if err := s.email.Send(ctx, req); err != nil {
		s.incCounter("worker.email.error", []string{"type:" + req.Type})
		return err
	}
	s.incCounter("worker.email.sent", []string{"type:" + req.Type})
	return nil
}
