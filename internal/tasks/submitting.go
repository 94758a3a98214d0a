package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/vultiwallet/internal/types"
)

func NewBalanceRecompute(walletID string, partial *types.Balance) (*asynq.Task, error) {
	payload, err := json.Marshal(BalanceRecomputePayload{WalletID: walletID, Partial: partial})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBalanceRecompute, payload), nil
}

func NewWalletScan(walletID, copayerID string, includeCopayerBranches bool) (*asynq.Task, error) {
	payload, err := json.Marshal(WalletScanPayload{
		WalletID:               walletID,
		CopayerID:              copayerID,
		IncludeCopayerBranches: includeCopayerBranches,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeWalletScan, payload), nil
}

func NewEmailNotification(p EmailNotificationPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEmailNotification, payload), nil
}

// Enqueuer is the slice of asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Submitter queues background wallet work on the worker queue.
type Submitter struct {
	client Enqueuer
	queue  string
	logger *logrus.Logger
}

func NewSubmitter(client Enqueuer, queue string, logger *logrus.Logger) *Submitter {
	if queue == "" {
		queue = QUEUE_NAME
	}
	return &Submitter{client: client, queue: queue, logger: logger}
}

// ScheduleBalanceRecompute queues at most one recompute per wallet at a
// time; a duplicate while one is queued is not an error.
func (s *Submitter) ScheduleBalanceRecompute(ctx context.Context, walletID string, partial *types.Balance) error {
	task, err := NewBalanceRecompute(walletID, partial)
	if err != nil {
		return fmt.Errorf("fail to build balance task: %w", err)
	}
	info, err := s.client.EnqueueContext(ctx, task,
		asynq.Queue(s.queue),
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
		asynq.Unique(time.Minute),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("fail to enqueue balance task: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"task_id":   info.ID,
	}).Debug("balance recompute queued")
	return nil
}

func (s *Submitter) ScheduleScan(ctx context.Context, walletID, copayerID string, includeCopayerBranches bool) error {
	task, err := NewWalletScan(walletID, copayerID, includeCopayerBranches)
	if err != nil {
		return fmt.Errorf("fail to build scan task: %w", err)
	}
	info, err := s.client.EnqueueContext(ctx, task,
		asynq.Queue(s.queue),
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("fail to enqueue scan task: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"task_id":   info.ID,
	}).Info("wallet scan queued")
	return nil
}

// ScheduleEmail queues one notification email. The task id is derived from
// the notification and the recipient, so every instance that saw the
// notification may call this and only one email goes out.
func (s *Submitter) ScheduleEmail(ctx context.Context, p EmailNotificationPayload) error {
	task, err := NewEmailNotification(p)
	if err != nil {
		return fmt.Errorf("fail to build email task: %w", err)
	}
	info, err := s.client.EnqueueContext(ctx, task,
		asynq.Queue(s.queue),
		asynq.MaxRetry(5),
		asynq.Timeout(time.Minute),
		asynq.TaskID("email:"+p.NotificationID+":"+p.CopayerID),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("fail to enqueue email task: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"wallet_id":       p.WalletID,
		"notification_id": p.NotificationID,
		"task_id":         info.ID,
	}).Debug("notification email queued")
	return nil
}
