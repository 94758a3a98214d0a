package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/vultiwallet/internal/tasks"
	"github.com/vultisig/vultiwallet/internal/types"
)

func newTestWorker(f *serviceFixture) *WorkerService {
	return NewWorker(f.svc, f.svc.cache, &statsd.NoOpClient{}, logrus.New())
}

func TestHandleBalanceRecompute(t *testing.T) {
	f := newServiceFixture(t, DefaultConfig())
	ctx := context.Background()
	id, copayers := f.completeWallet(t, 1, 1)
	a, err := f.svc.CreateAddress(ctx, copayers[0].caller(id), false)
	require.NoError(t, err)
	f.chain.SetUtxos([]types.Utxo{{TxID: "aa", Address: a.Address, Satoshis: 7000, Confirmations: 1}})
	w, err := f.store.FetchWallet(ctx, id)
	require.NoError(t, err)
	full, err := f.svc.cache.GetBalance(ctx, w, false)
	require.NoError(t, err)
	worker := newTestWorker(f)

	testCases := []struct {
		name      string
		payload   []byte
		skipRetry bool
		wantErr   bool
		notified  bool
	}{
		{name: "bad payload", payload: []byte("{"), wantErr: true, skipRetry: true},
		{name: "unknown wallet", payload: mustJSON(t, tasks.BalanceRecomputePayload{WalletID: "gone"}), wantErr: true, skipRetry: true},
		{name: "partial matches", payload: mustJSON(t, tasks.BalanceRecomputePayload{WalletID: id, Partial: full})},
		{name: "partial differs", payload: mustJSON(t, tasks.BalanceRecomputePayload{WalletID: id, Partial: &types.Balance{TotalAmount: 1}}), notified: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			before := len(f.notificationTypes(t, id))
			err := worker.HandleBalanceRecompute(ctx, asynq.NewTask(tasks.TypeBalanceRecompute, tc.payload))
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, tc.skipRetry, isSkipRetry(err))
				return
			}
			require.NoError(t, err)
			after := f.notificationTypes(t, id)
			if tc.notified {
				require.Len(t, after, before+1)
				assert.Equal(t, types.NotifyBalanceUpdated, after[len(after)-1])
			} else {
				assert.Len(t, after, before)
			}
		})
	}
}

func TestHandleWalletScan(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScanAddressGap = 2
	f := newServiceFixture(t, cfg)
	ctx := context.Background()
	id, _ := f.completeWallet(t, 1, 1)
	incomplete := f.createWallet(t, 1, 2)
	worker := newTestWorker(f)

	err := worker.HandleWalletScan(ctx, asynq.NewTask(tasks.TypeWalletScan, mustJSON(t, tasks.WalletScanPayload{WalletID: id})))
	require.NoError(t, err)
	w, err := f.store.FetchWallet(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.ScanStatusSuccess, w.ScanStatus)
	assert.Contains(t, f.notificationTypes(t, id), types.NotifyScanFinished)

	err = worker.HandleWalletScan(ctx, asynq.NewTask(tasks.TypeWalletScan, mustJSON(t, tasks.WalletScanPayload{WalletID: incomplete})))
	require.Error(t, err)
	assert.True(t, isSkipRetry(err))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = worker.HandleWalletScan(cancelled, asynq.NewTask(tasks.TypeWalletScan, mustJSON(t, tasks.WalletScanPayload{WalletID: id})))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerRegister(t *testing.T) {
	f := newServiceFixture(t, DefaultConfig())
	mux := asynq.NewServeMux()
	newTestWorker(f).Register(mux)

	for _, kind := range []string{tasks.TypeBalanceRecompute, tasks.TypeWalletScan, tasks.TypeEmailNotification} {
		_, pattern := mux.Handler(asynq.NewTask(kind, nil))
		assert.Equal(t, kind, pattern)
	}
}

type enqueued struct {
	kind    string
	payload []byte
}

type fakeEnqueuer struct {
	tasks []enqueued
}

func (e *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, enqueued{kind: task.Type(), payload: task.Payload()})
	return &asynq.TaskInfo{ID: "task", Queue: tasks.QUEUE_NAME}, nil
}

func TestStartScan_Queued(t *testing.T) {
	f := newServiceFixture(t, DefaultConfig())
	ctx := context.Background()
	id, copayers := f.completeWallet(t, 1, 1)
	queue := &fakeEnqueuer{}
	f.svc.SetScanScheduler(tasks.NewSubmitter(queue, "", logrus.New()))

	started, err := f.svc.StartScan(ctx, copayers[0].caller(id), true)
	require.NoError(t, err)
	assert.True(t, started.Started)
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, tasks.TypeWalletScan, queue.tasks[0].kind)

	var payload tasks.WalletScanPayload
	require.NoError(t, json.Unmarshal(queue.tasks[0].payload, &payload))
	assert.Equal(t, tasks.WalletScanPayload{WalletID: id, CopayerID: copayers[0].id, IncludeCopayerBranches: true}, payload)

	// The queued task runs through the worker handler.
	worker := newTestWorker(f)
	require.NoError(t, worker.HandleWalletScan(ctx, asynq.NewTask(queue.tasks[0].kind, queue.tasks[0].payload)))
	w, err := f.store.FetchWallet(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.ScanStatusSuccess, w.ScanStatus)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	buf, err := json.Marshal(v)
	require.NoError(t, err)
	return buf
}

func isSkipRetry(err error) bool {
	return errors.Is(err, asynq.SkipRetry)
}
