package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/vultiwallet/internal/types"
)

type stubClient struct {
	err   error
	tasks []*asynq.Task
}

func (c *stubClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{ID: "id", Type: task.Type()}, nil
}

func TestScheduleBalanceRecompute(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "queued"},
		{name: "already queued", err: asynq.ErrDuplicateTask},
		{name: "redis down", err: errors.New("dial tcp: connection refused"), wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := &stubClient{err: tc.err}
			s := NewSubmitter(client, "", logrus.New())
			err := s.ScheduleBalanceRecompute(context.Background(), "w1", &types.Balance{TotalAmount: 10})
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tc.err != nil {
				return
			}
			require.Len(t, client.tasks, 1)
			assert.Equal(t, TypeBalanceRecompute, client.tasks[0].Type())
			var payload BalanceRecomputePayload
			require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
			assert.Equal(t, "w1", payload.WalletID)
			assert.Equal(t, int64(10), payload.Partial.TotalAmount)
		})
	}
}

func TestScheduleScan(t *testing.T) {
	client := &stubClient{}
	s := NewSubmitter(client, "custom", logrus.New())
	require.NoError(t, s.ScheduleScan(context.Background(), "w1", "c1", true))
	require.Len(t, client.tasks, 1)

	var payload WalletScanPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	assert.Equal(t, WalletScanPayload{WalletID: "w1", CopayerID: "c1", IncludeCopayerBranches: true}, payload)

	client.err = errors.New("boom")
	assert.Error(t, s.ScheduleScan(context.Background(), "w1", "c1", false))
}

func TestScheduleEmail(t *testing.T) {
	p := EmailNotificationPayload{
		NotificationID: "n1",
		Type:           types.NotifyNewTxProposal,
		WalletID:       "w1",
		CopayerID:      "c2",
		To:             "bob@example.com",
	}

	client := &stubClient{}
	s := NewSubmitter(client, "", logrus.New())
	require.NoError(t, s.ScheduleEmail(context.Background(), p))
	require.Len(t, client.tasks, 1)
	assert.Equal(t, TypeEmailNotification, client.tasks[0].Type())
	var got EmailNotificationPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &got))
	assert.Equal(t, p, got)

	client.err = asynq.ErrTaskIDConflict
	assert.NoError(t, s.ScheduleEmail(context.Background(), p))

	client.err = errors.New("boom")
	assert.Error(t, s.ScheduleEmail(context.Background(), p))
}
