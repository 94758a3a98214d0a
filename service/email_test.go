package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/vultiwallet/internal/tasks"
	"github.com/vultisig/vultiwallet/internal/types"
)

type recordingEmails struct {
	queued []tasks.EmailNotificationPayload
}

func (r *recordingEmails) ScheduleEmail(_ context.Context, p tasks.EmailNotificationPayload) error {
	r.queued = append(r.queued, p)
	return nil
}

func (r *recordingEmails) Send(_ context.Context, p tasks.EmailNotificationPayload) error {
	r.queued = append(r.queued, p)
	return nil
}

func TestQueueEmails(t *testing.T) {
	f := newServiceFixture(t, DefaultConfig())
	ctx := context.Background()
	id, copayers := f.completeWallet(t, 2, 2)
	alice, bob := copayers[0], copayers[1]
	require.NoError(t, f.svc.SavePreferences(ctx, bob.caller(id), types.Preferences{Email: "bob@example.com", Unit: "bit", Language: "es"}))

	notification := func(kind, creator string) *types.Notification {
		return &types.Notification{
			ID:        "0000170000000000001",
			Type:      kind,
			WalletID:  id,
			CreatorID: &creator,
			Data:      map[string]any{"amount": float64(150000), "txProposalId": "p1"},
		}
	}

	testCases := []struct {
		name string
		n    *types.Notification
		want int
	}{
		{name: "copayer with email", n: notification(types.NotifyNewTxProposal, alice.id), want: 1},
		{name: "creator is not emailed", n: notification(types.NotifyNewTxProposal, bob.id), want: 0},
		{name: "type without template", n: notification(types.NotifyNewAddress, alice.id), want: 0},
		{name: "unknown wallet", n: &types.Notification{ID: "1", Type: types.NotifyNewTxProposal, WalletID: "nope"}, want: 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recordingEmails{}
			NewEmailService(EmailConfig{}, f.store, rec, logrus.New()).OnNotification(tc.n)
			require.Len(t, rec.queued, tc.want)
			if tc.want == 0 {
				return
			}
			got := rec.queued[0]
			assert.Equal(t, "bob@example.com", got.To)
			assert.Equal(t, bob.id, got.CopayerID)
			assert.Equal(t, bob.name, got.CopayerName)
			assert.Equal(t, "wallet", got.WalletName)
			assert.Equal(t, "es", got.Language)
			assert.Equal(t, "1500 bits", got.Vars["amount"])
			assert.Equal(t, "p1", got.Vars["txProposalId"])
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.0015 BTC", formatAmount(int64(150000), ""))
	assert.Equal(t, "1500 bits", formatAmount(150000, "bit"))
	assert.Equal(t, "1 BTC", formatAmount(float64(100000000), "btc"))
	assert.Equal(t, "n/a", formatAmount("n/a", ""))
}

func TestEmailSend(t *testing.T) {
	var got mandrillPayload
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(status)
	}))
	defer srv.Close()

	s := NewEmailService(EmailConfig{APIKey: "key", Endpoint: srv.URL, SendingDomain: "example.com"}, nil, nil, logrus.New())
	p := tasks.EmailNotificationPayload{
		NotificationID: "n1",
		Type:           types.NotifyTxProposalFinallyAccepted,
		WalletName:     "family",
		CopayerName:    "bob",
		To:             "bob@example.com",
		Language:       "es",
		Vars:           map[string]string{"txProposalId": "p1", "amount": "1 BTC"},
	}
	require.NoError(t, s.Send(context.Background(), p))
	assert.Equal(t, "key", got.Key)
	assert.Equal(t, "wallet-tx-accepted-es", got.TemplateName)
	assert.Equal(t, []mandrillTo{{Email: "bob@example.com", Name: "bob", Type: "to"}}, got.Message.To)
	assert.Equal(t, "example.com", got.Message.SendingDomain)
	assert.Equal(t, []mandrillVar{
		{Name: "WALLET_NAME", Content: "family"},
		{Name: "COPAYER_NAME", Content: "bob"},
		{Name: "amount", Content: "1 BTC"},
		{Name: "txProposalId", Content: "p1"},
	}, got.TemplateContent)

	status = http.StatusInternalServerError
	err := s.Send(context.Background(), p)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	p.Type = types.NotifyNewBlock
	assert.ErrorIs(t, s.Send(context.Background(), p), asynq.SkipRetry)
}

func TestHandleEmailNotification(t *testing.T) {
	f := newServiceFixture(t, DefaultConfig())
	ctx := context.Background()
	worker := newTestWorker(f)
	payload := tasks.EmailNotificationPayload{NotificationID: "n1", Type: types.NotifyNewTxProposal, To: "a@example.com"}

	err := worker.HandleEmailNotification(ctx, asynq.NewTask(tasks.TypeEmailNotification, mustJSON(t, payload)))
	assert.True(t, isSkipRetry(err))

	sender := &recordingEmails{}
	worker.SetEmailSender(sender)
	err = worker.HandleEmailNotification(ctx, asynq.NewTask(tasks.TypeEmailNotification, []byte("{")))
	assert.True(t, isSkipRetry(err))

	require.NoError(t, worker.HandleEmailNotification(ctx, asynq.NewTask(tasks.TypeEmailNotification, mustJSON(t, payload))))
	require.Len(t, sender.queued, 1)
	assert.Equal(t, payload, sender.queued[0])
}
