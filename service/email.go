package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/vultiwallet/internal/tasks"
	"github.com/vultisig/vultiwallet/internal/types"
	"github.com/vultisig/vultiwallet/storage"
)

const DefaultMandrillEndpoint = "https://mandrillapp.com/api/1.0/messages/send-template"

// emailTemplates maps the notification types copayers get emails for to
// their Mandrill template.
var emailTemplates = map[string]string{
	types.NotifyNewCopayer:                "wallet-new-copayer",
	types.NotifyWalletComplete:            "wallet-complete",
	types.NotifyNewTxProposal:             "wallet-new-tx-proposal",
	types.NotifyTxProposalFinallyAccepted: "wallet-tx-accepted",
	types.NotifyTxProposalFinallyRejected: "wallet-tx-rejected",
	types.NotifyNewOutgoingTx:             "wallet-new-outgoing-tx",
	types.NotifyNewOutgoingTxByThirdParty: "wallet-new-outgoing-tx",
}

type mandrillTo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Type  string `json:"type"`
}

type mandrillVar struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type mandrillRcptVars struct {
	Rcpt string        `json:"rcpt"`
	Vars []mandrillVar `json:"vars"`
}

type mandrillMessage struct {
	To            []mandrillTo       `json:"to"`
	SendingDomain string             `json:"sending_domain"`
	MergeVars     []mandrillRcptVars `json:"merge_vars"`
}

type mandrillPayload struct {
	Key             string          `json:"key"`
	TemplateName    string          `json:"template_name"`
	TemplateContent []mandrillVar   `json:"template_content"`
	Message         mandrillMessage `json:"message"`
}

type EmailConfig struct {
	APIKey        string
	Endpoint      string
	SendingDomain string
}

// EmailScheduler queues a notification email for the worker.
type EmailScheduler interface {
	ScheduleEmail(ctx context.Context, p tasks.EmailNotificationPayload) error
}

// EmailService turns wallet notifications into emails for the copayers
// that saved an address in their preferences.
type EmailService struct {
	cfg       EmailConfig
	storage   storage.WalletStorage
	scheduler EmailScheduler
	client    *http.Client
	logger    *logrus.Logger
}

func NewEmailService(cfg EmailConfig, store storage.WalletStorage, scheduler EmailScheduler, logger *logrus.Logger) *EmailService {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultMandrillEndpoint
	}
	return &EmailService{
		cfg:       cfg,
		storage:   store,
		scheduler: scheduler,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}
}

// OnNotification is a bus handler.
func (s *EmailService) OnNotification(n *types.Notification) {
	if _, ok := emailTemplates[n.Type]; !ok || n.WalletID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.QueueEmails(ctx, n); err != nil {
		s.logger.WithFields(logrus.Fields{
			"wallet_id":       n.WalletID,
			"notification_id": n.ID,
			"type":            n.Type,
		}).WithError(err).Error("fail to queue notification emails")
	}
}

// QueueEmails schedules one email per copayer with an email address,
// skipping the copayer who caused the notification.
func (s *EmailService) QueueEmails(ctx context.Context, n *types.Notification) error {
	w, err := s.storage.FetchWallet(ctx, n.WalletID)
	if err != nil {
		return fmt.Errorf("fail to fetch wallet: %w", err)
	}
	if w == nil {
		return nil
	}
	for _, c := range w.Copayers {
		if n.CreatorID != nil && *n.CreatorID == c.ID {
			continue
		}
		prefs, err := s.storage.FetchPreferences(ctx, w.ID, c.ID)
		if err != nil {
			return fmt.Errorf("fail to fetch preferences: %w", err)
		}
		if prefs == nil || prefs.Email == "" {
			continue
		}
		err = s.scheduler.ScheduleEmail(ctx, tasks.EmailNotificationPayload{
			NotificationID: n.ID,
			Type:           n.Type,
			WalletID:       w.ID,
			WalletName:     w.Name,
			CopayerID:      c.ID,
			CopayerName:    c.Name,
			To:             prefs.Email,
			Language:       prefs.Language,
			Vars:           emailVars(n.Data, prefs.Unit),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func emailVars(data map[string]any, unit string) map[string]string {
	vars := make(map[string]string, len(data))
	for k, v := range data {
		if k == "amount" {
			vars[k] = formatAmount(v, unit)
			continue
		}
		vars[k] = fmt.Sprint(v)
	}
	return vars
}

// formatAmount renders satoshis in the copayer's unit. Notifications that
// went through JSON carry numbers as float64.
func formatAmount(v any, unit string) string {
	var sat int64
	switch n := v.(type) {
	case int64:
		sat = n
	case int:
		sat = int64(n)
	case float64:
		sat = int64(n)
	default:
		return fmt.Sprint(v)
	}
	if unit == "bit" {
		return decimal.New(sat, -2).String() + " bits"
	}
	return decimal.New(sat, -8).String() + " BTC"
}

// Send delivers one queued email through Mandrill.
func (s *EmailService) Send(ctx context.Context, p tasks.EmailNotificationPayload) error {
	template, ok := emailTemplates[p.Type]
	if !ok {
		return fmt.Errorf("no email template for %s: %w", p.Type, asynq.SkipRetry)
	}
	vars := []mandrillVar{
		{Name: "WALLET_NAME", Content: p.WalletName},
		{Name: "COPAYER_NAME", Content: p.CopayerName},
	}
	keys := make([]string, 0, len(p.Vars))
	for k := range p.Vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vars = append(vars, mandrillVar{Name: k, Content: p.Vars[k]})
	}
	if p.Language != "" {
		template += "-" + p.Language
	}
	payload := mandrillPayload{
		Key:             s.cfg.APIKey,
		TemplateName:    template,
		TemplateContent: vars,
		Message: mandrillMessage{
			To:            []mandrillTo{{Email: p.To, Name: p.CopayerName, Type: "to"}},
			SendingDomain: s.cfg.SendingDomain,
			MergeVars:     []mandrillRcptVars{{Rcpt: p.To, Vars: vars}},
		},
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("json.Marshal failed: %v: %w", err, asynq.SkipRetry)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("fail to build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http.Post failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.logger.Errorf("failed to close body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("http.Post failed: %s: %s: %w", resp.Status, body, asynq.SkipRetry)
	}
	return nil
}
