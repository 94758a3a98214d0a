package types

import (
	"fmt"
	"time"
)

const (
	NotifyNewCopayer                = "NewCopayer"
	NotifyWalletComplete            = "WalletComplete"
	NotifyNewAddress                = "NewAddress"
	NotifyNewTxProposal             = "NewTxProposal"
	NotifyTxProposalAcceptedBy      = "TxProposalAcceptedBy"
	NotifyTxProposalFinallyAccepted = "TxProposalFinallyAccepted"
	NotifyTxProposalRejectedBy      = "TxProposalRejectedBy"
	NotifyTxProposalFinallyRejected = "TxProposalFinallyRejected"
	NotifyTxProposalRemoved         = "TxProposalRemoved"
	NotifyNewOutgoingTx             = "NewOutgoingTx"
	NotifyNewOutgoingTxByThirdParty = "NewOutgoingTxByThirdParty"
	NotifyBalanceUpdated            = "BalanceUpdated"
	NotifyScanFinished              = "ScanFinished"
	NotifyNewBlock                  = "NewBlock"
)

type Notification struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Ticker    int64          `json:"ticker"`
	CreatorID *string        `json:"creatorId"`
	WalletID  string         `json:"walletId"`
	Network   string         `json:"network"`
	CreatedOn int64          `json:"createdOn"`
}

// NotificationID builds a sortable id: 14-digit unix millis followed by the
// last four digits of the ticker, so ids created in the same millisecond
// keep ticker order.
func NotificationID(at time.Time, ticker int64) string {
	return fmt.Sprintf("%014d%04d", at.UnixMilli(), ticker%10000)
}

// MinNotificationID is the smallest id created at or after ts (unix seconds).
func MinNotificationID(ts int64) string {
	return fmt.Sprintf("%014d%04d", ts*1000, 0)
}

type Session struct {
	ID        string `json:"id"`
	CopayerID string `json:"copayerId"`
	WalletID  string `json:"walletId"`
	CreatedOn int64  `json:"createdOn"`
	UpdatedOn int64  `json:"updatedOn"`
}

func (s *Session) IsValid(now time.Time, expiration time.Duration) bool {
	return now.Unix()-s.UpdatedOn <= int64(expiration/time.Second)
}

func (s *Session) Touch(now time.Time) {
	s.UpdatedOn = now.Unix()
}

type Preferences struct {
	WalletID  string `json:"walletId"`
	CopayerID string `json:"copayerId"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Language  string `json:"language,omitempty" validate:"omitempty,len=2"`
	Unit      string `json:"unit,omitempty" validate:"omitempty,oneof=btc bit"`
}

// Merge overwrites the fields set in update.
func (p *Preferences) Merge(update Preferences) {
	if update.Email != "" {
		p.Email = update.Email
	}
	if update.Language != "" {
		p.Language = update.Language
	}
	if update.Unit != "" {
		p.Unit = update.Unit
	}
}
