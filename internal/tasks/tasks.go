package tasks

import "github.com/vultisig/vultiwallet/internal/types"

const (
	QUEUE_NAME = "vultiwallet"

	TypeBalanceRecompute  = "balance:recompute"
	TypeWalletScan        = "wallet:scan"
	TypeEmailNotification = "email:notification"
)

// BalanceRecomputePayload asks for a full balance of a wallet after a
// two-step answer returned Partial.
type BalanceRecomputePayload struct {
	WalletID string         `json:"walletId"`
	Partial  *types.Balance `json:"partial,omitempty"`
}

type WalletScanPayload struct {
	WalletID               string `json:"walletId"`
	CopayerID              string `json:"copayerId"`
	IncludeCopayerBranches bool   `json:"includeCopayerBranches"`
}

// EmailNotificationPayload is one email to one copayer about one
// notification.
type EmailNotificationPayload struct {
	NotificationID string            `json:"notificationId"`
	Type           string            `json:"type"`
	WalletID       string            `json:"walletId"`
	WalletName     string            `json:"walletName"`
	CopayerID      string            `json:"copayerId"`
	CopayerName    string            `json:"copayerName"`
	To             string            `json:"to"`
	Language       string            `json:"language,omitempty"`
	Vars           map[string]string `json:"vars,omitempty"`
}
