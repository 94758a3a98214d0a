package types

// ChainTx is a transaction as reported by the explorer, amounts already in
// atomic units.
type ChainTx struct {
	TxID          string   `json:"txid"`
	Confirmations int64    `json:"confirmations"`
	BlockHeight   int64    `json:"blockheight"`
	Fees          int64    `json:"fees"`
	Size          int64    `json:"size"`
	Time          int64    `json:"time"`
	Inputs        []TxItem `json:"inputs"`
	Outputs       []TxItem `json:"outputs"`
}

type TxItem struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

type HistoryOutput struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
	IsMine  *bool  `json:"isMine,omitempty"`
	Message string `json:"message,omitempty"`
}

type HistoryNote struct {
	Body     string `json:"body"`
	EditedBy string `json:"editedBy"`
	EditedOn int64  `json:"editedOn"`
}

// HistoryTx is a wallet-relative view of a chain transaction.
type HistoryTx struct {
	TxID          string          `json:"txid"`
	Action        string          `json:"action"`
	Amount        int64           `json:"amount"`
	Fees          int64           `json:"fees"`
	FeePerKb      int64           `json:"feePerKb,omitempty"`
	Time          int64           `json:"time"`
	AddressTo     string          `json:"addressTo,omitempty"`
	Confirmations int64           `json:"confirmations"`
	Inputs        []HistoryOutput `json:"inputs,omitempty"`
	Outputs       []HistoryOutput `json:"outputs"`
	LowFees       *bool           `json:"lowFees,omitempty"`
	CreatedOn     int64           `json:"createdOn,omitempty"`
	ProposalID    string          `json:"proposalId,omitempty"`
	Message       string          `json:"message,omitempty"`
	Actions       []Action        `json:"actions,omitempty"`
	CustomData    string          `json:"customData,omitempty"`
	Note          *HistoryNote    `json:"note,omitempty"`
}

const (
	HistoryActionSent     = "sent"
	HistoryActionReceived = "received"
	HistoryActionMoved    = "moved"
	HistoryActionInvalid  = "invalid"
)

// Cache record types, keyed by (walletId, type, key).
const (
	CacheActiveAddresses = "activeAddresses"
	CacheHistory         = "historyCache"
	CacheHistoryStatus   = "historyCacheStatus"
)

type HistoryCacheStatus struct {
	TotalItems int64 `json:"totalItems"`
	UpdatedOn  int64 `json:"updatedOn"`
	IsComplete bool  `json:"isComplete"`
	IsUpdated  bool  `json:"isUpdated"`
}
