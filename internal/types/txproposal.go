package types

import (
	"time"
)

type TxProposalStatus string

const (
	TxStatusTemporary   TxProposalStatus = "temporary"
	TxStatusPending     TxProposalStatus = "pending"
	TxStatusAccepted    TxProposalStatus = "accepted"
	TxStatusRejected    TxProposalStatus = "rejected"
	TxStatusBroadcasted TxProposalStatus = "broadcasted"
)

type ActionType string

const (
	ActionAccept ActionType = "accept"
	ActionReject ActionType = "reject"
)

type Output struct {
	ToAddress string `json:"toAddress" validate:"required"`
	Amount    int64  `json:"amount"`
	Message   string `json:"message,omitempty"`
}

type Action struct {
	CopayerID  string     `json:"copayerId"`
	Type       ActionType `json:"type"`
	Signatures []string   `json:"signatures,omitempty"`
	XPub       string     `json:"xpub,omitempty"`
	Comment    string     `json:"comment,omitempty"`
	CreatedOn  int64      `json:"createdOn"`
}

type TxProposal struct {
	ID                      string           `json:"id"`
	WalletID                string           `json:"walletId"`
	CreatorID               string           `json:"creatorId"`
	Network                 string           `json:"network"`
	Outputs                 []Output         `json:"outputs"`
	ChangeAddress           *Address         `json:"changeAddress,omitempty"`
	Inputs                  []Utxo           `json:"inputs"`
	Fee                     int64            `json:"fee"`
	FeePerKb                int64            `json:"feePerKb"`
	FeeLevel                string           `json:"feeLevel,omitempty"`
	Message                 string           `json:"message,omitempty"`
	RequiredSignatures      int              `json:"requiredSignatures"`
	WalletN                 int              `json:"walletN"`
	AddressType             AddressType      `json:"addressType"`
	ExcludeUnconfirmedUtxos bool             `json:"excludeUnconfirmedUtxos"`
	Actions                 []Action         `json:"actions"`
	Status                  TxProposalStatus `json:"status"`
	TxID                    string           `json:"txid,omitempty"`
	ProposalSignature       string           `json:"proposalSignature,omitempty"`
	CustomData              string           `json:"customData,omitempty"`
	CreatedOn               int64            `json:"createdOn"`
	BroadcastedOn           int64            `json:"broadcastedOn,omitempty"`

	// Populated on reads, never persisted.
	DeleteLockTime int64   `json:"deleteLockTime,omitempty"`
	Note           *TxNote `json:"note,omitempty"`
}

func (t *TxProposal) IsTemporary() bool {
	return t.Status == TxStatusTemporary
}

func (t *TxProposal) IsPending() bool {
	return t.Status == TxStatusPending || t.Status == TxStatusAccepted
}

func (t *TxProposal) IsAccepted() bool {
	return t.Status == TxStatusAccepted
}

func (t *TxProposal) IsRejected() bool {
	return t.Status == TxStatusRejected
}

func (t *TxProposal) IsBroadcasted() bool {
	return t.Status == TxStatusBroadcasted
}

func (t *TxProposal) TotalAmount() int64 {
	var total int64
	for _, o := range t.Outputs {
		total += o.Amount
	}
	return total
}

func (t *TxProposal) GetAction(copayerID string) *Action {
	for i := range t.Actions {
		if t.Actions[i].CopayerID == copayerID {
			return &t.Actions[i]
		}
	}
	return nil
}

func (t *TxProposal) countActions(kind ActionType) int {
	n := 0
	for _, a := range t.Actions {
		if a.Type == kind {
			n++
		}
	}
	return n
}

// GetApprovers returns the ids of the copayers that accepted the proposal.
func (t *TxProposal) GetApprovers() []string {
	var ids []string
	for _, a := range t.Actions {
		if a.Type == ActionAccept {
			ids = append(ids, a.CopayerID)
		}
	}
	return ids
}

func (t *TxProposal) RejectedBy() []string {
	var ids []string
	for _, a := range t.Actions {
		if a.Type == ActionReject {
			ids = append(ids, a.CopayerID)
		}
	}
	return ids
}

// AddAction records a vote and moves the proposal to its next status:
// accepted once RequiredSignatures accepts are in, rejected once the rejects
// make the quorum unreachable (rejects > n - m).
func (t *TxProposal) AddAction(a Action) error {
	if t.GetAction(a.CopayerID) != nil {
		return ErrCopayerVoted
	}
	if t.Status != TxStatusPending {
		return ErrTxNotPending
	}
	if a.CreatedOn == 0 {
		a.CreatedOn = time.Now().Unix()
	}
	t.Actions = append(t.Actions, a)
	switch {
	case t.countActions(ActionAccept) >= t.RequiredSignatures:
		t.Status = TxStatusAccepted
	case t.countActions(ActionReject) > t.WalletN-t.RequiredSignatures:
		t.Status = TxStatusRejected
	}
	return nil
}

func (t *TxProposal) SetBroadcasted(txid string, at time.Time) {
	t.Status = TxStatusBroadcasted
	if txid != "" {
		t.TxID = txid
	}
	t.BroadcastedOn = at.Unix()
}

// LastRejectionTime is the newest reject vote, or creation time when no vote
// carries a timestamp.
func (t *TxProposal) LastRejectionTime() int64 {
	var last int64
	for _, a := range t.Actions {
		if a.Type == ActionReject && a.CreatedOn > last {
			last = a.CreatedOn
		}
	}
	if last == 0 {
		return t.CreatedOn
	}
	return last
}

type TxNote struct {
	WalletID  string `json:"walletId"`
	TxID      string `json:"txid"`
	Body      string `json:"body"`
	EditedBy  string `json:"editedBy"`
	EditedOn  int64  `json:"editedOn"`
	CreatedOn int64  `json:"createdOn"`
}

func NewTxNote(walletID, txid, copayerID, body string, now time.Time) *TxNote {
	return &TxNote{
		WalletID:  walletID,
		TxID:      txid,
		Body:      body,
		EditedBy:  copayerID,
		EditedOn:  now.Unix(),
		CreatedOn: now.Unix(),
	}
}

func (n *TxNote) Edit(body, copayerID string, now time.Time) {
	n.Body = body
	n.EditedBy = copayerID
	n.EditedOn = now.Unix()
}
