package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingProposal(m, n int) *TxProposal {
	return &TxProposal{
		ID:                 "txp-1",
		Status:             TxStatusPending,
		RequiredSignatures: m,
		WalletN:            n,
		CreatedOn:          1700000000,
	}
}

func TestTxProposal_AddAction(t *testing.T) {
	testCases := []struct {
		name       string
		m, n       int
		votes      []Action
		wantStatus TxProposalStatus
		wantErr    error
	}{
		{
			name: "2-of-3 accepted after two accepts",
			m:    2, n: 3,
			votes: []Action{
				{CopayerID: "a", Type: ActionAccept},
				{CopayerID: "b", Type: ActionAccept},
			},
			wantStatus: TxStatusAccepted,
		},
		{
			name: "2-of-3 stays pending after one reject",
			m:    2, n: 3,
			votes: []Action{
				{CopayerID: "a", Type: ActionReject},
			},
			wantStatus: TxStatusPending,
		},
		{
			name: "2-of-3 rejected after two rejects",
			m:    2, n: 3,
			votes: []Action{
				{CopayerID: "a", Type: ActionAccept},
				{CopayerID: "b", Type: ActionReject},
				{CopayerID: "c", Type: ActionReject},
			},
			wantStatus: TxStatusRejected,
		},
		{
			name: "2-of-2 rejected by first reject",
			m:    2, n: 2,
			votes: []Action{
				{CopayerID: "a", Type: ActionReject},
			},
			wantStatus: TxStatusRejected,
		},
		{
			name: "2-of-2 second vote after reject",
			m:    2, n: 2,
			votes: []Action{
				{CopayerID: "a", Type: ActionReject},
				{CopayerID: "b", Type: ActionAccept},
			},
			wantStatus: TxStatusRejected,
			wantErr:    ErrTxNotPending,
		},
		{
			name: "copayer votes twice",
			m:    2, n: 3,
			votes: []Action{
				{CopayerID: "a", Type: ActionAccept},
				{CopayerID: "a", Type: ActionReject},
			},
			wantStatus: TxStatusPending,
			wantErr:    ErrCopayerVoted,
		},
		{
			name: "1-of-1 accepted immediately",
			m:    1, n: 1,
			votes: []Action{
				{CopayerID: "a", Type: ActionAccept},
			},
			wantStatus: TxStatusAccepted,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			txp := pendingProposal(tc.m, tc.n)
			var err error
			for _, v := range tc.votes {
				if err = txp.AddAction(v); err != nil {
					break
				}
			}
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantStatus, txp.Status)
		})
	}
}

func TestTxProposal_VoteOnTemporary(t *testing.T) {
	txp := pendingProposal(1, 1)
	txp.Status = TxStatusTemporary
	err := txp.AddAction(Action{CopayerID: "a", Type: ActionAccept})
	assert.ErrorIs(t, err, ErrTxNotPending)
	assert.Empty(t, txp.Actions)
}

func TestTxProposal_Helpers(t *testing.T) {
	txp := pendingProposal(2, 3)
	txp.Outputs = []Output{{ToAddress: "x", Amount: 1000}, {ToAddress: "y", Amount: 2500}}
	assert.Equal(t, int64(3500), txp.TotalAmount())
	assert.Equal(t, int64(1700000000), txp.LastRejectionTime())

	require.NoError(t, txp.AddAction(Action{CopayerID: "a", Type: ActionAccept, CreatedOn: 1700000100}))
	require.NoError(t, txp.AddAction(Action{CopayerID: "b", Type: ActionReject, CreatedOn: 1700000200}))
	assert.Equal(t, []string{"a"}, txp.GetApprovers())
	assert.Equal(t, []string{"b"}, txp.RejectedBy())
	assert.Equal(t, int64(1700000200), txp.LastRejectionTime())
	assert.True(t, txp.IsPending())

	at := time.Unix(1700000300, 0)
	txp.SetBroadcasted("abcd", at)
	assert.True(t, txp.IsBroadcasted())
	assert.False(t, txp.IsPending())
	assert.Equal(t, "abcd", txp.TxID)
	assert.Equal(t, at.Unix(), txp.BroadcastedOn)
}
