package api

import (
	"github.com/vultisig/vultiwallet/internal/txproposal"
	"github.com/vultisig/vultiwallet/internal/types"
)

type BroadcastRawRequest struct {
	Network string `json:"network" validate:"network"`
	RawTx   string `json:"rawTx" validate:"required,hexadecimal"`
}

type CreateAddressRequest struct {
	IgnoreMaxGap bool `json:"ignoreMaxGap"`
}

type ScanRequest struct {
	IncludeCopayerBranches bool `json:"includeCopayerBranches"`
}

type VerifyMessageRequest struct {
	Message   string `json:"message" validate:"required"`
	Signature string `json:"signature" validate:"required,hexadecimal"`
}

type CreateTxRequest struct {
	TxProposalID            string         `json:"txProposalId"`
	Outputs                 []types.Output `json:"outputs" validate:"required,min=1,dive"`
	Message                 string         `json:"message"`
	FeeLevel                string         `json:"feeLevel"`
	FeePerKb                *int64         `json:"feePerKb" validate:"omitempty,gt=0"`
	Fee                     *int64         `json:"fee" validate:"omitempty,gt=0"`
	ChangeAddress           string         `json:"changeAddress"`
	SendMax                 bool           `json:"sendMax"`
	ExcludeUnconfirmedUtxos bool           `json:"excludeUnconfirmedUtxos"`
	Inputs                  []types.Utxo   `json:"inputs"`
	UtxosToExclude          []string       `json:"utxosToExclude"`
	DryRun                  bool           `json:"dryRun"`
	CustomData              string         `json:"customData"`
}

func (r *CreateTxRequest) Options() txproposal.CreateOptions {
	return txproposal.CreateOptions{
		TxProposalID: r.TxProposalID,
		Outputs:      r.Outputs,
		Message:      r.Message,
		Fee: txproposal.FeeOptions{
			FeeLevel: r.FeeLevel,
			FeePerKb: r.FeePerKb,
			Fee:      r.Fee,
		},
		ChangeAddress:           r.ChangeAddress,
		SendMax:                 r.SendMax,
		ExcludeUnconfirmedUtxos: r.ExcludeUnconfirmedUtxos,
		Inputs:                  r.Inputs,
		UtxosToExclude:          r.UtxosToExclude,
		DryRun:                  r.DryRun,
		CustomData:              r.CustomData,
	}
}

type PublishTxRequest struct {
	ProposalSignature string `json:"proposalSignature"`
}

type SignTxRequest struct {
	Signatures []string `json:"signatures" validate:"required,min=1,dive,hexadecimal"`
}

type RejectTxRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type EditTxNoteBody struct {
	Body string `json:"body"`
}
