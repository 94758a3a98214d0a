package service

import (
	"github.com/vultisig/vultiwallet/internal/types"
	"github.com/vultisig/vultiwallet/internal/validation"
)

type CreateWalletRequest struct {
	ID            string `json:"id"`
	Name          string `json:"name" validate:"required"`
	M             int    `json:"m" validate:"required"`
	N             int    `json:"n" validate:"required"`
	PubKey        string `json:"pubKey" validate:"required,hexadecimal"`
	Network       string `json:"network" validate:"network"`
	SingleAddress bool   `json:"singleAddress"`
	// SupportBIP44AndP2PKH defaults to true.
	SupportBIP44AndP2PKH *bool `json:"supportBIP44AndP2PKH"`
}

func (r *CreateWalletRequest) IsValid() error {
	if r.Network != "" && r.Network != types.NetworkLivenet && r.Network != types.NetworkTestnet {
		return types.NewClientError("Invalid network")
	}
	if err := validation.Struct(r); err != nil {
		return err
	}
	if !types.VerifyCopayerLimits(r.M, r.N) {
		return types.NewClientError("Invalid combination of required copayers / total copayers")
	}
	return nil
}

type JoinWalletRequest struct {
	WalletID             string `json:"walletId" validate:"required"`
	Name                 string `json:"name" validate:"required"`
	XPubKey              string `json:"xPubKey" validate:"required"`
	RequestPubKey        string `json:"requestPubKey" validate:"required,hexadecimal"`
	CopayerSignature     string `json:"copayerSignature" validate:"required,hexadecimal"`
	CustomData           string `json:"customData"`
	SupportBIP44AndP2PKH *bool  `json:"supportBIP44AndP2PKH"`
	DryRun               bool   `json:"dryRun"`
}

func (r *JoinWalletRequest) IsValid() error {
	return validation.Struct(r)
}

type AddAccessRequest struct {
	CopayerID     string `json:"copayerId" validate:"required"`
	RequestPubKey string `json:"requestPubKey" validate:"required,hexadecimal"`
	Signature     string `json:"signature" validate:"required,hexadecimal"`
	Name          string `json:"name"`
}

func (r *AddAccessRequest) IsValid() error {
	return validation.Struct(r)
}

type PreferencesRequest struct {
	types.Preferences
}

func (r *PreferencesRequest) IsValid() error {
	return validation.Struct(r)
}

type EditTxNoteRequest struct {
	TxID string `json:"txid" validate:"required"`
	Body string `json:"body" validate:"max=500"`
}

func (r *EditTxNoteRequest) IsValid() error {
	return validation.Struct(r)
}
