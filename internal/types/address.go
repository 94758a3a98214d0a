package types

import "fmt"

// Shared branch index used by BIP45 wallets for the wallet-level cursor.
const bip45SharedIndex = 2147483647

type AddressManager struct {
	DerivationStrategy  DerivationStrategy `json:"derivationStrategy"`
	ReceiveAddressIndex int                `json:"receiveAddressIndex"`
	ChangeAddressIndex  int                `json:"changeAddressIndex"`
	CopayerIndex        int                `json:"copayerIndex"`
}

func SupportsCopayerBranches(strategy DerivationStrategy) bool {
	return strategy == DerivationBIP45
}

// NewWalletAddressManager returns the wallet-level cursor. BIP45 wallets use
// the shared branch index.
func NewWalletAddressManager(strategy DerivationStrategy) *AddressManager {
	idx := 0
	if strategy == DerivationBIP45 {
		idx = bip45SharedIndex
	}
	return NewAddressManager(strategy, idx)
}

func NewAddressManager(strategy DerivationStrategy, copayerIndex int) *AddressManager {
	return &AddressManager{
		DerivationStrategy: strategy,
		CopayerIndex:       copayerIndex,
	}
}

func (am *AddressManager) currentPath(isChange bool) string {
	idx := am.ReceiveAddressIndex
	change := 0
	if isChange {
		idx = am.ChangeAddressIndex
		change = 1
	}
	if am.DerivationStrategy == DerivationBIP45 {
		return fmt.Sprintf("m/%d/%d/%d", am.CopayerIndex, change, idx)
	}
	return fmt.Sprintf("m/%d/%d", change, idx)
}

// NewAddressPath returns the next derivation path and advances the cursor.
func (am *AddressManager) NewAddressPath(isChange bool) string {
	path := am.currentPath(isChange)
	if isChange {
		am.ChangeAddressIndex++
	} else {
		am.ReceiveAddressIndex++
	}
	return path
}

// RewindIndex moves a cursor back by step, stopping at zero.
func (am *AddressManager) RewindIndex(isChange bool, step int) {
	if isChange {
		am.ChangeAddressIndex = max(0, am.ChangeAddressIndex-step)
		return
	}
	am.ReceiveAddressIndex = max(0, am.ReceiveAddressIndex-step)
}

type Address struct {
	Address     string      `json:"address"`
	WalletID    string      `json:"walletId"`
	Network     string      `json:"network"`
	Type        AddressType `json:"type"`
	Path        string      `json:"path"`
	PublicKeys  []string    `json:"publicKeys"`
	IsChange    bool        `json:"isChange"`
	HasActivity bool        `json:"hasActivity"`
	CreatedOn   int64       `json:"createdOn"`
}
