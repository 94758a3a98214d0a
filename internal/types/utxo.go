package types

import "fmt"

// Utxo is computed per query from the explorer and never persisted on its own.
// Proposals keep a copy of the ones they spend.
type Utxo struct {
	TxID          string   `json:"txid"`
	Vout          uint32   `json:"vout"`
	Address       string   `json:"address"`
	ScriptPubKey  string   `json:"scriptPubKey,omitempty"`
	Satoshis      int64    `json:"satoshis"`
	Confirmations int64    `json:"confirmations"`
	Locked        bool     `json:"locked"`
	Spent         bool     `json:"spent,omitempty"`
	Path          string   `json:"path,omitempty"`
	PublicKeys    []string `json:"publicKeys,omitempty"`
}

// Key identifies the outpoint as "txid:vout".
func (u Utxo) Key() string {
	return fmt.Sprintf("%s:%d", u.TxID, u.Vout)
}

func SumSatoshis(utxos []Utxo) int64 {
	var total int64
	for _, u := range utxos {
		total += u.Satoshis
	}
	return total
}

type AddressBalance struct {
	Address string `json:"address"`
	Path    string `json:"path"`
	Amount  int64  `json:"amount"`
}

type Balance struct {
	TotalAmount              int64            `json:"totalAmount"`
	LockedAmount             int64            `json:"lockedAmount"`
	TotalConfirmedAmount     int64            `json:"totalConfirmedAmount"`
	LockedConfirmedAmount    int64            `json:"lockedConfirmedAmount"`
	AvailableAmount          int64            `json:"availableAmount"`
	AvailableConfirmedAmount int64            `json:"availableConfirmedAmount"`
	ByAddress                []AddressBalance `json:"byAddress"`
}

// Equal compares totals and per-address amounts.
func (b *Balance) Equal(o *Balance) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.TotalAmount != o.TotalAmount ||
		b.LockedAmount != o.LockedAmount ||
		b.TotalConfirmedAmount != o.TotalConfirmedAmount ||
		b.LockedConfirmedAmount != o.LockedConfirmedAmount ||
		b.AvailableAmount != o.AvailableAmount ||
		b.AvailableConfirmedAmount != o.AvailableConfirmedAmount ||
		len(b.ByAddress) != len(o.ByAddress) {
		return false
	}
	for i := range b.ByAddress {
		if b.ByAddress[i] != o.ByAddress[i] {
			return false
		}
	}
	return true
}

type SendMaxInfo struct {
	Size               int64  `json:"size"`
	Amount             int64  `json:"amount"`
	Fee                int64  `json:"fee"`
	FeePerKb           int64  `json:"feePerKb"`
	Inputs             []Utxo `json:"inputs"`
	UtxosBelowFee      int    `json:"utxosBelowFee"`
	AmountBelowFee     int64  `json:"amountBelowFee"`
	UtxosAboveMaxSize  int    `json:"utxosAboveMaxSize"`
	AmountAboveMaxSize int64  `json:"amountAboveMaxSize"`
}

type FeeLevelValue struct {
	Level    string `json:"level"`
	FeePerKb int64  `json:"feePerKb"`
	NbBlocks *int   `json:"nbBlocks"`
}
