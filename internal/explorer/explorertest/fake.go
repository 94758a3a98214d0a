// Package explorertest provides an in-memory Explorer for tests.
package explorertest

import (
	"context"
	"sync"

	"github.com/vultisig/vultiwallet/internal/explorer"
	"github.com/vultisig/vultiwallet/internal/types"
)

var _ explorer.Explorer = (*Fake)(nil)

// Fake serves canned chain data. Set the exported fields before use, or
// through the setters once the fake is shared with other goroutines.
type Fake struct {
	mu sync.Mutex

	Utxos        []types.Utxo
	Activity     map[string]bool
	Txs          map[string]*types.ChainTx
	History      []types.ChainTx
	Fees         map[int]int64
	FeeErr       error
	Height       int64
	HeightErr    error
	BroadcastErr error

	Broadcasted  []string
	HistoryCalls int
}

func New() *Fake {
	return &Fake{
		Activity: map[string]bool{},
		Txs:      map[string]*types.ChainTx{},
		Fees:     map[int]int64{},
	}
}

func (f *Fake) SetUtxos(utxos []types.Utxo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Utxos = utxos
}

func (f *Fake) AddTransaction(tx types.ChainTx) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Txs[tx.TxID] = &tx
}

func (f *Fake) GetUtxos(_ context.Context, addresses []string) ([]types.Utxo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		wanted[a] = true
	}
	out := []types.Utxo{}
	for _, u := range f.Utxos {
		if wanted[u.Address] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *Fake) GetAddressActivity(_ context.Context, address string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Activity[address], nil
}

func (f *Fake) GetTransaction(_ context.Context, txid string) (*types.ChainTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.Txs[txid]
	if !ok {
		return nil, nil
	}
	c := *tx
	return &c, nil
}

func (f *Fake) GetTransactions(_ context.Context, _ []string, from, to int) ([]types.ChainTx, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.HistoryCalls++
	total := int64(len(f.History))
	if from >= len(f.History) {
		return []types.ChainTx{}, total, nil
	}
	to = min(to, len(f.History))
	return append([]types.ChainTx(nil), f.History[from:to]...), total, nil
}

func (f *Fake) EstimateFee(_ context.Context, nbBlocks []int) (map[int]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FeeErr != nil {
		return nil, f.FeeErr
	}
	out := make(map[int]int64, len(nbBlocks))
	for _, n := range nbBlocks {
		rate, ok := f.Fees[n]
		if !ok {
			rate = -1
		}
		out[n] = rate
	}
	return out, nil
}

func (f *Fake) GetBlockchainHeight(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Height, f.HeightErr
}

func (f *Fake) Broadcast(_ context.Context, rawTx string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BroadcastErr != nil {
		return "", f.BroadcastErr
	}
	f.Broadcasted = append(f.Broadcasted, rawTx)
	return "", nil
}
