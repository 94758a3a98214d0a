package explorer

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vultisig/vultiwallet/internal/types"
)

// Explorer is the blockchain data source. Amounts are returned in atomic
// units; fee rates in atomic units per kB.
type Explorer interface {
	GetUtxos(ctx context.Context, addresses []string) ([]types.Utxo, error)
	GetAddressActivity(ctx context.Context, address string) (bool, error)
	// GetTransaction returns nil without error when the tx is unknown.
	GetTransaction(ctx context.Context, txid string) (*types.ChainTx, error)
	// GetTransactions pages through the addresses' history, newest first.
	GetTransactions(ctx context.Context, addresses []string, from, to int) ([]types.ChainTx, int64, error)
	// EstimateFee returns a rate per target; negative rates mean the node
	// could not estimate that target.
	EstimateFee(ctx context.Context, nbBlocks []int) (map[int]int64, error)
	GetBlockchainHeight(ctx context.Context) (int64, error)
	Broadcast(ctx context.Context, rawTx string) (string, error)
}

var satoshisPerCoin = decimal.New(1, 8)

// ToSatoshis converts a coin-denominated amount, rounding to the nearest unit.
func ToSatoshis(amount decimal.Decimal) int64 {
	return amount.Mul(satoshisPerCoin).Round(0).IntPart()
}

// Registry holds one explorer per network name.
type Registry map[string]Explorer

func (r Registry) Get(network string) (Explorer, error) {
	e, ok := r[network]
	if !ok || e == nil {
		return nil, fmt.Errorf("no explorer configured for network %q", network)
	}
	return e, nil
}
