package coinselect

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/vultiwallet/internal/types"
)

func utxo(n int, satoshis, confirmations int64) types.Utxo {
	return types.Utxo{
		TxID:          fmt.Sprintf("%064x", n),
		Vout:          uint32(n % 4),
		Address:       "2N7Ka1z9Pmqmr8ZUiy6UH5bT4RjEp6nyoVn",
		Satoshis:      satoshis,
		Confirmations: confirmations,
	}
}

func amounts(utxos []types.Utxo) []int64 {
	out := make([]int64, 0, len(utxos))
	for _, u := range utxos {
		out = append(out, u.Satoshis)
	}
	return out
}

func TestEstimateSize(t *testing.T) {
	assert.Equal(t, int64(296), InputSize(types.AddressTypeP2SH, 2, 3))
	assert.Equal(t, int64(147), InputSize(types.AddressTypeP2PKH, 1, 1))
	// (26 + 34*2) * 1.02 = 95.88
	assert.Equal(t, int64(96), EstimateSize(types.AddressTypeP2SH, 2, 3, 0, 1))
	// (26 + 296*2 + 34*3) * 1.02 = 734.4
	assert.Equal(t, int64(734), EstimateSize(types.AddressTypeP2SH, 2, 3, 2, 2))
	assert.Equal(t, int64(73), EstimateFee(734, 100))
}

func TestSelect_SmallInputsPreferredOverBigOne(t *testing.T) {
	utxos := []types.Utxo{
		utxo(1, 100000, 10),
		utxo(2, 50000, 10),
		utxo(3, 10000, 10),
	}
	policy := DefaultPolicy(2, 3, types.AddressTypeP2SH)
	// 100k is "big" only when it exceeds 60k * factor; at the default factor
	// of 2 every input is small and the largest one covers the target.
	policy.MaxSingleUtxoFactor = 1.5

	sel, err := Select(utxos, 60000, 0, policy)
	require.NoError(t, err)
	assert.Equal(t, []int64{50000, 10000}, amounts(sel.Inputs))
	assert.Equal(t, int64(0), sel.Fee)
	assert.Equal(t, int64(0), sel.Change)
}

func TestSelect_DefaultFactorUsesLargestSmallInput(t *testing.T) {
	utxos := []types.Utxo{
		utxo(1, 100000, 10),
		utxo(2, 50000, 10),
		utxo(3, 10000, 10),
	}
	sel, err := Select(utxos, 60000, 0, DefaultPolicy(2, 3, types.AddressTypeP2SH))
	require.NoError(t, err)
	assert.Equal(t, []int64{100000}, amounts(sel.Inputs))
	assert.Equal(t, int64(40000), sel.Change)
}

func TestSelect_FallsBackToSmallestBigInput(t *testing.T) {
	utxos := []types.Utxo{
		utxo(1, 500000, 10),
		utxo(2, 300000, 10),
		utxo(3, 10000, 10),
	}
	// 10k alone can't reach 50k, so the smallest big input is used
	sel, err := Select(utxos, 50000, 1000, DefaultPolicy(2, 3, types.AddressTypeP2SH))
	require.NoError(t, err)
	assert.Equal(t, []int64{300000}, amounts(sel.Inputs))
	// base 96 + one input 296 at 1 sat/byte
	assert.Equal(t, int64(392), sel.Fee)
}

func TestSelect_IsDeterministic(t *testing.T) {
	var utxos []types.Utxo
	for i := 0; i < 40; i++ {
		utxos = append(utxos, utxo(i, int64(1000+i*733), int64(i%8)))
	}
	policy := DefaultPolicy(2, 3, types.AddressTypeP2SH)

	first, err := Select(utxos, 70000, 2000, policy)
	require.NoError(t, err)
	second, err := Select(utxos, 70000, 2000, policy)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSelect_Errors(t *testing.T) {
	policy := DefaultPolicy(2, 3, types.AddressTypeP2SH)
	tests := []struct {
		name     string
		utxos    []types.Utxo
		amount   int64
		feePerKb int64
		policy   func(p Policy) Policy
		wantErr  error
	}{
		{
			name:    "gross sum below target",
			utxos:   []types.Utxo{utxo(1, 10000, 10), utxo(2, 20000, 10)},
			amount:  40000,
			wantErr: types.ErrInsufficientFunds,
		},
		{
			name:     "gross sum covers target but fees do not",
			utxos:    []types.Utxo{utxo(1, 10000, 10)},
			amount:   9900,
			feePerKb: 10000,
			wantErr:  types.ErrInsufficientFundsForFee,
		},
		{
			name: "funds held by pending proposals",
			utxos: []types.Utxo{
				{TxID: "aa", Satoshis: 50000, Confirmations: 10, Locked: true},
				utxo(2, 10000, 10),
			},
			amount:  20000,
			wantErr: types.ErrLockedFunds,
		},
		{
			name:   "unconfirmed excluded",
			utxos:  []types.Utxo{utxo(1, 50000, 0), utxo(2, 10000, 3)},
			amount: 20000,
			policy: func(p Policy) Policy {
				p.ExcludeUnconfirmed = true
				return p
			},
			wantErr: types.ErrInsufficientFunds,
		},
		{
			name:   "explicitly excluded outpoint",
			utxos:  []types.Utxo{utxo(1, 50000, 10), utxo(2, 10000, 10)},
			amount: 20000,
			policy: func(p Policy) Policy {
				p.Exclude = []string{utxo(1, 0, 0).Key()}
				return p
			},
			wantErr: types.ErrInsufficientFunds,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := policy
			if tt.policy != nil {
				p = tt.policy(p)
			}
			_, err := Select(tt.utxos, tt.amount, tt.feePerKb, p)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSelect_MaxSize(t *testing.T) {
	var utxos []types.Utxo
	for i := 0; i < 400; i++ {
		utxos = append(utxos, utxo(i, 1000, 10))
	}
	_, err := Select(utxos, 390000, 0, DefaultPolicy(2, 3, types.AddressTypeP2SH))
	assert.ErrorIs(t, err, types.ErrTxMaxSizeExceeded)

	// the same set at a size the cap allows
	sel, err := Select(utxos, 300000, 0, DefaultPolicy(2, 3, types.AddressTypeP2SH))
	require.NoError(t, err)
	assert.Len(t, sel.Inputs, 300)
	assert.LessOrEqual(t, float64(sel.Size)/1000, float64(DefaultMaxTxSizeInKb))
}

func TestSelect_DustChangeFoldedIntoFee(t *testing.T) {
	utxos := []types.Utxo{utxo(1, 52000, 10)}
	sel, err := Select(utxos, 50000, 1000, DefaultPolicy(2, 3, types.AddressTypeP2SH))
	require.NoError(t, err)
	assert.Equal(t, int64(2000), sel.Fee)
	assert.Equal(t, int64(0), sel.Change)
}

func TestSelect_PrefersConfirmedTier(t *testing.T) {
	utxos := []types.Utxo{
		utxo(1, 80000, 0),
		utxo(2, 70000, 7),
	}
	sel, err := Select(utxos, 60000, 0, DefaultPolicy(2, 3, types.AddressTypeP2SH))
	require.NoError(t, err)
	assert.Equal(t, []int64{70000}, amounts(sel.Inputs))

	// only unconfirmed funds can cover a larger target
	sel, err = Select(utxos, 100000, 0, DefaultPolicy(2, 3, types.AddressTypeP2SH))
	require.NoError(t, err)
	assert.Equal(t, []int64{80000, 70000}, amounts(sel.Inputs))
}

func TestSendMax(t *testing.T) {
	utxos := []types.Utxo{
		utxo(1, 100000, 10),
		utxo(2, 50000, 10),
		utxo(3, 100, 10),
		{TxID: "locked", Satoshis: 70000, Confirmations: 10, Locked: true},
	}
	info := SendMax(utxos, 1000, DefaultPolicy(2, 3, types.AddressTypeP2SH))
	assert.Equal(t, 1, info.UtxosBelowFee)
	assert.Equal(t, int64(100), info.AmountBelowFee)
	assert.Equal(t, []int64{100000, 50000}, amounts(info.Inputs))
	// size (26 + 2*296 + 2*34) * 1.02 = 699.72
	assert.Equal(t, int64(700), info.Size)
	assert.Equal(t, int64(700), info.Fee)
	assert.Equal(t, int64(149300), info.Amount)
}

func TestCheckInputs(t *testing.T) {
	policy := DefaultPolicy(2, 3, types.AddressTypeP2SH)
	inputs := []types.Utxo{utxo(1, 60000, 10)}

	sel, err := CheckInputs(inputs, 50000, 0, 1000, policy)
	require.NoError(t, err)
	// (26 + 296 + 68) * 1.02 = 397.8
	assert.Equal(t, int64(398), sel.Fee)
	assert.Equal(t, int64(9602), sel.Change)

	_, err = CheckInputs(inputs, 59800, 0, 1000, policy)
	assert.ErrorIs(t, err, types.ErrInsufficientFundsForFee)

	_, err = CheckInputs(inputs, 59000, 600, 0, policy)
	assert.ErrorIs(t, err, types.ErrDustAmount)
}
