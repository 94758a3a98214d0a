package coinselect

import (
	"math"
	"sort"

	"github.com/vultisig/vultiwallet/internal/types"
)

// Policy carries the wallet shape and every tunable selection knob.
type Policy struct {
	M           int
	N           int
	AddressType types.AddressType
	NumOutputs  int

	ExcludeUnconfirmed bool
	// Exclude lists outpoints as "txid:vout".
	Exclude []string

	MaxTxSizeInKb               float64
	MaxSingleUtxoFactor         float64
	MinTxAmountVsUtxoFactor     float64
	MaxFeeVsTxAmountFactor      float64
	MaxFeeVsSingleUtxoFeeFactor float64
	MinOutputAmount             int64
	DustAmount                  int64
}

const (
	DefaultMaxTxSizeInKb               = 100
	DefaultMaxSingleUtxoFactor         = 2
	DefaultMinTxAmountVsUtxoFactor     = 0.1
	DefaultMaxFeeVsTxAmountFactor      = 0.05
	DefaultMaxFeeVsSingleUtxoFeeFactor = 5
	DefaultMinOutputAmount             = 5000
	DefaultDustAmount                  = 546
)

func DefaultPolicy(m, n int, addressType types.AddressType) Policy {
	return Policy{
		M:                           m,
		N:                           n,
		AddressType:                 addressType,
		NumOutputs:                  1,
		MaxTxSizeInKb:               DefaultMaxTxSizeInKb,
		MaxSingleUtxoFactor:         DefaultMaxSingleUtxoFactor,
		MinTxAmountVsUtxoFactor:     DefaultMinTxAmountVsUtxoFactor,
		MaxFeeVsTxAmountFactor:      DefaultMaxFeeVsTxAmountFactor,
		MaxFeeVsSingleUtxoFeeFactor: DefaultMaxFeeVsSingleUtxoFeeFactor,
		MinOutputAmount:             DefaultMinOutputAmount,
		DustAmount:                  DefaultDustAmount,
	}
}

// DustThreshold is the smallest output worth creating.
func (p Policy) DustThreshold() int64 {
	return max(p.MinOutputAmount, p.DustAmount)
}

type Selection struct {
	Inputs []types.Utxo
	Fee    int64
	Size   int64
	Change int64
}

// confirmation tiers tried in order; 0 only when unconfirmed inputs are allowed
var tiers = []int64{6, 1, 0}

type selector struct {
	policy       Policy
	amount       int64
	baseSize     int64
	baseFee      float64
	sizePerInput int64
	feePerInput  float64
}

func newSelector(amount, feePerKb int64, policy Policy) *selector {
	baseSize := EstimateSize(policy.AddressType, policy.M, policy.N, 0, policy.NumOutputs)
	sizePerInput := InputSize(policy.AddressType, policy.M, policy.N)
	return &selector{
		policy:       policy,
		amount:       amount,
		baseSize:     baseSize,
		baseFee:      float64(baseSize) * float64(feePerKb) / 1000,
		sizePerInput: sizePerInput,
		feePerInput:  float64(sizePerInput) * float64(feePerKb) / 1000,
	}
}

// Select picks inputs from utxos to pay amount at feePerKb. The result only
// depends on its arguments.
func Select(utxos []types.Utxo, amount, feePerKb int64, policy Policy) (*Selection, error) {
	if amount <= 0 {
		return nil, types.NewClientError("invalid amount")
	}
	if err := checkBalance(utxos, amount, policy.ExcludeUnconfirmed); err != nil {
		return nil, err
	}

	s := newSelector(amount, feePerKb, policy)
	candidates := s.sanitize(utxos)

	var (
		selection  *Selection
		lastErr    error
		lastLength = -1
	)
	for _, tier := range tiers {
		if tier == 0 && policy.ExcludeUnconfirmed {
			break
		}
		group := filterConfirmed(candidates, tier)
		if len(group) == lastLength {
			continue
		}
		lastLength = len(group)

		sel, err := s.selectFrom(group)
		if err != nil {
			lastErr = err
			continue
		}
		selection = sel
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, lastErr
	}
	if selection == nil {
		return nil, types.ErrInsufficientFundsForFee
	}

	selection.Size = EstimateSize(policy.AddressType, policy.M, policy.N, len(selection.Inputs), policy.NumOutputs)
	if float64(selection.Size)/1000 > policy.MaxTxSizeInKb {
		return nil, types.ErrTxMaxSizeExceeded
	}
	selection.Change = types.SumSatoshis(selection.Inputs) - amount - selection.Fee
	if selection.Change < 0 {
		return nil, types.ErrInsufficientFundsForFee
	}
	return selection, nil
}

// checkBalance runs before any selection so a wallet whose funds are only
// held by pending proposals reports LockedFunds.
func checkBalance(utxos []types.Utxo, amount int64, excludeUnconfirmed bool) error {
	var total, locked int64
	for _, u := range utxos {
		if excludeUnconfirmed && u.Confirmations == 0 {
			continue
		}
		total += u.Satoshis
		if u.Locked {
			locked += u.Satoshis
		}
	}
	if total < amount {
		return types.ErrInsufficientFunds
	}
	if total-locked < amount {
		return types.ErrLockedFunds
	}
	return nil
}

func (s *selector) sanitize(utxos []types.Utxo) []types.Utxo {
	excluded := make(map[string]struct{}, len(s.policy.Exclude))
	for _, k := range s.policy.Exclude {
		excluded[k] = struct{}{}
	}
	out := make([]types.Utxo, 0, len(utxos))
	for _, u := range utxos {
		if u.Locked {
			continue
		}
		if float64(u.Satoshis) <= s.feePerInput {
			continue
		}
		if s.policy.ExcludeUnconfirmed && u.Confirmations == 0 {
			continue
		}
		if _, ok := excluded[u.Key()]; ok {
			continue
		}
		out = append(out, u)
	}
	return out
}

func filterConfirmed(utxos []types.Utxo, minConfirmations int64) []types.Utxo {
	out := make([]types.Utxo, 0, len(utxos))
	for _, u := range utxos {
		if u.Confirmations >= minConfirmations {
			out = append(out, u)
		}
	}
	return out
}

func (s *selector) selectFrom(utxos []types.Utxo) (*Selection, error) {
	p := s.policy
	amount := float64(s.amount)

	total := types.SumSatoshis(utxos)
	if total < s.amount {
		return nil, types.ErrInsufficientFunds
	}
	net := float64(total) - s.baseFee - float64(len(utxos))*s.feePerInput
	if net < amount {
		return nil, types.ErrInsufficientFundsForFee
	}

	bigThreshold := amount*p.MaxSingleUtxoFactor + s.baseFee + s.feePerInput
	var big, small []types.Utxo
	for _, u := range utxos {
		if float64(u.Satoshis) > bigThreshold {
			big = append(big, u)
		} else {
			small = append(small, u)
		}
	}
	sort.SliceStable(big, func(i, j int) bool { return big[i].Satoshis < big[j].Satoshis })
	sort.SliceStable(small, func(i, j int) bool { return small[i].Satoshis > small[j].Satoshis })

	var (
		selected []types.Utxo
		gross    int64
		netTotal = -s.baseFee
		fee      int64
		err      error
	)
	for _, u := range small {
		netInput := float64(u.Satoshis) - s.feePerInput
		selected = append(selected, u)
		gross += u.Satoshis
		netTotal += netInput

		size := s.baseSize + int64(len(selected))*s.sizePerInput
		fee = int64(math.Round(s.baseFee + float64(len(selected))*s.feePerInput))

		if float64(size)/1000 > p.MaxTxSizeInKb {
			err = types.ErrTxMaxSizeExceeded
			break
		}

		if len(big) > 0 {
			if netInput/amount < p.MinTxAmountVsUtxoFactor {
				break
			}
			if float64(fee)/amount > p.MaxFeeVsTxAmountFactor {
				singleInputFee := s.baseFee + s.feePerInput
				if float64(fee)/singleInputFee > p.MaxFeeVsSingleUtxoFeeFactor {
					break
				}
			}
		}

		if netTotal >= amount {
			change := int64(math.Round(float64(gross - s.amount - fee)))
			if change > 0 && change <= p.DustThreshold() {
				fee += change
			}
			break
		}
	}

	if netTotal < amount {
		selected = nil
		if len(big) > 0 {
			selected = []types.Utxo{big[0]}
			fee = int64(math.Round(s.baseFee + s.feePerInput))
		}
	}
	if len(selected) == 0 {
		if err != nil {
			return nil, err
		}
		return nil, types.ErrInsufficientFundsForFee
	}
	return &Selection{Inputs: selected, Fee: fee}, nil
}
