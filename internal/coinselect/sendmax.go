package coinselect

import (
	"sort"

	"github.com/vultisig/vultiwallet/internal/types"
)

// SendMax computes the largest single-output payment the utxos can fund at
// feePerKb, reporting what had to be left out.
func SendMax(utxos []types.Utxo, feePerKb int64, policy Policy) *types.SendMaxInfo {
	info := &types.SendMaxInfo{FeePerKb: feePerKb, Inputs: []types.Utxo{}}

	inputs := make([]types.Utxo, 0, len(utxos))
	for _, u := range utxos {
		if u.Locked {
			continue
		}
		if policy.ExcludeUnconfirmed && u.Confirmations == 0 {
			continue
		}
		inputs = append(inputs, u)
	}
	if len(inputs) == 0 {
		return info
	}
	sort.SliceStable(inputs, func(i, j int) bool { return inputs[i].Satoshis > inputs[j].Satoshis })

	s := newSelector(0, feePerKb, Policy{M: policy.M, N: policy.N, AddressType: policy.AddressType, NumOutputs: 1})

	aboveFee := make([]types.Utxo, 0, len(inputs))
	for _, u := range inputs {
		if float64(u.Satoshis) > s.feePerInput {
			aboveFee = append(aboveFee, u)
			continue
		}
		info.UtxosBelowFee++
		info.AmountBelowFee += u.Satoshis
	}

	var selected []types.Utxo
	for i, u := range aboveFee {
		sizeInKb := float64(s.baseSize+int64(i+1)*s.sizePerInput) / 1000
		if sizeInKb > policy.MaxTxSizeInKb {
			info.UtxosAboveMaxSize = len(aboveFee) - i
			info.AmountAboveMaxSize = types.SumSatoshis(aboveFee[i:])
			break
		}
		selected = append(selected, u)
	}
	if len(selected) == 0 {
		return info
	}

	size := EstimateSize(policy.AddressType, policy.M, policy.N, len(selected), 1)
	fee := EstimateFee(size, feePerKb)
	amount := types.SumSatoshis(selected) - fee
	if amount < policy.MinOutputAmount {
		return info
	}

	info.Size = size
	info.Fee = fee
	info.Amount = amount
	info.Inputs = selected
	return info
}

// CheckInputs validates a caller-supplied input set and returns the fee to
// use. A zero fee is estimated from feePerKb.
func CheckInputs(inputs []types.Utxo, amount, fee, feePerKb int64, policy Policy) (*Selection, error) {
	size := EstimateSize(policy.AddressType, policy.M, policy.N, len(inputs), policy.NumOutputs)
	if float64(size)/1000 > policy.MaxTxSizeInKb {
		return nil, types.ErrTxMaxSizeExceeded
	}
	if fee == 0 {
		fee = EstimateFee(size, feePerKb)
	}
	change := types.SumSatoshis(inputs) - amount - fee
	if change < 0 {
		return nil, types.ErrInsufficientFundsForFee
	}
	if change > 0 && change < policy.DustAmount {
		return nil, types.ErrDustAmount
	}
	return &Selection{Inputs: inputs, Fee: fee, Size: size, Change: change}, nil
}
