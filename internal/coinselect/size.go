package coinselect

import (
	"math"

	"github.com/vultisig/vultiwallet/internal/types"
)

const (
	txOverheadSize   = 4 + 4 + 9 + 9
	outputSize       = 34
	p2pkhInputSize   = 147
	sizeSafetyMargin = 0.02
)

// InputSize estimates the serialized size of one input. P2SH multisig inputs
// grow with the signature count and the redeem script.
func InputSize(addressType types.AddressType, m, n int) int64 {
	if addressType == types.AddressTypeP2PKH {
		return p2pkhInputSize
	}
	return int64(m*72 + n*36 + 44)
}

// EstimateSize estimates the serialized size of a transaction with nbInputs
// inputs, nbOutputs outputs and one change output.
func EstimateSize(addressType types.AddressType, m, n, nbInputs, nbOutputs int) int64 {
	outs := max(1, nbOutputs) + 1
	size := txOverheadSize + InputSize(addressType, m, n)*int64(nbInputs) + outputSize*int64(outs)
	return int64(math.Round(float64(size) * (1 + sizeSafetyMargin)))
}

// EstimateFee rounds feePerKb scaled to size bytes.
func EstimateFee(size, feePerKb int64) int64 {
	return int64(math.Round(float64(size) * float64(feePerKb) / 1000))
}
