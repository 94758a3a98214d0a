package chainhelper

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/vultisig/vultiwallet/internal/types"
)

// NetParams maps a wallet network name to its chain parameters.
func NetParams(network string) (*chaincfg.Params, error) {
	switch network {
	case types.NetworkLivenet:
		return &chaincfg.MainNetParams, nil
	case types.NetworkTestnet:
		return &chaincfg.TestNet3Params, nil
	default:
		return nil, fmt.Errorf("unsupported network: %s", network)
	}
}

func otherNetwork(network string) string {
	if network == types.NetworkLivenet {
		return types.NetworkTestnet
	}
	return types.NetworkLivenet
}

// DecodeAddress parses address for network. Addresses that only parse on
// the other network return ErrIncorrectAddressNetwork.
func DecodeAddress(address, network string) (btcutil.Address, error) {
	params, err := NetParams(network)
	if err != nil {
		return nil, err
	}
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		other, _ := NetParams(otherNetwork(network))
		if _, otherErr := btcutil.DecodeAddress(address, other); otherErr == nil {
			return nil, types.ErrIncorrectAddressNetwork
		}
		return nil, types.ErrInvalidAddress
	}
	if !addr.IsForNet(params) {
		return nil, types.ErrIncorrectAddressNetwork
	}
	return addr, nil
}

func ValidateAddress(address, network string) error {
	_, err := DecodeAddress(address, network)
	return err
}
