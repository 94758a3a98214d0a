package chainhelper

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/vultisig/vultiwallet/internal/types"
)

// ParsePath splits "m/a/b/c" into child indexes. Hardened steps are refused;
// everything here is derived from extended public keys.
func ParsePath(path string) ([]uint32, error) {
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, fmt.Errorf("invalid derivation path: %s", path)
	}
	out := make([]uint32, 0, len(parts)-1)
	for _, p := range parts[1:] {
		idx, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid derivation path %s: %w", path, err)
		}
		if idx >= uint64(hdkeychain.HardenedKeyStart) {
			return nil, fmt.Errorf("hardened derivation not supported: %s", path)
		}
		out = append(out, uint32(idx))
	}
	return out, nil
}

// DerivePubKey derives the public key at path from a serialized xpub.
func DerivePubKey(xPubKey, path string) (*btcec.PublicKey, error) {
	key, err := hdkeychain.NewKeyFromString(xPubKey)
	if err != nil {
		return nil, fmt.Errorf("fail to parse xpub: %w", err)
	}
	steps, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	for _, step := range steps {
		key, err = key.Derive(step)
		if err != nil {
			return nil, fmt.Errorf("fail to derive child %d: %w", step, err)
		}
	}
	return key.ECPubKey()
}

// SortedPubKeys returns compressed keys in lexicographic hex order, which
// is also the order they take in the redeem script.
func SortedPubKeys(keys []*btcec.PublicKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, hex.EncodeToString(k.SerializeCompressed()))
	}
	sort.Strings(out)
	return out
}

func SortedPubKeysHex(pubKeys []string) []string {
	sorted := append([]string(nil), pubKeys...)
	sort.Strings(sorted)
	return sorted
}

// RedeemScript builds the m-of-n multisig script for hex public keys.
func RedeemScript(pubKeys []string, m int, params *chaincfg.Params) ([]byte, error) {
	sorted := SortedPubKeysHex(pubKeys)
	addrs := make([]*btcutil.AddressPubKey, 0, len(sorted))
	for _, pk := range sorted {
		raw, err := hex.DecodeString(pk)
		if err != nil {
			return nil, fmt.Errorf("fail to decode public key: %w", err)
		}
		a, err := btcutil.NewAddressPubKey(raw, params)
		if err != nil {
			return nil, fmt.Errorf("fail to parse public key: %w", err)
		}
		addrs = append(addrs, a)
	}
	return txscript.MultiSigScript(addrs, m)
}

// DeriveAddress derives the wallet address at path from the copayers'
// extended public keys.
func DeriveAddress(w *types.Wallet, path string, isChange bool) (*types.Address, error) {
	params, err := NetParams(w.Network)
	if err != nil {
		return nil, err
	}
	ring := w.PublicKeyRing()
	keys := make([]*btcec.PublicKey, 0, len(ring))
	for _, xpub := range ring {
		k, err := DerivePubKey(xpub, path)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("wallet %s has no copayers", w.ID)
	}
	pubKeys := SortedPubKeys(keys)

	var encoded string
	switch w.AddressType {
	case types.AddressTypeP2PKH:
		a, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(keys[0].SerializeCompressed()), params)
		if err != nil {
			return nil, fmt.Errorf("fail to build p2pkh address: %w", err)
		}
		encoded = a.EncodeAddress()
	default:
		script, err := RedeemScript(pubKeys, w.M, params)
		if err != nil {
			return nil, fmt.Errorf("fail to build redeem script: %w", err)
		}
		a, err := btcutil.NewAddressScriptHash(script, params)
		if err != nil {
			return nil, fmt.Errorf("fail to build p2sh address: %w", err)
		}
		encoded = a.EncodeAddress()
	}

	return &types.Address{
		Address:    encoded,
		WalletID:   w.ID,
		Network:    w.Network,
		Type:       w.AddressType,
		Path:       path,
		PublicKeys: pubKeys,
		IsChange:   isChange,
		CreatedOn:  time.Now().Unix(),
	}, nil
}
