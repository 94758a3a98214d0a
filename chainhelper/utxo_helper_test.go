package chainhelper

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/vultiwallet/internal/types"
)

type testCopayer struct {
	master *hdkeychain.ExtendedKey
	xpub   string
}

func newTestCopayers(t *testing.T, n int) []testCopayer {
	t.Helper()
	out := make([]testCopayer, 0, n)
	for i := 0; i < n; i++ {
		master, err := hdkeychain.NewMaster(bytes.Repeat([]byte{byte(i + 1)}, 32), &chaincfg.MainNetParams)
		require.NoError(t, err)
		pub, err := master.Neuter()
		require.NoError(t, err)
		out = append(out, testCopayer{master: master, xpub: pub.String()})
	}
	return out
}

func (c testCopayer) sign(t *testing.T, path string, hash []byte) string {
	t.Helper()
	steps, err := ParsePath(path)
	require.NoError(t, err)
	key := c.master
	for _, s := range steps {
		key, err = key.Derive(s)
		require.NoError(t, err)
	}
	priv, err := key.ECPrivKey()
	require.NoError(t, err)
	return hex.EncodeToString(ecdsa.Sign(priv, hash).Serialize())
}

func newTestWallet(t *testing.T, m int, network string, copayers []testCopayer) *types.Wallet {
	t.Helper()
	w := types.NewWallet("wallet-1", "test", m, len(copayers), "", network, false, true)
	for i, c := range copayers {
		require.NoError(t, w.AddCopayer(types.NewCopayer("c", c.xpub, "", "", "", i, w.DerivationStrategy)))
	}
	return w
}

func TestParsePath(t *testing.T) {
	steps, err := ParsePath("m/2147483647/1/7")
	require.NoError(t, err)
	assert.Equal(t, []uint32{2147483647, 1, 7}, steps)

	for _, bad := range []string{"", "0/1", "m/a", "m/2147483648"} {
		_, err := ParsePath(bad)
		assert.Error(t, err, bad)
	}
}

func TestDeriveAddress(t *testing.T) {
	copayers := newTestCopayers(t, 3)
	w := newTestWallet(t, 2, types.NetworkLivenet, copayers)

	addr, err := DeriveAddress(w, "m/0/0", false)
	require.NoError(t, err)
	assert.Equal(t, "3", addr.Address[:1])
	assert.Len(t, addr.PublicKeys, 3)
	assert.Equal(t, SortedPubKeysHex(addr.PublicKeys), addr.PublicKeys)
	assert.NoError(t, ValidateAddress(addr.Address, types.NetworkLivenet))
	assert.ErrorIs(t, ValidateAddress(addr.Address, types.NetworkTestnet), types.ErrIncorrectAddressNetwork)

	again, err := DeriveAddress(w, "m/0/0", false)
	require.NoError(t, err)
	assert.Equal(t, addr.Address, again.Address)

	next, err := DeriveAddress(w, "m/0/1", false)
	require.NoError(t, err)
	assert.NotEqual(t, addr.Address, next.Address)

	single := newTestWallet(t, 1, types.NetworkTestnet, copayers[:1])
	p2pkh, err := DeriveAddress(single, "m/0/0", false)
	require.NoError(t, err)
	assert.Equal(t, types.AddressTypeP2PKH, p2pkh.Type)
	assert.NoError(t, ValidateAddress(p2pkh.Address, types.NetworkTestnet))

	assert.ErrorIs(t, ValidateAddress("not-an-address", types.NetworkLivenet), types.ErrInvalidAddress)
}

func newTestProposal(t *testing.T, w *types.Wallet) (*types.TxProposal, *types.Address) {
	t.Helper()
	funding, err := DeriveAddress(w, "m/0/0", false)
	require.NoError(t, err)
	change, err := DeriveAddress(w, "m/1/0", true)
	require.NoError(t, err)
	return &types.TxProposal{
		ID:                 "txp-1",
		WalletID:           w.ID,
		Network:            w.Network,
		Status:             types.TxStatusPending,
		RequiredSignatures: w.M,
		WalletN:            w.N,
		AddressType:        w.AddressType,
		Outputs:            []types.Output{{ToAddress: "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2", Amount: 50000}},
		ChangeAddress:      change,
		Fee:                1000,
		Inputs: []types.Utxo{{
			TxID:       "631fad872ac6bea810cf6073f02e6cbd121cac83193b79f381f711ce93b531f0",
			Vout:       1,
			Address:    funding.Address,
			Satoshis:   100000,
			Path:       funding.Path,
			PublicKeys: funding.PublicKeys,
		}},
	}, funding
}

func TestUTXOChainHelper_RawTx(t *testing.T) {
	copayers := newTestCopayers(t, 3)
	w := newTestWallet(t, 2, types.NetworkLivenet, copayers)
	txp, _ := newTestProposal(t, w)

	h, err := NewUTXOChainHelper(types.NetworkLivenet)
	require.NoError(t, err)
	raw, err := h.GetRawTx(txp)
	require.NoError(t, err)

	rawBytes, err := hex.DecodeString(raw)
	require.NoError(t, err)
	var tx wire.MsgTx
	require.NoError(t, tx.Deserialize(bytes.NewReader(rawBytes)))
	require.Len(t, tx.TxIn, 1)
	require.Len(t, tx.TxOut, 2)
	assert.Equal(t, int64(50000), tx.TxOut[0].Value)
	assert.Equal(t, int64(49000), tx.TxOut[1].Value)
	assert.Equal(t, uint32(1), tx.TxIn[0].PreviousOutPoint.Index)

	// change fully consumed by the fee leaves a single output
	txp.Fee = 50000
	raw, err = h.GetRawTx(txp)
	require.NoError(t, err)
	rawBytes, _ = hex.DecodeString(raw)
	require.NoError(t, tx.Deserialize(bytes.NewReader(rawBytes)))
	assert.Len(t, tx.TxOut, 1)
}

func TestUTXOChainHelper_Signatures(t *testing.T) {
	copayers := newTestCopayers(t, 3)
	w := newTestWallet(t, 2, types.NetworkLivenet, copayers)
	txp, funding := newTestProposal(t, w)

	h, err := NewUTXOChainHelper(types.NetworkLivenet)
	require.NoError(t, err)
	hashes, err := h.GetPreSignedImageHash(txp)
	require.NoError(t, err)
	require.Len(t, hashes, 1)
	hash, err := hex.DecodeString(hashes[0])
	require.NoError(t, err)

	sig0 := copayers[0].sign(t, funding.Path, hash)
	sig2 := copayers[2].sign(t, funding.Path, hash)

	testCases := []struct {
		name       string
		xpub       string
		signatures []string
		wantErr    bool
	}{
		{name: "own signature", xpub: copayers[0].xpub, signatures: []string{sig0}},
		{name: "someone else's signature", xpub: copayers[1].xpub, signatures: []string{sig0}, wantErr: true},
		{name: "missing signature", xpub: copayers[0].xpub, signatures: nil, wantErr: true},
		{name: "garbage", xpub: copayers[0].xpub, signatures: []string{"zz"}, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.VerifySignatures(txp, tc.xpub, tc.signatures)
			if tc.wantErr {
				assert.ErrorIs(t, err, types.ErrBadSignatures)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	txp.Actions = []types.Action{
		{CopayerID: "c0", Type: types.ActionAccept, XPub: copayers[0].xpub, Signatures: []string{sig0}},
	}
	_, _, err = h.GetSignedRawTx(txp)
	assert.Error(t, err)

	txp.Actions = append(txp.Actions,
		types.Action{CopayerID: "c2", Type: types.ActionAccept, XPub: copayers[2].xpub, Signatures: []string{sig2}})
	txid, raw, err := h.GetSignedRawTx(txp)
	require.NoError(t, err)
	assert.Len(t, txid, 64)

	rawBytes, err := hex.DecodeString(raw)
	require.NoError(t, err)
	var tx wire.MsgTx
	require.NoError(t, tx.Deserialize(bytes.NewReader(rawBytes)))
	assert.Equal(t, txid, tx.TxHash().String())

	addr, err := DecodeAddress(funding.Address, types.NetworkLivenet)
	require.NoError(t, err)
	prevScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	fetcher := txscript.NewCannedPrevOutputFetcher(prevScript, 100000)
	vm, err := txscript.NewEngine(prevScript, &tx, 0, txscript.StandardVerifyFlags, nil, nil, 100000, fetcher)
	require.NoError(t, err)
	assert.NoError(t, vm.Execute())
}
