package sigutil

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/vultiwallet/internal/types"
)

func TestVerifyMessage(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pub := hex.EncodeToString(key.PubKey().SerializeCompressed())
	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	sig := SignMessage("hello", key)

	testCases := []struct {
		name    string
		message string
		sig     string
		pub     string
		want    bool
	}{
		{name: "valid", message: "hello", sig: sig, pub: pub, want: true},
		{name: "other message", message: "hello!", sig: sig, pub: pub},
		{name: "other key", message: "hello", sig: sig, pub: hex.EncodeToString(other.PubKey().SerializeCompressed())},
		{name: "bad signature hex", message: "hello", sig: "xyz", pub: pub},
		{name: "bad key", message: "hello", sig: sig, pub: "02ab"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, VerifyMessage(tc.message, tc.sig, tc.pub))
		})
	}
}

func TestSigningKey(t *testing.T) {
	k1, _ := btcec.NewPrivateKey()
	k2, _ := btcec.NewPrivateKey()
	keys := []types.RequestPubKey{
		{Key: hex.EncodeToString(k1.PubKey().SerializeCompressed())},
		{Key: hex.EncodeToString(k2.PubKey().SerializeCompressed())},
	}
	found, ok := SigningKey("msg", SignMessage("msg", k2), keys)
	require.True(t, ok)
	assert.Equal(t, keys[1].Key, found.Key)

	_, ok = SigningKey("msg", SignMessage("other", k2), keys)
	assert.False(t, ok)
}

func TestVerifyRequestPubKey(t *testing.T) {
	master, err := hdkeychain.NewMaster(bytes.Repeat([]byte{7}, 32), &chaincfg.MainNetParams)
	require.NoError(t, err)
	xpub, err := master.Neuter()
	require.NoError(t, err)

	child, err := master.Derive(1)
	require.NoError(t, err)
	child, err = child.Derive(0)
	require.NoError(t, err)
	authKey, err := child.ECPrivKey()
	require.NoError(t, err)

	requestKey, _ := btcec.NewPrivateKey()
	requestPub := hex.EncodeToString(requestKey.PubKey().SerializeCompressed())

	ok, err := VerifyRequestPubKey(requestPub, SignMessage(requestPub, authKey), xpub.String())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyRequestPubKey(requestPub, SignMessage(requestPub, requestKey), xpub.String())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyRequestPubKey(requestPub, "", "not-an-xpub")
	assert.Error(t, err)
}
