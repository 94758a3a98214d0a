package sigutil

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/vultisig/vultiwallet/chainhelper"
	"github.com/vultisig/vultiwallet/internal/types"
)

// RequestKeyAuthPath is where a copayer's xpub derives the key that
// authorizes new request keys.
const RequestKeyAuthPath = "m/1/0"

// HashMessage is the double sha256 of the message bytes.
func HashMessage(message string) []byte {
	return chainhash.DoubleHashB([]byte(message))
}

// SignMessage returns the hex DER signature of message.
func SignMessage(message string, key *btcec.PrivateKey) string {
	return hex.EncodeToString(ecdsa.Sign(key, HashMessage(message)).Serialize())
}

// VerifyMessage checks a hex DER signature over message against a hex
// compressed or uncompressed public key.
func VerifyMessage(message, signatureHex, pubKeyHex string) bool {
	sigBytes, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false
	}
	pubBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false
	}
	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}
	return sig.Verify(HashMessage(message), pub)
}

// SigningKey returns the first request key that verifies the signature.
func SigningKey(message, signatureHex string, keys []types.RequestPubKey) (*types.RequestPubKey, bool) {
	for i := range keys {
		if VerifyMessage(message, signatureHex, keys[i].Key) {
			return &keys[i], true
		}
	}
	return nil, false
}

// VerifyRequestPubKey checks that requestPubKey was signed by the key the
// copayer's xpub derives at RequestKeyAuthPath.
func VerifyRequestPubKey(requestPubKey, signatureHex, xPubKey string) (bool, error) {
	pub, err := chainhelper.DerivePubKey(xPubKey, RequestKeyAuthPath)
	if err != nil {
		return false, fmt.Errorf("fail to derive request auth key: %w", err)
	}
	return VerifyMessage(requestPubKey, signatureHex, hex.EncodeToString(pub.SerializeCompressed())), nil
}
