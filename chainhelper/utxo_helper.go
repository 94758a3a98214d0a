package chainhelper

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/vultisig/vultiwallet/internal/types"
)

// ChainHelper turns a proposal into transactions and checks copayer
// signatures against them.
type ChainHelper interface {
	GetRawTx(txp *types.TxProposal) (string, error)
	GetPreSignedImageHash(txp *types.TxProposal) ([]string, error)
	VerifySignatures(txp *types.TxProposal, xPubKey string, signatures []string) error
	GetSignedRawTx(txp *types.TxProposal) (txid string, raw string, err error)
}

var _ ChainHelper = &UTXOChainHelper{}

type UTXOChainHelper struct {
	network string
	params  *chaincfg.Params
}

func NewUTXOChainHelper(network string) (*UTXOChainHelper, error) {
	params, err := NetParams(network)
	if err != nil {
		return nil, err
	}
	return &UTXOChainHelper{
		network: network,
		params:  params,
	}, nil
}

// ChangeAmount is what the inputs leave after outputs and fee.
func ChangeAmount(txp *types.TxProposal) int64 {
	return types.SumSatoshis(txp.Inputs) - txp.TotalAmount() - txp.Fee
}

func (h *UTXOChainHelper) buildUnsignedTx(txp *types.TxProposal) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	for _, in := range txp.Inputs {
		hash, err := chainhash.NewHashFromStr(in.TxID)
		if err != nil {
			return nil, fmt.Errorf("fail to parse input txid %s: %w", in.TxID, err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, in.Vout), nil, nil))
	}
	for _, out := range txp.Outputs {
		pkScript, err := h.payToAddress(out.ToAddress)
		if err != nil {
			return nil, err
		}
		tx.AddTxOut(wire.NewTxOut(out.Amount, pkScript))
	}
	if change := ChangeAmount(txp); change > 0 && txp.ChangeAddress != nil {
		pkScript, err := h.payToAddress(txp.ChangeAddress.Address)
		if err != nil {
			return nil, err
		}
		tx.AddTxOut(wire.NewTxOut(change, pkScript))
	}
	return tx, nil
}

func (h *UTXOChainHelper) payToAddress(address string) ([]byte, error) {
	addr, err := DecodeAddress(address, h.network)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}

func serializeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("fail to serialize tx: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// GetRawTx returns the unsigned transaction hex. Proposal signatures are
// made over this string.
func (h *UTXOChainHelper) GetRawTx(txp *types.TxProposal) (string, error) {
	tx, err := h.buildUnsignedTx(txp)
	if err != nil {
		return "", err
	}
	return serializeTx(tx)
}

// inputScript is the script committed to by the signature hash of input u.
func (h *UTXOChainHelper) inputScript(txp *types.TxProposal, u types.Utxo) ([]byte, error) {
	if len(u.PublicKeys) == 0 {
		return nil, fmt.Errorf("input %s has no public keys", u.Key())
	}
	if txp.AddressType == types.AddressTypeP2PKH {
		raw, err := hex.DecodeString(u.PublicKeys[0])
		if err != nil {
			return nil, fmt.Errorf("fail to decode public key: %w", err)
		}
		addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(raw), h.params)
		if err != nil {
			return nil, fmt.Errorf("fail to build p2pkh address: %w", err)
		}
		return txscript.PayToAddrScript(addr)
	}
	return RedeemScript(u.PublicKeys, txp.RequiredSignatures, h.params)
}

func (h *UTXOChainHelper) sigHashes(txp *types.TxProposal) (*wire.MsgTx, [][]byte, error) {
	tx, err := h.buildUnsignedTx(txp)
	if err != nil {
		return nil, nil, err
	}
	hashes := make([][]byte, 0, len(txp.Inputs))
	for i, in := range txp.Inputs {
		script, err := h.inputScript(txp, in)
		if err != nil {
			return nil, nil, err
		}
		hash, err := txscript.CalcSignatureHash(script, txscript.SigHashAll, tx, i)
		if err != nil {
			return nil, nil, fmt.Errorf("fail to compute sighash for input %d: %w", i, err)
		}
		hashes = append(hashes, hash)
	}
	return tx, hashes, nil
}

// GetPreSignedImageHash returns the per-input signature hashes, in input order.
func (h *UTXOChainHelper) GetPreSignedImageHash(txp *types.TxProposal) ([]string, error) {
	_, hashes, err := h.sigHashes(txp)
	if err != nil {
		return nil, fmt.Errorf("fail to get pre-signed image hash: %w", err)
	}
	result := make([]string, 0, len(hashes))
	for _, hash := range hashes {
		result = append(result, hex.EncodeToString(hash))
	}
	return result, nil
}

// VerifySignatures checks one DER signature per input made by the key
// xPubKey derives at each input's path.
func (h *UTXOChainHelper) VerifySignatures(txp *types.TxProposal, xPubKey string, signatures []string) error {
	if len(signatures) != len(txp.Inputs) {
		return types.ErrBadSignatures
	}
	_, hashes, err := h.sigHashes(txp)
	if err != nil {
		return err
	}
	for i, in := range txp.Inputs {
		pub, err := DerivePubKey(xPubKey, in.Path)
		if err != nil {
			return types.ErrBadSignatures
		}
		raw, err := hex.DecodeString(signatures[i])
		if err != nil {
			return types.ErrBadSignatures
		}
		sig, err := ecdsa.ParseDERSignature(raw)
		if err != nil {
			return types.ErrBadSignatures
		}
		if !sig.Verify(hashes[i], pub) {
			return types.ErrBadSignatures
		}
	}
	return nil
}

// GetSignedRawTx assembles the scriptSigs from the accept actions and
// returns the txid with the signed transaction hex.
func (h *UTXOChainHelper) GetSignedRawTx(txp *types.TxProposal) (string, string, error) {
	tx, err := h.buildUnsignedTx(txp)
	if err != nil {
		return "", "", err
	}
	for i, in := range txp.Inputs {
		sigByKey := make(map[string][]byte)
		for _, a := range txp.Actions {
			if a.Type != types.ActionAccept || i >= len(a.Signatures) {
				continue
			}
			pub, err := DerivePubKey(a.XPub, in.Path)
			if err != nil {
				return "", "", err
			}
			raw, err := hex.DecodeString(a.Signatures[i])
			if err != nil {
				return "", "", fmt.Errorf("fail to decode signature: %w", err)
			}
			sigByKey[hex.EncodeToString(pub.SerializeCompressed())] = append(raw, byte(txscript.SigHashAll))
		}

		script, err := h.inputScript(txp, in)
		if err != nil {
			return "", "", err
		}
		builder := txscript.NewScriptBuilder()
		if txp.AddressType == types.AddressTypeP2PKH {
			pk := in.PublicKeys[0]
			sig, ok := sigByKey[pk]
			if !ok {
				return "", "", fmt.Errorf("missing signature for input %d", i)
			}
			pkRaw, err := hex.DecodeString(pk)
			if err != nil {
				return "", "", fmt.Errorf("fail to decode public key: %w", err)
			}
			builder.AddData(sig).AddData(pkRaw)
		} else {
			builder.AddOp(txscript.OP_0)
			added := 0
			for _, pk := range SortedPubKeysHex(in.PublicKeys) {
				sig, ok := sigByKey[pk]
				if !ok || added == txp.RequiredSignatures {
					continue
				}
				builder.AddData(sig)
				added++
			}
			if added < txp.RequiredSignatures {
				return "", "", fmt.Errorf("input %d has %d of %d signatures", i, added, txp.RequiredSignatures)
			}
			builder.AddData(script)
		}
		sigScript, err := builder.Script()
		if err != nil {
			return "", "", fmt.Errorf("fail to build script sig: %w", err)
		}
		tx.TxIn[i].SignatureScript = sigScript
	}
	raw, err := serializeTx(tx)
	if err != nil {
		return "", "", err
	}
	return tx.TxHash().String(), raw, nil
}
