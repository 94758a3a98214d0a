package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

type RequestPubKey struct {
	Key       string `json:"key"`
	Signature string `json:"signature"`
	Name      string `json:"name,omitempty"`
}

type Copayer struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	XPubKey        string          `json:"xPubKey"`
	RequestPubKeys []RequestPubKey `json:"requestPubKeys"`
	AddressManager *AddressManager `json:"addressManager,omitempty"`
	CustomData     string          `json:"customData,omitempty"`
	CreatedOn      int64           `json:"createdOn"`
}

// CopayerIDFromXPub derives the copayer id: hex(sha256(xPubKey)).
func CopayerIDFromXPub(xPubKey string) string {
	sum := sha256.Sum256([]byte(xPubKey))
	return hex.EncodeToString(sum[:])
}

// CopayerHash is the message a joining copayer signs with the wallet secret.
func CopayerHash(name, xPubKey, requestPubKey string) string {
	return fmt.Sprintf("%s|%s|%s", name, xPubKey, requestPubKey)
}

func NewCopayer(name, xPubKey, requestPubKey, signature, customData string, copayerIndex int, strategy DerivationStrategy) *Copayer {
	c := &Copayer{
		ID:      CopayerIDFromXPub(xPubKey),
		Name:    name,
		XPubKey: xPubKey,
		RequestPubKeys: []RequestPubKey{{
			Key:       requestPubKey,
			Signature: signature,
		}},
		CustomData: customData,
		CreatedOn:  time.Now().Unix(),
	}
	if SupportsCopayerBranches(strategy) {
		c.AddressManager = NewAddressManager(strategy, copayerIndex)
	}
	return c
}

// AddRequestKey registers another request key, up to MaxKeys.
func (c *Copayer) AddRequestKey(key RequestPubKey) error {
	if len(c.RequestPubKeys) >= MaxKeys {
		return ErrTooManyKeys
	}
	c.RequestPubKeys = append(c.RequestPubKeys, key)
	return nil
}

// CopayerLookup indexes a copayer id to its wallet and request keys.
type CopayerLookup struct {
	CopayerID      string          `json:"copayerId"`
	WalletID       string          `json:"walletId"`
	RequestPubKeys []RequestPubKey `json:"requestPubKeys"`
	IsSupportStaff bool            `json:"isSupportStaff,omitempty"`
}
