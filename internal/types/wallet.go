package types

import (
	"time"
)

type DerivationStrategy string

const (
	DerivationBIP44 DerivationStrategy = "BIP44"
	DerivationBIP45 DerivationStrategy = "BIP45"
)

type AddressType string

const (
	AddressTypeP2SH  AddressType = "P2SH"
	AddressTypeP2PKH AddressType = "P2PKH"
)

type ScanStatus string

const (
	ScanStatusNone    ScanStatus = ""
	ScanStatusRunning ScanStatus = "running"
	ScanStatusSuccess ScanStatus = "success"
	ScanStatusError   ScanStatus = "error"
)

// Wallet is the root of every per-wallet collection. Copayers are owned by
// the wallet; addresses, proposals and notifications refer to it by id.
type Wallet struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	M                  int                `json:"m"`
	N                  int                `json:"n"`
	Copayers           []*Copayer         `json:"copayers"`
	PubKey             string             `json:"pubKey"`
	Network            string             `json:"network"`
	DerivationStrategy DerivationStrategy `json:"derivationStrategy"`
	AddressType        AddressType        `json:"addressType"`
	SingleAddress      bool               `json:"singleAddress"`
	ScanStatus         ScanStatus         `json:"scanStatus"`
	AddressManager     *AddressManager    `json:"addressManager"`
	CreatedOn          int64              `json:"createdOn"`
}

// VerifyCopayerLimits checks 1 <= m <= n <= MaxCopayers.
func VerifyCopayerLimits(m, n int) bool {
	return m >= 1 && n >= 1 && n <= MaxCopayers && m <= n
}

func NewWallet(id, name string, m, n int, pubKey, network string, singleAddress, supportBIP44 bool) *Wallet {
	strategy := DerivationBIP45
	if supportBIP44 {
		strategy = DerivationBIP44
	}
	addressType := AddressTypeP2SH
	if n == 1 && supportBIP44 {
		addressType = AddressTypeP2PKH
	}
	return &Wallet{
		ID:                 id,
		Name:               name,
		M:                  m,
		N:                  n,
		Copayers:           []*Copayer{},
		PubKey:             pubKey,
		Network:            network,
		DerivationStrategy: strategy,
		AddressType:        addressType,
		SingleAddress:      singleAddress,
		AddressManager:     NewWalletAddressManager(strategy),
		CreatedOn:          time.Now().Unix(),
	}
}

func (w *Wallet) IsComplete() bool {
	return len(w.Copayers) == w.N
}

func (w *Wallet) IsShared() bool {
	return w.N > 1
}

func (w *Wallet) GetCopayer(copayerID string) *Copayer {
	for _, c := range w.Copayers {
		if c.ID == copayerID {
			return c
		}
	}
	return nil
}

func (w *Wallet) HasXPubKey(xPubKey string) bool {
	for _, c := range w.Copayers {
		if c.XPubKey == xPubKey {
			return true
		}
	}
	return false
}

// AddCopayer appends a copayer, refusing to exceed n.
func (w *Wallet) AddCopayer(c *Copayer) error {
	if len(w.Copayers) >= w.N {
		return ErrWalletFull
	}
	w.Copayers = append(w.Copayers, c)
	return nil
}

func (w *Wallet) AddCopayerRequestKey(copayerID string, key RequestPubKey) error {
	c := w.GetCopayer(copayerID)
	if c == nil {
		return ErrNotAuthorized
	}
	return c.AddRequestKey(key)
}

// PublicKeyRing lists the copayers' extended public keys in join order.
func (w *Wallet) PublicKeyRing() []string {
	ring := make([]string, 0, len(w.Copayers))
	for _, c := range w.Copayers {
		ring = append(ring, c.XPubKey)
	}
	return ring
}

// ForCopayer returns the view of the wallet a copayer is allowed to see.
// Other copayers' custom data is always hidden; key material only with
// extended info.
func (w *Wallet) ForCopayer(requesterID string, extended bool) *Wallet {
	out := *w
	if !extended {
		out.PubKey = ""
		out.AddressManager = nil
	}
	out.Copayers = make([]*Copayer, 0, len(w.Copayers))
	for _, c := range w.Copayers {
		cc := *c
		if !extended {
			cc.XPubKey = ""
			cc.AddressManager = nil
			cc.CustomData = ""
		} else if cc.ID != requesterID {
			cc.CustomData = ""
		}
		out.Copayers = append(out.Copayers, &cc)
	}
	return &out
}
