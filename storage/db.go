package storage

import (
	"context"

	"github.com/vultisig/vultiwallet/internal/types"
)

// TxQuery bounds proposal lookups by time (unix seconds). Zero means unbounded.
type TxQuery struct {
	MinTs int64
	MaxTs int64
	Limit int
}

// WalletStorage persists wallets and everything hanging off them. Fetchers
// return nil without error when the record does not exist.
type WalletStorage interface {
	Close() error

	FetchWallet(ctx context.Context, id string) (*types.Wallet, error)
	StoreWallet(ctx context.Context, w *types.Wallet) error
	StoreWalletAndUpdateCopayersLookup(ctx context.Context, w *types.Wallet) error
	FetchCopayerLookup(ctx context.Context, copayerID string) (*types.CopayerLookup, error)
	RemoveWallet(ctx context.Context, walletID string) error

	// FetchAddresses returns the wallet addresses oldest first.
	FetchAddresses(ctx context.Context, walletID string) ([]*types.Address, error)
	FetchNewAddresses(ctx context.Context, walletID string, fromTs int64) ([]*types.Address, error)
	CountAddresses(ctx context.Context, walletID string) (int, error)
	FetchAddress(ctx context.Context, address string) (*types.Address, error)
	// StoreAddressAndWallet inserts the addresses not yet stored and saves the
	// wallet. An address owned by another wallet is logged and stored anyway.
	StoreAddressAndWallet(ctx context.Context, w *types.Wallet, addresses []*types.Address) error
	StoreAddress(ctx context.Context, a *types.Address) error

	FetchTx(ctx context.Context, walletID, id string) (*types.TxProposal, error)
	FetchTxByHash(ctx context.Context, txid string) (*types.TxProposal, error)
	// FetchLastTxs returns the creator's proposals, newest first.
	FetchLastTxs(ctx context.Context, walletID, creatorID string, limit int) ([]*types.TxProposal, error)
	FetchPendingTxs(ctx context.Context, walletID string) ([]*types.TxProposal, error)
	FetchTxs(ctx context.Context, walletID string, q TxQuery) ([]*types.TxProposal, error)
	// FetchBroadcastedTxs filters on the broadcast time.
	FetchBroadcastedTxs(ctx context.Context, walletID string, q TxQuery) ([]*types.TxProposal, error)
	StoreTx(ctx context.Context, txp *types.TxProposal) error
	RemoveTx(ctx context.Context, walletID, id string) error

	// FetchNotifications returns notifications with an id above both
	// notificationID and the smallest id at minTs, in id order.
	FetchNotifications(ctx context.Context, walletID, notificationID string, minTs int64) ([]*types.Notification, error)
	StoreNotification(ctx context.Context, n *types.Notification) error

	FetchPreferences(ctx context.Context, walletID, copayerID string) (*types.Preferences, error)
	StorePreferences(ctx context.Context, p *types.Preferences) error

	FetchTxNote(ctx context.Context, walletID, txid string) (*types.TxNote, error)
	FetchTxNotes(ctx context.Context, walletID string, minTs int64) ([]*types.TxNote, error)
	StoreTxNote(ctx context.Context, n *types.TxNote) error

	FetchActiveAddresses(ctx context.Context, walletID string) ([]string, error)
	// CleanActiveAddresses drops the set and leaves an empty marker, so a
	// later fetch returns an empty list rather than nil.
	CleanActiveAddresses(ctx context.Context, walletID string) error
	StoreActiveAddresses(ctx context.Context, walletID string, addresses []string) error

	// GetTxHistoryCache returns the cached page [from, to), newest first.
	// hit is false when the cache is stale or has gaps.
	GetTxHistoryCache(ctx context.Context, walletID string, from, to int) (txs []types.ChainTx, hit bool, err error)
	// StoreTxHistoryCache stores items in chronological order starting at
	// firstPosition and marks the cache updated.
	StoreTxHistoryCache(ctx context.Context, walletID string, totalItems int64, firstPosition int, items []types.ChainTx) error
	FetchTxHistoryCacheStatus(ctx context.Context, walletID string) (*types.HistoryCacheStatus, error)
	SoftResetTxHistoryCache(ctx context.Context, walletID string) error
	SoftResetAllTxHistoryCache(ctx context.Context) error
	ClearTxHistoryCache(ctx context.Context, walletID string) error
}

// HistoryWindow translates a newest-first page [from, to) of totalItems
// into forward positions [fwd, end).
func HistoryWindow(totalItems int64, from, to int) (fwd, end int64) {
	fwd = totalItems - int64(to)
	if fwd < 0 {
		fwd = 0
	}
	return fwd, totalItems - int64(from)
}
