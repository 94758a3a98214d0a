package service

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/vultiwallet/internal/txproposal"
	"github.com/vultisig/vultiwallet/internal/types"
	"github.com/vultisig/vultiwallet/internal/walletcache"
	"github.com/vultisig/vultiwallet/storage"
)

// GetUtxos lists the wallet's utxos, optionally narrowed to some of its
// addresses. Addresses outside the wallet are ignored.
func (s *WalletService) GetUtxos(ctx context.Context, c *Caller, addresses []string) ([]types.Utxo, error) {
	w, err := s.fetchWallet(ctx, c.WalletID)
	if err != nil {
		return nil, err
	}
	if len(addresses) == 0 {
		return s.cache.GetUtxos(ctx, w, nil)
	}
	all, err := s.storage.FetchAddresses(ctx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch addresses: %w", err)
	}
	wanted := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		wanted[a] = true
	}
	selected := []*types.Address{}
	for _, a := range all {
		if wanted[a.Address] {
			selected = append(selected, a)
		}
	}
	return s.cache.GetUtxos(ctx, w, selected)
}

func (s *WalletService) GetBalance(ctx context.Context, c *Caller, twoStep bool) (*types.Balance, error) {
	w, err := s.fetchWallet(ctx, c.WalletID)
	if err != nil {
		return nil, err
	}
	return s.cache.GetBalance(ctx, w, twoStep)
}

func (s *WalletService) GetSendMaxInfo(ctx context.Context, c *Caller, opts txproposal.SendMaxOptions) (*types.SendMaxInfo, error) {
	w, err := s.fetchWallet(ctx, c.WalletID)
	if err != nil {
		return nil, err
	}
	return s.engine.SendMaxInfo(ctx, w, opts)
}

func (s *WalletService) GetFeeLevels(ctx context.Context, network string) ([]types.FeeLevelValue, error) {
	if network == "" {
		network = types.NetworkLivenet
	}
	return s.cache.GetFeeLevels(ctx, network)
}

// withWallet runs fn under the wallet lock with a freshly read wallet.
func (s *WalletService) withWallet(ctx context.Context, c *Caller, fn func(ctx context.Context, w *types.Wallet) error) error {
	return s.runLocked(ctx, c.WalletID, func(ctx context.Context) error {
		w, err := s.fetchWallet(ctx, c.WalletID)
		if err != nil {
			return err
		}
		return fn(ctx, w)
	})
}

func (s *WalletService) CreateTx(ctx context.Context, c *Caller, opts txproposal.CreateOptions) (*types.TxProposal, error) {
	var txp *types.TxProposal
	err := s.withWallet(ctx, c, func(ctx context.Context, w *types.Wallet) error {
		var err error
		txp, err = s.engine.Create(ctx, w, c.CopayerID, opts)
		return err
	})
	return txp, err
}

func (s *WalletService) PublishTx(ctx context.Context, c *Caller, id, proposalSignature string) (*types.TxProposal, error) {
	if proposalSignature == "" {
		return nil, types.NewClientError("Required argument proposalSignature missing.")
	}
	var txp *types.TxProposal
	err := s.withWallet(ctx, c, func(ctx context.Context, w *types.Wallet) error {
		var err error
		txp, err = s.engine.Publish(ctx, w, c.CopayerID, id, proposalSignature)
		return err
	})
	return txp, err
}

func (s *WalletService) GetTx(ctx context.Context, c *Caller, id string) (*types.TxProposal, error) {
	return s.engine.Get(ctx, c.WalletID, id)
}

func (s *WalletService) SignTx(ctx context.Context, c *Caller, id string, signatures []string) (*types.TxProposal, error) {
	if len(signatures) == 0 {
		return nil, types.NewClientError("Required argument signatures missing.")
	}
	var txp *types.TxProposal
	err := s.withWallet(ctx, c, func(ctx context.Context, w *types.Wallet) error {
		var err error
		txp, err = s.engine.Sign(ctx, w, c.CopayerID, id, signatures)
		return err
	})
	return txp, err
}

func (s *WalletService) RejectTx(ctx context.Context, c *Caller, id, reason string) (*types.TxProposal, error) {
	var txp *types.TxProposal
	err := s.withWallet(ctx, c, func(ctx context.Context, w *types.Wallet) error {
		var err error
		txp, err = s.engine.Reject(ctx, w, c.CopayerID, id, reason)
		return err
	})
	return txp, err
}

func (s *WalletService) BroadcastTx(ctx context.Context, c *Caller, id string) (*types.TxProposal, error) {
	var txp *types.TxProposal
	err := s.withWallet(ctx, c, func(ctx context.Context, w *types.Wallet) error {
		var err error
		txp, err = s.engine.Broadcast(ctx, w, c.CopayerID, id)
		return err
	})
	return txp, err
}

func (s *WalletService) RemovePendingTx(ctx context.Context, c *Caller, id string) error {
	return s.withWallet(ctx, c, func(ctx context.Context, w *types.Wallet) error {
		return s.engine.Remove(ctx, w, c.CopayerID, id)
	})
}

func (s *WalletService) GetPendingTxs(ctx context.Context, c *Caller) ([]*types.TxProposal, error) {
	w, err := s.fetchWallet(ctx, c.WalletID)
	if err != nil {
		return nil, err
	}
	return s.pendingTxs(ctx, c, w)
}

// pendingTxs lists pending proposals. Accepted ones already on chain are
// marked broadcast under the wallet lock and left out.
func (s *WalletService) pendingTxs(ctx context.Context, c *Caller, w *types.Wallet) ([]*types.TxProposal, error) {
	txps, err := s.engine.PendingTxs(ctx, w, c.CopayerID)
	if err != nil {
		return nil, err
	}
	onChain, err := s.engine.SeenOnChain(ctx, w, txps)
	if err != nil {
		return nil, err
	}
	if len(onChain) == 0 {
		return txps, nil
	}
	err = s.withWallet(ctx, c, func(ctx context.Context, w *types.Wallet) error {
		for _, id := range onChain {
			if _, err := s.engine.ConfirmThirdPartyBroadcast(ctx, w, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(txps, func(t *types.TxProposal) bool {
		return slices.Contains(onChain, t.ID)
	}), nil
}

func (s *WalletService) GetTxs(ctx context.Context, c *Caller, q storage.TxQuery) ([]*types.TxProposal, error) {
	return s.engine.List(ctx, c.WalletID, q)
}

// BroadcastRawTx relays a signed transaction that no proposal tracks.
func (s *WalletService) BroadcastRawTx(ctx context.Context, network, rawTx string) (string, error) {
	if rawTx == "" {
		return "", types.NewClientError("Required argument rawTx missing.")
	}
	if network == "" {
		network = types.NetworkLivenet
	}
	if network != types.NetworkLivenet && network != types.NetworkTestnet {
		return "", types.NewClientError("Invalid network")
	}
	ex, err := s.cache.Explorer(network)
	if err != nil {
		return "", err
	}
	txid, err := ex.Broadcast(ctx, rawTx)
	if err != nil {
		return "", fmt.Errorf("fail to broadcast raw tx: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"network": network,
		"txid":    txid,
	}).Info("raw tx broadcasted")
	return txid, nil
}

type NotificationsOptions struct {
	NotificationID string
	MinTs          int64
}

// GetNotifications merges the wallet's notifications with the network-wide
// ones, which are stored under the network name.
func (s *WalletService) GetNotifications(ctx context.Context, c *Caller, opts NotificationsOptions) ([]*types.Notification, error) {
	w, err := s.fetchWallet(ctx, c.WalletID)
	if err != nil {
		return nil, err
	}
	var all []*types.Notification
	for _, key := range []string{w.Network, w.ID} {
		list, err := s.storage.FetchNotifications(ctx, key, opts.NotificationID, opts.MinTs)
		if err != nil {
			return nil, fmt.Errorf("fail to fetch notifications: %w", err)
		}
		all = append(all, list...)
	}
	for _, n := range all {
		n.WalletID = w.ID
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].ID < all[j].ID
	})
	if all == nil {
		all = []*types.Notification{}
	}
	return all, nil
}

func (s *WalletService) GetTxHistory(ctx context.Context, c *Caller, opts walletcache.HistoryOptions) ([]types.HistoryTx, bool, error) {
	w, err := s.fetchWallet(ctx, c.WalletID)
	if err != nil {
		return nil, false, err
	}
	return s.cache.GetTxHistory(ctx, w, opts)
}

func (s *WalletService) EditTxNote(ctx context.Context, c *Caller, req EditTxNoteRequest) (*types.TxNote, error) {
	if err := req.IsValid(); err != nil {
		return nil, err
	}
	var note *types.TxNote
	err := s.runLocked(ctx, c.WalletID, func(ctx context.Context) error {
		current, err := s.storage.FetchTxNote(ctx, c.WalletID, req.TxID)
		if err != nil {
			return fmt.Errorf("fail to fetch tx note: %w", err)
		}
		if current == nil {
			current = types.NewTxNote(c.WalletID, req.TxID, c.CopayerID, req.Body, s.now())
		} else {
			current.Edit(req.Body, c.CopayerID, s.now())
		}
		if err := s.storage.StoreTxNote(ctx, current); err != nil {
			return fmt.Errorf("fail to store tx note: %w", err)
		}
		note, err = s.storage.FetchTxNote(ctx, c.WalletID, req.TxID)
		if err != nil {
			return fmt.Errorf("fail to fetch tx note: %w", err)
		}
		return nil
	})
	return note, err
}

func (s *WalletService) GetTxNote(ctx context.Context, c *Caller, txid string) (*types.TxNote, error) {
	if txid == "" {
		return nil, types.NewClientError("Required argument txid missing.")
	}
	note, err := s.storage.FetchTxNote(ctx, c.WalletID, txid)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch tx note: %w", err)
	}
	return note, nil
}

func (s *WalletService) GetTxNotes(ctx context.Context, c *Caller, minTs int64) ([]*types.TxNote, error) {
	notes, err := s.storage.FetchTxNotes(ctx, c.WalletID, minTs)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch tx notes: %w", err)
	}
	return notes, nil
}
