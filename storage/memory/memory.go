package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/vultiwallet/internal/types"
	"github.com/vultisig/vultiwallet/storage"
)

var _ storage.WalletStorage = (*Storage)(nil)

type historyCache struct {
	status types.HistoryCacheStatus
	items  map[int64]types.ChainTx
}

// Storage keeps everything in process memory. Records are deep copied on
// the way in and out so callers never share state with the store.
type Storage struct {
	mu     sync.RWMutex
	logger *logrus.Logger

	wallets       map[string]*types.Wallet
	lookups       map[string]*types.CopayerLookup
	addresses     map[string]*types.Address
	txs           map[string]*types.TxProposal
	notifications map[string][]*types.Notification
	preferences   map[string]*types.Preferences
	notes         map[string]*types.TxNote
	active        map[string]map[string]struct{}
	history       map[string]*historyCache
}

func New(logger *logrus.Logger) *Storage {
	return &Storage{
		logger:        logger,
		wallets:       make(map[string]*types.Wallet),
		lookups:       make(map[string]*types.CopayerLookup),
		addresses:     make(map[string]*types.Address),
		txs:           make(map[string]*types.TxProposal),
		notifications: make(map[string][]*types.Notification),
		preferences:   make(map[string]*types.Preferences),
		notes:         make(map[string]*types.TxNote),
		active:        make(map[string]map[string]struct{}),
		history:       make(map[string]*historyCache),
	}
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("fail to clone %T: %v", v, err))
	}
	var out T
	if err := json.Unmarshal(buf, &out); err != nil {
		panic(fmt.Sprintf("fail to clone %T: %v", v, err))
	}
	return &out
}

func txKey(walletID, id string) string {
	return walletID + "/" + id
}

func (s *Storage) Close() error {
	return nil
}

func (s *Storage) FetchWallet(_ context.Context, id string) (*types.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.wallets[id]), nil
}

func (s *Storage) StoreWallet(_ context.Context, w *types.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[w.ID] = clone(w)
	return nil
}

func (s *Storage) StoreWalletAndUpdateCopayersLookup(_ context.Context, w *types.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, l := range s.lookups {
		if l.WalletID == w.ID {
			delete(s.lookups, id)
		}
	}
	for _, c := range w.Copayers {
		s.lookups[c.ID] = &types.CopayerLookup{
			CopayerID:      c.ID,
			WalletID:       w.ID,
			RequestPubKeys: append([]types.RequestPubKey(nil), c.RequestPubKeys...),
		}
	}
	s.wallets[w.ID] = clone(w)
	return nil
}

func (s *Storage) FetchCopayerLookup(_ context.Context, copayerID string) (*types.CopayerLookup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.lookups[copayerID]), nil
}

func (s *Storage) RemoveWallet(_ context.Context, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wallets, walletID)
	for id, l := range s.lookups {
		if l.WalletID == walletID {
			delete(s.lookups, id)
		}
	}
	for k, a := range s.addresses {
		if a.WalletID == walletID {
			delete(s.addresses, k)
		}
	}
	for k, t := range s.txs {
		if t.WalletID == walletID {
			delete(s.txs, k)
		}
	}
	for k, p := range s.preferences {
		if p.WalletID == walletID {
			delete(s.preferences, k)
		}
	}
	for k, n := range s.notes {
		if n.WalletID == walletID {
			delete(s.notes, k)
		}
	}
	delete(s.notifications, walletID)
	delete(s.active, walletID)
	delete(s.history, walletID)
	return nil
}

func (s *Storage) walletAddresses(walletID string) []*types.Address {
	var out []*types.Address
	for _, a := range s.addresses {
		if a.WalletID == walletID {
			out = append(out, clone(a))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedOn != out[j].CreatedOn {
			return out[i].CreatedOn < out[j].CreatedOn
		}
		return out[i].Path < out[j].Path
	})
	return out
}

func (s *Storage) FetchAddresses(_ context.Context, walletID string) ([]*types.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.walletAddresses(walletID), nil
}

func (s *Storage) FetchNewAddresses(_ context.Context, walletID string, fromTs int64) ([]*types.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Address
	for _, a := range s.walletAddresses(walletID) {
		if a.CreatedOn >= fromTs {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Storage) CountAddresses(_ context.Context, walletID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.addresses {
		if a.WalletID == walletID {
			n++
		}
	}
	return n, nil
}

func (s *Storage) FetchAddress(_ context.Context, address string) (*types.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.addresses[address]), nil
}

func (s *Storage) StoreAddressAndWallet(_ context.Context, w *types.Wallet, addresses []*types.Address) error {
	if len(addresses) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range addresses {
		if existing, ok := s.addresses[a.Address]; ok {
			if existing.WalletID == w.ID {
				s.logger.WithFields(logrus.Fields{
					"wallet_id": w.ID,
					"address":   a.Address,
				}).Warn("address already stored in wallet")
				continue
			}
			s.logger.WithFields(logrus.Fields{
				"wallet_id":       w.ID,
				"other_wallet_id": existing.WalletID,
				"address":         a.Address,
			}).Warn("address exists in more than one wallet")
		}
		s.addresses[a.Address] = clone(a)
	}
	s.wallets[w.ID] = clone(w)
	return nil
}

func (s *Storage) StoreAddress(_ context.Context, a *types.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.addresses[a.Address]; !ok {
		return nil
	}
	s.addresses[a.Address] = clone(a)
	return nil
}

func (s *Storage) FetchTx(_ context.Context, walletID, id string) (*types.TxProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.txs[txKey(walletID, id)]), nil
}

func (s *Storage) FetchTxByHash(_ context.Context, txid string) (*types.TxProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.txs {
		if t.TxID == txid {
			return clone(t), nil
		}
	}
	return nil, nil
}

// filterTxs returns matching proposals newest first.
func (s *Storage) filterTxs(walletID string, keep func(*types.TxProposal) bool, limit int) []*types.TxProposal {
	var out []*types.TxProposal
	for _, t := range s.txs {
		if t.WalletID == walletID && keep(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedOn != out[j].CreatedOn {
			return out[i].CreatedOn > out[j].CreatedOn
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i] = clone(out[i])
	}
	return out
}

func (s *Storage) FetchLastTxs(_ context.Context, walletID, creatorID string, limit int) ([]*types.TxProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 5
	}
	return s.filterTxs(walletID, func(t *types.TxProposal) bool { return t.CreatorID == creatorID }, limit), nil
}

func (s *Storage) FetchPendingTxs(_ context.Context, walletID string) ([]*types.TxProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterTxs(walletID, (*types.TxProposal).IsPending, 0), nil
}

func inRange(ts int64, q storage.TxQuery) bool {
	if q.MinTs > 0 && ts < q.MinTs {
		return false
	}
	if q.MaxTs > 0 && ts > q.MaxTs {
		return false
	}
	return true
}

func (s *Storage) FetchTxs(_ context.Context, walletID string, q storage.TxQuery) ([]*types.TxProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterTxs(walletID, func(t *types.TxProposal) bool { return inRange(t.CreatedOn, q) }, q.Limit), nil
}

func (s *Storage) FetchBroadcastedTxs(_ context.Context, walletID string, q storage.TxQuery) ([]*types.TxProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterTxs(walletID, func(t *types.TxProposal) bool {
		return t.IsBroadcasted() && inRange(t.BroadcastedOn, q)
	}, q.Limit), nil
}

func (s *Storage) StoreTx(_ context.Context, txp *types.TxProposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := clone(txp)
	c.DeleteLockTime = 0
	c.Note = nil
	s.txs[txKey(txp.WalletID, txp.ID)] = c
	return nil
}

func (s *Storage) RemoveTx(_ context.Context, walletID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.txs, txKey(walletID, id))
	return nil
}

func (s *Storage) FetchNotifications(_ context.Context, walletID, notificationID string, minTs int64) ([]*types.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	minID := types.MinNotificationID(minTs)
	if notificationID > minID {
		minID = notificationID
	}
	var out []*types.Notification
	for _, n := range s.notifications[walletID] {
		if n.ID > minID {
			out = append(out, clone(n))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Storage) StoreNotification(_ context.Context, n *types.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.WalletID] = append(s.notifications[n.WalletID], clone(n))
	return nil
}

func (s *Storage) FetchPreferences(_ context.Context, walletID, copayerID string) (*types.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.preferences[walletID+"/"+copayerID]), nil
}

func (s *Storage) StorePreferences(_ context.Context, p *types.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[p.WalletID+"/"+p.CopayerID] = clone(p)
	return nil
}

func (s *Storage) FetchTxNote(_ context.Context, walletID, txid string) (*types.TxNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.notes[walletID+"/"+txid]), nil
}

func (s *Storage) FetchTxNotes(_ context.Context, walletID string, minTs int64) ([]*types.TxNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.TxNote
	for _, n := range s.notes {
		if n.WalletID == walletID && n.EditedOn >= minTs {
			out = append(out, clone(n))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TxID < out[j].TxID })
	return out, nil
}

func (s *Storage) StoreTxNote(_ context.Context, n *types.TxNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[n.WalletID+"/"+n.TxID] = clone(n)
	return nil
}

func (s *Storage) FetchActiveAddresses(_ context.Context, walletID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.active[walletID]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Storage) CleanActiveAddresses(_ context.Context, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[walletID] = make(map[string]struct{})
	return nil
}

func (s *Storage) StoreActiveAddresses(_ context.Context, walletID string, addresses []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.active[walletID]
	if !ok {
		set = make(map[string]struct{})
		s.active[walletID] = set
	}
	for _, a := range addresses {
		set[a] = struct{}{}
	}
	return nil
}

func (s *Storage) GetTxHistoryCache(_ context.Context, walletID string, from, to int) ([]types.ChainTx, bool, error) {
	if from < 0 || from > to {
		return nil, false, types.NewClientError("invalid history range")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.history[walletID]
	if !ok || !h.status.IsUpdated {
		return nil, false, nil
	}
	fwd, end := storage.HistoryWindow(h.status.TotalItems, from, to)
	if end <= 0 {
		return []types.ChainTx{}, true, nil
	}
	out := make([]types.ChainTx, 0, end-fwd)
	for pos := end - 1; pos >= fwd; pos-- {
		tx, ok := h.items[pos]
		if !ok {
			return nil, false, nil
		}
		out = append(out, tx)
	}
	return out, true, nil
}

func (s *Storage) StoreTxHistoryCache(_ context.Context, walletID string, totalItems int64, firstPosition int, items []types.ChainTx) error {
	if firstPosition < 0 || totalItems < 0 {
		return types.NewClientError("invalid history cache position")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[walletID]
	if !ok {
		h = &historyCache{items: make(map[int64]types.ChainTx)}
		s.history[walletID] = h
	}
	for i, tx := range items {
		h.items[int64(firstPosition+i)] = tx
	}
	h.status = types.HistoryCacheStatus{
		TotalItems: totalItems,
		UpdatedOn:  time.Now().UnixMilli(),
		IsComplete: firstPosition == 0,
		IsUpdated:  true,
	}
	return nil
}

func (s *Storage) FetchTxHistoryCacheStatus(_ context.Context, walletID string) (*types.HistoryCacheStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.history[walletID]
	if !ok {
		return nil, nil
	}
	st := h.status
	return &st, nil
}

func (s *Storage) SoftResetTxHistoryCache(_ context.Context, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[walletID]
	if !ok {
		h = &historyCache{items: make(map[int64]types.ChainTx)}
		s.history[walletID] = h
	}
	h.status.IsUpdated = false
	return nil
}

func (s *Storage) SoftResetAllTxHistoryCache(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.history {
		h.status.IsUpdated = false
	}
	return nil
}

func (s *Storage) ClearTxHistoryCache(_ context.Context, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, walletID)
	return nil
}
