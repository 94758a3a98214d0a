package walletcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/vultiwallet/internal/bus"
	"github.com/vultisig/vultiwallet/internal/explorer"
	"github.com/vultisig/vultiwallet/internal/types"
	"github.com/vultisig/vultiwallet/storage"
)

type Config struct {
	TwoStepBalanceThreshold   int
	RecentWindow              time.Duration
	BroadcastedTxsLimit       int
	HistoryLimit              int
	HistoryCacheAddressThresh int
	ConfirmationsToCache      int64
	FeeLevels                 []types.FeeLevel
	FeeLevelsFallback         int
}

func DefaultConfig() Config {
	return Config{
		TwoStepBalanceThreshold:   types.TwoStepBalanceThreshold,
		RecentWindow:              types.RecentWindow,
		BroadcastedTxsLimit:       types.BroadcastedTxsLimit,
		HistoryLimit:              types.HistoryLimit,
		HistoryCacheAddressThresh: types.HistoryCacheAddressThresh,
		ConfirmationsToCache:      types.ConfirmationsToCache,
		FeeLevels:                 types.DefaultFeeLevels,
		FeeLevelsFallback:         types.FeeLevelsFallback,
	}
}

type Notifier interface {
	Notify(ctx context.Context, e bus.Event) *types.Notification
}

// BalanceScheduler queues the full balance recompute that follows a
// two-step balance answer.
type BalanceScheduler interface {
	ScheduleBalanceRecompute(ctx context.Context, walletID string, partial *types.Balance) error
}

// Manager derives balances, utxos and history from the explorer and keeps
// the per-wallet caches that make them cheap.
type Manager struct {
	cfg       Config
	storage   storage.WalletStorage
	explorers explorer.Registry
	notifier  Notifier
	scheduler BalanceScheduler
	logger    *logrus.Logger
	now       func() time.Time
}

func NewManager(cfg Config, store storage.WalletStorage, explorers explorer.Registry, notifier Notifier, logger *logrus.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		storage:   store,
		explorers: explorers,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// SetBalanceScheduler routes full recomputes through s instead of an
// in-process goroutine.
func (m *Manager) SetBalanceScheduler(s BalanceScheduler) {
	m.scheduler = s
}

func (m *Manager) Explorer(network string) (explorer.Explorer, error) {
	return m.explorers.Get(network)
}

// GetAddressUtxos asks the explorer for the utxos of arbitrary addresses,
// without wallet context.
func (m *Manager) GetAddressUtxos(ctx context.Context, network string, addresses []string) ([]types.Utxo, error) {
	if len(addresses) == 0 {
		return []types.Utxo{}, nil
	}
	ex, err := m.explorers.Get(network)
	if err != nil {
		return nil, err
	}
	utxos, err := ex.GetUtxos(ctx, addresses)
	if err != nil {
		return nil, fmt.Errorf("fail to get utxos: %w", err)
	}
	for i := range utxos {
		utxos[i].Locked = false
		utxos[i].Spent = false
	}
	return utxos, nil
}

// GetUtxos returns the spendable outputs of the wallet. Inputs of pending
// proposals come back locked; inputs of recently broadcast proposals are
// dropped since the explorer may not have caught up. A nil addresses means
// every wallet address.
func (m *Manager) GetUtxos(ctx context.Context, w *types.Wallet, addresses []*types.Address) ([]types.Utxo, error) {
	if addresses == nil {
		all, err := m.storage.FetchAddresses(ctx, w.ID)
		if err != nil {
			return nil, fmt.Errorf("fail to fetch addresses: %w", err)
		}
		addresses = all
	}
	if len(addresses) == 0 {
		return []types.Utxo{}, nil
	}

	byAddress := make(map[string]*types.Address, len(addresses))
	strs := make([]string, 0, len(addresses))
	for _, a := range addresses {
		byAddress[a.Address] = a
		strs = append(strs, a.Address)
	}
	utxos, err := m.GetAddressUtxos(ctx, w.Network, strs)
	if err != nil {
		return nil, err
	}
	if len(utxos) == 0 {
		return utxos, nil
	}

	pending, err := m.storage.FetchPendingTxs(ctx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch pending txs: %w", err)
	}
	locked := map[string]bool{}
	for _, txp := range pending {
		for _, in := range txp.Inputs {
			locked[in.Key()] = true
		}
	}

	recent, err := m.storage.FetchBroadcastedTxs(ctx, w.ID, storage.TxQuery{
		MinTs: m.now().Add(-m.cfg.RecentWindow).Unix(),
		Limit: m.cfg.BroadcastedTxsLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("fail to fetch broadcasted txs: %w", err)
	}
	spent := map[string]bool{}
	for _, txp := range recent {
		for _, in := range txp.Inputs {
			spent[in.Key()] = true
		}
	}

	out := make([]types.Utxo, 0, len(utxos))
	for _, u := range utxos {
		if spent[u.Key()] {
			continue
		}
		u.Locked = locked[u.Key()]
		if a, ok := byAddress[u.Address]; ok {
			u.Path = a.Path
			u.PublicKeys = a.PublicKeys
		}
		out = append(out, u)
	}
	return out, nil
}

// Totalize sums utxos into a balance, including the per-address split.
func Totalize(utxos []types.Utxo) *types.Balance {
	b := &types.Balance{ByAddress: []types.AddressBalance{}}
	byAddress := map[string]*types.AddressBalance{}
	for _, u := range utxos {
		b.TotalAmount += u.Satoshis
		if u.Locked {
			b.LockedAmount += u.Satoshis
		}
		if u.Confirmations > 0 {
			b.TotalConfirmedAmount += u.Satoshis
			if u.Locked {
				b.LockedConfirmedAmount += u.Satoshis
			}
		}
		ab, ok := byAddress[u.Address]
		if !ok {
			ab = &types.AddressBalance{Address: u.Address, Path: u.Path}
			byAddress[u.Address] = ab
		}
		ab.Amount += u.Satoshis
	}
	b.AvailableAmount = b.TotalAmount - b.LockedAmount
	b.AvailableConfirmedAmount = b.TotalConfirmedAmount - b.LockedConfirmedAmount

	for _, ab := range byAddress {
		b.ByAddress = append(b.ByAddress, *ab)
	}
	sort.Slice(b.ByAddress, func(i, j int) bool { return b.ByAddress[i].Address < b.ByAddress[j].Address })
	return b
}

func (m *Manager) balanceFromAddresses(ctx context.Context, w *types.Wallet, addresses []*types.Address) (*types.Balance, error) {
	utxos, err := m.GetUtxos(ctx, w, addresses)
	if err != nil {
		return nil, err
	}
	return Totalize(utxos), nil
}

// GetBalanceOneStep computes the balance over every address and replaces the
// active address cache with the addresses holding funds.
func (m *Manager) GetBalanceOneStep(ctx context.Context, w *types.Wallet) (*types.Balance, error) {
	addresses, err := m.storage.FetchAddresses(ctx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch addresses: %w", err)
	}
	balance, err := m.balanceFromAddresses(ctx, w, addresses)
	if err != nil {
		return nil, err
	}

	active := make([]string, 0, len(balance.ByAddress))
	for _, ab := range balance.ByAddress {
		active = append(active, ab.Address)
	}
	if err := m.storage.CleanActiveAddresses(ctx, w.ID); err != nil {
		m.logger.WithField("wallet_id", w.ID).WithError(err).Warn("could not update wallet cache")
		return balance, nil
	}
	if err := m.storage.StoreActiveAddresses(ctx, w.ID, active); err != nil {
		m.logger.WithField("wallet_id", w.ID).WithError(err).Warn("could not update wallet cache")
	}
	return balance, nil
}

// activeAddresses returns the cached active addresses plus the ones created
// within the recent window, or nil when the cache was never filled.
func (m *Manager) activeAddresses(ctx context.Context, walletID string) ([]*types.Address, error) {
	active, err := m.storage.FetchActiveAddresses(ctx, walletID)
	if err != nil {
		m.logger.WithField("wallet_id", walletID).WithError(err).Warn("could not fetch active addresses from cache")
		return nil, nil
	}
	if active == nil {
		return nil, nil
	}
	all, err := m.storage.FetchAddresses(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch addresses: %w", err)
	}

	index := make(map[string]*types.Address, len(all))
	for _, a := range all {
		index[a.Address] = a
	}
	seen := map[string]bool{}
	result := make([]*types.Address, 0, len(active))
	add := func(addr string) {
		if seen[addr] {
			return
		}
		seen[addr] = true
		if a, ok := index[addr]; ok {
			result = append(result, a)
		}
	}
	for _, a := range active {
		add(a)
	}
	since := m.now().Add(-m.cfg.RecentWindow).Unix()
	for _, a := range all {
		if a.CreatedOn > since {
			add(a.Address)
		}
	}
	return result, nil
}

// GetBalance returns the wallet balance. With twoStep on a large wallet the
// answer only covers the active addresses and a full recompute is scheduled;
// a BalanceUpdated notification follows if the two differ.
func (m *Manager) GetBalance(ctx context.Context, w *types.Wallet, twoStep bool) (*types.Balance, error) {
	if !twoStep {
		return m.GetBalanceOneStep(ctx, w)
	}
	count, err := m.storage.CountAddresses(ctx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("fail to count addresses: %w", err)
	}
	if count < m.cfg.TwoStepBalanceThreshold {
		return m.GetBalanceOneStep(ctx, w)
	}
	active, err := m.activeAddresses(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return m.GetBalanceOneStep(ctx, w)
	}

	m.logger.WithFields(logrus.Fields{
		"wallet_id": w.ID,
		"active":    len(active),
		"total":     count,
	}).Debug("requesting partial balance")
	partial, err := m.balanceFromAddresses(ctx, w, active)
	if err != nil {
		return nil, err
	}
	m.scheduleRecompute(ctx, w.ID, partial)
	return partial, nil
}

func (m *Manager) scheduleRecompute(ctx context.Context, walletID string, partial *types.Balance) {
	if m.scheduler != nil {
		err := m.scheduler.ScheduleBalanceRecompute(ctx, walletID, partial)
		if err == nil {
			return
		}
		m.logger.WithField("wallet_id", walletID).WithError(err).Warn("fail to enqueue balance recompute, running in process")
	}
	go func() {
		if _, err := m.RecomputeBalance(context.Background(), walletID, partial); err != nil {
			m.logger.WithField("wallet_id", walletID).WithError(err).Error("fail to recompute balance")
		}
	}()
}

// RecomputeBalance runs the full balance and notifies the wallet when it
// differs from partial. It reports whether a notification was sent.
func (m *Manager) RecomputeBalance(ctx context.Context, walletID string, partial *types.Balance) (bool, error) {
	w, err := m.storage.FetchWallet(ctx, walletID)
	if err != nil {
		return false, fmt.Errorf("fail to fetch wallet: %w", err)
	}
	if w == nil {
		return false, types.ErrWalletNotFound
	}
	full, err := m.GetBalanceOneStep(ctx, w)
	if err != nil {
		return false, err
	}
	if full.Equal(partial) {
		return false, nil
	}
	m.logger.WithField("wallet_id", walletID).Info("balance in active addresses differs from final balance")
	m.notifier.Notify(ctx, bus.Event{
		Type:     types.NotifyBalanceUpdated,
		WalletID: w.ID,
		Network:  w.Network,
		Global:   true,
		Data:     ToData(full),
	})
	return true, nil
}

// ToData flattens v into a notification payload.
func ToData(v any) map[string]any {
	buf, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(buf, &out); err != nil {
		return map[string]any{}
	}
	return out
}
