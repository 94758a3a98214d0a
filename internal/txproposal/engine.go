package txproposal

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/vultiwallet/chainhelper"
	"github.com/vultisig/vultiwallet/internal/bus"
	"github.com/vultisig/vultiwallet/internal/coinselect"
	"github.com/vultisig/vultiwallet/internal/explorer"
	"github.com/vultisig/vultiwallet/internal/types"
	"github.com/vultisig/vultiwallet/storage"
)

// Config holds the knobs of the proposal engine. Selection carries the coin
// selection tunables; the wallet shape is filled in per wallet.
type Config struct {
	Selection      coinselect.Policy
	FeeLevels      []types.FeeLevel
	MinFeePerKb    int64
	MaxFeePerKb    int64
	BackoffOffset  int
	BackoffTime    time.Duration
	DeleteLockTime time.Duration
}

func DefaultConfig() Config {
	return Config{
		Selection:      coinselect.DefaultPolicy(0, 0, ""),
		FeeLevels:      types.DefaultFeeLevels,
		MinFeePerKb:    types.MinFeePerKb,
		MaxFeePerKb:    types.MaxFeePerKb,
		BackoffOffset:  types.BackoffOffset,
		BackoffTime:    types.BackoffTime,
		DeleteLockTime: types.DeleteLockTime,
	}
}

// ChainState is what the engine needs to know about the chain as seen by a
// wallet.
type ChainState interface {
	GetUtxos(ctx context.Context, w *types.Wallet, addresses []*types.Address) ([]types.Utxo, error)
	FeePerKbForLevel(ctx context.Context, network, level string) (int64, error)
	Explorer(network string) (explorer.Explorer, error)
}

type Notifier interface {
	Notify(ctx context.Context, e bus.Event) *types.Notification
}

// Engine drives proposals through their lifecycle. It does no locking of
// its own; callers hold the wallet lock around every mutating call.
type Engine struct {
	cfg      Config
	storage  storage.WalletStorage
	chain    ChainState
	notifier Notifier
	logger   *logrus.Logger
	helper   func(network string) (chainhelper.ChainHelper, error)
	now      func() time.Time
}

func NewEngine(cfg Config, store storage.WalletStorage, chain ChainState, notifier Notifier, logger *logrus.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		storage:  store,
		chain:    chain,
		notifier: notifier,
		logger:   logger,
		helper: func(network string) (chainhelper.ChainHelper, error) {
			return chainhelper.NewUTXOChainHelper(network)
		},
		now: time.Now,
	}
}

// SetClock replaces the time source used for proposal, vote and backoff
// timestamps.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Policy returns the selection policy for the wallet's shape.
func (e *Engine) Policy(w *types.Wallet) coinselect.Policy {
	p := e.cfg.Selection
	p.M = w.M
	p.N = w.N
	p.AddressType = w.AddressType
	if p.NumOutputs == 0 {
		p.NumOutputs = 1
	}
	return p
}

// EstimatedSize is the size the proposal's transaction is expected to have.
func EstimatedSize(txp *types.TxProposal) int64 {
	return coinselect.EstimateSize(txp.AddressType, txp.RequiredSignatures, txp.WalletN, len(txp.Inputs), len(txp.Outputs))
}

func EstimatedFee(txp *types.TxProposal) int64 {
	return coinselect.EstimateFee(EstimatedSize(txp), txp.FeePerKb)
}

func (e *Engine) log(txp *types.TxProposal) *logrus.Entry {
	return e.logger.WithFields(logrus.Fields{
		"wallet_id":      txp.WalletID,
		"tx_proposal_id": txp.ID,
	})
}

func (e *Engine) notifyAction(ctx context.Context, kind string, w *types.Wallet, copayerID string, txp *types.TxProposal, extra map[string]any) {
	data := map[string]any{
		"txProposalId": txp.ID,
		"creatorId":    txp.CreatorID,
		"amount":       txp.TotalAmount(),
		"message":      txp.Message,
	}
	for k, v := range extra {
		data[k] = v
	}
	e.notifier.Notify(ctx, bus.Event{
		Type:      kind,
		WalletID:  w.ID,
		Network:   w.Network,
		CreatorID: copayerID,
		Data:      data,
	})
}

// Get returns the proposal with its note attached when it has a txid.
func (e *Engine) Get(ctx context.Context, walletID, id string) (*types.TxProposal, error) {
	txp, err := e.storage.FetchTx(ctx, walletID, id)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch tx proposal: %w", err)
	}
	if txp == nil {
		return nil, types.ErrTxNotFound
	}
	if txp.TxID == "" {
		return txp, nil
	}
	note, err := e.storage.FetchTxNote(ctx, walletID, txp.TxID)
	if err != nil {
		e.log(txp).WithError(err).Warn("fail to fetch tx note")
	}
	txp.Note = note
	return txp, nil
}

// List returns proposals created within q, newest first.
func (e *Engine) List(ctx context.Context, walletID string, q storage.TxQuery) ([]*types.TxProposal, error) {
	txps, err := e.storage.FetchTxs(ctx, walletID, q)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch tx proposals: %w", err)
	}
	return txps, nil
}

// RemainingDeleteLockTime is how many seconds copayerID must wait before
// removing txp. Only the creator of a proposal nobody else voted on may
// remove it right away.
func (e *Engine) RemainingDeleteLockTime(txp *types.TxProposal, copayerID string) int64 {
	remaining := txp.CreatedOn + int64(e.cfg.DeleteLockTime/time.Second) - e.now().Unix()
	if remaining < 0 {
		return 0
	}
	if txp.CreatorID != copayerID {
		return remaining
	}
	approvers := txp.GetApprovers()
	if len(approvers) > 1 || (len(approvers) == 1 && approvers[0] != copayerID) {
		return remaining
	}
	return 0
}

// CanCreate applies the rejection backoff: after BackoffOffset consecutive
// rejections a creator must wait BackoffTime since the last rejection for
// each further proposal.
func (e *Engine) CanCreate(ctx context.Context, walletID, creatorID string) (bool, error) {
	txs, err := e.storage.FetchLastTxs(ctx, walletID, creatorID, 5+e.cfg.BackoffOffset)
	if err != nil {
		return false, fmt.Errorf("fail to fetch last tx proposals: %w", err)
	}
	if len(txs) == 0 {
		return true, nil
	}
	rejections := 0
	for _, t := range txs {
		if !t.IsRejected() {
			break
		}
		rejections++
	}
	if rejections-e.cfg.BackoffOffset <= 0 {
		return true, nil
	}
	elapsed := e.now().Unix() - txs[0].LastRejectionTime()
	backoff := int64(e.cfg.BackoffTime / time.Second)
	if elapsed <= backoff {
		e.logger.WithFields(logrus.Fields{
			"wallet_id":  walletID,
			"copayer_id": creatorID,
			"elapsed":    elapsed,
			"backoff":    backoff,
		}).Debug("not allowing to create tx proposal")
		return false, nil
	}
	return true, nil
}
