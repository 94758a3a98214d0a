package walletcache

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vultisig/vultiwallet/internal/types"
	"github.com/vultisig/vultiwallet/storage"
)

const (
	proposalLookBehind = 7 * 24 * time.Hour
	proposalLookAhead  = 24 * time.Hour
	notAvailable       = "N/A"
	lowFeesLevel       = "superEconomy"
)

type HistoryOptions struct {
	Skip                int
	Limit               int
	IncludeExtendedInfo bool
}

type page struct {
	items     []types.ChainTx
	fromCache bool
}

// GetTxHistory returns the wallet transactions newest first, decorated with
// the wallet's view of each one. The bool reports a cache hit.
func (m *Manager) GetTxHistory(ctx context.Context, w *types.Wallet, opts HistoryOptions) ([]types.HistoryTx, bool, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = m.cfg.HistoryLimit
	}
	if limit > m.cfg.HistoryLimit {
		return nil, false, types.ErrHistoryLimitExceeded
	}
	if opts.Skip < 0 {
		return nil, false, types.NewClientError("Invalid skip")
	}

	addresses, err := m.storage.FetchAddresses(ctx, w.ID)
	if err != nil {
		return nil, false, fmt.Errorf("fail to fetch addresses: %w", err)
	}
	if len(addresses) == 0 {
		return []types.HistoryTx{}, false, nil
	}

	from := opts.Skip
	to := from + limit
	p, err := m.normalizedTxs(ctx, w, addresses, from, to)
	if err != nil {
		return nil, false, err
	}

	var proposals []*types.TxProposal
	var notes []*types.TxNote
	if len(p.items) > 0 {
		minTime, maxTime := p.items[0].Time, p.items[0].Time
		for _, tx := range p.items[1:] {
			minTime = min(minTime, tx.Time)
			maxTime = max(maxTime, tx.Time)
		}
		minTs := minTime - int64(proposalLookBehind/time.Second)
		maxTs := maxTime + int64(proposalLookAhead/time.Second)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			proposals, err = m.storage.FetchTxs(gctx, w.ID, storage.TxQuery{MinTs: minTs, MaxTs: maxTs})
			return err
		})
		g.Go(func() error {
			var err error
			notes, err = m.storage.FetchTxNotes(gctx, w.ID, minTs)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, false, fmt.Errorf("fail to fetch history decorations: %w", err)
		}
	}

	out := decorate(w, p.items, addresses, proposals, notes, opts.IncludeExtendedInfo)
	m.tagLowFees(ctx, w, out)
	if p.fromCache {
		m.logger.WithFields(logrus.Fields{"wallet_id": w.ID, "from": from, "to": to}).Debug("history from cache")
	}
	return out, p.fromCache, nil
}

func (m *Manager) normalizedTxs(ctx context.Context, w *types.Wallet, addresses []*types.Address, from, to int) (*page, error) {
	useCache := len(addresses) >= m.cfg.HistoryCacheAddressThresh

	ex, err := m.explorers.Get(w.Network)
	if err != nil {
		return nil, err
	}

	if useCache {
		cached, hit, err := m.storage.GetTxHistoryCache(ctx, w.ID, from, to)
		if err != nil {
			return nil, fmt.Errorf("fail to read history cache: %w", err)
		}
		if hit && len(cached) > 0 {
			height, err := ex.GetBlockchainHeight(ctx)
			if err != nil {
				return nil, fmt.Errorf("fail to get blockchain height: %w", err)
			}
			if height > 0 {
				for i := range cached {
					if cached[i].BlockHeight >= 0 {
						cached[i].Confirmations = height - cached[i].BlockHeight + 1
					}
				}
			}
			return &page{items: cached, fromCache: true}, nil
		}
	}

	strs := make([]string, 0, len(addresses))
	for _, a := range addresses {
		strs = append(strs, a.Address)
	}
	txs, total, err := ex.GetTransactions(ctx, strs, from, to)
	if err != nil {
		return nil, fmt.Errorf("fail to get transactions: %w", err)
	}

	if useCache {
		var toCache []types.ChainTx
		for i := len(txs) - 1; i >= 0; i-- {
			if txs[i].Confirmations >= m.cfg.ConfirmationsToCache {
				toCache = append(toCache, txs[i])
			}
		}
		if len(toCache) > 0 {
			fwd, _ := storage.HistoryWindow(total, from, to)
			if err := m.storage.StoreTxHistoryCache(ctx, w.ID, total, int(fwd), toCache); err != nil {
				return nil, fmt.Errorf("fail to store history cache: %w", err)
			}
		}
	}
	return &page{items: txs}, nil
}

type classified struct {
	address  string
	amount   int64
	isMine   bool
	isChange bool
}

func classify(w *types.Wallet, items []types.TxItem, index map[string]*types.Address) []classified {
	out := make([]classified, 0, len(items))
	for _, it := range items {
		c := classified{address: it.Address, amount: it.Amount}
		if a, ok := index[it.Address]; ok {
			c.isMine = true
			c.isChange = a.IsChange || w.SingleAddress
		}
		out = append(out, c)
	}
	return out
}

func sumMine(items []classified, change *bool) int64 {
	var total int64
	for _, it := range items {
		if !it.isMine {
			continue
		}
		if change != nil && it.isChange != *change {
			continue
		}
		total += it.amount
	}
	return total
}

func decorate(w *types.Wallet, txs []types.ChainTx, addresses []*types.Address, proposals []*types.TxProposal, notes []*types.TxNote, extended bool) []types.HistoryTx {
	index := make(map[string]*types.Address, len(addresses))
	for _, a := range addresses {
		index[a.Address] = a
	}
	byTxID := map[string]*types.TxProposal{}
	for _, p := range proposals {
		if p.TxID != "" {
			byTxID[p.TxID] = p
		}
	}
	notesByTxID := map[string]*types.TxNote{}
	for _, n := range notes {
		notesByTxID[n.TxID] = n
	}

	yes, no := true, false
	out := make([]types.HistoryTx, 0, len(txs))
	for _, tx := range txs {
		h := types.HistoryTx{
			TxID:          tx.TxID,
			Fees:          tx.Fees,
			Time:          tx.Time,
			Confirmations: tx.Confirmations,
			Outputs:       []types.HistoryOutput{},
		}

		var inputs, outputs []classified
		if len(tx.Inputs) == 0 && len(tx.Outputs) == 0 {
			h.Action = types.HistoryActionInvalid
		} else {
			inputs = classify(w, tx.Inputs, index)
			outputs = classify(w, tx.Outputs, index)

			amountIn := sumMine(inputs, nil)
			amountOut := sumMine(outputs, &no)
			amountOutChange := sumMine(outputs, &yes)
			var fees int64
			if amountIn > 0 {
				fees = tx.Fees
			}
			var amount int64
			if amountIn == amountOut+amountOutChange+fees {
				amount = amountOut
				h.Action = types.HistoryActionMoved
			} else {
				amount = amountIn - amountOut - amountOutChange - fees
				if amount > 0 {
					h.Action = types.HistoryActionSent
				} else {
					h.Action = types.HistoryActionReceived
				}
			}
			if amount < 0 {
				amount = -amount
			}
			h.Amount = amount

			if h.Action == types.HistoryActionSent || h.Action == types.HistoryActionMoved {
				h.AddressTo = notAvailable
				for _, o := range outputs {
					if !o.isMine {
						h.AddressTo = o.address
						break
					}
				}
			}
		}

		if tx.Size > 0 {
			h.FeePerKb = int64(math.Round(float64(tx.Fees) * 1000 / float64(tx.Size)))
		}

		if extended {
			h.Inputs = make([]types.HistoryOutput, 0, len(inputs))
			for _, in := range inputs {
				mine := in.isMine
				h.Inputs = append(h.Inputs, types.HistoryOutput{Address: in.address, Amount: in.amount, IsMine: &mine})
			}
			for _, o := range outputs {
				mine := o.isMine
				h.Outputs = append(h.Outputs, types.HistoryOutput{Address: o.address, Amount: o.amount, IsMine: &mine})
			}
		} else {
			for _, o := range outputs {
				if o.isChange {
					continue
				}
				if h.Action == types.HistoryActionReceived && !o.isMine {
					continue
				}
				h.Outputs = append(h.Outputs, types.HistoryOutput{Address: o.address, Amount: o.amount})
			}
		}

		if p, ok := byTxID[tx.TxID]; ok {
			h.CreatedOn = p.CreatedOn
			h.ProposalID = p.ID
			h.Message = p.Message
			h.CustomData = p.CustomData
			for _, a := range p.Actions {
				h.Actions = append(h.Actions, types.Action{
					CopayerID: a.CopayerID,
					Type:      a.Type,
					Comment:   a.Comment,
					CreatedOn: a.CreatedOn,
				})
			}
			for i := range h.Outputs {
				for _, po := range p.Outputs {
					if po.ToAddress == h.Outputs[i].Address && po.Amount == h.Outputs[i].Amount {
						h.Outputs[i].Message = po.Message
						break
					}
				}
			}
		}

		if n, ok := notesByTxID[tx.TxID]; ok {
			h.Note = &types.HistoryNote{Body: n.Body, EditedBy: n.EditedBy, EditedOn: n.EditedOn}
		}
		out = append(out, h)
	}
	return out
}

// tagLowFees flags unconfirmed txs paying less than the cheapest level the
// network currently estimates.
func (m *Manager) tagLowFees(ctx context.Context, w *types.Wallet, txs []types.HistoryTx) {
	unconfirmed := false
	for _, tx := range txs {
		if tx.Confirmations == 0 {
			unconfirmed = true
			break
		}
	}
	if !unconfirmed {
		return
	}
	levels, err := m.GetFeeLevels(ctx, w.Network)
	if err != nil {
		m.logger.WithField("wallet_id", w.ID).WithError(err).Warn("could not fetch fee levels")
		return
	}
	var threshold *types.FeeLevelValue
	for i := range levels {
		if levels[i].Level == lowFeesLevel {
			threshold = &levels[i]
		}
	}
	if threshold == nil || threshold.NbBlocks == nil {
		m.logger.WithField("wallet_id", w.ID).Debug("cannot compute super economy fee level from blockchain")
		return
	}
	for i := range txs {
		if txs[i].Confirmations != 0 {
			continue
		}
		low := txs[i].FeePerKb < threshold.FeePerKb
		txs[i].LowFees = &low
	}
}
