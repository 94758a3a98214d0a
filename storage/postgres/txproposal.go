package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vultisig/vultiwallet/internal/types"
	"github.com/vultisig/vultiwallet/storage"
)

func (p *PostgresBackend) FetchTx(ctx context.Context, walletID, id string) (*types.TxProposal, error) {
	if p.pool == nil {
		return nil, errNilPool
	}
	txp, err := fetchDoc[types.TxProposal](ctx, p.pool, `
		SELECT doc FROM tx_proposals WHERE wallet_id = $1 AND id = $2
	`, walletID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tx proposal: %w", err)
	}
	return txp, nil
}

func (p *PostgresBackend) FetchTxByHash(ctx context.Context, txid string) (*types.TxProposal, error) {
	if p.pool == nil {
		return nil, errNilPool
	}
	txp, err := fetchDoc[types.TxProposal](ctx, p.pool, `SELECT doc FROM tx_proposals WHERE txid = $1 LIMIT 1`, txid)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tx proposal by hash: %w", err)
	}
	return txp, nil
}

func (p *PostgresBackend) FetchLastTxs(ctx context.Context, walletID, creatorID string, limit int) ([]*types.TxProposal, error) {
	if p.pool == nil {
		return nil, errNilPool
	}
	if limit <= 0 {
		limit = 5
	}
	txps, err := fetchDocs[types.TxProposal](ctx, p.pool, `
		SELECT doc FROM tx_proposals
		WHERE wallet_id = $1 AND creator_id = $2
		ORDER BY created_on DESC, id DESC
		LIMIT $3
	`, walletID, creatorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch last tx proposals: %w", err)
	}
	return txps, nil
}

func (p *PostgresBackend) FetchPendingTxs(ctx context.Context, walletID string) ([]*types.TxProposal, error) {
	if p.pool == nil {
		return nil, errNilPool
	}
	txps, err := fetchDocs[types.TxProposal](ctx, p.pool, `
		SELECT doc FROM tx_proposals
		WHERE wallet_id = $1 AND is_pending
		ORDER BY created_on DESC, id DESC
	`, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending tx proposals: %w", err)
	}
	return txps, nil
}

// rangeQuery builds the filter shared by the time-bounded proposal lookups.
func rangeQuery(base, column string, walletID string, q storage.TxQuery) (string, []any) {
	var sb strings.Builder
	sb.WriteString(base)
	args := []any{walletID}
	if q.MinTs > 0 {
		args = append(args, q.MinTs)
		fmt.Fprintf(&sb, " AND %s >= $%d", column, len(args))
	}
	if q.MaxTs > 0 {
		args = append(args, q.MaxTs)
		fmt.Fprintf(&sb, " AND %s <= $%d", column, len(args))
	}
	sb.WriteString(" ORDER BY created_on DESC, id DESC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	return sb.String(), args
}

func (p *PostgresBackend) FetchTxs(ctx context.Context, walletID string, q storage.TxQuery) ([]*types.TxProposal, error) {
	if p.pool == nil {
		return nil, errNilPool
	}
	query, args := rangeQuery(`SELECT doc FROM tx_proposals WHERE wallet_id = $1`, "created_on", walletID, q)
	txps, err := fetchDocs[types.TxProposal](ctx, p.pool, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tx proposals: %w", err)
	}
	return txps, nil
}

func (p *PostgresBackend) FetchBroadcastedTxs(ctx context.Context, walletID string, q storage.TxQuery) ([]*types.TxProposal, error) {
	if p.pool == nil {
		return nil, errNilPool
	}
	query, args := rangeQuery(`SELECT doc FROM tx_proposals WHERE wallet_id = $1 AND status = 'broadcasted'`, "broadcasted_on", walletID, q)
	txps, err := fetchDocs[types.TxProposal](ctx, p.pool, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch broadcasted tx proposals: %w", err)
	}
	return txps, nil
}

func (p *PostgresBackend) StoreTx(ctx context.Context, txp *types.TxProposal) error {
	if p.pool == nil {
		return errNilPool
	}
	stored := *txp
	stored.DeleteLockTime = 0
	stored.Note = nil
	doc, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal tx proposal: %w", err)
	}
	var txid *string
	if txp.TxID != "" {
		txid = &txp.TxID
	}
	var broadcastedOn *int64
	if txp.BroadcastedOn > 0 {
		broadcastedOn = &txp.BroadcastedOn
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO tx_proposals (wallet_id, id, creator_id, txid, status, is_pending, created_on, broadcasted_on, doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (wallet_id, id) DO UPDATE SET
			txid = EXCLUDED.txid,
			status = EXCLUDED.status,
			is_pending = EXCLUDED.is_pending,
			broadcasted_on = EXCLUDED.broadcasted_on,
			doc = EXCLUDED.doc
	`, txp.WalletID, txp.ID, txp.CreatorID, txid, string(txp.Status), txp.IsPending(), txp.CreatedOn, broadcastedOn, doc)
	if err != nil {
		return fmt.Errorf("failed to store tx proposal: %w", err)
	}
	return nil
}

func (p *PostgresBackend) RemoveTx(ctx context.Context, walletID, id string) error {
	if p.pool == nil {
		return errNilPool
	}
	if _, err := p.pool.Exec(ctx, `DELETE FROM tx_proposals WHERE wallet_id = $1 AND id = $2`, walletID, id); err != nil {
		return fmt.Errorf("failed to remove tx proposal: %w", err)
	}
	return nil
}
