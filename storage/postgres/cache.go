package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vultisig/vultiwallet/internal/types"
	"github.com/vultisig/vultiwallet/storage"
)

// activeMarker is stored alone after a clean so an emptied set stays
// distinguishable from a set never computed.
const activeMarker = ""

func (p *PostgresBackend) FetchActiveAddresses(ctx context.Context, walletID string) ([]string, error) {
	if p.pool == nil {
		return nil, errNilPool
	}
	rows, err := p.pool.Query(ctx, `SELECT address FROM active_addresses WHERE wallet_id = $1 ORDER BY address`, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active addresses: %w", err)
	}
	all, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active addresses: %w", err)
	}
	if len(all) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(all))
	for _, a := range all {
		if a != activeMarker {
			out = append(out, a)
		}
	}
	return out, nil
}

func (p *PostgresBackend) CleanActiveAddresses(ctx context.Context, walletID string) error {
	if p.pool == nil {
		return errNilPool
	}
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM active_addresses WHERE wallet_id = $1`, walletID); err != nil {
			return fmt.Errorf("failed to clean active addresses: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO active_addresses (wallet_id, address) VALUES ($1, $2)`, walletID, activeMarker); err != nil {
			return fmt.Errorf("failed to insert active addresses marker: %w", err)
		}
		return nil
	})
}

func (p *PostgresBackend) StoreActiveAddresses(ctx context.Context, walletID string, addresses []string) error {
	if p.pool == nil {
		return errNilPool
	}
	if len(addresses) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range addresses {
		batch.Queue(`INSERT INTO active_addresses (wallet_id, address) VALUES ($1, $2) ON CONFLICT DO NOTHING`, walletID, a)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to store active addresses: %w", err)
	}
	return nil
}

func (p *PostgresBackend) FetchTxHistoryCacheStatus(ctx context.Context, walletID string) (*types.HistoryCacheStatus, error) {
	if p.pool == nil {
		return nil, errNilPool
	}
	var st types.HistoryCacheStatus
	err := p.pool.QueryRow(ctx, `
		SELECT total_items, updated_on, is_complete, is_updated
		FROM history_cache_status WHERE wallet_id = $1
	`, walletID).Scan(&st.TotalItems, &st.UpdatedOn, &st.IsComplete, &st.IsUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history cache status: %w", err)
	}
	return &st, nil
}

func (p *PostgresBackend) GetTxHistoryCache(ctx context.Context, walletID string, from, to int) ([]types.ChainTx, bool, error) {
	if p.pool == nil {
		return nil, false, errNilPool
	}
	if from < 0 || from > to {
		return nil, false, types.NewClientError("invalid history range")
	}
	st, err := p.FetchTxHistoryCacheStatus(ctx, walletID)
	if err != nil {
		return nil, false, err
	}
	if st == nil || !st.IsUpdated {
		return nil, false, nil
	}
	fwd, end := storage.HistoryWindow(st.TotalItems, from, to)
	if end <= 0 {
		return []types.ChainTx{}, true, nil
	}
	docs, err := fetchDocs[types.ChainTx](ctx, p.pool, `
		SELECT doc FROM history_cache
		WHERE wallet_id = $1 AND position >= $2 AND position < $3
		ORDER BY position DESC
	`, walletID, fwd, end)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch history cache: %w", err)
	}
	if int64(len(docs)) < end-fwd {
		return nil, false, nil
	}
	out := make([]types.ChainTx, 0, len(docs))
	for _, d := range docs {
		out = append(out, *d)
	}
	return out, true, nil
}

func (p *PostgresBackend) StoreTxHistoryCache(ctx context.Context, walletID string, totalItems int64, firstPosition int, items []types.ChainTx) error {
	if p.pool == nil {
		return errNilPool
	}
	if firstPosition < 0 || totalItems < 0 {
		return types.NewClientError("invalid history cache position")
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin db transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, item := range items {
		doc, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal history item: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO history_cache (wallet_id, position, doc) VALUES ($1, $2, $3)
			ON CONFLICT (wallet_id, position) DO UPDATE SET doc = EXCLUDED.doc
		`, walletID, firstPosition+i, doc)
		if err != nil {
			return fmt.Errorf("failed to store history item: %w", err)
		}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO history_cache_status (wallet_id, total_items, updated_on, is_complete, is_updated)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (wallet_id) DO UPDATE SET
			total_items = EXCLUDED.total_items,
			updated_on = EXCLUDED.updated_on,
			is_complete = EXCLUDED.is_complete,
			is_updated = TRUE
	`, walletID, totalItems, time.Now().UnixMilli(), firstPosition == 0)
	if err != nil {
		return fmt.Errorf("failed to store history cache status: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit db transaction: %w", err)
	}
	return nil
}

func (p *PostgresBackend) SoftResetTxHistoryCache(ctx context.Context, walletID string) error {
	if p.pool == nil {
		return errNilPool
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO history_cache_status (wallet_id, is_updated) VALUES ($1, FALSE)
		ON CONFLICT (wallet_id) DO UPDATE SET is_updated = FALSE
	`, walletID)
	if err != nil {
		return fmt.Errorf("failed to soft reset history cache: %w", err)
	}
	return nil
}

func (p *PostgresBackend) SoftResetAllTxHistoryCache(ctx context.Context) error {
	if p.pool == nil {
		return errNilPool
	}
	if _, err := p.pool.Exec(ctx, `UPDATE history_cache_status SET is_updated = FALSE`); err != nil {
		return fmt.Errorf("failed to soft reset history caches: %w", err)
	}
	return nil
}

func (p *PostgresBackend) ClearTxHistoryCache(ctx context.Context, walletID string) error {
	if p.pool == nil {
		return errNilPool
	}
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM history_cache WHERE wallet_id = $1`, walletID); err != nil {
			return fmt.Errorf("failed to clear history cache: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM history_cache_status WHERE wallet_id = $1`, walletID); err != nil {
			return fmt.Errorf("failed to clear history cache status: %w", err)
		}
		return nil
	})
}
