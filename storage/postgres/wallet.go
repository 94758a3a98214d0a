package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vultisig/vultiwallet/contexthelper"
	"github.com/vultisig/vultiwallet/internal/types"
)

func (p *PostgresBackend) FetchWallet(ctx context.Context, id string) (*types.Wallet, error) {
	if p.pool == nil {
		return nil, errNilPool
	}
	w, err := fetchDoc[types.Wallet](ctx, p.pool, `SELECT doc FROM wallets WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch wallet: %w", err)
	}
	return w, nil
}

func storeWallet(ctx context.Context, tx pgx.Tx, w *types.Wallet) error {
	doc, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO wallets (id, doc) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()
	`, w.ID, doc)
	if err != nil {
		return fmt.Errorf("failed to store wallet: %w", err)
	}
	return nil
}

func (p *PostgresBackend) StoreWallet(ctx context.Context, w *types.Wallet) error {
	if p.pool == nil {
		return errNilPool
	}
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return storeWallet(ctx, tx, w)
	})
}

func (p *PostgresBackend) StoreWalletAndUpdateCopayersLookup(ctx context.Context, w *types.Wallet) error {
	if p.pool == nil {
		return errNilPool
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin db transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM copayers_lookup WHERE wallet_id = $1`, w.ID); err != nil {
		return fmt.Errorf("failed to delete copayers lookup: %w", err)
	}
	for _, c := range w.Copayers {
		doc, err := json.Marshal(types.CopayerLookup{
			CopayerID:      c.ID,
			WalletID:       w.ID,
			RequestPubKeys: c.RequestPubKeys,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal copayer lookup: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO copayers_lookup (copayer_id, wallet_id, doc) VALUES ($1, $2, $3)
		`, c.ID, w.ID, doc)
		if err != nil {
			return fmt.Errorf("failed to insert copayer lookup: %w", err)
		}
	}
	if err := storeWallet(ctx, tx, w); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit db transaction: %w", err)
	}
	return nil
}

func (p *PostgresBackend) FetchCopayerLookup(ctx context.Context, copayerID string) (*types.CopayerLookup, error) {
	if p.pool == nil {
		return nil, errNilPool
	}
	l, err := fetchDoc[types.CopayerLookup](ctx, p.pool, `SELECT doc FROM copayers_lookup WHERE copayer_id = $1`, copayerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch copayer lookup: %w", err)
	}
	return l, nil
}

var walletTables = []string{
	"copayers_lookup",
	"addresses",
	"tx_proposals",
	"notifications",
	"preferences",
	"tx_notes",
	"active_addresses",
	"history_cache",
	"history_cache_status",
}

func (p *PostgresBackend) RemoveWallet(ctx context.Context, walletID string) error {
	if p.pool == nil {
		return errNilPool
	}
	if err := contexthelper.CheckCancellation(ctx); err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin db transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range walletTables {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE wallet_id = $1`, table), walletID); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM wallets WHERE id = $1`, walletID); err != nil {
		return fmt.Errorf("failed to delete wallet: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit db transaction: %w", err)
	}
	return nil
}
