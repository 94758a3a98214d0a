package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/vultiwallet/internal/types"
)

func (p *PostgresBackend) FetchAddresses(ctx context.Context, walletID string) ([]*types.Address, error) {
	if p.pool == nil {
		return nil, errNilPool
	}
	out, err := fetchDocs[types.Address](ctx, p.pool, `
		SELECT doc FROM addresses WHERE wallet_id = $1 ORDER BY created_on, seq
	`, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch addresses: %w", err)
	}
	return out, nil
}

func (p *PostgresBackend) FetchNewAddresses(ctx context.Context, walletID string, fromTs int64) ([]*types.Address, error) {
	if p.pool == nil {
		return nil, errNilPool
	}
	out, err := fetchDocs[types.Address](ctx, p.pool, `
		SELECT doc FROM addresses WHERE wallet_id = $1 AND created_on >= $2 ORDER BY created_on, seq
	`, walletID, fromTs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch new addresses: %w", err)
	}
	return out, nil
}

func (p *PostgresBackend) CountAddresses(ctx context.Context, walletID string) (int, error) {
	if p.pool == nil {
		return 0, errNilPool
	}
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM addresses WHERE wallet_id = $1`, walletID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count addresses: %w", err)
	}
	return n, nil
}

func (p *PostgresBackend) FetchAddress(ctx context.Context, address string) (*types.Address, error) {
	if p.pool == nil {
		return nil, errNilPool
	}
	a, err := fetchDoc[types.Address](ctx, p.pool, `
		SELECT doc FROM addresses WHERE address = $1 ORDER BY seq LIMIT 1
	`, address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch address: %w", err)
	}
	return a, nil
}

func (p *PostgresBackend) StoreAddressAndWallet(ctx context.Context, w *types.Wallet, addresses []*types.Address) error {
	if p.pool == nil {
		return errNilPool
	}
	if len(addresses) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin db transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, a := range addresses {
		var owner string
		err := tx.QueryRow(ctx, `SELECT wallet_id FROM addresses WHERE address = $1 ORDER BY seq LIMIT 1`, a.Address).Scan(&owner)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to look up address: %w", err)
		case owner == w.ID:
			p.logger.WithFields(logrus.Fields{
				"wallet_id": w.ID,
				"address":   a.Address,
			}).Warn("address already stored in wallet")
			continue
		default:
			p.logger.WithFields(logrus.Fields{
				"wallet_id":       w.ID,
				"other_wallet_id": owner,
				"address":         a.Address,
			}).Warn("address exists in more than one wallet")
		}

		doc, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal address: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO addresses (address, wallet_id, created_on, doc) VALUES ($1, $2, $3, $4)
		`, a.Address, a.WalletID, a.CreatedOn, doc)
		if err != nil {
			return fmt.Errorf("failed to insert address: %w", err)
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

func (p *PostgresBackend) StoreAddress(ctx context.Context, a *types.Address) error {
	if p.pool == nil {
		return errNilPool
	}
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal address: %w", err)
	}
	_, err = p.pool.Exec(ctx, `UPDATE addresses SET doc = $3 WHERE address = $1 AND wallet_id = $2`, a.Address, a.WalletID, doc)
	if err != nil {
		return fmt.Errorf("failed to update address: %w", err)
	}
	return nil
}
