package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vultisig/vultiwallet/internal/types"
)

func (p *PostgresBackend) FetchNotifications(ctx context.Context, walletID, notificationID string, minTs int64) ([]*types.Notification, error) {
	if p.pool == nil {
		return nil, errNilPool
	}
	minID := types.MinNotificationID(minTs)
	if notificationID > minID {
		minID = notificationID
	}
	out, err := fetchDocs[types.Notification](ctx, p.pool, `
		SELECT doc FROM notifications WHERE wallet_id = $1 AND id > $2 ORDER BY id
	`, walletID, minID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	return out, nil
}

func (p *PostgresBackend) StoreNotification(ctx context.Context, n *types.Notification) error {
	if p.pool == nil {
		return errNilPool
	}
	doc, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO notifications (wallet_id, id, doc) VALUES ($1, $2, $3)
		ON CONFLICT (wallet_id, id) DO NOTHING
	`, n.WalletID, n.ID, doc)
	if err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

func (p *PostgresBackend) FetchPreferences(ctx context.Context, walletID, copayerID string) (*types.Preferences, error) {
	if p.pool == nil {
		return nil, errNilPool
	}
	prefs, err := fetchDoc[types.Preferences](ctx, p.pool, `
		SELECT doc FROM preferences WHERE wallet_id = $1 AND copayer_id = $2
	`, walletID, copayerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch preferences: %w", err)
	}
	return prefs, nil
}

func (p *PostgresBackend) StorePreferences(ctx context.Context, prefs *types.Preferences) error {
	if p.pool == nil {
		return errNilPool
	}
	doc, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO preferences (wallet_id, copayer_id, doc) VALUES ($1, $2, $3)
		ON CONFLICT (wallet_id, copayer_id) DO UPDATE SET doc = EXCLUDED.doc
	`, prefs.WalletID, prefs.CopayerID, doc)
	if err != nil {
		return fmt.Errorf("failed to store preferences: %w", err)
	}
	return nil
}

func (p *PostgresBackend) FetchTxNote(ctx context.Context, walletID, txid string) (*types.TxNote, error) {
	if p.pool == nil {
		return nil, errNilPool
	}
	note, err := fetchDoc[types.TxNote](ctx, p.pool, `
		SELECT doc FROM tx_notes WHERE wallet_id = $1 AND txid = $2
	`, walletID, txid)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tx note: %w", err)
	}
	return note, nil
}

func (p *PostgresBackend) FetchTxNotes(ctx context.Context, walletID string, minTs int64) ([]*types.TxNote, error) {
	if p.pool == nil {
		return nil, errNilPool
	}
	notes, err := fetchDocs[types.TxNote](ctx, p.pool, `
		SELECT doc FROM tx_notes WHERE wallet_id = $1 AND edited_on >= $2 ORDER BY txid
	`, walletID, minTs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tx notes: %w", err)
	}
	return notes, nil
}

func (p *PostgresBackend) StoreTxNote(ctx context.Context, n *types.TxNote) error {
	if p.pool == nil {
		return errNilPool
	}
	doc, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal tx note: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO tx_notes (wallet_id, txid, edited_on, doc) VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet_id, txid) DO UPDATE SET edited_on = EXCLUDED.edited_on, doc = EXCLUDED.doc
	`, n.WalletID, n.TxID, n.EditedOn, doc)
	if err != nil {
		return fmt.Errorf("failed to store tx note: %w", err)
	}
	return nil
}
