package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/vultiwallet/chainhelper"
	"github.com/vultisig/vultiwallet/contexthelper"
	"github.com/vultisig/vultiwallet/internal/bus"
	"github.com/vultisig/vultiwallet/internal/sigutil"
	"github.com/vultisig/vultiwallet/internal/types"
)

func mainAddresses(addresses []*types.Address) []*types.Address {
	return slices.DeleteFunc(addresses, func(a *types.Address) bool {
		return a.IsChange
	})
}

// canCreateAddress enforces the gap of receive addresses without activity.
// The stored activity flags are trusted first; the explorer is asked only
// when the whole window looks unused.
func (s *WalletService) canCreateAddress(ctx context.Context, w *types.Wallet) (bool, error) {
	addresses, err := s.storage.FetchAddresses(ctx, w.ID)
	if err != nil {
		return false, fmt.Errorf("fail to fetch addresses: %w", err)
	}
	latest := mainAddresses(addresses)
	if len(latest) > s.cfg.MaxMainAddressGap {
		latest = latest[len(latest)-s.cfg.MaxMainAddressGap:]
	}
	if len(latest) < s.cfg.MaxMainAddressGap {
		return true, nil
	}
	for _, a := range latest {
		if a.HasActivity {
			return true, nil
		}
	}

	ex, err := s.cache.Explorer(w.Network)
	if err != nil {
		return false, err
	}
	for i := len(latest) - 1; i >= 0; i-- {
		active, err := ex.GetAddressActivity(ctx, latest[i].Address)
		if err != nil {
			return false, fmt.Errorf("fail to check address activity: %w", err)
		}
		if !active {
			continue
		}
		latest[i].HasActivity = true
		if err := s.storage.StoreAddress(ctx, latest[i]); err != nil {
			return false, fmt.Errorf("fail to store address: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// CreateAddress derives the next receive address. Single-address wallets
// always answer with their first address.
func (s *WalletService) CreateAddress(ctx context.Context, c *Caller, ignoreMaxGap bool) (*types.Address, error) {
	w, err := s.fetchWallet(ctx, c.WalletID)
	if err != nil {
		return nil, err
	}
	if !ignoreMaxGap {
		ok, err := s.canCreateAddress(ctx, w)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, types.ErrMainAddressGapReached
		}
	}

	var address *types.Address
	err = s.runLocked(ctx, c.WalletID, func(ctx context.Context) error {
		w, err := s.fetchWallet(ctx, c.WalletID)
		if err != nil {
			return err
		}
		if !w.IsComplete() {
			return types.ErrWalletNotComplete
		}
		if w.SingleAddress {
			addresses, err := s.storage.FetchAddresses(ctx, w.ID)
			if err != nil {
				return fmt.Errorf("fail to fetch addresses: %w", err)
			}
			if len(addresses) > 0 {
				address = addresses[0]
				return nil
			}
		}
		address, err = s.deriveAndStore(ctx, w, false)
		if err != nil {
			return err
		}
		s.notifier.Notify(ctx, bus.Event{
			Type:      types.NotifyNewAddress,
			WalletID:  w.ID,
			Network:   w.Network,
			CreatorID: c.CopayerID,
			Data:      map[string]any{"address": address.Address},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return address, nil
}

func (s *WalletService) deriveAndStore(ctx context.Context, w *types.Wallet, isChange bool) (*types.Address, error) {
	path := w.AddressManager.NewAddressPath(isChange)
	address, err := chainhelper.DeriveAddress(w, path, isChange)
	if err != nil {
		return nil, fmt.Errorf("fail to derive address: %w", err)
	}
	address.CreatedOn = s.now().Unix()
	if err := s.storage.StoreAddressAndWallet(ctx, w, []*types.Address{address}); err != nil {
		return nil, fmt.Errorf("fail to store address: %w", err)
	}
	return address, nil
}

type MainAddressesOptions struct {
	Limit   int
	Reverse bool
}

func (s *WalletService) GetMainAddresses(ctx context.Context, c *Caller, opts MainAddressesOptions) ([]*types.Address, error) {
	addresses, err := s.storage.FetchAddresses(ctx, c.WalletID)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch addresses: %w", err)
	}
	main := mainAddresses(addresses)
	if opts.Reverse {
		slices.Reverse(main)
	}
	if opts.Limit > 0 && len(main) > opts.Limit {
		main = main[:opts.Limit]
	}
	return main, nil
}

// VerifyMessageSignature tells whether message was signed with one of the
// caller's request keys.
func (s *WalletService) VerifyMessageSignature(ctx context.Context, c *Caller, message, signature string) (bool, error) {
	if message == "" || signature == "" {
		return false, types.NewClientError("Required argument message and signature missing.")
	}
	w, err := s.fetchWallet(ctx, c.WalletID)
	if err != nil {
		return false, err
	}
	copayer := w.GetCopayer(c.CopayerID)
	if copayer == nil {
		return false, types.ErrNotAuthorized
	}
	_, ok := sigutil.SigningKey(message, signature, copayer.RequestPubKeys)
	return ok, nil
}

// derivator walks one address branch of the wallet.
type derivator struct {
	manager  *types.AddressManager
	isChange bool
}

func (d derivator) derive(w *types.Wallet) (*types.Address, error) {
	path := d.manager.NewAddressPath(d.isChange)
	return chainhelper.DeriveAddress(w, path, d.isChange)
}

func (s *WalletService) scanBranch(ctx context.Context, w *types.Wallet, d derivator) ([]*types.Address, error) {
	ex, err := s.cache.Explorer(w.Network)
	if err != nil {
		return nil, err
	}
	gap := s.cfg.ScanAddressGap
	var all []*types.Address
	inactive := 0
	var scanErr error
	for inactive < gap {
		if scanErr = contexthelper.CheckCancellation(ctx); scanErr != nil {
			break
		}
		a, err := d.derive(w)
		if err != nil {
			scanErr = fmt.Errorf("fail to derive address: %w", err)
			break
		}
		active, err := ex.GetAddressActivity(ctx, a.Address)
		if err != nil {
			scanErr = fmt.Errorf("fail to check address activity: %w", err)
			break
		}
		a.CreatedOn = s.now().Unix()
		a.HasActivity = active
		all = append(all, a)
		if active {
			inactive = 0
		} else {
			inactive++
		}
	}
	d.manager.RewindIndex(d.isChange, gap)
	if scanErr != nil {
		return nil, scanErr
	}
	return all[:max(0, len(all)-gap)], nil
}

// Scan rediscovers the wallet's used addresses by deriving each branch
// until ScanAddressGap consecutive addresses show no activity.
func (s *WalletService) Scan(ctx context.Context, walletID string, includeCopayerBranches bool) error {
	return s.runLocked(ctx, walletID, func(ctx context.Context) error {
		w, err := s.fetchWallet(ctx, walletID)
		if err != nil {
			return err
		}
		if !w.IsComplete() {
			return types.ErrWalletNotComplete
		}
		w.ScanStatus = types.ScanStatusRunning
		if err := s.storage.ClearTxHistoryCache(ctx, walletID); err != nil {
			s.logger.WithField("wallet_id", walletID).WithError(err).Warn("fail to clear history cache")
		}
		if err := s.storage.StoreWallet(ctx, w); err != nil {
			return fmt.Errorf("fail to store wallet: %w", err)
		}

		var derivators []derivator
		for _, isChange := range []bool{false, true} {
			derivators = append(derivators, derivator{manager: w.AddressManager, isChange: isChange})
			if !includeCopayerBranches {
				continue
			}
			for _, c := range w.Copayers {
				if c.AddressManager != nil {
					derivators = append(derivators, derivator{manager: c.AddressManager, isChange: isChange})
				}
			}
		}

		var scanErr error
		for _, d := range derivators {
			addresses, err := s.scanBranch(ctx, w, d)
			if err != nil {
				scanErr = err
				break
			}
			if err := s.storage.StoreAddressAndWallet(ctx, w, addresses); err != nil {
				scanErr = fmt.Errorf("fail to store addresses: %w", err)
				break
			}
		}

		stored, err := s.fetchWallet(ctx, walletID)
		if err != nil {
			return err
		}
		stored.ScanStatus = types.ScanStatusSuccess
		if scanErr != nil {
			stored.ScanStatus = types.ScanStatusError
		}
		if err := s.storage.StoreWallet(ctx, stored); err != nil {
			s.logger.WithField("wallet_id", walletID).WithError(err).Error("fail to store scan status")
		}
		s.logger.WithFields(logrus.Fields{
			"wallet_id": walletID,
			"status":    stored.ScanStatus,
		}).Info("wallet scan finished")
		return scanErr
	})
}

// RunScan scans the wallet and announces the outcome with a global
// ScanFinished notification.
func (s *WalletService) RunScan(ctx context.Context, walletID string, includeCopayerBranches bool) error {
	err := s.Scan(ctx, walletID, includeCopayerBranches)
	data := map[string]any{"result": string(types.ScanStatusSuccess)}
	if err != nil {
		data["result"] = string(types.ScanStatusError)
		data["error"] = err.Error()
	}
	network := ""
	if w, ferr := s.storage.FetchWallet(ctx, walletID); ferr == nil && w != nil {
		network = w.Network
	}
	s.notifier.Notify(ctx, bus.Event{
		Type:     types.NotifyScanFinished,
		WalletID: walletID,
		Network:  network,
		Global:   true,
		Data:     data,
	})
	return err
}

type ScanStarted struct {
	Started bool `json:"started"`
}

// StartScan checks the wallet can be scanned and runs the scan in the
// background.
func (s *WalletService) StartScan(ctx context.Context, c *Caller, includeCopayerBranches bool) (*ScanStarted, error) {
	w, err := s.fetchWallet(ctx, c.WalletID)
	if err != nil {
		return nil, err
	}
	if !w.IsComplete() {
		return nil, types.ErrWalletNotComplete
	}
	if s.scans != nil {
		if err := s.scans.ScheduleScan(ctx, w.ID, c.CopayerID, includeCopayerBranches); err != nil {
			return nil, err
		}
		return &ScanStarted{Started: true}, nil
	}
	go func() {
		if err := s.RunScan(context.WithoutCancel(ctx), w.ID, includeCopayerBranches); err != nil {
			s.log(c).WithError(err).Warn("wallet scan failed")
		}
	}()
	return &ScanStarted{Started: true}, nil
}
