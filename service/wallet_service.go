package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vultisig/vultiwallet/internal/bus"
	"github.com/vultisig/vultiwallet/internal/sigutil"
	"github.com/vultisig/vultiwallet/internal/txproposal"
	"github.com/vultisig/vultiwallet/internal/types"
	"github.com/vultisig/vultiwallet/internal/walletcache"
	"github.com/vultisig/vultiwallet/internal/walletlock"
	"github.com/vultisig/vultiwallet/storage"
)

type Config struct {
	LockWait          time.Duration
	MaxMainAddressGap int
	ScanAddressGap    int
	SessionExpiration time.Duration
}

func DefaultConfig() Config {
	return Config{
		LockWait:          types.LockWaitTime,
		MaxMainAddressGap: types.MaxMainAddressGap,
		ScanAddressGap:    types.ScanAddressGap,
		SessionExpiration: types.SessionExpiration,
	}
}

// SessionStore keeps one login session per copayer.
type SessionStore interface {
	GetSession(ctx context.Context, copayerID string) (*types.Session, error)
	StoreSession(ctx context.Context, s *types.Session) error
	RemoveSession(ctx context.Context, copayerID string) error
}

// ScanScheduler runs a wallet scan outside the request.
type ScanScheduler interface {
	ScheduleScan(ctx context.Context, walletID, copayerID string, includeCopayerBranches bool) error
}

type Notifier interface {
	Notify(ctx context.Context, e bus.Event) *types.Notification
}

// Caller is the authenticated copayer a request acts for.
type Caller struct {
	CopayerID      string
	WalletID       string
	IsSupportStaff bool
}

type WalletService struct {
	cfg      Config
	storage  storage.WalletStorage
	sessions SessionStore
	locker   walletlock.Locker
	cache    *walletcache.Manager
	engine   *txproposal.Engine
	notifier Notifier
	auth     *AuthService
	scans    ScanScheduler
	logger   *logrus.Logger
	now      func() time.Time
}

func NewWalletService(
	cfg Config,
	store storage.WalletStorage,
	sessions SessionStore,
	locker walletlock.Locker,
	cache *walletcache.Manager,
	engine *txproposal.Engine,
	notifier Notifier,
	auth *AuthService,
	logger *logrus.Logger,
) *WalletService {
	return &WalletService{
		cfg:      cfg,
		storage:  store,
		sessions: sessions,
		locker:   locker,
		cache:    cache,
		engine:   engine,
		notifier: notifier,
		auth:     auth,
		logger:   logger,
		now:      time.Now,
	}
}

// SetScanScheduler moves StartScan onto the worker queue. Without one the
// scan runs in a goroutine of this process.
func (s *WalletService) SetScanScheduler(sch ScanScheduler) {
	s.scans = sch
}

func (s *WalletService) runLocked(ctx context.Context, walletID string, fn func(ctx context.Context) error) error {
	return walletlock.RunLocked(ctx, s.locker, walletID, s.cfg.LockWait, fn)
}

func (s *WalletService) log(c *Caller) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"wallet_id":  c.WalletID,
		"copayer_id": c.CopayerID,
	})
}

func (s *WalletService) fetchWallet(ctx context.Context, walletID string) (*types.Wallet, error) {
	w, err := s.storage.FetchWallet(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch wallet: %w", err)
	}
	if w == nil {
		return nil, types.ErrWalletNotFound
	}
	return w, nil
}

// AuthRequest identifies a copayer either by a login session or by a
// signature of Message with one of its request keys.
type AuthRequest struct {
	CopayerID string
	Session   string
	Message   string
	Signature string
	// WalletID lets support staff act on any wallet.
	WalletID string
}

func (s *WalletService) Authenticate(ctx context.Context, req AuthRequest) (*Caller, error) {
	if req.CopayerID == "" {
		return nil, types.NotAuthorized("Copayer not found")
	}
	if req.Session != "" {
		session, err := s.sessions.GetSession(ctx, req.CopayerID)
		if err != nil {
			return nil, fmt.Errorf("fail to get session: %w", err)
		}
		if session == nil || session.ID != req.Session || !session.IsValid(s.now(), s.cfg.SessionExpiration) {
			return nil, types.ErrSessionExpired
		}
	}
	lookup, err := s.storage.FetchCopayerLookup(ctx, req.CopayerID)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch copayer lookup: %w", err)
	}
	if lookup == nil {
		return nil, types.NotAuthorized("Copayer not found")
	}
	if req.Session == "" {
		if _, ok := sigutil.SigningKey(req.Message, req.Signature, lookup.RequestPubKeys); !ok {
			return nil, types.NotAuthorized("Invalid signature")
		}
	}
	caller := &Caller{
		CopayerID:      lookup.CopayerID,
		WalletID:       lookup.WalletID,
		IsSupportStaff: lookup.IsSupportStaff,
	}
	if lookup.IsSupportStaff && req.WalletID != "" {
		caller.WalletID = req.WalletID
	}
	return caller, nil
}

// Login returns a bearer token for the caller's session, creating the
// session or extending the current one.
func (s *WalletService) Login(ctx context.Context, c *Caller) (string, error) {
	session, err := s.sessions.GetSession(ctx, c.CopayerID)
	if err != nil {
		return "", fmt.Errorf("fail to get session: %w", err)
	}
	now := s.now()
	if session == nil || !session.IsValid(now, s.cfg.SessionExpiration) {
		session = &types.Session{
			ID:        uuid.New().String(),
			CopayerID: c.CopayerID,
			WalletID:  c.WalletID,
			CreatedOn: now.Unix(),
		}
	}
	session.Touch(now)
	if err := s.sessions.StoreSession(ctx, session); err != nil {
		return "", fmt.Errorf("fail to store session: %w", err)
	}
	token, err := s.auth.GenerateToken(session.CopayerID, session.ID, s.cfg.SessionExpiration)
	if err != nil {
		return "", fmt.Errorf("fail to sign session token: %w", err)
	}
	return token, nil
}

func (s *WalletService) Logout(ctx context.Context, c *Caller) error {
	if err := s.sessions.RemoveSession(ctx, c.CopayerID); err != nil {
		return fmt.Errorf("fail to remove session: %w", err)
	}
	return nil
}

// AuthenticateToken resolves a bearer token issued by Login.
func (s *WalletService) AuthenticateToken(ctx context.Context, token, walletID string) (*Caller, error) {
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		return nil, types.ErrSessionExpired
	}
	return s.Authenticate(ctx, AuthRequest{
		CopayerID: claims.CopayerID,
		Session:   claims.SessionID,
		WalletID:  walletID,
	})
}

func parsePubKey(pubKey string) error {
	raw, err := hex.DecodeString(pubKey)
	if err != nil {
		return err
	}
	_, err = btcec.ParsePubKey(raw)
	return err
}

func parseXPubKey(xPubKey string) error {
	k, err := hdkeychain.NewKeyFromString(xPubKey)
	if err != nil {
		return err
	}
	if k.IsPrivate() {
		return errors.New("private extended key")
	}
	return nil
}

func (s *WalletService) CreateWallet(ctx context.Context, req CreateWalletRequest) (string, error) {
	if err := req.IsValid(); err != nil {
		return "", err
	}
	if err := parsePubKey(req.PubKey); err != nil {
		return "", types.NewClientError("Invalid public key")
	}
	network := req.Network
	if network == "" {
		network = types.NetworkLivenet
	}
	supportBIP44 := true
	if req.SupportBIP44AndP2PKH != nil {
		supportBIP44 = *req.SupportBIP44AndP2PKH
	}
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	existing, err := s.storage.FetchWallet(ctx, id)
	if err != nil {
		return "", fmt.Errorf("fail to fetch wallet: %w", err)
	}
	if existing != nil {
		return "", types.ErrWalletAlreadyExists
	}
	w := types.NewWallet(id, req.Name, req.M, req.N, req.PubKey, network, req.SingleAddress, supportBIP44)
	w.CreatedOn = s.now().Unix()
	if err := s.storage.StoreWallet(ctx, w); err != nil {
		return "", fmt.Errorf("fail to store wallet: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"wallet_id": id,
		"m":         req.M,
		"n":         req.N,
		"network":   network,
	}).Info("wallet created")
	return id, nil
}

type JoinResult struct {
	CopayerID string        `json:"copayerId"`
	Wallet    *types.Wallet `json:"wallet"`
}

// JoinWallet adds a copayer to an incomplete wallet. The join signature must
// be made with the wallet secret over name, xpub and request key.
func (s *WalletService) JoinWallet(ctx context.Context, req JoinWalletRequest) (*JoinResult, error) {
	if err := req.IsValid(); err != nil {
		return nil, err
	}
	if err := parseXPubKey(req.XPubKey); err != nil {
		return nil, types.NewClientError("Invalid extended public key")
	}
	supportBIP44 := true
	if req.SupportBIP44AndP2PKH != nil {
		supportBIP44 = *req.SupportBIP44AndP2PKH
	}

	var result *JoinResult
	err := s.runLocked(ctx, req.WalletID, func(ctx context.Context) error {
		w, err := s.fetchWallet(ctx, req.WalletID)
		if err != nil {
			return err
		}
		if supportBIP44 && w.DerivationStrategy == types.DerivationBIP45 {
			return types.NewClientError("The wallet you are trying to join was created with an older version of the client app.")
		}
		if !supportBIP44 && w.DerivationStrategy == types.DerivationBIP44 {
			return types.ErrUpgradeNeeded
		}
		hash := types.CopayerHash(req.Name, req.XPubKey, req.RequestPubKey)
		if !sigutil.VerifyMessage(hash, req.CopayerSignature, w.PubKey) {
			return types.NewClientError("Bad request")
		}
		if w.HasXPubKey(req.XPubKey) {
			return types.ErrCopayerInWallet
		}
		copayer := types.NewCopayer(req.Name, req.XPubKey, req.RequestPubKey, req.CopayerSignature,
			req.CustomData, len(w.Copayers), w.DerivationStrategy)
		copayer.CreatedOn = s.now().Unix()
		if err := w.AddCopayer(copayer); err != nil {
			return err
		}
		lookup, err := s.storage.FetchCopayerLookup(ctx, copayer.ID)
		if err != nil {
			return fmt.Errorf("fail to fetch copayer lookup: %w", err)
		}
		if lookup != nil {
			return types.ErrCopayerRegistered
		}
		if req.DryRun {
			result = &JoinResult{Wallet: w.ForCopayer(copayer.ID, true)}
			return nil
		}
		if err := s.storage.StoreWalletAndUpdateCopayersLookup(ctx, w); err != nil {
			return fmt.Errorf("fail to store wallet: %w", err)
		}

		s.notifier.Notify(ctx, bus.Event{
			Type:      types.NotifyNewCopayer,
			WalletID:  w.ID,
			Network:   w.Network,
			CreatorID: copayer.ID,
			Data: map[string]any{
				"walletId":    w.ID,
				"copayerId":   copayer.ID,
				"copayerName": copayer.Name,
			},
		})
		if w.IsComplete() && w.IsShared() {
			s.notifier.Notify(ctx, bus.Event{
				Type:     types.NotifyWalletComplete,
				WalletID: w.ID,
				Network:  w.Network,
				Global:   true,
				Data:     map[string]any{"walletId": w.ID},
			})
		}
		s.logger.WithFields(logrus.Fields{
			"wallet_id":  w.ID,
			"copayer_id": copayer.ID,
			"complete":   w.IsComplete(),
		}).Info("copayer joined")
		result = &JoinResult{CopayerID: copayer.ID, Wallet: w.ForCopayer(copayer.ID, true)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddAccess registers another request key for a copayer. The key must be
// signed by the copayer's xpub at the request-key path.
func (s *WalletService) AddAccess(ctx context.Context, req AddAccessRequest) (*JoinResult, error) {
	if err := req.IsValid(); err != nil {
		return nil, err
	}
	lookup, err := s.storage.FetchCopayerLookup(ctx, req.CopayerID)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch copayer lookup: %w", err)
	}
	if lookup == nil {
		return nil, types.NotAuthorized("Copayer not found")
	}

	var result *JoinResult
	err = s.runLocked(ctx, lookup.WalletID, func(ctx context.Context) error {
		w, err := s.storage.FetchWallet(ctx, lookup.WalletID)
		if err != nil {
			return fmt.Errorf("fail to fetch wallet: %w", err)
		}
		if w == nil {
			return types.NotAuthorized("Wallet not found")
		}
		copayer := w.GetCopayer(req.CopayerID)
		if copayer == nil {
			return types.NotAuthorized("Copayer not found")
		}
		ok, err := sigutil.VerifyRequestPubKey(req.RequestPubKey, req.Signature, copayer.XPubKey)
		if err != nil || !ok {
			return types.NotAuthorized("Bad request")
		}
		if err := w.AddCopayerRequestKey(req.CopayerID, types.RequestPubKey{
			Key:       req.RequestPubKey,
			Signature: req.Signature,
			Name:      req.Name,
		}); err != nil {
			return err
		}
		if err := s.storage.StoreWalletAndUpdateCopayersLookup(ctx, w); err != nil {
			return fmt.Errorf("fail to store wallet: %w", err)
		}
		result = &JoinResult{CopayerID: req.CopayerID, Wallet: w.ForCopayer(req.CopayerID, true)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *WalletService) GetWallet(ctx context.Context, c *Caller) (*types.Wallet, error) {
	return s.fetchWallet(ctx, c.WalletID)
}

type StatusOptions struct {
	TwoStep             bool
	IncludeExtendedInfo bool
}

type Status struct {
	Wallet      *types.Wallet       `json:"wallet"`
	Balance     *types.Balance      `json:"balance"`
	PendingTxps []*types.TxProposal `json:"pendingTxps"`
	Preferences *types.Preferences  `json:"preferences"`
}

// GetStatus gathers the wallet, its balance, pending proposals and the
// caller's preferences.
func (s *WalletService) GetStatus(ctx context.Context, c *Caller, opts StatusOptions) (*Status, error) {
	w, err := s.fetchWallet(ctx, c.WalletID)
	if err != nil {
		return nil, err
	}
	status := &Status{Wallet: w.ForCopayer(c.CopayerID, opts.IncludeExtendedInfo)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := s.cache.GetBalance(gctx, w, opts.TwoStep)
		status.Balance = b
		return err
	})
	g.Go(func() error {
		txps, err := s.pendingTxs(gctx, c, w)
		status.PendingTxps = txps
		return err
	})
	g.Go(func() error {
		p, err := s.GetPreferences(gctx, c)
		status.Preferences = p
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return status, nil
}

func (s *WalletService) SavePreferences(ctx context.Context, c *Caller, prefs types.Preferences) error {
	if err := (&PreferencesRequest{Preferences: prefs}).IsValid(); err != nil {
		return err
	}
	return s.runLocked(ctx, c.WalletID, func(ctx context.Context) error {
		current, err := s.storage.FetchPreferences(ctx, c.WalletID, c.CopayerID)
		if err != nil {
			return fmt.Errorf("fail to fetch preferences: %w", err)
		}
		if current == nil {
			current = &types.Preferences{WalletID: c.WalletID, CopayerID: c.CopayerID}
		}
		current.Merge(prefs)
		if err := s.storage.StorePreferences(ctx, current); err != nil {
			return fmt.Errorf("fail to store preferences: %w", err)
		}
		return nil
	})
}

func (s *WalletService) GetPreferences(ctx context.Context, c *Caller) (*types.Preferences, error) {
	p, err := s.storage.FetchPreferences(ctx, c.WalletID, c.CopayerID)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch preferences: %w", err)
	}
	if p == nil {
		return &types.Preferences{WalletID: c.WalletID, CopayerID: c.CopayerID}, nil
	}
	return p, nil
}

func (s *WalletService) RemoveWallet(ctx context.Context, c *Caller) error {
	return s.runLocked(ctx, c.WalletID, func(ctx context.Context) error {
		if err := s.storage.RemoveWallet(ctx, c.WalletID); err != nil {
			return fmt.Errorf("fail to remove wallet: %w", err)
		}
		s.log(c).Info("wallet removed")
		return nil
	})
}
