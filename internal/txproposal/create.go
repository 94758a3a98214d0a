package txproposal

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vultisig/vultiwallet/chainhelper"
	"github.com/vultisig/vultiwallet/internal/coinselect"
	"github.com/vultisig/vultiwallet/internal/types"
)

const defaultFeeLevel = "normal"

// FeeOptions picks the fee of a transaction. At most one field may be set;
// none means the normal level. Fee is only valid with explicit inputs.
type FeeOptions struct {
	FeeLevel string
	FeePerKb *int64
	Fee      *int64
}

type CreateOptions struct {
	// TxProposalID makes creation idempotent when set.
	TxProposalID            string
	Outputs                 []types.Output
	Message                 string
	Fee                     FeeOptions
	ChangeAddress           string
	SendMax                 bool
	ExcludeUnconfirmedUtxos bool
	// Inputs skips coin selection.
	Inputs         []types.Utxo
	UtxosToExclude []string
	DryRun         bool
	CustomData     string
}

type SendMaxOptions struct {
	Fee                     FeeOptions
	ExcludeUnconfirmedUtxos bool
	ReturnInputs            bool
}

func (e *Engine) levelNames() string {
	names := make([]string, 0, len(e.cfg.FeeLevels))
	for _, l := range e.cfg.FeeLevels {
		names = append(names, l.Name)
	}
	return strings.Join(names, ", ")
}

// sanitizeFee checks the fee options and fills in the default level.
func (e *Engine) sanitizeFee(opts *FeeOptions, hasInputs bool) error {
	set := 0
	if opts.FeeLevel != "" {
		set++
	}
	if opts.FeePerKb != nil {
		set++
	}
	if opts.Fee != nil {
		set++
	}
	if set > 1 {
		return types.NewClientError("Only one of feeLevel/feePerKb/fee can be specified")
	}
	if set == 0 {
		opts.FeeLevel = defaultFeeLevel
	}
	if opts.FeeLevel != "" {
		if _, ok := types.FeeLevelByName(e.cfg.FeeLevels, opts.FeeLevel); !ok {
			return types.NewClientError("Invalid fee level. Valid values are %s", e.levelNames())
		}
	}
	if opts.FeePerKb != nil && (*opts.FeePerKb < e.cfg.MinFeePerKb || *opts.FeePerKb > e.cfg.MaxFeePerKb) {
		return types.NewClientError("Invalid fee per KB")
	}
	if opts.Fee != nil && !hasInputs {
		return types.NewClientError("fee can only be set when inputs are specified")
	}
	return nil
}

func (e *Engine) feePerKb(ctx context.Context, w *types.Wallet, opts FeeOptions) (int64, error) {
	if opts.FeePerKb != nil {
		return *opts.FeePerKb, nil
	}
	rate, err := e.chain.FeePerKbForLevel(ctx, w.Network, opts.FeeLevel)
	if err != nil {
		return 0, fmt.Errorf("could not compute fee for %q level: %w", opts.FeeLevel, err)
	}
	return rate, nil
}

func (e *Engine) validateOutputs(w *types.Wallet, outputs []types.Output) error {
	if len(outputs) == 0 {
		return types.NewClientError("No outputs were specified")
	}
	dust := e.Policy(w).DustThreshold()
	for i, o := range outputs {
		if o.ToAddress == "" {
			return types.NewClientError("Argument missing in output #%d.", i+1)
		}
		if err := chainhelper.ValidateAddress(o.ToAddress, w.Network); err != nil {
			return err
		}
		if o.Amount <= 0 {
			return types.NewClientError("Invalid amount")
		}
		if o.Amount < dust {
			return types.ErrDustAmount
		}
	}
	return nil
}

// SendMaxInfo reports the largest amount the wallet can send in one output.
func (e *Engine) SendMaxInfo(ctx context.Context, w *types.Wallet, opts SendMaxOptions) (*types.SendMaxInfo, error) {
	if opts.Fee.Fee != nil {
		return nil, types.NewClientError("Only one of feeLevel/feePerKb can be specified")
	}
	if err := e.sanitizeFee(&opts.Fee, false); err != nil {
		return nil, err
	}
	utxos, err := e.chain.GetUtxos(ctx, w, nil)
	if err != nil {
		return nil, err
	}
	rate, err := e.feePerKb(ctx, w, opts.Fee)
	if err != nil {
		return nil, err
	}
	policy := e.Policy(w)
	policy.ExcludeUnconfirmed = opts.ExcludeUnconfirmedUtxos
	info := coinselect.SendMax(utxos, rate, policy)
	if !opts.ReturnInputs {
		info.Inputs = []types.Utxo{}
	}
	return info, nil
}

func (e *Engine) changeAddress(ctx context.Context, w *types.Wallet, requested string) (*types.Address, error) {
	if w.SingleAddress {
		addresses, err := e.storage.FetchAddresses(ctx, w.ID)
		if err != nil {
			return nil, fmt.Errorf("fail to fetch addresses: %w", err)
		}
		if len(addresses) == 0 {
			return nil, types.NewClientError("The wallet has no addresses")
		}
		return addresses[0], nil
	}
	if requested != "" {
		a, err := e.storage.FetchAddress(ctx, requested)
		if err != nil || a == nil || a.WalletID != w.ID {
			return nil, types.ErrInvalidChangeAddress
		}
		return a, nil
	}
	path := w.AddressManager.NewAddressPath(true)
	a, err := chainhelper.DeriveAddress(w, path, true)
	if err != nil {
		return nil, fmt.Errorf("fail to derive change address: %w", err)
	}
	a.CreatedOn = e.now().Unix()
	return a, nil
}

// Create builds a temporary proposal. It is stored unless DryRun is set, and
// a proposal already stored under TxProposalID is returned unchanged.
func (e *Engine) Create(ctx context.Context, w *types.Wallet, copayerID string, opts CreateOptions) (*types.TxProposal, error) {
	if !w.IsComplete() {
		return nil, types.ErrWalletNotComplete
	}
	if opts.TxProposalID != "" {
		existing, err := e.storage.FetchTx(ctx, w.ID, opts.TxProposalID)
		if err != nil {
			return nil, fmt.Errorf("fail to fetch tx proposal: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	outputs := append([]types.Output(nil), opts.Outputs...)
	inputs := opts.Inputs
	if err := e.sanitizeFee(&opts.Fee, len(inputs) > 0); err != nil {
		return nil, err
	}
	if w.SingleAddress && opts.ChangeAddress != "" {
		return nil, types.NewClientError("Cannot specify change address on single-address wallet")
	}

	var rate int64
	if opts.Fee.Fee == nil {
		r, err := e.feePerKb(ctx, w, opts.Fee)
		if err != nil {
			return nil, err
		}
		rate = r
	}

	policy := e.Policy(w)
	policy.ExcludeUnconfirmed = opts.ExcludeUnconfirmedUtxos
	policy.Exclude = opts.UtxosToExclude
	policy.NumOutputs = max(1, len(outputs))

	var fixedFee int64
	if opts.Fee.Fee != nil {
		fixedFee = *opts.Fee.Fee
	}
	if opts.SendMax {
		if len(outputs) != 1 {
			return nil, types.NewClientError("Only one output allowed when sendMax is specified")
		}
		if outputs[0].Amount != 0 {
			return nil, types.NewClientError("Amount is not allowed when sendMax is specified")
		}
		if opts.Fee.Fee != nil {
			return nil, types.NewClientError("Fee is not allowed when sendMax is specified (use feeLevel/feePerKb instead)")
		}
		utxos, err := e.chain.GetUtxos(ctx, w, nil)
		if err != nil {
			return nil, err
		}
		info := coinselect.SendMax(utxos, rate, policy)
		if info.Amount == 0 {
			return nil, types.ErrInsufficientFunds
		}
		outputs[0].Amount = info.Amount
		inputs = info.Inputs
		fixedFee = info.Fee
	}

	if err := e.validateOutputs(w, outputs); err != nil {
		return nil, err
	}

	ok, err := e.CanCreate(ctx, w.ID, copayerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, types.ErrTxCannotCreate
	}

	var change *types.Address
	if !opts.SendMax {
		change, err = e.changeAddress(ctx, w, opts.ChangeAddress)
		if err != nil {
			return nil, err
		}
	}

	txp := &types.TxProposal{
		ID:                      opts.TxProposalID,
		WalletID:                w.ID,
		CreatorID:               copayerID,
		Network:                 w.Network,
		Outputs:                 outputs,
		ChangeAddress:           change,
		FeePerKb:                rate,
		FeeLevel:                opts.Fee.FeeLevel,
		Message:                 opts.Message,
		RequiredSignatures:      w.M,
		WalletN:                 w.N,
		AddressType:             w.AddressType,
		ExcludeUnconfirmedUtxos: opts.ExcludeUnconfirmedUtxos,
		Actions:                 []types.Action{},
		Status:                  types.TxStatusTemporary,
		CustomData:              opts.CustomData,
		CreatedOn:               e.now().Unix(),
	}
	if txp.ID == "" {
		txp.ID = uuid.New().String()
	}

	var selection *coinselect.Selection
	if len(inputs) > 0 {
		if !opts.SendMax {
			if inputs, err = e.ownInputs(ctx, w, inputs); err != nil {
				return nil, err
			}
		}
		selection, err = coinselect.CheckInputs(inputs, txp.TotalAmount(), fixedFee, rate, policy)
	} else {
		utxos, uerr := e.chain.GetUtxos(ctx, w, nil)
		if uerr != nil {
			return nil, uerr
		}
		selection, err = coinselect.Select(utxos, txp.TotalAmount(), rate, policy)
	}
	if err != nil {
		e.log(txp).WithError(err).Debug("fail to select inputs")
		return nil, err
	}
	txp.Inputs = selection.Inputs
	txp.Fee = selection.Fee

	if change != nil && !w.SingleAddress && !opts.DryRun {
		if err := e.storage.StoreAddressAndWallet(ctx, w, []*types.Address{change}); err != nil {
			return nil, fmt.Errorf("fail to store change address: %w", err)
		}
	}
	if opts.DryRun {
		return txp, nil
	}
	if err := e.storage.StoreTx(ctx, txp); err != nil {
		return nil, fmt.Errorf("fail to store tx proposal: %w", err)
	}
	e.log(txp).WithField("fee", txp.Fee).Info("tx proposal created")
	return txp, nil
}

// ownInputs resolves caller supplied inputs against the wallet's unlocked
// utxos. Outpoints the wallet does not own, or that another pending proposal
// spends, make it fail.
func (e *Engine) ownInputs(ctx context.Context, w *types.Wallet, inputs []types.Utxo) ([]types.Utxo, error) {
	utxos, err := e.chain.GetUtxos(ctx, w, nil)
	if err != nil {
		return nil, err
	}
	available := make(map[string]types.Utxo, len(utxos))
	for _, u := range utxos {
		if !u.Locked {
			available[u.Key()] = u
		}
	}
	out := make([]types.Utxo, 0, len(inputs))
	for _, in := range inputs {
		u, ok := available[in.Key()]
		if !ok {
			return nil, types.ErrUnavailableUtxos
		}
		out = append(out, u)
	}
	return out, nil
}
