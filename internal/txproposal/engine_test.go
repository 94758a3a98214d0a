package txproposal

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/vultiwallet/chainhelper"
	"github.com/vultisig/vultiwallet/internal/bus"
	"github.com/vultisig/vultiwallet/internal/explorer"
	"github.com/vultisig/vultiwallet/internal/explorer/explorertest"
	"github.com/vultisig/vultiwallet/internal/sigutil"
	"github.com/vultisig/vultiwallet/internal/types"
	"github.com/vultisig/vultiwallet/internal/walletcache"
	"github.com/vultisig/vultiwallet/storage/memory"
)

const (
	destAddress    = "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"
	testnetAddress = "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn"
	fundingTxID    = "631fad872ac6bea810cf6073f02e6cbd121cac83193b79f381f711ce93b531f0"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []bus.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e bus.Event) *types.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return &types.Notification{Type: e.Type}
}

func (r *recordingNotifier) last() bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recordingNotifier) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type testCopayer struct {
	id         string
	master     *hdkeychain.ExtendedKey
	requestKey *btcec.PrivateKey
}

func (c testCopayer) signInputs(t *testing.T, txp *types.TxProposal) []string {
	t.Helper()
	h, err := chainhelper.NewUTXOChainHelper(txp.Network)
	require.NoError(t, err)
	hashes, err := h.GetPreSignedImageHash(txp)
	require.NoError(t, err)
	sigs := make([]string, 0, len(hashes))
	for i, hashHex := range hashes {
		steps, err := chainhelper.ParsePath(txp.Inputs[i].Path)
		require.NoError(t, err)
		key := c.master
		for _, s := range steps {
			key, err = key.Derive(s)
			require.NoError(t, err)
		}
		priv, err := key.ECPrivKey()
		require.NoError(t, err)
		hash, err := hex.DecodeString(hashHex)
		require.NoError(t, err)
		sigs = append(sigs, hex.EncodeToString(ecdsa.Sign(priv, hash).Serialize()))
	}
	return sigs
}

func (c testCopayer) signProposal(t *testing.T, txp *types.TxProposal) string {
	t.Helper()
	h, err := chainhelper.NewUTXOChainHelper(txp.Network)
	require.NoError(t, err)
	raw, err := h.GetRawTx(txp)
	require.NoError(t, err)
	return sigutil.SignMessage(raw, c.requestKey)
}

type fixture struct {
	engine   *Engine
	store    *memory.Storage
	chain    *explorertest.Fake
	notifier *recordingNotifier
	wallet   *types.Wallet
	copayers []testCopayer
	now      time.Time
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func newFixture(t *testing.T, m, n int, cfg Config) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := logrus.New()
	store := memory.New(logger)
	chain := explorertest.New()
	chain.Fees = map[int]int64{2: 40000, 4: 20000, 12: 10000, 24: 5000}
	notifier := &recordingNotifier{}
	cache := walletcache.NewManager(walletcache.DefaultConfig(), store, explorer.Registry{types.NetworkLivenet: chain}, notifier, logger)

	w := types.NewWallet("w1", "test", m, n, "", types.NetworkLivenet, false, true)
	copayers := make([]testCopayer, 0, n)
	for i := 0; i < n; i++ {
		master, err := hdkeychain.NewMaster(bytes.Repeat([]byte{byte(i + 1)}, 32), &chaincfg.MainNetParams)
		require.NoError(t, err)
		pub, err := master.Neuter()
		require.NoError(t, err)
		requestKey, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		c := types.NewCopayer("copayer", pub.String(), hex.EncodeToString(requestKey.PubKey().SerializeCompressed()), "", "", i, w.DerivationStrategy)
		require.NoError(t, w.AddCopayer(c))
		copayers = append(copayers, testCopayer{id: c.ID, master: master, requestKey: requestKey})
	}
	require.NoError(t, store.StoreWalletAndUpdateCopayersLookup(ctx, w))

	funding, err := chainhelper.DeriveAddress(w, w.AddressManager.NewAddressPath(false), false)
	require.NoError(t, err)
	require.NoError(t, store.StoreAddressAndWallet(ctx, w, []*types.Address{funding}))
	chain.SetUtxos([]types.Utxo{{TxID: fundingTxID, Vout: 0, Address: funding.Address, Satoshis: 1000000, Confirmations: 6}})

	f := &fixture{
		store:    store,
		chain:    chain,
		notifier: notifier,
		wallet:   w,
		copayers: copayers,
		now:      time.Unix(1700000000, 0),
	}
	f.engine = NewEngine(cfg, store, cache, notifier, logger)
	f.engine.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) create(t *testing.T, creator int, amount int64) *types.TxProposal {
	t.Helper()
	txp, err := f.engine.Create(context.Background(), f.wallet, f.copayers[creator].id, CreateOptions{
		Outputs: []types.Output{{ToAddress: destAddress, Amount: amount}},
		Message: "rent",
	})
	require.NoError(t, err)
	return txp
}

func (f *fixture) publish(t *testing.T, creator int, amount int64) *types.TxProposal {
	t.Helper()
	txp := f.create(t, creator, amount)
	published, err := f.engine.Publish(context.Background(), f.wallet, f.copayers[creator].id, txp.ID, f.copayers[creator].signProposal(t, txp))
	require.NoError(t, err)
	return published
}

func (f *fixture) sign(t *testing.T, signer int, txp *types.TxProposal) *types.TxProposal {
	t.Helper()
	signed, err := f.engine.Sign(context.Background(), f.wallet, f.copayers[signer].id, txp.ID, f.copayers[signer].signInputs(t, txp))
	require.NoError(t, err)
	return signed
}

func TestCreate(t *testing.T) {
	f := newFixture(t, 2, 3, DefaultConfig())
	ctx := context.Background()

	txp := f.create(t, 0, 100000)
	assert.Equal(t, types.TxStatusTemporary, txp.Status)
	assert.NotEmpty(t, txp.ID)
	assert.Equal(t, int64(20000), txp.FeePerKb)
	assert.Equal(t, "normal", txp.FeeLevel)
	require.Len(t, txp.Inputs, 1)
	assert.Equal(t, fundingTxID, txp.Inputs[0].TxID)
	assert.Positive(t, txp.Fee)
	require.NotNil(t, txp.ChangeAddress)
	assert.True(t, txp.ChangeAddress.IsChange)
	assert.Equal(t, "m/1/0", txp.ChangeAddress.Path)

	stored, err := f.store.FetchTx(ctx, "w1", txp.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	change, err := f.store.FetchAddress(ctx, txp.ChangeAddress.Address)
	require.NoError(t, err)
	require.NotNil(t, change)

	again, err := f.engine.Create(ctx, f.wallet, f.copayers[0].id, CreateOptions{
		TxProposalID: txp.ID,
		Outputs:      []types.Output{{ToAddress: destAddress, Amount: 999}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100000), again.TotalAmount())
}

func TestCreate_DryRun(t *testing.T) {
	f := newFixture(t, 2, 3, DefaultConfig())
	ctx := context.Background()
	txp, err := f.engine.Create(ctx, f.wallet, f.copayers[0].id, CreateOptions{
		Outputs: []types.Output{{ToAddress: destAddress, Amount: 100000}},
		DryRun:  true,
	})
	require.NoError(t, err)
	stored, err := f.store.FetchTx(ctx, "w1", txp.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
	count, err := f.store.CountAddresses(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreate_SendMax(t *testing.T) {
	f := newFixture(t, 2, 3, DefaultConfig())
	feePerKb := int64(10000)
	txp, err := f.engine.Create(context.Background(), f.wallet, f.copayers[0].id, CreateOptions{
		Outputs: []types.Output{{ToAddress: destAddress}},
		SendMax: true,
		Fee:     FeeOptions{FeePerKb: &feePerKb},
	})
	require.NoError(t, err)
	assert.Nil(t, txp.ChangeAddress)
	assert.Equal(t, int64(1000000), txp.TotalAmount()+txp.Fee)
	assert.Equal(t, EstimatedFee(txp), txp.Fee)

	info, err := f.engine.SendMaxInfo(context.Background(), f.wallet, SendMaxOptions{Fee: FeeOptions{FeePerKb: &feePerKb}})
	require.NoError(t, err)
	assert.Equal(t, txp.TotalAmount(), info.Amount)
	assert.Empty(t, info.Inputs)
}

func TestCreate_Validation(t *testing.T) {
	perKb := func(v int64) *int64 { return &v }
	testCases := []struct {
		name    string
		opts    CreateOptions
		wantErr error
	}{
		{name: "no outputs", opts: CreateOptions{}, wantErr: types.ErrInvalidArgument},
		{name: "missing address", opts: CreateOptions{Outputs: []types.Output{{Amount: 100000}}}, wantErr: types.ErrInvalidArgument},
		{name: "invalid address", opts: CreateOptions{Outputs: []types.Output{{ToAddress: "nope", Amount: 100000}}}, wantErr: types.ErrInvalidAddress},
		{name: "wrong network", opts: CreateOptions{Outputs: []types.Output{{ToAddress: testnetAddress, Amount: 100000}}}, wantErr: types.ErrIncorrectAddressNetwork},
		{name: "zero amount", opts: CreateOptions{Outputs: []types.Output{{ToAddress: destAddress}}}, wantErr: types.ErrInvalidArgument},
		{name: "dust", opts: CreateOptions{Outputs: []types.Output{{ToAddress: destAddress, Amount: 1000}}}, wantErr: types.ErrDustAmount},
		{name: "insufficient funds", opts: CreateOptions{Outputs: []types.Output{{ToAddress: destAddress, Amount: 2000000}}}, wantErr: types.ErrInsufficientFunds},
		{
			name:    "two fee options",
			opts:    CreateOptions{Outputs: []types.Output{{ToAddress: destAddress, Amount: 100000}}, Fee: FeeOptions{FeeLevel: "normal", FeePerKb: perKb(1000)}},
			wantErr: types.ErrInvalidArgument,
		},
		{
			name:    "unknown fee level",
			opts:    CreateOptions{Outputs: []types.Output{{ToAddress: destAddress, Amount: 100000}}, Fee: FeeOptions{FeeLevel: "turbo"}},
			wantErr: types.ErrInvalidArgument,
		},
		{
			name:    "fee per kb above max",
			opts:    CreateOptions{Outputs: []types.Output{{ToAddress: destAddress, Amount: 100000}}, Fee: FeeOptions{FeePerKb: perKb(types.MaxFeePerKb + 1)}},
			wantErr: types.ErrInvalidArgument,
		},
		{
			name:    "fee without inputs",
			opts:    CreateOptions{Outputs: []types.Output{{ToAddress: destAddress, Amount: 100000}}, Fee: FeeOptions{Fee: perKb(1000)}},
			wantErr: types.ErrInvalidArgument,
		},
		{
			name:    "send max with amount",
			opts:    CreateOptions{Outputs: []types.Output{{ToAddress: destAddress, Amount: 100000}}, SendMax: true},
			wantErr: types.ErrInvalidArgument,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 2, 3, DefaultConfig())
			_, err := f.engine.Create(context.Background(), f.wallet, f.copayers[0].id, tc.opts)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCreate_WalletNotComplete(t *testing.T) {
	f := newFixture(t, 2, 3, DefaultConfig())
	f.wallet.Copayers = f.wallet.Copayers[:2]
	_, err := f.engine.Create(context.Background(), f.wallet, f.copayers[0].id, CreateOptions{
		Outputs: []types.Output{{ToAddress: destAddress, Amount: 100000}},
	})
	assert.ErrorIs(t, err, types.ErrWalletNotComplete)
}

func TestCreate_ForeignChangeAddress(t *testing.T) {
	f := newFixture(t, 2, 3, DefaultConfig())
	_, err := f.engine.Create(context.Background(), f.wallet, f.copayers[0].id, CreateOptions{
		Outputs:       []types.Output{{ToAddress: destAddress, Amount: 100000}},
		ChangeAddress: destAddress,
	})
	assert.ErrorIs(t, err, types.ErrInvalidChangeAddress)
}

func TestCreate_ExplicitInputs(t *testing.T) {
	testCases := []struct {
		name    string
		input   types.Utxo
		publish bool
		wantErr error
	}{
		{
			name:  "wallet utxo",
			input: types.Utxo{TxID: fundingTxID, Vout: 0, Satoshis: 5000000000},
		},
		{
			name:    "unknown outpoint",
			input:   types.Utxo{TxID: fundingTxID, Vout: 7, Satoshis: 1000000},
			wantErr: types.ErrUnavailableUtxos,
		},
		{
			name:    "locked by a pending proposal",
			input:   types.Utxo{TxID: fundingTxID, Vout: 0, Satoshis: 1000000},
			publish: true,
			wantErr: types.ErrUnavailableUtxos,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 2, 3, DefaultConfig())
			if tc.publish {
				f.publish(t, 1, 100000)
			}
			txp, err := f.engine.Create(context.Background(), f.wallet, f.copayers[0].id, CreateOptions{
				Outputs: []types.Output{{ToAddress: destAddress, Amount: 100000}},
				Inputs:  []types.Utxo{tc.input},
			})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, txp.Inputs, 1)
			// amounts and paths come from the wallet's view, not the request
			assert.Equal(t, int64(1000000), txp.Inputs[0].Satoshis)
			assert.Equal(t, "m/0/0", txp.Inputs[0].Path)
		})
	}
}

func TestCanCreate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackoffOffset = 1
	now := time.Unix(1700000000, 0)
	rejected := func(id string, createdOn, rejectedOn int64) *types.TxProposal {
		return &types.TxProposal{
			ID: id, WalletID: "w1", Status: types.TxStatusRejected, CreatedOn: createdOn,
			Actions: []types.Action{{CopayerID: "other", Type: types.ActionReject, CreatedOn: rejectedOn}},
		}
	}
	testCases := []struct {
		name string
		txs  []*types.TxProposal
		want bool
	}{
		{name: "no history", want: true},
		{
			name: "rejections within the offset",
			txs:  []*types.TxProposal{rejected("a", now.Unix()-10, now.Unix()-5)},
			want: true,
		},
		{
			name: "rejections past the offset during backoff",
			txs: []*types.TxProposal{
				rejected("a", now.Unix()-20, now.Unix()-15),
				rejected("b", now.Unix()-10, now.Unix()-5),
			},
			want: false,
		},
		{
			name: "rejections past the offset after backoff",
			txs: []*types.TxProposal{
				rejected("a", now.Unix()-2000, now.Unix()-1900),
				rejected("b", now.Unix()-1000, now.Unix()-900),
			},
			want: true,
		},
		{
			name: "an accepted proposal breaks the run",
			txs: []*types.TxProposal{
				rejected("a", now.Unix()-30, now.Unix()-25),
				rejected("b", now.Unix()-20, now.Unix()-15),
				{ID: "c", WalletID: "w1", Status: types.TxStatusBroadcasted, CreatedOn: now.Unix() - 10},
			},
			want: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 2, 3, cfg)
			creator := f.copayers[0].id
			for _, txp := range tc.txs {
				txp.CreatorID = creator
				require.NoError(t, f.store.StoreTx(context.Background(), txp))
			}
			ok, err := f.engine.CanCreate(context.Background(), "w1", creator)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestPublish(t *testing.T) {
	f := newFixture(t, 2, 3, DefaultConfig())
	ctx := context.Background()
	txp := f.create(t, 0, 100000)

	_, err := f.engine.Publish(ctx, f.wallet, f.copayers[0].id, txp.ID, f.copayers[1].signProposal(t, txp))
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = f.engine.Publish(ctx, f.wallet, f.copayers[0].id, "missing", "")
	assert.ErrorIs(t, err, types.ErrTxNotFound)

	published, err := f.engine.Publish(ctx, f.wallet, f.copayers[0].id, txp.ID, f.copayers[0].signProposal(t, txp))
	require.NoError(t, err)
	assert.Equal(t, types.TxStatusPending, published.Status)
	e := f.notifier.last()
	assert.Equal(t, types.NotifyNewTxProposal, e.Type)
	assert.Equal(t, txp.ID, e.Data["txProposalId"])
	assert.Equal(t, int64(100000), e.Data["amount"])
	assert.Equal(t, f.copayers[0].id, e.CreatorID)

	again, err := f.engine.Publish(ctx, f.wallet, f.copayers[0].id, txp.ID, "")
	require.NoError(t, err)
	assert.Equal(t, types.TxStatusPending, again.Status)
}

func TestPublish_UnavailableUtxos(t *testing.T) {
	f := newFixture(t, 2, 3, DefaultConfig())
	ctx := context.Background()
	first := f.create(t, 0, 100000)
	f.advance(time.Second)
	second := f.create(t, 1, 200000)

	_, err := f.engine.Publish(ctx, f.wallet, f.copayers[0].id, first.ID, f.copayers[0].signProposal(t, first))
	require.NoError(t, err)
	_, err = f.engine.Publish(ctx, f.wallet, f.copayers[1].id, second.ID, f.copayers[1].signProposal(t, second))
	assert.ErrorIs(t, err, types.ErrUnavailableUtxos)
}

func TestSignAndBroadcast(t *testing.T) {
	f := newFixture(t, 2, 3, DefaultConfig())
	ctx := context.Background()
	txp := f.publish(t, 0, 100000)
	f.notifier.reset()

	_, err := f.engine.Sign(ctx, f.wallet, f.copayers[1].id, txp.ID, f.copayers[0].signInputs(t, txp))
	assert.ErrorIs(t, err, types.ErrBadSignatures)

	txp = f.sign(t, 0, txp)
	assert.Equal(t, types.TxStatusPending, txp.Status)
	assert.Empty(t, txp.TxID)

	_, err = f.engine.Sign(ctx, f.wallet, f.copayers[0].id, txp.ID, f.copayers[0].signInputs(t, txp))
	assert.ErrorIs(t, err, types.ErrCopayerVoted)

	_, err = f.engine.Broadcast(ctx, f.wallet, f.copayers[0].id, txp.ID)
	assert.ErrorIs(t, err, types.ErrTxNotAccepted)

	txp = f.sign(t, 2, txp)
	assert.Equal(t, types.TxStatusAccepted, txp.Status)
	assert.NotEmpty(t, txp.TxID)

	_, err = f.engine.Sign(ctx, f.wallet, f.copayers[1].id, txp.ID, f.copayers[1].signInputs(t, txp))
	assert.ErrorIs(t, err, types.ErrTxNotPending)

	broadcasted, err := f.engine.Broadcast(ctx, f.wallet, f.copayers[1].id, txp.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TxStatusBroadcasted, broadcasted.Status)
	assert.Equal(t, txp.TxID, broadcasted.TxID)
	assert.Equal(t, f.now.Unix(), broadcasted.BroadcastedOn)
	assert.Len(t, f.chain.Broadcasted, 1)

	assert.Equal(t, []string{
		types.NotifyTxProposalAcceptedBy,
		types.NotifyTxProposalAcceptedBy,
		types.NotifyTxProposalFinallyAccepted,
		types.NotifyNewOutgoingTx,
	}, f.notifier.kinds())

	_, err = f.engine.Broadcast(ctx, f.wallet, f.copayers[1].id, txp.ID)
	assert.ErrorIs(t, err, types.ErrTxAlreadyBroadcasted)
}

func TestBroadcast_Failure(t *testing.T) {
	f := newFixture(t, 1, 2, DefaultConfig())
	ctx := context.Background()
	txp := f.sign(t, 0, f.publish(t, 0, 100000))
	require.True(t, txp.IsAccepted())

	f.chain.BroadcastErr = errors.New("connection refused")
	_, err := f.engine.Broadcast(ctx, f.wallet, f.copayers[0].id, txp.ID)
	assert.EqualError(t, err, "connection refused")

	f.chain.AddTransaction(types.ChainTx{TxID: txp.TxID})
	f.notifier.reset()
	broadcasted, err := f.engine.Broadcast(ctx, f.wallet, f.copayers[0].id, txp.ID)
	require.NoError(t, err)
	assert.True(t, broadcasted.IsBroadcasted())
	assert.Equal(t, []string{types.NotifyNewOutgoingTxByThirdParty}, f.notifier.kinds())
}

func TestReject(t *testing.T) {
	f := newFixture(t, 2, 3, DefaultConfig())
	ctx := context.Background()
	txp := f.publish(t, 0, 100000)
	f.notifier.reset()

	txp, err := f.engine.Reject(ctx, f.wallet, f.copayers[1].id, txp.ID, "too much")
	require.NoError(t, err)
	assert.Equal(t, types.TxStatusPending, txp.Status)
	assert.Equal(t, "too much", txp.GetAction(f.copayers[1].id).Comment)

	_, err = f.engine.Reject(ctx, f.wallet, f.copayers[1].id, txp.ID, "")
	assert.ErrorIs(t, err, types.ErrCopayerVoted)

	txp, err = f.engine.Reject(ctx, f.wallet, f.copayers[2].id, txp.ID, "")
	require.NoError(t, err)
	assert.Equal(t, types.TxStatusRejected, txp.Status)
	assert.Equal(t, []string{
		types.NotifyTxProposalRejectedBy,
		types.NotifyTxProposalRejectedBy,
		types.NotifyTxProposalFinallyRejected,
	}, f.notifier.kinds())
	assert.Equal(t, []string{f.copayers[1].id, f.copayers[2].id}, f.notifier.last().Data["rejectedBy"])

	_, err = f.engine.Reject(ctx, f.wallet, f.copayers[0].id, txp.ID, "")
	assert.ErrorIs(t, err, types.ErrTxNotPending)
}

func TestRemove(t *testing.T) {
	f := newFixture(t, 2, 3, DefaultConfig())
	ctx := context.Background()

	temp := f.create(t, 0, 100000)
	assert.ErrorIs(t, f.engine.Remove(ctx, f.wallet, f.copayers[0].id, temp.ID), types.ErrTxNotPending)

	txp := f.publish(t, 0, 100000)
	assert.ErrorIs(t, f.engine.Remove(ctx, f.wallet, f.copayers[1].id, txp.ID), types.ErrTxCannotRemove)
	require.NoError(t, f.engine.Remove(ctx, f.wallet, f.copayers[0].id, txp.ID))
	assert.Equal(t, types.NotifyTxProposalRemoved, f.notifier.last().Type)

	f.advance(time.Second)
	voted := f.sign(t, 1, f.publish(t, 0, 100000))
	assert.Equal(t, int64(types.DeleteLockTime/time.Second), f.engine.RemainingDeleteLockTime(voted, f.copayers[0].id))
	assert.ErrorIs(t, f.engine.Remove(ctx, f.wallet, f.copayers[0].id, voted.ID), types.ErrTxCannotRemove)

	f.advance(types.DeleteLockTime)
	require.NoError(t, f.engine.Remove(ctx, f.wallet, f.copayers[1].id, voted.ID))
	_, err := f.engine.Get(ctx, "w1", voted.ID)
	assert.ErrorIs(t, err, types.ErrTxNotFound)
}

func TestPendingTxs(t *testing.T) {
	f := newFixture(t, 1, 2, DefaultConfig())
	ctx := context.Background()

	accepted := f.sign(t, 0, f.publish(t, 0, 100000))
	require.True(t, accepted.IsAccepted())

	pending, err := f.engine.PendingTxs(ctx, f.wallet, f.copayers[1].id)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(types.DeleteLockTime/time.Second), pending[0].DeleteLockTime)

	onChain, err := f.engine.SeenOnChain(ctx, f.wallet, pending)
	require.NoError(t, err)
	assert.Empty(t, onChain)

	f.chain.AddTransaction(types.ChainTx{TxID: accepted.TxID})
	onChain, err = f.engine.SeenOnChain(ctx, f.wallet, pending)
	require.NoError(t, err)
	assert.Equal(t, []string{accepted.ID}, onChain)

	// listing alone never changes the stored proposal
	pending, err = f.engine.PendingTxs(ctx, f.wallet, f.copayers[1].id)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	stored, err := f.engine.Get(ctx, "w1", accepted.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsAccepted())
}

func TestConfirmThirdPartyBroadcast(t *testing.T) {
	f := newFixture(t, 1, 2, DefaultConfig())
	ctx := context.Background()

	accepted := f.sign(t, 0, f.publish(t, 0, 100000))
	changed, err := f.engine.ConfirmThirdPartyBroadcast(ctx, f.wallet, accepted.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	stored, err := f.engine.Get(ctx, "w1", accepted.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsBroadcasted())
	assert.Equal(t, types.NotifyNewOutgoingTxByThirdParty, f.notifier.last().Type)

	f.notifier.reset()
	changed, err = f.engine.ConfirmThirdPartyBroadcast(ctx, f.wallet, accepted.ID)
	require.NoError(t, err)
	assert.False(t, changed, "already broadcast")
	changed, err = f.engine.ConfirmThirdPartyBroadcast(ctx, f.wallet, "missing")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, f.notifier.kinds())
}

func TestGet_AttachesNote(t *testing.T) {
	f := newFixture(t, 1, 2, DefaultConfig())
	ctx := context.Background()
	accepted := f.sign(t, 0, f.publish(t, 0, 100000))
	require.NoError(t, f.store.StoreTxNote(ctx, types.NewTxNote("w1", accepted.TxID, f.copayers[0].id, "rent", f.now)))

	got, err := f.engine.Get(ctx, "w1", accepted.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Note)
	assert.Equal(t, "rent", got.Note.Body)
}
