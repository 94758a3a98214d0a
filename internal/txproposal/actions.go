package txproposal

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/vultiwallet/internal/explorer"
	"github.com/vultisig/vultiwallet/internal/sigutil"
	"github.com/vultisig/vultiwallet/internal/types"
)

func (e *Engine) fetch(ctx context.Context, walletID, id string) (*types.TxProposal, error) {
	txp, err := e.storage.FetchTx(ctx, walletID, id)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch tx proposal: %w", err)
	}
	if txp == nil {
		return nil, types.ErrTxNotFound
	}
	return txp, nil
}

// Publish moves a temporary proposal to pending once the creator has signed
// its raw transaction with one of the request keys. Inputs taken by another
// pending proposal in the meantime make it fail.
func (e *Engine) Publish(ctx context.Context, w *types.Wallet, copayerID, id, proposalSignature string) (*types.TxProposal, error) {
	txp, err := e.fetch(ctx, w.ID, id)
	if err != nil {
		return nil, err
	}
	if !txp.IsTemporary() {
		return txp, nil
	}
	copayer := w.GetCopayer(copayerID)
	if copayer == nil {
		return nil, types.ErrNotAuthorized
	}

	helper, err := e.helper(w.Network)
	if err != nil {
		return nil, err
	}
	raw, err := helper.GetRawTx(txp)
	if err != nil {
		e.log(txp).WithError(err).Error("fail to build raw tx")
		return nil, types.NewClientError("Invalid proposal")
	}
	if _, ok := sigutil.SigningKey(raw, proposalSignature, copayer.RequestPubKeys); !ok {
		return nil, types.NewClientError("Invalid proposal signature")
	}

	seen := map[string]bool{}
	addresses := []*types.Address{}
	for _, in := range txp.Inputs {
		if seen[in.Address] {
			continue
		}
		seen[in.Address] = true
		addresses = append(addresses, &types.Address{Address: in.Address, Path: in.Path, PublicKeys: in.PublicKeys})
	}
	utxos, err := e.chain.GetUtxos(ctx, w, addresses)
	if err != nil {
		return nil, err
	}
	available := map[string]bool{}
	for _, u := range utxos {
		if !u.Locked {
			available[u.Key()] = true
		}
	}
	for _, in := range txp.Inputs {
		if !available[in.Key()] {
			return nil, types.ErrUnavailableUtxos
		}
	}

	txp.Status = types.TxStatusPending
	txp.ProposalSignature = proposalSignature
	if err := e.storage.StoreTx(ctx, txp); err != nil {
		return nil, fmt.Errorf("fail to store tx proposal: %w", err)
	}
	e.notifyAction(ctx, types.NotifyNewTxProposal, w, copayerID, txp, nil)
	e.log(txp).Info("tx proposal published")
	return txp, nil
}

// Sign records copayerID's accept vote with one signature per input. The
// proposal gets its txid once enough signatures are in.
func (e *Engine) Sign(ctx context.Context, w *types.Wallet, copayerID, id string, signatures []string) (*types.TxProposal, error) {
	txp, err := e.fetch(ctx, w.ID, id)
	if err != nil {
		return nil, err
	}
	copayer := w.GetCopayer(copayerID)
	if copayer == nil {
		return nil, types.ErrNotAuthorized
	}
	if txp.GetAction(copayerID) != nil {
		return nil, types.ErrCopayerVoted
	}
	if txp.Status != types.TxStatusPending {
		return nil, types.ErrTxNotPending
	}

	helper, err := e.helper(w.Network)
	if err != nil {
		return nil, err
	}
	if err := helper.VerifySignatures(txp, copayer.XPubKey, signatures); err != nil {
		e.log(txp).WithError(err).WithField("copayer_id", copayerID).Debug("signatures do not verify")
		return nil, types.ErrBadSignatures
	}
	if err := txp.AddAction(types.Action{
		CopayerID:  copayerID,
		Type:       types.ActionAccept,
		Signatures: signatures,
		XPub:       copayer.XPubKey,
		CreatedOn:  e.now().Unix(),
	}); err != nil {
		return nil, err
	}
	if txp.IsAccepted() {
		txid, _, err := helper.GetSignedRawTx(txp)
		if err != nil {
			return nil, fmt.Errorf("fail to assemble signed tx: %w", err)
		}
		txp.TxID = txid
	}
	if err := e.storage.StoreTx(ctx, txp); err != nil {
		return nil, fmt.Errorf("fail to store tx proposal: %w", err)
	}

	e.notifyAction(ctx, types.NotifyTxProposalAcceptedBy, w, copayerID, txp, map[string]any{"copayerId": copayerID})
	if txp.IsAccepted() {
		e.notifyAction(ctx, types.NotifyTxProposalFinallyAccepted, w, copayerID, txp, nil)
	}
	return txp, nil
}

// Reject records copayerID's reject vote with reason as its comment.
func (e *Engine) Reject(ctx context.Context, w *types.Wallet, copayerID, id, reason string) (*types.TxProposal, error) {
	txp, err := e.fetch(ctx, w.ID, id)
	if err != nil {
		return nil, err
	}
	if err := txp.AddAction(types.Action{
		CopayerID: copayerID,
		Type:      types.ActionReject,
		Comment:   reason,
		CreatedOn: e.now().Unix(),
	}); err != nil {
		return nil, err
	}
	if err := e.storage.StoreTx(ctx, txp); err != nil {
		return nil, fmt.Errorf("fail to store tx proposal: %w", err)
	}

	e.notifyAction(ctx, types.NotifyTxProposalRejectedBy, w, copayerID, txp, map[string]any{"copayerId": copayerID})
	if txp.IsRejected() {
		e.notifyAction(ctx, types.NotifyTxProposalFinallyRejected, w, copayerID, txp, map[string]any{"rejectedBy": txp.RejectedBy()})
	}
	return txp, nil
}

// Broadcast sends an accepted proposal to the network. A failed broadcast of
// a transaction that is already on chain counts as a broadcast by a third
// party.
func (e *Engine) Broadcast(ctx context.Context, w *types.Wallet, copayerID, id string) (*types.TxProposal, error) {
	txp, err := e.fetch(ctx, w.ID, id)
	if err != nil {
		return nil, err
	}
	if txp.IsBroadcasted() {
		return nil, types.ErrTxAlreadyBroadcasted
	}
	if !txp.IsAccepted() {
		return nil, types.ErrTxNotAccepted
	}

	helper, err := e.helper(w.Network)
	if err != nil {
		return nil, err
	}
	txid, raw, err := helper.GetSignedRawTx(txp)
	if err != nil {
		return nil, fmt.Errorf("fail to assemble signed tx: %w", err)
	}
	ex, err := e.chain.Explorer(w.Network)
	if err != nil {
		return nil, err
	}
	if _, bErr := ex.Broadcast(ctx, raw); bErr != nil {
		e.log(txp).WithError(bErr).Warn("fail to broadcast tx")
		tx, err := ex.GetTransaction(ctx, txid)
		if err != nil {
			return nil, fmt.Errorf("fail to look up tx %s: %w", txid, err)
		}
		if tx == nil {
			return nil, bErr
		}
		return txp, e.processBroadcast(ctx, w, txp, txid, copayerID, true)
	}
	return txp, e.processBroadcast(ctx, w, txp, txid, copayerID, false)
}

func (e *Engine) processBroadcast(ctx context.Context, w *types.Wallet, txp *types.TxProposal, txid, copayerID string, byThirdParty bool) error {
	txp.SetBroadcasted(txid, e.now())
	if err := e.storage.StoreTx(ctx, txp); err != nil {
		return fmt.Errorf("fail to store tx proposal: %w", err)
	}
	kind := types.NotifyNewOutgoingTx
	if byThirdParty {
		kind = types.NotifyNewOutgoingTxByThirdParty
	}
	e.notifyAction(ctx, kind, w, copayerID, txp, map[string]any{"txid": txp.TxID})
	if err := e.storage.SoftResetTxHistoryCache(ctx, w.ID); err != nil {
		e.log(txp).WithError(err).Warn("fail to reset tx history cache")
	}
	e.log(txp).WithFields(logrus.Fields{
		"txid":           txp.TxID,
		"by_third_party": byThirdParty,
	}).Info("tx proposal broadcasted")
	return nil
}

// Remove deletes a pending or accepted proposal once its delete lock has
// expired for copayerID. Temporary proposals were never published and are
// refused with ErrTxNotPending.
func (e *Engine) Remove(ctx context.Context, w *types.Wallet, copayerID, id string) error {
	txp, err := e.fetch(ctx, w.ID, id)
	if err != nil {
		return err
	}
	if !txp.IsPending() {
		return types.ErrTxNotPending
	}
	if e.RemainingDeleteLockTime(txp, copayerID) > 0 {
		return types.ErrTxCannotRemove
	}
	if err := e.storage.RemoveTx(ctx, w.ID, txp.ID); err != nil {
		return fmt.Errorf("fail to remove tx proposal: %w", err)
	}
	e.notifyAction(ctx, types.NotifyTxProposalRemoved, w, copayerID, txp, nil)
	return nil
}

// PendingTxs lists the pending proposals with the requester's delete lock.
// It only reads; see SeenOnChain and ConfirmThirdPartyBroadcast.
func (e *Engine) PendingTxs(ctx context.Context, w *types.Wallet, copayerID string) ([]*types.TxProposal, error) {
	txps, err := e.storage.FetchPendingTxs(ctx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch pending txs: %w", err)
	}
	for _, txp := range txps {
		txp.DeleteLockTime = e.RemainingDeleteLockTime(txp, copayerID)
	}
	return txps, nil
}

// SeenOnChain returns the ids of the accepted proposals whose txid the
// explorer already knows.
func (e *Engine) SeenOnChain(ctx context.Context, w *types.Wallet, txps []*types.TxProposal) ([]string, error) {
	var ex explorer.Explorer
	var ids []string
	for _, txp := range txps {
		if !txp.IsAccepted() || txp.TxID == "" {
			continue
		}
		if ex == nil {
			found, err := e.chain.Explorer(w.Network)
			if err != nil {
				return nil, err
			}
			ex = found
		}
		tx, err := ex.GetTransaction(ctx, txp.TxID)
		if err != nil {
			e.log(txp).WithError(err).Warn("fail to look up accepted tx")
			continue
		}
		if tx != nil {
			ids = append(ids, txp.ID)
		}
	}
	return ids, nil
}

// ConfirmThirdPartyBroadcast marks an accepted proposal found on chain as
// broadcast. The proposal is read again so a concurrent broadcast or removal
// wins; the result reports whether anything changed. Callers hold the wallet
// lock.
func (e *Engine) ConfirmThirdPartyBroadcast(ctx context.Context, w *types.Wallet, id string) (bool, error) {
	txp, err := e.storage.FetchTx(ctx, w.ID, id)
	if err != nil {
		return false, fmt.Errorf("fail to fetch tx proposal: %w", err)
	}
	if txp == nil || !txp.IsAccepted() || txp.TxID == "" {
		return false, nil
	}
	if err := e.processBroadcast(ctx, w, txp, txp.TxID, "", true); err != nil {
		return false, err
	}
	return true, nil
}
