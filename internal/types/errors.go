package types

import (
	"errors"
	"fmt"
)

// WalletError is a named failure that callers can tell apart from collaborator errors.
type WalletError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *WalletError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on the code so a client error carrying a custom message still
// compares equal to its sentinel.
func (e *WalletError) Is(target error) bool {
	var t *WalletError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newWalletError(code, message string) *WalletError {
	return &WalletError{Code: code, Message: message}
}

var (
	ErrInvalidArgument         = newWalletError("INVALID_ARGUMENT", "")
	ErrNotAuthorized           = newWalletError("NOT_AUTHORIZED", "Not authorized")
	ErrBadSignatures           = newWalletError("BAD_SIGNATURES", "Bad signatures")
	ErrInsufficientFunds       = newWalletError("INSUFFICIENT_FUNDS", "Insufficient funds")
	ErrInsufficientFundsForFee = newWalletError("INSUFFICIENT_FUNDS_FOR_FEE", "Insufficient funds for fee")
	ErrLockedFunds             = newWalletError("LOCKED_FUNDS", "Funds are locked by pending transaction proposals")
	ErrTxMaxSizeExceeded       = newWalletError("TX_MAX_SIZE_EXCEEDED", "TX exceeds maximum allowed size")
	ErrDustAmount              = newWalletError("DUST_AMOUNT", "Amount below dust threshold")
	ErrInvalidAddress          = newWalletError("INVALID_ADDRESS", "Invalid address")
	ErrIncorrectAddressNetwork = newWalletError("INCORRECT_ADDRESS_NETWORK", "Incorrect address network")
	ErrInvalidChangeAddress    = newWalletError("INVALID_CHANGE_ADDRESS", "Invalid change address")
	ErrWalletNotFound          = newWalletError("WALLET_NOT_FOUND", "Wallet not found")
	ErrWalletAlreadyExists     = newWalletError("WALLET_ALREADY_EXISTS", "Wallet already exists")
	ErrWalletNotComplete       = newWalletError("WALLET_NOT_COMPLETE", "Wallet is not complete")
	ErrWalletFull              = newWalletError("WALLET_FULL", "Wallet full")
	ErrCopayerRegistered       = newWalletError("COPAYER_REGISTERED", "Copayer ID already registered on server")
	ErrCopayerInWallet         = newWalletError("COPAYER_IN_WALLET", "Copayer already in wallet")
	ErrCopayerVoted            = newWalletError("COPAYER_VOTED", "Copayer already voted on this transaction proposal")
	ErrTooManyKeys             = newWalletError("TOO_MANY_KEYS", "Too many keys registered")
	ErrUpgradeNeeded           = newWalletError("UPGRADE_NEEDED", "Client app needs to be upgraded")
	ErrTxNotFound              = newWalletError("TX_NOT_FOUND", "Transaction proposal not found")
	ErrTxNotPending            = newWalletError("TX_NOT_PENDING", "The transaction proposal is not pending")
	ErrTxNotAccepted           = newWalletError("TX_NOT_ACCEPTED", "The transaction proposal is not accepted")
	ErrTxAlreadyBroadcasted    = newWalletError("TX_ALREADY_BROADCASTED", "The transaction proposal is already broadcasted")
	ErrTxCannotCreate          = newWalletError("TX_CANNOT_CREATE", "Cannot create TX proposal during backoff time")
	ErrTxCannotRemove          = newWalletError("TX_CANNOT_REMOVE", "Cannot remove this tx proposal during locktime")
	ErrUnavailableUtxos        = newWalletError("UNAVAILABLE_UTXOS", "Unavailable unspent outputs")
	ErrMainAddressGapReached   = newWalletError("MAIN_ADDRESS_GAP_REACHED", "Maximum number of consecutive addresses without activity reached")
	ErrHistoryLimitExceeded    = newWalletError("HISTORY_LIMIT_EXCEEDED", "Requested page limit is above allowed maximum")
	ErrLockTimeout             = newWalletError("LOCK_TIMEOUT", "Wallet is busy, try again later")
	ErrSessionExpired          = newWalletError("NOT_AUTHORIZED", "Session expired")
)

// NewClientError reports a malformed request. It matches ErrInvalidArgument.
func NewClientError(format string, args ...any) error {
	return newWalletError(ErrInvalidArgument.Code, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether the caller may retry the operation as is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// AsWalletError extracts the wallet error carried by err, if any.
func AsWalletError(err error) (*WalletError, bool) {
	var we *WalletError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}

// NotAuthorized is an authentication failure with a specific message.
func NotAuthorized(message string) error {
	return newWalletError(ErrNotAuthorized.Code, message)
}
