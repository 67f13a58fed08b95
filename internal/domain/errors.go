package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrAlreadyExists         = errors.New("already exists")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrLockHeld              = errors.New("lock already held")
	ErrReentrantCall         = errors.New("reentrant call rejected")
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotConfigured         = errors.New("ledger not configured")
	ErrUnsupportedAssetKind  = errors.New("unsupported asset kind")
	ErrNotOwningItem         = errors.New("party does not hold the item")
	ErrNotApproved           = errors.New("settlement account not approved")
	ErrInsufficientHolding   = errors.New("held quantity below listed quantity")
	ErrAlreadyListed         = errors.New("listing already active")
	ErrAlreadyOffered        = errors.New("offer already active")
	ErrSaleNotStarted        = errors.New("sale window not open")
	ErrBuyerNotAllowed       = errors.New("buyer not allowed")
	ErrInsufficientPayment   = errors.New("payment below asking price")
	ErrRoyaltySet            = errors.New("royalty already attributed")
	ErrCollectionNotEligible = errors.New("collection not eligible")
	ErrAmountOverflow        = errors.New("amount overflow")
	ErrTransferFailed        = errors.New("transfer failed")
)
