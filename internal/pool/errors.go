package pool

import "errors"

var (
	ErrNotOwner               = errors.New("caller is not the pool owner")
	ErrInvalidConfig          = errors.New("invalid pool config")
	ErrInvalidSigma           = errors.New("sigma must be a multiple of 5 in [15,145]")
	ErrInvalidRate            = errors.New("rate must be in [1,100]")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidSlot            = errors.New("option slot out of range")
	ErrOptionSlotTaken        = errors.New("option slot already set")
	ErrOptionNotSet           = errors.New("option slot not set")
	ErrDuplicateDuration      = errors.New("option duration already registered")
	ErrForeignOption          = errors.New("option belongs to another pool")
	ErrRoundNotTradable       = errors.New("option round has no strike price")
	ErrInsufficientSupply     = errors.New("not enough unsold options")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrSlippage               = errors.New("premium exceeds limit")
	ErrPremiumUnsettled       = errors.New("premium settlement exceeds round quota")
	ErrPoolAccount            = errors.New("pool cannot act as its own counterparty")
)
