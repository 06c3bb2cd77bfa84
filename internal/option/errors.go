package option

import "errors"

var (
	ErrRoundExpired          = errors.New("option round expired")
	ErrRoundNotExpired       = errors.New("option round not expired")
	ErrRoundNotFound         = errors.New("option round not found")
	ErrInsufficientBalance   = errors.New("insufficient option balance")
	ErrInsufficientAllowance = errors.New("insufficient option allowance")
	ErrPremiumShareSet       = errors.New("round premium share already set")
	ErrInvalidDuration       = errors.New("option duration must be positive")
	ErrZeroAddress           = errors.New("zero address")
)
