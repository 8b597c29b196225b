package vault

import "errors"

// Operation failures. Every failure aborts the whole operation and leaves
// the ledger untouched; callers match with errors.Is.
var (
	// ErrInvalidLeverage is returned when leverage is outside [1, 10)
	ErrInvalidLeverage = errors.New("leverage must be less than 10")

	// ErrInsufficientFreeCollateral is returned when a withdrawal or position
	// exceeds the spendable balance (free collateral minus locked margin)
	ErrInsufficientFreeCollateral = errors.New("insufficient free collateral")

	// ErrInvalidPrice is returned when the price source reports a non-positive price
	ErrInvalidPrice = errors.New("invalid price")

	// ErrPositionNotFound is returned for an unknown id, wrong owner, or a
	// position that has already been cancelled
	ErrPositionNotFound = errors.New("position not found")

	// ErrTransferFailed is returned when the external asset ledger rejects a transfer
	ErrTransferFailed = errors.New("transfer failed")
)
