package domain

import "errors"

// True error conditions. Unlike block reasons these indicate a
// configuration or integration bug and propagate to the caller, which
// must treat them as fatal for that cycle - never as "allow by default".
var (
	// ErrUnknownAsset means a signal referenced a symbol that is not in
	// the target registry at all.
	ErrUnknownAsset = errors.New("asset not registered in target registry")

	// ErrInvalidSnapshot means a portfolio snapshot carried a negative or
	// non-finite quantity or mark price.
	ErrInvalidSnapshot = errors.New("invalid portfolio snapshot")
)
