package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyResolved    = errors.New("market already resolved")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrValidation         = errors.New("invalid input")
	ErrUpstream           = errors.New("upstream failure")
)
