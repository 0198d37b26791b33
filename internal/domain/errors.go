package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnknownProduct     = errors.New("unknown product")
	ErrNegativeStock      = errors.New("stock cannot go below zero")
	ErrShiftAlreadyActive = errors.New("cashier already has an active shift")
	ErrShiftClosed        = errors.New("shift already closed")
	ErrMalformedRecord    = errors.New("malformed record")
)
