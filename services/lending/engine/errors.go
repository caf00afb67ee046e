package engine

import (
	"lendledger/native/common"
	"lendledger/native/lending"
)

var (
	ErrNotFound            = lending.ErrNotFound
	ErrInvalidAmount       = lending.ErrInvalidAmount
	ErrInvalidState        = lending.ErrInvalidState
	ErrInsufficientPayment = lending.ErrInsufficientPayment
	ErrUnauthorized        = lending.ErrUnauthorized
	ErrOverflow            = lending.ErrOverflow
	ErrPaused              = common.ErrModulePaused
)
