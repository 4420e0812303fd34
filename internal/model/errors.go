package model

import "errors"

var (
	ErrAdmissionRejected         = errors.New("admission rejected")
	ErrInsufficientActiveBalance = errors.New("insufficient active balance")
	ErrOutOfOrderSettlement      = errors.New("out of order settlement")
	ErrUnauthorizedSettlement    = errors.New("unauthorized settlement")
	ErrPaused                    = errors.New("operation paused")
	ErrDuplicatePool             = errors.New("duplicate pool")
	ErrUnknownPool               = errors.New("unknown pool")
	ErrQueueEmpty                = errors.New("queue empty")
	ErrInsufficientFee           = errors.New("insufficient settlement fee")
	ErrUnauthorized              = errors.New("unauthorized")
)
