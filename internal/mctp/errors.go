package mctp

import "errors"

var (
	ErrBadArgument     = errors.New("mctp: bad argument")
	ErrInvalidInput    = errors.New("mctp: invalid input")
	ErrTxFailure       = errors.New("mctp: transmit failure")
	ErrTimeout         = errors.New("mctp: timed out")
	ErrTagUnavailable  = errors.New("mctp: no tag available")
	ErrAddrInUse       = errors.New("mctp: listener already registered")
	ErrNotForUs        = errors.New("mctp: packet not addressed to this endpoint")
	ErrBadSequence     = errors.New("mctp: packet sequence mismatch")
	ErrUnexpected      = errors.New("mctp: packet without reassembly context")
	ErrUnhandled       = errors.New("mctp: no receiver for message")
	ErrMessageTooLarge = errors.New("mctp: message too large")
	ErrNoSpace         = errors.New("mctp: receive queue full")
	ErrClosed          = errors.New("mctp: channel closed")
)
