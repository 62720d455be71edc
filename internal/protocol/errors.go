package protocol

import "errors"

var (
	ErrInvalidAddr = errors.New("protocol: invalid 7-bit bus address")
)
