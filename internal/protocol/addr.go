package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Addr is a 7-bit I2C bus address carried in one byte.
type Addr uint8

// MaxAddr is the highest valid 7-bit address.
const MaxAddr Addr = 0x7f

func (a Addr) Valid() bool {
	return a <= MaxAddr
}

func (a Addr) String() string {
	return fmt.Sprintf("0x%02x", uint8(a))
}

// ParseAddr accepts decimal or 0x-prefixed hex notation.
func ParseAddr(raw string) (Addr, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddr, raw)
	}
	a := Addr(v)
	if !a.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAddr, a)
	}
	return a, nil
}
