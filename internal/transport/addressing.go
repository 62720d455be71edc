package transport

import (
	"fmt"

	"github.com/danmuck/i2cmctp/internal/protocol"
)

// Addressing is the per-connection bus configuration. It is copied by
// value into the sender and receiver and never changes afterwards.
type Addressing struct {
	Local protocol.Addr
	Peer  protocol.Addr
	PEC   bool
}

func (a Addressing) Validate() error {
	if !a.Local.Valid() {
		return fmt.Errorf("%w: local %s", protocol.ErrInvalidAddr, a.Local)
	}
	if !a.Peer.Valid() {
		return fmt.Errorf("%w: peer %s", protocol.ErrInvalidAddr, a.Peer)
	}
	if a.Local == a.Peer {
		return fmt.Errorf("%w: local and peer are both %s", protocol.ErrInvalidAddr, a.Local)
	}
	return nil
}
