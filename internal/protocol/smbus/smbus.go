// Package smbus implements the MCTP SMBus/I2C transport binding: the
// bus-level envelope that wraps one MCTP packet for a single I2C write.
package smbus

import (
	"errors"
	"fmt"

	"github.com/danmuck/i2cmctp/internal/protocol"
)

const (
	// CommandCode identifies MCTP in the SMBus block-write command byte.
	CommandCode = 0x0f
	HeaderLen   = 4
	PECLen      = 1

	// MaxBlock is the largest SMBus byte count; it covers the source
	// address byte plus the MCTP packet.
	MaxBlock = 255
	MaxMTU   = MaxBlock - 1
)

var (
	ErrShortPacket   = errors.New("smbus: short packet")
	ErrCommandCode   = errors.New("smbus: unexpected command code")
	ErrReadBit       = errors.New("smbus: destination has read bit set")
	ErrSourceBit     = errors.New("smbus: source address missing IPMI/MCTP bit")
	ErrByteCount     = errors.New("smbus: byte count mismatch")
	ErrPEC           = errors.New("smbus: PEC mismatch")
	ErrPacketTooLong = errors.New("smbus: packet exceeds MTU")
)

// Header is the decoded bus-level envelope.
type Header struct {
	Dest      protocol.Addr
	Source    protocol.Addr
	ByteCount int
}

// Encap encodes and decodes packets on behalf of one local bus address.
type Encap struct {
	OwnAddr protocol.Addr
}

func New(own protocol.Addr) Encap {
	return Encap{OwnAddr: own}
}

// EncodedLen returns the bus packet size for an MCTP packet of n bytes.
func EncodedLen(n int, pec bool) int {
	if pec {
		return HeaderLen + n + PECLen
	}
	return HeaderLen + n
}

// Encode wraps one MCTP packet addressed to dst.
func (e Encap) Encode(dst protocol.Addr, pkt []byte, pec bool) ([]byte, error) {
	if !dst.Valid() {
		return nil, fmt.Errorf("%w: dest %s", protocol.ErrInvalidAddr, dst)
	}
	if !e.OwnAddr.Valid() {
		return nil, fmt.Errorf("%w: source %s", protocol.ErrInvalidAddr, e.OwnAddr)
	}
	if len(pkt) > MaxMTU {
		return nil, fmt.Errorf("%w: %d > %d", ErrPacketTooLong, len(pkt), MaxMTU)
	}

	out := make([]byte, 0, EncodedLen(len(pkt), pec))
	out = append(out,
		byte(dst)<<1,
		CommandCode,
		byte(len(pkt)+1),
		byte(e.OwnAddr)<<1|0x01,
	)
	out = append(out, pkt...)
	if pec {
		out = append(out, PEC(out))
	}
	return out, nil
}

// Decode strips the envelope and returns the MCTP packet. The destination
// is reported, not checked; address policy belongs to the caller.
func (e Encap) Decode(buf []byte, pec bool) ([]byte, Header, error) {
	minLen := HeaderLen
	if pec {
		minLen += PECLen
	}
	if len(buf) < minLen {
		return nil, Header{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(buf))
	}
	if buf[0]&0x01 != 0 {
		return nil, Header{}, ErrReadBit
	}
	if buf[1] != CommandCode {
		return nil, Header{}, fmt.Errorf("%w: 0x%02x", ErrCommandCode, buf[1])
	}
	if buf[3]&0x01 == 0 {
		return nil, Header{}, ErrSourceBit
	}

	body := buf[HeaderLen:]
	if pec {
		want := buf[len(buf)-1]
		if got := PEC(buf[:len(buf)-1]); got != want {
			return nil, Header{}, fmt.Errorf("%w: got 0x%02x want 0x%02x", ErrPEC, got, want)
		}
		body = body[:len(body)-1]
	}

	h := Header{
		Dest:      protocol.Addr(buf[0] >> 1),
		Source:    protocol.Addr(buf[3] >> 1),
		ByteCount: int(buf[2]),
	}
	if h.ByteCount != len(body)+1 {
		return nil, Header{}, fmt.Errorf("%w: header=%d actual=%d", ErrByteCount, h.ByteCount, len(body)+1)
	}
	return body, h, nil
}
