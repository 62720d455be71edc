package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/danmuck/i2cmctp/internal/protocol"
)

// Chardev header constants as defined in qemu/include/hw/i2c/chardev_i2c.h.
const (
	HeaderLen = 6
	Magic     = 0xCD
	Version   = 0x01

	MaxPayloadLen = math.MaxUint16
)

var (
	ErrBadMagic         = errors.New("frame: bad magic")
	ErrBadVersion       = errors.New("frame: unsupported version")
	ErrInvalidHeaderLen = errors.New("frame: invalid fixed header length")
	ErrShortHeader      = errors.New("frame: short fixed header")
	ErrShortPayload     = errors.New("frame: short payload")
	ErrPayloadTooLarge  = errors.New("frame: payload too large")
)

// Header describes one bus transaction carried over the byte stream.
// Len is encoded little-endian.
type Header struct {
	Magic   uint8
	Version uint8
	Len     uint16
	Src     protocol.Addr
	Dst     protocol.Addr
}

// Frame is one complete header-prefixed transmission unit.
type Frame struct {
	Header  Header
	Payload []byte
}

func NewHeader(length uint16, src, dst protocol.Addr) Header {
	return Header{
		Magic:   Magic,
		Version: Version,
		Len:     length,
		Src:     src,
		Dst:     dst,
	}
}

func EncodeHeader(h Header) []byte {
	return AppendHeader(make([]byte, 0, HeaderLen), h)
}

func AppendHeader(buf []byte, h Header) []byte {
	buf = append(buf, h.Magic, h.Version)
	buf = binary.LittleEndian.AppendUint16(buf, h.Len)
	return append(buf, byte(h.Src), byte(h.Dst))
}

// DecodeHeader checks magic and version only; length and addresses are the
// caller's concern.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderLen {
		return Header{}, fmt.Errorf("%w: %d", ErrInvalidHeaderLen, len(b))
	}
	if b[0] != Magic {
		return Header{}, fmt.Errorf("%w: 0x%02x", ErrBadMagic, b[0])
	}
	if b[1] != Version {
		return Header{}, fmt.Errorf("%w: 0x%02x", ErrBadVersion, b[1])
	}
	return Header{
		Magic:   b[0],
		Version: b[1],
		Len:     binary.LittleEndian.Uint16(b[2:4]),
		Src:     protocol.Addr(b[4]),
		Dst:     protocol.Addr(b[5]),
	}, nil
}

// ReadFrame reads one header and its payload. It returns io.EOF unwrapped
// only when the stream ended cleanly before the first header byte.
func ReadFrame(r io.Reader) (Frame, error) {
	var fixed [HeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}

	payload := make([]byte, h.Len)
	if h.Len > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Frame{}, fmt.Errorf("%w: want %d bytes", ErrShortPayload, h.Len)
			}
			return Frame{}, err
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

// WriteFrame emits header and payload with a single Write so that frames
// from concurrent writers on the same stream never interleave.
func WriteFrame(w io.Writer, f Frame) error {
	buf, err := MarshalFrame(f)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// MarshalFrame fills in magic, version and length from the payload.
func MarshalFrame(f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(f.Payload))
	}
	h := NewHeader(uint16(len(f.Payload)), f.Header.Src, f.Header.Dst)
	buf := make([]byte, 0, HeaderLen+len(f.Payload))
	buf = AppendHeader(buf, h)
	return append(buf, f.Payload...), nil
}
