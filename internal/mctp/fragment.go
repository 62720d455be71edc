package mctp

import "fmt"

// DefaultMaxMessage bounds both outbound messages and reassembly buffers.
const DefaultMaxMessage = 64 * 1024

type OutputKind int

const (
	OutputPacket OutputKind = iota
	OutputComplete
	OutputError
)

// Output is one step of a Fragmenter.
type Output struct {
	Kind   OutputKind
	Packet []byte
	Tag    Tag
	Err    error
}

// Fragmenter splits one message into MTU-sized packets. The same payload
// must be passed to every Next call.
type Fragmenter struct {
	header     Header
	head       byte
	mtu        int
	maxMessage int
	offset     int
	done       bool
}

func NewFragmenter(typ MsgType, src, dest EID, tag Tag, mtu int, ic bool) (*Fragmenter, error) {
	if typ > maxMsgType {
		return nil, fmt.Errorf("%w: message type 0x%02x", ErrBadArgument, uint8(typ))
	}
	if tag.Value > MaxTagValue {
		return nil, fmt.Errorf("%w: tag %d", ErrBadArgument, tag.Value)
	}
	if mtu <= HeaderLen {
		return nil, fmt.Errorf("%w: mtu %d", ErrBadArgument, mtu)
	}
	return &Fragmenter{
		header:     Header{Dest: dest, Source: src, Tag: tag},
		head:       typeByte(typ, ic),
		mtu:        mtu,
		maxMessage: DefaultMaxMessage,
	}, nil
}

// SetMaxMessage lowers or raises the outbound message limit. Values <= 0
// restore DefaultMaxMessage.
func (f *Fragmenter) SetMaxMessage(n int) {
	if n <= 0 {
		n = DefaultMaxMessage
	}
	f.maxMessage = n
}

func (f *Fragmenter) Tag() Tag {
	return f.header.Tag
}

func (f *Fragmenter) Dest() EID {
	return f.header.Dest
}

// Next returns the next packet, then OutputComplete once the message has
// been fully emitted.
func (f *Fragmenter) Next(payload ...[]byte) Output {
	if f.done {
		return Output{Kind: OutputComplete, Tag: f.header.Tag}
	}

	total := 1
	for _, p := range payload {
		total += len(p)
	}
	if total-1 > f.maxMessage {
		f.done = true
		return Output{
			Kind: OutputError,
			Tag:  f.header.Tag,
			Err:  fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, total-1),
		}
	}

	n := min(total-f.offset, f.mtu-HeaderLen)
	h := f.header
	h.SOM = f.offset == 0
	h.EOM = f.offset+n == total

	pkt := make([]byte, 0, HeaderLen+n)
	pkt = h.Append(pkt)
	pkt = appendRange(pkt, f.head, payload, f.offset, n)

	f.offset += n
	f.header.Seq = (f.header.Seq + 1) & seqMask
	if h.EOM {
		f.done = true
	}
	return Output{Kind: OutputPacket, Packet: pkt, Tag: f.header.Tag}
}

// appendRange copies n bytes starting at off from the logical message
// head||payload[0]||payload[1]...
func appendRange(dst []byte, head byte, payload [][]byte, off, n int) []byte {
	if n == 0 {
		return dst
	}
	pos := off - 1
	if off == 0 {
		dst = append(dst, head)
		n--
		pos = 0
	}
	for _, p := range payload {
		if n == 0 {
			break
		}
		if pos >= len(p) {
			pos -= len(p)
			continue
		}
		take := min(len(p)-pos, n)
		dst = append(dst, p[pos:pos+take]...)
		n -= take
		pos = 0
	}
	return dst
}
