package mctp

import "fmt"

const (
	HeaderLen     = 4
	HeaderVersion = 0x01

	flagSOM  = 0x80
	flagEOM  = 0x40
	flagTO   = 0x08
	seqShift = 4
	seqMask  = 0x03
	tagMask  = 0x07
	flagIC   = 0x80
	typeMask = 0x7f
)

// Header is the MCTP transport header carried by every packet.
type Header struct {
	Dest   EID
	Source EID
	SOM    bool
	EOM    bool
	Seq    uint8
	Tag    Tag
}

func (h Header) Append(b []byte) []byte {
	flags := (h.Seq & seqMask) << seqShift
	flags |= h.Tag.Value & tagMask
	if h.SOM {
		flags |= flagSOM
	}
	if h.EOM {
		flags |= flagEOM
	}
	if h.Tag.Owner {
		flags |= flagTO
	}
	return append(b, HeaderVersion, byte(h.Dest), byte(h.Source), flags)
}

func DecodeHeader(pkt []byte) (Header, error) {
	if len(pkt) < HeaderLen {
		return Header{}, fmt.Errorf("%w: packet of %d bytes", ErrInvalidInput, len(pkt))
	}
	if v := pkt[0] & 0x0f; v != HeaderVersion {
		return Header{}, fmt.Errorf("%w: header version %d", ErrInvalidInput, v)
	}
	flags := pkt[3]
	return Header{
		Dest:   EID(pkt[1]),
		Source: EID(pkt[2]),
		SOM:    flags&flagSOM != 0,
		EOM:    flags&flagEOM != 0,
		Seq:    (flags >> seqShift) & seqMask,
		Tag: Tag{
			Value: flags & tagMask,
			Owner: flags&flagTO != 0,
		},
	}, nil
}

func typeByte(typ MsgType, ic bool) byte {
	b := byte(typ) & typeMask
	if ic {
		b |= flagIC
	}
	return b
}
