package mctp

import (
	"fmt"
	"time"
)

type reasmKey struct {
	source EID
	tag    Tag
}

// reassembly accumulates the packets of one in-flight message.
type reassembly struct {
	msg     Message
	nextSeq uint8
	started time.Time
}

func startReassembly(h Header, body []byte, now time.Time) (*reassembly, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: start packet without message type", ErrInvalidInput)
	}
	r := &reassembly{
		msg: Message{
			Type:   MsgType(body[0] & typeMask),
			IC:     body[0]&flagIC != 0,
			Source: h.Source,
			Dest:   h.Dest,
			Tag:    h.Tag,
		},
		nextSeq: (h.Seq + 1) & seqMask,
		started: now,
	}
	r.msg.Payload = append([]byte(nil), body[1:]...)
	return r, nil
}

func (r *reassembly) add(h Header, body []byte, maxMessage int) error {
	if h.Seq != r.nextSeq {
		return fmt.Errorf("%w: got %d want %d", ErrBadSequence, h.Seq, r.nextSeq)
	}
	if len(r.msg.Payload)+len(body) > maxMessage {
		return fmt.Errorf("%w: exceeds %d bytes", ErrMessageTooLarge, maxMessage)
	}
	r.msg.Payload = append(r.msg.Payload, body...)
	r.nextSeq = (r.nextSeq + 1) & seqMask
	return nil
}
