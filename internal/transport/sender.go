package transport

import (
	"fmt"

	"github.com/danmuck/i2cmctp/internal/mctp"
	"github.com/danmuck/i2cmctp/internal/observability"
	"github.com/danmuck/i2cmctp/internal/protocol/frame"
	"github.com/danmuck/i2cmctp/internal/protocol/smbus"
	"github.com/rs/zerolog/log"
)

// Sender writes MCTP packets to the peer as framed SMBus block writes. It
// implements mctp.Sender.
type Sender struct {
	out   *SendHalf
	addr  Addressing
	codec smbus.Encap
}

var _ mctp.Sender = (*Sender)(nil)

func NewSender(out *SendHalf, addr Addressing) *Sender {
	return &Sender{
		out:   out,
		addr:  addr,
		codec: smbus.New(addr.Local),
	}
}

// MTU is the largest MCTP packet one SMBus block write can carry.
func (s *Sender) MTU() int {
	return smbus.MaxMTU
}

// SendVectored drains frag, writing one frame per packet. Fragmenter errors
// are returned unchanged; write failures are reported as mctp.ErrTxFailure.
func (s *Sender) SendVectored(eid mctp.EID, frag *mctp.Fragmenter, payload ...[]byte) (mctp.Tag, error) {
	for {
		out := frag.Next(payload...)
		switch out.Kind {
		case mctp.OutputPacket:
			if err := s.sendFragment(out.Packet); err != nil {
				return mctp.Tag{}, err
			}
		case mctp.OutputComplete:
			log.Debug().Str("eid", eid.String()).Str("tag", out.Tag.String()).Msg("transport: message sent")
			return out.Tag, nil
		case mctp.OutputError:
			return mctp.Tag{}, out.Err
		default:
			return mctp.Tag{}, fmt.Errorf("transport: unknown fragment output %d", out.Kind)
		}
	}
}

// Send transmits one single-buffer message.
func (s *Sender) Send(eid mctp.EID, frag *mctp.Fragmenter, msg []byte) (mctp.Tag, error) {
	return s.SendVectored(eid, frag, msg)
}

func (s *Sender) sendFragment(pkt []byte) error {
	bus, err := s.codec.Encode(s.addr.Peer, pkt, s.addr.PEC)
	if err != nil {
		return err
	}
	buf, err := frame.MarshalFrame(frame.Frame{
		Header:  frame.Header{Src: s.addr.Local, Dst: s.addr.Peer},
		Payload: bus,
	})
	if err != nil {
		return err
	}
	if _, err := s.out.Write(buf); err != nil {
		observability.RecordSendFailure(s.addr.Local.String())
		return fmt.Errorf("%w: %w", mctp.ErrTxFailure, err)
	}
	observability.RecordFrameSent(s.addr.Local.String(), len(buf))
	log.Trace().
		Str("src", s.addr.Local.String()).
		Str("dst", s.addr.Peer.String()).
		Int("len", len(bus)).
		Msg("transport: frame written")
	return nil
}
