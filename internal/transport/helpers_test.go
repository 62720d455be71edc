package transport

import (
	"net"
	"sync"
	"testing"

	"github.com/danmuck/i2cmctp/internal/mctp"
	"github.com/danmuck/i2cmctp/internal/protocol"
	"github.com/danmuck/i2cmctp/internal/protocol/frame"
	"github.com/danmuck/i2cmctp/internal/protocol/smbus"
)

type recordingInbound struct {
	mu   sync.Mutex
	pkts [][]byte
	errs []error
}

func (r *recordingInbound) Inbound(pkt []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pkts = append(r.pkts, append([]byte(nil), pkt...))
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return err
	}
	return nil
}

func (r *recordingInbound) received() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.pkts...)
}

// pipePair returns a split local Conn and the raw peer end of the pipe.
func pipePair(t *testing.T) (*Conn, *SendHalf, *RecvHalf, net.Conn) {
	t.Helper()
	local, peer := net.Pipe()
	c := NewConn(local, RoleClient, "")
	out, in, err := c.Split()
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
		_ = peer.Close()
	})
	return c, out, in, peer
}

// mctpPacket builds a single-packet request carrying payload.
func mctpPacket(dest, src mctp.EID, payload []byte) []byte {
	h := mctp.Header{Dest: dest, Source: src, SOM: true, EOM: true, Tag: mctp.Tag{Value: 1, Owner: true}}
	pkt := h.Append(nil)
	pkt = append(pkt, byte(mctp.MsgTypePLDM))
	return append(pkt, payload...)
}

// peerFrame wraps pkt the way a peer at busSrc would, addressing both
// layers explicitly so tests can diverge them.
func peerFrame(t *testing.T, busSrc, chardevDst, busDst protocol.Addr, pkt []byte, pec bool) []byte {
	t.Helper()
	bus, err := smbus.New(busSrc).Encode(busDst, pkt, pec)
	if err != nil {
		t.Fatalf("encode bus packet: %v", err)
	}
	buf, err := frame.MarshalFrame(frame.Frame{
		Header:  frame.Header{Src: busSrc, Dst: chardevDst},
		Payload: bus,
	})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return buf
}
