package transport

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/danmuck/i2cmctp/internal/mctp"
	"github.com/danmuck/i2cmctp/internal/protocol/frame"
	"github.com/danmuck/i2cmctp/internal/protocol/smbus"
	"github.com/danmuck/i2cmctp/internal/testutil/testlog"
)

func readFrames(peer net.Conn, n int) <-chan []frame.Frame {
	done := make(chan []frame.Frame, 1)
	go func() {
		var frames []frame.Frame
		for i := 0; i < n; i++ {
			f, err := frame.ReadFrame(peer)
			if err != nil {
				break
			}
			frames = append(frames, f)
		}
		done <- frames
	}()
	return done
}

func TestSenderHelloWorldSingleFrame(t *testing.T) {
	testlog.Start(t)
	for _, pec := range []bool{false, true} {
		_, out, _, peer := pipePair(t)
		addr := Addressing{Local: 0x20, Peer: 0x10, PEC: pec}
		s := NewSender(out, addr)

		frag, err := mctp.NewFragmenter(mctp.MsgTypePLDM, 8, 9, mctp.Tag{Value: 0}, s.MTU(), false)
		if err != nil {
			t.Fatalf("fragmenter: %v", err)
		}
		got := readFrames(peer, 1)
		tag, err := s.Send(9, frag, []byte("Hello World!"))
		if err != nil {
			t.Fatalf("pec=%v send: %v", pec, err)
		}
		if tag != (mctp.Tag{Value: 0}) {
			t.Fatalf("unexpected tag %s", tag)
		}

		frames := <-got
		if len(frames) != 1 {
			t.Fatalf("pec=%v expected one frame, got %d", pec, len(frames))
		}
		h := frames[0].Header
		wantLen := smbus.EncodedLen(mctp.HeaderLen+1+12, pec)
		if int(h.Len) != wantLen || h.Src != 0x20 || h.Dst != 0x10 {
			t.Fatalf("pec=%v header=%+v wantLen=%d", pec, h, wantLen)
		}

		pkt, bh, err := smbus.New(0x10).Decode(frames[0].Payload, pec)
		if err != nil {
			t.Fatalf("pec=%v decode: %v", pec, err)
		}
		if bh.Dest != 0x10 || bh.Source != 0x20 {
			t.Fatalf("pec=%v bus header %+v", pec, bh)
		}
		if !bytes.Equal(pkt[mctp.HeaderLen+1:], []byte("Hello World!")) {
			t.Fatalf("pec=%v payload mismatch", pec)
		}
	}
}

func TestSenderFragmentationCompleteness(t *testing.T) {
	testlog.Start(t)
	_, out, _, peer := pipePair(t)
	s := NewSender(out, Addressing{Local: 0x20, Peer: 0x10})

	msg := bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef, 0x01}, 120)
	perPacket := s.MTU() - mctp.HeaderLen
	want := (len(msg) + 1 + perPacket - 1) / perPacket

	frag, err := mctp.NewFragmenter(mctp.MsgTypeVendor, 8, 9, mctp.Tag{Value: 4, Owner: true}, s.MTU(), false)
	if err != nil {
		t.Fatalf("fragmenter: %v", err)
	}
	got := readFrames(peer, want)
	tag, err := s.SendVectored(9, frag, msg[:100], msg[100:])
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if tag != (mctp.Tag{Value: 4, Owner: true}) {
		t.Fatalf("unexpected tag %s", tag)
	}

	frames := <-got
	if len(frames) != want {
		t.Fatalf("expected %d frames, got %d", want, len(frames))
	}
	var body []byte
	for i, f := range frames {
		pkt, _, err := smbus.New(0x10).Decode(f.Payload, false)
		if err != nil {
			t.Fatalf("frame %d decode: %v", i, err)
		}
		body = append(body, pkt[mctp.HeaderLen:]...)
	}
	if body[0] != byte(mctp.MsgTypeVendor) || !bytes.Equal(body[1:], msg) {
		t.Fatalf("reassembled message mismatch")
	}
}

func TestSenderWriteFailureIsTxFailure(t *testing.T) {
	testlog.Start(t)
	c, out, _, _ := pipePair(t)
	_ = c.Close()
	s := NewSender(out, Addressing{Local: 0x20, Peer: 0x10})
	frag, _ := mctp.NewFragmenter(mctp.MsgTypePLDM, 8, 9, mctp.Tag{}, s.MTU(), false)
	_, err := s.Send(9, frag, []byte("x"))
	if !errors.Is(err, mctp.ErrTxFailure) {
		t.Fatalf("expected ErrTxFailure, got %v", err)
	}
}

func TestSenderPropagatesFragmenterError(t *testing.T) {
	testlog.Start(t)
	_, out, _, _ := pipePair(t)
	s := NewSender(out, Addressing{Local: 0x20, Peer: 0x10})
	frag, _ := mctp.NewFragmenter(mctp.MsgTypePLDM, 8, 9, mctp.Tag{}, s.MTU(), false)
	_, err := s.Send(9, frag, make([]byte, mctp.DefaultMaxMessage+1))
	if !errors.Is(err, mctp.ErrMessageTooLarge) || errors.Is(err, mctp.ErrTxFailure) {
		t.Fatalf("expected fragmenter error unchanged, got %v", err)
	}
}

func TestConcurrentSendersNeverInterleave(t *testing.T) {
	testlog.Start(t)
	const (
		senders = 8
		rounds  = 20
		msgLen  = 700
	)
	_, out, _, peer := pipePair(t)
	addr := Addressing{Local: 0x20, Peer: 0x10, PEC: true}
	s := NewSender(out, addr)

	perMsg := (1 + msgLen + s.MTU() - mctp.HeaderLen - 1) / (s.MTU() - mctp.HeaderLen)
	got := readFrames(peer, senders*rounds*perMsg)

	var wg sync.WaitGroup
	for g := 0; g < senders; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			msg := bytes.Repeat([]byte{byte(g)}, msgLen)
			for i := 0; i < rounds; i++ {
				frag, err := mctp.NewFragmenter(mctp.MsgTypePLDM, 8, 9, mctp.Tag{Value: uint8(g), Owner: true}, s.MTU(), false)
				if err != nil {
					t.Errorf("fragmenter: %v", err)
					return
				}
				if _, err := s.Send(9, frag, msg); err != nil {
					t.Errorf("sender %d send %d: %v", g, i, err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	frames := <-got
	if len(frames) != senders*rounds*perMsg {
		t.Fatalf("expected %d frames, got %d", senders*rounds*perMsg, len(frames))
	}
	codec := smbus.New(addr.Peer)
	received := make(map[uint8]int)
	for i, f := range frames {
		if f.Header.Src != addr.Local || f.Header.Dst != addr.Peer {
			t.Fatalf("frame %d: unexpected header %+v", i, f.Header)
		}
		pkt, _, err := codec.Decode(f.Payload, true)
		if err != nil {
			t.Fatalf("frame %d: decode: %v", i, err)
		}
		h, err := mctp.DecodeHeader(pkt)
		if err != nil {
			t.Fatalf("frame %d: mctp header: %v", i, err)
		}
		body := pkt[mctp.HeaderLen:]
		if h.SOM {
			body = body[1:]
		}
		for _, b := range body {
			if b != h.Tag.Value {
				t.Fatalf("frame %d: tag %d carries byte from sender %d", i, h.Tag.Value, b)
			}
		}
		received[h.Tag.Value] += len(body)
	}
	for g := 0; g < senders; g++ {
		if received[uint8(g)] != rounds*msgLen {
			t.Fatalf("sender %d: received %d bytes, want %d", g, received[uint8(g)], rounds*msgLen)
		}
	}
}
