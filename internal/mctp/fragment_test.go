package mctp

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/i2cmctp/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

func drain(t *testing.T, f *Fragmenter, payload ...[]byte) [][]byte {
	t.Helper()
	var pkts [][]byte
	for i := 0; i < 10000; i++ {
		out := f.Next(payload...)
		switch out.Kind {
		case OutputPacket:
			pkts = append(pkts, out.Packet)
		case OutputComplete:
			return pkts
		case OutputError:
			t.Fatalf("fragment error: %v", out.Err)
		}
	}
	t.Fatalf("fragmenter never completed")
	return nil
}

func TestHeaderRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := Header{Dest: 9, Source: 8, SOM: true, EOM: false, Seq: 3, Tag: Tag{Value: 5, Owner: true}}
	b := in.Append(nil)
	if len(b) != HeaderLen {
		t.Fatalf("unexpected header length %d", len(b))
	}
	if b[3] != 0x80|0x30|0x08|0x05 {
		t.Fatalf("unexpected flags 0x%02x", b[3])
	}
	got, err := DecodeHeader(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeHeaderRejects(t *testing.T) {
	testlog.Start(t)
	if _, err := DecodeHeader([]byte{1, 2}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short packet, got %v", err)
	}
	if _, err := DecodeHeader([]byte{0x02, 9, 8, 0xc0}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for version, got %v", err)
	}
}

func TestFragmenterSinglePacket(t *testing.T) {
	testlog.Start(t)
	f, err := NewFragmenter(MsgTypePLDM, 9, 8, Tag{Value: 1, Owner: true}, 254, false)
	if err != nil {
		t.Fatalf("new fragmenter: %v", err)
	}
	pkts := drain(t, f, []byte("Hello World!"))
	if len(pkts) != 1 {
		t.Fatalf("expected one packet, got %d", len(pkts))
	}
	want := append([]byte{HeaderVersion, 8, 9, 0xc0 | 0x08 | 0x01, byte(MsgTypePLDM)}, "Hello World!"...)
	if !bytes.Equal(pkts[0], want) {
		t.Fatalf("packet got=% x want=% x", pkts[0], want)
	}
}

func TestFragmenterVectoredSplitsAtMTU(t *testing.T) {
	testlog.Start(t)
	msg := bytes.Repeat([]byte("0123456789"), 10)
	const mtu = HeaderLen + 16
	f, err := NewFragmenter(MsgTypeVendor, 9, 8, Tag{Value: 2, Owner: true}, mtu, false)
	if err != nil {
		t.Fatalf("new fragmenter: %v", err)
	}
	pkts := drain(t, f, msg[:7], msg[7:50], nil, msg[50:])

	// One type byte plus 100 payload bytes, 16 per packet.
	if len(pkts) != 7 {
		t.Fatalf("expected 7 packets, got %d", len(pkts))
	}
	var body []byte
	for i, p := range pkts {
		if len(p) > mtu {
			t.Fatalf("packet %d exceeds mtu: %d", i, len(p))
		}
		h, err := DecodeHeader(p)
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		if h.SOM != (i == 0) || h.EOM != (i == len(pkts)-1) {
			t.Fatalf("packet %d som/eom wrong: %+v", i, h)
		}
		if h.Seq != uint8(i)&seqMask {
			t.Fatalf("packet %d seq=%d", i, h.Seq)
		}
		body = append(body, p[HeaderLen:]...)
	}
	if body[0] != byte(MsgTypeVendor) {
		t.Fatalf("type byte 0x%02x", body[0])
	}
	if !bytes.Equal(body[1:], msg) {
		t.Fatalf("reconstructed message mismatch")
	}
}

func TestFragmenterRejects(t *testing.T) {
	testlog.Start(t)
	if _, err := NewFragmenter(MsgTypePLDM, 9, 8, Tag{}, HeaderLen, false); !errors.Is(err, ErrBadArgument) {
		t.Fatalf("expected ErrBadArgument for mtu, got %v", err)
	}
	if _, err := NewFragmenter(0x80, 9, 8, Tag{}, 64, false); !errors.Is(err, ErrBadArgument) {
		t.Fatalf("expected ErrBadArgument for type, got %v", err)
	}
	if _, err := NewFragmenter(MsgTypePLDM, 9, 8, Tag{Value: 8}, 64, false); !errors.Is(err, ErrBadArgument) {
		t.Fatalf("expected ErrBadArgument for tag, got %v", err)
	}

	f, err := NewFragmenter(MsgTypePLDM, 9, 8, Tag{}, 64, false)
	if err != nil {
		t.Fatalf("new fragmenter: %v", err)
	}
	out := f.Next(make([]byte, DefaultMaxMessage+1))
	if out.Kind != OutputError || !errors.Is(out.Err, ErrMessageTooLarge) {
		t.Fatalf("expected too-large error, got %+v", out.Kind)
	}
}
