package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/danmuck/i2cmctp/internal/observability"
	"github.com/danmuck/i2cmctp/internal/protocol/frame"
	"github.com/danmuck/i2cmctp/internal/protocol/smbus"
	"github.com/rs/zerolog/log"
)

// Inbound is the protocol engine's entry point for decoded packets.
type Inbound interface {
	Inbound(pkt []byte) error
}

type State int32

const (
	StateRunning State = iota
	StateStopped
)

func (s State) String() string {
	if s == StateStopped {
		return "stopped"
	}
	return "running"
}

// Drop reasons reported to metrics.
const (
	dropDestMismatch    = "dest_mismatch"
	dropDecode          = "decode"
	dropBusDestMismatch = "bus_dest_mismatch"
)

type ReceiverConfig struct {
	// MaxDecodeErrors is the number of consecutive SMBus decode failures
	// tolerated before the stream is treated as desynchronized. 0 disables
	// the limit.
	MaxDecodeErrors int
}

func DefaultReceiverConfig() ReceiverConfig {
	return ReceiverConfig{MaxDecodeErrors: 32}
}

// Receiver drains frames from the receive half for the life of the
// connection.
type Receiver struct {
	in    *RecvHalf
	addr  Addressing
	stack Inbound
	codec smbus.Encap
	cfg   ReceiverConfig
	state atomic.Int32
}

func NewReceiver(in *RecvHalf, addr Addressing, stack Inbound, cfg ReceiverConfig) *Receiver {
	return &Receiver{
		in:    in,
		addr:  addr,
		stack: stack,
		codec: smbus.New(addr.Local),
		cfg:   cfg,
	}
}

func (r *Receiver) State() State {
	return State(r.state.Load())
}

// Run returns nil when the peer closes the stream between frames, when the
// connection is closed locally, or when ctx ends. Anything else that
// breaks the stream is a *FatalError.
func (r *Receiver) Run(ctx context.Context) error {
	defer r.state.Store(int32(StateStopped))
	stop := context.AfterFunc(ctx, func() {
		_ = r.in.SetReadDeadline(time.Now())
	})
	defer stop()

	local := r.addr.Local.String()
	decodeErrs := 0
	for {
		f, err := frame.ReadFrame(r.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info().Str("local", local).Msg("transport: peer closed connection")
				return nil
			}
			if ctx.Err() != nil || r.in.closed() {
				return nil
			}
			return r.fatal("read", err)
		}

		if f.Header.Dst != r.addr.Local {
			log.Warn().
				Str("local", local).
				Str("dst", f.Header.Dst.String()).
				Msg("transport: discarding frame with wrong destination")
			observability.RecordFrameDropped(local, dropDestMismatch)
			continue
		}

		pkt, bh, err := r.codec.Decode(f.Payload, r.addr.PEC)
		if err != nil {
			decodeErrs++
			log.Error().Err(err).Str("local", local).Int("consecutive", decodeErrs).
				Msg("transport: decoding i2c packet")
			observability.RecordFrameDropped(local, dropDecode)
			if r.cfg.MaxDecodeErrors > 0 && decodeErrs >= r.cfg.MaxDecodeErrors {
				return r.fatal("decode", fmt.Errorf("%w: %d", ErrDecodeLimit, decodeErrs))
			}
			continue
		}
		decodeErrs = 0

		if bh.Dest != r.addr.Local {
			log.Error().
				Str("local", local).
				Str("bus_dst", bh.Dest.String()).
				Msg("transport: i2c destination does not match chardev destination, discarding")
			observability.RecordFrameDropped(local, dropBusDestMismatch)
			continue
		}

		observability.RecordFrameReceived(local, frame.HeaderLen+len(f.Payload))
		if err := r.stack.Inbound(pkt); err != nil {
			log.Error().Err(err).Str("local", local).Msg("transport: processing inbound packet")
			observability.RecordInboundError(local)
		}
	}
}

func (r *Receiver) fatal(op string, err error) error {
	log.Error().Err(err).Str("local", r.addr.Local.String()).Str("op", op).Bool("fatal", true).
		Msg("transport: receive stream broken")
	observability.RecordFatal(r.addr.Local.String(), op)
	return &FatalError{Op: op, Err: err}
}
