package mctp

import (
	"sync"
)

// loopSender fragments messages and feeds each packet straight into a peer
// stack, recording everything it emitted.
type loopSender struct {
	mtu  int
	peer *Stack

	mu      sync.Mutex
	packets [][]byte
}

func (l *loopSender) MTU() int {
	return l.mtu
}

func (l *loopSender) SendVectored(_ EID, frag *Fragmenter, payload ...[]byte) (Tag, error) {
	for {
		out := frag.Next(payload...)
		switch out.Kind {
		case OutputPacket:
			l.mu.Lock()
			l.packets = append(l.packets, out.Packet)
			l.mu.Unlock()
			if l.peer != nil {
				if err := l.peer.Inbound(out.Packet); err != nil {
					return Tag{}, err
				}
			}
		case OutputComplete:
			return out.Tag, nil
		case OutputError:
			return Tag{}, out.Err
		}
	}
}

func (l *loopSender) sent() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.packets...)
}

// newPair links two stacks with EIDs 8 and 9.
func newPair(mtu int) (a, b *Stack, as, bs *loopSender) {
	as = &loopSender{mtu: mtu}
	bs = &loopSender{mtu: mtu}
	a = NewStack(as, DefaultStackConfig())
	b = NewStack(bs, DefaultStackConfig())
	_ = a.SetEID(8)
	_ = b.SetEID(9)
	as.peer = b
	bs.peer = a
	return a, b, as, bs
}
