package mctp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/creachadair/mds/queue"
)

// ReqChannel sends requests to one peer and receives their responses.
type ReqChannel struct {
	stack   *Stack
	peer    EID
	timeout time.Duration

	resp chan Message
	// key and deadline are guarded by stack.mu.
	key      reqKey
	tagged   bool
	deadline time.Time
}

// Request opens a request channel to eid. A zero timeout waits for
// responses until the Recv context ends.
func (s *Stack) Request(eid EID, timeout time.Duration) (*ReqChannel, error) {
	if !eid.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrBadArgument, eid)
	}
	return &ReqChannel{
		stack:   s,
		peer:    eid,
		timeout: timeout,
		resp:    make(chan Message, 1),
	}, nil
}

func (r *ReqChannel) Peer() EID {
	return r.peer
}

// Send transmits one request message. Each Send allocates a fresh tag and
// supersedes any response still pending from an earlier Send.
func (r *ReqChannel) Send(typ MsgType, payload ...[]byte) error {
	s := r.stack
	s.mu.Lock()
	if r.tagged {
		s.releaseLocked(r.key)
		r.tagged = false
	}
	select {
	case <-r.resp:
	default:
	}
	v, err := s.allocTagLocked(r.peer, r)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	r.key = reqKey{peer: r.peer, tag: v}
	r.tagged = true
	if r.timeout > 0 {
		r.deadline = s.now().Add(r.timeout)
	} else {
		r.deadline = time.Time{}
	}
	key := r.key
	s.mu.Unlock()

	tag := Tag{Value: v, Owner: true}
	sent, err := s.send(r.peer, typ, tag, payload...)
	if err != nil {
		s.release(key, r)
		return err
	}
	if sent != tag {
		s.release(key, r)
		return fmt.Errorf("%w: sent with %s, allocated %s", ErrInvalidInput, sent, tag)
	}
	return nil
}

// Recv waits for the response to the last Send.
func (r *ReqChannel) Recv(ctx context.Context) (Message, error) {
	s := r.stack
	s.mu.Lock()
	tagged, key := r.tagged, r.key
	s.mu.Unlock()
	if !tagged {
		return Message{}, fmt.Errorf("%w: no request outstanding", ErrBadArgument)
	}

	var timeout <-chan time.Time
	if r.timeout > 0 {
		timer := time.NewTimer(r.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case msg := <-r.resp:
		s.mu.Lock()
		if r.tagged && r.key == key {
			s.releaseLocked(key)
			r.tagged = false
		}
		s.mu.Unlock()
		return msg, nil
	case <-timeout:
		return Message{}, ErrTimeout
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Close releases the channel's tag, if any.
func (r *ReqChannel) Close() {
	s := r.stack
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.tagged && s.requests[r.key] == r {
		s.releaseLocked(r.key)
	}
	r.tagged = false
}

// Listener receives requests of one message type.
type Listener struct {
	stack   *Stack
	typ     MsgType
	timeout time.Duration
	limit   int

	mu      sync.Mutex
	pending *queue.Queue[Message]
	notify  chan struct{}
	closed  bool
}

// Listener registers for requests of type typ. A zero timeout makes Recv
// wait until its context ends.
func (s *Stack) Listener(typ MsgType, timeout time.Duration) (*Listener, error) {
	if typ > maxMsgType {
		return nil, fmt.Errorf("%w: message type 0x%02x", ErrBadArgument, uint8(typ))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listeners[typ]; ok {
		return nil, fmt.Errorf("%w: type 0x%02x", ErrAddrInUse, uint8(typ))
	}
	l := &Listener{
		stack:   s,
		typ:     typ,
		timeout: timeout,
		limit:   s.cfg.ListenerQueue,
		pending: queue.New[Message](),
		notify:  make(chan struct{}, 1),
	}
	s.listeners[typ] = l
	return l, nil
}

func (l *Listener) Type() MsgType {
	return l.typ
}

// deliver is called with stack.mu held.
func (l *Listener) deliver(msg Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.pending.Len() >= l.limit {
		return fmt.Errorf("%w: listener type 0x%02x", ErrNoSpace, uint8(l.typ))
	}
	l.pending.Add(msg)
	select {
	case l.notify <- struct{}{}:
	default:
	}
	return nil
}

// Recv returns the next request and a channel for answering it.
func (l *Listener) Recv(ctx context.Context) (Message, *RespChannel, error) {
	var timeout <-chan time.Time
	if l.timeout > 0 {
		timer := time.NewTimer(l.timeout)
		defer timer.Stop()
		timeout = timer.C
	}
	for {
		l.mu.Lock()
		msg, ok := l.pending.Pop()
		closed := l.closed
		l.mu.Unlock()
		if ok {
			return msg, &RespChannel{
				stack: l.stack,
				peer:  msg.Source,
				typ:   msg.Type,
				tag:   msg.Tag.Value,
			}, nil
		}
		if closed {
			return Message{}, nil, ErrClosed
		}

		select {
		case <-l.notify:
		case <-timeout:
			return Message{}, nil, ErrTimeout
		case <-ctx.Done():
			return Message{}, nil, ctx.Err()
		}
	}
}

// Close unregisters the listener and drops queued requests.
func (l *Listener) Close() {
	s := l.stack
	s.mu.Lock()
	if s.listeners[l.typ] == l {
		delete(s.listeners, l.typ)
	}
	s.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.pending.Clear()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// RespChannel answers one received request.
type RespChannel struct {
	stack *Stack
	peer  EID
	typ   MsgType
	tag   uint8
}

func (r *RespChannel) Peer() EID {
	return r.peer
}

// Send transmits the response with the request's tag and type.
func (r *RespChannel) Send(payload ...[]byte) error {
	_, err := r.stack.send(r.peer, r.typ, Tag{Value: r.tag}, payload...)
	return err
}
