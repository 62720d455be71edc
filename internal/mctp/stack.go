package mctp

import (
	"fmt"
	"sync"
	"time"

	"github.com/creachadair/mds/mapset"
	"github.com/rs/zerolog/log"
)

// Sender transmits one message through a Fragmenter and returns the tag
// the message went out with. MTU bounds the fragmenter's packet size.
type Sender interface {
	SendVectored(eid EID, frag *Fragmenter, payload ...[]byte) (Tag, error)
	MTU() int
}

// StackConfig defines stack limits and timers.
type StackConfig struct {
	MaxMessage        int
	ReassemblyTimeout time.Duration
	ListenerQueue     int
	// UpdateInterval caps the delay Update asks for between calls.
	UpdateInterval time.Duration
}

func DefaultStackConfig() StackConfig {
	return StackConfig{
		MaxMessage:        DefaultMaxMessage,
		ReassemblyTimeout: 6 * time.Second,
		ListenerQueue:     64,
		UpdateInterval:    time.Second,
	}
}

func (c StackConfig) WithDefaults() StackConfig {
	def := DefaultStackConfig()
	if c.MaxMessage <= 0 {
		c.MaxMessage = def.MaxMessage
	}
	if c.ReassemblyTimeout <= 0 {
		c.ReassemblyTimeout = def.ReassemblyTimeout
	}
	if c.ListenerQueue <= 0 {
		c.ListenerQueue = def.ListenerQueue
	}
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = def.UpdateInterval
	}
	return c
}

type reqKey struct {
	peer EID
	tag  uint8
}

// Stack is one MCTP endpoint. It is safe for concurrent use; the receive
// path, the update loop and any number of requesters may share it.
type Stack struct {
	sender Sender
	cfg    StackConfig
	now    func() time.Time

	mu        sync.Mutex
	eid       EID
	reasm     map[reasmKey]*reassembly
	requests  map[reqKey]*ReqChannel
	tags      mapset.Set[reqKey]
	listeners map[MsgType]*Listener
	nextTag   uint8
}

func NewStack(sender Sender, cfg StackConfig) *Stack {
	return &Stack{
		sender:    sender,
		cfg:       cfg.WithDefaults(),
		now:       time.Now,
		reasm:     make(map[reasmKey]*reassembly),
		requests:  make(map[reqKey]*ReqChannel),
		tags:      mapset.New[reqKey](),
		listeners: make(map[MsgType]*Listener),
	}
}

func (s *Stack) SetEID(eid EID) error {
	if !eid.Valid() {
		return fmt.Errorf("%w: %s", ErrBadArgument, eid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eid = eid
	return nil
}

func (s *Stack) EID() EID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eid
}

// Inbound accepts one decoded MCTP packet from the transport.
func (s *Stack) Inbound(pkt []byte) error {
	h, err := DecodeHeader(pkt)
	if err != nil {
		return err
	}
	body := pkt[HeaderLen:]

	s.mu.Lock()
	if s.eid != EIDNull && h.Dest != s.eid && h.Dest != EIDBroadcast {
		s.mu.Unlock()
		return fmt.Errorf("%w: dest %s", ErrNotForUs, h.Dest)
	}

	key := reasmKey{source: h.Source, tag: h.Tag}
	var r *reassembly
	if h.SOM {
		if _, ok := s.reasm[key]; ok {
			log.Debug().Uint8("source", uint8(h.Source)).Str("tag", h.Tag.String()).
				Msg("mctp: restarting reassembly on new start packet")
		}
		r, err = startReassembly(h, body, s.now())
		if err != nil {
			delete(s.reasm, key)
			s.mu.Unlock()
			return err
		}
		s.reasm[key] = r
	} else {
		var ok bool
		r, ok = s.reasm[key]
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: source=%s %s", ErrUnexpected, h.Source, h.Tag)
		}
		if err := r.add(h, body, s.cfg.MaxMessage); err != nil {
			delete(s.reasm, key)
			s.mu.Unlock()
			return err
		}
	}

	if !h.EOM {
		s.mu.Unlock()
		return nil
	}
	delete(s.reasm, key)
	err = s.dispatchLocked(r.msg)
	s.mu.Unlock()
	return err
}

func (s *Stack) dispatchLocked(msg Message) error {
	if msg.Tag.Owner {
		l, ok := s.listeners[msg.Type]
		if !ok {
			return fmt.Errorf("%w: request type 0x%02x from %s", ErrUnhandled, uint8(msg.Type), msg.Source)
		}
		return l.deliver(msg)
	}

	key := reqKey{peer: msg.Source, tag: msg.Tag.Value}
	req, ok := s.requests[key]
	if !ok {
		return fmt.Errorf("%w: response from %s %s", ErrUnhandled, msg.Source, msg.Tag)
	}
	select {
	case req.resp <- msg:
	default:
		return fmt.Errorf("%w: duplicate response from %s %s", ErrNoSpace, msg.Source, msg.Tag)
	}
	return nil
}

// Update expires stale reassemblies and abandoned requests. It returns the
// delay until the next call is useful.
func (s *Stack) Update(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.UpdateInterval
	for key, r := range s.reasm {
		expiry := r.started.Add(s.cfg.ReassemblyTimeout)
		if !now.Before(expiry) {
			log.Debug().Uint8("source", uint8(key.source)).Str("tag", key.tag.String()).
				Msg("mctp: reassembly expired")
			delete(s.reasm, key)
			continue
		}
		next = min(next, expiry.Sub(now))
	}
	for key, req := range s.requests {
		if req.deadline.IsZero() {
			continue
		}
		if !now.Before(req.deadline) {
			s.releaseLocked(key)
			continue
		}
		next = min(next, req.deadline.Sub(now))
	}
	return next
}

func (s *Stack) allocTagLocked(peer EID, req *ReqChannel) (uint8, error) {
	for i := range uint8(MaxTagValue + 1) {
		v := (s.nextTag + i) & tagMask
		key := reqKey{peer: peer, tag: v}
		if s.tags.Has(key) {
			continue
		}
		s.tags.Add(key)
		s.requests[key] = req
		s.nextTag = (v + 1) & tagMask
		return v, nil
	}
	return 0, fmt.Errorf("%w: peer %s", ErrTagUnavailable, peer)
}

func (s *Stack) releaseLocked(key reqKey) {
	s.tags.Remove(key)
	delete(s.requests, key)
}

func (s *Stack) release(key reqKey, req *ReqChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requests[key] == req {
		s.releaseLocked(key)
	}
}

func (s *Stack) send(dest EID, typ MsgType, tag Tag, payload ...[]byte) (Tag, error) {
	frag, err := NewFragmenter(typ, s.EID(), dest, tag, s.sender.MTU(), false)
	if err != nil {
		return Tag{}, err
	}
	frag.SetMaxMessage(s.cfg.MaxMessage)
	return s.sender.SendVectored(dest, frag, payload...)
}
