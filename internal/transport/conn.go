package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Role selects how the connection is established. After setup both sides
// are symmetric.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// OpenConfig selects the socket and how to reach it.
type OpenConfig struct {
	Path string
	Role Role
	// MaxConnectAttempts bounds client dials; <= 0 retries until ctx ends.
	MaxConnectAttempts int
	Backoff            BackoffConfig
}

// Conn is one duplex chardev connection. Split hands out its two halves
// exactly once so that each direction has a single owner.
type Conn struct {
	conn net.Conn
	role Role
	path string

	split  atomic.Bool
	closed atomic.Bool
	once   sync.Once
	err    error
}

// NewConn wraps an established stream. path is unlinked on Close when role
// is RoleServer.
func NewConn(c net.Conn, role Role, path string) *Conn {
	return &Conn{conn: c, role: role, path: path}
}

// Open listens (server) or dials (client) the chardev socket.
func Open(ctx context.Context, cfg OpenConfig) (*Conn, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, ErrSocketRequired
	}
	if cfg.Role == RoleServer {
		return listen(ctx, path)
	}
	return dial(ctx, path, cfg)
}

func listen(ctx context.Context, path string) (*Conn, error) {
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Net: "unix", Name: path})
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", path, err)
	}
	// The socket file stays while the accepted connection lives; Conn.Close
	// removes it.
	ln.SetUnlinkOnClose(false)
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	log.Info().Str("socket", path).Msg("transport: waiting for peer")
	c, err := ln.AcceptUnix()
	_ = ln.Close()
	if err != nil {
		_ = os.Remove(path)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("transport: accept %s: %w", path, err)
	}
	log.Info().Str("socket", path).Msg("transport: peer connected")
	return NewConn(c, RoleServer, path), nil
}

func dial(ctx context.Context, path string, cfg OpenConfig) (*Conn, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var d net.Dialer
	for attempt := 1; ; attempt++ {
		c, err := d.DialContext(ctx, "unix", path)
		if err == nil {
			log.Info().Str("socket", path).Int("attempt", attempt).Msg("transport: connected")
			return NewConn(c, RoleClient, path), nil
		}
		log.Warn().Str("socket", path).Int("attempt", attempt).Err(err).Msg("transport: dial failed")
		if cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts {
			return nil, fmt.Errorf("transport: dial %s: %w", path, err)
		}
		timer := time.NewTimer(NextBackoffDelay(cfg.Backoff, attempt, rng))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Conn) Role() Role {
	return c.role
}

func (c *Conn) Path() string {
	return c.path
}

func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Split returns the send and receive halves. It fails on every call after
// the first.
func (c *Conn) Split() (*SendHalf, *RecvHalf, error) {
	if !c.split.CompareAndSwap(false, true) {
		return nil, nil, ErrAlreadySplit
	}
	return &SendHalf{conn: c}, &RecvHalf{conn: c}, nil
}

// Close shuts the stream down and, for the server role, removes the socket
// file. It is safe to call more than once.
func (c *Conn) Close() error {
	c.once.Do(func() {
		c.closed.Store(true)
		if uc, ok := c.conn.(*net.UnixConn); ok {
			_ = uc.CloseWrite()
		}
		c.err = c.conn.Close()
		if c.role == RoleServer && c.path != "" {
			if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				c.err = errors.Join(c.err, fmt.Errorf("transport: remove socket: %w", err))
			}
		}
	})
	return c.err
}

// SendHalf serializes writers so one frame is always one contiguous write.
type SendHalf struct {
	conn *Conn
	mu   sync.Mutex
}

func (s *SendHalf) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn.Closed() {
		return 0, ErrConnClosed
	}
	return s.conn.conn.Write(p)
}

// RecvHalf is read by exactly one receive loop.
type RecvHalf struct {
	conn *Conn
}

var _ io.Reader = (*RecvHalf)(nil)

func (r *RecvHalf) Read(p []byte) (int, error) {
	return r.conn.conn.Read(p)
}

func (r *RecvHalf) SetReadDeadline(t time.Time) error {
	return r.conn.conn.SetReadDeadline(t)
}

func (r *RecvHalf) closed() bool {
	return r.conn.Closed()
}
