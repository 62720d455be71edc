package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/i2cmctp/internal/config"
	"github.com/danmuck/i2cmctp/internal/mctp"
	"github.com/danmuck/i2cmctp/internal/server"
	"github.com/danmuck/i2cmctp/internal/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotStarted     = errors.New("node: not started")
	ErrAlreadyStarted = errors.New("node: already started")
	ErrStopped        = errors.New("node: receiver stopped")
)

// Node owns one chardev connection together with the MCTP stack, receive
// loop and update loop that run on it.
type Node struct {
	cfg    config.NodeConfig
	conn   *transport.Conn
	sender *transport.Sender
	recv   *transport.Receiver
	stack  *mctp.Stack
	// listener is registered before the receiver starts so early requests
	// are never dropped as unhandled. Echo nodes only.
	listener *mctp.Listener
	status   *server.Server

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{}
	runErr  error
	once    sync.Once
}

// Open validates cfg and establishes the connection. For the server role
// it blocks until the peer connects or ctx ends.
func Open(ctx context.Context, cfg config.NodeConfig) (*Node, error) {
	if err := config.ValidateNodeConfig(cfg); err != nil {
		return nil, err
	}
	conn, err := transport.Open(ctx, transport.OpenConfig{
		Path:               cfg.SocketPath,
		Role:               cfg.Role,
		MaxConnectAttempts: cfg.MaxConnectAttempts,
		Backoff:            cfg.Backoff,
	})
	if err != nil {
		return nil, err
	}
	n, err := New(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return n, nil
}

// New builds a node on an already established connection.
func New(conn *transport.Conn, cfg config.NodeConfig) (*Node, error) {
	out, in, err := conn.Split()
	if err != nil {
		return nil, err
	}
	sender := transport.NewSender(out, cfg.Addressing)
	stack := mctp.NewStack(sender, cfg.Stack)
	if err := stack.SetEID(cfg.OwnEID); err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}

	n := &Node{
		cfg:    cfg,
		conn:   conn,
		sender: sender,
		recv:   transport.NewReceiver(in, cfg.Addressing, stack, cfg.Receiver),
		stack:  stack,
		done:   make(chan struct{}),
	}
	if cfg.Kind == config.KindEcho {
		// Timeout bounds each wait for a request; a node answering until
		// the connection ends waits indefinitely.
		var timeout time.Duration
		if cfg.Count > 0 {
			timeout = cfg.Timeout
		}
		l, err := stack.Listener(cfg.MsgType, timeout)
		if err != nil {
			return nil, fmt.Errorf("node: %w", err)
		}
		n.listener = l
	}
	if cfg.StatusAddr != "" {
		n.status = server.Appear(cfg.Name, cfg.StatusAddr, cfg.CorsOrigins, n)
	}
	return n, nil
}

func (n *Node) Config() config.NodeConfig {
	return n.cfg
}

func (n *Node) Stack() *mctp.Stack {
	return n.stack
}

// Start launches the receive loop, the stack update loop and, when
// configured, the status server. A fatal receive error closes the
// connection.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return ErrAlreadyStarted
	}
	n.started = true
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer close(n.done)
		err := n.recv.Run(runCtx)
		if transport.IsFatal(err) {
			log.Error().Err(err).Str("node", n.cfg.Name).Msg("node: closing connection after fatal receive error")
			_ = n.conn.Close()
		}
		n.mu.Lock()
		n.runErr = err
		n.mu.Unlock()
	}()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		mctp.UpdateLoop(runCtx, n.stack)
	}()

	if n.status != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.status.Serve(runCtx); err != nil {
				log.Error().Err(err).Str("node", n.cfg.Name).Msg("node: status server failed")
			}
		}()
	}

	log.Info().
		Str("node", n.cfg.Name).
		Str("kind", string(n.cfg.Kind)).
		Str("local", n.cfg.Addressing.Local.String()).
		Str("peer", n.cfg.Addressing.Peer.String()).
		Uint8("eid", uint8(n.cfg.OwnEID)).
		Bool("pec", n.cfg.Addressing.PEC).
		Msg("node started")
	return nil
}

// Done is closed once the receive loop has stopped.
func (n *Node) Done() <-chan struct{} {
	return n.done
}

// Wait blocks until the receive loop stops and returns its error: nil for
// a clean close, a *transport.FatalError otherwise.
func (n *Node) Wait() error {
	n.mu.Lock()
	started := n.started
	n.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	<-n.done
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.runErr
}

// Close stops every loop and closes the connection. It is safe to call more
// than once.
func (n *Node) Close() error {
	var err error
	n.once.Do(func() {
		if n.listener != nil {
			n.listener.Close()
		}
		n.mu.Lock()
		cancel := n.cancel
		n.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		err = n.conn.Close()
		n.wg.Wait()
	})
	return err
}

func (n *Node) Ready() bool {
	n.mu.Lock()
	started := n.started
	n.mu.Unlock()
	if !started {
		return false
	}
	select {
	case <-n.done:
		return false
	default:
		return n.recv.State() == transport.StateRunning
	}
}

func (n *Node) Status() server.Status {
	receiver := transport.StateStopped.String()
	ready := n.Ready()
	if ready {
		receiver = transport.StateRunning.String()
	}
	return server.Status{
		Node:      n.cfg.Name,
		Kind:      string(n.cfg.Kind),
		Role:      n.cfg.Role.String(),
		Socket:    n.cfg.SocketPath,
		LocalAddr: n.cfg.Addressing.Local.String(),
		PeerAddr:  n.cfg.Addressing.Peer.String(),
		EID:       uint8(n.stack.EID()),
		PEC:       n.cfg.Addressing.PEC,
		Receiver:  receiver,
		Ready:     ready,
	}
}

// boundContext ends when ctx does or when the receive loop stops, since no
// response can arrive after that.
func (n *Node) boundContext(ctx context.Context) (context.Context, context.CancelFunc) {
	bound, cancel := context.WithCancelCause(ctx)
	go func() {
		select {
		case <-n.done:
			cancel(ErrStopped)
		case <-bound.Done():
		}
	}()
	return bound, func() { cancel(context.Canceled) }
}

func (n *Node) requireStarted() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.started {
		return ErrNotStarted
	}
	return nil
}

// stopErr maps a context failure to the receive loop's outcome when that
// loop is what ended the wait.
func (n *Node) stopErr(bound context.Context, err error) error {
	if !errors.Is(context.Cause(bound), ErrStopped) {
		return err
	}
	if runErr := n.Wait(); runErr != nil {
		return fmt.Errorf("%w: %w", ErrStopped, runErr)
	}
	return ErrStopped
}
