package node

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/i2cmctp/internal/config"
	"github.com/danmuck/i2cmctp/internal/mctp"
	"github.com/danmuck/i2cmctp/internal/protocol/frame"
	"github.com/danmuck/i2cmctp/internal/testutil/testlog"
	"github.com/danmuck/i2cmctp/internal/transport"
	"github.com/google/go-cmp/cmp"
)

func pipeNodes(t *testing.T) (*Node, *Node) {
	t.Helper()
	a, b := net.Pipe()
	echo, err := New(transport.NewConn(a, transport.RoleServer, ""), config.DefaultNodeConfig(config.KindEcho))
	if err != nil {
		t.Fatalf("new echo node: %v", err)
	}
	initiator, err := New(transport.NewConn(b, transport.RoleClient, ""), config.DefaultNodeConfig(config.KindInitiator))
	if err != nil {
		t.Fatalf("new initiator node: %v", err)
	}
	t.Cleanup(func() {
		_ = initiator.Close()
		_ = echo.Close()
	})
	return echo, initiator
}

func startAll(t *testing.T, ctx context.Context, nodes ...*Node) {
	t.Helper()
	for _, n := range nodes {
		if err := n.Start(ctx); err != nil {
			t.Fatalf("start %s: %v", n.Config().Name, err)
		}
	}
}

func TestHelloWorldOverUnixSocket(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "vi2c_bus.sock")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echoCfg := config.DefaultNodeConfig(config.KindEcho)
	echoCfg.SocketPath = path
	initCfg := config.DefaultNodeConfig(config.KindInitiator)
	initCfg.SocketPath = path
	initCfg.MaxConnectAttempts = 100
	initCfg.Backoff.InitialDelay = 10 * time.Millisecond
	initCfg.Backoff.Jitter = false

	type opened struct {
		n   *Node
		err error
	}
	echoCh := make(chan opened, 1)
	go func() {
		n, err := Open(ctx, echoCfg)
		echoCh <- opened{n, err}
	}()

	initiator, err := Open(ctx, initCfg)
	if err != nil {
		t.Fatalf("open initiator: %v", err)
	}
	defer initiator.Close()
	res := <-echoCh
	if res.err != nil {
		t.Fatalf("open echo: %v", res.err)
	}
	echo := res.n
	defer echo.Close()

	startAll(t, ctx, echo, initiator)
	echoErr := make(chan error, 1)
	go func() { echoErr <- echo.RunEcho(ctx) }()

	got, err := initiator.RunInitiator(ctx, []byte("Hello World!"))
	if err != nil {
		t.Fatalf("run initiator: %v", err)
	}
	if string(got) != "Hello World!" {
		t.Fatalf("unexpected echo: %q", got)
	}
	if err := <-echoErr; err != nil {
		t.Fatalf("run echo: %v", err)
	}

	if err := initiator.Close(); err != nil {
		t.Fatalf("close initiator: %v", err)
	}
	if err := echo.Wait(); err != nil {
		t.Fatalf("expected clean peer close, got %v", err)
	}
	if err := echo.Close(); err != nil {
		t.Fatalf("close echo: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected socket removed, stat err=%v", err)
	}
}

func TestEchoMultiPacketMessage(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	echo, initiator := pipeNodes(t)
	startAll(t, ctx, echo, initiator)

	echoErr := make(chan error, 1)
	go func() { echoErr <- echo.RunEcho(ctx) }()

	msg := bytes.Repeat([]byte("0123456789abcdef"), 64)
	got, err := initiator.RunInitiator(ctx, msg)
	if err != nil {
		t.Fatalf("run initiator: %v", err)
	}
	if diff := cmp.Diff(msg, got); diff != "" {
		t.Fatalf("echo mismatch (-want +got):\n%s", diff)
	}
	if err := <-echoErr; err != nil {
		t.Fatalf("run echo: %v", err)
	}
}

func TestStatusTracksReceiver(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	echo, initiator := pipeNodes(t)

	if echo.Ready() {
		t.Fatalf("node should not be ready before start")
	}
	startAll(t, ctx, echo, initiator)
	st := echo.Status()
	if !st.Ready || st.Receiver != "running" {
		t.Fatalf("expected running receiver, got %+v", st)
	}
	if st.LocalAddr != "0x20" || st.PeerAddr != "0x10" || st.EID != 8 || st.Role != "server" {
		t.Fatalf("unexpected status: %+v", st)
	}

	_ = initiator.Close()
	if err := echo.Wait(); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
	if st := echo.Status(); st.Ready || st.Receiver != "stopped" {
		t.Fatalf("expected stopped receiver, got %+v", st)
	}
}

func TestFatalHeaderClosesNode(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	local, peer := net.Pipe()
	defer peer.Close()
	n, err := New(transport.NewConn(local, transport.RoleClient, ""), config.DefaultNodeConfig(config.KindInitiator))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	defer n.Close()
	startAll(t, ctx, n)

	if _, err := peer.Write([]byte{0xAB, frame.Version, 0x00, 0x00, 0x10, 0x20}); err != nil {
		t.Fatalf("write corrupt header: %v", err)
	}
	err = n.Wait()
	if !transport.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if !errors.Is(err, frame.ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
	if n.Ready() {
		t.Fatalf("node should not be ready after fatal error")
	}
}

func TestInitiatorStopsWhenPeerCloses(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	local, peer := net.Pipe()
	n, err := New(transport.NewConn(local, transport.RoleClient, ""), config.DefaultNodeConfig(config.KindInitiator))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	defer n.Close()
	startAll(t, ctx, n)

	go func() {
		_, _ = frame.ReadFrame(peer)
		_ = peer.Close()
	}()

	_, err = n.RunInitiator(ctx, []byte("Hello World!"))
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestRunRequiresStartAndKind(t *testing.T) {
	testlog.Start(t)
	echo, initiator := pipeNodes(t)

	if err := echo.RunEcho(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if _, err := initiator.RunInitiator(context.Background(), nil); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if err := initiator.RunEcho(context.Background()); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind, got %v", err)
	}
	if err := initiator.Wait(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted from Wait, got %v", err)
	}
}

func TestEchoTimesOutWithoutRequest(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, b := net.Pipe()
	cfg := config.DefaultNodeConfig(config.KindEcho)
	cfg.Timeout = 100 * time.Millisecond
	echo, err := New(transport.NewConn(a, transport.RoleServer, ""), cfg)
	if err != nil {
		t.Fatalf("new echo node: %v", err)
	}
	defer echo.Close()
	defer b.Close()
	startAll(t, ctx, echo)

	start := time.Now()
	err = echo.RunEcho(ctx)
	if !errors.Is(err, mctp.ErrTimeout) {
		t.Fatalf("expected mctp.ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("echo waited %v for a %v timeout", elapsed, cfg.Timeout)
	}
}
