package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/i2cmctp/internal/mctp"
	"github.com/danmuck/i2cmctp/internal/protocol"
	"github.com/danmuck/i2cmctp/internal/transport"
)

// Kind selects the node behaviour.
type Kind string

const (
	KindEcho      Kind = "echo"
	KindInitiator Kind = "initiator"
)

// Environment overrides understood by both node kinds.
const (
	EnvSocket = "UNIX_SOCKET"
	EnvServer = "SERVER"
	EnvPEC    = "PEC"
)

const DefaultSocketPath = "vi2c_bus.sock"

var ErrInvalidConfig = errors.New("config: invalid")

// NodeConfig is the complete startup configuration of one endpoint. It is
// read once and treated as immutable afterwards.
type NodeConfig struct {
	Name               string
	Kind               Kind
	Role               transport.Role
	SocketPath         string
	Addressing         transport.Addressing
	OwnEID             mctp.EID
	PeerEID            mctp.EID
	MsgType            mctp.MsgType
	Timeout            time.Duration
	Receiver           transport.ReceiverConfig
	Stack              mctp.StackConfig
	MaxConnectAttempts int
	Backoff            transport.BackoffConfig
	StatusAddr         string
	CorsOrigins        []string
	// Message is the initiator's request payload.
	Message string
	// Count is how many requests an echo node answers; 0 means until the
	// connection ends.
	Count int
}

// DefaultNodeConfig mirrors the two emulator test endpoints: the echo
// responder listens at 0x20/EID 8, the initiator dials from 0x10/EID 9.
func DefaultNodeConfig(kind Kind) NodeConfig {
	cfg := NodeConfig{
		Name:       string(kind),
		Kind:       kind,
		SocketPath: DefaultSocketPath,
		MsgType:    mctp.MsgTypePLDM,
		Timeout:    10 * time.Second,
		Receiver:   transport.DefaultReceiverConfig(),
		Stack:      mctp.DefaultStackConfig(),
		Backoff:    transport.DefaultBackoffConfig(),
		Message:    "Hello World!",
		Count:      1,
	}
	switch kind {
	case KindInitiator:
		cfg.Role = transport.RoleClient
		cfg.Addressing = transport.Addressing{Local: 0x10, Peer: 0x20}
		cfg.OwnEID = 9
		cfg.PeerEID = 8
		cfg.MaxConnectAttempts = 1
	default:
		cfg.Role = transport.RoleServer
		cfg.Addressing = transport.Addressing{Local: 0x20, Peer: 0x10}
		cfg.OwnEID = 8
		cfg.PeerEID = 9
	}
	return cfg
}

type fileConfig struct {
	Name              string   `toml:"name"`
	Role              string   `toml:"role"`
	Socket            string   `toml:"socket"`
	OwnAddr           string   `toml:"own_addr"`
	PeerAddr          string   `toml:"peer_addr"`
	PEC               bool     `toml:"pec"`
	OwnEID            int      `toml:"own_eid"`
	PeerEID           int      `toml:"peer_eid"`
	MsgType           int      `toml:"msg_type"`
	Timeout           string   `toml:"timeout"`
	MaxDecodeErrors   int      `toml:"max_decode_errors"`
	ConnectAttempts   int      `toml:"connect_attempts"`
	ReassemblyTimeout string   `toml:"reassembly_timeout"`
	StatusAddr        string   `toml:"status_addr"`
	CorsOrigins       []string `toml:"cors_origins"`
	Message           string   `toml:"message"`
	Count             int      `toml:"count"`
}

// LoadNodeConfig starts from the kind's defaults and applies only the keys
// present in the file at path.
func LoadNodeConfig(path string, kind Kind) (NodeConfig, error) {
	cfg := DefaultNodeConfig(kind)

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return NodeConfig{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}
	if err := applyFile(&cfg, raw, meta); err != nil {
		return NodeConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return cfg, nil
}

func applyFile(cfg *NodeConfig, raw fileConfig, meta toml.MetaData) error {
	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Name = name
		}
	}
	if meta.IsDefined("role") {
		role, err := ParseRole(raw.Role)
		if err != nil {
			return err
		}
		cfg.Role = role
	}
	if meta.IsDefined("socket") {
		cfg.SocketPath = strings.TrimSpace(raw.Socket)
	}
	if meta.IsDefined("own_addr") {
		a, err := protocol.ParseAddr(raw.OwnAddr)
		if err != nil {
			return fmt.Errorf("parse own_addr: %w", err)
		}
		cfg.Addressing.Local = a
	}
	if meta.IsDefined("peer_addr") {
		a, err := protocol.ParseAddr(raw.PeerAddr)
		if err != nil {
			return fmt.Errorf("parse peer_addr: %w", err)
		}
		cfg.Addressing.Peer = a
	}
	if meta.IsDefined("pec") {
		cfg.Addressing.PEC = raw.PEC
	}
	if meta.IsDefined("own_eid") {
		cfg.OwnEID = mctp.EID(raw.OwnEID)
		if raw.OwnEID < 0 || raw.OwnEID > 0xff {
			return fmt.Errorf("%w: own_eid %d", ErrInvalidConfig, raw.OwnEID)
		}
	}
	if meta.IsDefined("peer_eid") {
		cfg.PeerEID = mctp.EID(raw.PeerEID)
		if raw.PeerEID < 0 || raw.PeerEID > 0xff {
			return fmt.Errorf("%w: peer_eid %d", ErrInvalidConfig, raw.PeerEID)
		}
	}
	if meta.IsDefined("msg_type") {
		if raw.MsgType < 0 || raw.MsgType > 0x7f {
			return fmt.Errorf("%w: msg_type %d", ErrInvalidConfig, raw.MsgType)
		}
		cfg.MsgType = mctp.MsgType(raw.MsgType)
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("reassembly_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReassemblyTimeout))
		if err != nil {
			return fmt.Errorf("parse reassembly_timeout: %w", err)
		}
		cfg.Stack.ReassemblyTimeout = d
	}
	if meta.IsDefined("max_decode_errors") {
		cfg.Receiver.MaxDecodeErrors = raw.MaxDecodeErrors
	}
	if meta.IsDefined("connect_attempts") {
		cfg.MaxConnectAttempts = raw.ConnectAttempts
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}
	if meta.IsDefined("message") {
		cfg.Message = raw.Message
	}
	if meta.IsDefined("count") {
		cfg.Count = raw.Count
	}
	return nil
}

// ApplyEnv applies the emulator environment overrides. UNIX_SOCKET sets the
// socket path and the presence of PEC enables packet error codes. SERVER
// only applies to echo nodes: true or 1 listens, any other value connects.
// Initiators always connect.
func ApplyEnv(cfg *NodeConfig, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvSocket); ok && strings.TrimSpace(v) != "" {
		cfg.SocketPath = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvServer); ok && cfg.Kind == KindEcho {
		switch strings.TrimSpace(v) {
		case "true", "1":
			cfg.Role = transport.RoleServer
		default:
			cfg.Role = transport.RoleClient
		}
	}
	if _, ok := lookup(EnvPEC); ok {
		cfg.Addressing.PEC = true
	}
}

func ParseRole(raw string) (transport.Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "server", "listen":
		return transport.RoleServer, nil
	case "client", "connect":
		return transport.RoleClient, nil
	default:
		return 0, fmt.Errorf("%w: role %q", ErrInvalidConfig, raw)
	}
}

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindEcho:
		return KindEcho, nil
	case KindInitiator:
		return KindInitiator, nil
	default:
		return "", fmt.Errorf("%w: kind %q", ErrInvalidConfig, raw)
	}
}

func ValidateNodeConfig(cfg NodeConfig) error {
	if _, err := ParseKind(string(cfg.Kind)); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.SocketPath) == "" {
		return fmt.Errorf("%w: socket path required", ErrInvalidConfig)
	}
	if err := cfg.Addressing.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !cfg.OwnEID.Valid() {
		return fmt.Errorf("%w: own eid %d", ErrInvalidConfig, cfg.OwnEID)
	}
	if !cfg.PeerEID.Valid() {
		return fmt.Errorf("%w: peer eid %d", ErrInvalidConfig, cfg.PeerEID)
	}
	if cfg.OwnEID == cfg.PeerEID {
		return fmt.Errorf("%w: own and peer eid are both %d", ErrInvalidConfig, cfg.OwnEID)
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	if cfg.Receiver.MaxDecodeErrors < 0 {
		return fmt.Errorf("%w: negative max_decode_errors", ErrInvalidConfig)
	}
	if cfg.Count < 0 {
		return fmt.Errorf("%w: negative count", ErrInvalidConfig)
	}
	return nil
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
