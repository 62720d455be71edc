package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Template renders the default configuration of kind as TOML.
func Template(kind string) (string, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
	out, err := toml.Marshal(toFile(DefaultNodeConfig(k)))
	if err != nil {
		return "", fmt.Errorf("render %s template: %w", k, err)
	}
	return string(out), nil
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

func toFile(cfg NodeConfig) fileConfig {
	origins := cfg.CorsOrigins
	if origins == nil {
		origins = []string{}
	}
	return fileConfig{
		Name:              cfg.Name,
		Role:              cfg.Role.String(),
		Socket:            cfg.SocketPath,
		OwnAddr:           cfg.Addressing.Local.String(),
		PeerAddr:          cfg.Addressing.Peer.String(),
		PEC:               cfg.Addressing.PEC,
		OwnEID:            int(cfg.OwnEID),
		PeerEID:           int(cfg.PeerEID),
		MsgType:           int(cfg.MsgType),
		Timeout:           cfg.Timeout.String(),
		MaxDecodeErrors:   cfg.Receiver.MaxDecodeErrors,
		ConnectAttempts:   cfg.MaxConnectAttempts,
		ReassemblyTimeout: cfg.Stack.ReassemblyTimeout.String(),
		StatusAddr:        cfg.StatusAddr,
		CorsOrigins:       origins,
		Message:           cfg.Message,
		Count:             cfg.Count,
	}
}
