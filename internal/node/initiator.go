package node

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// RunInitiator sends msg to the configured peer and returns the payload of
// its response.
func (n *Node) RunInitiator(ctx context.Context, msg []byte) ([]byte, error) {
	if err := n.requireStarted(); err != nil {
		return nil, err
	}
	req, err := n.stack.Request(n.cfg.PeerEID, n.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	defer req.Close()

	bound, cancel := n.boundContext(ctx)
	defer cancel()

	if err := req.Send(n.cfg.MsgType, msg); err != nil {
		return nil, fmt.Errorf("initiator: send to %s: %w", n.cfg.PeerEID, err)
	}
	log.Info().
		Str("node", n.cfg.Name).
		Str("dest", n.cfg.PeerEID.String()).
		Int("len", len(msg)).
		Msg("initiator: request sent")

	resp, err := req.Recv(bound)
	if err != nil {
		return nil, n.stopErr(bound, err)
	}
	log.Info().
		Str("node", n.cfg.Name).
		Str("src", resp.Source.String()).
		Int("len", len(resp.Payload)).
		Str("payload", string(resp.Payload)).
		Msg("initiator: response received")
	return resp.Payload, nil
}
