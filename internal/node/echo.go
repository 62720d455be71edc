package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

var ErrWrongKind = errors.New("node: wrong kind")

// RunEcho answers requests of the configured message type by sending the
// payload back to its source. It returns after cfg.Count responses, with
// mctp.ErrTimeout if no request arrives within cfg.Timeout, or when ctx
// ends or the connection stops. With Count 0 it waits without a timeout.
func (n *Node) RunEcho(ctx context.Context) error {
	if n.listener == nil {
		return fmt.Errorf("%w: %s cannot echo", ErrWrongKind, n.cfg.Kind)
	}
	if err := n.requireStarted(); err != nil {
		return err
	}
	bound, cancel := n.boundContext(ctx)
	defer cancel()

	for answered := 0; n.cfg.Count == 0 || answered < n.cfg.Count; answered++ {
		msg, resp, err := n.listener.Recv(bound)
		if err != nil {
			if n.cfg.Count == 0 && errors.Is(context.Cause(bound), ErrStopped) && n.Wait() == nil {
				return nil
			}
			return n.stopErr(bound, err)
		}
		log.Info().
			Str("node", n.cfg.Name).
			Str("src", msg.Source.String()).
			Str("tag", msg.Tag.String()).
			Int("len", len(msg.Payload)).
			Str("payload", string(msg.Payload)).
			Msg("echo: request received")
		if err := resp.Send(msg.Payload); err != nil {
			return fmt.Errorf("echo: respond to %s: %w", msg.Source, err)
		}
	}
	return nil
}
