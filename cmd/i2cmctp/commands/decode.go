package commands

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/danmuck/i2cmctp/internal/mctp"
	"github.com/danmuck/i2cmctp/internal/protocol/frame"
	"github.com/danmuck/i2cmctp/internal/protocol/smbus"
	"github.com/kr/pretty"
	"github.com/spf13/cobra"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "decodes one captured chardev frame",
	Long: `decode parses a chardev frame written as hex (spaces, colons and a 0x
prefix are ignored) and prints the chardev header, the SMBus envelope and
the MCTP transport header.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := parseHex(strings.Join(args, ""))
		if err != nil {
			return err
		}
		d, err := decodeFrame(raw, pec)
		if err != nil {
			return err
		}
		_, err = pretty.Fprintf(cmd.OutOrStdout(), "%# v\n", d)
		return err
	},
}

type decodedFrame struct {
	Chardev frame.Header
	Bus     smbus.Header
	MCTP    mctp.Header
	Type    mctp.MsgType
	IC      bool
	Body    string
}

func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(s)
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return raw, nil
}

func decodeFrame(raw []byte, pec bool) (decodedFrame, error) {
	if len(raw) < frame.HeaderLen {
		return decodedFrame{}, fmt.Errorf("decode: %w", frame.ErrShortHeader)
	}
	h, err := frame.DecodeHeader(raw[:frame.HeaderLen])
	if err != nil {
		return decodedFrame{}, fmt.Errorf("decode: %w", err)
	}
	payload := raw[frame.HeaderLen:]
	if len(payload) < int(h.Len) {
		return decodedFrame{}, fmt.Errorf("decode: %w: want %d bytes, have %d", frame.ErrShortPayload, h.Len, len(payload))
	}
	payload = payload[:h.Len]

	pkt, bh, err := smbus.New(h.Dst).Decode(payload, pec)
	if err != nil {
		return decodedFrame{}, fmt.Errorf("decode: %w", err)
	}
	mh, err := mctp.DecodeHeader(pkt)
	if err != nil {
		return decodedFrame{}, fmt.Errorf("decode: %w", err)
	}
	d := decodedFrame{Chardev: h, Bus: bh, MCTP: mh}
	body := pkt[mctp.HeaderLen:]
	if mh.SOM && len(body) > 0 {
		d.Type = mctp.MsgType(body[0] & 0x7f)
		d.IC = body[0]&0x80 != 0
		body = body[1:]
	}
	d.Body = fmt.Sprintf("%q", body)
	return d, nil
}
