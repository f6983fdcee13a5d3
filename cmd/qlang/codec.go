package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danmuck/qlang/internal/protocol"
	"github.com/danmuck/qlang/internal/protocol/wire"
	"github.com/spf13/cobra"
)

func encodeCmd() *cobra.Command {
	var (
		commandID  uint32
		context    uint8
		payload    string
		payloadHex string
		envelope   bool
		priority   uint8
		origin     uint32
		withWire   bool
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode one instruction as hex",
		Long: `Encode one instruction and print it as hex.

Examples:
  qlang encode --cmd 1 --ctx 1 --payload weights_v2
  qlang encode --cmd 2 --ctx 0 --payload-hex deadbeef --wire
  qlang encode --cmd 3 --ctx 1 --envelope --priority 2 --origin 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inst := protocol.Instruction{CommandID: commandID, Context: protocol.ContextFlag(context)}
			switch {
			case payloadHex != "":
				b, err := hex.DecodeString(payloadHex)
				if err != nil {
					return fmt.Errorf("parse --payload-hex: %w", err)
				}
				inst.Payload = b
			case payload != "":
				inst.Payload = []byte(payload)
			}

			var out []byte
			if envelope {
				env := protocol.Envelope{
					Metadata: protocol.Metadata{
						Priority:    priority,
						TimestampMS: uint64(time.Now().UnixMilli()),
						OriginID:    origin,
					},
					Instruction: inst,
				}
				out = protocol.EncodeEnvelope(env)
				if withWire {
					out = wire.EncodeEnvelope(env)
				}
			} else {
				out = protocol.EncodeInstruction(inst)
				if withWire {
					out = wire.EncodeInstruction(inst)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(out))
			return nil
		},
	}

	cmd.Flags().Uint32Var(&commandID, "cmd", 0, "Command id")
	cmd.Flags().Uint8Var(&context, "ctx", 0, "Context flag")
	cmd.Flags().StringVarP(&payload, "payload", "p", "", "Payload as text")
	cmd.Flags().StringVar(&payloadHex, "payload-hex", "", "Payload as hex (overrides --payload)")
	cmd.Flags().BoolVar(&envelope, "envelope", false, "Prefix the metadata block")
	cmd.Flags().Uint8Var(&priority, "priority", 0, "Envelope priority")
	cmd.Flags().Uint32Var(&origin, "origin", 0, "Envelope origin id")
	cmd.Flags().BoolVar(&withWire, "wire", false, "Prefix the wire version and kind bytes")
	_ = cmd.MarkFlagRequired("cmd")

	return cmd
}

func decodeCmd() *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode a hex frame",
		Long: `Decode a hex frame and print its fields.

--as selects the layout: instruction (default), envelope, response,
batch, batch-response or wire.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(args[0]), "0x"))
			if err != nil {
				return fmt.Errorf("parse hex: %w", err)
			}
			return describe(cmd.OutOrStdout(), as, b)
		},
	}

	cmd.Flags().StringVar(&as, "as", "instruction", "Frame layout")
	return cmd
}

func describe(w io.Writer, as string, b []byte) error {
	switch as {
	case "instruction":
		inst, err := protocol.DecodeInstruction(b)
		if err != nil {
			return err
		}
		printInstruction(w, "", inst)
	case "envelope":
		env, err := protocol.DecodeEnvelope(b)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "priority:     %d\n", env.Metadata.Priority)
		fmt.Fprintf(w, "timestamp_ms: %d\n", env.Metadata.TimestampMS)
		fmt.Fprintf(w, "origin_id:    %d\n", env.Metadata.OriginID)
		printInstruction(w, "", env.Instruction)
	case "response":
		resp, err := protocol.DecodeResponse(b)
		if err != nil {
			return err
		}
		printResponse(w, "", resp)
	case "batch":
		entries, err := protocol.DecodeBatch(b)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "count:        %d\n", len(entries))
		for _, e := range entries {
			prefix := fmt.Sprintf("[%d] ", e.Index)
			if e.Err != nil {
				fmt.Fprintf(w, "%serror: %v\n", prefix, e.Err)
				continue
			}
			printInstruction(w, prefix, e.Instruction)
		}
	case "batch-response":
		entries, err := protocol.DecodeBatchResponse(b)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "count:        %d\n", len(entries))
		for _, e := range entries {
			prefix := fmt.Sprintf("[%d] ", e.Index)
			if e.Err != nil {
				fmt.Fprintf(w, "%serror: %v\n", prefix, e.Err)
				continue
			}
			printResponse(w, prefix, e.Response)
		}
	case "wire":
		msg, err := wire.Decode(b)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "version:      %d\n", msg.Version)
		fmt.Fprintf(w, "kind:         %s\n", msg.Kind)
		return describe(w, wireLayout(msg.Kind), msg.Body)
	default:
		return fmt.Errorf("unknown layout %q", as)
	}
	return nil
}

func wireLayout(k wire.Kind) string {
	switch k {
	case wire.KindEnvelope:
		return "envelope"
	case wire.KindBatch:
		return "batch"
	case wire.KindResponse:
		return "response"
	case wire.KindBatchResponse:
		return "batch-response"
	default:
		return "instruction"
	}
}

func printInstruction(w io.Writer, prefix string, inst protocol.Instruction) {
	fmt.Fprintf(w, "%scommand_id:   0x%02X\n", prefix, inst.CommandID)
	fmt.Fprintf(w, "%scontext:      %s\n", prefix, inst.Context)
	fmt.Fprintf(w, "%spayload:      %q\n", prefix, inst.Payload)
}

func printResponse(w io.Writer, prefix string, resp protocol.Response) {
	fmt.Fprintf(w, "%scommand_id:   0x%02X\n", prefix, resp.CommandID)
	fmt.Fprintf(w, "%scontext:      %s\n", prefix, resp.Context)
	fmt.Fprintf(w, "%sstatus:       %s\n", prefix, resp.Status)
	fmt.Fprintf(w, "%sresult:       %q\n", prefix, resp.Result)
}
