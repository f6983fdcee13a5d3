package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/qlang/internal/protocol"
	"github.com/danmuck/qlang/internal/transport"
	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	var (
		url     string
		token   string
		ops     []string
		timeout time.Duration
		retries int
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send instructions to a running device",
		Long: `Send instructions to a running device.

Each --op is "cmd:ctx[:payload]". One --op is sent as a single
instruction; several are sent as one batch.

Examples:
  qlang send --op 1:0:weights_v2
  qlang send --op 1:1:weights_v2 --op 2:0:cache_data --op 3:1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := parseOps(ops)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, err := transport.DialRetry(ctx, url, retries+1, transport.DefaultBackoff(), transport.WithToken(token))
			if err != nil {
				return err
			}
			defer client.Close()

			out := cmd.OutOrStdout()
			if len(batch) == 1 {
				resp, err := client.Do(ctx, batch[0])
				if err != nil {
					return err
				}
				printResponse(out, "", resp)
				return nil
			}
			resps, err := client.DoBatch(ctx, batch)
			if err != nil {
				return err
			}
			printBatch(out, resps)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "ws://127.0.0.1:9400"+transport.FramesPath, "Device frame stream URL")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token for the device")
	cmd.Flags().StringArrayVar(&ops, "op", nil, "Instruction as cmd:ctx[:payload] (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	cmd.Flags().IntVar(&retries, "retries", 0, "Extra dial attempts with backoff")
	_ = cmd.MarkFlagRequired("op")
	return cmd
}

func parseOps(ops []string) (protocol.Batch, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("at least one --op is required")
	}
	batch := make(protocol.Batch, 0, len(ops))
	for _, op := range ops {
		parts := strings.SplitN(op, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("op %q: want cmd:ctx[:payload]", op)
		}
		commandID, err := strconv.ParseUint(parts[0], 0, 32)
		if err != nil {
			return nil, fmt.Errorf("op %q: command id: %w", op, err)
		}
		ctx, err := strconv.ParseUint(parts[1], 0, 8)
		if err != nil {
			return nil, fmt.Errorf("op %q: context: %w", op, err)
		}
		inst := protocol.Instruction{CommandID: uint32(commandID), Context: protocol.ContextFlag(ctx)}
		if len(parts) == 3 && parts[2] != "" {
			inst.Payload = []byte(parts[2])
		}
		batch = append(batch, inst)
	}
	return batch, nil
}

func printBatch(w io.Writer, resps protocol.BatchResponse) {
	for i, resp := range resps {
		printResponse(w, fmt.Sprintf("[%d] ", i), resp)
	}
}
