package main

import (
	"fmt"
	"os"

	"github.com/danmuck/qlang/internal/observability"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "qlang: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "qlang",
		Short: "Q-Lang binary instruction protocol tools",
		Long: `qlang encodes, decodes and serves Q-Lang instructions.

A Q-Lang instruction is a 5-byte header (command id, context flag)
followed by a raw payload. The device resolves each (command id,
context) pair to a concrete operation through its SoC table.

Examples:
  qlang encode --cmd 1 --ctx 1 --payload weights_v2
  qlang decode 0100000001776569676874735f7632
  qlang resolve --cmd 1 --ctx 0
  qlang serve
  qlang send --url ws://127.0.0.1:9400/v1/frames --op 1:0:weights_v2
  qlang bench`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			observability.InitLogger("qlang")
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default qlang.toml if present)")

	root.AddCommand(
		encodeCmd(),
		decodeCmd(),
		resolveCmd(&configPath),
		serveCmd(&configPath),
		sendCmd(),
		benchCmd(&configPath),
		configCmd(&configPath),
	)
	return root
}
