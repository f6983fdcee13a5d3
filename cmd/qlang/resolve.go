package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/danmuck/qlang/internal/protocol"
	"github.com/spf13/cobra"
)

func resolveCmd(configPath *string) *cobra.Command {
	var (
		commandID uint32
		context   uint8
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a (command, context) pair, or print the table",
		Long: `Resolve a (command, context) pair against the configured SoC table.
Without --cmd the whole table is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			table, err := loadTable(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !cmd.Flags().Changed("cmd") {
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "COMMAND\tCONTEXT\tOPERATION\tCODE")
				for _, e := range table.Entries() {
					fmt.Fprintf(tw, "0x%02X\t%s\t%s\t0x%02X\n", e.CommandID, e.Context, e.Operation.Name, e.Operation.Code)
				}
				return tw.Flush()
			}

			ctx := protocol.ContextFlag(cfg.Device.Context)
			if cmd.Flags().Changed("ctx") {
				ctx = protocol.ContextFlag(context)
			}
			op, err := table.Resolve(commandID, ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, op)
			return nil
		},
	}

	cmd.Flags().Uint32Var(&commandID, "cmd", 0, "Command id")
	cmd.Flags().Uint8Var(&context, "ctx", 0, "Context flag (default device.context)")
	return cmd
}
