package main

import (
	"fmt"

	"github.com/danmuck/qlang/internal/config"
	"github.com/danmuck/qlang/internal/protocol"
	"github.com/danmuck/qlang/internal/resolver"
	"github.com/spf13/cobra"
)

// loadConfig resolves the file layer: an explicit path must exist, the
// default path is optional.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		path = config.DefaultPath
	}
	return config.Load(path)
}

// loadTable returns the configured resolver table and checks that the device
// context belongs to it.
func loadTable(cfg config.Config) (*resolver.Table, error) {
	table := resolver.Default()
	if cfg.Device.Table != "" {
		t, err := resolver.LoadTable(cfg.Device.Table)
		if err != nil {
			return nil, err
		}
		table = t
	}
	if !table.Declared(protocol.ContextFlag(cfg.Device.Context)) {
		return nil, fmt.Errorf("%w: device context %d", resolver.ErrUndeclaredContext, cfg.Device.Context)
	}
	return table, nil
}

func configCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage qlang.toml",
	}

	var overwrite bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteTemplate(path, overwrite); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&overwrite, "force", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "device.id           = %s\n", cfg.Device.ID)
			fmt.Fprintf(out, "device.addr         = %s\n", cfg.Device.Addr)
			fmt.Fprintf(out, "device.context      = %d\n", cfg.Device.Context)
			fmt.Fprintf(out, "device.table        = %q\n", cfg.Device.Table)
			fmt.Fprintf(out, "device.cors_origins = %v\n", cfg.Device.CorsOrigins)
			fmt.Fprintf(out, "device.auth_token   = %t\n", cfg.Device.AuthToken != "")
			fmt.Fprintf(out, "bench.iterations    = %d\n", cfg.Bench.Iterations)
			fmt.Fprintf(out, "bench.duration      = %s\n", cfg.Bench.Duration)
			fmt.Fprintf(out, "bench.payload       = %q\n", cfg.Bench.Payload)
			fmt.Fprintf(out, "bench.output        = %s\n", cfg.Bench.Output)
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
