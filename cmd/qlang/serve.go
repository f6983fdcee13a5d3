package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/qlang/internal/auth"
	"github.com/danmuck/qlang/internal/device"
	"github.com/danmuck/qlang/internal/observability"
	"github.com/danmuck/qlang/internal/transport"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCmd(configPath *string) *cobra.Command {
	var (
		id    string
		addr  string
		trace bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a device that executes instructions over websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("id") {
				cfg.Device.ID = id
			}
			if cmd.Flags().Changed("addr") {
				cfg.Device.Addr = addr
			}
			table, err := loadTable(cfg)
			if err != nil {
				return err
			}

			if trace {
				shutdown := observability.InitTracer("qlang", log.Logger)
				defer func() {
					if err := shutdown(context.Background()); err != nil {
						log.Warn().Err(err).Msg("tracer shutdown failed")
					}
				}()
			}

			dev := device.New(cfg.Device.ID, table, device.WithLogger(log.Logger))
			var opts []transport.ServerOption
			if cfg.Device.AuthToken != "" {
				opts = append(opts, transport.WithValidator(auth.StaticToken{Token: cfg.Device.AuthToken}))
			}
			srv := transport.NewServer(dev, cfg.Device.Addr, cfg.Device.CorsOrigins, opts...)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log.Info().
				Str("device", cfg.Device.ID).
				Str("addr", cfg.Device.Addr).
				Int("commands", table.Len()).
				Msg("serving")
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Device id (overrides device.id)")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides device.addr)")
	cmd.Flags().BoolVar(&trace, "trace", false, "Log an OpenTelemetry span per executed instruction")
	return cmd
}
