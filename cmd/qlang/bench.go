package main

import (
	"fmt"

	"github.com/danmuck/qlang/internal/baseline"
	"github.com/danmuck/qlang/internal/bench"
	"github.com/spf13/cobra"
)

func benchCmd(configPath *string) *cobra.Command {
	var (
		iterations int
		output     string
		codecs     []string
		noSave     bool
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Compare Q-Lang against JSON, CBOR and MessagePack",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("iterations") {
				cfg.Bench.Iterations = iterations
			}
			if cmd.Flags().Changed("output") {
				cfg.Bench.Output = output
			}

			selected := baseline.All()
			if len(codecs) > 0 {
				selected = selected[:0:0]
				for _, name := range codecs {
					c, err := baseline.ByName(name)
					if err != nil {
						return err
					}
					selected = append(selected, c)
				}
			}

			inst := bench.DefaultInstruction()
			inst.Payload = []byte(cfg.Bench.Payload)
			results, err := bench.Run(cmd.Context(), selected, bench.Options{
				Iterations:  cfg.Bench.Iterations,
				Duration:    cfg.BenchDuration(),
				Instruction: &inst,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := bench.WriteTable(out, results); err != nil {
				return err
			}
			if imps, err := bench.Improvements(results); err == nil {
				fmt.Fprintln(out)
				if err := bench.WriteImprovements(out, imps); err != nil {
					return err
				}
			}
			if noSave {
				return nil
			}
			if err := bench.SaveJSON(cfg.Bench.Output, results); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nresults saved to %s\n", cfg.Bench.Output)
			return nil
		},
	}

	cmd.Flags().IntVarP(&iterations, "iterations", "n", 0, "Iterations per timing loop (overrides bench.iterations)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Results file (overrides bench.output)")
	cmd.Flags().StringSliceVar(&codecs, "codec", nil, "Codecs to run (default all)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not write the results file")
	return cmd
}
