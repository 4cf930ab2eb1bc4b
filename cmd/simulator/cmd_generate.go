package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/interferometer-simulator/core"
	"github.com/signalsfoundry/interferometer-simulator/internal/observability"
	"github.com/signalsfoundry/interferometer-simulator/internal/sim"
	"github.com/signalsfoundry/interferometer-simulator/internal/transmit"
	"github.com/signalsfoundry/interferometer-simulator/model"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Synthesize an intensity series and print its summary",
		Long: `Synthesize an intensity series from the configured parameters.

By default a summary is printed. With --dump every sample is written to
stdout in the transmitted record format instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := commandLogger(cmd, cfg)
			ctx := cmd.Context()

			shutdown, err := observability.InitTracing(ctx, cfg.Tracing(), log)
			if err != nil {
				return err
			}
			defer observability.ShutdownWithTimeout(ctx, shutdown, log)

			session := sim.NewSession(nil, sim.WithLogger(log))
			res, err := session.Generate(ctx, cfg.Simulation, cfg.Seed)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dump, _ := cmd.Flags().GetBool("dump"); dump {
				return dumpRecords(out, session.Values(), cfg.Transmit.Precision, cfg.Transmit.Terminator)
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			return printResult(out, res, jsonOut)
		},
	}
	addSimulationFlags(cmd)
	cmd.Flags().Bool("dump", false, "Write every sample as a record instead of a summary")
	return cmd
}

func dumpRecords(w io.Writer, values []float64, precision int, terminator string) error {
	var buf []byte
	for _, v := range values {
		buf = transmit.FormatRecord(buf[:0], v, precision, terminator)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func printResult(w io.Writer, res sim.Result, jsonOut bool) error {
	if jsonOut {
		return json.NewEncoder(w).Encode(map[string]any{
			"run_id":            res.RunID,
			"seed":              res.Seed,
			"path_count":        res.Config.PathCount,
			"sample_count":      res.Config.SampleCount,
			"sampling_interval": res.Config.SamplingInterval,
			"wavelength":        res.Config.Wavelength,
			"noise_frequencies": res.Config.NoiseFrequencies,
			"mode":              synthesisMode(res.Config.Mode),
			"mean":              res.Summary.Mean,
			"std_dev":           res.Summary.StdDev,
			"min":               res.Summary.Min,
			"max":               res.Summary.Max,
			"baseline":          res.Summary.Baseline,
			"duration_ms":       res.Duration.Milliseconds(),
		})
	}
	_, err := fmt.Fprintf(w, `run      %s
seed     %d
paths    %d
samples  %d (interval %g, wavelength %g)
noise    %s (%s)
mean     %.6f (baseline %.6f)
std dev  %.6f
range    [%.6f, %.6f]
took     %v
`,
		res.RunID, res.Seed,
		res.Config.PathCount, res.Config.SampleCount, res.Config.SamplingInterval, res.Config.Wavelength,
		core.FormatNoiseFrequencies(res.Config.NoiseFrequencies), synthesisMode(res.Config.Mode),
		res.Summary.Mean, res.Summary.Baseline, res.Summary.StdDev,
		res.Summary.Min, res.Summary.Max, res.Duration,
	)
	return err
}

func synthesisMode(m model.SynthesisMode) model.SynthesisMode {
	if m == "" {
		return model.SynthesisStandard
	}
	return m
}
