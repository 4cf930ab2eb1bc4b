package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/interferometer-simulator/internal/config"
	"github.com/signalsfoundry/interferometer-simulator/internal/logging"
	"github.com/signalsfoundry/interferometer-simulator/internal/observability"
	"github.com/signalsfoundry/interferometer-simulator/internal/sim"
	"github.com/signalsfoundry/interferometer-simulator/internal/transmit"
	"github.com/signalsfoundry/interferometer-simulator/internal/transport"
	"github.com/signalsfoundry/interferometer-simulator/timectrl"
)

var errNoPort = errors.New("no serial port configured")

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Synthesize a series and stream it over the serial link",
		Long: `Synthesize an intensity series and transmit it one record per cadence
tick. The command returns once every sample has been sent or on interrupt.

With --dry-run records are written to stdout instead of a serial port.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg); err != nil {
				return err
			}
			log := commandLogger(cmd, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown, err := observability.InitTracing(ctx, cfg.Tracing(), log)
			if err != nil {
				return err
			}
			defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

			reg := prometheus.NewRegistry()
			stream, err := observability.NewStreamCollector(reg)
			if err != nil {
				return err
			}
			control, err := observability.NewControlCollector(reg)
			if err != nil {
				return err
			}
			if srv := serveMetrics(cfg.Control.MetricsAddr, control.Handler(), log); srv != nil {
				defer srv.Close()
			}

			opener, err := runOpener(cmd, cfg)
			if err != nil {
				return err
			}
			opts := cfg.Transmit.Options()
			opts.StopWhenExhausted = true
			tx := transmit.NewTransmitter(opener, timectrl.NewPeriodicTask(cfg.Transmit.Cadence),
				transmit.WithOptions(opts),
				transmit.WithLogger(log),
				transmit.WithMetrics(stream),
			)
			session := sim.NewSession(tx, sim.WithLogger(log), sim.WithMetricsRecorder(control))

			res, err := session.Generate(ctx, cfg.Simulation, cfg.Seed)
			if err != nil {
				return err
			}
			if err := session.Start(ctx); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
			case <-tx.Done():
			}

			st := session.Status()
			if err := session.Stop(context.Background()); err != nil {
				return err
			}
			log.Info(ctx, "transmission finished",
				logging.String("run_id", res.RunID),
				logging.Int("sent", st.Sent),
				logging.Int("length", st.Length),
			)
			return nil
		},
	}
	addSimulationFlags(cmd)
	cmd.Flags().String("port", "", "Serial port device (overrides config)")
	cmd.Flags().Int("baud", 0, "Serial baud rate (overrides config)")
	cmd.Flags().Duration("cadence", 0, "Interval between records (overrides config)")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().Bool("dry-run", false, "Write records to stdout instead of a serial port")
	return cmd
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port.Name, _ = flags.GetString("port")
	}
	if flags.Changed("baud") {
		cfg.Port.BaudRate, _ = flags.GetInt("baud")
	}
	if flags.Changed("cadence") {
		cfg.Transmit.Cadence, _ = flags.GetDuration("cadence")
	}
	if flags.Changed("metrics-addr") {
		cfg.Control.MetricsAddr, _ = flags.GetString("metrics-addr")
	} else {
		// The standalone runner only serves metrics on request.
		cfg.Control.MetricsAddr = ""
	}
	return cfg.Validate()
}

func runOpener(cmd *cobra.Command, cfg *config.Config) (transport.Opener, error) {
	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		return transport.WriterOpener(cmd.OutOrStdout()), nil
	}
	if cfg.Port.Name == "" {
		return nil, errNoPort
	}
	return transport.SerialOpener(cfg.Port), nil
}
