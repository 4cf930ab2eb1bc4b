package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/interferometer-simulator/internal/logging"
	"github.com/signalsfoundry/interferometer-simulator/internal/observability"
	"github.com/signalsfoundry/interferometer-simulator/internal/receiver"
	"github.com/signalsfoundry/interferometer-simulator/internal/transport"
	"github.com/signalsfoundry/interferometer-simulator/model"
)

func newReceiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Read records from a serial port and print the decoded samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Receive.Port.Name, _ = flags.GetString("port")
			}
			if flags.Changed("baud") {
				cfg.Receive.Port.BaudRate, _ = flags.GetInt("baud")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log := commandLogger(cmd, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			metrics, err := observability.NewStreamCollector(reg)
			if err != nil {
				return err
			}
			addr, _ := flags.GetString("metrics-addr")
			if srv := serveMetrics(addr, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), log); srv != nil {
				defer srv.Close()
			}

			var src io.Reader
			if useStdin, _ := flags.GetBool("stdin"); useStdin {
				src = cmd.InOrStdin()
			} else {
				if cfg.Receive.Port.Name == "" {
					return errNoPort
				}
				port, err := transport.OpenSerialReader(cfg.Receive.Port, cfg.Receive.ReadTimeout)
				if err != nil {
					return err
				}
				defer port.Close()
				src = port
			}

			jsonOut, _ := flags.GetBool("json")
			out := cmd.OutOrStdout()
			r := receiver.New(sampleSink(out, jsonOut), receiver.WithLogger(log), receiver.WithMetrics(metrics))
			err = r.Run(ctx, src)

			received, discarded := r.Counts()
			log.Info(ctx, "receiver finished",
				logging.Int("received", received),
				logging.Int("discarded", discarded),
			)
			return err
		},
	}
	cmd.Flags().String("port", "", "Serial port device (overrides config)")
	cmd.Flags().Int("baud", 0, "Serial baud rate (overrides config)")
	cmd.Flags().Bool("stdin", false, "Read records from stdin instead of a serial port")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

func sampleSink(w io.Writer, jsonOut bool) receiver.Sink {
	if jsonOut {
		enc := json.NewEncoder(w)
		return func(s model.Sample) {
			_ = enc.Encode(struct {
				ReceivedAt time.Time `json:"received_at"`
				Value      float64   `json:"value"`
			}{s.ReceivedAt, s.Value})
		}
	}
	return func(s model.Sample) {
		fmt.Fprintf(w, "%s\t%g\n", s.ReceivedAt.Format(time.RFC3339Nano), s.Value)
	}
}
