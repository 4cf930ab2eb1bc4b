package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/interferometer-simulator/core"
	"github.com/signalsfoundry/interferometer-simulator/internal/control"
	"github.com/signalsfoundry/interferometer-simulator/model"
)

func newCtlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Drive a running control server",
	}
	cmd.PersistentFlags().String("addr", "localhost:50061", "Control server address")
	cmd.PersistentFlags().Duration("timeout", 10*time.Second, "Per-call timeout")

	cmd.AddCommand(
		newCtlGenerateCmd(),
		newCtlStatusCmd("start", "Start transmitting the published series", (*control.Client).Start),
		newCtlStatusCmd("stop", "Stop transmitting", (*control.Client).Stop),
		newCtlStatusCmd("status", "Show transmitter status", (*control.Client).Status),
	)
	return cmd
}

type statusCall func(*control.Client, context.Context, ...grpc.CallOption) (control.StatusReply, error)

func newCtlStatusCmd(use, short string, call statusCall) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				st, err := call(c, ctx)
				if err != nil {
					return err
				}
				jsonOut, _ := cmd.Flags().GetBool("json")
				return printStatus(cmd.OutOrStdout(), st, jsonOut)
			})
		},
	}
}

func newCtlGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Synthesize a new series on the server",
		Long: `Synthesize a new series on the server. Parameters left unset fall back
to the server's configured defaults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := generateRequestFromFlags(cmd)
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				reply, err := c.Generate(ctx, req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
					return json.NewEncoder(out).Encode(map[string]any{
						"run_id":      reply.RunID,
						"seed":        reply.Seed,
						"samples":     reply.Samples,
						"mean":        reply.Mean,
						"std_dev":     reply.StdDev,
						"min":         reply.Min,
						"max":         reply.Max,
						"baseline":    reply.Baseline,
						"duration_ms": reply.Duration.Milliseconds(),
					})
				}
				_, err = fmt.Fprintf(out, "run %s seed %d: %d samples, mean %.6f, std dev %.6f, range [%.6f, %.6f]\n",
					reply.RunID, reply.Seed, reply.Samples, reply.Mean, reply.StdDev, reply.Min, reply.Max)
				return err
			})
		},
	}
	addSimulationFlags(cmd)
	return cmd
}

func generateRequestFromFlags(cmd *cobra.Command) (control.GenerateRequest, error) {
	flags := cmd.Flags()
	var req control.GenerateRequest
	req.PathCount, _ = flags.GetInt("paths")
	req.SampleCount, _ = flags.GetInt("samples")
	req.SamplingInterval, _ = flags.GetFloat64("interval")
	req.Wavelength, _ = flags.GetFloat64("wavelength")
	req.Seed, _ = flags.GetUint64("seed")
	mode, _ := flags.GetString("mode")
	req.Mode = model.SynthesisMode(mode)
	if flags.Changed("frequencies") {
		raw, _ := flags.GetString("frequencies")
		freqs, err := core.ParseNoiseFrequencies(raw)
		if err != nil {
			return req, fmt.Errorf("--frequencies: %w", err)
		}
		req.NoiseFrequencies = freqs
	}
	return req, nil
}

func withClient(cmd *cobra.Command, fn func(context.Context, *control.Client) error) error {
	addr, _ := cmd.Flags().GetString("addr")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	ctx = control.WithRequestID(ctx, uuid.NewString())
	return fn(ctx, control.NewClient(conn))
}

func printStatus(w io.Writer, st control.StatusReply, jsonOut bool) error {
	if jsonOut {
		return json.NewEncoder(w).Encode(map[string]any{
			"state":      st.State,
			"cursor":     st.Cursor,
			"length":     st.Length,
			"sent":       st.Sent,
			"data_ready": st.DataReady,
			"run_id":     st.RunID,
			"seed":       st.Seed,
		})
	}
	_, err := fmt.Fprintf(w, "state=%s cursor=%d/%d sent=%d data_ready=%t run=%s seed=%d\n",
		st.State, st.Cursor, st.Length, st.Sent, st.DataReady, st.RunID, st.Seed)
	return err
}
