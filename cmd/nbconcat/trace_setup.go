package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nbconcat/internal/config"
	"nbconcat/internal/trace"
)

// setupTracing builds the tracer from the [trace] section, with any trace
// flags given on the command line taking precedence, and attaches it to the
// command context. The returned cleanup must run before exit.
func setupTracing(cmd *cobra.Command, cfg config.Config) (func(), error) {
	flags := cmd.Root().PersistentFlags()
	for _, o := range []struct {
		flag string
		dst  *string
	}{
		{"trace", &cfg.Trace.Output},
		{"trace-level", &cfg.Trace.Level},
		{"trace-mode", &cfg.Trace.Mode},
		{"trace-format", &cfg.Trace.Format},
	} {
		if !flags.Changed(o.flag) {
			continue
		}
		v, err := flags.GetString(o.flag)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s flag: %w", o.flag, err)
		}
		*o.dst = v
	}
	// an explicit output without a level means the caller wants to see something
	if flags.Changed("trace") && !flags.Changed("trace-level") && (cfg.Trace.Level == "" || cfg.Trace.Level == "off") {
		cfg.Trace.Level = "phase"
	}
	if flags.Changed("trace-ring-size") {
		n, err := flags.GetInt("trace-ring-size")
		if err != nil {
			return nil, fmt.Errorf("failed to get trace-ring-size flag: %w", err)
		}
		cfg.Trace.Ring = n
	}

	tc, err := cfg.TraceConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid trace configuration: %w", err)
	}
	tracer, err := trace.New(tc)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))
	if !tracer.Enabled() {
		return func() {}, nil
	}

	cleanup := func() {
		// a ring-only tracer has written nothing yet
		if tc.Mode == trace.ModeRing {
			if ring, ok := trace.RingOf(tracer); ok {
				if err := ring.Dump(cmd.ErrOrStderr(), tc.Format, 0); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "trace: dump error: %v\n", err)
				}
			}
		}
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
	}
	return cleanup, nil
}

// startHeartbeat starts the heartbeat requested by --trace-heartbeat on the
// context tracer. The result may be nil; Stop is nil-safe.
func startHeartbeat(cmd *cobra.Command, status func() string) (*trace.Heartbeat, error) {
	interval, err := cmd.Root().PersistentFlags().GetDuration("trace-heartbeat")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-heartbeat flag: %w", err)
	}
	return trace.StartHeartbeat(trace.FromContext(cmd.Context()), interval, status), nil
}
