// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/rwlabs/serialdevice/pkg/device"
	"github.com/rwlabs/serialdevice/pkg/metrics"
)

func MonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print every field set the device sends",
		Long: "Find the device and run the update loop, printing each field set the\n" +
			"device sends. Stops on Ctrl-C, after --count field sets, or when the\n" +
			"device goes away.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hz, err := cmd.Flags().GetFloat64("rate")
			if err != nil {
				return err
			}
			if hz <= 0 {
				return fmt.Errorf("--rate must be positive")
			}
			count, err := cmd.Flags().GetInt("count")
			if err != nil {
				return err
			}
			metricsAddr, err := cmd.Flags().GetString("metrics-addr")
			if err != nil {
				return err
			}
			enc, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			cmd.SetContext(ctx)

			log := loggerFrom(cmd)
			var m *metrics.Metrics
			if metricsAddr != "" {
				reg := metrics.NewRegistry()
				m = metrics.New(reg)
				srv := serveMetrics(metricsAddr, reg, log)
				defer srv.Close()
			}

			dev, err := openDevice(cmd, m)
			if err != nil {
				return err
			}
			defer dev.Close()
			printIdentity(cmd.ErrOrStderr(), dev.Identity())

			limiter := rate.NewLimiter(rate.Limit(hz), 1)
			return monitor(ctx, dev, limiter, cmd.OutOrStdout(), enc, count)
		},
	}

	addDeviceFlags(cmd)
	addOutputFlag(cmd)
	cmd.Flags().Float64("rate", 100, "update ticks per second")
	cmd.Flags().Int("count", 0, "stop after this many field sets (0 means no limit)")
	cmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address, for example ':9100'")
	return cmd
}

// monitor runs the update loop until ctx is done, count field sets were
// printed, or the session fails.
func monitor(ctx context.Context, dev *device.Device, limiter *rate.Limiter, w io.Writer, enc encoder, count int) error {
	printed := 0
	for count <= 0 || printed < count {
		if !nextTick(ctx, limiter) {
			return nil
		}
		if err := dev.Update(); err != nil {
			return err
		}
		if !dev.Available() {
			continue
		}
		if err := printFrame(w, enc, newFrameRecord(dev.Fields())); err != nil {
			return err
		}
		dev.ClearData()
		printed++
	}
	return nil
}

// nextTick waits for the limiter to allow the next update. It returns false
// once ctx is done, also when ctx would end before the tick.
func nextTick(ctx context.Context, limiter *rate.Limiter) bool {
	r := limiter.Reserve()
	if !r.OK() {
		return false
	}
	delay := r.Delay()
	if delay == 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return false
	case <-timer.C:
		return true
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}
