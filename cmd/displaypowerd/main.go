// SPDX-License-Identifier: GPL-3.0-only

// Package main provides the entry point for the display power daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shini4i/displaypowerd/internal/config"
	"github.com/shini4i/displaypowerd/internal/dbus"
	"github.com/shini4i/displaypowerd/internal/power"
)

const clientTimeout = 5 * time.Second

var (
	verbose    bool
	configPath string
	busName    string

	requestFlags struct {
		state          string
		brightness     uint32
		auto           bool
		adjustment     float64
		proximity      bool
		block          bool
		responsiveness float64
		waitNegative   bool
	}
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "displaypowerd",
		Short: "Adaptive display power and brightness daemon",
		Long: `displaypowerd drives a display backlight from power requests, an ambient
light sensor and a proximity sensor.

It ramps brightness smoothly, plays screen on/off transitions, turns the screen
off while something is close to the proximity sensor and exposes its state on
D-Bus and, optionally, MQTT.`,
		SilenceUsage: true,
		RunE:         runCmd,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: search /etc/displaypowerd, ~/.config/displaypowerd, .)")

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon",
		RunE:  runCmd,
	}

	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print the internal state of a running daemon",
		RunE:  dumpCmd,
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Print the state of a running daemon",
		RunE:  statusCmd,
	}

	request := &cobra.Command{
		Use:   "request",
		Short: "Send a power request to a running daemon",
		RunE:  requestCmd,
	}
	f := request.Flags()
	f.StringVar(&requestFlags.state, "state", "bright", "Screen state: off, dim or bright")
	f.Uint32Var(&requestFlags.brightness, "brightness", 0, "Manual brightness in device units")
	f.BoolVar(&requestFlags.auto, "auto", false, "Use auto-brightness")
	f.Float64Var(&requestFlags.adjustment, "adjustment", 0, "Auto-brightness adjustment in [-1, 1]")
	f.BoolVar(&requestFlags.proximity, "proximity", false, "Turn the screen off while something is near")
	f.BoolVar(&requestFlags.block, "block", false, "Keep a dark screen dark")
	f.Float64Var(&requestFlags.responsiveness, "responsiveness", 1, "Time constant multiplier for filters and debounces")
	f.BoolVar(&requestFlags.waitNegative, "wait-negative", false, "Stay off until the proximity sensor reports far")

	for _, c := range []*cobra.Command{dump, status, request} {
		c.Flags().StringVar(&busName, "bus", string(dbus.SessionBus), "Bus the daemon is on: session or system")
		root.AddCommand(c)
	}
	root.AddCommand(run)
	return root
}

func runCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	closer := setupLogging(cfg.Logging, verbose)
	defer func() {
		_ = closer.Close()
	}()

	log.Info().Msg("Starting displaypowerd")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runDaemon(ctx, cfg); err != nil {
		return err
	}
	log.Info().Msg("Daemon stopped")
	return nil
}

func withClient(cmd *cobra.Command, fn func(ctx context.Context, client *dbus.Client) error) error {
	client, err := dbus.Dial(dbus.Bus(busName))
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
	defer cancel()
	return fn(ctx, client)
}

func dumpCmd(cmd *cobra.Command, _ []string) error {
	return withClient(cmd, func(ctx context.Context, client *dbus.Client) error {
		out, err := client.Dump(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	})
}

func statusCmd(cmd *cobra.Command, _ []string) error {
	return withClient(cmd, func(ctx context.Context, client *dbus.Client) error {
		status, err := client.Status(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), formatStatus(status))
		return err
	})
}

func requestCmd(cmd *cobra.Command, _ []string) error {
	req, err := buildRequest()
	if err != nil {
		return err
	}
	return withClient(cmd, func(ctx context.Context, client *dbus.Client) error {
		ready, err := client.RequestPowerState(ctx, req, requestFlags.waitNegative)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "request: %s\nready: %t\n", req, ready)
		return err
	})
}

func buildRequest() (power.Request, error) {
	state, err := power.ParseScreenState(requestFlags.state)
	if err != nil {
		return power.Request{}, err
	}
	return power.Request{
		ScreenState:              state,
		ScreenBrightness:         requestFlags.brightness,
		UseAutoBrightness:        requestFlags.auto,
		AutoBrightnessAdjustment: requestFlags.adjustment,
		UseProximitySensor:       requestFlags.proximity,
		BlockScreenOn:            requestFlags.block,
		Responsiveness:           requestFlags.responsiveness,
	}, nil
}

func formatStatus(s power.Status) string {
	lux := "unknown"
	if s.AmbientLuxValid {
		lux = fmt.Sprintf("%.1f", s.AmbientLux)
	}
	return fmt.Sprintf(
		"ready:           %t\nscreen:          %s (on=%t)\nlevel:           %d\ntransition:      %s\nauto:            %t\nambient lux:     %s\nproximity:       %s\noff (proximity): %t\n",
		s.Ready, s.ScreenState, s.ScreenOn, s.Level, s.Transition, s.AutoBrightness, lux, s.Proximity, s.OffBecauseOfProximity)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}
