package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var opts = options{}

var rootCmd = &cobra.Command{
	Use:   "nodesim",
	Short: "Run the sensor node against simulated hardware",
	Long: `nodesim runs the full node lifecycle on this host: link up, portal login,
OTA check, then the telemetry loop. Sensors are register-level models on a
fake two-wire bus and every remote endpoint is served locally.

When the OTA source advertises a different version the candidate is promoted
and the node is booted again with that version, as a device would after its
restart.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		sum, err := run(ctx, opts, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "boots=%d posts=%d logins=%d running=%s\n",
			sum.Boots, sum.Posts, sum.Logins, sum.Version)
		return nil
	},
}

func init() {
	rootCmd.SetContext(context.Background())
	f := rootCmd.Flags()
	f.IntVar(&opts.Cycles, "cycles", 3, "telemetry cycles to run before stopping (0 = until interrupted)")
	f.StringVar(&opts.Running, "version", "1.0.0", "version of the image in the boot slot")
	f.StringVar(&opts.OTAVersion, "ota-version", "", "version served by the OTA source (default: same as --version)")
	f.StringSliceVar(&opts.FailSensors, "fail-sensor", nil, "sensor id whose bus address stops acknowledging (repeatable)")
	f.IntVar(&opts.PortalStatus, "portal-status", 200, "HTTP status returned by the captive portal")
	f.IntVar(&opts.LinkPolls, "link-polls", 2, "polls before the simulated link comes up (-1 = never)")
	f.StringVar(&opts.Diag, "diag", "", "serve /metrics and /state on this address")
	f.BoolVar(&opts.Quiet, "quiet", false, "do not print bus traffic")
	f.StringVar(&opts.LogLevel, "log-level", "", "override the configured log level")
}
