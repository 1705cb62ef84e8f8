package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Ashfaaq98/reconpipe/internal/bus"
	"github.com/Ashfaaq98/reconpipe/internal/event"
	"github.com/Ashfaaq98/reconpipe/internal/ingest"
)

// scanCmd injects seed targets into a running pipeline over the bus.
var scanCmd = &cobra.Command{
	Use:   "scan [targets...]",
	Short: "Inject seed targets into the pipeline",
	Long: `Classify each target (IP address, CIDR netblock or phone number) and
publish it to the targets stream for a running serve instance to pick up.

Examples:
  reconpipe scan 198.51.100.7
  reconpipe scan 203.0.113.0/24 "+33 6 12 34 56 78"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	b := bus.New(viper.GetString("redis.url"), logger)
	defer b.Close()

	if err := b.HealthCheck(cmd.Context()); err != nil {
		return fmt.Errorf("bus unreachable: %w", err)
	}

	var published int
	for _, target := range args {
		t, ok := ingest.Classify(target)
		if !ok {
			logger.WithField("target", target).Warn("unrecognized target, skipping")
			continue
		}
		ev := event.New(t, target, event.SeedModule)
		if err := b.PublishTarget(cmd.Context(), ev); err != nil {
			return fmt.Errorf("publish %q: %w", target, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %s as %s\n", target, ev.Type)
		published++
	}
	if published == 0 {
		return fmt.Errorf("no recognizable targets in arguments")
	}
	return nil
}
