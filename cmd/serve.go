package cmd

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Ashfaaq98/reconpipe/internal/bus"
	"github.com/Ashfaaq98/reconpipe/internal/cache"
	"github.com/Ashfaaq98/reconpipe/internal/event"
	"github.com/Ashfaaq98/reconpipe/internal/ingest"
	"github.com/Ashfaaq98/reconpipe/internal/plugin"
	"github.com/Ashfaaq98/reconpipe/internal/store"
	"github.com/Ashfaaq98/reconpipe/modules/blocklist"
	"github.com/Ashfaaq98/reconpipe/modules/phonelocation"
)

const targetsGroup = "reconpipe"

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the enrichment pipeline",
	Long: `Start the reconpipe pipeline:

1. Registers the enrichment modules with their configured options
2. Consumes seed targets from the Redis targets stream and, optionally,
   from a watched seed directory
3. Routes events to modules by their declared watched types
4. Persists the resulting finding DAG and fans findings out on Redis

The serve command runs until interrupted (Ctrl+C).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	logger := newLogger()

	st, err := store.NewStore(viper.GetString("database.path"))
	if err != nil {
		return err
	}
	defer st.Close()

	b := bus.New(viper.GetString("redis.url"), logger)
	defer b.Close()

	manager := plugin.NewManager(b, st, logger)
	if err := registerModules(manager, logger); err != nil {
		return err
	}

	// Feed seed targets from the bus into the pipeline.
	consumer, _ := os.Hostname()
	if consumer == "" {
		consumer = "reconpipe"
	}
	go func() {
		err := b.ReadTargets(ctx, targetsGroup, consumer, func(ctx context.Context, ev *event.Event) error {
			return manager.Notify(ctx, ev)
		})
		if err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("targets consumer stopped")
		}
	}()

	// Optionally ingest seed files from a watched directory.
	if dir := viper.GetString("ingest.dir"); dir != "" {
		fi := ingest.NewFolderIngestor(manager, ingest.FolderOptions{
			Dir:    dir,
			Watch:  true,
			Logger: logger,
		})
		go func() {
			if err := fi.Run(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("seed ingestion stopped")
			}
		}()
	}

	logger.Info("pipeline running")
	if err := manager.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	logger.Info("pipeline stopped")
	return nil
}

// registerModules sets up and registers every built-in module. Each module
// instance owns its fetch cache and dedup ledger; the notifier is shared.
func registerModules(manager *plugin.Manager, logger *logrus.Entry) error {
	deps := func() plugin.Deps {
		return plugin.Deps{
			Cache:        cache.New(logger),
			Notifier:     manager,
			Logger:       logger,
			UserAgent:    viper.GetString("fetch.useragent"),
			FetchTimeout: viper.GetDuration("fetch.timeout"),
		}
	}

	for _, feed := range blocklist.DefaultFeeds() {
		mod := blocklist.New(feed)
		if err := mod.Setup(deps(), moduleOverrides(mod.Name())); err != nil {
			return err
		}
		if err := manager.Register(mod); err != nil {
			return err
		}
	}

	phone := phonelocation.New()
	if err := phone.Setup(deps(), moduleOverrides(phone.Name())); err != nil {
		return err
	}
	return manager.Register(phone)
}
