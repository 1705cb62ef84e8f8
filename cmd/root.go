package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	dbPath       string
	redisURL     string
	logLevel     string
	seedDir      string
	userAgent    string
	fetchTimeout string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconpipe",
	Short: "Event-driven reconnaissance enrichment pipeline",
	Long: `Reconpipe is an event-driven reconnaissance pipeline: enrichment modules
receive typed finding events (IP addresses, netblocks, phone numbers),
query external reputation and data sources, and emit derived findings
that feed back into the same pipeline.

Features:
- Declarative module subscription and production of typed events
- Per-module deduplication so event cycles terminate
- TTL-bounded caching of bulk threat-intel downloads
- Exact and CIDR-containment IOC matching
- Redis Streams fan-out of findings, SQLite provenance store`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.reconpipe.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./data/reconpipe.db", "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "redis://localhost:6379", "Redis connection URL (empty disables the bus)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&seedDir, "seed-dir", "", "Directory of seed target files to ingest")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "reconpipe", "User-Agent header for remote list fetches")
	rootCmd.PersistentFlags().StringVar(&fetchTimeout, "fetch-timeout", "30s", "Timeout for remote list fetches")

	// Bind flags to viper
	viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("ingest.dir", rootCmd.PersistentFlags().Lookup("seed-dir"))
	viper.BindPFlag("fetch.useragent", rootCmd.PersistentFlags().Lookup("user-agent"))
	viper.BindPFlag("fetch.timeout", rootCmd.PersistentFlags().Lookup("fetch-timeout"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".reconpipe")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	viper.SetDefault("database.path", "./data/reconpipe.db")
	viper.SetDefault("redis.url", "redis://localhost:6379")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("ingest.dir", "")
	viper.SetDefault("fetch.useragent", "reconpipe")
	viper.SetDefault("fetch.timeout", "30s")
}

// newLogger builds the process logger from the configured level.
func newLogger() *logrus.Entry {
	l := logrus.New()
	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	return logrus.NewEntry(l)
}

// moduleOverrides returns the configured option overrides for one module.
func moduleOverrides(name string) map[string]string {
	return viper.GetStringMapString("modules." + name)
}
