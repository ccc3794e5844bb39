// Command shopify-sync loads Shopify Admin API resources into a destination
// and keeps their incremental cursors in a state store.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/shopify-source/internal/config"
	"github.com/Sternrassler/shopify-source/pkg/logging"
)

var (
	cfgFile  string
	logLevel string
	pretty   bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "shopify-sync",
	Short: "Incremental Shopify Admin API loader",
	Long: `shopify-sync loads products, orders, customers and the other Admin API
resources of one shop into a SQL database, MongoDB, Kafka or stdout.

Each resource remembers its high-water mark in the state store, so every run
only fetches what changed since the last complete run.

Configuration is read from a YAML file (--config), a .env file and the
environment (SHOPIFY_SHOP_URL, SHOPIFY_ACCESS_TOKEN, SHOPIFY_STATE_DSN,
SHOPIFY_DESTINATION_DSN, REDIS_URL, LOG_LEVEL).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		if pretty {
			loaded.Logging.Pretty = true
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logCfg := loaded.LoggingSetup()
		logCfg.Output = cmd.ErrOrStderr()
		logging.Setup(logCfg)

		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "shopify.yaml", "Config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (or LOG_LEVEL env)")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "Human-readable console logs")

	runCmd.Flags().StringSliceVarP(&runResources, "resources", "r", nil, "Resources to load (default: sync.resources or all)")
	runCmd.Flags().BoolVar(&fullRefresh, "full-refresh", false, "Ignore saved cursors and reload from the start date")

	stateCmd.AddCommand(stateResetCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(resourcesCmd)
	rootCmd.AddCommand(stateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("shopify-sync failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
