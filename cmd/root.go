package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/artcrm/artcrm/internal/config"
	"github.com/artcrm/artcrm/internal/events"
	"github.com/artcrm/artcrm/internal/notify"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "artcrm",
	Short: "Relationship manager for gallery and venue outreach",
	Long:  "Tracks contacts for an artist's venue outreach. The recon command discovers new venues from Google Places and OpenStreetMap and stores them as unverified leads.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		notify.Register(events.Default(), cfg.Notify.WebhookURL)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
