package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/app"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/config"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one orchestrator invocation and exit",
	RunE:  runTick,
}

func init() {
	tickCmd.Flags().StringVarP(&configFile, "config", "c", "/etc/pivotr-mailer/config.yaml", "Path to configuration file")
}

func runTick(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Shutdown(context.Background())

	report, err := a.Engine().Tick(context.Background())
	if err != nil {
		return err
	}

	if report.SkippedBackpressure {
		fmt.Println("tick skipped: delivery queue over depth threshold")
		return nil
	}

	fmt.Printf("tick completed in %s, %d campaign(s)\n", report.Duration, len(report.Results))
	for _, res := range report.Results {
		fmt.Printf("  %s  %-14s verifying=%d sent=%d skipped=%d", res.CampaignID, res.Outcome, res.Verifying, res.Sent, res.Skipped)
		if res.Error != "" {
			fmt.Printf(" error=%q", res.Error)
		}
		fmt.Println()
	}
	return nil
}
