package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/app"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the campaign engine",
	RunE:  runServe,
}

var configFile string

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "/etc/pivotr-mailer/config.yaml", "Path to configuration file")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Secrets may come from a local .env file in development
	_ = godotenv.Load()

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}

	return a.Run(context.Background())
}
