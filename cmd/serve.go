package main

import (
	"log"

	"github.com/ruhapp/ruh/config"
	"github.com/ruhapp/ruh/engine"
	"github.com/ruhapp/ruh/internal/server"
	"github.com/ruhapp/ruh/internal/telemetry"
	"github.com/spf13/cobra"
)

func serveCMD() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}

			logger := log.New(log.Writer(), "[RUH] ", log.LstdFlags)
			eng, err := engine.New(cmd.Context(), cfg, telemetry.New(), logger)
			if err != nil {
				return err
			}
			logger.Printf("serving on %s (%d passages, %d chapters)",
				cfg.Server.Address, eng.Store.Len(), eng.Catalog.Len())
			return server.Run(eng, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
