package main

import (
	"fmt"
	"log"

	"github.com/ruhapp/ruh/config"
	"github.com/ruhapp/ruh/engine"
	"github.com/ruhapp/ruh/internal/telemetry"
	"github.com/spf13/cobra"
)

func ingestCMD() *cobra.Command {
	var dataPath string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed a chapter dataset and (re)build the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			logger := log.New(log.Writer(), "[RUH] ", log.LstdFlags)
			eng, err := engine.New(cmd.Context(), cfg, telemetry.New(), logger)
			if err != nil {
				return err
			}
			ing, err := eng.NewIngestor(cmd.Context())
			if err != nil {
				return err
			}
			rep, err := ing.IngestFile(cmd.Context(), dataPath)
			if err != nil {
				return err
			}
			fmt.Printf("ingested %d passages across %d chapters in %s (job %s)\n",
				rep.Passages, rep.Chapters, rep.Duration, rep.JobID)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataPath, "data", "data/chapters.json", "chapter dataset (JSON)")
	_ = cmd.MarkFlagFilename("data", "json")
	return cmd
}
