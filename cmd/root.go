package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "ruh",
		Short:         "Semantic retrieval engine for scripture passages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (default: config.json in ., ./config, or next to the binary)")

	root.AddCommand(serveCMD(), ingestCMD(), searchCMD())
	if err := root.Execute(); err != nil {
		root.PrintErrln("Error:", err)
		os.Exit(1)
	}
}
