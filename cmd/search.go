package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ruhapp/ruh/config"
	"github.com/ruhapp/ruh/engine"
	"github.com/ruhapp/ruh/models"
	"github.com/spf13/cobra"
)

func searchCMD() *cobra.Command {
	var (
		maxResults int
		chapters   bool
		compare    bool
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "search <theme>",
		Short: "Search passages (or chapters) by theme",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			theme := strings.Join(args, " ")

			logger := log.New(log.Writer(), "[RUH] ", log.LstdFlags)
			eng, err := engine.New(cmd.Context(), cfg, nil, logger)
			if err != nil {
				return err
			}

			switch {
			case compare:
				res := eng.CompareSearch(cmd.Context(), theme, maxResults)
				if asJSON {
					return printJSON(res)
				}
				fmt.Printf("semantic (%s, degraded=%v):\n", res.Semantic.Elapsed, res.Semantic.Degraded)
				printPassages(res.Semantic.Results)
				fmt.Printf("keyword (%s):\n", res.Keyword.Elapsed)
				printPassages(res.Keyword.Results)
			case chapters:
				res := eng.Aggregator.SearchChaptersByTheme(cmd.Context(), theme, maxResults, models.SortByRelevance)
				if asJSON {
					return printJSON(res)
				}
				for _, ch := range res {
					fmt.Printf("%.3f  %s: %s\n", ch.Score, ch.Chapter.Name, ch.Explanation)
				}
			default:
				res := eng.Retriever.SearchByTheme(cmd.Context(), theme, maxResults, cfg.Retrieval.MinSimilarity)
				if asJSON {
					return printJSON(res)
				}
				printPassages(res)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 5, "maximum results")
	cmd.Flags().BoolVar(&chapters, "chapters", false, "aggregate results by chapter")
	cmd.Flags().BoolVar(&compare, "compare", false, "compare semantic and keyword retrieval")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func printPassages(passages []models.ScoredPassage) {
	for _, p := range passages {
		text := p.Passage.Translation
		if text == "" {
			text = p.Passage.Text
		}
		fmt.Printf("%.3f  [%s] %s\n", p.Similarity, p.Passage.ID, text)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
