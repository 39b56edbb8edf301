package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docqa/internal/cliutil"
	"github.com/jackzampolin/docqa/internal/retrieve"
)

var (
	searchMode                string
	searchBackend             string
	searchK                   int
	searchCandidateMultiplier int
	searchK0                  int
	searchNoQueryFusion       bool
	searchNoRerank            bool
	searchRerankPool          int
)

var searchCmd = &cobra.Command{
	Use:   "search [question]",
	Short: "Run retrieval only and print the top-k hits",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.TrimSpace(strings.Join(args, " "))
		if query == "" {
			return fmt.Errorf("search: query must not be empty")
		}

		cm := mustLoadConfig()
		settings := cm.Get()

		h, err := openHome()
		if err != nil {
			return err
		}
		c, err := buildCorpus(cmd.Context(), settings, h)
		if err != nil {
			return err
		}

		opts := retrievalOptionsFromSettings(settings)
		if searchMode != "" {
			opts.Mode = searchMode
		}
		if searchBackend != "" {
			opts.Backend = searchBackend
			if searchBackend == "faiss" {
				opts.Backend = retrieve.BackendDense
			}
		}
		if searchCandidateMultiplier > 0 {
			opts.CandidateMultiplier = searchCandidateMultiplier
		}
		if searchK0 > 0 {
			opts.K0 = searchK0
		}
		if searchNoQueryFusion {
			opts.UseQueryFusion = false
		}
		if searchNoRerank {
			opts.EnableRerank = false
		}
		if searchRerankPool > 0 {
			opts.RerankPool = searchRerankPool
		}

		k := settings.TopK
		if searchK > 0 {
			k = searchK
		}

		hits, err := c.pipeline.Search(cmd.Context(), query, k, opts)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		if cliutil.IsStructured() {
			return cliutil.WriteStdout(map[string]any{"query": query, "hits": hits})
		}

		fmt.Printf("\nQuery: %s\n\n", query)
		for i, hit := range hits {
			fmt.Printf("[%d] score=%.4f  %s  p%d-p%d  (%s)\n", i+1, hit.Score, hit.DocID, hit.StartPage, hit.EndPage, hit.ChunkID)
			if hit.Text != "" {
				preview := strings.ReplaceAll(hit.Text, "\n", " ")
				if len(preview) > 300 {
					preview = preview[:300]
				}
				fmt.Printf("    %s...\n", preview)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchMode, "mode", "", "retrieval mode: base or hybrid (default: config retrieval_mode)")
	searchCmd.Flags().StringVar(&searchBackend, "backend", "", "single-backend override for --mode base: faiss (same as "+retrieve.BackendDense+"), "+retrieve.BackendDense+", or "+retrieve.BackendBM25)
	searchCmd.Flags().IntVar(&searchK, "k", 0, "number of hits to return (default: config top_k)")
	searchCmd.Flags().IntVar(&searchCandidateMultiplier, "candidate-multiplier", 0, "per-source candidate multiplier (default: config value)")
	searchCmd.Flags().IntVar(&searchK0, "k0", 0, "RRF fusion constant (default: config value)")
	searchCmd.Flags().BoolVar(&searchNoQueryFusion, "no-query-fusion", false, "disable deterministic query-variant fan-out")
	searchCmd.Flags().BoolVar(&searchNoRerank, "no-rerank", false, "disable the lexical rerank pass")
	searchCmd.Flags().IntVar(&searchRerankPool, "rerank-pool", 0, "rerank candidate pool size (default: config value)")
}
