package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docqa/internal/answer"
	"github.com/jackzampolin/docqa/internal/config"
	"github.com/jackzampolin/docqa/internal/evidence"
	"github.com/jackzampolin/docqa/internal/eval"
	"github.com/jackzampolin/docqa/internal/retrieve"
	"github.com/jackzampolin/docqa/internal/types"
)

var (
	evalDataset             string
	evalOutDir              string
	evalMode                string
	evalBackend             string
	evalK                   int
	evalKs                  string
	evalK0                  int
	evalCandidateMultiplier int
	evalNoFusion            bool
	evalNoRerank            bool
	evalRerankPool          int
	evalNearPageTolerance   int
	evalAllowUnlabeled      bool
	evalWithAnswers         bool
)

func parseKs(raw string) ([]int, error) {
	fields := strings.Split(raw, ",")
	ks := make([]int, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid --ks value %q", f)
		}
		ks = append(ks, n)
	}
	if len(ks) == 0 {
		return nil, fmt.Errorf("--ks must list at least one positive integer")
	}
	return ks, nil
}

var evalRunCmd = &cobra.Command{
	Use:   "eval-run",
	Short: "Score retrieval (and optionally answer) quality against a labeled question set",
	RunE: func(cmd *cobra.Command, args []string) error {
		cm := mustLoadConfig()
		settings := cm.Get()

		h, err := openHome()
		if err != nil {
			return err
		}

		dataset := evalDataset
		if dataset == "" {
			return fmt.Errorf("eval-run: --dataset is required")
		}
		questions, err := eval.LoadQuestions(dataset, !evalAllowUnlabeled)
		if err != nil {
			return fmt.Errorf("eval-run: %w", err)
		}

		ks, err := parseKs(evalKs)
		if err != nil {
			return fmt.Errorf("eval-run: %w", err)
		}

		c, err := buildCorpus(cmd.Context(), settings, h)
		if err != nil {
			return err
		}

		opts := retrievalOptionsFromSettings(settings)
		if evalMode != "" {
			opts.Mode = evalMode
		}
		if evalBackend != "" {
			opts.Backend = evalBackend
		} else if opts.Mode == retrieve.ModeBase {
			opts.Backend = backendFromVectorBackend(settings.VectorBackend)
		}
		if evalK0 > 0 {
			opts.K0 = evalK0
		}
		if evalCandidateMultiplier > 0 {
			opts.CandidateMultiplier = evalCandidateMultiplier
		}
		if evalNoFusion {
			opts.UseQueryFusion = false
		}
		if evalNoRerank {
			opts.EnableRerank = false
		}
		if evalRerankPool > 0 {
			opts.RerankPool = evalRerankPool
		}

		k := settings.TopK
		if evalK > 0 {
			k = evalK
		}

		cfg := eval.RunConfig{
			Mode:                opts.Mode,
			Backend:             opts.Backend,
			K:                   k,
			Ks:                  ks,
			RetrievalDepth:      k,
			NearPageTolerance:   evalNearPageTolerance,
			K0:                  opts.K0,
			CandidateMultiplier: opts.CandidateMultiplier,
			Fusion:              opts.UseQueryFusion,
			Rerank:              opts.EnableRerank,
			RerankPool:          opts.RerankPool,
			WithAnswers:         evalWithAnswers,
			AllowUnlabeled:      evalAllowUnlabeled,
		}

		retriever := func(query string, depth int) ([]types.Hit, error) {
			return c.pipeline.Search(cmd.Context(), query, depth, opts)
		}

		var answerFn eval.AnswerFn
		if evalWithAnswers {
			gen := buildGenerator(settings)
			answerFn = func(query string) (types.AnswerResult, error) {
				hits, err := c.pipeline.Search(cmd.Context(), query, k, opts)
				if err != nil {
					return types.AnswerResult{}, err
				}
				selected := evidence.Select(c.store, hits, evidence.Options{
					MaxChunks:             settings.AskMaxContextChunks,
					MaxChars:              settings.AskMaxContextChars,
					IncludeNeighborChunks: settings.AskIncludeNeighborChunks,
					NeighborWindow:        settings.AskNeighborWindow,
				})
				evidenceItems, _ := answer.AssignKeys(selected)
				return answer.BuildCitedAnswer(cmd.Context(), query, evidenceItems, hits, gen), nil
			}
		}

		report, err := eval.Run(questions, cfg, retriever, answerFn, dataset, time.Now())
		if err != nil {
			return fmt.Errorf("eval-run: %w", err)
		}

		outDir := evalOutDir
		if outDir == "" {
			outDir = h.ReportsDir()
		}
		paths, err := eval.WriteReport(report, outDir)
		if err != nil {
			return fmt.Errorf("eval-run: %w", err)
		}

		for _, name := range []string{"per_question", "summary_json", "summary_md"} {
			fmt.Printf("[OK] %s: %s\n", name, paths[name])
		}
		return nil
	},
}

func init() {
	defaults := config.DefaultSettings()

	evalRunCmd.Flags().StringVar(&evalDataset, "dataset", "", "path to JSONL question dataset (required)")
	evalRunCmd.Flags().StringVar(&evalOutDir, "outdir", "", "output directory (default: home reports dir)")
	evalRunCmd.Flags().StringVar(&evalMode, "mode", "", "retrieval mode: base or hybrid (default: config retrieval_mode)")
	evalRunCmd.Flags().StringVar(&evalBackend, "backend", "", "single-backend override for --mode base")
	evalRunCmd.Flags().IntVar(&evalK, "k", 0, "primary retrieval depth and @k (default: config top_k)")
	evalRunCmd.Flags().StringVar(&evalKs, "ks", "1,3,5,8", "comma-separated k values for retrieval metrics")
	evalRunCmd.Flags().IntVar(&evalK0, "k0", 0, "RRF fusion constant (default: config value)")
	evalRunCmd.Flags().IntVar(&evalCandidateMultiplier, "candidate-multiplier", 0, "per-source candidate multiplier (default: config value)")
	evalRunCmd.Flags().BoolVar(&evalNoFusion, "no-fusion", !defaults.RetrievalQueryFusion, "disable query-variant fusion")
	evalRunCmd.Flags().BoolVar(&evalNoRerank, "no-rerank", !defaults.RetrievalEnableRerank, "disable the lexical rerank pass")
	evalRunCmd.Flags().IntVar(&evalRerankPool, "rerank-pool", 0, "rerank candidate pool size (default: config value)")
	evalRunCmd.Flags().IntVar(&evalNearPageTolerance, "near-page-tolerance", 1, "page slack for the near-page diagnostic")
	evalRunCmd.Flags().BoolVar(&evalAllowUnlabeled, "allow-unlabeled", false, "allow answerable=true rows with empty gold spans")
	evalRunCmd.Flags().BoolVar(&evalWithAnswers, "with-answers", false, "also score citation/refusal metrics via the answer pipeline")
}
