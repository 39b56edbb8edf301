package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/docqa/internal/answer"
	"github.com/jackzampolin/docqa/internal/evidence"
	"github.com/jackzampolin/docqa/internal/schema"
	"github.com/jackzampolin/docqa/internal/types"
)

var (
	askShowEvidence bool
	askJSON         bool
	askK            int
	askBackend      string
	askMode         string
	askNoQueryFusion bool
)

func formatCitations(result types.AnswerResult) string {
	var b strings.Builder
	for _, c := range result.Citations {
		fmt.Fprintf(&b, "[%s] %s p%d-p%d chunk_id=%s\n", c.Key, c.DocID, c.StartPage, c.EndPage, c.ChunkID)
	}
	return strings.TrimRight(b.String(), "\n")
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Retrieve evidence and generate a citation-grounded answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return fmt.Errorf("ask: question must not be empty")
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
		if askBackend != "" {
			opts.Backend = askBackend
		}
		if askMode != "" {
			opts.Mode = askMode
		}
		if askNoQueryFusion {
			opts.UseQueryFusion = false
		}

		k := settings.TopK
		if askK > 0 {
			k = askK
		}

		hits, err := c.pipeline.Search(cmd.Context(), question, k, opts)
		if err != nil {
			return fmt.Errorf("ask: %w", err)
		}

		showEvidence := askShowEvidence || settings.AskShowEvidenceDefault
		asJSON := askJSON || settings.AskJSONDefault
		gen := buildGenerator(settings)

		if showEvidence {
			fmt.Printf("\n=== Model ===\n%s\n", settings.LLMModel)
			fmt.Println("\n=== Evidence (top hits) ===")
			for i, hit := range hits {
				preview := strings.ReplaceAll(strings.TrimSpace(hit.Text), "\n", " ")
				if len(preview) > 220 {
					preview = preview[:220] + "..."
				}
				fmt.Printf("%02d. score=%.4f %s p%d-p%d chunk_id=%s\n", i+1, hit.Score, hit.DocID, hit.StartPage, hit.EndPage, hit.ChunkID)
				fmt.Printf("    %s\n", preview)
			}
		}

		selected := evidence.Select(c.store, hits, evidence.Options{
			MaxChunks:             settings.AskMaxContextChunks,
			MaxChars:              settings.AskMaxContextChars,
			IncludeNeighborChunks: settings.AskIncludeNeighborChunks,
			NeighborWindow:        settings.AskNeighborWindow,
		})
		evidenceItems, _ := answer.AssignKeys(selected)
		result := answer.BuildCitedAnswer(cmd.Context(), question, evidenceItems, hits, gen)

		if asJSON {
			return writeAnswerJSON(result, settings.LLMModel)
		}

		fmt.Println("\n=== Answer ===")
		fmt.Println(result.Answer)

		fmt.Println("\n=== Citations ===")
		if len(result.Citations) > 0 {
			fmt.Println(formatCitations(result))
		} else {
			fmt.Println("(none)")
		}
		return nil
	},
}

// answerResultSchema is the shape every --json ask/agent-ask payload must
// satisfy before it is printed: an AnswerResult plus the model name used
// to generate it.
const answerResultSchema = `{
  "type": "object",
  "required": ["answer", "citations", "model"],
  "properties": {
    "answer": {"type": "string"},
    "citations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["key", "doc_id", "start_page", "end_page", "chunk_id"],
        "properties": {
          "key": {"type": "string"},
          "doc_id": {"type": "string"},
          "start_page": {"type": "integer"},
          "end_page": {"type": "integer"},
          "chunk_id": {"type": "string"}
        }
      }
    },
    "notes": {"type": "string"},
    "model": {"type": "string"}
  }
}`

var (
	answerResultCompileOnce sync.Once
	answerResultCompiledVal *jsonschema.Schema
	answerResultCompileErr  error
)

func compiledAnswerResultSchema() (*jsonschema.Schema, error) {
	answerResultCompileOnce.Do(func() {
		answerResultCompiledVal, answerResultCompileErr = schema.Compile("answer_result.json", []byte(answerResultSchema))
	})
	return answerResultCompiledVal, answerResultCompileErr
}

func validateAnswerPayload(raw []byte) error {
	compiled, err := compiledAnswerResultSchema()
	if err != nil {
		return fmt.Errorf("compile answer result schema: %w", err)
	}
	return schema.Validate(compiled, json.RawMessage(raw))
}

// writeAnswerJSON validates the --json payload against the AnswerResult
// schema before printing it, so a malformed answer never reaches a caller
// parsing the CLI's output mechanically.
func writeAnswerJSON(result types.AnswerResult, model string) error {
	payload := map[string]any{
		"answer":    result.Answer,
		"citations": result.Citations,
		"model":     model,
	}
	if result.Notes != "" {
		payload["notes"] = result.Notes
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ask: marshal answer payload: %w", err)
	}
	if err := validateAnswerPayload(raw); err != nil {
		return fmt.Errorf("ask: answer payload failed schema validation: %w", err)
	}

	indented, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("ask: marshal answer payload: %w", err)
	}
	fmt.Println(string(indented))
	return nil
}

func init() {
	askCmd.Flags().BoolVar(&askShowEvidence, "show-evidence", false, "print retrieved evidence before the answer")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the answer payload as JSON")
	askCmd.Flags().IntVar(&askK, "k", 0, "override top_k for this run")
	askCmd.Flags().StringVar(&askBackend, "backend", "", "single-backend override for --mode base")
	askCmd.Flags().StringVar(&askMode, "mode", "", "retrieval mode: base or hybrid")
	askCmd.Flags().BoolVar(&askNoQueryFusion, "no-query-fusion", false, "disable deterministic query-variant fan-out")
}
