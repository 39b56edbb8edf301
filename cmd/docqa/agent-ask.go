package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docqa/internal/agentloop"
	"github.com/jackzampolin/docqa/internal/cliutil"
	"github.com/jackzampolin/docqa/internal/types"
)

var (
	agentAskOutDir  string
	agentAskNoTrace bool
	agentAskJSON    bool
)

var agentAskCmd = &cobra.Command{
	Use:   "agent-ask [question]",
	Short: "Run the bounded agent control loop and print the final answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return fmt.Errorf("agent-ask: question must not be empty")
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

		deps := agentloop.Deps{
			Retriever:       c.pipeline,
			Store:           c.store,
			Generator:       buildGenerator(settings),
			RetrieveOptions: retrievalOptionsFromSettings(settings),
			Budgets: agentloop.Budgets{
				MaxSteps:           settings.AgentMaxSteps,
				MaxToolCalls:       settings.AgentMaxToolCalls,
				MaxRetrievalRounds: settings.AgentMaxRetrievalRounds,
				MinEvidenceHits:    settings.AgentMinEvidenceHits,
			},
		}

		state := agentloop.Run(cmd.Context(), question, deps)

		if !agentAskNoTrace {
			outDir := agentAskOutDir
			if outDir == "" {
				outDir = h.TraceDir()
			}
			path, err := agentloop.WriteTrace(state, outDir, "agent", 800, time.Now())
			if err != nil {
				return fmt.Errorf("agent-ask: write trace: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "trace written to %s\n", path)
		}

		result := types.AnswerResult{
			Answer:    state.FinalAnswer,
			Citations: state.Citations,
			Notes:     state.RefusalReason,
		}

		if agentAskJSON || settings.AskJSONDefault {
			return writeAnswerJSON(result, settings.LLMModel)
		}

		if cliutil.IsStructured() {
			return cliutil.WriteStdout(result)
		}

		fmt.Println("\n=== Answer ===")
		fmt.Println(result.Answer)

		fmt.Println("\n=== Citations ===")
		if len(result.Citations) > 0 {
			fmt.Println(formatCitations(result))
		} else {
			fmt.Println("(none)")
		}
		if state.StopReason != "" {
			fmt.Printf("\nstop_reason: %s\n", state.StopReason)
		}
		return nil
	},
}

func init() {
	agentAskCmd.Flags().StringVar(&agentAskOutDir, "out-dir", "", "trace output directory (default: home trace dir)")
	agentAskCmd.Flags().BoolVar(&agentAskNoTrace, "no-trace", false, "skip writing the decision trace")
	agentAskCmd.Flags().BoolVar(&agentAskJSON, "json", false, "print the answer payload as JSON")
}
