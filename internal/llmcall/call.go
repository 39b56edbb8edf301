// Package llmcall turns a generator invocation's result into a call record
// with enough bookkeeping to reconstruct an agent run after the fact.
package llmcall

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/docqa/internal/generator"
)

// Call represents a single recorded generator invocation.
type Call struct {
	// Unique identifier
	ID string `json:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	// Agent loop context
	RetrievalRound int    `json:"retrieval_round"`
	ToolCalls      int    `json:"tool_calls"`
	PlanAction     string `json:"plan_action,omitempty"`

	// Prompt traceability
	PromptKey string `json:"prompt_key"`

	// Model info
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`

	// Token usage
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	Attempts     int `json:"attempts"`

	// Response
	Response string `json:"response"`

	// Status
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RecordOptions provides context for recording a generator call.
type RecordOptions struct {
	RetrievalRound int
	ToolCalls      int
	PlanAction     string
	PromptKey      string
	Temperature    *float64
}

// FromResult creates a Call from a generator.Result.
func FromResult(result generator.Result, opts RecordOptions) Call {
	call := Call{
		ID:             uuid.New().String(),
		Timestamp:      time.Now(),
		LatencyMs:      result.LatencyMs,
		RetrievalRound: opts.RetrievalRound,
		ToolCalls:      opts.ToolCalls,
		PlanAction:     opts.PlanAction,
		PromptKey:      opts.PromptKey,
		Provider:       result.Provider,
		Model:          result.Model,
		InputTokens:    result.PromptTokens,
		OutputTokens:   result.CompletionTokens,
		Attempts:       result.Attempts,
		Response:       result.Content,
		Success:        result.Success,
	}
	if opts.Temperature != nil {
		call.Temperature = opts.Temperature
	}
	if !result.Success {
		call.Error = result.ErrorMessage
	}
	return call
}

// MarshalTrace renders the call as JSON for inclusion in an agent run trace file.
func (c Call) MarshalTrace() (json.RawMessage, error) {
	return json.Marshal(c)
}
