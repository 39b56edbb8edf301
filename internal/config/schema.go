package config

// Settings holds the full set of tunables for the retrieval and answering
// pipeline, plus LLM and agent-loop bounds.
// Stored at: {home}/config.yaml
type Settings struct {
	// --- Retrieval backend (swappable) ---
	VectorBackend             string  `mapstructure:"vector_backend" yaml:"vector_backend"`
	TopK                      int     `mapstructure:"top_k" yaml:"top_k"`
	RetrievalMode             string  `mapstructure:"retrieval_mode" yaml:"retrieval_mode"`
	RetrievalQueryFusion      bool    `mapstructure:"retrieval_query_fusion" yaml:"retrieval_query_fusion"`
	RetrievalRRFK0            int     `mapstructure:"retrieval_rrf_k0" yaml:"retrieval_rrf_k0"`
	RetrievalCandidateMult    int     `mapstructure:"retrieval_candidate_multiplier" yaml:"retrieval_candidate_multiplier"`
	RetrievalEnableRerank     bool    `mapstructure:"retrieval_enable_rerank" yaml:"retrieval_enable_rerank"`
	RetrievalRerankPool       int     `mapstructure:"retrieval_rerank_pool" yaml:"retrieval_rerank_pool"`

	// --- Answering / evidence policy ---
	AskMaxContextChunks       int  `mapstructure:"ask_max_context_chunks" yaml:"ask_max_context_chunks"`
	AskMaxContextChars        int  `mapstructure:"ask_max_context_chars" yaml:"ask_max_context_chars"`
	AskMinEvidenceHits        int  `mapstructure:"ask_min_evidence_hits" yaml:"ask_min_evidence_hits"`
	AskRequireCitations       bool `mapstructure:"ask_require_citations" yaml:"ask_require_citations"`
	AskIncludeNeighborChunks  bool `mapstructure:"ask_include_neighbor_chunks" yaml:"ask_include_neighbor_chunks"`
	AskNeighborWindow         int  `mapstructure:"ask_neighbor_window" yaml:"ask_neighbor_window"`

	// --- Debug / output ergonomics ---
	AskShowEvidenceDefault bool `mapstructure:"ask_show_evidence_default" yaml:"ask_show_evidence_default"`
	AskJSONDefault         bool `mapstructure:"ask_json_default" yaml:"ask_json_default"`

	// --- Determinism knobs ---
	LLMTemperature float64 `mapstructure:"llm_temperature" yaml:"llm_temperature"`

	// --- Agent loop bounds / stop rules ---
	AgentMaxSteps            int `mapstructure:"agent_max_steps" yaml:"agent_max_steps"`
	AgentMaxToolCalls         int `mapstructure:"agent_max_tool_calls" yaml:"agent_max_tool_calls"`
	AgentMaxRetrievalRounds   int `mapstructure:"agent_max_retrieval_rounds" yaml:"agent_max_retrieval_rounds"`
	AgentMinEvidenceHits      int `mapstructure:"agent_min_evidence_hits" yaml:"agent_min_evidence_hits"`

	// --- Generator ---
	LLMModel  string `mapstructure:"llm_model" yaml:"llm_model"`
	LLMAPIKey string `mapstructure:"llm_api_key" yaml:"llm_api_key"`
}

var allowedVectorBackends = map[string]bool{"faiss": true, "bm25": true, "pgvector": true, "chroma": true}
var allowedRetrievalModes = map[string]bool{"base": true, "hybrid": true}

// DefaultSettings returns Settings populated with the documented defaults.
func DefaultSettings() *Settings {
	return &Settings{
		VectorBackend:            "faiss",
		TopK:                     8,
		RetrievalMode:            "hybrid",
		RetrievalQueryFusion:     true,
		RetrievalRRFK0:           60,
		RetrievalCandidateMult:   4,
		RetrievalEnableRerank:    true,
		RetrievalRerankPool:      40,
		AskMaxContextChunks:      6,
		AskMaxContextChars:       12000,
		AskMinEvidenceHits:       2,
		AskRequireCitations:      true,
		AskIncludeNeighborChunks: true,
		AskNeighborWindow:        1,
		AskShowEvidenceDefault:   false,
		AskJSONDefault:           false,
		LLMTemperature:           0.0,
		AgentMaxSteps:            8,
		AgentMaxToolCalls:        3,
		AgentMaxRetrievalRounds:  2,
		AgentMinEvidenceHits:     2,
		LLMModel:                 "gpt-4o-mini",
		LLMAPIKey:                "${OPENAI_API_KEY}",
	}
}
