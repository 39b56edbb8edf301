package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	settings  *Settings
	callbacks []func(*Settings)
}

// NewManager creates a new config manager and loads initial settings.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Settings), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	settings, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.settings = settings

	return cm, nil
}

// initViper sets up viper with defaults, env var overrides, and the config file.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultSettings()
	viper.SetDefault("vector_backend", defaults.VectorBackend)
	viper.SetDefault("top_k", defaults.TopK)
	viper.SetDefault("retrieval_mode", defaults.RetrievalMode)
	viper.SetDefault("retrieval_query_fusion", defaults.RetrievalQueryFusion)
	viper.SetDefault("retrieval_rrf_k0", defaults.RetrievalRRFK0)
	viper.SetDefault("retrieval_candidate_multiplier", defaults.RetrievalCandidateMult)
	viper.SetDefault("retrieval_enable_rerank", defaults.RetrievalEnableRerank)
	viper.SetDefault("retrieval_rerank_pool", defaults.RetrievalRerankPool)
	viper.SetDefault("ask_max_context_chunks", defaults.AskMaxContextChunks)
	viper.SetDefault("ask_max_context_chars", defaults.AskMaxContextChars)
	viper.SetDefault("ask_min_evidence_hits", defaults.AskMinEvidenceHits)
	viper.SetDefault("ask_require_citations", defaults.AskRequireCitations)
	viper.SetDefault("ask_include_neighbor_chunks", defaults.AskIncludeNeighborChunks)
	viper.SetDefault("ask_neighbor_window", defaults.AskNeighborWindow)
	viper.SetDefault("ask_show_evidence_default", defaults.AskShowEvidenceDefault)
	viper.SetDefault("ask_json_default", defaults.AskJSONDefault)
	viper.SetDefault("llm_temperature", defaults.LLMTemperature)
	viper.SetDefault("agent_max_steps", defaults.AgentMaxSteps)
	viper.SetDefault("agent_max_tool_calls", defaults.AgentMaxToolCalls)
	viper.SetDefault("agent_max_retrieval_rounds", defaults.AgentMaxRetrievalRounds)
	viper.SetDefault("agent_min_evidence_hits", defaults.AgentMinEvidenceHits)
	viper.SetDefault("llm_model", defaults.LLMModel)
	viper.SetDefault("llm_api_key", defaults.LLMAPIKey)

	// Environment variables map 1:1 to the settings keys, read without a
	// common prefix so VECTOR_BACKEND, TOP_K, ASK_*, AGENT_*, etc. match
	// exactly.
	viper.AutomaticEnv()
	for _, key := range []string{
		"vector_backend", "top_k", "retrieval_mode", "retrieval_query_fusion",
		"retrieval_rrf_k0", "retrieval_candidate_multiplier", "retrieval_enable_rerank",
		"retrieval_rerank_pool", "ask_max_context_chunks", "ask_max_context_chars",
		"ask_min_evidence_hits", "ask_require_citations", "ask_include_neighbor_chunks",
		"ask_neighbor_window", "ask_show_evidence_default", "ask_json_default",
		"llm_temperature", "agent_max_steps", "agent_max_tool_calls",
		"agent_max_retrieval_rounds", "agent_min_evidence_hits", "llm_model", "llm_api_key",
	} {
		if err := viper.BindEnv(key, strings.ToUpper(key)); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	// AGENT_MIN_EVIDENCE_HITS falls back to ASK_MIN_EVIDENCE_HITS when unset,
	// mirroring the documented env var contract's _env_int_any resolution.
	if os.Getenv("AGENT_MIN_EVIDENCE_HITS") == "" {
		if v := os.Getenv("ASK_MIN_EVIDENCE_HITS"); v != "" {
			viper.Set("agent_min_evidence_hits", v)
		}
	}

	// Config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.docqa")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Settings struct.
func (cm *Manager) load() (*Settings, error) {
	var settings Settings
	if err := viper.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(&settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Get returns the current settings (thread-safe).
func (cm *Manager) Get() *Settings {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.settings
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Settings)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		settings, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.settings = settings
		callbacks := make([]func(*Settings), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(settings)
		}
	})
	viper.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// Validate checks settings for invalid or inconsistent values.
func Validate(s *Settings) error {
	if !allowedVectorBackends[s.VectorBackend] {
		return fmt.Errorf("vector_backend must be one of %s, got %q", sortedKeys(allowedVectorBackends), s.VectorBackend)
	}
	if s.TopK <= 0 {
		return errors.New("top_k must be > 0")
	}
	if !allowedRetrievalModes[s.RetrievalMode] {
		return fmt.Errorf("retrieval_mode must be one of %s, got %q", sortedKeys(allowedRetrievalModes), s.RetrievalMode)
	}
	if s.RetrievalRRFK0 <= 0 {
		return errors.New("retrieval_rrf_k0 must be > 0")
	}
	if s.RetrievalCandidateMult <= 0 {
		return errors.New("retrieval_candidate_multiplier must be > 0")
	}
	if s.RetrievalRerankPool <= 0 {
		return errors.New("retrieval_rerank_pool must be > 0")
	}
	if s.AskMaxContextChunks <= 0 {
		return errors.New("ask_max_context_chunks must be > 0")
	}
	if s.AskMaxContextChars <= 0 {
		return errors.New("ask_max_context_chars must be > 0")
	}
	if s.AskMinEvidenceHits < 0 {
		return errors.New("ask_min_evidence_hits must be >= 0")
	}
	if s.AskNeighborWindow < 0 {
		return errors.New("ask_neighbor_window must be >= 0")
	}
	if s.AgentMaxSteps <= 0 {
		return errors.New("agent_max_steps must be > 0")
	}
	if s.AgentMaxToolCalls <= 0 {
		return errors.New("agent_max_tool_calls must be > 0")
	}
	if s.AgentMaxRetrievalRounds <= 0 {
		return errors.New("agent_max_retrieval_rounds must be > 0")
	}
	if s.AgentMinEvidenceHits < 0 {
		return errors.New("agent_min_evidence_hits must be >= 0")
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	settings := DefaultSettings()
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# docqa configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export OPENAI_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
