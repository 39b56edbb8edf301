package agentloop

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jackzampolin/docqa/internal/types"
)

var (
	traceSlugWhitespaceRe = regexp.MustCompile(`\s+`)
	traceSlugInvalidRe    = regexp.MustCompile(`[^a-z0-9_]+`)
)

const traceSlugMaxLen = 80

func slugify(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = traceSlugWhitespaceRe.ReplaceAllString(s, "_")
	s = traceSlugInvalidRe.ReplaceAllString(s, "")
	if s == "" {
		return "question"
	}
	if len(s) > traceSlugMaxLen {
		s = s[:traceSlugMaxLen]
	}
	return s
}

// WriteTrace renders state as indented JSON, truncating each evidence
// item's text to truncateChars, and writes it to outDir under a
// filename of the form {prefix}_{YYYYMMDD_HHMMSS}_{slug}.json. now lets
// callers stamp a deterministic timestamp (the executor itself never
// calls time.Now, per the no-nondeterminism rule on agent() scripts).
func WriteTrace(state types.AgentState, outDir, filenamePrefix string, truncateChars int, now time.Time) (string, error) {
	if filenamePrefix == "" {
		filenamePrefix = "agent"
	}
	if truncateChars <= 0 {
		truncateChars = 800
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("agentloop: create trace dir: %w", err)
	}

	truncated := state
	truncated.Evidence = make([]types.EvidenceItem, len(state.Evidence))
	copy(truncated.Evidence, state.Evidence)
	for i, e := range truncated.Evidence {
		if len(e.Text) > truncateChars {
			e.Text = e.Text[:truncateChars] + "…(truncated)"
			truncated.Evidence[i] = e
		}
	}

	payload, err := json.MarshalIndent(truncated, "", "  ")
	if err != nil {
		return "", fmt.Errorf("agentloop: marshal trace: %w", err)
	}

	slug := slugify(state.Question)
	ts := now.Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s_%s.json", filenamePrefix, ts, slug)
	path := filepath.Join(outDir, filename)

	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("agentloop: write trace: %w", err)
	}
	return path, nil
}
