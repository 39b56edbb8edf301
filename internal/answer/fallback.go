package answer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jackzampolin/docqa/internal/types"
)

var stepLineRe = regexp.MustCompile(`(?m)^(\d+):\s*(.+)$`)

// AlgorithmFallback searches evidence for a block containing the exact
// "Algorithm N" phrase and numbered step markers, and emits one bullet per
// step verbatim, each citing its source chunk.
func AlgorithmFallback(n string, evidence []types.EvidenceItem) (types.AnswerResult, bool) {
	phrase := "Algorithm " + n
	for _, e := range evidence {
		if !strings.Contains(e.Text, phrase) {
			continue
		}
		steps := stepLineRe.FindAllStringSubmatch(prettify(e.Text), -1)
		if len(steps) == 0 {
			continue
		}

		var bullets []string
		for _, step := range steps {
			bullets = append(bullets, fmt.Sprintf("- %s: %s [%s]", step[1], strings.TrimSpace(step[2]), e.Key))
		}
		answerText := strings.Join(bullets, "\n")

		keyToCitation := map[string]types.Citation{
			e.Key: {Key: e.Key, DocID: e.DocID, StartPage: e.StartPage, EndPage: e.EndPage, ChunkID: e.ChunkID},
		}
		result := EnforceInlineCitations(answerText, keyToCitation)
		if !result.IsRefusal() {
			return result, true
		}
	}
	return types.AnswerResult{}, false
}

// rolePhrases maps a topic family to the phrases that identify its role in
// the corpus prose.
var rolePhrases = []struct {
	family string
	phrase string
}{
	{"kem", "key-encapsulation mechanism"},
	{"dsa", "digital signature scheme"},
	{"dsa", "digital signature algorithm"},
	{"hash", "hash function"},
	{"xof", "extendable-output function"},
}

func roleHitForTopic(topic string, hits []types.Hit) (types.Hit, string, bool) {
	lowerTopic := strings.ToLower(topic)
	for _, hit := range hits {
		lowerText := strings.ToLower(hit.Text)
		if !strings.Contains(lowerText, lowerTopic) {
			continue
		}
		for _, rp := range rolePhrases {
			if strings.Contains(lowerText, rp.phrase) {
				return hit, rp.phrase, true
			}
		}
	}
	// Fall back to the best-scoring hit mentioning the topic, without a role phrase.
	for _, hit := range hits {
		if strings.Contains(strings.ToLower(hit.Text), lowerTopic) {
			return hit, "", true
		}
	}
	return types.Hit{}, "", false
}

// CompareFallback builds a minimal 3-bullet compare answer from the full
// deduped hit list: topic-A role, topic-B role, and a combined distinction
// bullet citing both, with locally assigned keys c1/c2.
func CompareFallback(topicA, topicB string, hits []types.Hit) (types.AnswerResult, bool) {
	hitA, roleA, okA := roleHitForTopic(topicA, hits)
	hitB, roleB, okB := roleHitForTopic(topicB, hits)
	if !okA || !okB {
		return types.AnswerResult{}, false
	}

	keyToCitation := map[string]types.Citation{
		"c1": {Key: "c1", DocID: hitA.DocID, StartPage: hitA.StartPage, EndPage: hitA.EndPage, ChunkID: hitA.ChunkID},
		"c2": {Key: "c2", DocID: hitB.DocID, StartPage: hitB.StartPage, EndPage: hitB.EndPage, ChunkID: hitB.ChunkID},
	}

	describeA := topicA + " is a " + roleA
	if roleA == "" {
		describeA = topicA + " is described in the evidence"
	}
	describeB := topicB + " is a " + roleB
	if roleB == "" {
		describeB = topicB + " is described in the evidence"
	}

	lines := []string{
		fmt.Sprintf("- %s. [c1]", describeA),
		fmt.Sprintf("- %s. [c2]", describeB),
		fmt.Sprintf("- %s and %s serve different roles in the corpus. [c1][c2]", topicA, topicB),
	}
	answerText := strings.Join(lines, "\n")

	result := EnforceInlineCitations(answerText, keyToCitation)
	if !result.IsRefusal() {
		return result, true
	}
	return types.AnswerResult{}, false
}
