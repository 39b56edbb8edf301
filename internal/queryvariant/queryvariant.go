// Package queryvariant deterministically expands a question into a set of
// retrieval queries: the question itself plus rule-based rewrites, in
// stable insertion order.
package queryvariant

import (
	"regexp"
	"strings"
)

var (
	techTokenRe  = regexp.MustCompile(`[A-Za-z0-9]+(?:[-._][A-Za-z0-9]+)+`)
	algorithmRe  = regexp.MustCompile(`(?i)\balgorithm\s+(\d+)\b`)
	splitRe      = regexp.MustCompile(`[-._]`)
	keyGenPhrase = []string{"key generation", "encapsulation", "decapsulation", "sign", "verify"}
)

// schemeRoots are the technical-token scheme identifiers this generator
// knows how to turn into a dot-name operation variant (e.g. ML-KEM.KeyGen).
var schemeRoots = map[string]string{
	"ML-KEM": "ML-KEM.KeyGen",
	"ML-DSA": "ML-DSA.Sign",
}

// ExtractTechnicalTokens returns the unique technical compound tokens
// (e.g. "ML-KEM", "FIPS.203") found in s, lowercased. Shared by the
// rerank pass so its exact-match boost keys off the same definition of
// "technical token" as variant generation.
func ExtractTechnicalTokens(s string) []string {
	matches := uniqueMatches(techTokenRe, s)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = strings.ToLower(m)
	}
	return out
}

// Generate produces the deterministic, deduped, insertion-order-preserving
// set of query variants for q. The original q is always first (I6).
func Generate(q string) []string {
	original := strings.TrimSpace(q)
	if original == "" {
		return nil
	}

	variants := []string{original}

	// Rule 2: technical-compound expansion, q + each token's components.
	technicalTokens := uniqueMatches(techTokenRe, original)
	if len(technicalTokens) > 0 {
		var components []string
		seen := make(map[string]struct{})
		for _, tok := range technicalTokens {
			for _, part := range splitRe.Split(tok, -1) {
				if part == "" {
					continue
				}
				if _, ok := seen[part]; ok {
					continue
				}
				seen[part] = struct{}{}
				components = append(components, part)
			}
		}
		if len(components) > 0 {
			variants = append(variants, original+" "+strings.Join(components, " "))
		}
		variants = append(variants, strings.Join(technicalTokens, " "))
	}

	// Rule 3: operation phrasing + scheme root → dot-name variant.
	lowered := strings.ToLower(original)
	if containsAny(lowered, keyGenPhrase) {
		for _, tok := range technicalTokens {
			if dotName, ok := schemeRoots[strings.ToUpper(tok)]; ok {
				variants = append(variants, dotName+" "+matchedPhrase(lowered, keyGenPhrase))
			}
		}
	}

	// Rule 4: Algorithm N — alone and joined with each technical token.
	if m := algorithmRe.FindStringSubmatch(original); m != nil {
		algPhrase := "Algorithm " + m[1]
		variants = append(variants, algPhrase)
		for _, tok := range technicalTokens {
			variants = append(variants, algPhrase+" "+tok)
		}
	}

	// Rule 5: compare intent → one variant per topic.
	if topicA, topicB, ok := ExtractCompareTopics(original); ok {
		variants = append(variants, topicA, topicB)
	}

	return dedup(variants)
}

func uniqueMatches(re *regexp.Regexp, s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range re.FindAllString(s, -1) {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func matchedPhrase(s string, subs []string) string {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return sub
		}
	}
	return ""
}

func dedup(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		key := strings.TrimSpace(item)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

var (
	compareDifferenceRe = regexp.MustCompile(`(?i)difference[s]?\s+between\s+(.+?)\s+and\s+(.+)`)
	compareCompareRe    = regexp.MustCompile(`(?i)compare\s+(.+?)\s+(?:and|with)\s+(.+)`)
	compareComparisonRe = regexp.MustCompile(`(?i)comparison\s+of\s+(.+?)\s+and\s+(.+)`)
	compareVsRe         = regexp.MustCompile(`(?i)(.+?)\s+(?:vs\.?|versus)\s+(.+)`)
)

// ExtractCompareTopics detects a compare-intent question and extracts its
// two topics, in priority order. Identical topics are rejected (the caller
// should fall back to general retrieve).
func ExtractCompareTopics(q string) (topicA, topicB string, ok bool) {
	for _, re := range []*regexp.Regexp{compareDifferenceRe, compareCompareRe, compareComparisonRe, compareVsRe} {
		m := re.FindStringSubmatch(q)
		if m == nil {
			continue
		}
		a := strings.TrimSpace(strings.TrimRight(m[1], "?."))
		b := strings.TrimSpace(strings.TrimRight(m[2], "?."))
		if a == "" || b == "" {
			continue
		}
		if strings.EqualFold(a, b) {
			return "", "", false
		}
		return a, b, true
	}
	return "", "", false
}

// IsCompareIntent reports whether q matches a compare-intent question form.
func IsCompareIntent(q string) bool {
	_, _, ok := ExtractCompareTopics(q)
	return ok
}

// AlgorithmNumber extracts the N in "Algorithm N" from q, if present.
func AlgorithmNumber(q string) (string, bool) {
	m := algorithmRe.FindStringSubmatch(q)
	if m == nil {
		return "", false
	}
	return m[1], true
}
