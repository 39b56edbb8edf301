// Package eval loads labeled question sets, scores retrieval and answer
// quality against gold page spans, and writes deterministic run reports.
package eval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/docqa/internal/schema"
)

// questionRowSchema rejects malformed rows (wrong field types, unknown
// shapes) before the looser business-rule checks in ValidateQuestions
// run; it does not enforce qid uniqueness or gold-span ordering, which
// stay in ValidateQuestions.
const questionRowSchema = `{
  "type": "object",
  "required": ["qid", "question", "answerable"],
  "properties": {
    "qid": {"type": "string"},
    "question": {"type": "string"},
    "answerable": {"type": "boolean"},
    "gold": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["doc_id", "start_page", "end_page"],
        "properties": {
          "doc_id": {"type": "string"},
          "start_page": {"type": "integer"},
          "end_page": {"type": "integer"}
        }
      }
    }
  }
}`

var (
	questionRowCompileOnce sync.Once
	questionRowCompiledVal *jsonschema.Schema
	questionRowCompileErr  error
)

func compiledQuestionRowSchema() (*jsonschema.Schema, error) {
	questionRowCompileOnce.Do(func() {
		questionRowCompiledVal, questionRowCompileErr = schema.Compile("question_row.json", []byte(questionRowSchema))
	})
	return questionRowCompiledVal, questionRowCompileErr
}

// GoldSpan is one labeled (doc_id, page range) a question's answer must
// be grounded in.
type GoldSpan struct {
	DocID     string `json:"doc_id"`
	StartPage int    `json:"start_page"`
	EndPage   int    `json:"end_page"`
}

// Question is one labeled row of an evaluation dataset.
type Question struct {
	QID        string     `json:"qid"`
	Question   string     `json:"question"`
	Answerable bool       `json:"answerable"`
	Gold       []GoldSpan `json:"gold"`
}

var qidRe = regexp.MustCompile(`^([A-Za-z_-]*?)(\d+)$`)

// QIDSortKey orders qids with numeric awareness so q2 sorts before q10.
// Non-matching qids sort after all matching ones, in lexical order.
func QIDSortKey(qid string) (prefix string, num int, numeric bool, raw string) {
	s := strings.TrimSpace(qid)
	m := qidRe.FindStringSubmatch(s)
	if m == nil {
		return "", 0, false, s
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false, s
	}
	return m[1], n, true, s
}

// lessQID implements the deterministic qid ordering used throughout eval
// artifacts: numeric-aware rows sort first by (prefix, num), then raw
// strings sort lexically.
func lessQID(a, b string) bool {
	prefixA, numA, numericA, rawA := QIDSortKey(a)
	prefixB, numB, numericB, rawB := QIDSortKey(b)
	if numericA != numericB {
		return numericA
	}
	if !numericA {
		return rawA < rawB
	}
	if prefixA != prefixB {
		return prefixA < prefixB
	}
	if numA != numB {
		return numA < numB
	}
	return rawA < rawB
}

// SortQuestionsByQID sorts rows in place by the numeric-aware qid key.
func SortQuestionsByQID(rows []Question) {
	sort.SliceStable(rows, func(i, j int) bool {
		return lessQID(rows[i].QID, rows[j].QID)
	})
}

func normalizeGold(raw []GoldSpan) ([]GoldSpan, error) {
	out := make([]GoldSpan, len(raw))
	copy(out, raw)
	for i, g := range out {
		doc := strings.TrimSpace(g.DocID)
		if doc == "" {
			return nil, fmt.Errorf("gold.doc_id must be a non-empty string")
		}
		if g.StartPage <= 0 || g.EndPage <= 0 {
			return nil, fmt.Errorf("gold page spans must be positive")
		}
		if g.StartPage > g.EndPage {
			return nil, fmt.Errorf("gold start_page must be <= end_page")
		}
		out[i].DocID = doc
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DocID != out[j].DocID {
			return out[i].DocID < out[j].DocID
		}
		if out[i].StartPage != out[j].StartPage {
			return out[i].StartPage < out[j].StartPage
		}
		return out[i].EndPage < out[j].EndPage
	})
	return out, nil
}

// DatasetError reports a dataset row that failed validation, carrying
// enough context (row number, qid once known) to point a caller at the
// exact offending line without a partial load having already happened.
type DatasetError struct {
	Row int
	QID string
	Msg string
}

func (e *DatasetError) Error() string {
	if e.QID != "" {
		return fmt.Sprintf("row %d (%s): %s", e.Row, e.QID, e.Msg)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Msg)
}

// ValidateQuestions normalizes gold spans in place and enforces the
// dataset's contracts: non-empty unique qids, non-empty questions,
// answerable=true requires at least one gold span unless requireLabeled
// is false, and answerable=false must carry no gold spans. The whole
// file is checked before any row is considered valid: a later row's
// failure means no rows are returned, never a partial dataset.
func ValidateQuestions(rows []Question, requireLabeled bool) error {
	seen := make(map[string]struct{}, len(rows))
	for i := range rows {
		row := &rows[i]
		idx := i + 1

		qid := strings.TrimSpace(row.QID)
		if qid == "" {
			return &DatasetError{Row: idx, Msg: "qid must be non-empty"}
		}
		if _, ok := seen[qid]; ok {
			return &DatasetError{Row: idx, QID: qid, Msg: "duplicate qid"}
		}
		seen[qid] = struct{}{}
		row.QID = qid

		if strings.TrimSpace(row.Question) == "" {
			return &DatasetError{Row: idx, QID: qid, Msg: "question must be non-empty"}
		}

		normalized, err := normalizeGold(row.Gold)
		if err != nil {
			return &DatasetError{Row: idx, QID: qid, Msg: err.Error()}
		}
		row.Gold = normalized

		if row.Answerable && requireLabeled && len(normalized) == 0 {
			return &DatasetError{Row: idx, QID: qid, Msg: "answerable=true requires at least one gold span"}
		}
		if !row.Answerable && len(normalized) > 0 {
			return &DatasetError{Row: idx, QID: qid, Msg: "answerable=false must not include gold spans"}
		}
	}
	return nil
}

// LoadQuestions reads, normalizes, validates, and deterministically
// orders a JSONL question dataset.
func LoadQuestions(path string, requireLabeled bool) ([]Question, error) {
	rowSchema, err := compiledQuestionRowSchema()
	if err != nil {
		return nil, fmt.Errorf("eval: compile question row schema: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("eval: open dataset: %w", err)
	}
	defer f.Close()

	var rows []Question
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := schema.Validate(rowSchema, json.RawMessage(line)); err != nil {
			return nil, &DatasetError{Row: lineno, Msg: fmt.Sprintf("schema: %v", err)}
		}
		var row Question
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, &DatasetError{Row: lineno, Msg: fmt.Sprintf("invalid JSON: %v", err)}
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("eval: scan dataset: %w", err)
	}

	if err := ValidateQuestions(rows, requireLabeled); err != nil {
		return nil, err
	}
	SortQuestionsByQID(rows)
	return rows, nil
}
