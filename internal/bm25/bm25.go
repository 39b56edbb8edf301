// Package bm25 implements the lexical retrieval leg of hybrid search: a
// technical-compound-aware tokenizer, classical BM25 scoring, and a
// deterministically built, gob-persisted index artifact.
package bm25

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/jackzampolin/docqa/internal/types"
)

// Default BM25 parameters per the scoring contract.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

var (
	tokenRe    = regexp.MustCompile(`[a-z0-9]+(?:[-._][a-z0-9]+)+|[a-z0-9]+`)
	compoundRe = regexp.MustCompile(`^[a-z0-9]+(?:[-._][a-z0-9]+)+$`)
	splitRe    = regexp.MustCompile(`[-._]`)
)

// Tokenize lowercases text and emits both the full compound token and its
// alphanumeric components for any run joined by -, ., or _.
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	tokens := tokenRe.FindAllString(lowered, -1)

	expanded := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		expanded = append(expanded, tok)
		if compoundRe.MatchString(tok) {
			for _, part := range splitRe.Split(tok, -1) {
				if part != "" {
					expanded = append(expanded, part)
				}
			}
		}
	}
	return expanded
}

// docRecord is the per-document metadata kept alongside postings.
type docRecord struct {
	ChunkID   string
	DocID     string
	StartPage int
	EndPage   int
	Text      string
	VectorID  int
}

// posting is one (doc index, term frequency) pair.
type posting struct {
	DocIdx int
	TF     float64
}

// Artifact is the persisted BM25 index: parameters, vocabulary/IDF,
// postings, per-document lengths, and a parallel doc metadata array
// indexed by doc_idx (built by iterating chunks in ascending vector_id).
type Artifact struct {
	K1       float64
	B        float64
	NDocs    int
	AvgDL    float64
	DocLens  []int
	IDF      map[string]float64
	Postings map[string][]posting
	Docs     []docRecord
}

// Index wraps an Artifact with search/score operations.
type Index struct {
	a *Artifact
}

// Build constructs a BM25 artifact from chunks, which must already be in
// ascending vector_id order (the chunk store guarantees this).
func Build(chunks []types.Chunk, k1, b float64) (*Artifact, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("bm25: no chunks to index")
	}

	docFreq := make(map[string]int)
	postings := make(map[string][]posting)
	docLens := make([]int, 0, len(chunks))
	docs := make([]docRecord, 0, len(chunks))

	for idx, c := range chunks {
		tokens := Tokenize(c.Text)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}

		total := 0
		for _, n := range tf {
			total += n
		}
		docLens = append(docLens, total)
		docs = append(docs, docRecord{
			ChunkID:   c.ChunkID,
			DocID:     c.DocID,
			StartPage: c.StartPage,
			EndPage:   c.EndPage,
			Text:      c.Text,
			VectorID:  c.VectorID,
		})

		for term := range tf {
			docFreq[term]++
		}
		for term, freq := range tf {
			postings[term] = append(postings[term], posting{DocIdx: idx, TF: float64(freq)})
		}
	}

	nDocs := len(docs)
	sumLens := 0
	for _, l := range docLens {
		sumLens += l
	}
	avgdl := 0.0
	if nDocs > 0 {
		avgdl = float64(sumLens) / float64(nDocs)
	}

	idf := make(map[string]float64, len(docFreq))
	for term, df := range docFreq {
		idf[term] = math.Log(1.0 + (float64(nDocs)-float64(df)+0.5)/(float64(df)+0.5))
	}

	return &Artifact{
		K1:       k1,
		B:        b,
		NDocs:    nDocs,
		AvgDL:    avgdl,
		DocLens:  docLens,
		IDF:      idf,
		Postings: postings,
		Docs:     docs,
	}, nil
}

// Save persists the artifact as a gob-encoded single file.
func Save(a *Artifact, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("bm25: create artifact: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := gob.NewEncoder(w).Encode(a); err != nil {
		return fmt.Errorf("bm25: encode artifact: %w", err)
	}
	return w.Flush()
}

// Load reads a gob-encoded artifact from disk.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bm25: open artifact: %w", err)
	}
	defer f.Close()

	var a Artifact
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&a); err != nil {
		return nil, fmt.Errorf("bm25: decode artifact: %w", err)
	}
	return &Index{a: &a}, nil
}

// NewIndex wraps an in-memory artifact (used when building without a round
// trip through disk, e.g. in tests).
func NewIndex(a *Artifact) *Index {
	return &Index{a: a}
}

// Search returns the top-k hits ordered by (-score, doc_id, start_page, chunk_id).
// An empty query yields zero results, not an error.
func (idx *Index) Search(query string, k int) []types.Hit {
	a := idx.a
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	qtf := make(map[string]int, len(terms))
	for _, t := range terms {
		qtf[t]++
	}

	scores := make(map[int]float64)
	for term, weight := range qtf {
		idfVal, ok := a.IDF[term]
		if !ok {
			continue
		}
		for _, p := range a.Postings[term] {
			dl := float64(a.DocLens[p.DocIdx])
			denom := p.TF + a.K1*(1.0-a.B+a.B*(dl/math.Max(a.AvgDL, 1e-9)))
			termScore := idfVal * ((p.TF * (a.K1 + 1.0)) / math.Max(denom, 1e-9))
			scores[p.DocIdx] += termScore * float64(weight)
		}
	}

	type scored struct {
		docIdx int
		score  float64
	}
	ranked := make([]scored, 0, len(scores))
	for docIdx, score := range scores {
		ranked = append(ranked, scored{docIdx, score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		ri, rj := ranked[i], ranked[j]
		if ri.score != rj.score {
			return ri.score > rj.score
		}
		di, dj := a.Docs[ri.docIdx], a.Docs[rj.docIdx]
		if di.DocID != dj.DocID {
			return di.DocID < dj.DocID
		}
		if di.StartPage != dj.StartPage {
			return di.StartPage < dj.StartPage
		}
		return di.ChunkID < dj.ChunkID
	})
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}

	hits := make([]types.Hit, 0, len(ranked))
	for _, r := range ranked {
		rec := a.Docs[r.docIdx]
		hits = append(hits, types.Hit{
			Score:     r.score,
			ChunkID:   rec.ChunkID,
			DocID:     rec.DocID,
			StartPage: rec.StartPage,
			EndPage:   rec.EndPage,
			Text:      rec.Text,
		})
	}
	return hits
}

// ScoreText scores an arbitrary text blob against a query using the same
// BM25 formula, treating text as a one-off unindexed document. Used by rerank.
func (idx *Index) ScoreText(query, text string) float64 {
	a := idx.a
	qterms := Tokenize(query)
	if len(qterms) == 0 {
		return 0
	}
	dtokens := Tokenize(text)
	dtf := make(map[string]int, len(dtokens))
	for _, t := range dtokens {
		dtf[t]++
	}
	dl := float64(len(dtokens))

	qtf := make(map[string]int, len(qterms))
	for _, t := range qterms {
		qtf[t]++
	}

	score := 0.0
	for term, weight := range qtf {
		idfVal, ok := a.IDF[term]
		if !ok {
			continue
		}
		tf := float64(dtf[term])
		if tf == 0 {
			continue
		}
		denom := tf + a.K1*(1.0-a.B+a.B*(dl/math.Max(a.AvgDL, 1e-9)))
		score += idfVal * ((tf * (a.K1 + 1.0)) / math.Max(denom, 1e-9)) * float64(weight)
	}
	return score
}

// NDocs returns the number of indexed documents.
func (idx *Index) NDocs() int { return idx.a.NDocs }

// AvgDL returns the average document length used by the index.
func (idx *Index) AvgDL() float64 { return idx.a.AvgDL }
