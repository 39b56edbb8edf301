package main

import (
	"context"
	"fmt"

	"github.com/jackzampolin/docqa/internal/bm25"
	"github.com/jackzampolin/docqa/internal/chunkstore"
	"github.com/jackzampolin/docqa/internal/config"
	"github.com/jackzampolin/docqa/internal/dense"
	"github.com/jackzampolin/docqa/internal/generator"
	"github.com/jackzampolin/docqa/internal/home"
	"github.com/jackzampolin/docqa/internal/retrieve"
)

// corpus bundles the retrieval pipeline and chunk store every retrieval-
// driven subcommand needs, built once from the loaded config and home dir.
type corpus struct {
	store    *chunkstore.Store
	pipeline *retrieve.Pipeline
}

func openHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}
	return h, nil
}

// buildCorpus loads the chunk store and BM25 index artifacts and, unless
// the vector backend is "bm25" (lexical-only), builds an in-memory dense
// index over the same chunks using the deterministic hash embedder.
// Real vector backends are expected to satisfy dense.Searcher themselves;
// this stand-in keeps `search`/`ask`/`agent-ask` usable without a live
// vector store configured.
func buildCorpus(ctx context.Context, settings *config.Settings, h *home.Dir) (*corpus, error) {
	store, err := chunkstore.Load(h.ChunkStorePath())
	if err != nil {
		return nil, fmt.Errorf("load chunk store: %w", err)
	}

	bm25Idx, err := bm25.Load(h.BM25ArtifactPath())
	if err != nil {
		return nil, fmt.Errorf("load bm25 index: %w", err)
	}

	pipeline := &retrieve.Pipeline{BM25: bm25Idx}
	if settings.VectorBackend != "bm25" {
		embedder := dense.NewHashEmbedder(64)
		denseIdx, err := dense.NewMemoryIndex(ctx, store, embedder, 3)
		if err != nil {
			return nil, fmt.Errorf("build dense index: %w", err)
		}
		pipeline.Dense = denseIdx
	}

	return &corpus{store: store, pipeline: pipeline}, nil
}

func buildGenerator(settings *config.Settings) generator.Generator {
	return generator.NewOpenAIGenerator(generator.Config{
		APIKey:      config.ResolveEnvVars(settings.LLMAPIKey),
		Model:       settings.LLMModel,
		Temperature: settings.LLMTemperature,
	})
}

// backendFromVectorBackend maps the configured vector store name (faiss,
// pgvector, chroma, bm25) onto the retrieval pipeline's two single-backend
// choices: every dense vector store is "dense" to the pipeline, which
// doesn't care which one backs it.
func backendFromVectorBackend(vectorBackend string) string {
	if vectorBackend == "bm25" {
		return retrieve.BackendBM25
	}
	return retrieve.BackendDense
}

func retrievalOptionsFromSettings(settings *config.Settings) retrieve.Options {
	return retrieve.Options{
		Mode:                settings.RetrievalMode,
		Backend:             backendFromVectorBackend(settings.VectorBackend),
		CandidateMultiplier: settings.RetrievalCandidateMult,
		K0:                  settings.RetrievalRRFK0,
		UseQueryFusion:      settings.RetrievalQueryFusion,
		EnableRerank:        settings.RetrievalEnableRerank,
		RerankPool:          settings.RetrievalRerankPool,
	}
}
