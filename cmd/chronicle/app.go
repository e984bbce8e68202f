package main

import (
	"fmt"
	"time"

	"github.com/worldsim/chronicle/pkg/config"
	"github.com/worldsim/chronicle/pkg/logger"
	"github.com/worldsim/chronicle/pkg/memory"
	"github.com/worldsim/chronicle/pkg/narrator"
	"github.com/worldsim/chronicle/pkg/providers"
)

// app holds the wired runtime: one store plus the pipeline, retriever,
// and narrator built from config.
type app struct {
	cfg        *config.Config
	store      *memory.SQLiteStore
	chunker    *memory.Chunker
	summarizer *memory.Summarizer
	embedder   memory.Embedder
	pipeline   *memory.TickPipeline
	retriever  *memory.Retriever
	narrator   *narrator.Narrator
}

func openApp(configPath string, debug bool) (*app, error) {
	if debug {
		logger.SetLevel(logger.DEBUG)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store, err := memory.NewSQLiteStore(cfg.DBPath, cfg.VectorDim)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var embedder memory.Embedder
	if cfg.VectorDim > 0 {
		if cfg.EmbeddingsEnabled() {
			client := providers.NewEmbeddingsClient(cfg.Embeddings.APIKey, cfg.Embeddings.APIBase, cfg.HTTPTimeout())
			embedder = memory.NewRemoteEmbedder(client, cfg.Embeddings.Model, cfg.VectorDim)
		} else {
			embedder = memory.NewFallbackEmbedder(cfg.VectorDim, "local-hash")
		}
	}

	var gen memory.TextGenerator
	if cfg.LLMEnabled() {
		client := providers.NewChatClient(cfg.LLM.APIKey, cfg.LLM.APIBase, cfg.HTTPTimeout())
		gen = memory.NewChatGenerator(client, cfg.LLM.Model, 0.2)
	}

	chunker := memory.NewChunker(cfg.Chunker.Size, cfg.Chunker.Overlap)
	summarizer := memory.NewSummarizer(gen)
	pipeline := memory.NewTickPipeline(store, chunker, summarizer, embedder, cfg.VectorDim)

	retriever := memory.NewRetriever(store, embedder,
		memory.Limits{
			Chunks:     cfg.Retriever.Chunks,
			Events:     cfg.Retriever.Events,
			StatesDays: cfg.Retriever.StatesDays,
		},
		cfg.MaxTokens,
		cfg.Retriever.CacheSize,
		time.Duration(cfg.Retriever.CacheSeconds)*time.Second,
	)

	return &app{
		cfg:        cfg,
		store:      store,
		chunker:    chunker,
		summarizer: summarizer,
		embedder:   embedder,
		pipeline:   pipeline,
		retriever:  retriever,
		narrator:   narrator.New(store, retriever, chunker, embedder, gen, cfg.VectorDim),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logger.Warnf("closing store: %v", err)
	}
}
