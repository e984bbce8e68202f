package memory

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand"
	"time"

	"github.com/worldsim/chronicle/pkg/logger"
	"github.com/worldsim/chronicle/pkg/providers"
)

const (
	remoteEmbedAttempts = 3
	remoteEmbedBaseWait = 200 * time.Millisecond
	remoteEmbedMaxWait  = 2 * time.Second
)

// fallbackEmbedder produces a deterministic pseudo-random unit vector
// seeded from the text, so retrieval stays stable across runs without any
// remote capability.
type fallbackEmbedder struct {
	dims    int
	modelID string
}

// NewFallbackEmbedder returns the local deterministic embedder. modelID
// participates in the seed so different configured models produce
// different (but stable) spaces.
func NewFallbackEmbedder(dims int, modelID string) Embedder {
	return &fallbackEmbedder{dims: dims, modelID: modelID}
}

func (e *fallbackEmbedder) ModelID() string { return e.modelID }

func (e *fallbackEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return deterministicVector(e.modelID+":"+text, e.dims), nil
}

func deterministicVector(seedText string, dims int) []float32 {
	digest := sha256.Sum256([]byte(seedText))
	seed := int64(binary.BigEndian.Uint64(digest[:8]))
	rng := rand.New(rand.NewSource(seed))

	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = float32(rng.Float64()*2 - 1)
	}
	normalizeVector(vec)
	return vec
}

// remoteEmbedder calls an OpenAI-compatible embeddings endpoint, retrying
// transient failures, and degrades to the deterministic fallback when the
// remote stays unavailable.
type remoteEmbedder struct {
	client   *providers.EmbeddingsClient
	modelID  string
	dims     int
	fallback Embedder
}

func NewRemoteEmbedder(client *providers.EmbeddingsClient, modelID string, dims int) Embedder {
	return &remoteEmbedder{
		client:   client,
		modelID:  modelID,
		dims:     dims,
		fallback: NewFallbackEmbedder(dims, modelID),
	}
}

func (e *remoteEmbedder) ModelID() string { return e.modelID }

func (e *remoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	wait := remoteEmbedBaseWait
	for attempt := 0; attempt < remoteEmbedAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
			if wait > remoteEmbedMaxWait {
				wait = remoteEmbedMaxWait
			}
		}
		vec, err := e.client.Embed(ctx, e.modelID, text)
		if err == nil {
			vec = padOrTrim(vec, e.dims)
			normalizeVector(vec)
			return vec, nil
		}
		lastErr = err
	}
	logger.Warnf("remote embedding failed, using deterministic fallback: %v", lastErr)
	return e.fallback.Embed(ctx, text)
}

// EmbedBatch embeds each text in order with the given embedder.
func EmbedBatch(ctx context.Context, embedder Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := embedder.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func vectorNorm(vec []float32) float64 {
	if len(vec) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	return math.Sqrt(sum)
}

func normalizeVector(vec []float32) {
	n := vectorNorm(vec)
	if n == 0 {
		return
	}
	inv := float32(1.0 / n)
	for i := range vec {
		vec[i] *= inv
	}
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i] * b[i])
	}
	return dot
}
