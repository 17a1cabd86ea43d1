// Package gemini embeds text via the Gemini embedding API.
package gemini

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/kioku-ai/kioku/memory"
)

// Config configures the Gemini embedder.
type Config struct {
	// APIKey authenticates against the Gemini API. Required.
	APIKey string

	// Model is the embedding model name (default: gemini-embedding-001).
	Model string

	// Dimensions is the requested output vector size (default: 768).
	Dimensions int

	// BatchDelay is the pause between items in EmbedBatch, keeping
	// batch traffic under the API rate limits (default: 100ms).
	BatchDelay time.Duration
}

// Embedder calls the remote Gemini embedding endpoint.
type Embedder struct {
	client     *genai.Client
	model      string
	dimensions int
	batchDelay time.Duration
}

// New creates the client and verifies configuration. Failure here is
// fatal to startup; there is no fallback to another provider kind.
func New(ctx context.Context, cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, goerr.New("gemini api key is required", goerr.T(memory.TagInitFailure))
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-embedding-001"
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 768
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = 100 * time.Millisecond
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client", goerr.T(memory.TagInitFailure))
	}

	return &Embedder{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchDelay: cfg.BatchDelay,
	}, nil
}

// Embed converts a single text to an embedding vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr(int32(e.dimensions)),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content", goerr.V("model", e.model))
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("gemini returned an empty embedding", goerr.V("model", e.model))
	}

	return resp.Embeddings[0].Values, nil
}

// EmbedBatch embeds texts one by one with a fixed inter-item delay to
// respect the API's throughput limits.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, goerr.Wrap(err, "batch embedding failed", goerr.V("index", i))
		}
		out = append(out, vec)

		if i < len(texts)-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.batchDelay):
			}
		}
	}
	return out, nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
