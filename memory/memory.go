package memory

import "context"

// Embedder converts text to vector embeddings. Implementations are
// the raw providers: a remote API (gemini), a local model (onnx), or
// a deterministic mock. Providers may return unnormalized vectors;
// the EmbeddingService normalizes before anything else sees them.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts several texts in provider-appropriate
	// fashion: local models embed in one pass, rate-limited APIs
	// embed sequentially with an inter-item delay. Output order
	// matches input order; callers pass pre-filtered input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Neighbor is one raw nearest-neighbor result from the index.
type Neighbor struct {
	ID         string
	Document   string
	Metadata   map[string]string
	Embedding  []float32
	Similarity float32
}

// Index is the vector index boundary. Metadata values are flat
// strings only; the where clause is exact-match. Implementation:
// memory/store/chromem (embedded, optionally persistent).
type Index interface {
	// Add writes one (vector, document, metadata) triple keyed by id.
	// The write is all-or-nothing for the record.
	Add(ctx context.Context, id string, embedding []float32, document string, metadata map[string]string) error

	// Query returns up to k nearest neighbors under cosine
	// similarity, restricted by the exact-match where clause,
	// ordered by descending similarity.
	Query(ctx context.Context, embedding []float32, k int, where map[string]string) ([]Neighbor, error)

	// Delete removes records irrevocably. Absent ids are ignored.
	Delete(ctx context.Context, ids ...string) error

	// Count returns the number of stored records.
	Count() int

	// Close releases resources.
	Close() error
}
