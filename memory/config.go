package memory

import "time"

// Config holds tunables shared by the manager and embedding service.
type Config struct {
	// CollectionName is the vector index collection to open or create.
	CollectionName string

	// Dimensions is the embedding vector size. Stored embeddings must
	// have exactly this many components.
	Dimensions int

	// TopK is the default number of neighbors fetched per query.
	TopK int

	// SimilarityThreshold is the default minimum cosine similarity a
	// retrieved record must meet. Filtering is inclusive: a result at
	// exactly the threshold is kept.
	SimilarityThreshold float64

	// CacheSize bounds the embedding memoization cache (entries).
	CacheSize int

	// CleanupScanLimit caps how many candidate records one retention
	// pass inspects. The scan is an approximation, not an exhaustive
	// sweep.
	CleanupScanLimit int

	// BatchDelay is the inter-item pause for rate-limited remote
	// embedding providers.
	BatchDelay time.Duration
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return &Config{
		CollectionName:      "kioku_memory",
		Dimensions:          384,
		TopK:                10,
		SimilarityThreshold: 0.7,
		CacheSize:           1000,
		CleanupScanLimit:    1000,
		BatchDelay:          100 * time.Millisecond,
	}
}
