// Package chromem implements the vector index boundary on top of
// chromem-go, a pure Go embedded vector database.
package chromem

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"

	"github.com/kioku-ai/kioku/memory"
)

// Index stores (vector, document, metadata) triples in a single
// chromem collection and answers cosine nearest-neighbor queries.
// Callers always provide embeddings; chromem's own embedding hook is
// never used.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// New opens or creates the named collection. An empty path keeps the
// database in memory; otherwise it is persisted under path.
func New(path, collection string) (*Index, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open vector database",
				goerr.T(memory.TagInitFailure), goerr.V("path", path))
		}
	}

	col, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open collection",
			goerr.T(memory.TagInitFailure), goerr.V("collection", collection))
	}

	return &Index{db: db, collection: col}, nil
}

// Add writes one record. chromem persists the document atomically, so
// a failed write leaves no partial record behind.
func (x *Index) Add(ctx context.Context, id string, embedding []float32, document string, metadata map[string]string) error {
	doc := chromem.Document{
		ID:        id,
		Content:   document,
		Embedding: embedding,
		Metadata:  metadata,
	}
	if err := x.collection.AddDocument(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to add document", goerr.V("id", id))
	}
	return nil
}

// Query returns up to k neighbors ordered by descending cosine
// similarity. chromem rejects result counts above the collection
// size, so k is clamped; an empty collection yields no results.
func (x *Index) Query(ctx context.Context, embedding []float32, k int, where map[string]string) ([]memory.Neighbor, error) {
	count := x.collection.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	// A where clause may match fewer than k documents; chromem returns
	// the shortfall rather than erroring, so only the collection-wide
	// clamp above is needed.
	results, err := x.collection.QueryEmbedding(ctx, embedding, k, where, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "vector query failed", goerr.V("k", k))
	}

	neighbors := make([]memory.Neighbor, 0, len(results))
	for _, res := range results {
		neighbors = append(neighbors, memory.Neighbor{
			ID:         res.ID,
			Document:   res.Content,
			Metadata:   res.Metadata,
			Embedding:  res.Embedding,
			Similarity: res.Similarity,
		})
	}
	return neighbors, nil
}

// Delete removes the listed records. Absent ids are ignored so the
// operation is idempotent.
func (x *Index) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := x.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return goerr.Wrap(err, "failed to delete documents", goerr.V("count", len(ids)))
	}
	return nil
}

// Count returns the number of stored records.
func (x *Index) Count() int {
	return x.collection.Count()
}

// Close releases resources. chromem keeps everything in memory or on
// already-synced files, so nothing needs flushing.
func (x *Index) Close() error {
	return nil
}

