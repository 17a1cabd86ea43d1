package memory_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/kioku-ai/kioku/memory"
	"github.com/kioku-ai/kioku/memory/embedder/mock"
	chromemstore "github.com/kioku-ai/kioku/memory/store/chromem"
)

func newTestManager(t *testing.T, provider memory.Embedder) (*memory.Manager, *chromemstore.Index) {
	t.Helper()

	svc, err := memory.NewEmbeddingService(provider, 100)
	gt.NoError(t, err)

	index, err := chromemstore.New("", "test_memory")
	gt.NoError(t, err)

	registry := memory.NewRegistry(filepath.Join(t.TempDir(), "sessions.json"))
	return memory.NewManager(index, svc, registry, nil), index
}

func TestStoreAndRetrieveRoundTrip(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, mock.New(64))

	_, err := mgr.CreateSession(ctx, "s1", "Weather talk", "", "")
	gt.NoError(t, err)

	rec := memory.NewMemoryRecord("the weather in tokyo is sunny", "s1", "user")
	rec.Topics = []string{"weather"}
	rec.Keywords = []string{"tokyo", "sunny"}

	id, err := mgr.StoreMemory(ctx, rec)
	gt.NoError(t, err)
	gt.NotEqual(t, id, "")

	// Identical text embeds to an identical vector, so the stored
	// record comes back at the top with similarity close to 1.
	got, err := mgr.RetrieveMemories(ctx, "the weather in tokyo is sunny", memory.QueryOptions{
		SessionID:           "s1",
		SimilarityThreshold: 0.95,
	})
	gt.NoError(t, err)
	gt.A(t, got).Longer(0)
	gt.Equal(t, got[0].ID, id)
	gt.Equal(t, got[0].Text, rec.Text)
	gt.Equal(t, got[0].Speaker, "user")
	gt.Equal(t, got[0].Topics, []string{"weather"})
	gt.Equal(t, got[0].Keywords, []string{"tokyo", "sunny"})
}

func TestStoreMemoryRejectsEmptyText(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, mock.New(16))

	_, err := mgr.StoreMemory(ctx, memory.NewMemoryRecord("   ", "s1", "user"))
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, memory.TagInvalidInput))
}

func TestStoreMemoryRejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, mock.New(16))

	rec := memory.NewMemoryRecord("preset embedding", "s1", "user")
	rec.Embedding = []float32{1, 0}

	_, err := mgr.StoreMemory(ctx, rec)
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, memory.TagInvalidInput))
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, mock.New(16))

	_, err := mgr.RetrieveMemories(ctx, "  ", memory.QueryOptions{})
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, memory.TagInvalidInput))
}

func TestRetrieveSessionScoping(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, mock.New(64))

	rec1 := memory.NewMemoryRecord("shared utterance", "s1", "user")
	rec2 := memory.NewMemoryRecord("shared utterance", "s2", "user")

	_, err := mgr.StoreMemory(ctx, rec1)
	gt.NoError(t, err)
	_, err = mgr.StoreMemory(ctx, rec2)
	gt.NoError(t, err)

	got, err := mgr.RetrieveMemories(ctx, "shared utterance", memory.QueryOptions{
		SessionID:           "s2",
		SimilarityThreshold: 0.95,
	})
	gt.NoError(t, err)
	gt.A(t, got).Length(1)
	gt.Equal(t, got[0].ID, rec2.ID)
	gt.Equal(t, got[0].SessionID, "s2")
}

func TestRetrieveThresholdBoundary(t *testing.T) {
	ctx := context.Background()

	provider := &fixedEmbedder{
		dims: 4,
		vecs: map[string][]float32{
			"query":      {1, 0, 0, 0},
			"match":      {1, 0, 0, 0},
			"orthogonal": {0, 1, 0, 0},
		},
	}
	mgr, _ := newTestManager(t, provider)

	_, err := mgr.StoreMemory(ctx, memory.NewMemoryRecord("match", "s1", "user"))
	gt.NoError(t, err)
	_, err = mgr.StoreMemory(ctx, memory.NewMemoryRecord("orthogonal", "s1", "user"))
	gt.NoError(t, err)

	// Similarity exactly at the threshold is kept.
	got, err := mgr.RetrieveMemories(ctx, "query", memory.QueryOptions{SimilarityThreshold: 1.0})
	gt.NoError(t, err)
	gt.A(t, got).Length(1)
	gt.Equal(t, got[0].Text, "match")

	// Similarity below the threshold is discarded.
	got, err = mgr.RetrieveMemories(ctx, "query", memory.QueryOptions{SimilarityThreshold: 0.5})
	gt.NoError(t, err)
	gt.A(t, got).Length(1)
	gt.Equal(t, got[0].Text, "match")

	// A negative threshold keeps everything, ordered by similarity.
	got, err = mgr.RetrieveMemories(ctx, "query", memory.QueryOptions{SimilarityThreshold: -1})
	gt.NoError(t, err)
	gt.A(t, got).Length(2)
	gt.Equal(t, got[0].Text, "match")
}

func TestRetrieveTimeRange(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, mock.New(64))

	now := time.Now()
	texts := map[string]time.Time{
		"old utterance":    now.AddDate(0, 0, -20),
		"middle utterance": now.AddDate(0, 0, -10),
		"new utterance":    now,
	}
	for text, ts := range texts {
		rec := memory.NewMemoryRecord(text, "s1", "user")
		rec.Timestamp = ts
		_, err := mgr.StoreMemory(ctx, rec)
		gt.NoError(t, err)
	}

	got, err := mgr.RetrieveMemories(ctx, "middle utterance", memory.QueryOptions{
		SimilarityThreshold: -1,
		Since:               now.AddDate(0, 0, -15),
		Until:               now.AddDate(0, 0, -5),
	})
	gt.NoError(t, err)
	gt.A(t, got).Length(1)
	gt.Equal(t, got[0].Text, "middle utterance")
}

func TestRetrieveTopicsFilter(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, mock.New(64))

	weather := memory.NewMemoryRecord("same words", "s1", "user")
	weather.Topics = []string{"weather"}
	sports := memory.NewMemoryRecord("same words", "s1", "user")
	sports.Topics = []string{"sports", "news"}

	_, err := mgr.StoreMemory(ctx, weather)
	gt.NoError(t, err)
	_, err = mgr.StoreMemory(ctx, sports)
	gt.NoError(t, err)

	got, err := mgr.RetrieveMemories(ctx, "same words", memory.QueryOptions{
		SimilarityThreshold: -1,
		Topics:              []string{"sports"},
	})
	gt.NoError(t, err)
	gt.A(t, got).Length(1)
	gt.Equal(t, got[0].ID, sports.ID)
}

func TestDeleteMemoriesIdempotent(t *testing.T) {
	ctx := context.Background()
	mgr, index := newTestManager(t, mock.New(16))

	rec := memory.NewMemoryRecord("disposable", "s1", "user")
	id, err := mgr.StoreMemory(ctx, rec)
	gt.NoError(t, err)
	gt.Equal(t, index.Count(), 1)

	gt.NoError(t, mgr.DeleteMemories(ctx, id))
	gt.Equal(t, index.Count(), 0)

	// Deleting absent ids is a no-op.
	gt.NoError(t, mgr.DeleteMemories(ctx, id, "never-existed"))
	gt.NoError(t, mgr.DeleteMemories(ctx))
}

func TestCleanupDeletesOldLowImportanceOnly(t *testing.T) {
	ctx := context.Background()
	mgr, index := newTestManager(t, mock.New(32))

	old := time.Now().AddDate(0, 0, -100)
	for text, importance := range map[string]float64{
		"old trivial":   0.1,
		"old mediocre":  0.4,
		"old essential": 0.8,
	} {
		rec := memory.NewMemoryRecord(text, "s1", "user")
		rec.Timestamp = old
		rec.ImportanceScore = importance
		_, err := mgr.StoreMemory(ctx, rec)
		gt.NoError(t, err)
	}

	// Recent records are never deleted regardless of importance.
	fresh := memory.NewMemoryRecord("fresh trivial", "s1", "user")
	fresh.ImportanceScore = 0.1
	_, err := mgr.StoreMemory(ctx, fresh)
	gt.NoError(t, err)

	count, err := mgr.CleanupOldMemories(ctx, 90)
	gt.NoError(t, err)
	gt.Equal(t, count, 1)
	gt.Equal(t, index.Count(), 3)

	// A second pass finds nothing left to delete.
	count, err = mgr.CleanupOldMemories(ctx, 90)
	gt.NoError(t, err)
	gt.Equal(t, count, 0)
}

// brokenIndex fails every query, for exercising cleanup's
// never-crash contract.
type brokenIndex struct{}

func (brokenIndex) Add(ctx context.Context, id string, embedding []float32, document string, metadata map[string]string) error {
	return nil
}

func (brokenIndex) Query(ctx context.Context, embedding []float32, k int, where map[string]string) ([]memory.Neighbor, error) {
	return nil, errors.New("index offline")
}

func (brokenIndex) Delete(ctx context.Context, ids ...string) error { return nil }
func (brokenIndex) Count() int                                      { return 0 }
func (brokenIndex) Close() error                                    { return nil }

func TestCleanupScanFailureReportsZero(t *testing.T) {
	ctx := context.Background()

	svc, err := memory.NewEmbeddingService(mock.New(8), 10)
	gt.NoError(t, err)
	registry := memory.NewRegistry(filepath.Join(t.TempDir(), "sessions.json"))
	mgr := memory.NewManager(brokenIndex{}, svc, registry, nil)

	count, err := mgr.CleanupOldMemories(ctx, 90)
	gt.Error(t, err)
	gt.Equal(t, count, 0)
}

func TestEnsureSessionCreatesImplicitly(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, mock.New(16))

	generated, err := mgr.EnsureSession(ctx, "")
	gt.NoError(t, err)
	gt.NotEqual(t, generated.SessionID, "")

	first, err := mgr.EnsureSession(ctx, "chat-1")
	gt.NoError(t, err)
	gt.Equal(t, first.SessionID, "chat-1")
	gt.True(t, first.IsActive)

	// A second call returns the existing session untouched.
	second, err := mgr.EnsureSession(ctx, "chat-1")
	gt.NoError(t, err)
	gt.Equal(t, second.Title, first.Title)
	gt.True(t, second.CreatedAt.Equal(first.CreatedAt))
}

func TestScenarioSingleTurn(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, mock.New(64))

	_, err := mgr.CreateSession(ctx, "s1", "Greeting", "", "")
	gt.NoError(t, err)

	rec := memory.NewMemoryRecord("hello", "s1", "user")
	_, err = mgr.StoreMemory(ctx, rec)
	gt.NoError(t, err)

	got, err := mgr.RetrieveMemories(ctx, "hello", memory.QueryOptions{
		SessionID:           "s1",
		SimilarityThreshold: 0.99,
	})
	gt.NoError(t, err)
	gt.A(t, got).Length(1)
	gt.Equal(t, got[0].Text, "hello")
	gt.Equal(t, got[0].Speaker, "user")

	session := mgr.GetSession("s1")
	gt.V(t, session).NotNil()
	gt.Equal(t, session.MessageCount, 1)
}
