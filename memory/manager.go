package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/kioku-ai/kioku/logging"
)

// Records older than the cleanup cutoff are deleted only when their
// importance score is strictly below this floor. High-importance old
// records are retained indefinitely.
const retentionImportanceFloor = 0.3

// Manager owns persisted vectors and metadata. It composes the
// embedding service, the vector index, and the session registry into
// the consumer-facing operations; all three are injected at
// construction.
type Manager struct {
	index    Index
	embedder Embedder
	sessions *Registry
	config   *Config
}

// NewManager wires the manager. A nil config takes defaults.
func NewManager(index Index, embedder Embedder, sessions *Registry, config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	return &Manager{
		index:    index,
		embedder: embedder,
		sessions: sessions,
		config:   config,
	}
}

// QueryOptions narrows a retrieval. Zero-valued TopK and
// SimilarityThreshold take the configured defaults. Since and Until
// bound the record timestamp inclusively. Topics keep only records
// carrying at least one of the listed topics; the index cannot filter
// on list-valued metadata, so this is applied after retrieval.
type QueryOptions struct {
	SessionID           string
	TopK                int
	SimilarityThreshold float64
	Since               time.Time
	Until               time.Time
	Topics              []string
}

// StoreMemory persists one record. A missing embedding is computed
// first, so a record is never visible without its vector; embedding
// and index failures propagate and leave nothing behind. A successful
// write bumps the referenced session's activity counters.
func (m *Manager) StoreMemory(ctx context.Context, rec *MemoryRecord) (string, error) {
	if rec == nil {
		return "", goerr.New("record is required", goerr.T(TagInvalidInput))
	}
	if strings.TrimSpace(rec.Text) == "" {
		return "", goerr.New("record text must not be empty", goerr.T(TagInvalidInput))
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	if rec.Embedding == nil {
		vec, err := m.embedder.Embed(ctx, rec.Text)
		if err != nil {
			return "", err
		}
		rec.Embedding = vec
	}
	if len(rec.Embedding) != m.embedder.Dimensions() {
		return "", goerr.New("embedding dimension mismatch",
			goerr.T(TagInvalidInput),
			goerr.V("got", len(rec.Embedding)),
			goerr.V("want", m.embedder.Dimensions()))
	}

	if err := m.index.Add(ctx, rec.ID, rec.Embedding, rec.Text, encodeMetadata(rec)); err != nil {
		return "", goerr.Wrap(err, "failed to store memory", goerr.V("id", rec.ID))
	}

	m.sessions.RecordActivity(ctx, rec.SessionID)

	logging.From(ctx).Debug("memory stored", "id", rec.ID, "session_id", rec.SessionID)
	return rec.ID, nil
}

// RetrieveMemories embeds the query and returns the nearest records,
// ordered by descending similarity as produced by the index. Results
// below the similarity threshold are discarded; a result at exactly
// the threshold is kept.
func (m *Manager) RetrieveMemories(ctx context.Context, query string, opts QueryOptions) ([]*MemoryRecord, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = m.config.TopK
	}
	threshold := opts.SimilarityThreshold
	if threshold == 0 {
		threshold = m.config.SimilarityThreshold
	}

	queryVec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var where map[string]string
	if opts.SessionID != "" {
		where = map[string]string{"session_id": opts.SessionID}
	}

	// The index filters on exact metadata only, so time-range
	// predicates are evaluated here after retrieval. Widen the
	// candidate count in that case so the post-filter does not starve
	// legitimate matches.
	timeFiltered := !opts.Since.IsZero() || !opts.Until.IsZero()
	fetchK := topK
	if timeFiltered && m.config.CleanupScanLimit > fetchK {
		fetchK = m.config.CleanupScanLimit
	}

	neighbors, err := m.index.Query(ctx, queryVec, fetchK, where)
	if err != nil {
		return nil, goerr.Wrap(err, "memory retrieval failed",
			goerr.T(TagRetrieval), goerr.V("query_len", len(query)))
	}

	records := make([]*MemoryRecord, 0, len(neighbors))
	for _, n := range neighbors {
		if float64(n.Similarity) < threshold {
			continue
		}

		rec, err := decodeRecord(n.ID, n.Document, n.Metadata, n.Embedding)
		if err != nil {
			logging.From(ctx).Warn("skipping undecodable record", "id", n.ID, "error", err)
			continue
		}

		if timeFiltered && !inTimeRange(rec.Timestamp, opts.Since, opts.Until) {
			continue
		}
		if len(opts.Topics) > 0 && !hasAnyTopic(rec.Topics, opts.Topics) {
			continue
		}

		records = append(records, rec)
		if len(records) >= topK {
			break
		}
	}

	logging.From(ctx).Debug("memories retrieved",
		"count", len(records), "session_id", opts.SessionID)
	return records, nil
}

// DeleteMemories removes the listed records irrevocably. Already
// absent ids are ignored.
func (m *Manager) DeleteMemories(ctx context.Context, ids ...string) error {
	if err := m.index.Delete(ctx, ids...); err != nil {
		return goerr.Wrap(err, "failed to delete memories", goerr.V("count", len(ids)))
	}
	return nil
}

// CreateSession registers a new conversation session.
func (m *Manager) CreateSession(ctx context.Context, sessionID, title, description, personaID string) (*ConversationSession, error) {
	return m.sessions.Create(ctx, sessionID, title, description, personaID)
}

// GetSession returns the session or nil when absent.
func (m *Manager) GetSession(sessionID string) *ConversationSession {
	return m.sessions.Get(sessionID)
}

// ListSessions returns sessions ordered by descending last activity.
func (m *Manager) ListSessions(activeOnly bool) []*ConversationSession {
	return m.sessions.List(activeOnly)
}

// DeactivateSession marks a session inactive; it stays listed under
// ListSessions(false).
func (m *Manager) DeactivateSession(ctx context.Context, sessionID string) error {
	return m.sessions.Deactivate(ctx, sessionID)
}

// EnsureSession returns the session, creating it implicitly on the
// first chat turn. An empty id gets a fresh one assigned.
func (m *Manager) EnsureSession(ctx context.Context, sessionID string) (*ConversationSession, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	if session := m.sessions.Get(sessionID); session != nil {
		return session, nil
	}

	title := fmt.Sprintf("Conversation started at %s", time.Now().Format("2006-01-02 15:04"))
	return m.sessions.Create(ctx, sessionID, title, "", "")
}

// CleanupOldMemories deletes records older than daysToKeep whose
// importance is below the retention floor, returning the count
// deleted. The scan is a capped-size query against the index with a
// neutral query vector, so one invocation catches at most
// CleanupScanLimit candidates. Failures are returned for the caller
// to log; cleanup must never crash the host process.
func (m *Manager) CleanupOldMemories(ctx context.Context, daysToKeep int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -daysToKeep)

	neutral := make([]float32, m.embedder.Dimensions())
	neutral[0] = 1

	neighbors, err := m.index.Query(ctx, neutral, m.config.CleanupScanLimit, nil)
	if err != nil {
		return 0, goerr.Wrap(err, "cleanup scan failed",
			goerr.T(TagRetrieval), goerr.V("cutoff", cutoff))
	}

	var stale []string
	for _, n := range neighbors {
		ts, err := time.Parse(time.RFC3339Nano, n.Metadata["timestamp"])
		if err != nil {
			continue
		}
		if !ts.Before(cutoff) {
			continue
		}
		importance, err := strconv.ParseFloat(n.Metadata["importance_score"], 64)
		if err != nil {
			continue
		}
		if importance < retentionImportanceFloor {
			stale = append(stale, n.ID)
		}
	}

	if len(stale) == 0 {
		return 0, nil
	}
	if err := m.index.Delete(ctx, stale...); err != nil {
		return 0, goerr.Wrap(err, "cleanup deletion failed", goerr.V("count", len(stale)))
	}

	logging.From(ctx).Info("cleaned up old memories", "count", len(stale), "cutoff", cutoff)
	return len(stale), nil
}

func inTimeRange(ts, since, until time.Time) bool {
	if !since.IsZero() && ts.Before(since) {
		return false
	}
	if !until.IsZero() && ts.After(until) {
		return false
	}
	return true
}

func hasAnyTopic(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
