package memory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/kioku-ai/kioku/logging"
)

// Registry is the durable session registry. The in-memory map is the
// canonical copy; the JSON file on disk is a snapshot rewritten in
// full after every mutation and reloaded wholesale at startup.
type Registry struct {
	mu       sync.RWMutex
	path     string
	sessions map[string]*ConversationSession
}

// NewRegistry creates a registry persisting to the given file path.
// Call Restore before use to load the previous snapshot.
func NewRegistry(path string) *Registry {
	return &Registry{
		path:     path,
		sessions: make(map[string]*ConversationSession),
	}
}

// Restore loads the session snapshot from disk. A missing or
// unparsable file leaves the registry empty: losing session metadata
// is preferable to refusing to start, so the failure is logged and
// not returned.
func (r *Registry) Restore(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.From(ctx).Info("session file not found, starting empty", "path", r.path)
		} else {
			logging.From(ctx).Error("failed to read session file, starting empty",
				"path", r.path, "error", err)
		}
		return
	}

	restored := make(map[string]*ConversationSession)
	if err := json.Unmarshal(data, &restored); err != nil {
		logging.From(ctx).Error("failed to parse session file, starting empty",
			"path", r.path, "error", err)
		return
	}

	// A parsable file can still hold null or id-less entries. Drop
	// them instead of adopting values that would break later lookups.
	for id, session := range restored {
		if session == nil || session.SessionID == "" {
			logging.From(ctx).Warn("dropping malformed session entry",
				"session_id", id, "path", r.path)
			delete(restored, id)
		}
	}

	r.sessions = restored
	logging.From(ctx).Info("restored sessions", "count", len(restored), "path", r.path)
}

// Create inserts a new session and persists the registry. Creating an
// id that already exists is rejected.
func (r *Registry) Create(ctx context.Context, sessionID, title, description, personaID string) (*ConversationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sessionID]; exists {
		return nil, goerr.New("session already exists",
			goerr.T(TagDuplicate), goerr.V("session_id", sessionID))
	}

	now := time.Now()
	session := &ConversationSession{
		SessionID:    sessionID,
		Title:        title,
		Description:  description,
		PersonaID:    personaID,
		CreatedAt:    now,
		LastActivity: now,
		IsActive:     true,
		AutoResume:   true,
	}
	r.sessions[sessionID] = session

	r.persistLocked(ctx)
	logging.From(ctx).Info("session created", "session_id", sessionID, "title", title)

	copied := *session
	return &copied, nil
}

// Get is a pure in-memory lookup; it returns nil when the session is
// absent. The returned value is a snapshot, not a live pointer.
func (r *Registry) Get(sessionID string) *ConversationSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	copied := *session
	return &copied
}

// List returns sessions sorted by descending last activity,
// restricted to active sessions unless activeOnly is false.
func (r *Registry) List(activeOnly bool) []*ConversationSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ConversationSession, 0, len(r.sessions))
	for _, session := range r.sessions {
		if activeOnly && !session.IsActive {
			continue
		}
		copied := *session
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// RecordActivity bumps the session's message count and last-activity
// timestamp, then persists. Unknown sessions are ignored: record
// session ids are not validated to exist.
func (r *Registry) RecordActivity(ctx context.Context, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return
	}

	session.MessageCount++
	session.LastActivity = time.Now()
	r.persistLocked(ctx)
}

// Deactivate marks a session inactive. Sessions are never hard-deleted.
func (r *Registry) Deactivate(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return goerr.New("session not found",
			goerr.T(TagNotFound), goerr.V("session_id", sessionID))
	}

	session.IsActive = false
	r.persistLocked(ctx)
	return nil
}

// persistLocked rewrites the whole snapshot file. The in-memory map
// stays canonical, so a failed write degrades to the last-known-good
// snapshot instead of failing the mutation; the error is logged with
// enough context to diagnose.
func (r *Registry) persistLocked(ctx context.Context) {
	data, err := json.MarshalIndent(r.sessions, "", "  ")
	if err != nil {
		logging.From(ctx).Error("failed to marshal sessions",
			"count", len(r.sessions), "error",
			goerr.Wrap(err, "marshal sessions", goerr.T(TagPersistence)))
		return
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		logging.From(ctx).Error("failed to create session directory",
			"path", r.path, "error",
			goerr.Wrap(err, "mkdir session dir", goerr.T(TagPersistence)))
		return
	}

	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		logging.From(ctx).Error("failed to write session file",
			"path", r.path, "count", len(r.sessions), "error",
			goerr.Wrap(err, "write session file", goerr.T(TagPersistence)))
	}
}
