package memory

import (
	"time"

	"github.com/google/uuid"
)

// MemoryRecord is one stored utterance with its vector and metadata.
// Records are immutable once persisted; the embedding, if absent at
// store time, is computed lazily and then frozen.
type MemoryRecord struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`

	// Speaker is a free-form tag, conventionally "user" or "assistant".
	Speaker     string `json:"speaker"`
	MessageType string `json:"message_type"`

	Topics   []string `json:"topics,omitempty"`
	Keywords []string `json:"keywords,omitempty"`

	// ImportanceScore in [0,1] is the sole retention signal. Records
	// scoring at or above the retention floor are kept indefinitely.
	ImportanceScore float64 `json:"importance_score"`

	// Opaque context carried for downstream assembly, never
	// interpreted here.
	ProjectContext string `json:"project_context,omitempty"`
	PersonaContext string `json:"persona_context,omitempty"`

	RelatedMemoryIDs []string `json:"related_memory_ids,omitempty"`
}

// NewMemoryRecord builds a record with a fresh id, the current
// timestamp, and the default importance score.
func NewMemoryRecord(text, sessionID, speaker string) *MemoryRecord {
	return &MemoryRecord{
		ID:              uuid.New().String(),
		Text:            text,
		Timestamp:       time.Now(),
		SessionID:       sessionID,
		Speaker:         speaker,
		MessageType:     "chat",
		ImportanceScore: 0.5,
	}
}

// ConversationSession tracks one long-running dialogue. Mutated only
// through Registry operations; persisted write-through after every
// mutation.
type ConversationSession struct {
	SessionID   string `json:"session_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`

	MessageCount int `json:"message_count"`
	TotalTokens  int `json:"total_tokens"`

	ProjectTags []string `json:"project_tags,omitempty"`
	PersonaID   string   `json:"persona_id,omitempty"`

	IsActive   bool `json:"is_active"`
	AutoResume bool `json:"auto_resume"`
}
