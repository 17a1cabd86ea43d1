package memory

import (
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// The index stores flat string metadata only, so list-valued record
// fields are joined with a delimiter and timestamps are serialized as
// sortable RFC3339 strings. encodeMetadata and decodeRecord form a
// reversible pair.

const listSeparator = ","

func encodeMetadata(rec *MemoryRecord) map[string]string {
	return map[string]string{
		"session_id":       rec.SessionID,
		"speaker":          rec.Speaker,
		"message_type":     rec.MessageType,
		"timestamp":        rec.Timestamp.UTC().Format(time.RFC3339Nano),
		"importance_score": strconv.FormatFloat(rec.ImportanceScore, 'f', -1, 64),
		"topics":           strings.Join(rec.Topics, listSeparator),
		"keywords":         strings.Join(rec.Keywords, listSeparator),
		"project_context":  rec.ProjectContext,
		"persona_context":  rec.PersonaContext,
		"related_ids":      strings.Join(rec.RelatedMemoryIDs, listSeparator),
	}
}

func decodeRecord(id, document string, metadata map[string]string, embedding []float32) (*MemoryRecord, error) {
	ts, err := time.Parse(time.RFC3339Nano, metadata["timestamp"])
	if err != nil {
		return nil, goerr.Wrap(err, "malformed record timestamp",
			goerr.V("id", id), goerr.V("timestamp", metadata["timestamp"]))
	}

	importance, err := strconv.ParseFloat(metadata["importance_score"], 64)
	if err != nil {
		return nil, goerr.Wrap(err, "malformed importance score",
			goerr.V("id", id), goerr.V("importance_score", metadata["importance_score"]))
	}

	return &MemoryRecord{
		ID:               id,
		Text:             document,
		Embedding:        embedding,
		Timestamp:        ts,
		SessionID:        metadata["session_id"],
		Speaker:          metadata["speaker"],
		MessageType:      metadata["message_type"],
		Topics:           splitList(metadata["topics"]),
		Keywords:         splitList(metadata["keywords"]),
		ImportanceScore:  importance,
		ProjectContext:   metadata["project_context"],
		PersonaContext:   metadata["persona_context"],
		RelatedMemoryIDs: splitList(metadata["related_ids"]),
	}, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, listSeparator)
}
