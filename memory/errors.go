package memory

import "github.com/m-mizutani/goerr/v2"

// Error tags classify failures so callers can decide between
// propagating, degrading, or swallowing without string matching.
var (
	// TagInvalidInput marks rejected caller input (empty text,
	// malformed filters, dimension mismatches).
	TagInvalidInput = goerr.NewTag("invalid_input")

	// TagInitFailure marks fatal startup failures (unknown provider
	// kind, unreachable model or index).
	TagInitFailure = goerr.NewTag("init_failure")

	// TagNotFound marks strict lookups of absent sessions or records.
	TagNotFound = goerr.NewTag("not_found")

	// TagDuplicate marks creation of an already existing session.
	TagDuplicate = goerr.NewTag("duplicate")

	// TagPersistence marks session file read/write failures. These
	// degrade to last-known-good state instead of crashing.
	TagPersistence = goerr.NewTag("persistence")

	// TagRetrieval marks vector index query failures. These propagate:
	// silently returning partial memories would corrupt context.
	TagRetrieval = goerr.NewTag("retrieval")
)
