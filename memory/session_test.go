package memory_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/kioku-ai/kioku/memory"
)

func newTestRegistry(t *testing.T) (*memory.Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.json")
	return memory.NewRegistry(path), path
}

func TestRegistryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	session, err := reg.Create(ctx, "s1", "First chat", "about testing", "aria")
	gt.NoError(t, err)
	gt.Equal(t, session.SessionID, "s1")
	gt.Equal(t, session.Title, "First chat")
	gt.Equal(t, session.MessageCount, 0)
	gt.True(t, session.IsActive)

	got := reg.Get("s1")
	gt.V(t, got).NotNil()
	gt.Equal(t, got.Title, "First chat")
	gt.Equal(t, got.PersonaID, "aria")

	gt.Nil(t, reg.Get("missing"))
}

func TestRegistryDuplicateCreateRejected(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	_, err := reg.Create(ctx, "s1", "First", "", "")
	gt.NoError(t, err)

	_, err = reg.Create(ctx, "s1", "Second", "", "")
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, memory.TagDuplicate))

	// The original session is untouched.
	gt.Equal(t, reg.Get("s1").Title, "First")
}

func TestRegistryRecordActivity(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	created, err := reg.Create(ctx, "s1", "Chat", "", "")
	gt.NoError(t, err)

	prev := created.LastActivity
	const n = 5
	for i := 0; i < n; i++ {
		reg.RecordActivity(ctx, "s1")
		got := reg.Get("s1")
		gt.True(t, !got.LastActivity.Before(prev))
		prev = got.LastActivity
	}

	gt.Equal(t, reg.Get("s1").MessageCount, n)
}

func TestRegistryActivityOnUnknownSessionIsNoop(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	reg.RecordActivity(ctx, "ghost")
	gt.Nil(t, reg.Get("ghost"))
}

func TestRegistryListOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	for _, id := range []string{"a", "b", "c"} {
		_, err := reg.Create(ctx, id, "session "+id, "", "")
		gt.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	// Touch "a" so it becomes the most recent.
	reg.RecordActivity(ctx, "a")

	listed := reg.List(true)
	gt.A(t, listed).Length(3)
	gt.Equal(t, listed[0].SessionID, "a")

	gt.NoError(t, reg.Deactivate(ctx, "b"))
	gt.A(t, reg.List(true)).Length(2)
	gt.A(t, reg.List(false)).Length(3)
}

func TestRegistryDeactivateUnknownSession(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	err := reg.Deactivate(ctx, "missing")
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, memory.TagNotFound))
}

func TestRegistryPersistAndRestore(t *testing.T) {
	ctx := context.Background()
	reg, path := newTestRegistry(t)

	_, err := reg.Create(ctx, "s1", "Persisted", "desc", "aria")
	gt.NoError(t, err)
	reg.RecordActivity(ctx, "s1")
	gt.NoError(t, reg.Deactivate(ctx, "s1"))

	before := reg.Get("s1")

	restored := memory.NewRegistry(path)
	restored.Restore(ctx)

	after := restored.Get("s1")
	gt.V(t, after).NotNil()
	gt.Equal(t, after.SessionID, before.SessionID)
	gt.Equal(t, after.Title, before.Title)
	gt.Equal(t, after.Description, before.Description)
	gt.Equal(t, after.PersonaID, before.PersonaID)
	gt.Equal(t, after.MessageCount, before.MessageCount)
	gt.Equal(t, after.IsActive, before.IsActive)
	gt.Equal(t, after.AutoResume, before.AutoResume)
	gt.True(t, after.CreatedAt.Equal(before.CreatedAt))
	gt.True(t, after.LastActivity.Equal(before.LastActivity))
}

func TestRegistryRestoreMissingFile(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	reg.Restore(ctx)
	gt.A(t, reg.List(false)).Length(0)
}

func TestRegistryRestoreDropsMalformedEntries(t *testing.T) {
	ctx := context.Background()
	reg, path := newTestRegistry(t)

	snapshot := `{
		"s1": null,
		"s2": {"session_id": "", "title": "lost its id"},
		"s3": {"session_id": "s3", "title": "kept", "is_active": true}
	}`
	gt.NoError(t, os.WriteFile(path, []byte(snapshot), 0o644))

	reg.Restore(ctx)

	gt.Nil(t, reg.Get("s1"))
	gt.Nil(t, reg.Get("s2"))
	got := reg.Get("s3")
	gt.V(t, got).NotNil()
	gt.Equal(t, got.Title, "kept")
	gt.A(t, reg.List(false)).Length(1)

	// Dropped ids behave like any other absent session.
	reg.RecordActivity(ctx, "s1")
	gt.Nil(t, reg.Get("s1"))
	gt.NoError(t, reg.Deactivate(ctx, "s3"))
}

func TestRegistryRestoreCorruptFile(t *testing.T) {
	ctx := context.Background()
	reg, path := newTestRegistry(t)

	gt.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	reg.Restore(ctx)
	gt.A(t, reg.List(false)).Length(0)

	// A corrupt snapshot must not block new sessions.
	_, err := reg.Create(ctx, "fresh", "Fresh start", "", "")
	gt.NoError(t, err)
}
