package fk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a5c-ai/hub/internal/fkindex"
	"github.com/a5c-ai/hub/internal/model"
	"github.com/a5c-ai/hub/internal/storage"
	"github.com/a5c-ai/hub/internal/workspace"
)

func newTestResolver(t *testing.T) (*Resolver, *workspace.Workspace) {
	t.Helper()
	backend, err := storage.NewFilesystemBackend(storage.FilesystemConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	ws := workspace.New(backend)
	singular := func(t string) string {
		switch t {
		case "users":
			return "user"
		case "sections":
			return "section"
		case "review_form_elements":
			return "review_form_element"
		default:
			return t
		}
	}
	return NewResolver(ws, singular, nil), ws
}

func TestResolver_RootLevelUser(t *testing.T) {
	r, ws := newTestResolver(t)
	ctx := context.Background()

	userDir := ws.PathFor(nil, "users", "user-uuid")
	require.NoError(t, ws.ReplaceJSON(ctx, ws.DetailPath(userDir, "user"), map[string]interface{}{
		"source_record_key": "users:7", "uuid": "user-uuid", "target_record_key": "users:70",
	}))

	journal := model.Resource{"source_record_key": "journals:1", "uuid": "journal-uuid"}
	parents := model.ParentChain{}.WithAncestor("journals", journal)

	path, ok, err := r.Resolve(parents, "users", "user-uuid")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ws.DetailPath(userDir, "user"), path)
}

func TestResolver_JournalLevelSibling(t *testing.T) {
	r, ws := newTestResolver(t)
	ctx := context.Background()

	journal := model.Resource{"source_record_key": "journals:1", "uuid": "journal-uuid"}
	journalParents := model.ParentChain{}.WithAncestor("journals", journal)

	sectionDir := ws.PathFor(journalParents, "sections", "section-uuid")
	require.NoError(t, ws.ReplaceJSON(ctx, ws.DetailPath(sectionDir, "section"), map[string]interface{}{
		"source_record_key": "sections:3", "uuid": "section-uuid", "target_record_key": "sections:42",
	}))

	issue := model.Resource{"source_record_key": "issues:9", "uuid": "issue-uuid"}
	articleParents := journalParents.WithAncestor("issues", issue)

	path, ok, err := r.Resolve(articleParents, "sections", "section-uuid")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ws.DetailPath(sectionDir, "section"), path)
}

func TestResolver_NotFoundIsNotAnError(t *testing.T) {
	r, _ := newTestResolver(t)
	_, ok, err := r.Resolve(nil, "sections", "missing-uuid")
	require.NoError(t, err)
	require.False(t, ok)
}

// TestResolver_WalkHitPopulatesIndex verifies that a walk-resolved hit gets
// recorded in the index, so a later Resolve for the same pair hits the fast
// path via Lookup instead of walking again.
func TestResolver_WalkHitPopulatesIndex(t *testing.T) {
	backend, err := storage.NewFilesystemBackend(storage.FilesystemConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	ws := workspace.New(backend)
	singular := func(t string) string {
		if t == "users" {
			return "user"
		}
		return t
	}

	idx, err := fkindex.Open("sqlite", "")
	require.NoError(t, err)
	defer idx.Close()

	r := NewResolver(ws, singular, idx)
	ctx := context.Background()

	userDir := ws.PathFor(nil, "users", "user-uuid")
	require.NoError(t, ws.ReplaceJSON(ctx, ws.DetailPath(userDir, "user"), map[string]interface{}{
		"source_record_key": "users:7", "uuid": "user-uuid", "target_record_key": "users:70",
	}))

	_, ok := idx.Lookup("users", "user-uuid")
	require.False(t, ok, "index must start empty")

	path, ok, err := r.Resolve(nil, "users", "user-uuid")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ws.DetailPath(userDir, "user"), path)

	cached, ok := idx.Lookup("users", "user-uuid")
	require.True(t, ok, "walk hit must populate the index")
	require.Equal(t, path, cached)
}
