package walker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a5c-ai/hub/internal/model"
	"github.com/a5c-ai/hub/internal/progress"
	"github.com/a5c-ai/hub/internal/storage"
	"github.com/a5c-ai/hub/internal/structure"
	"github.com/a5c-ai/hub/internal/workspace"
)

func newTestDeps(t *testing.T, observer progress.Observer) (Deps, *workspace.Workspace) {
	t.Helper()
	dir := t.TempDir()
	backend, err := storage.NewFilesystemBackend(storage.FilesystemConfig{BasePath: dir})
	require.NoError(t, err)
	ws := workspace.New(backend)

	reg := structure.NewRegistry()
	return Deps{
		Registry:  reg,
		Workspace: ws,
		Identity:  noopIdentity{},
		Observer:  observer,
	}, ws
}

type noopIdentity struct{}

func (noopIdentity) Of(key string) string { return "uuid-of-" + key }
func (noopIdentity) Assign(interface{})   {}

type recordingObserver struct {
	majors []string
	minors []string
}

func (o *recordingObserver) Major(message string, length int) { o.majors = append(o.majors, message) }
func (o *recordingObserver) Minor(current int, message string, length int) {
	o.minors = append(o.minors, message)
}
func (o *recordingObserver) Detail(int, string) {}
func (o *recordingObserver) Debug(string, int)  {}
func (o *recordingObserver) ReportError(error, progress.ErrorContext) progress.Decision {
	return progress.Continue
}

func TestWalker_IndexRecursesIntoChildrenPerStub(t *testing.T) {
	observer := &recordingObserver{}
	deps, ws := newTestDeps(t, observer)

	var sectionsVisited []string
	deps.Registry.Register("index-journals", func(hctx *structure.HandlerContext) (*structure.HandlerResult, error) {
		items := []model.Resource{
			{"source_record_key": "journals:1", "uuid": "j1"},
			{"source_record_key": "journals:2", "uuid": "j2"},
		}
		require.NoError(t, hctx.Workspace.ReplaceJSON(context.Background(), hctx.Path.Join("index.json"), items))
		return &structure.HandlerResult{Items: items}, nil
	})
	deps.Registry.Register("index-sections", func(hctx *structure.HandlerContext) (*structure.HandlerResult, error) {
		journal, _ := hctx.Parents.Last()
		sectionsVisited = append(sectionsVisited, journal.Record.SourceRecordKey())
		return &structure.HandlerResult{Skip: true}, nil
	})

	nodes := []*structure.Node{
		{
			Type:     "journals",
			Index:    &structure.StageConfig{Handler: "index-journals"},
			Children: []*structure.Node{{Type: "sections", Index: &structure.StageConfig{Handler: "index-sections"}}},
		},
	}

	w := New(deps)
	err := w.Run(context.Background(), nodes, workspace.StageIndex, model.ParentChain{}, StageDefaults{})
	require.NoError(t, err)

	assert.Equal(t, []string{"journals:1", "journals:2"}, sectionsVisited)
	assert.Equal(t, []string{"journals"}, observer.majors)

	exists, err := ws.Exists(context.Background(), workspace.Path("current/journals/index.json"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWalker_DisabledStageSkipsWholeSubtree(t *testing.T) {
	observer := &recordingObserver{}
	deps, _ := newTestDeps(t, observer)

	called := false
	deps.Registry.Register("should-not-run", func(*structure.HandlerContext) (*structure.HandlerResult, error) {
		called = true
		return &structure.HandlerResult{}, nil
	})

	nodes := []*structure.Node{
		{
			Type:  "journals",
			Index: nil, // disabled
			Children: []*structure.Node{
				{Type: "sections", Index: &structure.StageConfig{Handler: "should-not-run"}},
			},
		},
	}

	w := New(deps)
	err := w.Run(context.Background(), nodes, workspace.StageIndex, model.ParentChain{}, StageDefaults{})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestWalker_FetchSkipsEmptyIndexWithoutError(t *testing.T) {
	observer := &recordingObserver{}
	deps, ws := newTestDeps(t, observer)

	require.NoError(t, ws.ReplaceJSON(context.Background(), workspace.Path("current/journals/index.json"), []model.Resource{}))

	called := false
	deps.Registry.Register("fetch-journal", func(*structure.HandlerContext) (*structure.HandlerResult, error) {
		called = true
		return &structure.HandlerResult{}, nil
	})

	nodes := []*structure.Node{
		{Type: "journals", Fetch: &structure.StageConfig{Handler: "fetch-journal"}},
	}

	w := New(deps)
	err := w.Run(context.Background(), nodes, workspace.StageFetch, model.ParentChain{}, StageDefaults{})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestWalker_TransportErrorDelegatesToObserverAndContinues(t *testing.T) {
	observer := &recordingObserver{}
	deps, ws := newTestDeps(t, observer)

	stubs := []model.Resource{
		{"source_record_key": "journals:1", "uuid": "j1"},
		{"source_record_key": "journals:2", "uuid": "j2"},
	}
	require.NoError(t, ws.ReplaceJSON(context.Background(), workspace.Path("current/journals/index.json"), stubs))

	var processed []string
	deps.Registry.Register("fetch-journal", func(hctx *structure.HandlerContext) (*structure.HandlerResult, error) {
		if hctx.Stub.SourceRecordKey() == "journals:1" {
			return nil, &TransportError{Err: errors.New("connection reset")}
		}
		processed = append(processed, hctx.Stub.SourceRecordKey())
		return &structure.HandlerResult{Skip: true}, nil
	})

	nodes := []*structure.Node{
		{Type: "journals", Fetch: &structure.StageConfig{Handler: "fetch-journal"}},
	}

	w := New(deps)
	err := w.Run(context.Background(), nodes, workspace.StageFetch, model.ParentChain{}, StageDefaults{})
	require.NoError(t, err)
	assert.Equal(t, []string{"journals:2"}, processed)
}

func TestWalker_ObserverAbortStopsStage(t *testing.T) {
	deps, ws := newTestDeps(t, &abortingObserver{})

	stubs := []model.Resource{
		{"source_record_key": "journals:1", "uuid": "j1"},
		{"source_record_key": "journals:2", "uuid": "j2"},
	}
	require.NoError(t, ws.ReplaceJSON(context.Background(), workspace.Path("current/journals/index.json"), stubs))

	var processed []string
	deps.Registry.Register("fetch-journal", func(hctx *structure.HandlerContext) (*structure.HandlerResult, error) {
		if hctx.Stub.SourceRecordKey() == "journals:1" {
			return nil, &TransportError{Err: errors.New("connection reset")}
		}
		processed = append(processed, hctx.Stub.SourceRecordKey())
		return &structure.HandlerResult{Skip: true}, nil
	})

	nodes := []*structure.Node{
		{Type: "journals", Fetch: &structure.StageConfig{Handler: "fetch-journal"}},
	}

	w := New(deps)
	err := w.Run(context.Background(), nodes, workspace.StageFetch, model.ParentChain{}, StageDefaults{})
	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Empty(t, processed)
}

func TestWalker_WorkspaceErrorIsFatal(t *testing.T) {
	deps, _ := newTestDeps(t, &recordingObserver{})

	deps.Registry.Register("fetch-journal", func(*structure.HandlerContext) (*structure.HandlerResult, error) {
		return nil, &WorkspaceError{Err: errors.New("disk full")}
	})

	nodes := []*structure.Node{
		{Type: "journals", Index: &structure.StageConfig{Handler: "fetch-journal"}},
	}

	w := New(deps)
	err := w.Run(context.Background(), nodes, workspace.StageIndex, model.ParentChain{}, StageDefaults{})
	var wsErr *WorkspaceError
	require.ErrorAs(t, err, &wsErr)
}

type abortingObserver struct{}

func (abortingObserver) Major(string, int)      {}
func (abortingObserver) Minor(int, string, int) {}
func (abortingObserver) Detail(int, string)     {}
func (abortingObserver) Debug(string, int)      {}

func (abortingObserver) ReportError(error, progress.ErrorContext) progress.Decision {
	return progress.Abort
}
