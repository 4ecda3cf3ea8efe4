package stage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a5c-ai/hub/internal/connector"
	"github.com/a5c-ai/hub/internal/model"
	"github.com/a5c-ai/hub/internal/storage"
	"github.com/a5c-ai/hub/internal/structure"
	"github.com/a5c-ai/hub/internal/workspace"
)

type fakeConnector struct {
	getResponses map[string]*connector.Response
	getErr       map[string]error
	gets         []string
	getOpts      []connector.GetOptions

	postResponses []*connector.Response
	postErr       error
	posts         []connector.PostBody
}

func (f *fakeConnector) Get(ctx context.Context, path string, opts connector.GetOptions) (*connector.Response, error) {
	f.gets = append(f.gets, path)
	f.getOpts = append(f.getOpts, opts)
	if err, ok := f.getErr[path]; ok {
		return nil, err
	}
	if resp, ok := f.getResponses[path]; ok {
		return resp, nil
	}
	return &connector.Response{OK: true, Status: 200, Content: []byte("[]")}, nil
}

func (f *fakeConnector) Post(ctx context.Context, path string, body connector.PostBody) (*connector.Response, error) {
	f.posts = append(f.posts, body)
	if f.postErr != nil {
		return nil, f.postErr
	}
	if len(f.postResponses) > 0 {
		resp := f.postResponses[0]
		f.postResponses = f.postResponses[1:]
		return resp, nil
	}
	return &connector.Response{OK: true, Status: 200, Content: []byte("{}")}, nil
}

type noopIdentity struct{}

func (noopIdentity) Of(key string) string { return "uuid-of-" + key }
func (noopIdentity) Assign(v interface{}) {
	switch obj := v.(type) {
	case map[string]interface{}:
		if key, ok := obj["source_record_key"].(string); ok && key != "" {
			obj["uuid"] = "uuid-of-" + key
		}
		for _, child := range obj {
			noopIdentity{}.Assign(child)
		}
	case []interface{}:
		for _, child := range obj {
			noopIdentity{}.Assign(child)
		}
	}
}

func newTestWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	backend, err := storage.NewFilesystemBackend(storage.FilesystemConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	return workspace.New(backend)
}

func baseHandlerContext(ws *workspace.Workspace, conn connector.Connector, node *structure.Node, path workspace.Path, url string) *structure.HandlerContext {
	return &structure.HandlerContext{
		Ctx:       context.Background(),
		Node:      node,
		Path:      path,
		URL:       url,
		Connector: conn,
		Workspace: ws,
		Identity:  noopIdentity{},
	}
}

func TestGenericIndexHandler_FetchesAndPersists(t *testing.T) {
	ws := newTestWorkspace(t)
	conn := &fakeConnector{getResponses: map[string]*connector.Response{
		"/journals/": {OK: true, Status: 200, Content: []byte(`[{"source_record_key":"journals:1","title":"A"}]`)},
	}}
	node := &structure.Node{Type: "journals"}
	hctx := baseHandlerContext(ws, conn, node, workspace.Path("current/journals"), "/journals/")

	result, err := GenericIndexHandler(hctx)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "journals:1", result.Items[0].SourceRecordKey())
	assert.Equal(t, "uuid-of-journals:1", result.Items[0].UUID())

	var persisted []model.Resource
	require.NoError(t, ws.LoadJSON(context.Background(), workspace.Path("current/journals/index.json"), &persisted))
	assert.Len(t, persisted, 1)
}

func TestGenericIndexHandler_ResumesWithoutNetworkCall(t *testing.T) {
	ws := newTestWorkspace(t)
	conn := &fakeConnector{}
	node := &structure.Node{Type: "journals"}
	hctx := baseHandlerContext(ws, conn, node, workspace.Path("current/journals"), "/journals/")

	existing := []model.Resource{{"source_record_key": "journals:1", "uuid": "j1"}}
	require.NoError(t, ws.ReplaceJSON(context.Background(), workspace.Path("current/journals/index.json"), existing))

	result, err := GenericIndexHandler(hctx)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Empty(t, conn.gets)
}

func TestJournalsIndexHandler_BuildsPathsParam(t *testing.T) {
	ws := newTestWorkspace(t)
	conn := &fakeConnector{getResponses: map[string]*connector.Response{
		"/journals/": {OK: true, Status: 200, Content: []byte(`[]`)},
	}}
	node := &structure.Node{Type: "journals"}
	hctx := baseHandlerContext(ws, conn, node, workspace.Path("current/journals"), "/journals/")

	handler := JournalsIndexHandler([]string{"a", "b"})
	_, err := handler(hctx)
	require.NoError(t, err)
	require.Len(t, conn.gets, 1)
	assert.Equal(t, "a,b", conn.getOpts[0].Params["paths"])
}

func TestRolesIndexHandler_PropagatesUsersToRootIndex(t *testing.T) {
	ws := newTestWorkspace(t)
	conn := &fakeConnector{getResponses: map[string]*connector.Response{
		"/roles/": {OK: true, Status: 200, Content: []byte(
			`[{"source_record_key":"roles:1","user":{"source_record_key":"users:7"}}]`,
		)},
	}}
	node := &structure.Node{Type: "roles"}
	hctx := baseHandlerContext(ws, conn, node, workspace.Path("current/roles"), "/roles/")

	_, err := RolesIndexHandler(hctx)
	require.NoError(t, err)

	var users []model.Resource
	require.NoError(t, ws.LoadJSON(context.Background(), workspace.Path("current/users/index.json"), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "users:7", users[0].SourceRecordKey())
	assert.Equal(t, "uuid-of-users:7", users[0].UUID())
}

func TestRolesIndexHandler_DoesNotDuplicateExistingUser(t *testing.T) {
	ws := newTestWorkspace(t)
	existing := []model.Resource{{"source_record_key": "users:7", "uuid": "uuid-of-users:7"}}
	require.NoError(t, ws.ReplaceJSON(context.Background(), workspace.Path("current/users/index.json"), existing))

	conn := &fakeConnector{getResponses: map[string]*connector.Response{
		"/roles/": {OK: true, Status: 200, Content: []byte(
			`[{"source_record_key":"roles:1","user":{"source_record_key":"users:7"}}]`,
		)},
	}}
	node := &structure.Node{Type: "roles"}
	hctx := baseHandlerContext(ws, conn, node, workspace.Path("current/roles"), "/roles/")

	_, err := RolesIndexHandler(hctx)
	require.NoError(t, err)

	var users []model.Resource
	require.NoError(t, ws.LoadJSON(context.Background(), workspace.Path("current/users/index.json"), &users))
	require.Len(t, users, 1)
}
