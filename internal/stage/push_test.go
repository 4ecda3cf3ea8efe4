package stage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a5c-ai/hub/internal/connector"
	"github.com/a5c-ai/hub/internal/model"
	"github.com/a5c-ai/hub/internal/structure"
	"github.com/a5c-ai/hub/internal/workspace"
)

type stubFKResolver struct {
	paths map[string]workspace.Path
}

func (r *stubFKResolver) Resolve(parents model.ParentChain, relatedType, uuid string) (workspace.Path, bool, error) {
	p, ok := r.paths[relatedType+"/"+uuid]
	return p, ok, nil
}

func TestForeignKeyPreprocessor_RewritesAndPersists(t *testing.T) {
	ws := newTestWorkspace(t)
	sectionDetail := model.Resource{"source_record_key": "sections:3", "uuid": "S", "target_record_key": "sections:42"}
	require.NoError(t, ws.ReplaceJSON(context.Background(), workspace.Path("current/journals/j1/sections/S/section.json"), sectionDetail))

	articleDetail := model.Resource{
		"source_record_key": "articles:1",
		"uuid":               "a1",
		"section":            map[string]interface{}{"uuid": "S", "source_record_key": "sections:3"},
	}
	require.NoError(t, ws.ReplaceJSON(context.Background(), workspace.Path("current/journals/j1/articles/a1/article.json"), articleDetail))

	node := &structure.Node{Type: "articles", Singular: "article", ForeignKeys: map[string]string{"section": "sections"}}
	hctx := baseHandlerContext(ws, &fakeConnector{}, node, workspace.Path("current/journals/j1/articles/a1"), "/articles/1/")
	hctx.FKResolver = &stubFKResolver{paths: map[string]workspace.Path{
		"sections/S": workspace.Path("current/journals/j1/sections/S/section.json"),
	}}

	_, err := ForeignKeyPreprocessor(hctx)
	require.NoError(t, err)

	var persisted model.Resource
	require.NoError(t, ws.LoadJSON(context.Background(), workspace.Path("current/journals/j1/articles/a1/article.json"), &persisted))
	section := persisted["section"].(map[string]interface{})
	assert.Equal(t, "sections:42", section["target_record_key"])
	assert.Equal(t, persisted.SourceRecordKey(), hctx.ParentRecord.SourceRecordKey())
}

func TestGenericPushHandler_PostsAndRecordsTargetKey(t *testing.T) {
	ws := newTestWorkspace(t)
	detail := model.Resource{"source_record_key": "articles:1", "uuid": "a1", "title": "A"}
	require.NoError(t, ws.ReplaceJSON(context.Background(), workspace.Path("current/journals/j1/articles/a1/article.json"), detail))

	conn := &fakeConnector{postResponses: []*connector.Response{
		{OK: true, Status: 201, Content: []byte(`{"source_record_key":"articles:101"}`)},
	}}
	node := &structure.Node{Type: "articles", Singular: "article"}
	hctx := baseHandlerContext(ws, conn, node, workspace.Path("current/journals/j1/articles/a1"), "/articles/")
	hctx.Stub = model.Resource{"source_record_key": "articles:1", "uuid": "a1"}

	result, err := GenericPushHandler(hctx)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "articles:101", result.Items[0].TargetRecordKey())

	var persisted model.Resource
	require.NoError(t, ws.LoadJSON(context.Background(), workspace.Path("current/journals/j1/articles/a1/article.json"), &persisted))
	assert.Equal(t, "articles:101", persisted.TargetRecordKey())
	require.Len(t, conn.posts, 1)
}

func TestGenericPushHandler_ResumesWhenTargetKeyAlreadySet(t *testing.T) {
	ws := newTestWorkspace(t)
	detail := model.Resource{"source_record_key": "articles:1", "uuid": "a1", "target_record_key": "articles:101"}
	require.NoError(t, ws.ReplaceJSON(context.Background(), workspace.Path("current/journals/j1/articles/a1/article.json"), detail))

	conn := &fakeConnector{}
	node := &structure.Node{Type: "articles", Singular: "article"}
	hctx := baseHandlerContext(ws, conn, node, workspace.Path("current/journals/j1/articles/a1"), "/articles/")
	hctx.Stub = model.Resource{"source_record_key": "articles:1", "uuid": "a1"}

	_, err := GenericPushHandler(hctx)
	require.NoError(t, err)
	assert.Empty(t, conn.posts)
}

func TestGenericPushHandler_NoOpWhenResponseCarriesNoKey(t *testing.T) {
	ws := newTestWorkspace(t)
	detail := model.Resource{"source_record_key": "articles:1", "uuid": "a1"}
	require.NoError(t, ws.ReplaceJSON(context.Background(), workspace.Path("current/journals/j1/articles/a1/article.json"), detail))

	conn := &fakeConnector{postResponses: []*connector.Response{{OK: true, Status: 204, Content: []byte(`{}`)}}}
	node := &structure.Node{Type: "articles", Singular: "article"}
	hctx := baseHandlerContext(ws, conn, node, workspace.Path("current/journals/j1/articles/a1"), "/articles/")
	hctx.Stub = model.Resource{"source_record_key": "articles:1", "uuid": "a1"}

	result, err := GenericPushHandler(hctx)
	require.NoError(t, err)
	assert.Empty(t, result.Items[0].TargetRecordKey())
}

func TestFilesPushHandler_AttachesBinaryAndParentTargetKey(t *testing.T) {
	ws := newTestWorkspace(t)
	fileDetail := model.Resource{"source_record_key": "files:9", "uuid": "f1"}
	require.NoError(t, ws.ReplaceJSON(context.Background(), workspace.Path("current/journals/j1/articles/a1/files/f1/file.json"), fileDetail))
	require.NoError(t, ws.Backend().Upload(context.Background(), "current/journals/j1/articles/a1/files/f1/report.pdf", strings.NewReader("PDF-BYTES"), 9))

	conn := &fakeConnector{postResponses: []*connector.Response{
		{OK: true, Status: 201, Content: []byte(`{"source_record_key":"files:501"}`)},
	}}
	node := &structure.Node{Type: "files", Singular: "file"}
	hctx := baseHandlerContext(ws, conn, node, workspace.Path("current/journals/j1/articles/a1/files/f1"), "/files/")
	hctx.Stub = model.Resource{"source_record_key": "files:9", "uuid": "f1"}
	hctx.Parents = model.ParentChain{}.WithAncestor("articles", model.Resource{"source_record_key": "articles:1", "target_record_key": "articles:101"})

	result, err := FilesPushHandler(hctx)
	require.NoError(t, err)
	assert.Equal(t, "files:501", result.Items[0].TargetRecordKey())

	require.Len(t, conn.posts, 1)
	require.NotNil(t, conn.posts[0].Multipart)
	assert.Contains(t, conn.posts[0].Multipart.Files, "file")
	assert.Contains(t, conn.posts[0].Multipart.Fields["metadata"], "articles:101")
}
