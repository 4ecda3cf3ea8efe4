package stage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/a5c-ai/hub/internal/connector"
	"github.com/a5c-ai/hub/internal/model"
	"github.com/a5c-ai/hub/internal/progress"
	"github.com/a5c-ai/hub/internal/structure"
	"github.com/a5c-ai/hub/internal/walker"
	"github.com/a5c-ai/hub/internal/workspace"
)

// GenericFetchHandler is the FETCH stage's default handler (spec.md §4.5):
// GET <url>, assign uuid, persist to <singular>.json. Resumes from an
// existing non-empty detail file without a network call.
func GenericFetchHandler(hctx *structure.HandlerContext) (*structure.HandlerResult, error) {
	detailPath := hctx.Workspace.DetailPath(hctx.Path, hctx.Node.SingularName())

	if resumed, ok, err := resumeDetail(hctx, detailPath); err != nil {
		return nil, err
	} else if ok {
		return &structure.HandlerResult{Items: []model.Resource{resumed}}, nil
	}

	return fetchAndPersistDetail(hctx, detailPath, hctx.URL, connector.GetOptions{})
}

// resumeDetail implements spec.md §4.5's FETCH/PUSH resume rule: a detail
// file already present and non-empty is used verbatim.
func resumeDetail(hctx *structure.HandlerContext, detailPath workspace.Path) (model.Resource, bool, error) {
	raw, present, err := hctx.Workspace.LoadNonEmptyJSON(hctx.Ctx, detailPath)
	if err != nil {
		return nil, false, &walker.WorkspaceError{Err: err}
	}
	if !present {
		return nil, false, nil
	}
	var detail model.Resource
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, false, &walker.WorkspaceError{Err: fmt.Errorf("parsing resumed %s: %w", detailPath, err)}
	}
	return detail, true, nil
}

func fetchAndPersistDetail(hctx *structure.HandlerContext, detailPath workspace.Path, url string, opts connector.GetOptions) (*structure.HandlerResult, error) {
	errCtx := progress.ErrorContext{URL: url, SourceRecordKey: hctx.Stub.SourceRecordKey()}

	resp, err := hctx.Connector.Get(hctx.Ctx, url, opts)
	if err != nil {
		return nil, &walker.TransportError{Err: err, Context: errCtx}
	}
	if !resp.OK {
		return nil, &walker.ResponseError{Err: fmt.Errorf("fetch GET %s: status %d", url, resp.Status), Context: errCtx}
	}

	var obj map[string]interface{}
	if err := resp.JSON(&obj); err != nil {
		return nil, &walker.ResponseError{Err: err, Context: errCtx}
	}
	hctx.Identity.Assign(obj)
	detail := model.Resource(obj)

	if err := hctx.Workspace.ReplaceJSON(hctx.Ctx, detailPath, detail); err != nil {
		return nil, &walker.WorkspaceError{Err: err}
	}

	return &structure.HandlerResult{Items: []model.Resource{detail}, Response: resp}, nil
}

// ExtractFromIndexHandler is spec.md §4.5's "alternate extract-from-index"
// FETCH handler: it persists hctx.Stub verbatim as the detail file, with no
// network call at all. Used for resource types whose index entries already
// carry the complete record.
func ExtractFromIndexHandler(hctx *structure.HandlerContext) (*structure.HandlerResult, error) {
	detailPath := hctx.Workspace.DetailPath(hctx.Path, hctx.Node.SingularName())

	if resumed, ok, err := resumeDetail(hctx, detailPath); err != nil {
		return nil, err
	} else if ok {
		return &structure.HandlerResult{Items: []model.Resource{resumed}}, nil
	}

	if err := hctx.Workspace.ReplaceJSON(hctx.Ctx, detailPath, hctx.Stub); err != nil {
		return nil, &walker.WorkspaceError{Err: err}
	}
	return &structure.HandlerResult{Items: []model.Resource{hctx.Stub}}, nil
}

// FilesFetchHandler is the files resource type's FETCH handler (spec.md
// §4.5): persists file.json metadata the same way GenericFetchHandler does,
// then downloads the binary body itself (connector.GetOptions{Binary:true})
// and uploads it to the workspace under the filename carried by the
// response's Content-Disposition header, falling back to the detail's
// "filename" field and then to the pk half of the stub's source_record_key
// when the header is absent.
func FilesFetchHandler(hctx *structure.HandlerContext) (*structure.HandlerResult, error) {
	detailPath := hctx.Workspace.DetailPath(hctx.Path, "file")

	var detail model.Resource
	if resumed, ok, err := resumeDetail(hctx, detailPath); err != nil {
		return nil, err
	} else if ok {
		detail = resumed
	} else {
		result, err := fetchAndPersistDetail(hctx, detailPath, hctx.URL, connector.GetOptions{})
		if err != nil {
			return nil, err
		}
		detail = result.Items[0]
	}

	binaryPath := hctx.Path.Join(binaryFilename(detail, hctx.Stub))
	exists, err := hctx.Workspace.Exists(hctx.Ctx, binaryPath)
	if err != nil {
		return nil, &walker.WorkspaceError{Err: err}
	}
	if exists {
		return &structure.HandlerResult{Items: []model.Resource{detail}}, nil
	}

	errCtx := progress.ErrorContext{URL: hctx.URL, SourceRecordKey: hctx.Stub.SourceRecordKey()}
	resp, err := hctx.Connector.Get(hctx.Ctx, hctx.URL, connector.GetOptions{Binary: true})
	if err != nil {
		return nil, &walker.TransportError{Err: err, Context: errCtx}
	}
	if !resp.OK {
		return nil, &walker.ResponseError{Err: fmt.Errorf("file GET %s: status %d", hctx.URL, resp.Status), Context: errCtx}
	}

	binaryPath = hctx.Path.Join(binaryFilenameFromResponse(resp, detail, hctx.Stub))
	if err := hctx.Workspace.Backend().Upload(hctx.Ctx, binaryPath.String(), bytes.NewReader(resp.Content), int64(len(resp.Content))); err != nil {
		return nil, &walker.WorkspaceError{Err: err}
	}

	return &structure.HandlerResult{Items: []model.Resource{detail}, Response: resp}, nil
}

func binaryFilename(detail, stub model.Resource) string {
	if name := stringOf(detail["filename"]); name != "" {
		return name
	}
	return pkPart(stub.SourceRecordKey())
}

func binaryFilenameFromResponse(resp *connector.Response, detail, stub model.Resource) string {
	if name := resp.Filename(); name != "" {
		return name
	}
	return binaryFilename(detail, stub)
}

func stringOf(v interface{}) string {
	s, _ := v.(string)
	return s
}

// FetchLinkedFilesPostprocessor is the FETCH stage's default postprocessor
// (spec.md §4.5): it downloads every `*_file` field that carries a `url`
// into the instance directory, recording the saved name under
// `<field minus _file>_filename`, then ensures any user a foreign-key field
// points to exists locally, fetching and indexing it standalone if not.
func FetchLinkedFilesPostprocessor(hctx *structure.HandlerContext) (*structure.HandlerResult, error) {
	detailPath := hctx.Workspace.DetailPath(hctx.Path, hctx.Node.SingularName())
	var detail model.Resource
	if err := hctx.Workspace.LoadJSON(hctx.Ctx, detailPath, &detail); err != nil {
		// Singleton or extract-from-index nodes may not persist under the
		// singular name; fall back to the stub already carried on hctx.
		detail = hctx.Stub
	}
	if detail == nil {
		return &structure.HandlerResult{}, nil
	}

	changed := false
	for field, value := range detail {
		if !strings.HasSuffix(field, "_file") {
			continue
		}
		obj, ok := value.(map[string]interface{})
		if !ok {
			continue
		}
		url := stringOf(obj["url"])
		if url == "" {
			continue
		}
		filename, err := fetchLinkedFile(hctx, url, field)
		if err != nil {
			return nil, err
		}
		if filename != "" {
			detail[strings.TrimSuffix(field, "_file")+"_filename"] = filename
			changed = true
		}
	}
	if changed {
		if err := hctx.Workspace.ReplaceJSON(hctx.Ctx, detailPath, detail); err != nil {
			return nil, &walker.WorkspaceError{Err: err}
		}
	}

	if err := ensureForeignKeyedUsers(hctx, detail); err != nil {
		return nil, err
	}
	return &structure.HandlerResult{}, nil
}

// fetchLinkedFile downloads url as a binary and saves it alongside the
// instance's detail file, returning the name it was saved under.
func fetchLinkedFile(hctx *structure.HandlerContext, url, field string) (string, error) {
	errCtx := progress.ErrorContext{URL: url, SourceRecordKey: hctx.Stub.SourceRecordKey()}
	resp, err := hctx.Connector.Get(hctx.Ctx, url, connector.GetOptions{IsAbsolute: true, Binary: true})
	if err != nil {
		return "", &walker.TransportError{Err: err, Context: errCtx}
	}
	if !resp.OK {
		return "", &walker.ResponseError{Err: fmt.Errorf("linked file GET %s: status %d", url, resp.Status), Context: errCtx}
	}

	filename := resp.Filename()
	if filename == "" {
		filename = field
	}
	savedPath := hctx.Path.Join(filename)
	if err := hctx.Workspace.Backend().Upload(hctx.Ctx, savedPath.String(), bytes.NewReader(resp.Content), int64(len(resp.Content))); err != nil {
		return "", &walker.WorkspaceError{Err: err}
	}
	return filename, nil
}

// ensureForeignKeyedUsers implements spec.md §4.5's "ensure foreign-keyed
// users" rule: for every ForeignKeys field pointing at "users", if the
// referenced user's workspace directory doesn't exist yet, fetch it
// standalone and append it to the root users index.
func ensureForeignKeyedUsers(hctx *structure.HandlerContext, detail model.Resource) error {
	for field, relatedType := range hctx.Node.ForeignKeys {
		if relatedType != "users" {
			continue
		}
		value, ok := detail[field]
		if !ok {
			continue
		}
		for _, ref := range referencedResources(value) {
			if err := ensureUser(hctx, ref); err != nil {
				return err
			}
		}
	}
	return nil
}

func ensureUser(hctx *structure.HandlerContext, ref map[string]interface{}) error {
	uuid := stringOf(ref["uuid"])
	sourceKey := stringOf(ref["source_record_key"])
	if uuid == "" || sourceKey == "" {
		return nil
	}

	userDir := hctx.Workspace.PathFor(model.ParentChain{}, "users", uuid)
	userDetailPath := hctx.Workspace.DetailPath(userDir, "user")
	exists, err := hctx.Workspace.Exists(hctx.Ctx, userDetailPath)
	if err != nil {
		return &walker.WorkspaceError{Err: err}
	}
	if exists {
		return nil
	}

	url := hctx.Workspace.URLFor(model.ParentChain{}, "users", model.Resource(ref), workspace.PKSource)
	errCtx := progress.ErrorContext{URL: url, SourceRecordKey: sourceKey}
	resp, err := hctx.Connector.Get(hctx.Ctx, url, connector.GetOptions{})
	if err != nil {
		return &walker.TransportError{Err: err, Context: errCtx}
	}
	if !resp.OK {
		return &walker.ResponseError{Err: fmt.Errorf("standalone user GET %s: status %d", url, resp.Status), Context: errCtx}
	}

	var obj map[string]interface{}
	if err := resp.JSON(&obj); err != nil {
		return &walker.ResponseError{Err: err, Context: errCtx}
	}
	hctx.Identity.Assign(obj)
	user := model.Resource(obj)

	if err := hctx.Workspace.ReplaceJSON(hctx.Ctx, userDetailPath, user); err != nil {
		return &walker.WorkspaceError{Err: err}
	}
	return mergeResourceIntoRootIndex(hctx, "users", user)
}
