package stage

import (
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

// GenericIndexHandler is the INDEX stage's default handler (spec.md §4.5):
// GET <url>/, assign uuids, sort by source_record_key, persist to
// index.json. Resumes from an existing non-empty index.json without a
// network call.
func GenericIndexHandler(hctx *structure.HandlerContext) (*structure.HandlerResult, error) {
	indexPath := hctx.Workspace.IndexPath(hctx.Path)

	if resumed, ok, err := resumeIndex(hctx, indexPath); err != nil {
		return nil, err
	} else if ok {
		return &structure.HandlerResult{Items: resumed}, nil
	}

	return fetchAndPersistIndex(hctx, indexPath, connector.GetOptions{})
}

// resumeIndex implements spec.md §4.5's INDEX resume rule: if indexPath
// already parses to a non-empty array, it is used verbatim.
func resumeIndex(hctx *structure.HandlerContext, indexPath workspace.Path) ([]model.Resource, bool, error) {
	raw, present, err := hctx.Workspace.LoadNonEmptyJSON(hctx.Ctx, indexPath)
	if err != nil {
		return nil, false, &walker.WorkspaceError{Err: err}
	}
	if !present {
		return nil, false, nil
	}
	var items []model.Resource
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false, &walker.WorkspaceError{Err: fmt.Errorf("parsing resumed %s: %w", indexPath, err)}
	}
	return items, true, nil
}

func fetchAndPersistIndex(hctx *structure.HandlerContext, indexPath workspace.Path, opts connector.GetOptions) (*structure.HandlerResult, error) {
	errCtx := progress.ErrorContext{URL: hctx.URL}

	resp, err := hctx.Connector.Get(hctx.Ctx, hctx.URL, opts)
	if err != nil {
		return nil, &walker.TransportError{Err: err, Context: errCtx}
	}
	if !resp.OK {
		return nil, &walker.ResponseError{Err: fmt.Errorf("index GET %s: status %d", hctx.URL, resp.Status), Context: errCtx}
	}

	var raw []map[string]interface{}
	if err := resp.JSON(&raw); err != nil {
		return nil, &walker.ResponseError{Err: err, Context: errCtx}
	}

	items := make([]model.Resource, 0, len(raw))
	for _, obj := range raw {
		hctx.Identity.Assign(obj)
		items = append(items, model.Resource(obj))
	}
	sortBySourceRecordKey(items)

	if err := hctx.Workspace.ReplaceJSON(hctx.Ctx, indexPath, items); err != nil {
		return nil, &walker.WorkspaceError{Err: err}
	}

	return &structure.HandlerResult{Items: items, Response: resp}, nil
}

// JournalsIndexHandler returns the special journals INDEX handler of
// spec.md §4.5: identical to GenericIndexHandler except the GET carries a
// `paths=<csv>` query parameter built from the top-level call's filter list.
func JournalsIndexHandler(filterPaths []string) structure.HandlerFunc {
	return func(hctx *structure.HandlerContext) (*structure.HandlerResult, error) {
		indexPath := hctx.Workspace.IndexPath(hctx.Path)
		if resumed, ok, err := resumeIndex(hctx, indexPath); err != nil {
			return nil, err
		} else if ok {
			return &structure.HandlerResult{Items: resumed}, nil
		}

		opts := connector.GetOptions{}
		if len(filterPaths) > 0 {
			opts.Params = map[string]string{"paths": strings.Join(filterPaths, ",")}
		}
		return fetchAndPersistIndex(hctx, indexPath, opts)
	}
}

// RolesIndexHandler is the special roles INDEX handler of spec.md §4.5:
// after writing the roles index normally, it merges any newly observed
// users (by source_record_key of nested "user" objects) into the root
// users index.json, preserving prior entries and deduplicating.
func RolesIndexHandler(hctx *structure.HandlerContext) (*structure.HandlerResult, error) {
	result, err := GenericIndexHandler(hctx)
	if err != nil {
		return nil, err
	}

	for _, role := range result.Items {
		userObj, ok := role["user"].(map[string]interface{})
		if !ok {
			continue
		}
		key, _ := userObj["source_record_key"].(string)
		if key == "" {
			continue
		}
		hctx.Identity.Assign(userObj)
		if err := mergeResourceIntoRootIndex(hctx, "users", model.Resource(userObj)); err != nil {
			return nil, err
		}
	}

	return result, nil
}
