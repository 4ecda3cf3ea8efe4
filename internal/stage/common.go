// Package stage implements the three stage engines of spec.md §4.5 — INDEX,
// FETCH, PUSH — as default preprocessor/handler/postprocessor functions the
// walker falls back to when a structure node leaves a phase unnamed, plus
// the handful of named overrides (journals' path filter, roles' user
// propagation, the files variants, the review-form-element preprocessor)
// a coordinator registers against internal/structure.Registry.
package stage

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/a5c-ai/hub/internal/model"
	"github.com/a5c-ai/hub/internal/structure"
	"github.com/a5c-ai/hub/internal/walker"
)

// sortBySourceRecordKey orders items the way spec.md §4.5 requires every
// persisted index.json to be ordered, mandatory for deterministic output.
func sortBySourceRecordKey(items []model.Resource) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].SourceRecordKey() < items[j].SourceRecordKey()
	})
}

// pkPart extracts the "<pk>" half of a "<type>:<pk>" source or target
// record key, mirroring internal/workspace's unexported helper of the same
// shape (kept duplicated rather than exported across a package boundary
// that otherwise has no reason to share it).
func pkPart(key string) string {
	if idx := strings.IndexByte(key, ':'); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

// referencedResources normalizes a foreign-key field's value — which may be
// a single nested object or a list of them — into a uniform slice, so
// preprocessors can treat both shapes identically.
func referencedResources(value interface{}) []map[string]interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return []map[string]interface{}{v}
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if obj, ok := item.(map[string]interface{}); ok {
				out = append(out, obj)
			}
		}
		return out
	default:
		return nil
	}
}

// mergeResourceIntoRootIndex appends resource to the root-level index.json
// for typeName if its source_record_key is not already present, sorting and
// persisting the result. Used for the roles->users and fetch-time
// foreign-keyed-user propagation rules of spec.md §4.5.
func mergeResourceIntoRootIndex(hctx *structure.HandlerContext, typeName string, resource model.Resource) error {
	indexDir := hctx.Workspace.PathFor(model.ParentChain{}, typeName, "")
	indexPath := hctx.Workspace.IndexPath(indexDir)

	raw, present, err := hctx.Workspace.LoadNonEmptyJSON(hctx.Ctx, indexPath)
	if err != nil {
		return &walker.WorkspaceError{Err: err}
	}
	var existing []model.Resource
	if present {
		if err := json.Unmarshal(raw, &existing); err != nil {
			return &walker.WorkspaceError{Err: err}
		}
	}

	key := resource.SourceRecordKey()
	for _, e := range existing {
		if e.SourceRecordKey() == key {
			return nil
		}
	}

	existing = append(existing, resource)
	sortBySourceRecordKey(existing)
	if err := hctx.Workspace.ReplaceJSON(hctx.Ctx, indexPath, existing); err != nil {
		return &walker.WorkspaceError{Err: err}
	}
	return nil
}
