package stage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/a5c-ai/hub/internal/connector"
	"github.com/a5c-ai/hub/internal/model"
	"github.com/a5c-ai/hub/internal/progress"
	"github.com/a5c-ai/hub/internal/structure"
	"github.com/a5c-ai/hub/internal/walker"
	"github.com/a5c-ai/hub/internal/workspace"
)

// ForeignKeyPreprocessor is the PUSH stage's default preprocessor, applied
// when a node declares ForeignKeys (spec.md §4.5): for each (field, related
// type) pair, load the current detail, resolve every referenced object via
// hctx.FKResolver, copy the resolved record's target_record_key into the
// reference, and write the detail back.
func ForeignKeyPreprocessor(hctx *structure.HandlerContext) (*structure.HandlerResult, error) {
	if len(hctx.Node.ForeignKeys) == 0 {
		return &structure.HandlerResult{}, nil
	}
	return rewriteForeignKeys(hctx, hctx.Parents, hctx.Node.ForeignKeys)
}

func rewriteForeignKeys(hctx *structure.HandlerContext, parents model.ParentChain, foreignKeys map[string]string) (*structure.HandlerResult, error) {
	detailPath := hctx.Workspace.DetailPath(hctx.Path, hctx.Node.SingularName())
	var detail model.Resource
	if err := hctx.Workspace.LoadJSON(hctx.Ctx, detailPath, &detail); err != nil {
		return nil, &walker.WorkspaceError{Err: err}
	}

	for field, relatedType := range foreignKeys {
		value, ok := detail[field]
		if !ok {
			continue
		}
		for _, ref := range referencedResources(value) {
			if err := resolveForeignKey(hctx, parents, relatedType, ref); err != nil {
				return nil, err
			}
		}
	}

	if err := hctx.Workspace.ReplaceJSON(hctx.Ctx, detailPath, detail); err != nil {
		return nil, &walker.WorkspaceError{Err: err}
	}
	hctx.ParentRecord = detail
	return &structure.HandlerResult{}, nil
}

func resolveForeignKey(hctx *structure.HandlerContext, parents model.ParentChain, relatedType string, ref map[string]interface{}) error {
	uuid, _ := ref["uuid"].(string)
	if uuid == "" {
		return nil
	}
	relatedPath, found, err := hctx.FKResolver.Resolve(parents, relatedType, uuid)
	if err != nil {
		return &walker.WorkspaceError{Err: fmt.Errorf("resolving foreign key %s/%s: %w", relatedType, uuid, err)}
	}
	if !found {
		// spec.md §4.6: an unresolved reference is left as-is, not an error.
		return nil
	}

	var related model.Resource
	if err := hctx.Workspace.LoadJSON(hctx.Ctx, relatedPath, &related); err != nil {
		return &walker.WorkspaceError{Err: err}
	}
	if target := related.TargetRecordKey(); target != "" {
		ref["target_record_key"] = target
	}
	return nil
}

// ResponseReviewFormElementPreprocessor is the review_form_element foreign
// key's bespoke PUSH preprocessor (spec.md §8 scenario and Design Notes on
// nested review forms): responses live three levels under
// journals/review_forms/review_form_elements, so the FK resolver is run
// against a synthetic two-ancestor chain {journals, review_forms} rebuilt
// from the real parent chain, rather than the full chain the walker would
// otherwise supply.
func ResponseReviewFormElementPreprocessor(hctx *structure.HandlerContext) (*structure.HandlerResult, error) {
	journal, ok := hctx.Parents.ByType("journals")
	if !ok {
		return &structure.HandlerResult{}, nil
	}
	reviewForm, ok := hctx.Parents.ByType("review_forms")
	if !ok {
		return &structure.HandlerResult{}, nil
	}

	synthetic := model.ParentChain{}.WithAncestor("journals", journal.Record).WithAncestor("review_forms", reviewForm.Record)
	return rewriteForeignKeys(hctx, synthetic, map[string]string{"review_form_element": "review_form_elements"})
}

// GenericPushHandler is the PUSH stage's default handler (spec.md §4.5):
// load the detail (already foreign-key-rewritten by the preprocessor),
// collect any sibling binary files into a multipart body, POST, and record
// the target's source_record_key as this record's target_record_key.
// Resumes (no network call) when the detail already carries one.
func GenericPushHandler(hctx *structure.HandlerContext) (*structure.HandlerResult, error) {
	detailPath := hctx.Workspace.DetailPath(hctx.Path, hctx.Node.SingularName())

	detail := hctx.ParentRecord
	if detail == nil {
		if err := hctx.Workspace.LoadJSON(hctx.Ctx, detailPath, &detail); err != nil {
			return nil, &walker.WorkspaceError{Err: err}
		}
	}

	if detail.TargetRecordKey() != "" {
		return &structure.HandlerResult{Items: []model.Resource{detail}}, nil
	}

	files, err := collectSiblingFiles(hctx)
	if err != nil {
		return nil, err
	}

	body, err := pushBody(detail, files, "detail")
	if err != nil {
		return nil, err
	}

	errCtx := progress.ErrorContext{URL: hctx.URL, SourceRecordKey: hctx.Stub.SourceRecordKey()}
	resp, err := hctx.Connector.Post(hctx.Ctx, hctx.URL, body)
	if err != nil {
		return nil, &walker.TransportError{Err: err, Context: errCtx}
	}
	if !resp.OK {
		return nil, &walker.ResponseError{Err: fmt.Errorf("push POST %s: status %d", hctx.URL, resp.Status), Context: errCtx}
	}

	if err := applyTargetRecordKey(hctx, detailPath, detail, resp); err != nil {
		return nil, err
	}

	return &structure.HandlerResult{Items: []model.Resource{detail}, Response: resp}, nil
}

// FilesPushHandler is the files resource type's PUSH handler (spec.md
// §4.5): attaches the single sibling binary as "file", merges the
// file-metadata JSON (carrying parent_target_record_key, resolved from the
// sibling parent record, rather than a foreign-key map lookup since files
// have no index-level foreign_keys entry), and POSTs.
func FilesPushHandler(hctx *structure.HandlerContext) (*structure.HandlerResult, error) {
	detailPath := hctx.Workspace.DetailPath(hctx.Path, "file")

	var detail model.Resource
	if err := hctx.Workspace.LoadJSON(hctx.Ctx, detailPath, &detail); err != nil {
		return nil, &walker.WorkspaceError{Err: err}
	}
	if detail.TargetRecordKey() != "" {
		return &structure.HandlerResult{Items: []model.Resource{detail}}, nil
	}

	if parent, ok := hctx.Parents.Last(); ok {
		if parentTarget := parent.Record.TargetRecordKey(); parentTarget != "" {
			detail["parent_target_record_key"] = parentTarget
		}
	}
	if err := hctx.Workspace.ReplaceJSON(hctx.Ctx, detailPath, detail); err != nil {
		return nil, &walker.WorkspaceError{Err: err}
	}

	binaryName, content, err := loadSiblingBinary(hctx)
	if err != nil {
		return nil, err
	}

	files := map[string]connector.MultipartFile{}
	if binaryName != "" {
		files["file"] = connector.MultipartFile{Filename: binaryName, Content: bytes.NewReader(content)}
	}

	body, err := pushBody(detail, files, "metadata")
	if err != nil {
		return nil, err
	}

	errCtx := progress.ErrorContext{URL: hctx.URL, SourceRecordKey: hctx.Stub.SourceRecordKey()}
	resp, err := hctx.Connector.Post(hctx.Ctx, hctx.URL, body)
	if err != nil {
		return nil, &walker.TransportError{Err: err, Context: errCtx}
	}
	if !resp.OK {
		return nil, &walker.ResponseError{Err: fmt.Errorf("file push POST %s: status %d", hctx.URL, resp.Status), Context: errCtx}
	}

	if err := applyTargetRecordKey(hctx, detailPath, detail, resp); err != nil {
		return nil, err
	}

	return &structure.HandlerResult{Items: []model.Resource{detail}, Response: resp}, nil
}

// pushBody builds a pure JSON body when there are no sibling files, or a
// multipart body (detail/metadata JSON-encoded under fieldName, plus every
// file keyed "<filename>_file") when there are, per spec.md §4.5.
func pushBody(detail model.Resource, files map[string]connector.MultipartFile, fieldName string) (connector.PostBody, error) {
	if len(files) == 0 {
		return connector.PostBody{JSON: detail}, nil
	}
	encoded, err := json.Marshal(detail)
	if err != nil {
		return connector.PostBody{}, &walker.WorkspaceError{Err: err}
	}
	return connector.PostBody{
		Multipart: &connector.Multipart{
			Files:  files,
			Fields: map[string]string{fieldName: string(encoded)},
		},
	}, nil
}

// applyTargetRecordKey implements spec.md §4.5's "If response carries
// source_record_key, treat it as the record's target key" rule: a 2xx
// response with no such field is a silent no-op, not an error.
func applyTargetRecordKey(hctx *structure.HandlerContext, detailPath workspace.Path, detail model.Resource, resp *connector.Response) error {
	var parsed map[string]interface{}
	if err := resp.JSON(&parsed); err != nil {
		return nil
	}
	key, _ := parsed["source_record_key"].(string)
	if key == "" {
		return nil
	}
	detail["target_record_key"] = key
	if err := hctx.Workspace.ReplaceJSON(hctx.Ctx, detailPath, detail); err != nil {
		return &walker.WorkspaceError{Err: err}
	}
	return nil
}

func readAllAndClose(reader io.ReadCloser) ([]byte, error) {
	defer reader.Close()
	return io.ReadAll(reader)
}

// collectSiblingFiles lists every non-JSON file alongside the instance's
// detail file and downloads each into a multipart entry keyed
// "<filename>_file" (spec.md §4.5).
func collectSiblingFiles(hctx *structure.HandlerContext) (map[string]connector.MultipartFile, error) {
	entries, err := hctx.Workspace.Backend().List(hctx.Ctx, hctx.Path.String())
	if err != nil {
		return nil, &walker.WorkspaceError{Err: err}
	}

	files := map[string]connector.MultipartFile{}
	for _, entry := range entries {
		if strings.HasSuffix(entry, ".json") {
			continue
		}
		// List is a recursive prefix scan; keep only direct siblings, not
		// binaries staged under child resource directories.
		if path.Dir(entry) != hctx.Path.String() {
			continue
		}
		reader, err := hctx.Workspace.Backend().Download(hctx.Ctx, entry)
		if err != nil {
			return nil, &walker.WorkspaceError{Err: err}
		}
		content, err := readAllAndClose(reader)
		if err != nil {
			return nil, &walker.WorkspaceError{Err: err}
		}
		name := path.Base(entry)
		files[name+"_file"] = connector.MultipartFile{Filename: name, Content: bytes.NewReader(content)}
	}
	return files, nil
}

// loadSiblingBinary returns the single non-JSON file in the instance
// directory, if any (the files resource's downloaded attachment).
func loadSiblingBinary(hctx *structure.HandlerContext) (string, []byte, error) {
	entries, err := hctx.Workspace.Backend().List(hctx.Ctx, hctx.Path.String())
	if err != nil {
		return "", nil, &walker.WorkspaceError{Err: err}
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry, ".json") {
			continue
		}
		reader, err := hctx.Workspace.Backend().Download(hctx.Ctx, entry)
		if err != nil {
			return "", nil, &walker.WorkspaceError{Err: err}
		}
		content, err := readAllAndClose(reader)
		if err != nil {
			return "", nil, &walker.WorkspaceError{Err: err}
		}
		return path.Base(entry), content, nil
	}
	return "", nil, nil
}
