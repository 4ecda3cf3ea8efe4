// Package workspace implements the on-disk (or off-box, via
// internal/storage) staging layout of spec.md §3 and §4.2: every resource
// type directory carries an index.json of stubs, every instance directory
// carries a <singular>.json detail file, and the workspace root carries
// run metadata at current/index.json.
package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/a5c-ai/hub/internal/model"
	"github.com/a5c-ai/hub/internal/storage"
)

// Path is a storage.Backend-relative path, always rooted at "current/".
type Path string

// Join appends a segment.
func (p Path) Join(segment string) Path {
	return Path(path.Join(string(p), segment))
}

// String returns the path as a plain string, for passing to storage.Backend.
func (p Path) String() string { return string(p) }

const (
	rootDir   = "current"
	metaFile  = "index.json"
	indexFile = "index.json"
)

// Stage names, matching spec.md §6's metadata keys.
const (
	StageIndex = "index"
	StageFetch = "fetch"
	StagePush  = "push"
)

// Workspace owns the staging tree's byte storage. It does not know about
// UUID derivation (internal/identity) or the structure tree
// (internal/structure); it only knows paths and JSON files.
type Workspace struct {
	backend storage.Backend
	// writeMu serializes metadata read-modify-write so concurrent stage
	// bookkeeping (started/finished timestamps) never races (spec.md §5:
	// "Writes to any single detail file are serial").
	writeMu sync.Mutex
}

// New returns a Workspace backed by backend.
func New(backend storage.Backend) *Workspace {
	return &Workspace{backend: backend}
}

// Root returns the "current" run directory.
func (w *Workspace) Root() Path {
	return Path(rootDir)
}

// PathFor concatenates the workspace root with, for each ancestor in
// parents, "<type>/<uuid>/", then typeName, then optionally
// "<instanceUUID>" — spec.md §4.2's path_for. An empty instanceUUID yields
// the type directory itself (where index.json lives).
func (w *Workspace) PathFor(parents model.ParentChain, typeName, instanceUUID string) Path {
	p := w.Root()
	for _, ancestor := range parents {
		p = p.Join(ancestor.Type).Join(ancestor.Record.UUID())
	}
	p = p.Join(typeName)
	if instanceUUID != "" {
		p = p.Join(instanceUUID)
	}
	return p
}

// PKKind selects which primary key URLFor uses.
type PKKind int

const (
	// PKSource uses the "<pk>" half of source_record_key.
	PKSource PKKind = iota
	// PKTarget uses the "<pk>" half of target_record_key.
	PKTarget
)

// URLFor builds the same concatenation as PathFor but using the record's
// source or target primary key instead of its UUID, returning a relative
// URL path suitable for the connector (spec.md §4.2's url_for). stub is the
// record whose pk forms the final segment; pass a zero model.Resource for
// the type directory URL itself (used by INDEX GETs).
func (w *Workspace) URLFor(parents model.ParentChain, typeName string, stub model.Resource, kind PKKind) string {
	segments := make([]string, 0, len(parents)*2+2)
	for _, ancestor := range parents {
		segments = append(segments, ancestor.Type, pkOf(ancestor.Record, kind))
	}
	segments = append(segments, typeName)
	if key := recordKeyOf(stub, kind); key != "" {
		segments = append(segments, pkPart(key))
	}
	return "/" + strings.Join(segments, "/") + "/"
}

func recordKeyOf(r model.Resource, kind PKKind) string {
	if r == nil {
		return ""
	}
	if kind == PKTarget {
		return r.TargetRecordKey()
	}
	return r.SourceRecordKey()
}

func pkOf(r model.Resource, kind PKKind) string {
	return pkPart(recordKeyOf(r, kind))
}

// pkPart extracts the "<pk>" half of a "<type>:<pk>" key.
func pkPart(key string) string {
	if idx := strings.IndexByte(key, ':'); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

// IndexPath returns the index.json path for a type directory.
func (w *Workspace) IndexPath(typeDir Path) Path {
	return typeDir.Join(indexFile)
}

// DetailPath returns the <singular>.json path for an instance directory.
func (w *Workspace) DetailPath(instanceDir Path, singular string) Path {
	return instanceDir.Join(singular + ".json")
}

// Exists reports whether path has any content.
func (w *Workspace) Exists(ctx context.Context, p Path) (bool, error) {
	ok, err := w.backend.Exists(ctx, p.String())
	if err != nil {
		return false, fmt.Errorf("checking existence of %s: %w", p, err)
	}
	return ok, nil
}

// LoadJSON reads path and unmarshals it into out. Returns an error if the
// file does not exist.
func (w *Workspace) LoadJSON(ctx context.Context, p Path, out interface{}) error {
	reader, err := w.backend.Download(ctx, p.String())
	if err != nil {
		return fmt.Errorf("loading %s: %w", p, err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("reading %s: %w", p, err)
	}
	if err := json.Unmarshal(content, out); err != nil {
		return fmt.Errorf("parsing %s: %w", p, err)
	}
	return nil
}

// LoadNonEmptyJSON loads path the way LoadJSON does, but additionally
// reports whether the parsed value is "non-empty" per spec.md §4.5's
// resume rule: a non-empty array for index files, a detail object with a
// non-empty source_record_key for detail files. present is false (with a
// nil error) when the path does not exist at all.
func (w *Workspace) LoadNonEmptyJSON(ctx context.Context, p Path) (raw json.RawMessage, present bool, err error) {
	exists, err := w.Exists(ctx, p)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}

	reader, err := w.backend.Download(ctx, p.String())
	if err != nil {
		return nil, false, fmt.Errorf("loading %s: %w", p, err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", p, err)
	}

	if !isNonEmptyJSON(content) {
		return content, false, nil
	}
	return content, true, nil
}

func isNonEmptyJSON(content []byte) bool {
	var arr []json.RawMessage
	if err := json.Unmarshal(content, &arr); err == nil {
		return len(arr) > 0
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(content, &obj); err == nil {
		key, _ := obj["source_record_key"].(string)
		return key != ""
	}

	return false
}

// ReplaceJSON writes value to path, truncate-then-write (spec.md §4.2's
// "whole-file atomic-ish replacement"). A two-phase write (temp-file then
// rename) is preferred on backends that support it; storage.Backend's
// filesystem implementation already does create-then-copy, which leaves a
// truncated file visible for the duration of the write — acceptable here
// since the workspace is process-owned and not read concurrently (§5).
func (w *Workspace) ReplaceJSON(ctx context.Context, p Path, value interface{}) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", p, err)
	}
	if err := w.backend.Upload(ctx, p.String(), bytes.NewReader(encoded), int64(len(encoded))); err != nil {
		return fmt.Errorf("writing %s: %w", p, err)
	}
	return nil
}

// WriteMeta reads the run metadata file, merge-overlays delta's top-level
// keys onto it, and writes the result back (spec.md §4.2's write_meta).
// Writes are serialized so concurrent started/finished bookkeeping never
// interleaves.
func (w *Workspace) WriteMeta(ctx context.Context, delta map[string]interface{}) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	meta, err := w.readMetaLocked(ctx)
	if err != nil {
		return err
	}
	for k, v := range delta {
		meta[k] = v
	}
	return w.ReplaceJSON(ctx, w.metaPath(), meta)
}

// ReadMeta returns the run metadata as a generic map.
func (w *Workspace) ReadMeta(ctx context.Context) (map[string]interface{}, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.readMetaLocked(ctx)
}

func (w *Workspace) readMetaLocked(ctx context.Context) (map[string]interface{}, error) {
	exists, err := w.Exists(ctx, w.metaPath())
	if err != nil {
		return nil, err
	}
	if !exists {
		return map[string]interface{}{}, nil
	}
	var meta map[string]interface{}
	if err := w.LoadJSON(ctx, w.metaPath(), &meta); err != nil {
		return nil, err
	}
	if meta == nil {
		meta = map[string]interface{}{}
	}
	return meta, nil
}

func (w *Workspace) metaPath() Path {
	return w.Root().Join(metaFile)
}

// Init ensures the workspace metadata file exists, creating it with fresh
// application/version/transaction_id/initiated fields if missing, or
// leaving an existing one untouched (spec.md §3 "Lifecycle"). Returns the
// run's transaction_id (the namespace UUID as text) either way.
func (w *Workspace) Init(ctx context.Context, application, version string, newNamespace func() (string, error)) (string, error) {
	exists, err := w.Exists(ctx, w.metaPath())
	if err != nil {
		return "", err
	}
	if exists {
		meta, err := w.ReadMeta(ctx)
		if err != nil {
			return "", err
		}
		if txID, ok := meta["transaction_id"].(string); ok && txID != "" {
			return txID, nil
		}
		return "", fmt.Errorf("workspace metadata exists but has no transaction_id")
	}

	namespace, err := newNamespace()
	if err != nil {
		return "", err
	}

	meta := map[string]interface{}{
		"application":    application,
		"version":        version,
		"transaction_id": namespace,
		"initiated":      time.Now().UTC().Format(time.RFC3339),
	}
	if err := w.ReplaceJSON(ctx, w.metaPath(), meta); err != nil {
		return "", err
	}
	return namespace, nil
}

// CurrentStage returns the single stage with "<stage>_started" set and
// "<stage>_finished" unset (spec.md §4.2). Returns "" if no stage is in
// progress. Behavior is undefined by spec.md if more than one stage
// matches; this implementation returns the first match in INDEX, FETCH,
// PUSH order.
func (w *Workspace) CurrentStage(ctx context.Context) (string, error) {
	meta, err := w.ReadMeta(ctx)
	if err != nil {
		return "", err
	}
	for _, stage := range []string{StageIndex, StageFetch, StagePush} {
		started, hasStarted := meta[stage+"_started"]
		_, hasFinished := meta[stage+"_finished"]
		if hasStarted && started != nil && started != "" && !hasFinished {
			return stage, nil
		}
	}
	return "", nil
}

// StageFinished reports whether <stage>_finished is set in metadata.
func (w *Workspace) StageFinished(ctx context.Context, stage string) (bool, error) {
	meta, err := w.ReadMeta(ctx)
	if err != nil {
		return false, err
	}
	v, ok := meta[stage+"_finished"]
	return ok && v != nil && v != "", nil
}

// MarkStageStarted sets <stage>_started to now.
func (w *Workspace) MarkStageStarted(ctx context.Context, stage string) error {
	return w.WriteMeta(ctx, map[string]interface{}{
		stage + "_started": time.Now().UTC().Format(time.RFC3339),
	})
}

// MarkStageFinished sets <stage>_finished to now. It also writes the
// legacy "pushfinished" key alongside "push_finished" for the push stage,
// per DESIGN.md's resolution of the §9 Open Question on that key's name.
func (w *Workspace) MarkStageFinished(ctx context.Context, stage string) error {
	delta := map[string]interface{}{
		stage + "_finished": time.Now().UTC().Format(time.RFC3339),
	}
	if stage == StagePush {
		delta["pushfinished"] = delta[stage+"_finished"]
	}
	return w.WriteMeta(ctx, delta)
}

// Backend exposes the underlying storage.Backend, for components (like the
// PUSH stage's multipart file collection) that need raw byte access
// alongside JSON.
func (w *Workspace) Backend() storage.Backend {
	return w.backend
}
