// Package fk implements the foreign-key resolver of spec.md §4.6: given a
// parent chain and a related resource's type and UUID, it locates that
// record's detail file on disk.
package fk

import (
	"context"
	"fmt"

	"github.com/a5c-ai/hub/internal/model"
	"github.com/a5c-ai/hub/internal/structure"
	"github.com/a5c-ai/hub/internal/workspace"
)

// SingularLookup resolves a resource type name to its singular detail
// filename stem (e.g. "journals" -> "journal"), matching
// structure.Node.SingularName.
type SingularLookup func(typeName string) string

// Resolver implements spec.md §4.6's search: starting from the workspace
// root, look for R as an immediate child directory; if not found, descend
// into the next ancestor of the parent chain (outermost first) and look
// again.
type Resolver struct {
	ws        *workspace.Workspace
	singular  SingularLookup
	ctx       context.Context
	indexHint Index
}

// Index is the Design Notes' optional acceleration structure: a
// lazily-built (type, uuid) -> path map. A nil Index disables the fast
// path; Resolver always falls back to the recursive walk when the index
// has no entry (it may simply not have been built yet), and records what
// it finds so later lookups for the same pair hit the fast path.
type Index interface {
	Lookup(typeName, uuid string) (workspace.Path, bool)
	Record(typeName, uuid string, path workspace.Path) error
}

// NewResolver returns a Resolver bound to a workspace and a singular-name
// lookup. idx may be nil.
func NewResolver(ws *workspace.Workspace, singular SingularLookup, idx Index) *Resolver {
	return &Resolver{ws: ws, singular: singular, ctx: context.Background(), indexHint: idx}
}

// WithContext returns a copy of the resolver bound to ctx, for callers that
// want cancellation/timeouts threaded through workspace I/O.
func (r *Resolver) WithContext(ctx context.Context) *Resolver {
	cp := *r
	cp.ctx = ctx
	return &cp
}

// Resolve searches for relatedType's detail file starting at the workspace
// root and descending one ancestor of parents at a time (outermost first),
// per spec.md §4.6. The returned path is existence-checked
// before being returned (ok is true only when the file was actually
// found); a miss is not an error — callers leave the foreign key
// unresolved (spec.md §4.6).
func (r *Resolver) Resolve(parents model.ParentChain, relatedType, uuid string) (workspace.Path, bool, error) {
	if r.indexHint != nil {
		if p, ok := r.indexHint.Lookup(relatedType, uuid); ok {
			exists, err := r.ws.Exists(r.ctx, p)
			if err != nil {
				return "", false, err
			}
			if exists {
				return p, true, nil
			}
		}
	}
	path, ok, err := r.resolveByWalk(parents, relatedType, uuid)
	if err != nil || !ok {
		return path, ok, err
	}
	if r.indexHint != nil {
		if recErr := r.indexHint.Record(relatedType, uuid, path); recErr != nil {
			return "", false, fmt.Errorf("caching resolved foreign key %s/%s: %w", relatedType, uuid, recErr)
		}
	}
	return path, ok, nil
}

// resolveByWalk implements spec.md §4.6 literally: starting at the
// workspace root, check whether relatedType sits as an immediate sibling
// (this is how "users" — with no parent at all — resolves on the very
// first check). If not, consume the head of the *original* parent chain
// (the outermost ancestor first) to descend one level deeper into the
// tree, and check again. This is why review-form elements, nested three
// levels under journals/review_forms, resolve after two descents, while
// users resolve immediately at the root.
func (r *Resolver) resolveByWalk(parents model.ParentChain, relatedType, uuid string) (workspace.Path, bool, error) {
	accumulated := model.ParentChain{}
	remaining := parents

	for {
		candidate := r.candidatePath(accumulated, relatedType, uuid)
		exists, err := r.ws.Exists(r.ctx, candidate)
		if err != nil {
			return "", false, fmt.Errorf("checking foreign-key candidate %s: %w", candidate, err)
		}
		if exists {
			return candidate, true, nil
		}

		head, rest, ok := remaining.Head()
		if !ok {
			return "", false, nil
		}
		accumulated = accumulated.WithAncestor(head.Type, head.Record)
		remaining = rest
	}
}

func (r *Resolver) candidatePath(parents model.ParentChain, relatedType, uuid string) workspace.Path {
	dir := r.ws.PathFor(parents, relatedType, uuid)
	return r.ws.DetailPath(dir, r.singular(relatedType))
}

var _ structure.FKResolver = (*Resolver)(nil)
