package structure

import (
	"context"
	"fmt"

	"github.com/a5c-ai/hub/internal/connector"
	"github.com/a5c-ai/hub/internal/model"
	"github.com/a5c-ai/hub/internal/workspace"
)

// HandlerContext is the argument every preprocessor/handler/postprocessor
// receives, per Design Notes: "(node, parents, path, stub, response) ->
// result", generalized to a struct so adding fields never breaks callers.
type HandlerContext struct {
	Ctx     context.Context
	Node    *Node
	Stage   string
	Parents model.ParentChain
	Path    workspace.Path
	URL     string

	// Stub is the index-list entry driving this call at FETCH/PUSH (nil at
	// INDEX, where there is no stub yet).
	Stub model.Resource

	// Response is the connector response the default handler already
	// issued, when a postprocessor runs after a network call. Preprocessors
	// and handlers receive nil here since they are the ones making the
	// call.
	Response *connector.Response

	Connector  connector.Connector
	Workspace  *workspace.Workspace
	Identity   Identity
	FKResolver FKResolver

	// ParentRecord is the just-loaded detail this handler runs against, for
	// PUSH preprocessors/handlers that load-mutate-replace a single file.
	ParentRecord model.Resource
}

// Identity is the subset of internal/identity.Service the structure layer
// needs, kept as an interface here to avoid a structure->identity import
// (identity has no business logic structure needs beyond this).
type Identity interface {
	Of(sourceRecordKey string) string
	Assign(value interface{})
}

// FKResolver is the subset of internal/fk.Resolver the PUSH preprocessor
// needs, expressed as an interface to avoid a structure->fk import cycle
// (fk imports structure to assert that its Resolver satisfies this
// interface).
type FKResolver interface {
	Resolve(parents model.ParentChain, relatedType, uuid string) (workspace.Path, bool, error)
}

// HandlerResult is what a handler call produces: the items to recurse into
// for children (index stubs, or the singular instance just fetched/pushed).
type HandlerResult struct {
	// Items drives recursion into Node.Children: one descent per item, with
	// the parent chain extended by each in turn (spec.md §4.4 step 6).
	Items []model.Resource
	// Skip suppresses recursion into children even if Items is non-empty
	// (used when a handler determines there is nothing downstream to do).
	Skip bool
	// Response is the connector response the handler itself issued, if any,
	// passed through to the postprocessor via HandlerContext.Response.
	Response *connector.Response
}

// HandlerFunc is the shared signature every named handler implements.
type HandlerFunc func(*HandlerContext) (*HandlerResult, error)

// Registry is a startup-time mapping from symbolic handler names to
// function values, per Design Notes "Dynamic dispatch by name": "prefer a
// registry... This eliminates reflection while preserving the declarative
// tree."
type Registry struct {
	handlers map[string]HandlerFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register adds name to the registry. Re-registering the same name
// overwrites the previous entry, which lets tests stub out individual
// handlers.
func (r *Registry) Register(name string, fn HandlerFunc) {
	r.handlers[name] = fn
}

// Lookup resolves name. An empty name resolves to (nil, true): the caller
// is expected to fall back to the stage default in that case.
func (r *Registry) Lookup(name string) (HandlerFunc, bool) {
	if name == "" {
		return nil, true
	}
	fn, ok := r.handlers[name]
	return fn, ok
}

func (r *Registry) mustExist(name string) error {
	if name == "" {
		return nil
	}
	if _, ok := r.handlers[name]; !ok {
		return fmt.Errorf("no handler registered for %q", name)
	}
	return nil
}
