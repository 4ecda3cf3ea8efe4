// Package walker implements the generic structure-tree traversal engine of
// spec.md §4.4: given a subtree, a stage, and a parent chain, it visits
// every node in declaration order, resolves preprocessor/handler/
// postprocessor functions (named overrides falling back to stage defaults),
// computes path/url, invokes them in order, and recurses into children —
// extending the parent chain with each stub (INDEX) or the single current
// instance (FETCH/PUSH).
package walker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/a5c-ai/hub/internal/connector"
	"github.com/a5c-ai/hub/internal/model"
	"github.com/a5c-ai/hub/internal/progress"
	"github.com/a5c-ai/hub/internal/structure"
	"github.com/a5c-ai/hub/internal/workspace"
)

// StageDefaults supplies the stage-specific default preprocessor/handler/
// postprocessor, used whenever a node's StageConfig leaves the
// corresponding name empty (spec.md §4.4 step 3). Handler must always
// resolve to something; Preprocessor and Postprocessor may be left nil if a
// stage has no ambient default for that phase.
type StageDefaults struct {
	Preprocessor  structure.HandlerFunc
	Handler       structure.HandlerFunc
	Postprocessor structure.HandlerFunc
}

// Deps are the collaborators every handler call needs, threaded through
// HandlerContext.
type Deps struct {
	Registry   *structure.Registry
	Workspace  *workspace.Workspace
	Identity   structure.Identity
	Connector  connector.Connector
	FKResolver structure.FKResolver
	Observer   progress.Observer
}

// Walker drives the traversal described in spec.md §4.4.
type Walker struct {
	deps Deps
}

// New returns a Walker wired with deps.
func New(deps Deps) *Walker {
	return &Walker{deps: deps}
}

// Run walks nodes for stage, starting from parents, using defaults for any
// node that leaves a phase unnamed.
func (w *Walker) Run(ctx context.Context, nodes []*structure.Node, stage string, parents model.ParentChain, defaults StageDefaults) error {
	for _, node := range nodes {
		cfg, enabled := node.StageFor(stage)
		if !enabled {
			// spec.md §9 Open Question: index:false (and by extension
			// fetch/push:false) skips the whole subtree, not just this node.
			continue
		}

		var err error
		if stage == workspace.StageIndex {
			err = w.visitIndexNode(ctx, node, cfg, parents, defaults)
		} else {
			err = w.visitInstanceNode(ctx, node, cfg, stage, parents, defaults)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) resolve(name string, fallback structure.HandlerFunc) structure.HandlerFunc {
	if name == "" {
		return fallback
	}
	fn, ok := w.deps.Registry.Lookup(name)
	if !ok || fn == nil {
		// structure.Validate runs at startup and should have caught a
		// missing name; reaching here means the registry changed under a
		// running coordinator, which the stage default covers safely.
		return fallback
	}
	return fn
}

// outcome is what running the pre/handler/post triad for one item produced,
// kept local to this package so structure.HandlerContext stays a pure input
// value rather than an in/out scratch pad.
type outcome struct {
	items         []model.Resource
	skipRecursion bool
	aborted       bool
}

// visitIndexNode handles one node at the INDEX stage: a single handler call
// producing the type's index, followed by recursion into children once per
// returned stub.
func (w *Walker) visitIndexNode(ctx context.Context, node *structure.Node, cfg *structure.StageConfig, parents model.ParentChain, defaults StageDefaults) error {
	depth := len(parents)
	typePath := w.deps.Workspace.PathFor(parents, node.Type, "")
	typeURL := w.deps.Workspace.URLFor(parents, node.Type, nil, workspace.PKSource)

	hctx := &structure.HandlerContext{
		Ctx: ctx, Node: node, Stage: workspace.StageIndex, Parents: parents,
		Path: typePath, URL: typeURL,
		Connector: w.deps.Connector, Workspace: w.deps.Workspace,
		Identity: w.deps.Identity, FKResolver: w.deps.FKResolver,
	}

	w.reportEnter(depth, node.Type, 0)

	errCtx := progress.ErrorContext{Stage: workspace.StageIndex, NodeType: node.Type, URL: typeURL}

	out, fatal := w.runItem(hctx, cfg, defaults, errCtx)
	if fatal != nil {
		return fatal
	}
	if out.aborted {
		return &AbortError{Stage: workspace.StageIndex}
	}
	if out.skipRecursion || len(node.Children) == 0 {
		return nil
	}

	for i, item := range out.items {
		w.reportItem(depth, i, len(out.items), item.SourceRecordKey())
		childParents := parents.WithAncestor(node.Type, item)
		if err := w.Run(ctx, node.Children, workspace.StageIndex, childParents, defaults); err != nil {
			return err
		}
	}
	return nil
}

// visitInstanceNode handles one node at FETCH or PUSH: the type's index is
// loaded from the workspace (already written by a prior stage), and each
// stub drives one preprocessor/handler/postprocessor call plus recursion.
func (w *Walker) visitInstanceNode(ctx context.Context, node *structure.Node, cfg *structure.StageConfig, stage string, parents model.ParentChain, defaults StageDefaults) error {
	depth := len(parents)
	typePath := w.deps.Workspace.PathFor(parents, node.Type, "")

	if cfg.Singleton {
		return w.visitSingleton(ctx, node, cfg, stage, parents, defaults, typePath)
	}

	indexPath := w.deps.Workspace.IndexPath(typePath)
	raw, present, err := w.deps.Workspace.LoadNonEmptyJSON(ctx, indexPath)
	if err != nil {
		return &WorkspaceError{Err: err}
	}
	if !present {
		// "An empty or absent index at FETCH/PUSH time aborts the subtree
		// for that parent but is not a fatal error" (spec.md §4.4).
		return nil
	}

	var stubs []model.Resource
	if err := json.Unmarshal(raw, &stubs); err != nil {
		return &WorkspaceError{Err: fmt.Errorf("parsing %s: %w", indexPath, err)}
	}

	w.reportEnter(depth, node.Type, len(stubs))

	pkKind := workspace.PKSource
	if stage == workspace.StagePush {
		pkKind = workspace.PKTarget
	}

	for i, stub := range stubs {
		w.reportItem(depth, i, len(stubs), stub.SourceRecordKey())

		instPath := w.deps.Workspace.PathFor(parents, node.Type, stub.UUID())
		instURL := w.deps.Workspace.URLFor(parents, node.Type, stub, pkKind)

		hctx := &structure.HandlerContext{
			Ctx: ctx, Node: node, Stage: stage, Parents: parents,
			Path: instPath, URL: instURL, Stub: stub,
			Connector: w.deps.Connector, Workspace: w.deps.Workspace,
			Identity: w.deps.Identity, FKResolver: w.deps.FKResolver,
		}
		errCtx := progress.ErrorContext{
			Stage: stage, NodeType: node.Type, URL: instURL,
			DestinationFile: instPath.String(), SourceRecordKey: stub.SourceRecordKey(),
		}

		out, fatal := w.runItem(hctx, cfg, defaults, errCtx)
		if fatal != nil {
			return fatal
		}
		if out.aborted {
			return &AbortError{Stage: stage}
		}
		if out.skipRecursion || len(node.Children) == 0 {
			continue
		}

		childRecord := stub
		if len(out.items) == 1 {
			childRecord = out.items[0]
		}
		childParents := parents.WithAncestor(node.Type, childRecord)
		if err := w.Run(ctx, node.Children, stage, childParents, defaults); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) visitSingleton(ctx context.Context, node *structure.Node, cfg *structure.StageConfig, stage string, parents model.ParentChain, defaults StageDefaults, typePath workspace.Path) error {
	depth := len(parents)
	w.reportEnter(depth, node.Type, 1)

	pkKind := workspace.PKSource
	if stage == workspace.StagePush {
		pkKind = workspace.PKTarget
	}
	url := w.deps.Workspace.URLFor(parents, node.Type, nil, pkKind)

	hctx := &structure.HandlerContext{
		Ctx: ctx, Node: node, Stage: stage, Parents: parents, Path: typePath, URL: url,
		Connector: w.deps.Connector, Workspace: w.deps.Workspace,
		Identity: w.deps.Identity, FKResolver: w.deps.FKResolver,
	}
	errCtx := progress.ErrorContext{Stage: stage, NodeType: node.Type, URL: url}

	out, fatal := w.runItem(hctx, cfg, defaults, errCtx)
	if fatal != nil {
		return fatal
	}
	if out.aborted {
		return &AbortError{Stage: stage}
	}
	return nil
}

// runItem executes the preprocessor/handler/postprocessor triad for one
// item. It returns the handler's recursion items/skip flag as an outcome,
// and a non-nil fatal error only for workspace or unclassified failures —
// transport/response errors are resolved into outcome.aborted via the
// progress observer instead of propagating.
func (w *Walker) runItem(hctx *structure.HandlerContext, cfg *structure.StageConfig, defaults StageDefaults, errCtx progress.ErrorContext) (outcome, error) {
	if pre := w.resolve(cfg.Preprocessor, defaults.Preprocessor); pre != nil {
		if _, err := pre(hctx); err != nil {
			decision, fatal := w.handleError(err, errCtx)
			if fatal != nil {
				return outcome{}, fatal
			}
			return outcome{aborted: decision == progress.Abort, skipRecursion: true}, nil
		}
	}

	handler := w.resolve(cfg.Handler, defaults.Handler)
	if handler == nil {
		return outcome{}, fmt.Errorf("structure node %s: no %s handler resolved", hctx.Node.Type, hctx.Stage)
	}
	result, err := handler(hctx)
	if err != nil {
		decision, fatal := w.handleError(err, errCtx)
		if fatal != nil {
			return outcome{}, fatal
		}
		return outcome{aborted: decision == progress.Abort, skipRecursion: true}, nil
	}

	out := outcome{}
	if result != nil {
		hctx.Response = result.Response
		out.items = result.Items
		out.skipRecursion = result.Skip
	} else {
		out.skipRecursion = true
	}

	if post := w.resolve(cfg.Postprocessor, defaults.Postprocessor); post != nil {
		if _, err := post(hctx); err != nil {
			decision, fatal := w.handleError(err, errCtx)
			if fatal != nil {
				return outcome{}, fatal
			}
			if decision == progress.Abort {
				out.aborted = true
			}
		}
	}

	return out, nil
}

// handleError classifies an error returned by a handler call: transport and
// response errors are non-fatal (spec.md §7), delegated to the observer;
// anything else (workspace I/O, unclassified) is fatal and propagates.
func (w *Walker) handleError(err error, errCtx progress.ErrorContext) (progress.Decision, error) {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return w.deps.Observer.ReportError(err, overlay(errCtx, transportErr.Context)), nil
	}
	var responseErr *ResponseError
	if errors.As(err, &responseErr) {
		return w.deps.Observer.ReportError(err, overlay(errCtx, responseErr.Context)), nil
	}
	return progress.Continue, err
}

// overlay fills zero-value fields of base from extra, letting a handler's
// own error context refine (never erase) what the walker already knows.
func overlay(base, extra progress.ErrorContext) progress.ErrorContext {
	if extra.Server != "" {
		base.Server = extra.Server
	}
	if extra.URL != "" {
		base.URL = extra.URL
	}
	if extra.DestinationFile != "" {
		base.DestinationFile = extra.DestinationFile
	}
	if extra.Stage != "" {
		base.Stage = extra.Stage
	}
	if extra.NodeType != "" {
		base.NodeType = extra.NodeType
	}
	if extra.SourceRecordKey != "" {
		base.SourceRecordKey = extra.SourceRecordKey
	}
	return base
}

// reportEnter announces entry into a node (spec.md §4.7): Major at depth 0,
// Minor at depth 1, Detail deeper.
func (w *Walker) reportEnter(depth int, typeName string, length int) {
	switch depth {
	case 0:
		w.deps.Observer.Major(typeName, length)
	case 1:
		w.deps.Observer.Minor(0, typeName, length)
	default:
		w.deps.Observer.Detail(0, typeName)
	}
}

// reportItem announces progress through a node's items. A depth-0 node's
// items are depth-1 instances (Minor); anything deeper reports Detail.
// index is the item's 0-based position; observers receive it 1-based.
func (w *Walker) reportItem(depth, index, length int, message string) {
	if depth == 0 {
		w.deps.Observer.Minor(index+1, message, length)
		return
	}
	w.deps.Observer.Detail(index+1, message)
}
