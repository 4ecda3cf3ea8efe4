// Package structure defines the declarative structure tree the walker
// drives (spec.md §3 "Structure node", §4.4, Design Notes "Declarative
// tree as data"). Nodes are constructed as data — tagged records, not
// reflection over method names — and handler references are symbolic keys
// resolved against a Registry at startup.
package structure

// StageConfig is one stage's ({index,fetch,push}) configuration for a node.
// A nil StageConfig means the stage is disabled for this node and its
// whole subtree is skipped (spec.md §4.4 step 1; the Open Question in §9
// resolves "index: false" as skip-whole-subtree).
type StageConfig struct {
	// Handler, Preprocessor, Postprocessor name entries in a Registry. Empty
	// means "use the stage's default" (spec.md §4.4 step 3).
	Handler       string
	Preprocessor  string
	Postprocessor string
	// Singleton nodes have no per-instance iteration at FETCH: exactly one
	// handler call (spec.md §4.4).
	Singleton bool
}

// Node is one entry in the structure tree, describing a resource type.
type Node struct {
	// Type is the resource type name, e.g. "journals", as it appears on the
	// wire and in source_record_key prefixes.
	Type string
	// Singular names the per-instance detail file, e.g. "journal" for
	// "journals". Falls back to a strip-trailing-"s" heuristic when empty
	// (SPEC_FULL.md's singular(type) note).
	Singular string

	Index *StageConfig
	Fetch *StageConfig
	Push  *StageConfig

	// ForeignKeys maps a field name on this resource to the resource-type
	// name it references, consulted by the PUSH preprocessor (spec.md
	// §4.5).
	ForeignKeys map[string]string

	// Children are processed in this declared order; dependencies must
	// appear before dependents (spec.md §3).
	Children []*Node

	// ProgressKey, NameKey, and ProgressWeight are UI hints (spec.md §3);
	// the core engine does not read any of them.
	ProgressKey    string
	NameKey        string
	ProgressWeight int
}

// SingularName returns Node.Singular, falling back to stripping a trailing
// "s" from Type.
func (n *Node) SingularName() string {
	if n.Singular != "" {
		return n.Singular
	}
	if len(n.Type) > 0 && n.Type[len(n.Type)-1] == 's' {
		return n.Type[:len(n.Type)-1]
	}
	return n.Type
}

// StageFor returns this node's configuration for the given stage name
// ("index", "fetch", "push"), and whether the stage is enabled at all.
func (n *Node) StageFor(stage string) (*StageConfig, bool) {
	var cfg *StageConfig
	switch stage {
	case "index":
		cfg = n.Index
	case "fetch":
		cfg = n.Fetch
	case "push":
		cfg = n.Push
	}
	return cfg, cfg != nil
}

// Walk calls fn for every node in the tree rooted at n, in declaration
// order, depth-first, including n itself.
func Walk(nodes []*Node, fn func(*Node)) {
	for _, n := range nodes {
		fn(n)
		Walk(n.Children, fn)
	}
}

// Validate checks that every handler/preprocessor/postprocessor name
// referenced anywhere in the tree exists in reg, per Design Notes "validate
// once at startup that every referenced handler exists." A missing name is
// a programming error (spec.md §4.4 step 3: "fatal").
func Validate(nodes []*Node, reg *Registry) error {
	var firstErr error
	Walk(nodes, func(n *Node) {
		if firstErr != nil {
			return
		}
		for _, cfg := range []*StageConfig{n.Index, n.Fetch, n.Push} {
			if cfg == nil {
				continue
			}
			if err := reg.mustExist(cfg.Handler); err != nil {
				firstErr = nodeErr(n, err)
				return
			}
			if err := reg.mustExist(cfg.Preprocessor); err != nil {
				firstErr = nodeErr(n, err)
				return
			}
			if err := reg.mustExist(cfg.Postprocessor); err != nil {
				firstErr = nodeErr(n, err)
				return
			}
		}
	})
	return firstErr
}

func nodeErr(n *Node, err error) error {
	return &ValidationError{Node: n.Type, Err: err}
}

// ValidationError reports which node referenced an unresolvable handler.
type ValidationError struct {
	Node string
	Err  error
}

func (e *ValidationError) Error() string {
	return "structure node " + e.Node + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }
