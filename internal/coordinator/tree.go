package coordinator

import (
	"github.com/a5c-ai/hub/internal/stage"
	"github.com/a5c-ai/hub/internal/structure"
)

// DefaultTree builds the root-level structure tree of SPEC_FULL.md's
// "Resource type catalogue": users as the only flat root type besides
// journals, and journals -> roles/sections/review_forms, sections ->
// issues -> articles -> authors/files, journals -> review_forms ->
// review_form_elements -> responses as the nested content tree.
// filterPaths is not read by the tree itself: the journals INDEX handler's
// `paths=` query parameter (spec.md §4.5 scenario 2) receives it through
// stage.RegisterDefaults.
func DefaultTree(filterPaths []string) []*structure.Node {
	return []*structure.Node{
		usersNode(),
		journalsNode(filterPaths),
	}
}

func usersNode() *structure.Node {
	return &structure.Node{
		Type:     "users",
		Singular: "user",
		Index:    &structure.StageConfig{},
		Fetch:    &structure.StageConfig{},
		Push:     &structure.StageConfig{},
	}
}

func rolesNode() *structure.Node {
	return &structure.Node{
		Type:     "roles",
		Singular: "role",
		Index:    &structure.StageConfig{Handler: stage.HandlerIndexRoles},
		// A role's own index entry already carries everything the source
		// exposes about it; users (the thing worth pushing) propagate into
		// their own node instead.
		Fetch: &structure.StageConfig{Handler: stage.HandlerExtract},
		Push:  &structure.StageConfig{Handler: stage.HandlerExtract},
	}
}

func journalsNode(filterPaths []string) *structure.Node {
	return &structure.Node{
		Type:     "journals",
		Singular: "journal",
		Index:    &structure.StageConfig{Handler: stage.HandlerIndexJournals},
		Fetch:    &structure.StageConfig{},
		Push:     &structure.StageConfig{},
		Children: []*structure.Node{
			rolesNode(),
			sectionsNode(),
			reviewFormsNode(),
		},
	}
}

func sectionsNode() *structure.Node {
	return &structure.Node{
		Type:     "sections",
		Singular: "section",
		Index:    &structure.StageConfig{},
		Fetch:    &structure.StageConfig{},
		Push:     &structure.StageConfig{},
		Children: []*structure.Node{
			issuesNode(),
		},
	}
}

func issuesNode() *structure.Node {
	return &structure.Node{
		Type:     "issues",
		Singular: "issue",
		Index:    &structure.StageConfig{},
		Fetch:    &structure.StageConfig{},
		Push:     &structure.StageConfig{},
		Children: []*structure.Node{
			articlesNode(),
		},
	}
}

func articlesNode() *structure.Node {
	return &structure.Node{
		Type:        "articles",
		Singular:    "article",
		ForeignKeys: map[string]string{"section": "sections"},
		Index:       &structure.StageConfig{},
		Fetch:       &structure.StageConfig{},
		Push:        &structure.StageConfig{},
		Children: []*structure.Node{
			authorsNode(),
			filesNode(),
		},
	}
}

func authorsNode() *structure.Node {
	return &structure.Node{
		Type:     "authors",
		Singular: "author",
		Index:    &structure.StageConfig{},
		// An article's authors list endpoint already returns the full
		// author record; no separate detail GET exists (spec.md §4.5's
		// "extract-from-index" alternate FETCH handler).
		Fetch: &structure.StageConfig{Handler: stage.HandlerExtract},
		Push:  &structure.StageConfig{Handler: stage.HandlerExtract},
	}
}

func filesNode() *structure.Node {
	return &structure.Node{
		Type:     "files",
		Singular: "file",
		Index:    &structure.StageConfig{},
		Fetch:    &structure.StageConfig{Handler: stage.HandlerFetchFiles},
		Push:     &structure.StageConfig{Handler: stage.HandlerPushFiles},
	}
}

func reviewFormsNode() *structure.Node {
	return &structure.Node{
		Type:     "review_forms",
		Singular: "review_form",
		Index:    &structure.StageConfig{},
		Fetch:    &structure.StageConfig{},
		Push:     &structure.StageConfig{},
		Children: []*structure.Node{
			reviewFormElementsNode(),
		},
	}
}

func reviewFormElementsNode() *structure.Node {
	return &structure.Node{
		Type:     "review_form_elements",
		Singular: "review_form_element",
		Index:    &structure.StageConfig{},
		Fetch:    &structure.StageConfig{},
		Push:     &structure.StageConfig{},
		Children: []*structure.Node{
			responsesNode(),
		},
	}
}

func responsesNode() *structure.Node {
	return &structure.Node{
		Type:        "responses",
		Singular:    "response",
		ForeignKeys: map[string]string{"review_form_element": "review_form_elements"},
		Index:       &structure.StageConfig{},
		Fetch:       &structure.StageConfig{},
		// review_form_element is a response's direct parent; the bespoke
		// preprocessor resolves the reference against a {journals,
		// review_forms} chain rebuilt from the real parents, instead of the
		// generic preprocessor's full chain.
		Push: &structure.StageConfig{Preprocessor: stage.HandlerPreprocessResponseReviewForm},
	}
}
