package stage

import (
	"github.com/a5c-ai/hub/internal/structure"
	"github.com/a5c-ai/hub/internal/walker"
)

// Named handler keys referenced by the default structure tree a coordinator
// builds (spec.md §4.5's special-cased resource types).
const (
	HandlerIndexJournals = "index-journals"
	HandlerIndexRoles    = "index-roles"

	HandlerFetchFiles = "fetch-files"
	HandlerExtract    = "extract-from-index"

	HandlerPushFiles                    = "push-files"
	HandlerPreprocessResponseReviewForm = "preprocess-response-review-form-element"
)

// RegisterDefaults registers every named handler the default structure
// tree (built by internal/coordinator) may reference. filterPaths is the
// top-level call's path filter, threaded into the journals INDEX handler.
func RegisterDefaults(reg *structure.Registry, filterPaths []string) {
	reg.Register(HandlerIndexJournals, JournalsIndexHandler(filterPaths))
	reg.Register(HandlerIndexRoles, RolesIndexHandler)

	reg.Register(HandlerFetchFiles, FilesFetchHandler)
	reg.Register(HandlerExtract, ExtractFromIndexHandler)

	reg.Register(HandlerPushFiles, FilesPushHandler)
	reg.Register(HandlerPreprocessResponseReviewForm, ResponseReviewFormElementPreprocessor)
}

// IndexDefaults is the INDEX stage's ambient default triad (spec.md §4.5):
// no default preprocessor or postprocessor, GenericIndexHandler as handler.
func IndexDefaults() walker.StageDefaults {
	return walker.StageDefaults{Handler: GenericIndexHandler}
}

// FetchDefaults is the FETCH stage's ambient default triad: no default
// preprocessor, GenericFetchHandler as handler, FetchLinkedFilesPostprocessor
// as postprocessor (spec.md §4.5's "Default postprocessor").
func FetchDefaults() walker.StageDefaults {
	return walker.StageDefaults{
		Handler:       GenericFetchHandler,
		Postprocessor: FetchLinkedFilesPostprocessor,
	}
}

// PushDefaults is the PUSH stage's ambient default triad: ForeignKeyPreprocessor
// runs only when a node declares ForeignKeys (it is a no-op otherwise),
// GenericPushHandler as handler, no default postprocessor.
func PushDefaults() walker.StageDefaults {
	return walker.StageDefaults{
		Preprocessor: ForeignKeyPreprocessor,
		Handler:      GenericPushHandler,
	}
}
