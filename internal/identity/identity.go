// Package identity assigns the stable UUIDs the transfer engine uses to
// name every resource on disk, grounded on the teacher's use of
// google/uuid for primary keys (internal/models/*.go).
package identity

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/a5c-ai/hub/internal/model"
)

// Service derives deterministic UUIDs from a fixed run namespace, per
// spec.md §4.1: uuid(key) = uuid5(namespace=transaction_id, name=key).
type Service struct {
	namespace uuid.UUID
}

// NewService returns a Service bound to namespace, the run's transaction_id.
func NewService(namespace uuid.UUID) *Service {
	return &Service{namespace: namespace}
}

// NewNamespace mints a fresh run namespace. A time-based UUID is acceptable
// per spec.md §4.1; v1 carries no collision risk here since it is only ever
// used as a namespace, not compared across runs.
func NewNamespace() (uuid.UUID, error) {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("generating run namespace: %w", err)
	}
	return id, nil
}

// Of derives the UUID for a source record key. Pure: same namespace and key
// always yield the same UUID.
func (s *Service) Of(sourceRecordKey string) string {
	return uuid.NewSHA1(s.namespace, []byte(sourceRecordKey)).String()
}

// Assign recursively walks an arbitrarily nested JSON value (as produced by
// json.Unmarshal into interface{}), and wherever it finds an object
// carrying source_record_key, inserts uuid = Of(key). Idempotent: a second
// call overwrites uuid with the same value it already had.
func (s *Service) Assign(value interface{}) {
	switch v := value.(type) {
	case map[string]interface{}:
		if key, ok := v["source_record_key"].(string); ok && key != "" {
			v["uuid"] = s.Of(key)
		}
		for _, child := range v {
			s.Assign(child)
		}
	case []interface{}:
		for _, child := range v {
			s.Assign(child)
		}
	}
}

// AssignResource is a typed convenience wrapper around Assign for a single
// top-level resource.
func (s *Service) AssignResource(r model.Resource) {
	s.Assign(map[string]interface{}(r))
}
