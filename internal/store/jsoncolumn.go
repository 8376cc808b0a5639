package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONColumn adapts a Go value of type T to a JSONB column, implementing
// sql.Scanner/driver.Valuer so sqlx can read and write it directly. The
// opaque-tag-bag and debug-bundle fields of the spec's data model (tags,
// metadata, geometry, search_points, quality_issues) all route through this.
type JSONColumn[T any] struct {
	Value T
}

// NewJSONColumn wraps v for storage in a JSONB column.
func NewJSONColumn[T any](v T) JSONColumn[T] {
	return JSONColumn[T]{Value: v}
}

// Value implements driver.Valuer.
func (j JSONColumn[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.Value)
	if err != nil {
		return nil, fmt.Errorf("marshaling json column: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner.
func (j *JSONColumn[T]) Scan(src any) error {
	if src == nil {
		var zero T
		j.Value = zero
		return nil
	}

	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported json column source type %T", src)
	}

	if len(b) == 0 {
		var zero T
		j.Value = zero
		return nil
	}

	return json.Unmarshal(b, &j.Value)
}
