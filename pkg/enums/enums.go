// Package enums holds the string enums shared by models, services and
// migrations. Each set mirrors a Postgres enum type.
package enums

import (
	"fmt"
	"slices"
)

type set[T ~string] []T

func (s set[T]) has(v T) bool { return slices.Contains(s, v) }

func (s set[T]) parse(kind, raw string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
