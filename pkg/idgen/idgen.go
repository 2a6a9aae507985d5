// Package idgen provides the IdGen port implementation backed by
// github.com/google/uuid for collision-resistant identifiers.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// UUID is the production IdGen: random (v4) UUIDs.
type UUID struct{}

func (UUID) NewID() string { return uuid.NewString() }

// Sequential is a deterministic IdGen for tests: "<prefix>-1", "<prefix>-2", ...
type Sequential struct {
	Prefix string
	n      int
}

func (s *Sequential) NewID() string {
	s.n++
	return fmt.Sprintf("%s-%d", s.Prefix, s.n)
}
