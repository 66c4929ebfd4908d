// Package id mints opaque identifiers.
package id

import (
	"fmt"
	"io"

	"github.com/google/uuid"
)

// PhantomPrefix prefixes every Phantom ID.
const PhantomPrefix = "phantom-"

// NewPhantomIDFromReader returns "phantom-" followed by a UUIDv4 drawn
// from r.
func NewPhantomIDFromReader(r io.Reader) (string, error) {
	value, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return PhantomPrefix + value.String(), nil
}
