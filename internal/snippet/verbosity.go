package snippet

import (
	"errors"
	"fmt"
)

// Verbosity controls how much optional content a rendered template discloses.
// Levels are ordered; every gate is "current level >= threshold".
type Verbosity int

const (
	Minimal  Verbosity = 1
	Normal   Verbosity = 2
	Detailed Verbosity = 3
)

// DefaultVerbosity is used when the host does not configure one.
const DefaultVerbosity = Detailed

var ErrInvalidVerbosity = errors.New("verbosity must be between 1 and 3")

// ParseVerbosity validates a host-supplied level.
func ParseVerbosity(level int) (Verbosity, error) {
	v := Verbosity(level)
	if !v.Valid() {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidVerbosity, level)
	}
	return v, nil
}

func (v Verbosity) Valid() bool {
	return v >= Minimal && v <= Detailed
}

// Includes reports whether content gated at threshold is shown at this level.
func (v Verbosity) Includes(threshold Verbosity) bool {
	return v >= threshold
}

func (v Verbosity) String() string {
	switch v {
	case Minimal:
		return "minimal"
	case Normal:
		return "normal"
	case Detailed:
		return "detailed"
	default:
		return fmt.Sprintf("verbosity(%d)", int(v))
	}
}
