package source

import (
	"embed"
	"io/fs"

	"go.uber.org/zap"
)

//go:embed fixtures
var fixtures embed.FS

// NewFixture returns a source serving a small embedded set of reference pages.
// It needs no network and is used for offline mode and tests.
func NewFixture(logger *zap.Logger) *Dir {
	sub, err := fs.Sub(fixtures, "fixtures")
	if err != nil {
		// The embedded tree is fixed at build time.
		panic(err)
	}
	return newDir("fixture", sub, logger)
}
