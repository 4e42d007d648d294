// Package source fetches the raw component reference documents the schema is
// built from.
package source

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned when a version or its component directory does not
// exist in a source.
var ErrNotFound = errors.New("not found")

// Document is one raw markdown reference page. Name is the file name without
// its ".md" extension, which is also the component or shared-definition name.
type Document struct {
	Name string
	Text string
}

// Bundle holds every document fetched for one schema version. Documents that
// failed to fetch are simply absent.
type Bundle struct {
	Version    string
	Shared     []Document
	Components []Document
}

// Source produces the raw documents for a schema version. ID names the
// source so that registries built from different sources are never mixed
// up in a shared cache.
type Source interface {
	ID() string
	Fetch(ctx context.Context, version string) (*Bundle, error)
}

const (
	markdownExt = ".md"
	indexPage   = "_index.md"
)

// isComponentPage reports whether a file name is a reference page worth
// fetching.
func isComponentPage(name string) bool {
	base := path.Base(name)
	return strings.HasSuffix(base, markdownExt) && base != indexPage
}

// documentName strips the directory and the ".md" extension.
func documentName(name string) string {
	return strings.TrimSuffix(path.Base(name), markdownExt)
}
