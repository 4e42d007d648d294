package parser

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/mcncl/river-ls/internal/schema"
	"github.com/mcncl/river-ls/internal/source"
)

// BuildShared parses shared definition pages. A page with an argument table
// becomes a shared block, a page with an exports table a shared export set. A
// page holding only a lookup directive takes the definitions of the page it
// references. Pages that cannot be resolved are left out and reported.
func BuildShared(docs []source.Document) (*Shared, error) {
	raw := make(map[string][]string, len(docs))
	order := make([]string, 0, len(docs))
	for _, doc := range docs {
		if _, exists := raw[doc.Name]; !exists {
			order = append(order, doc.Name)
		}
		raw[doc.Name] = splitLines(doc.Text)
	}

	r := &sharedResolver{
		raw:      raw,
		shared:   NewShared(),
		state:    make(map[string]resolveState, len(raw)),
		failures: make(map[string]error),
	}

	var errs error
	for _, name := range order {
		if r.state[name] == resolved {
			// Already reported through the page that referenced it.
			continue
		}
		if err := r.resolve(name); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return r.shared, errs
}

type resolveState int

const (
	unresolved resolveState = iota
	resolving
	resolved
)

type sharedResolver struct {
	raw      map[string][]string
	shared   *Shared
	state    map[string]resolveState
	failures map[string]error
}

func (r *sharedResolver) resolve(name string) error {
	switch r.state[name] {
	case resolved:
		return r.failures[name]
	case resolving:
		return fmt.Errorf("shared %q: %w", name, ErrSharedCycle)
	}

	lines, ok := r.raw[name]
	if !ok {
		return fmt.Errorf("shared %q: %w", name, ErrUnresolvedReference)
	}

	r.state[name] = resolving
	err := r.load(name, lines)
	r.state[name] = resolved
	if err != nil {
		r.failures[name] = err
	}
	return err
}

func (r *sharedResolver) load(name string, lines []string) error {
	args := parseArguments(lines)
	exports := parseExports(lines)
	if len(args) > 0 || len(exports) > 0 {
		if len(args) > 0 {
			r.shared.Blocks[name] = args
		}
		if len(exports) > 0 {
			r.shared.Exports[name] = exports
		}
		return nil
	}

	ref, found := lookupReference(lines)
	if !found {
		// A page without tables defines an empty block.
		r.shared.Blocks[name] = []schema.Argument{}
		return nil
	}

	if err := r.resolve(ref); err != nil {
		return fmt.Errorf("shared %q -> %w", name, err)
	}
	if args, ok := r.shared.Blocks[ref]; ok {
		r.shared.Blocks[name] = args
	}
	if exports, ok := r.shared.Exports[ref]; ok {
		r.shared.Exports[name] = exports
	}
	return nil
}

// BuildRegistry normalizes every component page against the shared pages.
// A page that fails is skipped; the registry is always returned. The error
// combines every failure and warning, see multierr.Errors.
func BuildRegistry(sharedDocs, componentDocs []source.Document) (*schema.Registry, error) {
	shared, errs := BuildShared(sharedDocs)

	normalizer := NewNormalizer(shared)
	components := make([]schema.Component, 0, len(componentDocs))
	for _, doc := range componentDocs {
		component, err := normalizer.Normalize(doc.Name, doc.Text)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		components = append(components, component)
	}
	errs = multierr.Append(errs, multierr.Combine(normalizer.Warnings()...))

	registry, duplicates := schema.NewRegistry(components...)
	for _, name := range duplicates {
		errs = multierr.Append(errs, fmt.Errorf("%s: duplicate component dropped", name))
	}
	return registry, errs
}
