// Package parser turns raw component reference pages into schema components.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mcncl/river-ls/internal/schema"
)

var (
	// ErrUnresolvedReference is returned when a shared definition named by a
	// lookup directive does not exist.
	ErrUnresolvedReference = errors.New("unresolved shared reference")
	// ErrSharedCycle is returned when shared definitions reference each other
	// in a loop.
	ErrSharedCycle = errors.New("shared reference cycle")
	// ErrMalformedTable marks a table row that could not be placed.
	ErrMalformedTable = errors.New("malformed table")
)

const pathSeparator = ">"

// Shared holds the shared definitions components may reference by name.
type Shared struct {
	Blocks  map[string][]schema.Argument
	Exports map[string][]schema.Export
}

// NewShared returns an empty set of shared definitions.
func NewShared() *Shared {
	return &Shared{
		Blocks:  make(map[string][]schema.Argument),
		Exports: make(map[string][]schema.Export),
	}
}

// Normalizer builds components from reference pages. Problems that only
// degrade a component (dropped rows, unresolved block references) are
// collected as warnings instead of failing the component.
type Normalizer struct {
	shared   *Shared
	warnings []error
}

// NewNormalizer creates a normalizer resolving references against shared.
func NewNormalizer(shared *Shared) *Normalizer {
	if shared == nil {
		shared = NewShared()
	}
	return &Normalizer{shared: shared}
}

// Warnings returns the recoverable problems seen so far.
func (n *Normalizer) Warnings() []error {
	return n.warnings
}

func (n *Normalizer) warn(component string, err error) {
	n.warnings = append(n.warnings, fmt.Errorf("%s: %w", component, err))
}

// Normalize builds the component called name from its reference page.
func (n *Normalizer) Normalize(name, text string) (schema.Component, error) {
	lines := splitLines(text)

	component := schema.Component{
		Name:      name,
		Doc:       documentation(name, text),
		HasLabel:  hasLabel(name, lines),
		Arguments: []schema.Argument{},
		Exports:   []schema.Export{},
		Blocks:    []schema.Block{},
	}

	if section, ok := sectionLines(lines, argumentsMarker, anyHeading); ok {
		component.Arguments = parseArguments(section)
	}

	exports, err := n.exports(lines)
	if err != nil {
		return schema.Component{}, fmt.Errorf("%s: exported fields: %w", name, err)
	}
	component.Exports = exports

	if section, ok := sectionLines(lines, blocksMarker, headingAtMost(2)); ok {
		component.Blocks = n.blocks(name, section)
	}

	return component, nil
}

func (n *Normalizer) exports(lines []string) ([]schema.Export, error) {
	section, ok := sectionLines(lines, exportsMarker, anyHeading)
	if !ok {
		return []schema.Export{}, nil
	}

	if ref, found := lookupReference(section); found {
		shared, exists := n.shared.Exports[ref]
		if !exists {
			return nil, fmt.Errorf("%w: %q", ErrUnresolvedReference, ref)
		}
		return cloneExports(shared), nil
	}

	return parseExports(section), nil
}

// blockRow is one row of the blocks table.
type blockRow struct {
	path     []string
	doc      string
	required bool
}

func (n *Normalizer) blocks(component string, section []string) []schema.Block {
	var rows []blockRow
	for _, cells := range tableRows(leadingTable(section), blockColumns) {
		path := splitPath(cells[0])
		if len(path) == 0 {
			n.warn(component, fmt.Errorf("%w: empty block hierarchy %q", ErrMalformedTable, cells[0]))
			continue
		}
		rows = append(rows, blockRow{
			path:     path,
			doc:      cells[2],
			required: isYes(cells[3]),
		})
	}

	arguments := n.blockArguments(component, section)

	var roots []schema.Block
	for _, row := range rows {
		name := row.path[len(row.path)-1]
		args, ok := arguments[name]
		if !ok {
			args = []schema.Argument{}
		}
		block := schema.Block{
			Name:      name,
			Doc:       row.doc,
			Required:  row.required,
			Arguments: cloneArguments(args),
			Blocks:    []schema.Block{},
		}

		if len(row.path) == 1 {
			if hasSibling(roots, name) {
				n.warn(component, fmt.Errorf("%w: duplicate block %q", ErrMalformedTable, name))
				continue
			}
			roots = append(roots, block)
			continue
		}

		parent, found := schema.FindBlock(roots, row.path[:len(row.path)-1])
		if !found {
			n.warn(component, fmt.Errorf("%w: block %q has no parent %q",
				ErrMalformedTable, strings.Join(row.path, " > "), strings.Join(row.path[:len(row.path)-1], " > ")))
			continue
		}
		if hasSibling(parent.Blocks, name) {
			n.warn(component, fmt.Errorf("%w: duplicate block %q", ErrMalformedTable, strings.Join(row.path, " > ")))
			continue
		}
		parent.Blocks = append(parent.Blocks, block)
	}

	if roots == nil {
		return []schema.Block{}
	}
	return roots
}

// blockArguments reads the "### <name> block" subsections of the blocks
// section, keyed by bare block name.
func (n *Normalizer) blockArguments(component string, section []string) map[string][]schema.Argument {
	out := make(map[string][]schema.Argument)
	for _, sub := range subsections(section, 3) {
		fields := strings.Fields(strings.ReplaceAll(sub.title, "`", ""))
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		body := leadingTable(sub.lines)

		if args := parseArguments(body); len(args) > 0 {
			out[name] = args
			continue
		}

		if ref, found := lookupReference(body); found {
			shared, exists := n.shared.Blocks[ref]
			if !exists {
				n.warn(component, fmt.Errorf("block %q: %w: %q", name, ErrUnresolvedReference, ref))
				out[name] = []schema.Argument{}
				continue
			}
			out[name] = cloneArguments(shared)
		}
	}
	return out
}

func parseArguments(lines []string) []schema.Argument {
	rows := tableRows(lines, argumentColumns)
	args := make([]schema.Argument, 0, len(rows))
	for _, cells := range rows {
		args = append(args, schema.Argument{
			Name:     cells[0],
			Type:     cells[1],
			Doc:      cells[2],
			Default:  schema.ParseValue(cells[3]),
			Required: isYes(cells[4]),
		})
	}
	return args
}

func parseExports(lines []string) []schema.Export {
	rows := tableRows(lines, exportColumns)
	exports := make([]schema.Export, 0, len(rows))
	for _, cells := range rows {
		exports = append(exports, schema.Export{
			Name: cells[0],
			Type: cells[1],
			Doc:  cells[2],
		})
	}
	return exports
}

func splitPath(hierarchy string) []string {
	var path []string
	for _, segment := range strings.Split(hierarchy, pathSeparator) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			return nil
		}
		path = append(path, segment)
	}
	return path
}

func isYes(flag string) bool {
	return strings.EqualFold(strings.TrimSpace(flag), "yes")
}

func hasSibling(blocks []schema.Block, name string) bool {
	for _, b := range blocks {
		if b.Name == name {
			return true
		}
	}
	return false
}

func cloneArguments(args []schema.Argument) []schema.Argument {
	out := make([]schema.Argument, len(args))
	copy(out, args)
	return out
}

func cloneExports(exports []schema.Export) []schema.Export {
	out := make([]schema.Export, len(exports))
	copy(out, exports)
	return out
}
