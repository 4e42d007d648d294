// Package snippet renders schema nodes into editor snippet templates using the
// ${index:default} placeholder syntax.
package snippet

import (
	"fmt"
	"strings"

	"github.com/mcncl/river-ls/internal/schema"
)

const (
	indentUnit    = "\t"
	labelDefault  = "LABEL"
	summaryPerRow = 5
)

// Renderer turns components, blocks and arguments into snippet text.
type Renderer struct {
	verbosity Verbosity
}

// NewRenderer creates a renderer for the given level. Invalid levels fall
// back to DefaultVerbosity.
func NewRenderer(v Verbosity) *Renderer {
	if !v.Valid() {
		v = DefaultVerbosity
	}
	return &Renderer{verbosity: v}
}

// Verbosity returns the level the renderer was created with, after the
// out-of-range fallback.
func (r *Renderer) Verbosity() Verbosity {
	return r.verbosity
}

// counter hands out placeholder indices. One counter is threaded through a
// whole template so nested blocks never reuse an index of an enclosing scope.
type counter struct {
	next int
}

func (c *counter) take() int {
	i := c.next
	c.next++
	return i
}

// Component renders the full "insert this component" template.
func (r *Renderer) Component(c *schema.Component) string {
	return r.node(c, c.Exports, true, "", &counter{next: 1})
}

// Block renders a single block with its required content, indices from 1.
func (r *Renderer) Block(b *schema.Block) string {
	return r.node(b, nil, false, "", &counter{next: 1})
}

// Argument renders a single "name = ${1:default}" line.
func (r *Renderer) Argument(a schema.Argument) string {
	return r.argument(a, "", &counter{next: 1})
}

func (r *Renderer) node(n schema.Node, exports []schema.Export, withExports bool, indent string, idx *counter) string {
	header := indent + n.NodeName()
	if n.Labeled() {
		header += ` "` + placeholder(idx.take(), labelDefault) + `"`
	}

	inner := indent + indentUnit
	requiredArgs, optionalArgs := schema.SplitArguments(n.Args())
	requiredBlocks, optionalBlocks := schema.SplitBlocks(n.Children())

	var sections []string

	if len(requiredArgs) > 0 {
		lines := make([]string, 0, len(requiredArgs))
		for _, arg := range requiredArgs {
			lines = append(lines, r.argument(arg, inner, idx))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	if len(requiredBlocks) > 0 {
		nested := make([]string, 0, len(requiredBlocks))
		for i := range requiredBlocks {
			nested = append(nested, r.node(&requiredBlocks[i], nil, false, inner, idx))
		}
		sections = append(sections, strings.Join(nested, "\n"))
	}

	if r.verbosity.Includes(Detailed) {
		if len(optionalArgs) > 0 {
			names := make([]string, 0, len(optionalArgs))
			for _, arg := range optionalArgs {
				names = append(names, arg.Name)
			}
			sections = append(sections, summary("Optional arguments", names, inner))
		}
		if len(optionalBlocks) > 0 {
			names := make([]string, 0, len(optionalBlocks))
			for _, block := range optionalBlocks {
				names = append(names, block.Name)
			}
			sections = append(sections, summary("Optional blocks", names, inner))
		}
	}

	if withExports && r.verbosity.Includes(Normal) {
		sections = append(sections, exportsComment(exports, inner))
	}

	if len(sections) == 0 {
		return header + " {\n" + indent + "}"
	}
	return header + " {\n" + strings.Join(sections, "\n\n") + "\n" + indent + "}"
}

func (r *Renderer) argument(a schema.Argument, indent string, idx *counter) string {
	line := fmt.Sprintf("%s%s = %s", indent, a.Name, placeholder(idx.take(), a.Default.Literal()))
	if r.verbosity.Includes(Normal) && a.Type != "" {
		line += " // " + a.Type
	}
	return line
}

// summary writes names as comment lines, starting a new line every
// summaryPerRow names.
func summary(title string, names []string, indent string) string {
	var lines []string
	for start := 0; start < len(names); start += summaryPerRow {
		end := start + summaryPerRow
		if end > len(names) {
			end = len(names)
		}
		row := strings.Join(names[start:end], ", ")
		if start == 0 {
			row = title + ": " + row
		}
		lines = append(lines, indent+"// "+row)
	}
	return strings.Join(lines, "\n")
}

func exportsComment(exports []schema.Export, indent string) string {
	if len(exports) == 0 {
		return indent + "// No exported fields"
	}
	fields := make([]string, 0, len(exports))
	for _, e := range exports {
		fields = append(fields, fmt.Sprintf("%s(%s)", e.Name, e.Type))
	}
	return indent + "// Exports: " + strings.Join(fields, ", ")
}

func placeholder(index int, text string) string {
	return fmt.Sprintf("${%d:%s}", index, escape(text))
}

var placeholderEscaper = strings.NewReplacer(`\`, `\\`, `$`, `\$`, `}`, `\}`)

// escape protects characters that are significant inside a placeholder.
func escape(text string) string {
	return placeholderEscaper.Replace(text)
}
