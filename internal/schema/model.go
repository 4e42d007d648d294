package schema

import (
	"sort"
)

// Component is a top-level declarable unit of the configuration language.
type Component struct {
	Name      string     `json:"name"`
	Doc       string     `json:"doc"`
	HasLabel  bool       `json:"hasLabel"`
	Arguments []Argument `json:"arguments"`
	Exports   []Export   `json:"exports"`
	Blocks    []Block    `json:"blocks"`
}

// Block is a named sub-structure owned by a Component or another Block.
type Block struct {
	Name      string     `json:"name"`
	Doc       string     `json:"doc"`
	Required  bool       `json:"required"`
	Arguments []Argument `json:"arguments"`
	Blocks    []Block    `json:"blocks"`
}

// Argument is a settable field.
type Argument struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Doc      string `json:"doc"`
	Required bool   `json:"required"`
	Default  Value  `json:"default"`
}

// Export is a field a component makes available to the rest of the document.
type Export struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Doc      string `json:"doc"`
	Required bool   `json:"required,omitempty"`
	Default  Value  `json:"default"`
}

// Node is the read-only view shared by Components and Blocks when rendering.
type Node interface {
	NodeName() string
	Labeled() bool
	Args() []Argument
	Children() []Block
}

func (c *Component) NodeName() string  { return c.Name }
func (c *Component) Labeled() bool     { return c.HasLabel }
func (c *Component) Args() []Argument  { return c.Arguments }
func (c *Component) Children() []Block { return c.Blocks }

func (b *Block) NodeName() string  { return b.Name }
func (b *Block) Labeled() bool     { return false }
func (b *Block) Args() []Argument  { return b.Arguments }
func (b *Block) Children() []Block { return b.Blocks }

// FindBlock walks blocks by name, outermost segment first. The second return
// value is false as soon as one segment has no matching child.
func FindBlock(blocks []Block, path []string) (*Block, bool) {
	if len(path) == 0 {
		return nil, false
	}

	current := blocks
	var found *Block
	for _, segment := range path {
		found = nil
		for i := range current {
			if current[i].Name == segment {
				found = &current[i]
				break
			}
		}
		if found == nil {
			return nil, false
		}
		current = found.Blocks
	}
	return found, true
}

// SplitArguments partitions arguments into required and optional, keeping order.
func SplitArguments(args []Argument) (required, optional []Argument) {
	for _, arg := range args {
		if arg.Required {
			required = append(required, arg)
		} else {
			optional = append(optional, arg)
		}
	}
	return required, optional
}

// SplitBlocks partitions blocks into required and optional, keeping order.
func SplitBlocks(blocks []Block) (required, optional []Block) {
	for _, block := range blocks {
		if block.Required {
			required = append(required, block)
		} else {
			optional = append(optional, block)
		}
	}
	return required, optional
}

// Registry maps component names to components. It is never mutated once
// built; a new schema version produces a new Registry.
type Registry struct {
	components map[string]Component
	names      []string
}

// NewRegistry builds a registry from components. Later duplicates of a name
// are ignored and reported in the returned slice.
func NewRegistry(components ...Component) (*Registry, []string) {
	r := &Registry{
		components: make(map[string]Component, len(components)),
		names:      make([]string, 0, len(components)),
	}

	var duplicates []string
	for _, c := range components {
		if _, exists := r.components[c.Name]; exists {
			duplicates = append(duplicates, c.Name)
			continue
		}
		r.components[c.Name] = c
		r.names = append(r.names, c.Name)
	}
	sort.Strings(r.names)

	return r, duplicates
}

// Get returns the component with the given name.
func (r *Registry) Get(name string) (*Component, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.components[name]
	if !ok {
		return nil, false
	}
	return &c, true
}

// Has reports whether a component with the given name exists.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns component names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Components returns all components sorted by name.
func (r *Registry) Components() []Component {
	if r == nil {
		return nil
	}
	out := make([]Component, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.components[name])
	}
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}
