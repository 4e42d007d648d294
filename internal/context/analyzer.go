package context

import (
	"strings"

	"go.lsp.dev/protocol"
)

// CompletionContext represents the type of completion context at a cursor position
type CompletionContext int

const (
	ContextUnknown   CompletionContext = iota
	ContextRoot                        // Document root or directly inside a declare block
	ContextComponent                   // Directly inside a component body
	ContextBlock                       // Inside a (possibly nested) block of a component
)

func (c CompletionContext) String() string {
	switch c {
	case ContextRoot:
		return "root"
	case ContextComponent:
		return "component"
	case ContextBlock:
		return "block"
	default:
		return "unknown"
	}
}

// declareKeyword opens a custom component definition; its body accepts
// top-level components again.
const declareKeyword = "declare"

// ContextInfo provides detailed information about the completion context
type ContextInfo struct {
	Type      CompletionContext
	Path      []string // Enclosing block names, outermost first
	Component string   // Component the cursor is inside, if any
	BlockPath []string // Block names below Component, outermost first
}

// ComponentSet reports whether a name is a known component.
type ComponentSet interface {
	Has(name string) bool
}

// Analyzer classifies cursor positions against the known components
type Analyzer struct{}

// NewAnalyzer creates a new context analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// PositionContext provides context information about a cursor position
type PositionContext struct {
	URI        protocol.DocumentURI
	Position   protocol.Position
	TextBefore string // Document text from the start up to the cursor
}

// AnalyzeContext determines the completion context at the given position
func (a *Analyzer) AnalyzeContext(posCtx *PositionContext, components ComponentSet) *ContextInfo {
	if posCtx == nil {
		return &ContextInfo{Type: ContextUnknown}
	}
	return a.Classify(Resolve(posCtx.TextBefore), components)
}

// Classify maps an enclosing block path onto a completion context.
func (a *Analyzer) Classify(path []string, components ComponentSet) *ContextInfo {
	info := &ContextInfo{
		Type: ContextUnknown,
		Path: path,
	}

	i := 0
	for i < len(path) && path[i] == declareKeyword {
		i++
	}

	if i == len(path) {
		info.Type = ContextRoot
		return info
	}

	if components == nil || !components.Has(path[i]) {
		return info
	}

	info.Component = path[i]
	info.BlockPath = path[i+1:]
	if len(info.BlockPath) == 0 {
		info.Type = ContextComponent
	} else {
		info.Type = ContextBlock
	}
	return info
}

// Resolve returns the names of the blocks enclosing the end of text,
// outermost first. Labels are stripped: `scrape "x" {` yields "scrape".
func Resolve(text string) []string {
	var (
		stack  []string
		buffer strings.Builder
	)

	for _, char := range text {
		switch char {
		case '{':
			stack = append(stack, buffer.String())
			buffer.Reset()
		case '}':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			buffer.Reset()
		default:
			buffer.WriteRune(char)
		}
	}

	if len(stack) == 0 {
		return []string{}
	}

	path := make([]string, 0, len(stack))
	for _, entry := range stack {
		path = append(path, nameToken(entry))
	}
	return path
}

// nameToken picks the block name out of the text preceding a '{'.
func nameToken(entry string) string {
	tokens := strings.Fields(entry)
	if len(tokens) == 0 {
		return ""
	}

	last := tokens[len(tokens)-1]
	if !strings.Contains(last, `"`) {
		return last
	}

	// The last token closes a quoted label, which may itself contain spaces.
	open := len(tokens) - 1
	for open > 0 && !strings.HasPrefix(tokens[open], `"`) {
		open--
	}
	if open > 0 {
		return tokens[open-1]
	}
	if strings.HasPrefix(tokens[0], `"`) || len(tokens) < 2 {
		return ""
	}
	// A stray quote without an opening one: the label is the last token.
	return tokens[len(tokens)-2]
}

// IsAtRoot checks if the cursor is where components can be declared
func (info *ContextInfo) IsAtRoot() bool {
	return info.Type == ContextRoot
}

// IsInComponent checks if the cursor is directly inside a component body
func (info *ContextInfo) IsInComponent() bool {
	return info.Type == ContextComponent
}

// IsInBlock checks if the cursor is inside a block of a component
func (info *ContextInfo) IsInBlock() bool {
	return info.Type == ContextBlock
}

// GetPath returns the enclosing path as a string
func (info *ContextInfo) GetPath() string {
	if len(info.Path) == 0 {
		return ""
	}
	return strings.Join(info.Path, " > ")
}
