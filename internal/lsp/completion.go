package lsp

import (
	"fmt"
	"strings"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/mcncl/river-ls/internal/context"
	"github.com/mcncl/river-ls/internal/schema"
	"github.com/mcncl/river-ls/internal/snippet"
)

// completionDataComponent keys the component name in the data of top-level
// items, so completionItem/resolve can find the component again.
const completionDataComponent = "component"

// CompletionProvider handles context-aware completion
type CompletionProvider struct {
	analyzer *context.Analyzer
	logger   *zap.Logger
}

// NewCompletionProvider creates a new completion provider
func NewCompletionProvider(logger *zap.Logger) *CompletionProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletionProvider{
		analyzer: context.NewAnalyzer(),
		logger:   logger,
	}
}

// GetCompletions returns context-aware completions for the given position
func (cp *CompletionProvider) GetCompletions(posCtx *context.PositionContext, registry *schema.Registry, verbosity snippet.Verbosity) []protocol.CompletionItem {
	if posCtx == nil || registry == nil {
		return []protocol.CompletionItem{}
	}

	info := cp.analyzer.AnalyzeContext(posCtx, registry)
	cp.logger.Debug("Completion context",
		zap.String("uri", string(posCtx.URI)),
		zap.Uint32("line", posCtx.Position.Line),
		zap.Uint32("character", posCtx.Position.Character),
		zap.Stringer("context", info.Type),
		zap.String("path", info.GetPath()))

	switch info.Type {
	case context.ContextRoot:
		return cp.ListTopLevel(registry, verbosity)
	case context.ContextComponent:
		component, _ := registry.Get(info.Component)
		return cp.ListChildren(component, verbosity)
	case context.ContextBlock:
		component, _ := registry.Get(info.Component)
		return cp.ListWithinPath(component, info.BlockPath, verbosity)
	default:
		return []protocol.CompletionItem{}
	}
}

// ListTopLevel returns one snippet per component, sorted by name.
func (cp *CompletionProvider) ListTopLevel(registry *schema.Registry, verbosity snippet.Verbosity) []protocol.CompletionItem {
	renderer := snippet.NewRenderer(verbosity)
	components := registry.Components()

	items := make([]protocol.CompletionItem, 0, len(components))
	for i := range components {
		component := &components[i]
		items = append(items, protocol.CompletionItem{
			Label:            component.Name,
			Kind:             protocol.CompletionItemKindSnippet,
			Detail:           "component",
			Documentation:    markdown(component.Doc),
			InsertText:       renderer.Component(component),
			InsertTextFormat: protocol.InsertTextFormatSnippet,
			Data:             map[string]any{completionDataComponent: component.Name},
		})
	}
	return items
}

// ListChildren returns one item per direct argument and block of node.
// Required children sort first.
func (cp *CompletionProvider) ListChildren(node schema.Node, verbosity snippet.Verbosity) []protocol.CompletionItem {
	if node == nil {
		return []protocol.CompletionItem{}
	}

	renderer := snippet.NewRenderer(verbosity)
	args := node.Args()
	blocks := node.Children()

	items := make([]protocol.CompletionItem, 0, len(args)+len(blocks))
	for _, arg := range args {
		items = append(items, protocol.CompletionItem{
			Label:            arg.Name,
			Kind:             protocol.CompletionItemKindField,
			Detail:           arg.Type,
			Documentation:    markdown(arg.Doc),
			InsertText:       renderer.Argument(arg),
			InsertTextFormat: protocol.InsertTextFormatSnippet,
			SortText:         sortText(arg.Required, arg.Name),
		})
	}
	for i := range blocks {
		block := &blocks[i]
		detail := "block"
		if block.Required {
			detail = "required block"
		}
		items = append(items, protocol.CompletionItem{
			Label:            block.Name,
			Kind:             protocol.CompletionItemKindStruct,
			Detail:           detail,
			Documentation:    markdown(block.Doc),
			InsertText:       renderer.Block(block),
			InsertTextFormat: protocol.InsertTextFormatSnippet,
			SortText:         sortText(block.Required, block.Name),
		})
	}
	return items
}

// ListWithinPath lists the children of the block reached by walking path
// from component. A path that leaves the schema yields no items.
func (cp *CompletionProvider) ListWithinPath(component *schema.Component, path []string, verbosity snippet.Verbosity) []protocol.CompletionItem {
	if component == nil {
		return []protocol.CompletionItem{}
	}
	if len(path) == 0 {
		return cp.ListChildren(component, verbosity)
	}

	block, found := schema.FindBlock(component.Blocks, path)
	if !found {
		cp.logger.Debug("Broken block hierarchy",
			zap.String("component", component.Name),
			zap.String("path", strings.Join(path, " > ")))
		return []protocol.CompletionItem{}
	}
	return cp.ListChildren(block, verbosity)
}

// Resolve fills in the documentation of a top-level item. The component is
// found through the item data, or through the label for items that lost it.
func (cp *CompletionProvider) Resolve(item protocol.CompletionItem, registry *schema.Registry) protocol.CompletionItem {
	var name string
	if data, ok := item.Data.(map[string]any); ok {
		name, _ = data[completionDataComponent].(string)
	}
	if name == "" && item.Kind == protocol.CompletionItemKindSnippet {
		name = item.Label
	}

	component, found := registry.Get(name)
	if !found {
		return item
	}

	if doc := markdown(component.Doc); doc != nil {
		item.Documentation = doc
	}
	item.Detail = componentDetail(component)
	return item
}

func componentDetail(c *schema.Component) string {
	label := "unlabeled"
	if c.HasLabel {
		label = "labeled"
	}
	return fmt.Sprintf("component (%s, %d arguments, %d blocks, %d exports)",
		label, len(c.Arguments), len(c.Blocks), len(c.Exports))
}

func sortText(required bool, name string) string {
	if required {
		return "0_" + name
	}
	return "1_" + name
}

// markdown wraps doc for the Documentation field, which stays nil (and is
// omitted) when there is nothing to show.
func markdown(doc string) any {
	if doc == "" {
		return nil
	}
	return &protocol.MarkupContent{Kind: protocol.Markdown, Value: doc}
}
