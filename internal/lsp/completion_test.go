package lsp

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.lsp.dev/protocol"

	"github.com/mcncl/river-ls/internal/context"
	"github.com/mcncl/river-ls/internal/parser"
	"github.com/mcncl/river-ls/internal/schema"
	"github.com/mcncl/river-ls/internal/snippet"
	"github.com/mcncl/river-ls/internal/source"
)

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	bundle, err := source.NewFixture(nil).Fetch(testContext(t), "fixture")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	registry, err := parser.BuildRegistry(bundle.Shared, bundle.Components)
	if err != nil {
		t.Fatalf("BuildRegistry failed: %v", err)
	}
	return registry
}

func labels(items []protocol.CompletionItem) []string {
	result := make([]string, 0, len(items))
	for _, item := range items {
		result = append(result, item.Label)
	}
	return result
}

func findItem(items []protocol.CompletionItem, label string) (protocol.CompletionItem, bool) {
	for _, item := range items {
		if item.Label == label {
			return item, true
		}
	}
	return protocol.CompletionItem{}, false
}

func completionsFor(t *testing.T, registry *schema.Registry, text string) []protocol.CompletionItem {
	t.Helper()

	posCtx := &context.PositionContext{
		URI:        "file:///tmp/config.river",
		TextBefore: text,
	}
	return NewCompletionProvider(nil).GetCompletions(posCtx, registry, snippet.Normal)
}

func TestCompletionProvider_GetCompletions(t *testing.T) {
	registry := newTestRegistry(t)
	allComponents := []string{
		"local.file",
		"logging",
		"otelcol.exporter.otlp",
		"prometheus.exporter.unix",
		"prometheus.remote_write",
	}

	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{
			name:     "empty document",
			text:     "",
			expected: allComponents,
		},
		{
			name:     "after a closed component",
			text:     "logging {\n  level = \"info\"\n}\n",
			expected: allComponents,
		},
		{
			name:     "inside declare",
			text:     "declare \"custom\" {\n  ",
			expected: allComponents,
		},
		{
			name:     "component body",
			text:     "local.file \"config\" {\n  ",
			expected: []string{"filename", "detector", "poll_frequency", "is_secret"},
		},
		{
			name:     "component body inside declare",
			text:     "declare \"custom\" {\n  local.file \"config\" {\n    ",
			expected: []string{"filename", "detector", "poll_frequency", "is_secret"},
		},
		{
			name: "nested block",
			text: "prometheus.remote_write \"default\" {\n  endpoint {\n    ",
			expected: []string{
				"url", "name", "remote_timeout", "send_exemplars",
				"basic_auth", "tls_config", "queue_config",
			},
		},
		{
			name:     "shared block",
			text:     "prometheus.remote_write \"default\" {\n  endpoint {\n    basic_auth {\n      ",
			expected: []string{"password_file", "password", "username"},
		},
		{
			name:     "unknown component",
			text:     "unknown.component \"x\" {\n  ",
			expected: []string{},
		},
		{
			name:     "unknown block",
			text:     "prometheus.remote_write \"default\" {\n  nope {\n    ",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := completionsFor(t, registry, tt.text)
			if diff := cmp.Diff(tt.expected, labels(items)); diff != "" {
				t.Errorf("completion labels mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompletionProvider_TopLevelItems(t *testing.T) {
	items := completionsFor(t, newTestRegistry(t), "")

	item, found := findItem(items, "local.file")
	if !found {
		t.Fatal("Expected local.file item")
	}
	if item.Kind != protocol.CompletionItemKindSnippet {
		t.Errorf("Expected snippet kind, got %v", item.Kind)
	}
	if item.InsertTextFormat != protocol.InsertTextFormatSnippet {
		t.Errorf("Expected snippet insert format, got %v", item.InsertTextFormat)
	}
	if !strings.HasPrefix(item.InsertText, "local.file \"${1:LABEL}\" {\n") {
		t.Errorf("Unexpected insert text %q", item.InsertText)
	}
	if item.Documentation == nil {
		t.Error("Expected documentation on top-level item")
	}

	data, ok := item.Data.(map[string]any)
	if !ok || data[completionDataComponent] != "local.file" {
		t.Errorf("Expected component name in item data, got %#v", item.Data)
	}
}

func TestCompletionProvider_ChildItems(t *testing.T) {
	items := completionsFor(t, newTestRegistry(t), "prometheus.remote_write \"default\" {\n  endpoint {\n    ")

	url, found := findItem(items, "url")
	if !found {
		t.Fatal("Expected url item")
	}
	if url.Kind != protocol.CompletionItemKindField {
		t.Errorf("Expected field kind for argument, got %v", url.Kind)
	}
	if url.Detail != "string" {
		t.Errorf("Expected argument type as detail, got %q", url.Detail)
	}
	if url.SortText != "0_url" {
		t.Errorf("Required arguments should sort first, got %q", url.SortText)
	}
	if url.InsertText != "url = ${1:null} // string" {
		t.Errorf("Unexpected insert text %q", url.InsertText)
	}

	block, found := findItem(items, "basic_auth")
	if !found {
		t.Fatal("Expected basic_auth item")
	}
	if block.Kind != protocol.CompletionItemKindStruct {
		t.Errorf("Expected struct kind for block, got %v", block.Kind)
	}
	if block.Detail != "block" {
		t.Errorf("Expected block detail, got %q", block.Detail)
	}
	if !strings.HasPrefix(block.InsertText, "basic_auth {\n") {
		t.Errorf("Unexpected insert text %q", block.InsertText)
	}
}

func TestCompletionProvider_RequiredBlockDetail(t *testing.T) {
	items := completionsFor(t, newTestRegistry(t), "otelcol.exporter.otlp \"default\" {\n  ")

	client, found := findItem(items, "client")
	if !found {
		t.Fatal("Expected client item")
	}
	if client.Detail != "required block" {
		t.Errorf("Expected required block detail, got %q", client.Detail)
	}
	if client.SortText != "0_client" {
		t.Errorf("Expected required block to sort first, got %q", client.SortText)
	}
}

func TestCompletionProvider_VerbosityControlsTemplates(t *testing.T) {
	registry := newTestRegistry(t)
	cp := NewCompletionProvider(nil)
	posCtx := &context.PositionContext{URI: "file:///tmp/config.river"}

	minimal, _ := findItem(cp.GetCompletions(posCtx, registry, snippet.Minimal), "local.file")
	detailed, _ := findItem(cp.GetCompletions(posCtx, registry, snippet.Detailed), "local.file")

	if strings.Contains(minimal.InsertText, "//") {
		t.Errorf("Minimal template should have no comments: %q", minimal.InsertText)
	}
	if !strings.Contains(detailed.InsertText, "// Optional arguments:") {
		t.Errorf("Detailed template should list optional arguments: %q", detailed.InsertText)
	}
}

func TestCompletionProvider_NoRegistry(t *testing.T) {
	items := NewCompletionProvider(nil).GetCompletions(&context.PositionContext{}, nil, snippet.Normal)
	if len(items) != 0 {
		t.Errorf("Expected no items without a registry, got %d", len(items))
	}
}

func TestCompletionProvider_Resolve(t *testing.T) {
	registry := newTestRegistry(t)
	cp := NewCompletionProvider(nil)

	tests := []struct {
		name string
		item protocol.CompletionItem
	}{
		{
			name: "from item data",
			item: protocol.CompletionItem{
				Label: "renamed",
				Kind:  protocol.CompletionItemKindSnippet,
				Data:  map[string]any{completionDataComponent: "local.file"},
			},
		},
		{
			name: "from label",
			item: protocol.CompletionItem{Label: "local.file", Kind: protocol.CompletionItemKindSnippet},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved := cp.Resolve(tt.item, registry)

			doc, ok := resolved.Documentation.(*protocol.MarkupContent)
			if !ok {
				t.Fatalf("Expected markdown documentation, got %#v", resolved.Documentation)
			}
			if doc.Kind != protocol.Markdown {
				t.Errorf("Expected markdown, got %s", doc.Kind)
			}
			if !strings.Contains(doc.Value, "exposes the contents of a file") {
				t.Errorf("Unexpected documentation %q", doc.Value)
			}
			if resolved.Detail != "component (labeled, 4 arguments, 0 blocks, 1 exports)" {
				t.Errorf("Unexpected detail %q", resolved.Detail)
			}
		})
	}
}

func TestCompletionProvider_ResolveLeavesOtherItemsAlone(t *testing.T) {
	registry := newTestRegistry(t)
	cp := NewCompletionProvider(nil)

	field := protocol.CompletionItem{Label: "local.file", Kind: protocol.CompletionItemKindField, Detail: "string"}
	if diff := cmp.Diff(field, cp.Resolve(field, registry)); diff != "" {
		t.Errorf("field item changed (-want +got):\n%s", diff)
	}

	unknown := protocol.CompletionItem{Label: "nope", Kind: protocol.CompletionItemKindSnippet}
	if diff := cmp.Diff(unknown, cp.Resolve(unknown, registry)); diff != "" {
		t.Errorf("unknown item changed (-want +got):\n%s", diff)
	}
}
