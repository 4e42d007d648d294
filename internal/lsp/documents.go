package lsp

import (
	"errors"
	"strings"
	"sync"

	"go.lsp.dev/protocol"

	"github.com/mcncl/river-ls/internal/context"
)

// ErrDocumentNotFound is returned for positions in documents that are not open.
var ErrDocumentNotFound = errors.New("document not open")

// DocumentManager handles document content caching and state management
type DocumentManager struct {
	mu        sync.RWMutex
	documents map[protocol.DocumentURI]*Document
}

// Document represents a cached document with its content and metadata
type Document struct {
	URI     protocol.DocumentURI
	Version int32
	Content string
	Lines   []string
}

// NewDocumentManager creates a new document manager
func NewDocumentManager() *DocumentManager {
	return &DocumentManager{
		documents: make(map[protocol.DocumentURI]*Document),
	}
}

func newDocument(uri protocol.DocumentURI, version int32, content string) *Document {
	return &Document{
		URI:     uri,
		Version: version,
		Content: content,
		Lines:   splitLines(content),
	}
}

// OpenDocument stores a newly opened document
func (dm *DocumentManager) OpenDocument(uri protocol.DocumentURI, version int32, content string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.documents[uri] = newDocument(uri, version, content)
}

// UpdateDocument replaces the content of a document. Updates older than the
// stored version are ignored; unknown documents are created.
func (dm *DocumentManager) UpdateDocument(uri protocol.DocumentURI, version int32, content string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if doc, exists := dm.documents[uri]; exists && version < doc.Version {
		return
	}
	// Documents are replaced, never mutated, so readers may keep old pointers.
	dm.documents[uri] = newDocument(uri, version, content)
}

// CloseDocument removes a document from the cache
func (dm *DocumentManager) CloseDocument(uri protocol.DocumentURI) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	delete(dm.documents, uri)
}

// GetDocument retrieves a document by URI
func (dm *DocumentManager) GetDocument(uri protocol.DocumentURI) (*Document, bool) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	doc, exists := dm.documents[uri]
	return doc, exists
}

// Count returns the number of open documents.
func (dm *DocumentManager) Count() int {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	return len(dm.documents)
}

// GetContentAtPosition returns the text before position. Positions past the
// end of a line or of the document are clamped.
func (dm *DocumentManager) GetContentAtPosition(uri protocol.DocumentURI, position protocol.Position) (*context.PositionContext, error) {
	doc, exists := dm.GetDocument(uri)
	if !exists {
		return nil, ErrDocumentNotFound
	}

	return &context.PositionContext{
		URI:        uri,
		Position:   position,
		TextBefore: doc.textBefore(position),
	}, nil
}

func (d *Document) textBefore(position protocol.Position) string {
	line := int(position.Line)
	if line >= len(d.Lines) {
		return strings.Join(d.Lines, "\n")
	}

	var b strings.Builder
	for i := 0; i < line; i++ {
		b.WriteString(d.Lines[i])
		b.WriteByte('\n')
	}
	current := d.Lines[line]
	b.WriteString(current[:byteOffset(current, position.Character)])
	return b.String()
}

// byteOffset converts a UTF-16 code unit offset within line to a byte offset.
func byteOffset(line string, character uint32) int {
	units := uint32(0)
	for i, r := range line {
		if units >= character {
			return i
		}
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
	}
	return len(line)
}

// splitLines splits content into lines, dropping carriage returns. A trailing
// newline yields a final empty line, where a cursor can be.
func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
