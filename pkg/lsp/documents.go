package lsp

import (
	"strings"
	"sync"

	"github.com/braidlang/braidls/pkg/lsp/protocol"
	"github.com/spf13/afero"
)

// normalizeURI keys documents by plain path so file:///x and /x are the
// same document.
func normalizeURI(uri string) string {
	uri = strings.TrimPrefix(uri, "file://")
	uri = strings.TrimPrefix(uri, "file:")
	return uri
}

// Document is one open text document with its metadata.
type Document struct {
	URI        string
	LanguageID string
	Version    int32
	Content    string
}

// DocumentManager tracks open documents, falling back to the filesystem
// for documents the editor never opened (definition targets, workspace
// scans).
type DocumentManager struct {
	store *sync.Map // map[string]*Document
	fs    afero.Fs
}

func NewDocumentManager(fs afero.Fs) *DocumentManager {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &DocumentManager{store: &sync.Map{}, fs: fs}
}

// GetOpen returns the document only if the editor has it open.
func (m *DocumentManager) GetOpen(uri protocol.DocumentURI) (*Document, bool) {
	content, ok := m.store.Load(normalizeURI(string(uri)))
	if !ok {
		return nil, false
	}
	return content.(*Document), true
}

// Get returns the document, reading it off the filesystem when it is not
// open. Filesystem reads are not cached into the open set; the editor's
// didOpen stays the only source of open documents.
func (m *DocumentManager) Get(uri protocol.DocumentURI) (*Document, bool) {
	if doc, ok := m.GetOpen(uri); ok {
		return doc, true
	}

	path := normalizeURI(string(uri))
	data, err := afero.ReadFile(m.fs, path)
	if err != nil {
		return nil, false
	}
	return &Document{URI: path, Content: string(data)}, true
}

func (m *DocumentManager) Store(uri protocol.DocumentURI, doc *Document) {
	m.store.Store(normalizeURI(string(uri)), doc)
}

func (m *DocumentManager) Delete(uri protocol.DocumentURI) {
	m.store.Delete(normalizeURI(string(uri)))
}
