// Package vfs is the virtual file store backing the script-analysis
// engine's file abstraction. It holds one {content, version} pair per
// virtual path; the version strictly increases on every mutation, including
// a transient restore, because the engine treats version equality as a
// cache-validity signal.
package vfs

import (
	"sync"

	"github.com/google/uuid"
	"gitlab.com/tozd/go/errors"
)

type file struct {
	content string
	version int
}

// Store is a per-session table of virtual documents.
type Store struct {
	mu        sync.Mutex
	files     map[string]*file
	observers []func(path string)
}

func NewStore() *Store {
	return &Store{files: make(map[string]*file)}
}

// Observe registers fn to run after every eviction. Consumers that mirror
// store state per path (the engine client's sync table, the engine's own
// document table) invalidate through this; without it every released probe
// would leave a dangling copy behind for the rest of the session.
func (s *Store) Observe(fn func(path string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Install sets a path's durable content, bumping its version.
func (s *Store) Install(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.install(path, content)
}

func (s *Store) install(path, content string) {
	f, ok := s.files[path]
	if !ok {
		f = &file{}
		s.files[path] = f
	}
	f.content = content
	f.version++
}

// Snapshot returns a path's current content and version. It implements the
// engine's file-snapshot provider.
func (s *Store) Snapshot(path string) (content string, version int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[path]
	if !ok {
		return "", 0, false
	}
	return f.content, f.version, true
}

// Evict removes a path entirely, content and version both, and announces
// the eviction to observers. It runs on document close and probe release so
// files opened and closed repeatedly do not accumulate.
func (s *Store) Evict(path string) {
	s.mu.Lock()
	delete(s.files, path)
	observers := append(([]func(string))(nil), s.observers...)
	s.mu.Unlock()

	// Observers run outside the lock; they are allowed to query the store.
	for _, fn := range observers {
		fn(path)
	}
}

// Probe is a uniquely named scratch document for one point query. Because
// every probe gets its own path, concurrent probes can never analyze each
// other's content, and the durable virtual document is never swapped.
type Probe struct {
	Path  string
	store *Store
}

// InstallProbe creates a scratch document derived from base. The caller
// must Release it on every exit path.
func (s *Store) InstallProbe(base, content string) *Probe {
	path := base + "." + uuid.NewString() + ".probe"
	s.Install(path, content)
	return &Probe{Path: path, store: s}
}

// Release evicts the probe. Releasing twice is harmless.
func (p *Probe) Release() {
	p.store.Evict(p.Path)
}

// RestoreHandle undoes a transient in-place install. Restoring bumps the
// version again: the engine must never serve results cached against the
// probe content under the durable version number.
type RestoreHandle struct {
	path     string
	durable  string
	store    *Store
	restored bool
}

// InstallTransient swaps a path's content for probeContent and returns the
// handle that restores the durable content. Prefer InstallProbe: a swap
// leaves the durable document unavailable until restore, which is only safe
// while requests are strictly serialized.
func (s *Store) InstallTransient(path, probeContent string) (*RestoreHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[path]
	if !ok {
		return nil, errors.Errorf("no durable content installed for %s", path)
	}
	durable := f.content
	s.install(path, probeContent)
	return &RestoreHandle{path: path, durable: durable, store: s}, nil
}

// Restore reinstates the durable content. Safe to call more than once;
// only the first call mutates the store.
func (h *RestoreHandle) Restore() {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if h.restored {
		return
	}
	h.restored = true
	h.store.install(h.path, h.durable)
}
