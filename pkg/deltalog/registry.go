package deltalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/delta/pkg/events"
	"github.com/cuemby/delta/pkg/logstore"
)

// StoreKind selects the log store backing newly opened tables
type StoreKind string

const (
	StoreFile StoreKind = "file"
	StoreBolt StoreKind = "bolt"
)

// Registry owns the per-path DeltaLog cache. Handles are borrowed from the
// registry, which is responsible for eviction; there is no process-wide
// singleton.
type Registry struct {
	mu     sync.Mutex
	tables map[string]*DeltaLog
	kind   StoreKind
	broker *events.Broker
}

// NewRegistry creates a registry whose tables use the given store kind.
// The registry runs one event broker shared by all its tables.
func NewRegistry(kind StoreKind) *Registry {
	broker := events.NewBroker()
	broker.Start()
	return &Registry{
		tables: make(map[string]*DeltaLog),
		kind:   kind,
		broker: broker,
	}
}

// Broker returns the registry's shared event broker
func (r *Registry) Broker() *events.Broker {
	return r.broker
}

// Open returns the cached handle for a table root, creating it on first
// use. Paths inside an existing table are rejected: partial scans of a
// partitioned table would silently drop data outside the subdirectory.
func (r *Registry) Open(path string) (*DeltaLog, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("deltalog: resolve path: %w", err)
	}
	if err := checkNotInsideTable(abs); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.tables[abs]; ok {
		return l, nil
	}

	var store logstore.Store
	switch r.kind {
	case StoreBolt:
		store, err = logstore.NewBoltStore(abs)
	default:
		store, err = logstore.NewFileStore(abs)
	}
	if err != nil {
		return nil, err
	}

	l, err := newDeltaLog(abs, store, r.broker)
	if err != nil {
		store.Close()
		return nil, err
	}
	r.tables[abs] = l
	return l, nil
}

// Evict drops a table handle from the cache and closes its store
func (r *Registry) Evict(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.tables[abs]; ok {
		delete(r.tables, abs)
		return l.store.Close()
	}
	return nil
}

// Close evicts every table and stops the broker
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for path, l := range r.tables {
		if err := l.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.tables, path)
	}
	r.broker.Stop()
	return firstErr
}

// checkNotInsideTable walks the ancestors of path looking for a _delta_log
// directory, which would make path a partial view of a table
func checkNotInsideTable(abs string) error {
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, logstore.LogDirName)); err == nil {
			return fmt.Errorf("%w: %s is under table %s", ErrPartialTableScan, abs, dir)
		}
		if dir == filepath.Dir(dir) {
			return nil
		}
	}
}
