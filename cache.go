package arxml

import (
	"path/filepath"
	"sync"
)

// SchemaCache loads each schema file at most once. Relative locations are
// resolved against Dir, or the working directory when Dir is empty.
type SchemaCache struct {
	Dir string

	mu      sync.Mutex
	entries map[string]*cachedSchema
}

type cachedSchema struct {
	once   sync.Once
	schema *Schema
	err    error
}

// GlobalCache is the process wide schema cache
var GlobalCache = NewSchemaCache("")

// NewSchemaCache creates an empty cache resolving relative locations in dir
func NewSchemaCache(dir string) *SchemaCache {
	return &SchemaCache{Dir: dir, entries: make(map[string]*cachedSchema)}
}

// Get returns the schema at location, loading it on first use. Concurrent
// callers for one location share a single load and its error.
func (sc *SchemaCache) Get(location string) (*Schema, error) {
	path := sc.resolve(location)
	sc.mu.Lock()
	entry, ok := sc.entries[path]
	if !ok {
		entry = &cachedSchema{}
		sc.entries[path] = entry
	}
	sc.mu.Unlock()

	entry.once.Do(func() {
		entry.schema, entry.err = LoadSchema(path)
	})
	return entry.schema, entry.err
}

// Put registers a schema built in memory under location
func (sc *SchemaCache) Put(location string, schema *Schema) {
	entry := &cachedSchema{schema: schema}
	entry.once.Do(func() {})
	sc.mu.Lock()
	sc.entries[sc.resolve(location)] = entry
	sc.mu.Unlock()
}

func (sc *SchemaCache) resolve(location string) string {
	if !filepath.IsAbs(location) && sc.Dir != "" {
		location = filepath.Join(sc.Dir, location)
	}
	if abs, err := filepath.Abs(location); err == nil {
		return abs
	}
	return location
}
