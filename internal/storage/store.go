package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"taskforge/internal/core"
	"taskforge/internal/security"
)

const schemaVersion = "1.0.0"

// IndexRecord is the on-disk shape of indexes/<kind>.json (spec.md §6):
// a denormalised summary list plus a schema version and refresh time.
type IndexRecord struct {
	Summaries   []map[string]any `json:"summaries"`
	LastUpdated time.Time        `json:"lastUpdated"`
	Version     string           `json:"version"`
}

// Summarizer reduces an entity to its index-record summary fields.
type Summarizer[T core.Entity] func(T) map[string]any

// Store is a generic, transactional, cached file-backed CRUD layer for one
// EntityKind. Grounded on the teacher's internal/world/persist.go
// (one-JSON-file-per-entity under a data root) and generalized to cover
// create/read/update/delete/list/search per spec.md §4.2.
type Store[T core.Entity] struct {
	engine     *Engine
	kind       EntityKind
	summarize  Summarizer[T]

	mu      sync.RWMutex
	index   IndexRecord
	indexMu sync.Mutex
}

func newStore[T core.Entity](e *Engine, kind EntityKind, summarize Summarizer[T]) *Store[T] {
	s := &Store[T]{engine: e, kind: kind, summarize: summarize}
	s.loadIndex()
	return s
}

func (s *Store[T]) loadIndex() {
	path := s.engine.layout.IndexPath(s.kind)
	data, err := os.ReadFile(path)
	if err != nil {
		s.index = IndexRecord{Version: schemaVersion}
		return
	}
	var rec IndexRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.index = IndexRecord{Version: schemaVersion}
		return
	}
	s.index = rec
}

func (s *Store[T]) saveIndexLocked() error {
	s.index.LastUpdated = time.Now()
	s.index.Version = schemaVersion
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return err
	}
	dir := s.engine.layout.IndexDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return atomicWrite(s.engine.layout.IndexPath(s.kind), data)
}

func (s *Store[T]) upsertIndex(summary map[string]any) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	id, _ := summary["id"].(string)
	for i, existing := range s.index.Summaries {
		if existing["id"] == id {
			s.index.Summaries[i] = summary
			s.saveIndexLocked()
			return
		}
	}
	s.index.Summaries = append(s.index.Summaries, summary)
	s.saveIndexLocked()
}

func (s *Store[T]) removeIndex(id string) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	kept := s.index.Summaries[:0]
	for _, existing := range s.index.Summaries {
		if existing["id"] != id {
			kept = append(kept, existing)
		}
	}
	s.index.Summaries = kept
	s.saveIndexLocked()
}

// Create persists a brand-new entity, idempotent on identical id with
// identical attributes, else a conflict (mirrors graph.addTask semantics,
// spec.md §4.3, applied uniformly to every entity kind here).
func (s *Store[T]) Create(entity T) core.Result[T] {
	id := entity.GetID()
	if id == "" {
		return core.Fail[T](core.NewError(core.KindValidation, "entity id required"))
	}

	resourcePath := Key(s.kind, id)
	lock, lerr := s.engine.gate.AcquireLock(resourcePath, security.LockWrite, "", s.engine.lockMaxDuration, s.engine.lockTimeout)
	if lerr != nil {
		return core.Fail[T](lerr)
	}
	defer s.engine.gate.ReleaseLock(lock.ID)

	path := s.engine.layout.EntityPath(s.kind, id)
	if existing, ok := s.readFileLocked(path); ok {
		if jsonEqual(existing, entity) {
			return core.Ok(entity)
		}
		return core.Fail[T](core.NewError(core.KindConflict, "entity %s already exists with different attributes", id))
	}

	if err := s.writeFileLocked(path, entity); err != nil {
		return core.Fail[T](core.NewError(core.KindSystem, "write %s: %v", path, err))
	}
	s.engine.cache.Set(Key(s.kind, id), entity)
	s.upsertIndex(s.summarize(entity))
	s.engine.log.Debug("created %s %s", s.kind, id)
	return core.Ok(entity)
}

// Get reads an entity, checking the cache first.
func (s *Store[T]) Get(id string) core.Result[T] {
	if cached, ok := s.engine.cache.Get(Key(s.kind, id)); ok {
		if typed, ok := cached.(T); ok {
			return core.Ok(typed)
		}
	}
	path := s.engine.layout.EntityPath(s.kind, id)
	entity, ok := s.readFileLocked(path)
	if !ok {
		return core.Fail[T](core.NewError(core.KindValidation, "unknown %s id %s", s.kind, id))
	}
	s.engine.cache.Set(Key(s.kind, id), entity)
	return core.Ok(entity)
}

// Update applies a partial merge patch (id immutable, spec.md §4.2). mutate
// receives the entity pointer directly (T is always a pointer type per the
// core.Entity constraint) and edits it in place.
func (s *Store[T]) Update(id string, mutate func(T)) core.Result[T] {
	resourcePath := Key(s.kind, id)
	lock, lerr := s.engine.gate.AcquireLock(resourcePath, security.LockWrite, "", s.engine.lockMaxDuration, s.engine.lockTimeout)
	if lerr != nil {
		return core.Fail[T](lerr)
	}
	defer s.engine.gate.ReleaseLock(lock.ID)

	path := s.engine.layout.EntityPath(s.kind, id)
	entity, ok := s.readFileLocked(path)
	if !ok {
		return core.Fail[T](core.NewError(core.KindValidation, "unknown %s id %s", s.kind, id))
	}
	mutate(entity)
	if entity.GetID() != id {
		return core.Fail[T](core.NewError(core.KindValidation, "id is immutable"))
	}
	if err := s.writeFileLocked(path, entity); err != nil {
		return core.Fail[T](core.NewError(core.KindSystem, "write %s: %v", path, err))
	}
	s.engine.cache.Set(Key(s.kind, id), entity)
	s.upsertIndex(s.summarize(entity))
	return core.Ok(entity)
}

// Delete removes an entity's file, index entry and cache entry.
func (s *Store[T]) Delete(id string) core.Result[struct{}] {
	resourcePath := Key(s.kind, id)
	lock, lerr := s.engine.gate.AcquireLock(resourcePath, security.LockWrite, "", s.engine.lockMaxDuration, s.engine.lockTimeout)
	if lerr != nil {
		return core.Fail[struct{}](lerr)
	}
	defer s.engine.gate.ReleaseLock(lock.ID)

	path := s.engine.layout.EntityPath(s.kind, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return core.Fail[struct{}](core.NewError(core.KindSystem, "delete %s: %v", path, err))
	}
	s.engine.cache.Delete(Key(s.kind, id))
	s.removeIndex(id)
	return core.Ok(struct{}{})
}

// List returns the denormalised index summaries (spec.md §4.2: "list
// (indexed)").
func (s *Store[T]) List() []map[string]any {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	out := make([]map[string]any, len(s.index.Summaries))
	copy(out, s.index.Summaries)
	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprint(out[i]["id"]) < fmt.Sprint(out[j]["id"])
	})
	return out
}

// Search filters the index summaries with a predicate over the summary map
// (spec.md §4.2: "search").
func (s *Store[T]) Search(match func(map[string]any) bool) []map[string]any {
	var out []map[string]any
	for _, summary := range s.List() {
		if match(summary) {
			out = append(out, summary)
		}
	}
	return out
}

func (s *Store[T]) readFileLocked(path string) (T, bool) {
	var zero T
	data, err := os.ReadFile(path)
	if err != nil {
		return zero, false
	}
	var entity T
	if err := json.Unmarshal(data, &entity); err != nil {
		return zero, false
	}
	return entity, true
}

func (s *Store[T]) writeFileLocked(path string, entity T) error {
	dir := s.engine.layout.EntityDir(s.kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(path, data)
}

// atomicWrite writes to a temp file then renames over path (spec.md §4.3
// persistence workflow: "write atomically (write-to-temp then rename)"),
// applied here to every entity/index write, not just graph saves.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func jsonEqual(a, b any) bool {
	da, errA := json.Marshal(a)
	db, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(da) == string(db)
}
