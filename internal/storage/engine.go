package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"taskforge/internal/config"
	"taskforge/internal/core"
	"taskforge/internal/logging"
	"taskforge/internal/security"
)

// Engine is the Storage Engine (spec.md §4.2): the sole durable owner of
// every entity, fronted by Store[T] per entity kind plus raw graph-file
// access for internal/graph (spec.md §9 open question (a): all graph
// persistence routes through here).
type Engine struct {
	layout *Layout
	gate   *security.Gate
	cache  *Cache
	log    *logging.Logger

	lockMaxDuration time.Duration
	lockTimeout     time.Duration

	Projects     *Store[*core.Project]
	Tasks        *Store[*core.Task]
	Epics        *Store[*core.Epic]
	Dependencies *Store[*core.Dependency]
}

// New builds a Storage Engine rooted at cfg.DataRoot, wired to a shared
// Security Gate.
func New(cfg *config.Config, gate *security.Gate) (*Engine, error) {
	layout := NewLayout(cfg.DataRoot)
	for _, dir := range append(layout.AllEntityDirs(), layout.IndexDir(), layout.BackupsDir(), layout.LogsDir()) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create %s: %w", dir, err)
		}
	}

	e := &Engine{
		layout:          layout,
		gate:            gate,
		cache:           NewCache(cfg.Cache.MaxSize, cfg.Cache.TTLSeconds, cfg.Cache.Enabled),
		log:             logging.Get(logging.CategoryStorage),
		lockMaxDuration: cfg.Locks.MaxLockDuration,
		lockTimeout:     cfg.Locks.CleanupInterval,
	}

	e.Projects = newStore[*core.Project](e, KindProject, summarizeProject)
	e.Tasks = newStore[*core.Task](e, KindTask, summarizeTask)
	e.Epics = newStore[*core.Epic](e, KindEpic, summarizeEpic)
	e.Dependencies = newStore[*core.Dependency](e, KindDependency, summarizeDependency)

	return e, nil
}

func summarizeProject(p *core.Project) map[string]any {
	return map[string]any{"id": p.ID, "name": p.Name, "updatedAt": p.UpdatedAt}
}

func summarizeTask(t *core.Task) map[string]any {
	return map[string]any{
		"id": t.ID, "title": t.Title, "status": t.Status, "priority": t.Priority,
		"projectId": t.ProjectID, "epicId": t.EpicID, "updatedAt": t.UpdatedAt,
	}
}

func summarizeEpic(e *core.Epic) map[string]any {
	return map[string]any{"id": e.ID, "projectId": e.ProjectID, "title": e.Title, "updatedAt": e.UpdatedAt}
}

func summarizeDependency(d *core.Dependency) map[string]any {
	return map[string]any{
		"id": d.ID, "dependent": d.Dependent, "dependency": d.Dependency, "type": d.Type,
	}
}

// GraphPath resolves the extension-less graph file path for a project;
// callers append their chosen format's extension (internal/graph's
// serialize.go supports both ".json" and ".yaml").
func (e *Engine) GraphPath(projectID string) string {
	return filepath.Join(e.layout.EntityDir(KindGraph), projectID)
}

// ReadGraphFile reads the raw bytes of a saved graph file, for use by
// internal/graph's serialize/deserialize (open question (a) in SPEC_FULL.md
// §13: graph persistence is routed exclusively through the Storage Engine).
func (e *Engine) ReadGraphFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteGraphFile atomically writes raw graph bytes, optionally keeping a
// ".backup" copy of the previous contents first (spec.md §4.3 save()).
func (e *Engine) WriteGraphFile(path string, data []byte, createBackup bool) error {
	if createBackup {
		if existing, err := os.ReadFile(path); err == nil {
			if err := os.WriteFile(path+".backup", existing, 0o644); err != nil {
				return fmt.Errorf("storage: backup %s: %w", path, err)
			}
		}
	}
	if err := os.MkdirAll(e.layout.EntityDir(KindGraph), 0o755); err != nil {
		return err
	}
	return atomicWrite(path, data)
}

// ReadGraphBackup reads the ".backup" sibling of a graph file, used by the
// recovery path in internal/graph when an integrity check fails.
func (e *Engine) ReadGraphBackup(path string) ([]byte, error) {
	return os.ReadFile(path + ".backup")
}

// CacheStats returns the shared cache's hits, requests and entry count, for
// metrics collection.
func (e *Engine) CacheStats() (hits, requests int64, size int) {
	h, r := e.cache.Stats()
	return h, r, e.cache.Len()
}

// Gate exposes the Security Gate this engine is mediated through.
func (e *Engine) Gate() *security.Gate { return e.gate }

// Layout exposes the resolved on-disk layout.
func (e *Engine) Layout() *Layout { return e.layout }
