// Package storage implements the Storage Engine (spec.md §4.2): file-backed
// transactional CRUD for projects/tasks/dependencies/epics/graphs, fronted
// by a cache and backed by versioned backups. Entity writes hold the
// Security Gate's per-entity write lock; paths are not checked with the
// gate's ValidatePath. Layout is grounded on the teacher's internal/world/persist.go
// (one JSON file per entity under a data root).
package storage

import "path/filepath"

// EntityKind names a storable entity type; also the cache-key prefix and
// the subdirectory the entity's JSON files live under.
type EntityKind string

const (
	KindProject    EntityKind = "projects"
	KindTask       EntityKind = "tasks"
	KindDependency EntityKind = "dependencies"
	KindEpic       EntityKind = "epics"
	KindGraph      EntityKind = "graphs"
)

// Layout resolves entity/index/backup paths under a data root
// (spec.md §4.2's tree diagram).
type Layout struct {
	Root string
}

func NewLayout(root string) *Layout { return &Layout{Root: root} }

func (l *Layout) EntityDir(kind EntityKind) string {
	return filepath.Join(l.Root, string(kind))
}

func (l *Layout) EntityPath(kind EntityKind, id string) string {
	return filepath.Join(l.EntityDir(kind), id+".json")
}

func (l *Layout) IndexDir() string { return filepath.Join(l.Root, "indexes") }

func (l *Layout) IndexPath(kind EntityKind) string {
	return filepath.Join(l.IndexDir(), string(kind)+".json")
}

func (l *Layout) BackupsDir() string { return filepath.Join(l.Root, "backups") }

func (l *Layout) BackupDir(backupID string) string {
	return filepath.Join(l.BackupsDir(), backupID)
}

func (l *Layout) LogsDir() string { return filepath.Join(l.Root, "logs") }

// AllEntityDirs lists every entity subdirectory, used by the backup job to
// mirror the whole data tree.
func (l *Layout) AllEntityDirs() []string {
	return []string{
		l.EntityDir(KindProject),
		l.EntityDir(KindTask),
		l.EntityDir(KindDependency),
		l.EntityDir(KindEpic),
		l.EntityDir(KindGraph),
	}
}
