package storage

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"taskforge/internal/core"
)

// Manifest describes one backup snapshot (spec.md §6).
type Manifest struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Size      int64     `json:"size"`
	Checksum  uint32     `json:"checksum"`
	Entities  int       `json:"entities"`
	Version   string    `json:"version"`
}

// BackupJob runs the periodic snapshot + retention sweep (spec.md §4.2),
// ticked by robfig/cron rather than a bare time.Ticker (SPEC_FULL.md §11).
type BackupJob struct {
	engine     *Engine
	maxBackups int
	runner     *cron.Cron
}

// NewBackupJob builds (but does not start) a backup job.
func NewBackupJob(e *Engine, maxBackups int) *BackupJob {
	return &BackupJob{engine: e, maxBackups: maxBackups}
}

// Start schedules RunOnce every interval until Stop is called.
func (b *BackupJob) Start(interval time.Duration) error {
	b.runner = cron.New()
	_, err := b.runner.AddFunc("@every "+interval.String(), func() {
		if _, err := b.RunOnce(); err != nil {
			b.engine.log.Warn("backup failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	b.runner.Start()
	return nil
}

// Stop halts the scheduled job.
func (b *BackupJob) Stop() {
	if b.runner != nil {
		ctx := b.runner.Stop()
		<-ctx.Done()
	}
}

// RunOnce copies the entire data tree into backups/<backupID>, writes a
// manifest, and enforces the maxBackups retention window.
func (b *BackupJob) RunOnce() (Manifest, error) {
	id := core.NewID("backup")
	dest := b.engine.layout.BackupDir(id)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return Manifest{}, err
	}

	var size int64
	entities := 0
	for _, dir := range append(b.engine.layout.AllEntityDirs(), b.engine.layout.IndexDir()) {
		rel, err := filepath.Rel(b.engine.layout.Root, dir)
		if err != nil {
			continue
		}
		n, s, err := copyTree(dir, filepath.Join(dest, rel))
		if err != nil {
			return Manifest{}, err
		}
		entities += n
		size += s
	}

	checksum, err := Checksum(map[string]any{"id": id, "entities": entities, "size": size})
	if err != nil {
		return Manifest{}, err
	}

	manifest := Manifest{
		ID: id, CreatedAt: time.Now(), Size: size, Checksum: checksum,
		Entities: entities, Version: schemaVersion,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Manifest{}, err
	}
	if err := os.WriteFile(filepath.Join(dest, "manifest.json"), data, 0o644); err != nil {
		return Manifest{}, err
	}

	b.engine.log.Info("backup %s created: %d entities, %d bytes", id, entities, size)
	b.enforceRetention()
	return manifest, nil
}

func (b *BackupJob) enforceRetention() {
	entries, err := os.ReadDir(b.engine.layout.BackupsDir())
	if err != nil {
		return
	}
	type dated struct {
		name string
		mod  time.Time
	}
	var backups []dated
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, dated{entry.Name(), info.ModTime()})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].mod.After(backups[j].mod) })
	if b.maxBackups <= 0 || len(backups) <= b.maxBackups {
		return
	}
	for _, old := range backups[b.maxBackups:] {
		os.RemoveAll(filepath.Join(b.engine.layout.BackupsDir(), old.name))
	}
}

func copyTree(src, dst string) (files int, size int64, err error) {
	if _, err := os.Stat(src); err != nil {
		return 0, 0, nil // nothing to copy yet
	}
	err = filepath.Walk(src, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := copyFile(path, target); err != nil {
			return err
		}
		files++
		size += info.Size()
		return nil
	})
	return files, size, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
