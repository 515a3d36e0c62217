package main

import (
	"taskforge/internal/config"
	"taskforge/internal/core"
	"taskforge/internal/events"
	"taskforge/internal/execution"
	"taskforge/internal/logging"
	"taskforge/internal/metrics"
	"taskforge/internal/security"
	"taskforge/internal/storage"
)

// engines bundles every TaskForge component wired together for one process
// (spec.md §9: "re-architect as explicit engines created at startup").
type engines struct {
	cfg      *config.Config
	gate     *security.Gate
	storage  *storage.Engine
	bus      *events.Bus
	exec     *execution.Engine
	metrics  *metrics.Collector
	backup   *storage.BackupJob
}

func wireEngines(cfg *config.Config) (*engines, error) {
	logging.Configure(cfg.DataRoot, cfg.Logging.Level, cfg.Logging.JSONFormat)

	gate := security.New(&cfg.Security, cfg.Audit.RetentionDays)
	storageEngine, err := storage.New(cfg, gate)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()
	execEngine := execution.New(cfg, bus, core.SystemClock{})
	collector := metrics.New(bus)
	backupJob := storage.NewBackupJob(storageEngine, cfg.Backup.MaxBackups)

	return &engines{
		cfg: cfg, gate: gate, storage: storageEngine, bus: bus,
		exec: execEngine, metrics: collector, backup: backupJob,
	}, nil
}
