package execution

import (
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"taskforge/internal/config"
	"taskforge/internal/core"
	"taskforge/internal/events"
	"taskforge/internal/logging"
)

// Engine is the Task Execution Engine (spec.md §4.4): agent registry,
// execution table, scheduler and watchdog, wired together behind one
// mutex-guarded state block per spec.md §5's "per-map mutual exclusion"
// concurrency model.
type Engine struct {
	mu sync.RWMutex

	agents     agentTable
	executions map[string]*core.Execution

	cfg   *config.Config
	clock core.Clock
	log   *logging.Logger
	bus   *events.Bus

	scheduler *cron.Cron
	watchdog  *cron.Cron
	heartbeat *cron.Cron

	dispatchLimiter *rate.Limiter
	batchSemaphore  *semaphore.Weighted

	monitors   map[string]*monitor
	monitorsMu sync.Mutex
}

// New builds an idle Task Execution Engine; call Start to begin the
// scheduler and watchdog loops.
func New(cfg *config.Config, bus *events.Bus, clock core.Clock) *Engine {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Engine{
		agents:          make(agentTable),
		executions:      make(map[string]*core.Execution),
		cfg:             cfg,
		clock:           clock,
		log:             logging.Get(logging.CategoryExecution),
		bus:             bus,
		dispatchLimiter: rate.NewLimiter(rate.Limit(cfg.Scheduling.BatchSize), cfg.Scheduling.BatchSize),
		batchSemaphore:  semaphore.NewWeighted(int64(cfg.Execution.MaxConcurrentExecutions)),
		monitors:        make(map[string]*monitor),
	}
}

// Start begins the scheduler tick loop and, when the watchdog is enabled,
// the watchdog health-check and heartbeat-sweep loops, all ticked by
// robfig/cron rather than bare tickers (SPEC_FULL.md §11).
func (e *Engine) Start() error {
	e.scheduler = cron.New()
	if _, err := e.scheduler.AddFunc("@every "+e.cfg.Scheduling.SchedulingInterval.String(), e.tick); err != nil {
		return err
	}
	e.scheduler.Start()

	if e.cfg.Watchdog.Enabled {
		e.watchdog = cron.New()
		if _, err := e.watchdog.AddFunc("@every "+e.cfg.Watchdog.HealthCheckInterval.String(), e.checkTimeouts); err != nil {
			return err
		}
		e.watchdog.Start()

		e.heartbeat = cron.New()
		if _, err := e.heartbeat.AddFunc("@every "+e.cfg.Watchdog.HeartbeatSweepInterval.String(), e.sweepStaleAgents); err != nil {
			return err
		}
		e.heartbeat.Start()
	}
	return nil
}

// Stop halts every loop that Start began.
func (e *Engine) Stop() {
	if e.scheduler != nil {
		ctx := e.scheduler.Stop()
		<-ctx.Done()
	}
	if e.watchdog != nil {
		ctx := e.watchdog.Stop()
		<-ctx.Done()
	}
	if e.heartbeat != nil {
		ctx := e.heartbeat.Stop()
		<-ctx.Done()
	}
}

// Executions returns a snapshot of every execution, for diagnostics/tests.
func (e *Engine) Executions() []*core.Execution {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*core.Execution, 0, len(e.executions))
	for _, ex := range e.executions {
		clone := *ex
		out = append(out, &clone)
	}
	return out
}
