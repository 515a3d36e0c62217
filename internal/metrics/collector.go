// Package metrics exposes TaskForge's Prometheus collectors and a
// periodic host-resource sampler (SPEC_FULL.md §11: github.com/prometheus/
// client_golang and github.com/shirou/gopsutil/v3, both promoted from
// r3e-network-service_layer — absent from the teacher — into direct
// domain-stack use here).
package metrics

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"taskforge/internal/events"
	"taskforge/internal/logging"
)

// Collector owns every Prometheus metric TaskForge exports plus the
// background loop that samples host resource usage.
type Collector struct {
	Registry *prometheus.Registry

	QueueDepth        prometheus.Gauge
	SchedulerBatchDur prometheus.Histogram
	AgentUtilization  prometheus.Gauge
	CacheHitRatio     prometheus.Gauge
	BackupDuration    prometheus.Histogram
	ErrorCount        *prometheus.CounterVec
	HostCPUPercent    prometheus.Gauge
	HostMemPercent    prometheus.Gauge

	bus     *events.Bus
	log     *logging.Logger
	sampler *cron.Cron
}

// New registers every collector on a fresh registry.
func New(bus *events.Bus) *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		bus:      bus,
		log:      logging.Get(logging.CategoryMetrics),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskforge_queue_depth", Help: "Number of queued executions awaiting dispatch.",
		}),
		SchedulerBatchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "taskforge_scheduler_batch_duration_seconds", Help: "Wall time of one scheduler tick.",
		}),
		AgentUtilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskforge_agent_utilization_ratio", Help: "Mean agent utilization across the fleet, 0..1.",
		}),
		CacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskforge_cache_hit_ratio", Help: "Storage cache hit ratio, 0..1.",
		}),
		BackupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "taskforge_backup_duration_seconds", Help: "Wall time of one backup run.",
		}),
		ErrorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskforge_errors_total", Help: "Errors by kind.",
		}, []string{"kind"}),
		HostCPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskforge_host_cpu_percent", Help: "Host CPU utilization percent.",
		}),
		HostMemPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskforge_host_mem_percent", Help: "Host memory utilization percent.",
		}),
	}
	c.Registry.MustRegister(
		c.QueueDepth, c.SchedulerBatchDur, c.AgentUtilization, c.CacheHitRatio,
		c.BackupDuration, c.ErrorCount, c.HostCPUPercent, c.HostMemPercent,
	)
	return c
}

// StartHostSampling begins a robfig/cron-ticked gopsutil sample of host
// CPU/memory, emitting metricsCollected after each sample (spec.md §6
// event channel list).
func (c *Collector) StartHostSampling(interval string) error {
	c.sampler = cron.New()
	_, err := c.sampler.AddFunc("@every "+interval, c.sampleHost)
	if err != nil {
		return err
	}
	c.sampler.Start()
	return nil
}

// StopHostSampling halts the sampler loop.
func (c *Collector) StopHostSampling() {
	if c.sampler != nil {
		ctx := c.sampler.Stop()
		<-ctx.Done()
	}
}

func (c *Collector) sampleHost() {
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		c.HostCPUPercent.Set(percents[0])
	} else if err != nil {
		c.log.Warn("sample host cpu: %v", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		c.HostMemPercent.Set(vm.UsedPercent)
	} else {
		c.log.Warn("sample host memory: %v", err)
	}

	c.bus.Emit(events.MetricsCollected, map[string]any{
		"hostCpuPercent": fetchGaugeValue(c.HostCPUPercent),
		"hostMemPercent": fetchGaugeValue(c.HostMemPercent),
	})
}

func fetchGaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	if m.Gauge != nil && m.Gauge.Value != nil {
		return *m.Gauge.Value
	}
	return 0
}
