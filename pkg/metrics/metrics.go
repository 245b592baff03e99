// Package metrics exposes the Prometheus surface: configuration gauges set
// once at startup, per-network/monitor/trigger counters the watcher and
// dispatcher update as blocks are processed, plus host cpu/mem/disk gauges
// refreshed on a timer, all
// registered through promauto's self-registering gauge/counter helpers.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/internal/monitorconfig"
)

const namespace = "monitor"

// Metrics holds every gauge/counter this build exposes.
type Metrics struct {
	Registry *prometheus.Registry

	MonitorsTotal      prometheus.Gauge
	MonitorsActive     prometheus.Gauge
	TriggersTotal      prometheus.Gauge
	ContractsMonitored prometheus.Gauge
	NetworksMonitored  prometheus.Gauge
	NetworkMonitors    *prometheus.GaugeVec

	BlocksProcessedTotal *prometheus.CounterVec
	BlocksSkippedTotal   *prometheus.CounterVec
	MatchesTotal         *prometheus.CounterVec
	TriggerFiredTotal    *prometheus.CounterVec
	TriggerFailedTotal   *prometheus.CounterVec

	SystemCPUPercent  prometheus.Gauge
	SystemMemPercent  prometheus.Gauge
	SystemDiskPercent prometheus.Gauge
}

// New builds a fresh, private Prometheus registry and registers the metric
// set against it (rather than the global DefaultRegisterer), so multiple
// Metrics instances can coexist within one process, e.g. across tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		MonitorsTotal: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "monitors_total",
			Help: "Number of monitor definitions loaded.",
		}),
		MonitorsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "monitors_active",
			Help: "Number of monitor definitions not paused.",
		}),
		TriggersTotal: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "triggers_total",
			Help: "Number of trigger definitions loaded.",
		}),
		ContractsMonitored: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "contracts_monitored",
			Help: "Number of distinct monitored addresses across all monitors.",
		}),
		NetworksMonitored: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "networks_monitored",
			Help: "Number of network definitions loaded.",
		}),
		NetworkMonitors: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "network_monitors",
			Help: "Number of active monitors watching a given network.",
		}, []string{"network"}),

		BlocksProcessedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "blocks_processed_total",
			Help: "Total blocks successfully processed by the watcher.",
		}, []string{"network"}),
		BlocksSkippedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "blocks_skipped_total",
			Help: "Total blocks skipped to respect max_past_blocks.",
		}, []string{"network"}),
		MatchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "matches_total",
			Help: "Total monitor matches produced, by monitor.",
		}, []string{"monitor"}),
		TriggerFiredTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trigger_fired_total",
			Help: "Total trigger notifications sent successfully.",
		}, []string{"trigger", "kind"}),
		TriggerFailedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trigger_failed_total",
			Help: "Total trigger notifications that failed after retries.",
		}, []string{"trigger", "kind"}),

		SystemCPUPercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "system", Name: "cpu_percent",
			Help: "Host CPU utilization percentage.",
		}),
		SystemMemPercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "system", Name: "mem_percent",
			Help: "Host memory utilization percentage.",
		}),
		SystemDiskPercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "system", Name: "disk_percent",
			Help: "Root filesystem utilization percentage.",
		}),
	}
}

// LoadSet mirrors the loaded configuration into the gauges: monitors_total,
// monitors_active, triggers_total, contracts_monitored, networks_monitored,
// network_monitors{network}. Called once at startup; the configuration is
// not reloaded while the process runs.
func (m *Metrics) LoadSet(set *monitorconfig.Set) {
	m.MonitorsTotal.Set(float64(len(set.Monitors)))
	m.TriggersTotal.Set(float64(len(set.Triggers)))
	m.NetworksMonitored.Set(float64(len(set.Networks)))

	active := 0
	addrs := make(map[string]struct{})
	perNetwork := make(map[string]int)
	for _, mon := range set.Monitors {
		if mon.Paused {
			continue
		}
		active++
		for _, a := range mon.Addresses {
			addrs[a.Address] = struct{}{}
		}
		for _, n := range mon.Networks {
			perNetwork[n]++
		}
	}
	m.MonitorsActive.Set(float64(active))
	m.ContractsMonitored.Set(float64(len(addrs)))

	m.NetworkMonitors.Reset()
	for _, n := range set.Networks {
		m.NetworkMonitors.WithLabelValues(n.ID).Set(float64(perNetwork[n.ID]))
	}
}

// RunSystemSampler refreshes the host gauges every interval until ctx is
// canceled.
func (m *Metrics) RunSystemSampler(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.sampleOnce(ctx, logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleOnce(ctx, logger)
		}
	}
}

func (m *Metrics) sampleOnce(ctx context.Context, logger *zap.Logger) {
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		logger.Warn("metrics: cpu sample failed", zap.Error(err))
	} else if len(pct) > 0 {
		m.SystemCPUPercent.Set(pct[0])
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		logger.Warn("metrics: mem sample failed", zap.Error(err))
	} else {
		m.SystemMemPercent.Set(vm.UsedPercent)
	}

	if du, err := disk.UsageWithContext(ctx, "/"); err != nil {
		logger.Warn("metrics: disk sample failed", zap.Error(err))
	} else {
		m.SystemDiskPercent.Set(du.UsedPercent)
	}
}
