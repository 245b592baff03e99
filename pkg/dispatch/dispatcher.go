// Package dispatch implements the trigger dispatcher: for each match in a
// processed block, in arrival order, it runs the monitor's optional filter
// scripts, then fans the survivors out to their configured notification
// sinks concurrently, aggregating failures per match without aborting the
// rest of the block.
package dispatch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/chain"
	"github.com/openzeppelin-fork/monitor-go/pkg/metrics"
	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	"github.com/openzeppelin-fork/monitor-go/pkg/notify"
	"github.com/openzeppelin-fork/monitor-go/pkg/script"
	"github.com/openzeppelin-fork/monitor-go/pkg/secret"
)

// Dispatcher owns the monitor/trigger lookup tables built at startup, which
// are effectively read-only afterward, and runs the per-block dispatch
// algorithm.
type Dispatcher struct {
	monitors map[string]model.Monitor
	triggers map[string]model.Trigger
	resolver secret.Resolver
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// New builds a Dispatcher. m may be nil (e.g. the one-shot scan path),
// in which case match/trigger counters are not recorded.
func New(monitors []model.Monitor, triggers []model.Trigger, resolver secret.Resolver, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	monitorsByName := make(map[string]model.Monitor, len(monitors))
	for _, mon := range monitors {
		monitorsByName[mon.Name] = mon
	}
	triggersByID := make(map[string]model.Trigger, len(triggers))
	for _, t := range triggers {
		triggersByID[t.ID] = t
	}
	return &Dispatcher{monitors: monitorsByName, triggers: triggersByID, resolver: resolver, logger: logger.Named("dispatch"), metrics: m}
}

// Handle is the watcher.TriggerHandler this dispatcher presents to the
// pipeline's stage-2 consumer. A shutdown signal observed between matches
// stops processing the rest of pb's matches without touching any notifier
// already in flight for the current match.
func (d *Dispatcher) Handle(ctx context.Context, pb chain.ProcessedBlock) {
	for _, m := range pb.Matches {
		if ctx.Err() != nil {
			d.logger.Warn("dispatch cancelled mid-block", zap.String("network", pb.NetworkID),
				zap.Uint64("block", pb.BlockNumber))
			return
		}
		d.dispatchOne(ctx, m)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, m chain.Match) {
	monitor, ok := d.monitors[m.MonitorName()]
	if !ok {
		d.logger.Error("match for unknown monitor", zap.String("monitor", m.MonitorName()), zap.Error(ErrUnknownMonitor))
		return
	}

	if d.filteredOut(ctx, monitor, m) {
		return
	}

	if d.metrics != nil {
		d.metrics.MatchesTotal.WithLabelValues(monitor.Name).Inc()
	}

	vars := m.TemplateVars()
	var (
		mu       sync.Mutex
		failures []error
		wg       sync.WaitGroup
	)
	for _, triggerID := range monitor.Triggers {
		trigger, ok := d.triggers[triggerID]
		if !ok {
			d.logger.Error("monitor references unknown trigger", zap.String("monitor", monitor.Name),
				zap.String("trigger", triggerID), zap.Error(ErrUnknownTrigger))
			continue
		}
		wg.Add(1)
		go func(trigger model.Trigger) {
			defer wg.Done()
			err := d.runTrigger(ctx, trigger, vars)
			if d.metrics != nil {
				if err != nil {
					d.metrics.TriggerFailedTotal.WithLabelValues(trigger.ID, string(trigger.Kind)).Inc()
				} else {
					d.metrics.TriggerFiredTotal.WithLabelValues(trigger.ID, string(trigger.Kind)).Inc()
				}
			}
			if err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
		}(trigger)
	}
	wg.Wait()

	if len(failures) > 0 {
		d.logger.Error("trigger dispatch had failures",
			zap.String("monitor", monitor.Name), zap.String("tx", m.TxHash()),
			zap.Error(&ErrExecution{MonitorName: monitor.Name, TxHash: m.TxHash(), Failures: failures}))
	}
}

func (d *Dispatcher) runTrigger(ctx context.Context, trigger model.Trigger, vars map[string]string) error {
	notifier, err := notify.Build(trigger, d.resolver, d.logger)
	if err != nil {
		return err
	}
	return notifier.Send(ctx, vars)
}

// filteredOut runs the configured trigger_conditions scripts in order; the
// first truthy result removes the match from further processing. A script
// error counts as falsy, and with no scripts configured the match is kept.
func (d *Dispatcher) filteredOut(ctx context.Context, monitor model.Monitor, m chain.Match) bool {
	if len(monitor.TriggerConditions) == 0 {
		return false
	}
	vars := m.TemplateVars()
	for _, cond := range monitor.TriggerConditions {
		ok, err := script.Run(ctx, cond.Language, cond.ScriptPath, cond.Arguments, cond.TimeoutMS, vars)
		if err != nil {
			d.logger.Warn("trigger condition script error, treated as falsy",
				zap.String("monitor", monitor.Name), zap.String("script", cond.ScriptPath), zap.Error(err))
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
