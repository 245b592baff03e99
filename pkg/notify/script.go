package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	scriptexec "github.com/openzeppelin-fork/monitor-go/pkg/script"
)

// ScriptNotifier runs a user script as the notification action itself
// (distinct from the per-monitor trigger_conditions filter scripts that run
// before dispatch). A falsy/erroring script is treated as delivery failure
// so it participates in the dispatcher's aggregate Execution error.
type ScriptNotifier struct {
	cfg    model.ScriptConfig
	logger *zap.Logger
}

func NewScriptNotifier(cfg model.ScriptConfig, logger *zap.Logger) *ScriptNotifier {
	return &ScriptNotifier{cfg: cfg, logger: logger.Named("script")}
}

func (n *ScriptNotifier) Send(ctx context.Context, vars map[string]string) error {
	ok, err := scriptexec.Run(ctx, n.cfg.Language, n.cfg.ScriptPath, n.cfg.Arguments, n.cfg.TimeoutMS, vars)
	if err != nil {
		return fmt.Errorf("notify: script notifier: %w", err)
	}
	if !ok {
		return fmt.Errorf("notify: script notifier %s reported failure", n.cfg.ScriptPath)
	}
	return nil
}
