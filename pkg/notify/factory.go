package notify

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	"github.com/openzeppelin-fork/monitor-go/pkg/secret"
)

// Build constructs the Notifier matching trigger.Kind, resolving secrets
// through resolver.
func Build(trigger model.Trigger, resolver secret.Resolver, logger *zap.Logger) (Notifier, error) {
	switch trigger.Kind {
	case model.TriggerKindSlack:
		if trigger.Slack == nil {
			return nil, fmt.Errorf("notify: trigger %q declares kind slack with no slack config", trigger.ID)
		}
		return NewSlackNotifier(*trigger.Slack, resolver, logger), nil
	case model.TriggerKindDiscord:
		if trigger.Discord == nil {
			return nil, fmt.Errorf("notify: trigger %q declares kind discord with no discord config", trigger.ID)
		}
		return NewDiscordNotifier(*trigger.Discord, resolver, logger), nil
	case model.TriggerKindTelegram:
		if trigger.Telegram == nil {
			return nil, fmt.Errorf("notify: trigger %q declares kind telegram with no telegram config", trigger.ID)
		}
		return NewTelegramNotifier(*trigger.Telegram, resolver, logger), nil
	case model.TriggerKindWebhook:
		if trigger.Webhook == nil {
			return nil, fmt.Errorf("notify: trigger %q declares kind webhook with no webhook config", trigger.ID)
		}
		return NewWebhookNotifier(*trigger.Webhook, resolver, logger), nil
	case model.TriggerKindEmail:
		if trigger.Email == nil {
			return nil, fmt.Errorf("notify: trigger %q declares kind email with no email config", trigger.ID)
		}
		return NewEmailNotifier(*trigger.Email, resolver, logger), nil
	case model.TriggerKindScript:
		if trigger.Script == nil {
			return nil, fmt.Errorf("notify: trigger %q declares kind script with no script config", trigger.ID)
		}
		return NewScriptNotifier(*trigger.Script, logger), nil
	default:
		return nil, fmt.Errorf("notify: unknown trigger kind %q", trigger.Kind)
	}
}
