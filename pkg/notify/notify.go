// Package notify implements the six notification sinks a trigger can name:
// Slack, Discord, Telegram, Webhook, Email, and Script. Each sink applies
// its own RetryPolicy independently.
package notify

import (
	"context"
	"crypto/rand"
	"math/big"
	mathrand "math/rand"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/model"
)

// Notifier is the capability every trigger kind's notification sink
// implements: render the monitor's message template against vars and
// deliver it.
type Notifier interface {
	Send(ctx context.Context, vars map[string]string) error
}

var templateVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Render substitutes every "${path}" occurrence in body with vars[path],
// leaving unresolved paths as an empty string.
func Render(body string, vars map[string]string) string {
	return templateVarPattern.ReplaceAllStringFunc(body, func(m string) string {
		key := m[2 : len(m)-1]
		return vars[key]
	})
}

// withRetry runs call up to policy.MaxRetries additional times with
// exponential backoff (optionally jittered), stopping at the first success.
// Mirrors pkg/rpc's endpoint-pool backoff policy, kept as an independent,
// smaller copy here since sinks have no concept of endpoint
// demotion or circuit breaking.
func withRetry(ctx context.Context, logger *zap.Logger, policy model.RetryPolicy, call func(ctx context.Context) error) error {
	attempt := 0
	var lastErr error
	for attempt <= int(policy.MaxRetries) {
		err := call(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		attempt++
		if attempt > int(policy.MaxRetries) {
			break
		}
		wait := backoff(policy, attempt)
		logger.Debug("retrying notification delivery", zap.Int("attempt", attempt),
			zap.Duration("backoff", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}

func backoff(policy model.RetryPolicy, attempt int) time.Duration {
	base := float64(policy.BaseForBackoff)
	if base <= 0 {
		base = 2
	}
	raw := float64(policy.InitialBackoffMS)
	for i := 0; i < attempt-1; i++ {
		raw *= base
	}
	maxMS := float64(policy.MaxBackoffMS)
	if maxMS > 0 && raw > maxMS {
		raw = maxMS
	}
	d := time.Duration(raw) * time.Millisecond
	if policy.Jitter == model.JitterFull {
		return randDuration(d)
	}
	return d
}

func randDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return time.Duration(mathrand.Int63n(int64(max)))
	}
	return time.Duration(n.Int64())
}
