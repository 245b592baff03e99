package rpc

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/goware/breaker"
	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	"github.com/openzeppelin-fork/monitor-go/pkg/secret"
)

// endpoint is one weighted, independently-demotable RPC endpoint.
type endpoint struct {
	url     string
	weight  int
	breaker *breaker.Breaker

	mu       sync.Mutex
	demoted  bool
	demotedAt time.Time
}

// Pool selects a live weighted endpoint for each logical call, retries it
// with the network's configured backoff, and demotes it for the rest of the
// tick on a non-transient error or exhausted retries. Only after exhausted
// transient retries does the call move on to the next-best endpoint; a
// non-transient error is returned to the caller immediately.
type Pool struct {
	logger    *zap.Logger
	endpoints []*endpoint
	policy    model.RetryPolicy
}

// NewPool resolves each configured endpoint's URL through resolver and
// builds the weighted pool.
func NewPool(ctx context.Context, logger *zap.Logger, eps []model.Endpoint, policy model.RetryPolicy, resolver secret.Resolver) (*Pool, error) {
	if len(eps) == 0 {
		return nil, fmt.Errorf("rpc: a network must configure at least one endpoint")
	}
	resolved := make([]*endpoint, 0, len(eps))
	for _, e := range eps {
		url, err := resolver.Resolve(ctx, e.URL)
		if err != nil {
			return nil, fmt.Errorf("rpc: resolving endpoint url: %w", err)
		}
		weight := e.Weight
		if weight <= 0 {
			weight = 1
		}
		resolved = append(resolved, &endpoint{
			url:    url,
			weight: weight,
			breaker: breaker.New(slog.Default(), backoffDuration(policy.InitialBackoffMS),
				int(policy.BaseForBackoff), int(policy.MaxRetries)),
		})
	}
	return &Pool{logger: logger, endpoints: resolved, policy: policy}, nil
}

func backoffDuration(ms uint32) time.Duration { return time.Duration(ms) * time.Millisecond }

// Do runs call against the pool's live endpoints in weighted-random order,
// retrying each with exponential backoff + jitter up to policy's max
// retries, demoting an endpoint on a non-transient error or after its
// retries are exhausted. Exhausted transient retries fail over to the next
// endpoint; a non-transient error is returned at once. It returns nil on
// the first success, or the last error if every endpoint is exhausted or
// demoted.
func (p *Pool) Do(ctx context.Context, call func(ctx context.Context, url string) error) error {
	order := p.weightedOrder()
	var lastErr error
	for _, ep := range order {
		if ep.isDemoted() {
			continue
		}
		// ep.breaker adds cross-tick circuit breaking: an endpoint that has
		// been failing for a while short-circuits here without attempting
		// the call again. callWithRetry implements the in-tick
		// backoff/transient-classification policy.
		err := ep.breaker.Do(ctx, func() error {
			return p.callWithRetry(ctx, ep, call)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		ep.demote()
		if !isTransient(err) {
			return err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: all endpoints demoted", ErrRpc)
	}
	return lastErr
}

func (p *Pool) callWithRetry(ctx context.Context, ep *endpoint, call func(ctx context.Context, url string) error) error {
	attempt := 0
	var lastErr error
	for attempt <= int(p.policy.MaxRetries) {
		err := call(ctx, ep.url)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) {
			return err
		}
		attempt++
		if attempt > int(p.policy.MaxRetries) {
			break
		}
		wait := p.backoff(attempt)
		p.logger.Debug("retrying rpc call", zap.String("endpoint", ep.url),
			zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}

// backoff computes the delay before retry n: base^(n-1) * initial, capped
// at max, with optional full jitter.
func (p *Pool) backoff(attempt int) time.Duration {
	base := float64(p.policy.BaseForBackoff)
	if base <= 0 {
		base = 2
	}
	raw := float64(p.policy.InitialBackoffMS)
	for i := 0; i < attempt-1; i++ {
		raw *= base
	}
	maxMS := float64(p.policy.MaxBackoffMS)
	if maxMS > 0 && raw > maxMS {
		raw = maxMS
	}
	d := time.Duration(raw) * time.Millisecond
	if p.policy.Jitter == model.JitterFull {
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

func (e *endpoint) isDemoted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.demoted
}

func (e *endpoint) demote() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.demoted = true
	e.demotedAt = time.Now()
}

// ResetForTick clears every endpoint's demotion, called at the start of a
// watcher tick so a transient failure in one tick does not permanently
// exclude an endpoint.
func (p *Pool) ResetForTick() {
	for _, ep := range p.endpoints {
		ep.mu.Lock()
		ep.demoted = false
		ep.mu.Unlock()
	}
}

// weightedOrder returns the pool's endpoints shuffled by weight: higher
// weight endpoints are more likely to sort earlier, matching "picks a live
// endpoint by weight" without needing a full weighted-sampling library.
func (p *Pool) weightedOrder() []*endpoint {
	type scored struct {
		ep    *endpoint
		score float64
	}
	scored_ := make([]scored, len(p.endpoints))
	for i, ep := range p.endpoints {
		scored_[i] = scored{ep: ep, score: mathrand.Float64() * float64(ep.weight)}
	}
	for i := 1; i < len(scored_); i++ {
		for j := i; j > 0 && scored_[j].score > scored_[j-1].score; j-- {
			scored_[j], scored_[j-1] = scored_[j-1], scored_[j]
		}
	}
	out := make([]*endpoint, len(scored_))
	for i, s := range scored_ {
		out[i] = s.ep
	}
	return out
}
