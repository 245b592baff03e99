package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/chain"
	"github.com/openzeppelin-fork/monitor-go/pkg/chain/evmchain"
	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	"github.com/openzeppelin-fork/monitor-go/pkg/secret"
)

type alwaysResolve string

func (r alwaysResolve) Resolve(ctx context.Context, spec model.SecretSpec) (string, error) {
	return string(r), nil
}

func TestDispatcher_Handle_FiresTriggerForSurvivingMatch(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	monitor := model.Monitor{Name: "m1", Triggers: []string{"t1"}}
	trigger := model.Trigger{
		ID: "t1", Kind: model.TriggerKindWebhook,
		Webhook: &model.WebhookConfig{
			URL:         model.SecretSpec{Kind: model.SecretKindPlain, Value: srv.URL},
			Message:     model.Message{Title: "hit", Body: "hit"},
			RetryPolicy: model.DefaultRetryPolicy(),
		},
	}
	d := New([]model.Monitor{monitor}, []model.Trigger{trigger}, alwaysResolve(srv.URL), zap.NewNop(), nil)

	match := &evmchain.Match{MonitorName_: "m1", TxHash_: "0x1", Vars: map[string]string{}}
	d.Handle(context.Background(), chain.ProcessedBlock{Matches: []chain.Match{match}})

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestDispatcher_Handle_UnknownMonitorSkipped(t *testing.T) {
	d := New(nil, nil, alwaysResolve(""), zap.NewNop(), nil)
	match := &evmchain.Match{MonitorName_: "ghost", TxHash_: "0x1"}
	assert.NotPanics(t, func() {
		d.Handle(context.Background(), chain.ProcessedBlock{Matches: []chain.Match{match}})
	})
}

func TestDispatcher_Handle_OneTriggerFailsAfterRetriesAnotherStillFires(t *testing.T) {
	var okHits int32
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&okHits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer okSrv.Close()

	var failAttempts int32
	failSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&failAttempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failSrv.Close()

	fastRetry := model.RetryPolicy{MaxRetries: 2, BaseForBackoff: 1, InitialBackoffMS: 1}

	monitor := model.Monitor{Name: "m1", Triggers: []string{"ok", "fail"}}
	okTrigger := model.Trigger{
		ID: "ok", Kind: model.TriggerKindWebhook,
		Webhook: &model.WebhookConfig{
			URL:         model.SecretSpec{Kind: model.SecretKindPlain, Value: okSrv.URL},
			Message:     model.Message{Title: "hit", Body: "hit"},
			RetryPolicy: fastRetry,
		},
	}
	failTrigger := model.Trigger{
		ID: "fail", Kind: model.TriggerKindWebhook,
		Webhook: &model.WebhookConfig{
			URL:         model.SecretSpec{Kind: model.SecretKindPlain, Value: failSrv.URL},
			Message:     model.Message{Title: "hit", Body: "hit"},
			RetryPolicy: fastRetry,
		},
	}
	d := New([]model.Monitor{monitor}, []model.Trigger{okTrigger, failTrigger}, secret.NewDefaultResolver(zap.NewNop()), zap.NewNop(), nil)

	match1 := &evmchain.Match{MonitorName_: "m1", TxHash_: "0x1", Vars: map[string]string{}}
	match2 := &evmchain.Match{MonitorName_: "m1", TxHash_: "0x2", Vars: map[string]string{}}
	assert.NotPanics(t, func() {
		d.Handle(context.Background(), chain.ProcessedBlock{Matches: []chain.Match{match1, match2}})
	})

	// The failing trigger exhausts its retries (1 initial attempt + 2
	// retries) independently for each of the two matches, and the failure
	// never stops the surviving trigger from firing for either match.
	assert.Equal(t, int32(6), atomic.LoadInt32(&failAttempts))
	assert.Equal(t, int32(2), atomic.LoadInt32(&okHits))
}

func TestDispatcher_Handle_ShutdownStopsRemainingMatches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	monitor := model.Monitor{Name: "m1", Triggers: []string{"t1"}}
	trigger := model.Trigger{
		ID: "t1", Kind: model.TriggerKindWebhook,
		Webhook: &model.WebhookConfig{
			URL:         model.SecretSpec{Kind: model.SecretKindPlain, Value: srv.URL},
			Message:     model.Message{Title: "hit", Body: "hit"},
			RetryPolicy: model.DefaultRetryPolicy(),
		},
	}
	d := New([]model.Monitor{monitor}, []model.Trigger{trigger}, alwaysResolve(srv.URL), zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	match := &evmchain.Match{MonitorName_: "m1", TxHash_: "0x1", Vars: map[string]string{}}
	d.Handle(ctx, chain.ProcessedBlock{Matches: []chain.Match{match, match}})

	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}
