package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/model"
)

type fixedResolver string

func (r fixedResolver) Resolve(ctx context.Context, spec model.SecretSpec) (string, error) {
	return string(r), nil
}

func TestRender_SubstitutesKnownAndBlanksUnknown(t *testing.T) {
	out := Render("block ${block.number} by ${monitor.name} (${missing})",
		map[string]string{"block.number": "42", "monitor.name": "whales"})
	assert.Equal(t, "block 42 by whales ()", out)
}

func TestWebhookNotifier_Send(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := model.WebhookConfig{
		URL:         model.SecretSpec{Kind: model.SecretKindPlain, Value: srv.URL},
		Message:     model.Message{Title: "Match on ${monitor.name}", Body: "tx ${transaction.hash}"},
		RetryPolicy: model.DefaultRetryPolicy(),
	}
	n := NewWebhookNotifier(cfg, fixedResolver(srv.URL), zap.NewNop())
	err := n.Send(context.Background(), map[string]string{"monitor.name": "m1", "transaction.hash": "0xabc"})
	require.NoError(t, err)
	assert.Contains(t, gotBody, "Match on m1")
	assert.Contains(t, gotBody, "0xabc")
}

func TestWebhookNotifier_RetriesOnFailureThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := model.WebhookConfig{
		URL:     model.SecretSpec{Kind: model.SecretKindPlain, Value: srv.URL},
		Message: model.Message{Title: "t", Body: "b"},
		RetryPolicy: model.RetryPolicy{
			MaxRetries: 2, BaseForBackoff: 2, InitialBackoffMS: 1, MaxBackoffMS: 5, Jitter: model.JitterNone,
		},
	}
	n := NewWebhookNotifier(cfg, fixedResolver(srv.URL), zap.NewNop())
	err := n.Send(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestBuild_UnknownKind(t *testing.T) {
	_, err := Build(model.Trigger{ID: "t1", Kind: model.TriggerKind("carrier-pigeon")}, fixedResolver(""), zap.NewNop())
	assert.Error(t, err)
}

func TestBuild_MissingConfig(t *testing.T) {
	_, err := Build(model.Trigger{ID: "t1", Kind: model.TriggerKindSlack}, fixedResolver(""), zap.NewNop())
	assert.Error(t, err)
}
