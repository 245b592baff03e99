package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	"github.com/openzeppelin-fork/monitor-go/pkg/secret"
)

// WebhookNotifier posts the rendered message as a JSON body, optionally
// HMAC-SHA256 signed.
type WebhookNotifier struct {
	cfg      model.WebhookConfig
	resolver secret.Resolver
	client   *http.Client
	logger   *zap.Logger
}

func NewWebhookNotifier(cfg model.WebhookConfig, resolver secret.Resolver, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{cfg: cfg, resolver: resolver, client: &http.Client{Timeout: 10 * time.Second}, logger: logger.Named("webhook")}
}

type webhookPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Vars  map[string]string `json:"vars"`
}

func (n *WebhookNotifier) Send(ctx context.Context, vars map[string]string) error {
	url, err := n.resolver.Resolve(ctx, n.cfg.URL)
	if err != nil {
		return fmt.Errorf("notify: resolving webhook url: %w", err)
	}

	payload := webhookPayload{
		Title: Render(n.cfg.Message.Title, vars),
		Body:  Render(n.cfg.Message.Body, vars),
		Vars:  vars,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshaling webhook payload: %w", err)
	}

	return withRetry(ctx, n.logger, n.cfg.RetryPolicy, func(ctx context.Context) error {
		return n.post(ctx, url, body)
	})
}

func (n *WebhookNotifier) post(ctx context.Context, url string, body []byte) error {
	method := n.cfg.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.cfg.Headers {
		req.Header.Set(k, v)
	}
	if n.cfg.Secret.Value != "" {
		secretValue, err := n.resolver.Resolve(ctx, n.cfg.Secret)
		if err != nil {
			return fmt.Errorf("notify: resolving webhook secret: %w", err)
		}
		req.Header.Set("X-Signature-256", "sha256="+signHMAC(body, secretValue))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 10*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

func signHMAC(payload []byte, secretValue string) string {
	mac := hmac.New(sha256.New, []byte(secretValue))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
