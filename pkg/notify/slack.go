package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	"github.com/openzeppelin-fork/monitor-go/pkg/secret"
)

// slackMessage is a minimal Slack incoming-webhook payload: the title/body
// shape this system's Message template produces.
type slackMessage struct {
	Text        string            `json:"text,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
}

// SlackNotifier posts to an incoming-webhook URL.
type SlackNotifier struct {
	cfg      model.SlackConfig
	resolver secret.Resolver
	client   *http.Client
	logger   *zap.Logger
}

func NewSlackNotifier(cfg model.SlackConfig, resolver secret.Resolver, logger *zap.Logger) *SlackNotifier {
	return &SlackNotifier{cfg: cfg, resolver: resolver, client: &http.Client{Timeout: 10 * time.Second}, logger: logger.Named("slack")}
}

func (n *SlackNotifier) Send(ctx context.Context, vars map[string]string) error {
	url, err := n.resolver.Resolve(ctx, n.cfg.URL)
	if err != nil {
		return fmt.Errorf("notify: resolving slack url: %w", err)
	}
	title := Render(n.cfg.Message.Title, vars)
	body, err := json.Marshal(slackMessage{
		Text:        title,
		Attachments: []slackAttachment{{Title: title, Text: Render(n.cfg.Message.Body, vars)}},
	})
	if err != nil {
		return fmt.Errorf("notify: marshaling slack message: %w", err)
	}
	return withRetry(ctx, n.logger, n.cfg.RetryPolicy, func(ctx context.Context) error {
		return n.post(ctx, url, body)
	})
}

func (n *SlackNotifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: slack request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify: slack returned status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
