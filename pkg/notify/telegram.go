package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	"github.com/openzeppelin-fork/monitor-go/pkg/secret"
)

// TelegramNotifier sends via the Bot API's sendMessage endpoint.
type TelegramNotifier struct {
	cfg      model.TelegramConfig
	resolver secret.Resolver
	client   *http.Client
	logger   *zap.Logger
}

func NewTelegramNotifier(cfg model.TelegramConfig, resolver secret.Resolver, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{cfg: cfg, resolver: resolver, client: &http.Client{Timeout: 10 * time.Second}, logger: logger.Named("telegram")}
}

type telegramPayload struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

func (n *TelegramNotifier) Send(ctx context.Context, vars map[string]string) error {
	token, err := n.resolver.Resolve(ctx, n.cfg.Token)
	if err != nil {
		return fmt.Errorf("notify: resolving telegram token: %w", err)
	}
	text := Render(n.cfg.Message.Title, vars)
	if n.cfg.Message.Body != "" {
		text = text + "\n" + Render(n.cfg.Message.Body, vars)
	}
	body, err := json.Marshal(telegramPayload{
		ChatID:                n.cfg.ChatID,
		Text:                  text,
		DisableWebPagePreview: n.cfg.DisableWebPreview,
	})
	if err != nil {
		return fmt.Errorf("notify: marshaling telegram payload: %w", err)
	}

	endpoint := "https://api.telegram.org/bot" + url.PathEscape(token) + "/sendMessage"
	return withRetry(ctx, n.logger, n.cfg.RetryPolicy, func(ctx context.Context) error {
		return n.post(ctx, endpoint, body)
	})
}

func (n *TelegramNotifier) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: building telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: telegram request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify: telegram returned status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
