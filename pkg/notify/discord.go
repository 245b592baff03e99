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

// DiscordNotifier posts to a Discord webhook URL. Discord's webhook
// contract (a "content" field, optional "embeds") is close enough to
// Slack's that this sink shares SlackNotifier's delivery shape, adapted for
// Discord's field names.
type DiscordNotifier struct {
	cfg      model.DiscordConfig
	resolver secret.Resolver
	client   *http.Client
	logger   *zap.Logger
}

func NewDiscordNotifier(cfg model.DiscordConfig, resolver secret.Resolver, logger *zap.Logger) *DiscordNotifier {
	return &DiscordNotifier{cfg: cfg, resolver: resolver, client: &http.Client{Timeout: 10 * time.Second}, logger: logger.Named("discord")}
}

type discordPayload struct {
	Content string         `json:"content"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (n *DiscordNotifier) Send(ctx context.Context, vars map[string]string) error {
	url, err := n.resolver.Resolve(ctx, n.cfg.URL)
	if err != nil {
		return fmt.Errorf("notify: resolving discord url: %w", err)
	}
	title := Render(n.cfg.Message.Title, vars)
	body, err := json.Marshal(discordPayload{
		Content: title,
		Embeds:  []discordEmbed{{Title: title, Description: Render(n.cfg.Message.Body, vars)}},
	})
	if err != nil {
		return fmt.Errorf("notify: marshaling discord payload: %w", err)
	}
	return withRetry(ctx, n.logger, n.cfg.RetryPolicy, func(ctx context.Context) error {
		return n.post(ctx, url, body)
	})
}

func (n *DiscordNotifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: building discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: discord request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: discord returned status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
