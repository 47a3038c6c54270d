package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{client: newClient(), webhookURL: webhookURL}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	var links []string
	for _, v := range n.top() {
		links = append(links, fmt.Sprintf("• [%s](%s) %.2f", v.Title, v.Link, v.NormRating))
	}

	embed := map[string]any{
		"title":       n.Title,
		"description": fmt.Sprintf("**Query:** %s | **State:** %s\n\n%s\n\n%s", n.Query, n.State, n.Body, strings.Join(links, "\n")),
		"color":       0x3FA7D6,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(map[string]any{"embeds": []map[string]any{embed}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}
	return post(ctx, d.client, "discord webhook", d.webhookURL, body, nil)
}
