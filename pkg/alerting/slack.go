package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/slack-go/slack"
)

var slackColors = map[Severity]string{
	SeverityInfo:     "#36a64f",
	SeverityWarning:  "#ff9800",
	SeverityError:    "#f44336",
	SeverityCritical: "#9c27b0",
}

// SlackChannel posts alerts to a Slack incoming webhook as colored
// attachments.
type SlackChannel struct {
	webhookURL string
	post       func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

// NewSlackChannel creates a Slack webhook channel. Returns nil for an empty
// URL.
func NewSlackChannel(webhookURL string) *SlackChannel {
	if webhookURL == "" {
		return nil
	}
	return &SlackChannel{
		webhookURL: webhookURL,
		post:       slack.PostWebhookContext,
	}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Send(ctx context.Context, alert Alert) error {
	attachment := slack.Attachment{
		Color:  slackColors[alert.Severity],
		Title:  fmt.Sprintf("[%s] %s", alert.Severity, alert.Title),
		Text:   alert.Message,
		Fields: detailFields(alert.Details),
		Footer: "curator",
		Ts:     json.Number(fmt.Sprintf("%d", alert.Timestamp.Unix())),
	}
	return c.post(ctx, c.webhookURL, &slack.WebhookMessage{
		Attachments: []slack.Attachment{attachment},
	})
}

func detailFields(details map[string]string) []slack.AttachmentField {
	if len(details) == 0 {
		return nil
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]slack.AttachmentField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, slack.AttachmentField{Title: k, Value: details[k], Short: true})
	}
	return fields
}
