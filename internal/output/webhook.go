// Package output delivers incident notifications to configured channels.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"vigil/internal/config"
	"vigil/internal/models"
)

// WebhookSender handles the dispatch of rich-text incident notifications to an incoming webhook.
type WebhookSender struct {
	webhookURL string
	client     *http.Client
}

// NewWebhookSender initializes a WebhookSender with a configured webhook URL and HTTP client.
func NewWebhookSender(webhookURL string) *WebhookSender {
	return &WebhookSender{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewWebhookSenderFromConfig constructs a WebhookSender using the provided configuration block.
func NewWebhookSenderFromConfig(cfg config.OutputConfig) *WebhookSender {
	if !cfg.Enabled {
		return NewWebhookSender("")
	}
	return NewWebhookSender(cfg.WebhookURL)
}

// Block represents a message block
type Block struct {
	Type   string  `json:"type"`
	Text   *Text   `json:"text,omitempty"`
	Fields []Field `json:"fields,omitempty"`
}

// Text represents formatted text in a block
type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Field represents a field in a block
type Field struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Message represents a webhook message
type Message struct {
	Blocks []Block `json:"blocks"`
}

// SendIncident sends a flagged incident to the configured webhook.
func (s *WebhookSender) SendIncident(incident *models.Incident) error {
	if s.webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	message := s.buildMessage(incident)
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status: %d", resp.StatusCode)
	}

	return nil
}

// buildMessage constructs a visually formatted block payload from an incident.
func (s *WebhookSender) buildMessage(incident *models.Incident) Message {
	emoji := "🚨"
	severity := models.SeverityError
	if len(incident.Events) > 0 {
		severity = incident.Events[0].Severity
	}
	if severity == models.SeverityWarning {
		emoji = "⚠️"
	}

	diagnosis := incident.Diagnosis
	if diagnosis == "" {
		diagnosis = "_Diagnosis pending._"
	}

	return Message{
		Blocks: []Block{
			{
				Type: "header",
				Text: &Text{
					Type: "plain_text",
					Text: fmt.Sprintf("%s Incident detected", emoji),
				},
			},
			{
				Type: "section",
				Fields: []Field{
					{
						Type: "mrkdwn",
						Text: fmt.Sprintf("*Severity:*\n%s", severity),
					},
					{
						Type: "mrkdwn",
						Text: fmt.Sprintf("*Related spans:*\n%d", len(incident.Spans)),
					},
				},
			},
			{
				Type: "section",
				Text: &Text{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Why flagged:*\n%s", incident.Reason),
				},
			},
			{
				Type: "section",
				Text: &Text{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*AI Diagnosis:*\n%s", diagnosis),
				},
			},
			{
				Type: "context",
				Fields: []Field{
					{
						Type: "mrkdwn",
						Text: fmt.Sprintf("Detected at: %s | ID: %s", incident.CreatedAt.Format(time.RFC3339), incident.ID),
					},
				},
			},
		},
	}
}
