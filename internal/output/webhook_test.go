package output

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/config"
	"vigil/internal/models"
)

func testIncident() *models.Incident {
	return &models.Incident{
		ID:        "inc-1",
		ProjectID: "proj-1",
		Reason:    "error rate spiked above threshold 3x",
		Diagnosis: "upstream outage",
		CreatedAt: time.Unix(1700000000, 0),
		Events: []models.Event{{
			Severity: models.SeverityError,
			Message:  "HTTP 500 from upstream",
		}},
		Spans: []models.Span{{TraceID: "t1", SpanID: "s1"}},
	}
}

func TestSendIncident(t *testing.T) {
	var got Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewWebhookSender(server.URL)

	require.NoError(t, sender.SendIncident(testIncident()))
	require.NotEmpty(t, got.Blocks)

	var all string
	for _, block := range got.Blocks {
		if block.Text != nil {
			all += block.Text.Text + "\n"
		}
		for _, field := range block.Fields {
			all += field.Text + "\n"
		}
	}
	assert.Contains(t, all, "error rate spiked above threshold 3x")
	assert.Contains(t, all, "upstream outage")
	assert.Contains(t, all, "inc-1")
}

func TestSendIncidentServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad channel", http.StatusNotFound)
	}))
	defer server.Close()

	sender := NewWebhookSender(server.URL)

	err := sender.SendIncident(testIncident())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestSendIncidentWithoutURL(t *testing.T) {
	sender := NewWebhookSender("")

	assert.Error(t, sender.SendIncident(testIncident()))
}

func TestNewWebhookSenderFromConfig(t *testing.T) {
	sender := NewWebhookSenderFromConfig(config.OutputConfig{
		Enabled:    true,
		WebhookURL: "https://hooks.example.com/T000/B000",
	})
	assert.Equal(t, "https://hooks.example.com/T000/B000", sender.webhookURL)

	disabled := NewWebhookSenderFromConfig(config.OutputConfig{
		Enabled:    false,
		WebhookURL: "https://hooks.example.com/T000/B000",
	})
	assert.Equal(t, "", disabled.webhookURL)
}

func TestBuildMessagePendingDiagnosis(t *testing.T) {
	sender := NewWebhookSender("unused")

	incident := testIncident()
	incident.Diagnosis = ""
	message := sender.buildMessage(incident)

	var all string
	for _, block := range message.Blocks {
		if block.Text != nil {
			all += block.Text.Text + "\n"
		}
	}
	assert.Contains(t, all, "Diagnosis pending")
}
