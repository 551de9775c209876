package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

var client *http.Client
var topic string
var initialized bool

// baseURL is swapped for an httptest server in tests.
var baseURL = "https://ntfy.sh"

// Init initializes the notification client
func Init(ntfyTopic string) {
	if ntfyTopic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		return
	}

	client = &http.Client{
		Timeout: 10 * time.Second,
	}
	topic = ntfyTopic
	initialized = true

	log.Info().
		Str("topic", topic).
		Msg("Ntfy notifications initialized")
}

func Enabled() bool {
	return initialized
}

// Send posts a default-priority notification to the configured ntfy topic.
func Send(title, message string) error {
	return SendAlert(title, message, 0)
}

// SendAlert posts a notification with an ntfy priority (1 to 5, 0 for the server
// default) and optional emoji tags.
func SendAlert(title, message string, priority int, tags ...string) error {
	if !initialized {
		return fmt.Errorf("notifications not initialized")
	}

	payload := map[string]interface{}{
		"topic":   topic,
		"title":   title,
		"message": message,
	}
	if priority > 0 {
		payload["priority"] = priority
	}
	if len(tags) > 0 {
		payload["tags"] = tags
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	// ntfy's JSON publishing endpoint is the server root; the topic travels in the body
	resp, err := client.Post(baseURL, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("priority", priority).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}

// Ntfy adapts the package-level client to the acquisition health notifier.
type Ntfy struct {
	Priority int
	Tags     []string
}

func (n Ntfy) Send(title, message string) error {
	return SendAlert(title, message, n.Priority, n.Tags...)
}
