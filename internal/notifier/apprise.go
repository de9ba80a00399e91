package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kubesentry/kubesentry/internal/version"
	"github.com/rs/zerolog"
)

// AppriseConfig points at an Apprise API server.
// With Key set, messages go to the stored configuration at /notify/{key};
// otherwise URLs are sent inline to the stateless /notify endpoint.
type AppriseConfig struct {
	APIURL string
	Key    string
	URLs   []string
}

// Apprise sends notifications through an Apprise API server
type Apprise struct {
	cfg    AppriseConfig
	logger zerolog.Logger
	client *http.Client
}

// NewApprise creates an Apprise sink
func NewApprise(cfg AppriseConfig, logger zerolog.Logger) *Apprise {
	return &Apprise{
		cfg:    cfg,
		logger: logger.With().Str("component", "apprise").Logger(),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type apprisePayload struct {
	URLs   string `json:"urls,omitempty"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Format string `json:"format"`
}

// Send posts the message to Apprise
func (a *Apprise) Send(ctx context.Context, subject, body string) error {
	endpoint := strings.TrimRight(a.cfg.APIURL, "/") + "/notify"
	payload := apprisePayload{
		Title:  subject,
		Body:   body,
		Format: "text",
	}
	if a.cfg.Key != "" {
		endpoint += "/" + a.cfg.Key
	} else {
		payload.URLs = strings.Join(a.cfg.URLs, ",")
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("apprise API error: %d - %s", resp.StatusCode, string(respBody))
	}

	a.logger.Debug().
		Str("subject", subject).
		Int("status", resp.StatusCode).
		Msg("Notification sent")
	return nil
}
