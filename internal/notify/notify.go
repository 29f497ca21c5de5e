// Package notify pushes plain-text operational alerts to an NTFY-compatible
// endpoint.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Notifier sends alerts to a fixed endpoint. A nil *Notifier or an empty
// endpoint silently discards messages, so callers can fire alerts without
// checking whether notifications are configured.
type Notifier struct {
	endpoint string
	client   *http.Client
}

// New builds a notifier for the given endpoint. Empty endpoint disables it.
func New(endpoint string) *Notifier {
	return &Notifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify sends message, logging instead of returning on failure. Alerting is
// best-effort and never propagates errors into the capture path.
func (n *Notifier) Notify(ctx context.Context, message string) {
	if n == nil || n.endpoint == "" {
		return
	}
	if err := Send(ctx, n.client, n.endpoint, message); err != nil {
		slog.Warn("notification failed", "error", err)
	}
}

// Send posts a plain-text message to the requested endpoint.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
