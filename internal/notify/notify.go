// Package notify pushes archive and failure events to an ntfy topic.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dgnsrekt/chatsnap/internal/events"
)

// Send posts message to endpoint. A non-empty title is sent as the ntfy Title header.
func Send(ctx context.Context, client *http.Client, endpoint, title, message string) error {
	if endpoint == "" {
		return errors.New("notify: endpoint is empty")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
	}

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

// Notifier forwards selected broker events to an ntfy endpoint.
type Notifier struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func NewNotifier(endpoint string, client *http.Client, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{endpoint: endpoint, client: client, logger: logger}
}

// Run subscribes to broker and sends a notification for every exported
// archive and failed capture until ctx ends.
func (n *Notifier) Run(ctx context.Context, broker *events.Broker) {
	id, ch := broker.Subscribe()
	defer broker.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			title, msg, ok := Format(evt)
			if !ok {
				continue
			}
			if err := Send(ctx, n.client, n.endpoint, title, msg); err != nil {
				n.logger.Warn("notification failed", "kind", evt.Kind, "error", err)
			}
		}
	}
}

// Format renders evt as a notification. ok is false for kinds that are not forwarded.
func Format(evt events.Event) (title, message string, ok bool) {
	switch evt.Kind {
	case events.KindArchiveExport:
		var env struct {
			Data struct {
				Name     string `json:"name"`
				Entries  int    `json:"entries"`
				Location string `json:"location"`
			} `json:"data"`
		}
		if err := json.Unmarshal([]byte(evt.Payload), &env); err != nil {
			return "", "", false
		}
		return "chatsnap archive written",
			fmt.Sprintf("%d screenshots saved to %s", env.Data.Entries, env.Data.Location), true
	case events.KindCaptureFailed:
		var env struct {
			Data struct {
				Source string `json:"source"`
				Code   string `json:"code"`
				Error  string `json:"error"`
			} `json:"data"`
		}
		if err := json.Unmarshal([]byte(evt.Payload), &env); err != nil {
			return "", "", false
		}
		return "chatsnap capture failed",
			fmt.Sprintf("%s capture failed (%s): %s", env.Data.Source, env.Data.Code, env.Data.Error), true
	}
	return "", "", false
}
