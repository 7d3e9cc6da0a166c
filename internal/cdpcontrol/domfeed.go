package cdpcontrol

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/chatsnap/internal/capture"
	"github.com/dgnsrekt/chatsnap/internal/feed"
)

// FeedBinding is the page function the bubble observer reports through.
const FeedBinding = "__chatsnapFeed"

// DefaultFeedRecheck is how often DOMFeed checks that its observer survived
// page reloads and re-renders of the content wrapper.
const DefaultFeedRecheck = 2 * time.Second

// Binder exposes a page function whose calls reach fn. *Client satisfies it.
type Binder interface {
	Evaluator
	Bind(ctx context.Context, name string, fn func(payload string)) (func(), error)
}

// DOMFeed publishes the live bubble count of the editor to a feed.Hub.
type DOMFeed struct {
	client  Binder
	target  capture.Target
	hub     *feed.Hub
	recheck time.Duration
	logger  *slog.Logger
}

func NewDOMFeed(client Binder, target capture.Target, hub *feed.Hub, recheck time.Duration, logger *slog.Logger) *DOMFeed {
	if recheck <= 0 {
		recheck = DefaultFeedRecheck
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DOMFeed{client: client, target: target.WithDefaults(), hub: hub, recheck: recheck, logger: logger}
}

type observerState struct {
	Installed bool `json:"installed"`
	Count     int  `json:"count"`
}

// Run installs the observer and keeps it installed until ctx ends.
func (f *DOMFeed) Run(ctx context.Context) error {
	unbind, err := f.client.Bind(ctx, FeedBinding, f.onPayload)
	if err != nil {
		return err
	}
	defer unbind()

	f.install(ctx)
	ticker := time.NewTicker(f.recheck)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.install(ctx)
		}
	}
}

func (f *DOMFeed) install(ctx context.Context) {
	var st observerState
	if err := f.client.Eval(ctx, jsInstallFeedObserver(f.target, FeedBinding), &st); err != nil {
		if ctx.Err() == nil {
			f.logger.Debug("dom feed: install failed", "error", err)
		}
		return
	}
	if st.Installed {
		f.logger.Info("dom feed: observer installed", "count", st.Count)
	}
}

func (f *DOMFeed) onPayload(payload string) {
	n, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil || n < 0 {
		f.logger.Debug("dom feed: bad payload", "payload", payload)
		return
	}
	f.hub.Publish(n)
}
