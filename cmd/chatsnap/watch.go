package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dgnsrekt/chatsnap/internal/capture"
	"github.com/dgnsrekt/chatsnap/internal/config"
	"github.com/dgnsrekt/chatsnap/internal/controller"
	"github.com/dgnsrekt/chatsnap/internal/events"
	"github.com/spf13/cobra"
)

var (
	watchFeed    string
	watchArchive bool
	watchEach    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Auto capture on every new message until interrupted",
	Long: `Attach to the editor tab with auto capture on and take a screenshot each
time the message feed grows. On exit the session is written as one zip.

Examples:
  chatsnap watch
  chatsnap watch --feed file
  chatsnap watch --each --archive=false`,
	RunE: watchCommand,
}

func init() {
	watchCmd.Flags().StringVar(&watchFeed, "feed", "", "Feed source: dom or file (default CHATSNAP_FEED)")
	watchCmd.Flags().BoolVar(&watchArchive, "archive", true, "Write every capture as a zip on exit")
	watchCmd.Flags().BoolVar(&watchEach, "each", false, "Write each capture as it is taken")
}

func watchCommand(cmd *cobra.Command, args []string) error {
	if watchFeed != "" {
		cfg.FeedSource = watchFeed
	}
	switch cfg.FeedSource {
	case config.FeedDOM, config.FeedFile:
	default:
		return fmt.Errorf("watch needs a dom or file feed, got %q", cfg.FeedSource)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()
	a.svc.SetAutoCapture(true)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		if err := a.runFeed(ctx); err != nil {
			slog.Error("feed stopped", "source", cfg.FeedSource, "error", err)
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		a.svc.RunFeed(ctx)
	}()
	go func() {
		defer wg.Done()
		a.runNotifier(ctx)
	}()
	go func() {
		defer wg.Done()
		reportCaptures(ctx, a.svc, a.broker)
	}()

	slog.Info("watching for new messages", "feed", cfg.FeedSource)
	<-ctx.Done()
	wg.Wait()

	if !watchArchive {
		return nil
	}
	res, err := a.svc.SaveArchive(context.WithoutCancel(ctx))
	if capture.HasCode(err, capture.CodeEmptyHistory) {
		slog.Info("no captures taken")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Location)
	return nil
}

// reportCaptures logs each stored capture and, with --each, writes it out.
func reportCaptures(ctx context.Context, svc *controller.Service, broker *events.Broker) {
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
			if evt.Kind != events.KindCaptureStored {
				continue
			}
			var env struct {
				Data controller.CaptureInfo `json:"data"`
			}
			if err := json.Unmarshal([]byte(evt.Payload), &env); err != nil {
				continue
			}
			info := env.Data
			slog.Info("auto capture stored", "position", info.Position, "id", info.ID, "bubbles", info.Bubbles)
			if !watchEach {
				continue
			}
			if loc, err := svc.SaveCapture(ctx, info.ID); err != nil {
				slog.Warn("write capture failed", "id", info.ID, "error", err)
			} else {
				slog.Info("capture written", "path", loc)
			}
		}
	}
}
