package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dgnsrekt/chatsnap/internal/api"
	"github.com/dgnsrekt/chatsnap/internal/feed"
	"github.com/dgnsrekt/chatsnap/internal/netutil"
	"github.com/spf13/cobra"
)

var (
	serveHeadless bool
	serveAuto     bool
	serveFallback int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture API",
	Long: `Attach to the editor tab and serve the capture API, the SSE event stream
and the WebSocket feed endpoint. API docs are served at /docs.

Examples:
  chatsnap serve
  chatsnap serve --auto
  CHATSNAP_FEED=memory chatsnap serve`,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().BoolVar(&serveHeadless, "headless", false, "Launch the browser headless (with CHATSNAP_LAUNCH_BROWSER)")
	serveCmd.Flags().BoolVar(&serveAuto, "auto", false, "Enable auto capture on start")
	serveCmd.Flags().IntVar(&serveFallback, "port-fallback", 10, "Following ports to try when the bind address is busy (0 disables)")
}

func serveCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("chatsnap config loaded",
		"cdp_url", cfg.CDPURL(),
		"tab_url_filter", cfg.TabURLFilter,
		"bind_addr", cfg.BindAddr,
		"feed", cfg.FeedSource,
		"auto_capture", cfg.AutoCapture || serveAuto,
		"pixel_ratio", cfg.PixelRatio,
		"export_dir", cfg.ExportDir,
		"journal_dir", cfg.JournalDir,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, netutil.NextPorts(cfg.BindAddr, serveFallback), serveFallback > 0)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		return err
	}

	a, err := newApp(ctx, cfg, appOptions{headless: serveHeadless})
	if err != nil {
		slog.Error("failed to start capture stack", "error", err)
		return err
	}
	defer a.close()
	if serveAuto {
		a.svc.SetAutoCapture(true)
	}

	h := api.NewServer(a.svc, api.Streams{
		Events: a.broker,
		Feed:   feed.NewWebSocket(a.hub, a.memory, slog.Default()),
	})
	srv := &http.Server{
		Addr:        bindAddr,
		Handler:     h,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := a.runFeed(ctx); err != nil {
			slog.Error("feed stopped", "source", cfg.FeedSource, "error", err)
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

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("chatsnap listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		slog.Error("chatsnap server failed", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("chatsnap shutdown failed", "error", err)
	}
	wg.Wait()
	return err
}
