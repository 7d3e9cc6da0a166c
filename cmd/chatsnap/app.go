package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgnsrekt/chatsnap/internal/archive"
	"github.com/dgnsrekt/chatsnap/internal/browser"
	"github.com/dgnsrekt/chatsnap/internal/capture"
	"github.com/dgnsrekt/chatsnap/internal/cdpcontrol"
	"github.com/dgnsrekt/chatsnap/internal/config"
	"github.com/dgnsrekt/chatsnap/internal/controller"
	"github.com/dgnsrekt/chatsnap/internal/events"
	"github.com/dgnsrekt/chatsnap/internal/feed"
	"github.com/dgnsrekt/chatsnap/internal/history"
	"github.com/dgnsrekt/chatsnap/internal/journal"
	"github.com/dgnsrekt/chatsnap/internal/notify"
)

// app is the wired capture stack shared by every subcommand.
type app struct {
	cfg      *config.Config
	profile  config.TargetProfile
	launcher *browser.Launcher
	client   *cdpcontrol.Client
	hub      *feed.Hub
	memory   *feed.Memory
	broker   *events.Broker
	journal  *journal.Writer
	svc      *controller.Service
}

type appOptions struct {
	headless  bool
	exportDir string
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	profile, err := config.LoadTargetProfile(cfg.TargetProfile)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, profile: profile}

	if cfg.LaunchBrowser {
		a.launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
			WindowSize: cfg.WindowSize,
			Headless:   opts.headless,
		}, slog.Default())
		if err := a.launcher.Launch(ctx); err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}

	a.client = cdpcontrol.NewClient(cfg.CDPURL(), cfg.TabURLFilter, cfg.EvalTimeout, slog.Default())
	if err := a.client.Connect(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("connect to editor tab: %w", err)
	}
	tab := a.client.Tab()
	slog.Info("attached to editor tab", "target_id", tab.TargetID, "url", tab.URL, "title", tab.Title)

	page := cdpcontrol.NewPage(a.client, profile.Target)
	conv := cdpcontrol.NewConverter(cfg.CDPURL(), page, cfg.RasterTimeout, slog.Default())
	raster := capture.NewRasterizer(conv, capture.RasterizerOptions{
		Selector:   profile.Target.Root,
		Style:      profile.Clone,
		PixelRatio: cfg.PixelRatio,
		Background: cfg.Background,
	}, slog.Default())

	store := history.NewStore()
	pipeline := capture.NewPipeline(page, raster, store, capture.PipelineOptions{
		MediaTimeout: cfg.MediaTimeout,
		Settle: capture.SettleOptions{
			MaxFrames: cfg.SettleMaxFrames,
			Tolerance: cfg.SettleTolerance,
		},
	}, slog.Default())

	a.journal = journal.NewWriter(cfg.JournalDir, "captures", cfg.JournalBufferSize, cfg.JournalMaxSizeMB)
	pipeline.OnAttempt(a.journal.Observer())

	trigger := capture.NewTrigger(pipeline, slog.Default())
	trigger.SetEnabled(cfg.AutoCapture)

	a.hub = feed.NewHub()
	if cfg.FeedSource == config.FeedMemory {
		a.memory = feed.NewMemory(a.hub)
	}
	a.broker = events.NewBroker()

	exportDir := cfg.ExportDir
	if opts.exportDir != "" {
		exportDir = opts.exportDir
	}
	a.svc = controller.NewService(controller.Deps{
		Pipeline: pipeline,
		Trigger:  trigger,
		History:  store,
		Exporter: archive.NewExporter(),
		Sink:     archive.DirSink{Dir: exportDir},
		Events:   a.broker,
		Feed:     a.hub,
		Memory:   a.memory,
		Profile:  profile,
		Logger:   slog.Default(),
	})

	a.checkBox(ctx)
	return a, nil
}

// checkBox warns when the live phone frame is not the configured preset.
func (a *app) checkBox(ctx context.Context) {
	st := a.svc.Status(ctx)
	switch {
	case st.BoxError != "":
		slog.Warn("capture target not measurable yet", "error", st.BoxError)
	case !st.BoxMatches:
		slog.Warn("capture target does not match the aspect preset",
			"aspect", st.Aspect,
			"expected_width", st.ExpectedBox.Width, "expected_height", st.ExpectedBox.Height,
			"width", st.Box.Width, "height", st.Box.Height)
	default:
		slog.Info("capture target matches preset", "aspect", st.Aspect, "width", st.Box.Width, "height", st.Box.Height)
	}
}

// runFeed drives the hub from the configured feed source until ctx ends.
// The memory feed is written through the API, so nothing runs for it.
func (a *app) runFeed(ctx context.Context) error {
	switch a.cfg.FeedSource {
	case config.FeedDOM:
		return cdpcontrol.NewDOMFeed(a.client, a.profile.Target, a.hub, cdpcontrol.DefaultFeedRecheck, slog.Default()).Run(ctx)
	case config.FeedFile:
		return feed.NewFile(a.cfg.FeedFile, a.hub, slog.Default()).Run(ctx)
	default:
		<-ctx.Done()
		return nil
	}
}

// runNotifier forwards archive and failure events to CHATSNAP_NOTIFY_URL.
func (a *app) runNotifier(ctx context.Context) {
	if a.cfg.NotifyURL == "" {
		return
	}
	notify.NewNotifier(a.cfg.NotifyURL, &http.Client{Timeout: 10 * time.Second}, slog.Default()).Run(ctx, a.broker)
}

func (a *app) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			slog.Debug("journal close failed", "error", err)
		}
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}
	if a.launcher != nil && a.launcher.Running() {
		a.launcher.Stop()
	}
}

func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
