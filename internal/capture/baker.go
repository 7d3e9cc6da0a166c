package capture

import (
	"context"
	"log/slog"
	"sync"
)

// Baker converts a live scroll offset into an equivalent transform on the
// content wrapper, so a rasterizer that ignores scroll offsets still sees the
// visible slice.
type Baker struct {
	viewport Viewport
	logger   *slog.Logger
}

// NewBaker creates a Baker for the given viewport.
func NewBaker(viewport Viewport, logger *slog.Logger) *Baker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Baker{viewport: viewport, logger: logger}
}

// Bake is the handle for one baked capture session. Release restores the
// presentation recorded at bake time; it runs at most once.
type Bake struct {
	viewport Viewport
	logger   *slog.Logger
	backup   Presentation
	state    ScrollState
	once     sync.Once
}

// BakedPresentation is the presentation applied for a given scroll state.
func BakedPresentation(s ScrollState) Presentation {
	return Presentation{
		ViewportOverflow:  "hidden",
		ViewportHeight:    formatPx(s.ViewportHeight),
		ViewportScrollTop: 0,
		ContentTransform:  "translate3d(0, -" + formatPx(s.ScrollTop) + ", 0)",
		ContentWillChange: "transform",
	}
}

// Bake records the current presentation and scroll state and then pins the
// viewport. If applying fails the backup is restored before returning.
func (b *Baker) Bake(ctx context.Context) (*Bake, error) {
	backup, err := b.viewport.Presentation(ctx)
	if err != nil {
		return nil, err
	}
	return b.BakeOver(ctx, backup)
}

// BakeOver bakes the current scroll state but restores to backup, a
// presentation recorded earlier (before the pipeline scrolled the viewport).
func (b *Baker) BakeOver(ctx context.Context, backup Presentation) (*Bake, error) {
	state, err := b.viewport.ScrollState(ctx)
	if err != nil {
		return nil, err
	}
	state = state.Clamp()

	bk := &Bake{viewport: b.viewport, logger: b.logger, backup: backup, state: state}
	if err := b.viewport.ApplyPresentation(ctx, BakedPresentation(state)); err != nil {
		bk.Release(context.WithoutCancel(ctx))
		return nil, err
	}
	b.logger.Debug("baker: baked", "scroll_top", state.ScrollTop, "viewport_height", state.ViewportHeight)
	return bk, nil
}

// State is the scroll state recorded at bake time.
func (bk *Bake) State() ScrollState { return bk.state }

// Backup is the presentation Release restores.
func (bk *Bake) Backup() Presentation { return bk.backup }

// Release restores the backup. Failures are logged and never returned.
func (bk *Bake) Release(ctx context.Context) {
	bk.once.Do(func() {
		if err := bk.viewport.ApplyPresentation(ctx, bk.backup); err != nil {
			bk.logger.Warn("baker: restore failed", "error", err)
		}
	})
}

// With bakes, runs fn, and restores on every exit path including panics.
// The restore runs even when ctx was canceled during fn.
func (b *Baker) With(ctx context.Context, fn func(ctx context.Context, bk *Bake) error) error {
	bk, err := b.Bake(ctx)
	if err != nil {
		return err
	}
	defer bk.Release(context.WithoutCancel(ctx))
	return fn(ctx, bk)
}

// WithBackup is With, restoring to backup instead of the presentation
// current at bake time.
func (b *Baker) WithBackup(ctx context.Context, backup Presentation, fn func(ctx context.Context, bk *Bake) error) error {
	bk, err := b.BakeOver(ctx, backup)
	if err != nil {
		return err
	}
	defer bk.Release(context.WithoutCancel(ctx))
	return fn(ctx, bk)
}
