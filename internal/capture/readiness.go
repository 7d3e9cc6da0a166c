package capture

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMediaTimeout bounds the wait for any single image.
const DefaultMediaTimeout = 3 * time.Second

// Readiness waits until media and fonts are loaded and layout has settled.
// None of its waits fail; problems are logged and the pipeline moves on.
type Readiness struct {
	media   MediaWaiter
	frames  FrameWaiter
	timeout time.Duration
	logger  *slog.Logger
}

// NewReadiness creates a Readiness. A non-positive timeout selects DefaultMediaTimeout.
func NewReadiness(media MediaWaiter, frames FrameWaiter, timeout time.Duration, logger *slog.Logger) *Readiness {
	if timeout <= 0 {
		timeout = DefaultMediaTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Readiness{media: media, frames: frames, timeout: timeout, logger: logger}
}

// AwaitReady runs the full sequence: images, fonts, then one frame pair.
func (r *Readiness) AwaitReady(ctx context.Context) {
	r.AwaitImages(ctx)
	r.AwaitStable(ctx)
}

// AwaitImages waits for every image in the content wrapper concurrently.
// Each image gets its own timeout so one broken image cannot stall the rest.
func (r *Readiness) AwaitImages(ctx context.Context) {
	n, err := r.media.Images(ctx)
	if err != nil {
		r.logger.Debug("readiness: image listing failed", "error", err)
		return
	}
	if n == 0 {
		return
	}

	start := time.Now()
	var wg sync.WaitGroup
	var unready atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			imgCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			if err := r.media.AwaitImage(imgCtx, i); err != nil {
				unready.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if u := unready.Load(); u > 0 {
		r.logger.Debug("readiness: images treated as ready after wait", "images", n, "unready", u)
	}
	r.logger.Debug("readiness: images settled", "images", n, "elapsed_ms", time.Since(start).Milliseconds())
}

// AwaitStable waits for fonts and then yields one frame pair so reflow is
// committed before measurement.
func (r *Readiness) AwaitStable(ctx context.Context) {
	if err := r.media.AwaitFonts(ctx); err != nil {
		r.logger.Debug("readiness: font wait failed", "error", err)
	}
	if err := r.frames.NextFrame(ctx); err != nil {
		r.logger.Debug("readiness: frame wait failed", "error", err)
	}
}
