package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// TriggerState is the auto-capture state machine state.
type TriggerState int32

const (
	Idle TriggerState = iota
	CaptureInFlight
)

func (s TriggerState) String() string {
	switch s {
	case Idle:
		return "idle"
	case CaptureInFlight:
		return "capture_in_flight"
	default:
		return "unknown"
	}
}

// Trigger watches the message feed length and captures after each append.
// Appends that arrive while a run is in flight start nothing; the run already
// scrolls to the newest content.
type Trigger struct {
	pipeline *Pipeline
	logger   *slog.Logger

	state   atomic.Int32
	enabled atomic.Bool

	mu      sync.Mutex
	seen    bool
	prevLen int
	wg      sync.WaitGroup
}

// NewTrigger creates a disabled trigger bound to p.
func NewTrigger(p *Pipeline, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{pipeline: p, logger: logger}
}

func (t *Trigger) SetEnabled(on bool) { t.enabled.Store(on) }

func (t *Trigger) Enabled() bool { return t.enabled.Load() }

func (t *Trigger) State() TriggerState { return TriggerState(t.state.Load()) }

// Observe records a new feed length and reports whether a capture run started.
// The first observation and any non-increase only record the length.
func (t *Trigger) Observe(ctx context.Context, length int) bool {
	t.mu.Lock()
	first := !t.seen
	grew := length > t.prevLen
	t.seen = true
	t.prevLen = length
	t.mu.Unlock()

	if first || !grew {
		return false
	}
	if !t.state.CompareAndSwap(int32(Idle), int32(CaptureInFlight)) {
		t.logger.Debug("trigger: append during in-flight run ignored", "length", length)
		return false
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.state.Store(int32(Idle))
		t.run(context.WithoutCancel(ctx), length)
	}()
	return true
}

func (t *Trigger) run(ctx context.Context, length int) {
	surface := t.pipeline.Surface()
	t.pipeline.Readiness().AwaitImages(ctx)
	if err := surface.ScrollToBottom(ctx); err != nil {
		t.logger.Warn("trigger: scroll to bottom failed", "error", err)
	}
	if err := surface.NextFrame(ctx); err != nil {
		t.logger.Debug("trigger: frame wait failed", "error", err)
	}

	if !t.Enabled() {
		t.logger.Debug("trigger: auto-capture disabled", "length", length)
		return
	}
	if t.pipeline.Busy() {
		t.logger.Debug("trigger: pipeline busy, skipping", "length", length)
		return
	}
	_, err := t.pipeline.Capture(ctx, CaptureOptions{Mode: ModeBottom, Source: SourceAuto})
	switch {
	case err == nil:
	case errors.Is(err, ErrBusy):
		t.logger.Debug("trigger: pipeline busy, skipping", "length", length)
	default:
		t.logger.Error("trigger: auto-capture failed", "length", length, "error", err)
	}
}

// Run feeds lengths from ch into Observe until ch closes or ctx ends.
func (t *Trigger) Run(ctx context.Context, ch <-chan int) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			t.Observe(ctx, n)
		}
	}
}

// Wait blocks until every started run has finished.
func (t *Trigger) Wait() { t.wg.Wait() }
