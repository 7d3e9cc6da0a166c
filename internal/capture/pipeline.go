package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/chatsnap/internal/history"
)

// Scroll modes for a capture.
const (
	ModeBottom  = "bottom"
	ModeCurrent = "current"
	ModeOffset  = "offset"
)

// Capture sources.
const (
	SourceManual = "manual"
	SourceAuto   = "auto"
)

// CaptureOptions selects where the viewport sits when the still is taken.
type CaptureOptions struct {
	Mode   string  `json:"mode"`
	Offset float64 `json:"offset"`
	Source string  `json:"source"`
}

func (o CaptureOptions) normalized() (CaptureOptions, error) {
	if o.Mode == "" {
		o.Mode = ModeBottom
	}
	if o.Source == "" {
		o.Source = SourceManual
	}
	switch o.Mode {
	case ModeBottom, ModeCurrent:
	case ModeOffset:
		if o.Offset < 0 {
			return o, NewError(CodeValidation, "offset must be >= 0", nil)
		}
	default:
		return o, NewError(CodeValidation, fmt.Sprintf("unknown capture mode %q", o.Mode), nil)
	}
	switch o.Source {
	case SourceManual, SourceAuto:
	default:
		return o, NewError(CodeValidation, fmt.Sprintf("unknown capture source %q", o.Source), nil)
	}
	return o, nil
}

// Recorder receives finished screenshots.
type Recorder interface {
	Add(shot history.Screenshot) (history.Screenshot, error)
}

// Attempt describes one finished capture, successful or not.
type Attempt struct {
	Options   CaptureOptions      `json:"options"`
	StartedAt time.Time           `json:"started_at"`
	Duration  time.Duration       `json:"duration"`
	Settle    SettleResult        `json:"settle"`
	Bubbles   int                 `json:"bubbles"`
	Shot      *history.Screenshot `json:"shot,omitempty"`
	Err       error               `json:"-"`
}

// Observer is notified after every attempt that acquired the lock.
type Observer func(Attempt)

// PipelineOptions tunes a Pipeline. Zero values pick defaults.
type PipelineOptions struct {
	MediaTimeout time.Duration
	Settle       SettleOptions
}

// Pipeline runs captures one at a time against a Surface.
type Pipeline struct {
	lock      Lock
	surface   Surface
	readiness *Readiness
	baker     *Baker
	raster    *Rasterizer
	recorder  Recorder
	settle    SettleOptions
	logger    *slog.Logger

	mu        sync.RWMutex
	observers []Observer
}

func NewPipeline(surface Surface, raster *Rasterizer, recorder Recorder, opts PipelineOptions, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Settle.MaxFrames <= 0 {
		opts.Settle = DefaultSettleOptions()
	}
	return &Pipeline{
		surface:   surface,
		readiness: NewReadiness(surface, surface, opts.MediaTimeout, logger),
		baker:     NewBaker(surface, logger),
		raster:    raster,
		recorder:  recorder,
		settle:    opts.Settle,
		logger:    logger,
	}
}

// Busy reports whether a capture holds the lock.
func (p *Pipeline) Busy() bool { return p.lock.Held() }

// Readiness is the coordinator the pipeline waits on.
func (p *Pipeline) Readiness() *Readiness { return p.readiness }

// Surface is the live target the pipeline captures.
func (p *Pipeline) Surface() Surface { return p.surface }

// OnAttempt registers an observer.
func (p *Pipeline) OnAttempt(fn Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

func (p *Pipeline) notify(a Attempt) {
	p.mu.RLock()
	obs := append([]Observer(nil), p.observers...)
	p.mu.RUnlock()
	for _, fn := range obs {
		fn(a)
	}
}

// Capture takes one screenshot and appends it to the recorder. It returns
// ErrBusy without side effects when another capture is in flight. The target
// is restored before the lock is released on every path.
func (p *Pipeline) Capture(ctx context.Context, opts CaptureOptions) (history.Screenshot, error) {
	opts, err := opts.normalized()
	if err != nil {
		return history.Screenshot{}, err
	}
	if !p.lock.TryAcquire() {
		return history.Screenshot{}, ErrBusy
	}
	defer p.lock.Release()

	att := Attempt{Options: opts, StartedAt: time.Now().UTC()}
	shot, err := p.run(ctx, &att)
	att.Duration = time.Since(att.StartedAt)
	att.Err = err
	if err == nil {
		att.Shot = &shot
		p.logger.Info("capture: stored", "id", shot.ID, "source", opts.Source, "mode", opts.Mode,
			"width", shot.Width, "height", shot.Height, "scroll_top", shot.ScrollTop,
			"settle", att.Settle.Reason, "duration_ms", att.Duration.Milliseconds())
	} else {
		p.logger.Error("capture: failed", "source", opts.Source, "mode", opts.Mode, "error", err)
	}
	p.notify(att)
	return shot, err
}

func (p *Pipeline) run(ctx context.Context, att *Attempt) (history.Screenshot, error) {
	box, err := p.surface.Box(ctx)
	if err != nil {
		return history.Screenshot{}, NewError(CodeTargetNotFound, "read capture target box", err)
	}
	ms, err := p.surface.MeasureBubbles(ctx)
	if err != nil {
		return history.Screenshot{}, NewError(CodeTargetNotFound, "measure bubbles", err)
	}
	att.Bubbles = len(ms)

	backup, err := p.surface.Presentation(ctx)
	if err != nil {
		return history.Screenshot{}, NewError(CodeTargetNotFound, "read viewport presentation", err)
	}

	p.readiness.AwaitImages(ctx)

	target, err := p.scroll(ctx, att.Options)
	if err != nil {
		return history.Screenshot{}, err
	}
	att.Settle = AwaitScrollSettled(ctx, p.surface, p.surface, target, p.settle)
	p.logger.Debug("capture: scroll settled", "target", target, "offset", att.Settle.Offset,
		"frames", att.Settle.Frames, "reason", att.Settle.Reason)

	var (
		raster Raster
		state  ScrollState
	)
	err = p.baker.WithBackup(ctx, backup, func(ctx context.Context, bk *Bake) error {
		state = bk.State()
		p.readiness.AwaitStable(ctx)
		r, err := p.raster.Capture(ctx, box, ms)
		if err != nil {
			return err
		}
		raster = r
		return nil
	})
	if err != nil {
		var coded *CodedError
		if !errors.As(err, &coded) {
			err = NewError(CodeRasterFailure, "bake capture target", err)
		}
		return history.Screenshot{}, err
	}

	shot, err := p.recorder.Add(history.Screenshot{
		ID:         history.NewID(),
		Payload:    raster.Payload,
		Width:      raster.Width,
		Height:     raster.Height,
		PixelRatio: raster.PixelRatio,
		ScrollTop:  state.ScrollTop,
		Bubbles:    len(ms),
		SizeBytes:  len(raster.Payload),
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return history.Screenshot{}, NewError(CodeValidation, "record screenshot", err)
	}
	return shot, nil
}

// scroll moves the viewport per opts and returns the offset to settle on.
func (p *Pipeline) scroll(ctx context.Context, opts CaptureOptions) (float64, error) {
	switch opts.Mode {
	case ModeBottom:
		if err := p.surface.ScrollToBottom(ctx); err != nil {
			p.logger.Warn("capture: scroll to bottom failed", "error", err)
		}
	case ModeOffset:
		if err := p.surface.ScrollTo(ctx, opts.Offset); err != nil {
			p.logger.Warn("capture: scroll to offset failed", "offset", opts.Offset, "error", err)
		}
	}

	state, err := p.surface.ScrollState(ctx)
	if err != nil {
		return 0, NewError(CodeTargetNotFound, "read scroll state", err)
	}
	switch opts.Mode {
	case ModeBottom:
		return state.MaxScrollTop(), nil
	case ModeOffset:
		return ScrollState{
			ScrollTop:      opts.Offset,
			ViewportHeight: state.ViewportHeight,
			ContentHeight:  state.ContentHeight,
		}.Clamp().ScrollTop, nil
	default:
		return state.ScrollTop, nil
	}
}
