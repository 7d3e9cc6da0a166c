package capture

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dgnsrekt/chatsnap/internal/history"
)

func newTestPipeline(s *fakeSurface, conv *fakeConverter, store *history.Store) *Pipeline {
	r := NewRasterizer(conv, RasterizerOptions{}, discardLogger())
	return NewPipeline(s, r, store, PipelineOptions{}, discardLogger())
}

func TestPipelineCaptureStoresScreenshot(t *testing.T) {
	s := newFakeSurface(3)
	store := history.NewStore()
	p := newTestPipeline(s, newFakeConverter(3), store)

	shot, err := p.Capture(context.Background(), CaptureOptions{})
	if err != nil {
		t.Fatalf("Capture() = %v", err)
	}
	if !history.ValidID(shot.ID) {
		t.Fatalf("ID = %q; want uuid", shot.ID)
	}
	if shot.Width != 750 || shot.Height != 1624 || shot.PixelRatio != 2 {
		t.Fatalf("shot = %+v", shot)
	}
	if shot.ScrollTop != 800 {
		t.Fatalf("ScrollTop = %v; want bottom (800)", shot.ScrollTop)
	}
	if shot.Bubbles != 3 {
		t.Fatalf("Bubbles = %d; want 3", shot.Bubbles)
	}
	if store.Len() != 1 {
		t.Fatalf("store.Len() = %d; want 1", store.Len())
	}
	if p.Busy() {
		t.Fatal("lock still held after capture")
	}
}

func TestPipelineRestoresPreCapturePresentation(t *testing.T) {
	s := newFakeSurface(1)
	p := newTestPipeline(s, newFakeConverter(1), history.NewStore())
	before, _ := s.Presentation(context.Background())

	if _, err := p.Capture(context.Background(), CaptureOptions{}); err != nil {
		t.Fatalf("Capture() = %v", err)
	}
	after, _ := s.Presentation(context.Background())
	if after != before {
		t.Fatalf("presentation = %+v; want %+v", after, before)
	}
}

func TestPipelineModes(t *testing.T) {
	tests := []struct {
		name string
		opts CaptureOptions
		want float64
	}{
		{name: "current", opts: CaptureOptions{Mode: ModeCurrent}, want: 120},
		{name: "offset", opts: CaptureOptions{Mode: ModeOffset, Offset: 300}, want: 300},
		{name: "offset clamped", opts: CaptureOptions{Mode: ModeOffset, Offset: 5000}, want: 800},
		{name: "bottom", opts: CaptureOptions{Mode: ModeBottom}, want: 800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeSurface(1)
			p := newTestPipeline(s, newFakeConverter(1), history.NewStore())
			shot, err := p.Capture(context.Background(), tt.opts)
			if err != nil {
				t.Fatalf("Capture() = %v", err)
			}
			if shot.ScrollTop != tt.want {
				t.Fatalf("ScrollTop = %v; want %v", shot.ScrollTop, tt.want)
			}
		})
	}
}

func TestPipelineRejectsBadOptions(t *testing.T) {
	p := newTestPipeline(newFakeSurface(0), newFakeConverter(0), history.NewStore())
	for _, opts := range []CaptureOptions{
		{Mode: "sideways"},
		{Mode: ModeOffset, Offset: -1},
		{Source: "cron"},
	} {
		if _, err := p.Capture(context.Background(), opts); !HasCode(err, CodeValidation) {
			t.Fatalf("Capture(%+v) = %v; want %s", opts, err, CodeValidation)
		}
	}
}

func TestPipelineBusyWhileInFlight(t *testing.T) {
	s := newFakeSurface(1)
	conv := newFakeConverter(1)
	conv.started = make(chan struct{}, 1)
	conv.release = make(chan struct{})
	store := history.NewStore()
	p := newTestPipeline(s, conv, store)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := p.Capture(context.Background(), CaptureOptions{}); err != nil {
			t.Errorf("first Capture() = %v", err)
		}
	}()
	<-conv.started

	if _, err := p.Capture(context.Background(), CaptureOptions{}); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Capture() = %v; want ErrBusy", err)
	}
	close(conv.release)
	wg.Wait()

	if bakes, restores := s.counts(); bakes != 1 || restores != 1 {
		t.Fatalf("bakes=%d restores=%d; want 1/1", bakes, restores)
	}
	if store.Len() != 1 {
		t.Fatalf("store.Len() = %d; want 1", store.Len())
	}
}

func TestPipelineRasterFailureAppendsNothing(t *testing.T) {
	s := newFakeSurface(1)
	conv := newFakeConverter(1)
	conv.err = errors.New("converter exploded")
	store := history.NewStore()
	p := newTestPipeline(s, conv, store)
	before, _ := s.Presentation(context.Background())

	var attempts []Attempt
	p.OnAttempt(func(a Attempt) { attempts = append(attempts, a) })

	_, err := p.Capture(context.Background(), CaptureOptions{})
	if !HasCode(err, CodeRasterFailure) {
		t.Fatalf("Capture() = %v; want %s", err, CodeRasterFailure)
	}
	if store.Len() != 0 {
		t.Fatalf("store.Len() = %d; want 0", store.Len())
	}
	if p.Busy() {
		t.Fatal("lock held after failure")
	}
	after, _ := s.Presentation(context.Background())
	if after != before {
		t.Fatalf("presentation not restored after failure: %+v", after)
	}
	if len(attempts) != 1 || attempts[0].Err == nil || attempts[0].Shot != nil {
		t.Fatalf("attempts = %+v", attempts)
	}

	// A later capture still works.
	conv.mu.Lock()
	conv.err = nil
	conv.mu.Unlock()
	if _, err := p.Capture(context.Background(), CaptureOptions{}); err != nil {
		t.Fatalf("Capture() after failure = %v", err)
	}
}

func TestPipelineNotifiesObservers(t *testing.T) {
	s := newFakeSurface(2)
	p := newTestPipeline(s, newFakeConverter(2), history.NewStore())
	var got Attempt
	p.OnAttempt(func(a Attempt) { got = a })

	shot, err := p.Capture(context.Background(), CaptureOptions{Source: SourceAuto})
	if err != nil {
		t.Fatalf("Capture() = %v", err)
	}
	if got.Shot == nil || got.Shot.ID != shot.ID {
		t.Fatalf("observer shot = %+v; want %s", got.Shot, shot.ID)
	}
	if got.Options.Source != SourceAuto || got.Options.Mode != ModeBottom {
		t.Fatalf("observer options = %+v", got.Options)
	}
	if got.Bubbles != 2 || got.Settle.Reason != SettleReached {
		t.Fatalf("observer attempt = %+v", got)
	}
}
