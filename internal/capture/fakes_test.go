package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSurface is an in-memory capture target.
type fakeSurface struct {
	mu sync.Mutex

	box     Box
	bubbles []BubbleMeasurement
	state   ScrollState
	pres    Presentation

	// samples, when set, are returned by ScrollTop in order before falling
	// back to state.ScrollTop.
	samples []float64

	images    int
	hung      map[int]bool
	fontsErr  error
	frameErr  error
	applyErr  error
	applyFail int // fail the first applyFail ApplyPresentation calls

	frames   int
	bakes    int
	restores int
	applied  []Presentation
}

func newFakeSurface(bubbles int) *fakeSurface {
	ms := make([]BubbleMeasurement, bubbles)
	for i := range ms {
		ms[i] = BubbleMeasurement{Width: 200.5, Height: 40}
	}
	return &fakeSurface{
		box:     Box{Width: 375, Height: 812},
		bubbles: ms,
		state:   ScrollState{ScrollTop: 120, ViewportHeight: 700, ContentHeight: 1500},
		pres: Presentation{
			ViewportOverflow: "auto",
			ViewportHeight:   "",
			ContentTransform: "",
		},
	}
}

func (f *fakeSurface) NextFrame(ctx context.Context) error {
	f.mu.Lock()
	f.frames++
	err := f.frameErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (f *fakeSurface) Images(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images, nil
}

func (f *fakeSurface) AwaitImage(ctx context.Context, i int) error {
	f.mu.Lock()
	hung := f.hung[i]
	f.mu.Unlock()
	if hung {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeSurface) AwaitFonts(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fontsErr
}

func (f *fakeSurface) ScrollTop(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.samples) > 0 {
		v := f.samples[0]
		f.samples = f.samples[1:]
		return v, nil
	}
	return f.state.ScrollTop, nil
}

func (f *fakeSurface) ScrollState(context.Context) (ScrollState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakeSurface) Presentation(context.Context) (Presentation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.pres
	p.ViewportScrollTop = f.state.ScrollTop
	return p, nil
}

func (f *fakeSurface) ApplyPresentation(_ context.Context, p Presentation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, p)
	if f.applyFail > 0 {
		f.applyFail--
		return f.applyErr
	}
	if p.ViewportOverflow == "hidden" && p.ContentWillChange == "transform" {
		f.bakes++
	} else {
		f.restores++
	}
	f.pres = Presentation{
		ViewportOverflow:  p.ViewportOverflow,
		ViewportHeight:    p.ViewportHeight,
		ContentTransform:  p.ContentTransform,
		ContentWillChange: p.ContentWillChange,
	}
	f.state.ScrollTop = p.ViewportScrollTop
	return nil
}

func (f *fakeSurface) Box(context.Context) (Box, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.box, nil
}

func (f *fakeSurface) MeasureBubbles(context.Context) ([]BubbleMeasurement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]BubbleMeasurement(nil), f.bubbles...), nil
}

func (f *fakeSurface) ScrollToBottom(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.ScrollTop = f.state.MaxScrollTop()
	return nil
}

func (f *fakeSurface) ScrollTo(_ context.Context, top float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.ScrollTop = top
	f.state = f.state.Clamp()
	return nil
}

func (f *fakeSurface) counts() (bakes, restores int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bakes, f.restores
}

// fakeConverter renders a blank PNG of the requested size after running the
// clone hook over a generated page.
type fakeConverter struct {
	mu      sync.Mutex
	page    string
	err     error
	started chan struct{}
	release chan struct{}

	calls   int
	last    RasterRequest
	lastDoc string
}

func newFakeConverter(bubbles int) *fakeConverter {
	return &fakeConverter{page: pageHTML(bubbles)}
}

func (c *fakeConverter) Rasterize(ctx context.Context, req RasterRequest) ([]byte, error) {
	c.mu.Lock()
	c.calls++
	c.last = req
	started, release, page, failErr := c.started, c.release, c.page, c.err
	c.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failErr != nil {
		return nil, failErr
	}

	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, err
	}
	if req.OnClone != nil {
		if err := req.OnClone(doc); err != nil {
			return nil, err
		}
	}
	var rendered bytes.Buffer
	if err := html.Render(&rendered, doc); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.lastDoc = rendered.String()
	c.mu.Unlock()

	if req.Width <= 0 || req.Height <= 0 {
		return nil, errors.New("empty raster")
	}
	img := image.NewRGBA(image.Rect(0, 0, req.Width, req.Height))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func pageHTML(bubbles int) string {
	var b strings.Builder
	b.WriteString(`<!doctype html><html><head><title>chat</title></head><body>`)
	b.WriteString(`<div data-screenshot-target="true" style="width:375px">`)
	b.WriteString(`<div id="chat-scroll-area"><div id="chat-content-wrapper">`)
	for i := 0; i < bubbles; i++ {
		b.WriteString(`<div class="row"><div class="message-bubble relative" style="line-height: 1.5">hello</div></div>`)
	}
	b.WriteString(`</div></div></div></body></html>`)
	return b.String()
}
