// Package capture implements the deterministic capture pipeline: readiness
// waits, scroll settlement, scroll baking, rasterization of an offscreen
// clone, and the auto-capture trigger that drives it from a message feed.
//
// The live page is reached through the Surface interface and pixels are
// produced by a Converter, so everything in this package runs against fakes
// in tests and against a Chromium tab in production (see internal/cdpcontrol).
package capture

import (
	"context"
	"strconv"
)

// Box is the on-screen size of the capture target in CSS pixels.
type Box struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BubbleMeasurement is the live rendered size of one bubble, in document order.
type BubbleMeasurement struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ScrollState describes the scroll viewport of the capture target.
type ScrollState struct {
	ScrollTop      float64 `json:"scroll_top"`
	ViewportHeight float64 `json:"viewport_height"`
	ContentHeight  float64 `json:"content_height"`
}

// MaxScrollTop is the largest reachable offset, never negative.
func (s ScrollState) MaxScrollTop() float64 {
	if d := s.ContentHeight - s.ViewportHeight; d > 0 {
		return d
	}
	return 0
}

// Clamp returns s with ScrollTop limited to [0, MaxScrollTop].
func (s ScrollState) Clamp() ScrollState {
	if s.ScrollTop < 0 {
		s.ScrollTop = 0
	}
	if m := s.MaxScrollTop(); s.ScrollTop > m {
		s.ScrollTop = m
	}
	return s
}

// Presentation is the inline presentation of the scroll viewport and its
// content wrapper that baking overrides. Empty strings mean "no inline value".
type Presentation struct {
	ViewportOverflow  string  `json:"viewport_overflow"`
	ViewportHeight    string  `json:"viewport_height"`
	ViewportScrollTop float64 `json:"viewport_scroll_top"`
	ContentTransform  string  `json:"content_transform"`
	ContentWillChange string  `json:"content_will_change"`
}

// FrameWaiter yields for one animation-frame pair (two successive paints).
type FrameWaiter interface {
	NextFrame(ctx context.Context) error
}

// ScrollReader reads the current scroll offset of the viewport.
type ScrollReader interface {
	ScrollTop(ctx context.Context) (float64, error)
}

// MediaWaiter exposes the load state of embedded media and fonts.
type MediaWaiter interface {
	// Images returns how many image elements live inside the content wrapper.
	Images(ctx context.Context) (int, error)
	// AwaitImage blocks until image i has loaded or errored, or ctx ends.
	AwaitImage(ctx context.Context, index int) error
	// AwaitFonts blocks until the font loading signal resolves.
	AwaitFonts(ctx context.Context) error
}

// Viewport is the scrollable region the Baker mutates.
type Viewport interface {
	ScrollReader
	ScrollState(ctx context.Context) (ScrollState, error)
	Presentation(ctx context.Context) (Presentation, error)
	ApplyPresentation(ctx context.Context, p Presentation) error
}

// Surface is the live capture target as seen by the pipeline.
type Surface interface {
	FrameWaiter
	MediaWaiter
	Viewport
	Box(ctx context.Context) (Box, error)
	MeasureBubbles(ctx context.Context) ([]BubbleMeasurement, error)
	ScrollToBottom(ctx context.Context) error
	ScrollTo(ctx context.Context, top float64) error
}

func formatPx(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}

// Target names the DOM elements that make up the capture target.
type Target struct {
	Root     string `yaml:"root" json:"root"`
	Viewport string `yaml:"viewport" json:"viewport"`
	Content  string `yaml:"content" json:"content"`
	Bottom   string `yaml:"bottom" json:"bottom"`
	Bubble   string `yaml:"bubble" json:"bubble"`
}

// DefaultTarget matches the chat mock editor.
func DefaultTarget() Target {
	return Target{
		Root:     `[data-screenshot-target="true"]`,
		Viewport: "#chat-scroll-area",
		Content:  "#chat-content-wrapper",
		Bottom:   "#chat-content-wrapper > :last-child",
		Bubble:   ".message-bubble",
	}
}

// WithDefaults fills empty selectors from DefaultTarget.
func (t Target) WithDefaults() Target {
	d := DefaultTarget()
	if t.Root == "" {
		t.Root = d.Root
	}
	if t.Viewport == "" {
		t.Viewport = d.Viewport
	}
	if t.Content == "" {
		t.Content = d.Content
	}
	if t.Bottom == "" {
		t.Bottom = d.Bottom
	}
	if t.Bubble == "" {
		t.Bubble = d.Bubble
	}
	return t
}
