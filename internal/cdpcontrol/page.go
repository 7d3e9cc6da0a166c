package cdpcontrol

import (
	"context"

	"github.com/dgnsrekt/chatsnap/internal/capture"
)

// Evaluator runs a wrapped snippet and decodes its envelope data into out.
// *Client satisfies it.
type Evaluator interface {
	Eval(ctx context.Context, js string, out any) error
}

// Snapshot is a static copy of the capture root ready to be loaded into
// another tab.
type Snapshot struct {
	HTML    string  `json:"html"`
	BaseURL string  `json:"base_url"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Page is the editor tab seen as a capture.Surface.
type Page struct {
	eval   Evaluator
	target capture.Target
}

var _ capture.Surface = (*Page)(nil)

func NewPage(eval Evaluator, target capture.Target) *Page {
	return &Page{eval: eval, target: target.WithDefaults()}
}

func (p *Page) Target() capture.Target { return p.target }

func (p *Page) Box(ctx context.Context) (capture.Box, error) {
	var box capture.Box
	err := p.eval.Eval(ctx, jsBox(p.target), &box)
	return box, err
}

func (p *Page) MeasureBubbles(ctx context.Context) ([]capture.BubbleMeasurement, error) {
	var ms []capture.BubbleMeasurement
	if err := p.eval.Eval(ctx, jsMeasureBubbles(p.target), &ms); err != nil {
		return nil, err
	}
	return ms, nil
}

func (p *Page) ScrollState(ctx context.Context) (capture.ScrollState, error) {
	var s capture.ScrollState
	err := p.eval.Eval(ctx, jsScrollState(p.target), &s)
	return s, err
}

func (p *Page) ScrollTop(ctx context.Context) (float64, error) {
	var top float64
	err := p.eval.Eval(ctx, jsScrollTop(p.target), &top)
	return top, err
}

func (p *Page) Presentation(ctx context.Context) (capture.Presentation, error) {
	var pres capture.Presentation
	err := p.eval.Eval(ctx, jsPresentation(p.target), &pres)
	return pres, err
}

func (p *Page) ApplyPresentation(ctx context.Context, pres capture.Presentation) error {
	return p.eval.Eval(ctx, jsApplyPresentation(p.target, pres), nil)
}

func (p *Page) ScrollToBottom(ctx context.Context) error {
	return p.eval.Eval(ctx, jsScrollToBottom(p.target), nil)
}

func (p *Page) ScrollTo(ctx context.Context, top float64) error {
	return p.eval.Eval(ctx, jsScrollTo(p.target, top), nil)
}

func (p *Page) Images(ctx context.Context) (int, error) {
	var n int
	err := p.eval.Eval(ctx, jsImageCount(p.target), &n)
	return n, err
}

func (p *Page) AwaitImage(ctx context.Context, index int) error {
	return p.eval.Eval(ctx, jsAwaitImage(p.target, index), nil)
}

func (p *Page) AwaitFonts(ctx context.Context) error {
	return p.eval.Eval(ctx, jsAwaitFonts(), nil)
}

func (p *Page) NextFrame(ctx context.Context) error {
	return p.eval.Eval(ctx, jsNextFrame(), nil)
}

// Snapshot copies the capture root, with its current inline styles, into a
// standalone document.
func (p *Page) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := p.eval.Eval(ctx, jsSnapshot(p.target), &snap)
	return snap, err
}
