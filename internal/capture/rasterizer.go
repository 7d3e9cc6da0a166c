package capture

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"math"

	"github.com/dgnsrekt/chatsnap/internal/history"
	"golang.org/x/net/html"
)

// DefaultPixelRatio doubles the CSS box for retina output.
const DefaultPixelRatio = 2

// CloneHook mutates the parsed offscreen clone before it is rendered.
type CloneHook func(doc *html.Node) error

// RasterRequest is what the Rasterizer asks a Converter to render.
type RasterRequest struct {
	Selector   string
	Width      int
	Height     int
	PixelRatio float64
	Background string
	CacheBust  bool
	OnClone    CloneHook
}

// Converter renders the capture target to PNG bytes. Implementations must
// call OnClone on their clone of the document before painting it.
type Converter interface {
	Rasterize(ctx context.Context, req RasterRequest) ([]byte, error)
}

// Raster is one finished rasterization.
type Raster struct {
	Payload    string
	Width      int
	Height     int
	PixelRatio float64
	Clone      CloneReport
}

// Rasterizer turns the (baked) capture target into a PNG data URL.
type Rasterizer struct {
	conv       Converter
	selector   string
	style      CloneStyle
	pixelRatio float64
	background string
	logger     *slog.Logger
}

// RasterizerOptions configures a Rasterizer. Zero values pick defaults.
type RasterizerOptions struct {
	Selector   string
	Style      CloneStyle
	PixelRatio float64
	Background string
}

func NewRasterizer(conv Converter, opts RasterizerOptions, logger *slog.Logger) *Rasterizer {
	if opts.PixelRatio <= 0 {
		opts.PixelRatio = DefaultPixelRatio
	}
	if opts.Background == "" {
		opts.Background = "#ffffff"
	}
	if opts.Style.RootAttr == "" {
		opts.Style = DefaultCloneStyle()
	}
	if opts.Selector == "" {
		opts.Selector = "[" + opts.Style.RootAttr + "=\"" + opts.Style.RootValue + "\"]"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rasterizer{
		conv:       conv,
		selector:   opts.Selector,
		style:      opts.Style,
		pixelRatio: opts.PixelRatio,
		background: opts.Background,
		logger:     logger,
	}
}

// PixelRatio is the device pixel ratio used for output.
func (r *Rasterizer) PixelRatio() float64 { return r.pixelRatio }

// Capture rasterizes the target at box size times the pixel ratio, pinning
// clone bubbles to ms.
func (r *Rasterizer) Capture(ctx context.Context, box Box, ms []BubbleMeasurement) (Raster, error) {
	if box.Width <= 0 || box.Height <= 0 {
		return Raster{}, NewError(CodeTargetNotFound, "capture target has no size", nil)
	}
	frozen := append([]BubbleMeasurement(nil), ms...)

	var report CloneReport
	req := RasterRequest{
		Selector:   r.selector,
		Width:      int(math.Round(box.Width * r.pixelRatio)),
		Height:     int(math.Round(box.Height * r.pixelRatio)),
		PixelRatio: r.pixelRatio,
		Background: r.background,
		CacheBust:  true,
		OnClone: func(doc *html.Node) error {
			report = PrepareClone(doc, frozen, r.style)
			return nil
		},
	}

	raw, err := r.conv.Rasterize(ctx, req)
	if err != nil {
		return Raster{}, NewError(CodeRasterFailure, "converter failed", err)
	}
	if report.Bubbles != len(frozen) {
		r.logger.Warn("rasterizer: clone bubble count differs from live measurement",
			"measured", len(frozen), "cloned", report.Bubbles)
	}

	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return Raster{}, NewError(CodeRasterFailure, "decode converter output", err)
	}
	out := image.NewNRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return Raster{}, NewError(CodeRasterFailure, "encode png", err)
	}

	if b := out.Bounds(); b.Dx() != req.Width || b.Dy() != req.Height {
		r.logger.Warn("rasterizer: output size differs from request",
			"want_width", req.Width, "want_height", req.Height, "width", b.Dx(), "height", b.Dy())
	}

	return Raster{
		Payload:    history.EncodeDataURL(history.PNGMediaType, buf.Bytes()),
		Width:      out.Bounds().Dx(),
		Height:     out.Bounds().Dy(),
		PixelRatio: r.pixelRatio,
		Clone:      report,
	}, nil
}
