package cdpcontrol

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/chatsnap/internal/capture"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultRasterTimeout bounds one offscreen render.
const DefaultRasterTimeout = 30 * time.Second

// Snapshotter produces the static copy the Converter renders. *Page
// satisfies it.
type Snapshotter interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Converter renders a snapshot of the editor's capture root in a throwaway
// tab of the same browser and screenshots the root's rect.
type Converter struct {
	cdpURL  string
	source  Snapshotter
	timeout time.Duration
	logger  *slog.Logger
}

var _ capture.Converter = (*Converter)(nil)

func NewConverter(cdpURL string, source Snapshotter, timeout time.Duration, logger *slog.Logger) *Converter {
	if timeout <= 0 {
		timeout = DefaultRasterTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{cdpURL: cdpURL, source: source, timeout: timeout, logger: logger}
}

type clipRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (c *Converter) Rasterize(ctx context.Context, req capture.RasterRequest) ([]byte, error) {
	snap, err := c.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := BuildDocument(snap, req.OnClone)
	if err != nil {
		return nil, err
	}

	ratio, cssW, cssH, err := cssSize(req, snap)
	if err != nil {
		return nil, err
	}
	width := int64(math.Ceil(cssW))
	height := int64(math.Ceil(cssH))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, c.cdpURL)
	defer allocCancel()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	var rect *clipRect
	var buf []byte
	err = chromedp.Run(tabCtx,
		network.Enable(),
		network.SetCacheDisabled(req.CacheBust),
		emulation.SetDeviceMetricsOverride(width, height, ratio, false),
		emulation.SetDefaultBackgroundColorOverride().WithColor(parseColor(req.Background)),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, doc).Do(ctx)
		}),
		chromedp.Evaluate(jsCloneReady, nil, awaitPromise),
		chromedp.Evaluate(jsRootRect(req.Selector), &rect),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if rect == nil || rect.Width <= 0 || rect.Height <= 0 {
				return newError(capture.CodeTargetNotFound, "capture target missing from clone", nil)
			}
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithClip(&page.Viewport{X: rect.X, Y: rect.Y, Width: cssW, Height: cssH, Scale: 1}).
				WithFromSurface(true).
				WithCaptureBeyondViewport(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("converter: %w", err)
	}
	c.logger.Debug("converter: rendered", "bytes", len(buf), "css_width", width, "css_height", height, "pixel_ratio", ratio)
	return buf, nil
}

// cssSize returns the pixel ratio and the CSS box to render. The requested
// output size wins; it must agree with the snapshot box within one CSS pixel
// or the target changed size between measuring and snapshotting.
func cssSize(req capture.RasterRequest, snap Snapshot) (ratio, w, h float64, err error) {
	ratio = req.PixelRatio
	if ratio <= 0 {
		ratio = capture.DefaultPixelRatio
	}
	if snap.Width <= 0 || snap.Height <= 0 {
		return ratio, 0, 0, newError(capture.CodeTargetNotFound, "capture target has an empty box", nil)
	}
	if req.Width <= 0 || req.Height <= 0 {
		return ratio, snap.Width, snap.Height, nil
	}
	w = float64(req.Width) / ratio
	h = float64(req.Height) / ratio
	if math.Abs(w-snap.Width) > 1 || math.Abs(h-snap.Height) > 1 {
		return ratio, w, h, newError(capture.CodeRasterFailure,
			fmt.Sprintf("requested %dx%d px at ratio %v but the target is %vx%v CSS px",
				req.Width, req.Height, ratio, snap.Width, snap.Height), nil)
	}
	return ratio, w, h, nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// BuildDocument parses the snapshot, points relative URLs at the source page
// and runs hook on the tree before rendering it back to HTML.
func BuildDocument(snap Snapshot, hook capture.CloneHook) (string, error) {
	doc, err := html.Parse(strings.NewReader(snap.HTML))
	if err != nil {
		return "", newError(capture.CodeRasterFailure, "parse snapshot", err)
	}
	if snap.BaseURL != "" {
		insertBase(doc, snap.BaseURL)
	}
	if hook != nil {
		if err := hook(doc); err != nil {
			return "", newError(capture.CodeRasterFailure, "clone hook", err)
		}
	}
	var out bytes.Buffer
	if err := html.Render(&out, doc); err != nil {
		return "", newError(capture.CodeRasterFailure, "render clone", err)
	}
	return out.String(), nil
}

// insertBase puts <base href> first in <head>, replacing any existing one.
func insertBase(doc *html.Node, href string) {
	var head *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if head != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Head {
			head = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	if head == nil {
		return
	}
	for c := head.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && c.DataAtom == atom.Base {
			head.RemoveChild(c)
		}
		c = next
	}
	base := &html.Node{
		Type:     html.ElementNode,
		Data:     "base",
		DataAtom: atom.Base,
		Attr:     []html.Attribute{{Key: "href", Val: href}},
	}
	head.InsertBefore(base, head.FirstChild)
}

// parseColor reads #rgb or #rrggbb. Anything else is white.
func parseColor(s string) *cdp.RGBA {
	white := &cdp.RGBA{R: 255, G: 255, B: 255, A: 1}
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return white
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return white
	}
	return &cdp.RGBA{R: int64(v >> 16 & 0xff), G: int64(v >> 8 & 0xff), B: int64(v & 0xff), A: 1}
}

// jsCloneReady waits for fonts and images of the loaded clone, each image
// bounded like the live readiness wait, then one frame pair.
var jsCloneReady = `(async function(){
if (document.fonts && document.fonts.ready) { try { await document.fonts.ready; } catch (_) {} }
var imgs = Array.prototype.slice.call(document.images);
await Promise.all(imgs.map(function(img) {
  if (img.complete) return null;
  return new Promise(function(resolve) {
    img.addEventListener("load", resolve, {once:true});
    img.addEventListener("error", resolve, {once:true});
    setTimeout(resolve, ` + strconv.FormatInt(capture.DefaultMediaTimeout.Milliseconds(), 10) + `);
  });
}));
` + jsNextFramePair + `
return true;
})()`

func jsRootRect(selector string) string {
	return `(function(){
var el = document.querySelector(` + jsString(selector) + `);
if (!el) return null;
var r = el.getBoundingClientRect();
return {x:r.left + window.scrollX,y:r.top + window.scrollY,width:r.width,height:r.height};
})()`
}
