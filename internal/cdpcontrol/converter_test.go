package cdpcontrol

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/dgnsrekt/chatsnap/internal/capture"
	"golang.org/x/net/html"
)

const snapshotHTML = `<!DOCTYPE html><html><head><base href="http://stale/"><link rel="stylesheet" href="/assets/index.css"></head>` +
	`<body style="margin:0;"><div data-screenshot-target="true" style="width: 375px; height: 812px;">` +
	`<div id="chat-scroll-area"><div id="chat-content-wrapper">` +
	`<div class="message-bubble">a</div><div class="message-bubble">b</div>` +
	`</div></div></div></body></html>`

func TestBuildDocumentRunsCloneHook(t *testing.T) {
	snap := Snapshot{HTML: snapshotHTML, BaseURL: "http://localhost:5173/", Width: 375, Height: 812}
	ms := []capture.BubbleMeasurement{{Width: 40, Height: 24}, {Width: 60, Height: 24}}
	var report capture.CloneReport
	out, err := BuildDocument(snap, func(doc *html.Node) error {
		report = capture.PrepareClone(doc, ms, capture.DefaultCloneStyle())
		return nil
	})
	if err != nil {
		t.Fatalf("BuildDocument() = %v", err)
	}
	if report.Bubbles != 2 || report.Sized != 2 {
		t.Fatalf("report = %+v", report)
	}
	if !strings.Contains(out, `<head><base href="http://localhost:5173/"/>`) {
		t.Fatalf("base not first in head:\n%s", out)
	}
	if strings.Contains(out, "http://stale/") {
		t.Fatal("stale base kept")
	}
	if !strings.Contains(out, "width: 41px !important;") {
		t.Fatalf("bubble sizing missing:\n%s", out)
	}
}

func TestBuildDocumentHookError(t *testing.T) {
	_, err := BuildDocument(Snapshot{HTML: snapshotHTML}, func(*html.Node) error { return errors.New("boom") })
	if !capture.HasCode(err, capture.CodeRasterFailure) {
		t.Fatalf("BuildDocument() = %v; want RASTER_FAILURE", err)
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want cdp.RGBA
	}{
		{in: "#ffffff", want: cdp.RGBA{R: 255, G: 255, B: 255, A: 1}},
		{in: "#07c160", want: cdp.RGBA{R: 0x07, G: 0xc1, B: 0x60, A: 1}},
		{in: "#abc", want: cdp.RGBA{R: 0xaa, G: 0xbb, B: 0xcc, A: 1}},
		{in: "white", want: cdp.RGBA{R: 255, G: 255, B: 255, A: 1}},
		{in: "#zzzzzz", want: cdp.RGBA{R: 255, G: 255, B: 255, A: 1}},
	}
	for _, tt := range tests {
		if got := parseColor(tt.in); *got != tt.want {
			t.Fatalf("parseColor(%q) = %+v; want %+v", tt.in, *got, tt.want)
		}
	}
}

type staticSnapshot struct {
	snap Snapshot
	err  error
}

func (s staticSnapshot) Snapshot(context.Context) (Snapshot, error) { return s.snap, s.err }

func TestRasterizeFailsBeforeBrowser(t *testing.T) {
	boom := errors.New("snapshot failed")
	c := NewConverter("http://127.0.0.1:1", staticSnapshot{err: boom}, time.Second, nil)
	if _, err := c.Rasterize(context.Background(), capture.RasterRequest{}); !errors.Is(err, boom) {
		t.Fatalf("Rasterize() = %v; want snapshot error", err)
	}

	c = NewConverter("http://127.0.0.1:1", staticSnapshot{snap: Snapshot{HTML: snapshotHTML}}, time.Second, nil)
	if _, err := c.Rasterize(context.Background(), capture.RasterRequest{}); !capture.HasCode(err, capture.CodeTargetNotFound) {
		t.Fatalf("Rasterize() = %v; want TARGET_NOT_FOUND", err)
	}
}

func TestCSSSizeFollowsRequest(t *testing.T) {
	snap := Snapshot{Width: 375, Height: 812}
	tests := []struct {
		name         string
		req          capture.RasterRequest
		ratio, w, h  float64
		code         string
	}{
		{name: "requested size", req: capture.RasterRequest{Width: 750, Height: 1624, PixelRatio: 2}, ratio: 2, w: 375, h: 812},
		{name: "default ratio", req: capture.RasterRequest{Width: 750, Height: 1624}, ratio: 2, w: 375, h: 812},
		{name: "ratio three", req: capture.RasterRequest{Width: 1125, Height: 2436, PixelRatio: 3}, ratio: 3, w: 375, h: 812},
		{name: "no size falls back to snapshot", req: capture.RasterRequest{PixelRatio: 2}, ratio: 2, w: 375, h: 812},
		{name: "target resized", req: capture.RasterRequest{Width: 750, Height: 1750, PixelRatio: 2}, code: capture.CodeRasterFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ratio, w, h, err := cssSize(tt.req, snap)
			if tt.code != "" {
				if !capture.HasCode(err, tt.code) {
					t.Fatalf("cssSize() error = %v; want %s", err, tt.code)
				}
				return
			}
			if err != nil {
				t.Fatalf("cssSize() error = %v", err)
			}
			if ratio != tt.ratio || w != tt.w || h != tt.h {
				t.Fatalf("cssSize() = %v %v %v; want %v %v %v", ratio, w, h, tt.ratio, tt.w, tt.h)
			}
		})
	}

	if _, _, _, err := cssSize(capture.RasterRequest{Width: 750, Height: 1624}, Snapshot{}); !capture.HasCode(err, capture.CodeTargetNotFound) {
		t.Fatalf("cssSize(empty snapshot) = %v; want TARGET_NOT_FOUND", err)
	}
}

func TestRootRectScript(t *testing.T) {
	js := jsRootRect(`[data-screenshot-target="true"]`)
	if !strings.Contains(js, `document.querySelector("[data-screenshot-target=\"true\"]")`) {
		t.Fatalf("unexpected script:\n%s", js)
	}
	if !strings.Contains(jsCloneReady, "3000") {
		t.Fatalf("clone readiness should bound images by the media timeout:\n%s", jsCloneReady)
	}
}
