package cdpcontrol

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dgnsrekt/chatsnap/internal/capture"
)

// scriptedEval answers each Eval with the next canned data payload and keeps
// the scripts it was given.
type scriptedEval struct {
	replies []string
	scripts []string
}

func (s *scriptedEval) Eval(_ context.Context, js string, out any) error {
	s.scripts = append(s.scripts, js)
	if len(s.replies) == 0 || out == nil {
		return nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return json.Unmarshal([]byte(reply), out)
}

func TestPageDecodesMeasurements(t *testing.T) {
	ev := &scriptedEval{replies: []string{
		`{"width":375,"height":812}`,
		`[{"width":120.5,"height":40},{"width":200,"height":64}]`,
		`{"scroll_top":120,"viewport_height":700,"content_height":1500}`,
		`{"viewport_overflow":"","viewport_height":"","viewport_scroll_top":120,"content_transform":"","content_will_change":""}`,
	}}
	p := NewPage(ev, capture.Target{})
	ctx := context.Background()

	box, err := p.Box(ctx)
	if err != nil || box != (capture.Box{Width: 375, Height: 812}) {
		t.Fatalf("Box() = %+v, %v", box, err)
	}
	ms, err := p.MeasureBubbles(ctx)
	if err != nil || len(ms) != 2 || ms[0].Width != 120.5 || ms[1].Height != 64 {
		t.Fatalf("MeasureBubbles() = %+v, %v", ms, err)
	}
	st, err := p.ScrollState(ctx)
	if err != nil || st.MaxScrollTop() != 800 {
		t.Fatalf("ScrollState() = %+v, %v", st, err)
	}
	pres, err := p.Presentation(ctx)
	if err != nil || pres.ViewportScrollTop != 120 {
		t.Fatalf("Presentation() = %+v, %v", pres, err)
	}
	if !strings.Contains(ev.scripts[1], `querySelectorAll(".message-bubble")`) {
		t.Fatalf("bubble script does not use the bubble selector:\n%s", ev.scripts[1])
	}
}

func TestApplyPresentationScript(t *testing.T) {
	ev := &scriptedEval{}
	p := NewPage(ev, capture.DefaultTarget())
	baked := capture.BakedPresentation(capture.ScrollState{ScrollTop: 800, ViewportHeight: 700, ContentHeight: 1500})
	if err := p.ApplyPresentation(context.Background(), baked); err != nil {
		t.Fatalf("ApplyPresentation() = %v", err)
	}
	js := ev.scripts[0]
	for _, want := range []string{
		`area.style.overflow = "hidden";`,
		`area.style.height = "700px";`,
		`content.style.transform = "translate3d(0, -800px, 0)";`,
		`content.style.willChange = "transform";`,
		`area.scrollTop = 0;`,
	} {
		if !strings.Contains(js, want) {
			t.Fatalf("script missing %q:\n%s", want, js)
		}
	}
	if strings.Index(js, "area.scrollTop = 0") < strings.Index(js, "area.style.overflow") {
		t.Fatal("scroll offset written before overflow")
	}
}

func TestScrollScripts(t *testing.T) {
	ev := &scriptedEval{}
	p := NewPage(ev, capture.DefaultTarget())
	ctx := context.Background()
	p.ScrollToBottom(ctx)
	p.ScrollTo(ctx, 312.5)
	p.AwaitImage(ctx, 3)
	p.NextFrame(ctx)

	if !strings.Contains(ev.scripts[0], `scrollIntoView({block:"end"})`) ||
		!strings.Contains(ev.scripts[0], `"#chat-content-wrapper > :last-child"`) {
		t.Fatalf("bottom script:\n%s", ev.scripts[0])
	}
	if !strings.Contains(ev.scripts[1], "area.scrollTop = 312.5;") {
		t.Fatalf("scroll script:\n%s", ev.scripts[1])
	}
	if !strings.Contains(ev.scripts[2], `querySelectorAll("img")[3]`) || !strings.HasPrefix(ev.scripts[2], "(async function") {
		t.Fatalf("image script:\n%s", ev.scripts[2])
	}
	if strings.Count(ev.scripts[3], "requestAnimationFrame") != 2 {
		t.Fatalf("frame script should nest two frames:\n%s", ev.scripts[3])
	}
}

func TestSnapshotScriptStripsScripts(t *testing.T) {
	ev := &scriptedEval{replies: []string{`{"html":"<!DOCTYPE html><html></html>","base_url":"http://localhost:5173/","width":375,"height":812}`}}
	p := NewPage(ev, capture.DefaultTarget())
	snap, err := p.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() = %v", err)
	}
	if snap.BaseURL != "http://localhost:5173/" || snap.Width != 375 {
		t.Fatalf("Snapshot() = %+v", snap)
	}
	if !strings.Contains(ev.scripts[0], `querySelectorAll("script, link[rel=modulepreload]")`) {
		t.Fatalf("snapshot script keeps scripts:\n%s", ev.scripts[0])
	}
}
