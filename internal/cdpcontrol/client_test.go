package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/chatsnap/internal/capture"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// fakeBrowser speaks just enough of the DevTools HTTP and WebSocket protocol
// for Client: target listing, attach, evaluate and bindings.
type fakeBrowser struct {
	srv     *httptest.Server
	targets []map[string]string

	mu       sync.Mutex
	evalFn   func(expr string) string
	methods  []string
	attaches int
	conn     func(payload string) error
}

func newFakeBrowser(t *testing.T) *fakeBrowser {
	t.Helper()
	fb := &fakeBrowser{
		targets: []map[string]string{
			{"id": "SW1", "type": "service_worker", "url": "http://localhost:5173/sw.js"},
			{"id": "T1", "type": "page", "url": "http://localhost:5173/", "title": "Chat Mock"},
		},
		evalFn: func(string) string { return `{"ok":true,"data":42}` },
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"webSocketDebuggerUrl":"ws://%s/devtools/browser/x"}`, r.Host)
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(fb.targets)
	})
	mux.HandleFunc("/devtools/browser/x", fb.serveWS)
	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBrowser) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(v any) error {
		data, _ := json.Marshal(v)
		writeMu.Lock()
		defer writeMu.Unlock()
		return wsutil.WriteServerText(conn, data)
	}
	fb.mu.Lock()
	fb.conn = func(payload string) error {
		return write(map[string]any{
			"method":    "Runtime.bindingCalled",
			"sessionId": "S1",
			"params":    map[string]any{"name": FeedBinding, "payload": payload},
		})
	}
	fb.mu.Unlock()

	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		var req struct {
			ID     int64           `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if json.Unmarshal(data, &req) != nil {
			continue
		}
		fb.mu.Lock()
		fb.methods = append(fb.methods, req.Method)
		evalFn := fb.evalFn
		fb.mu.Unlock()

		var result any = map[string]any{}
		switch req.Method {
		case "Target.attachToTarget":
			fb.mu.Lock()
			fb.attaches++
			fb.mu.Unlock()
			result = map[string]any{"sessionId": "S1"}
		case "Runtime.evaluate":
			var p struct {
				Expression string `json:"expression"`
			}
			json.Unmarshal(req.Params, &p)
			result = map[string]any{"result": map[string]any{"type": "string", "value": evalFn(p.Expression)}}
		}
		if write(map[string]any{"id": req.ID, "result": result}) != nil {
			return
		}
	}
}

func (fb *fakeBrowser) sawMethod(m string) bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, got := range fb.methods {
		if got == m {
			return true
		}
	}
	return false
}

func TestClientEvalDecodesEnvelope(t *testing.T) {
	fb := newFakeBrowser(t)
	c := NewClient(fb.srv.URL, "localhost:5173", time.Second, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	defer c.Close()

	if got := c.Tab(); got.TargetID != "T1" || got.Title != "Chat Mock" {
		t.Fatalf("Tab() = %+v", got)
	}

	var n int
	if err := c.Eval(ctx, wrapJSEval("return 1;"), &n); err != nil {
		t.Fatalf("Eval() = %v", err)
	}
	if n != 42 {
		t.Fatalf("data = %d; want 42", n)
	}
	if err := c.Eval(ctx, wrapJSEval("return 1;"), nil); err != nil {
		t.Fatalf("second Eval() = %v", err)
	}
	fb.mu.Lock()
	attaches := fb.attaches
	fb.mu.Unlock()
	if attaches != 1 {
		t.Fatalf("attaches = %d; want session reuse", attaches)
	}
}

func TestClientEvalPropagatesPageErrorCode(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.evalFn = func(string) string {
		return `{"ok":false,"error_code":"TARGET_NOT_FOUND","error_message":"capture target not found"}`
	}
	c := NewClient(fb.srv.URL, "", time.Second, nil)
	defer c.Close()

	err := c.Eval(context.Background(), "x", nil)
	if !capture.HasCode(err, capture.CodeTargetNotFound) {
		t.Fatalf("Eval() = %v; want TARGET_NOT_FOUND", err)
	}
}

func TestClientConnectNoMatchingTab(t *testing.T) {
	fb := newFakeBrowser(t)
	c := NewClient(fb.srv.URL, "example.org", time.Second, nil)
	err := c.Connect(context.Background())
	if !capture.HasCode(err, capture.CodeTargetNotFound) {
		t.Fatalf("Connect() = %v; want TARGET_NOT_FOUND", err)
	}
}

func TestClientConnectMissingURL(t *testing.T) {
	c := NewClient("", "", time.Second, nil)
	if err := c.Connect(context.Background()); !capture.HasCode(err, capture.CodeCDPUnavailable) {
		t.Fatalf("Connect() = %v; want CDP_UNAVAILABLE", err)
	}
}

func TestClientBindDeliversPayloads(t *testing.T) {
	fb := newFakeBrowser(t)
	c := NewClient(fb.srv.URL, "", time.Second, nil)
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan string, 1)
	unbind, err := c.Bind(ctx, FeedBinding, func(p string) { got <- p })
	if err != nil {
		t.Fatalf("Bind() = %v", err)
	}
	if !fb.sawMethod("Runtime.addBinding") || !fb.sawMethod("Runtime.enable") {
		t.Fatal("binding was not registered with the page")
	}

	fb.mu.Lock()
	push := fb.conn
	fb.mu.Unlock()
	if err := push("7"); err != nil {
		t.Fatalf("push: %v", err)
	}
	select {
	case p := <-got:
		if p != "7" {
			t.Fatalf("payload = %q; want 7", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("binding call not delivered")
	}

	unbind()
	push("8")
	select {
	case p := <-got:
		t.Fatalf("payload %q delivered after unbind", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		code string
	}{
		{name: "ok", raw: `{"ok":true,"data":{"width":375}}`},
		{name: "ok without data", raw: `{"ok":true}`},
		{name: "page error", raw: `{"ok":false,"error_code":"TARGET_NOT_FOUND"}`, code: capture.CodeTargetNotFound},
		{name: "error without code", raw: `{"ok":false}`, code: capture.CodeEvalFailure},
		{name: "not json", raw: `undefined`, code: capture.CodeEvalFailure},
		{name: "bad data", raw: `{"ok":true,"data":"wide"}`, code: capture.CodeEvalFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var box capture.Box
			err := decodeEnvelope(tt.raw, &box)
			if tt.code == "" {
				if err != nil {
					t.Fatalf("decodeEnvelope() = %v", err)
				}
				return
			}
			if !capture.HasCode(err, tt.code) {
				t.Fatalf("decodeEnvelope() = %v; want %s", err, tt.code)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	c := NewClient("http://127.0.0.1:9222", "", time.Second, nil)
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "cdp unavailable", err: newError(capture.CodeCDPUnavailable, "x", nil), want: true},
		{name: "transient eval", err: newError(capture.CodeEvalFailure, "x", errors.New("rawcdp: connection closed")), want: true},
		{name: "context destroyed", err: newError(capture.CodeEvalFailure, "x", errors.New("Execution context was destroyed.")), want: true},
		{name: "page exception", err: newError(capture.CodeEvalFailure, "x", errors.New("TypeError: x is undefined")), want: false},
		{name: "eval without cause", err: newError(capture.CodeEvalFailure, "x", nil), want: false},
		{name: "missing target", err: newError(capture.CodeTargetNotFound, "x", nil), want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.shouldRetry(tt.err); got != tt.want {
				t.Fatalf("shouldRetry(%v) = %v; want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCleanupResetsState(t *testing.T) {
	fb := newFakeBrowser(t)
	c := NewClient(fb.srv.URL, "", time.Second, nil)
	if err := c.Eval(context.Background(), "x", nil); err != nil {
		t.Fatalf("Eval() = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if c.Tab().TargetID != "" {
		t.Fatalf("Tab() after Close = %+v", c.Tab())
	}
	if !fb.sawMethod("Target.detachFromTarget") {
		t.Fatal("Close() did not detach the session")
	}
}
