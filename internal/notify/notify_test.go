package notify

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/chatsnap/internal/events"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func okResponse() *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
		Header:     make(http.Header),
	}
}

func TestSendPostsMessage(t *testing.T) {
	ctx := context.Background()

	var receivedMethod string
	var receivedPath string
	var receivedBody string
	var receivedContentType string
	var receivedTitle string

	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			receivedMethod = r.Method
			receivedPath = r.URL.Path
			receivedContentType = r.Header.Get("Content-Type")
			receivedTitle = r.Header.Get("Title")
			rawBody, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			receivedBody = string(rawBody)
			return okResponse(), nil
		}),
	}

	if err := Send(ctx, client, "http://example.com/chatsnap", "title", "3 screenshots saved"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if got, want := receivedMethod, http.MethodPost; got != want {
		t.Fatalf("method = %q; want %q", got, want)
	}
	if got, want := receivedPath, "/chatsnap"; got != want {
		t.Fatalf("path = %q; want %q", got, want)
	}
	if got, want := receivedContentType, "text/plain"; got != want {
		t.Fatalf("content-type = %q; want %q", got, want)
	}
	if got, want := receivedTitle, "title"; got != want {
		t.Fatalf("title = %q; want %q", got, want)
	}
	if got, want := receivedBody, "3 screenshots saved"; got != want {
		t.Fatalf("body = %q; want %q", got, want)
	}
}

func TestSendReturnsErrorForServerError(t *testing.T) {
	ctx := context.Background()

	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(strings.NewReader("server failure")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	err := Send(ctx, client, "http://example.com/chatsnap", "", "msg")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "ntfy notification failed") {
		t.Fatalf("error = %q; want to contain %q", err, "ntfy notification failed")
	}
}

func TestSendDisallowsMissingEndpoint(t *testing.T) {
	err := Send(context.Background(), http.DefaultClient, "", "", "msg")
	if err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name    string
		evt     events.Event
		ok      bool
		message string
	}{
		{
			name:    "archive",
			evt:     events.Event{Kind: events.KindArchiveExport, Payload: `{"at":"2026-01-01T00:00:00Z","data":{"name":"a.zip","entries":3,"location":"/tmp/a.zip"}}`},
			ok:      true,
			message: "3 screenshots saved to /tmp/a.zip",
		},
		{
			name:    "failure",
			evt:     events.Event{Kind: events.KindCaptureFailed, Payload: `{"data":{"source":"auto","code":"CAPTURE_BUSY","error":"busy"}}`},
			ok:      true,
			message: "auto capture failed (CAPTURE_BUSY): busy",
		},
		{
			name: "ignored kind",
			evt:  events.Event{Kind: events.KindFeedLength, Payload: `{"data":{"length":1}}`},
		},
		{
			name: "bad payload",
			evt:  events.Event{Kind: events.KindArchiveExport, Payload: `not json`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, msg, ok := Format(tt.evt)
			if ok != tt.ok {
				t.Fatalf("ok = %v; want %v", ok, tt.ok)
			}
			if msg != tt.message {
				t.Fatalf("message = %q; want %q", msg, tt.message)
			}
		})
	}
}

func TestNotifierForwardsArchiveEvents(t *testing.T) {
	bodies := make(chan string, 4)
	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			raw, _ := io.ReadAll(r.Body)
			bodies <- string(raw)
			return okResponse(), nil
		}),
	}

	broker := events.NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewNotifier("http://example.com/chatsnap", client, nil).Run(ctx, broker)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for broker.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("notifier never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	broker.Emit(events.KindFeedLength, map[string]int{"length": 2})
	broker.Emit(events.KindArchiveExport, map[string]any{"name": "s.zip", "entries": 2, "location": "/out/s.zip"})

	select {
	case got := <-bodies:
		if got != "2 screenshots saved to /out/s.zip" {
			t.Fatalf("body = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no notification sent")
	}

	cancel()
	<-done
}
