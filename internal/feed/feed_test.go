package feed

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

func recv(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for length")
		return 0
	}
}

func TestMemoryPublishesLengths(t *testing.T) {
	hub := NewHub()
	_, ch := hub.Subscribe()
	mem := NewMemory(hub)
	if got := recv(t, ch); got != 0 {
		t.Fatalf("baseline length = %d; want 0", got)
	}

	a, err := mem.Append(Message{Sender: 2, Type: TypeText, Content: "hi", Read: true})
	if err != nil {
		t.Fatalf("Append() = %v", err)
	}
	if got := recv(t, ch); got != 1 {
		t.Fatalf("length = %d; want 1", got)
	}
	b, _ := mem.Append(Message{Sender: 1, Type: TypeText, Content: "yo", Read: true})
	if b.Read {
		t.Fatal("sender 1 message marked read")
	}
	if b.ID <= a.ID {
		t.Fatalf("ids not increasing: %d then %d", a.ID, b.ID)
	}
	recv(t, ch)

	if !mem.Delete(a.ID) {
		t.Fatal("Delete() = false")
	}
	if got := recv(t, ch); got != 1 {
		t.Fatalf("length after delete = %d; want 1", got)
	}
	if n, ok := hub.Last(); !ok || n != 1 {
		t.Fatalf("Last() = %d, %v", n, ok)
	}
}

func TestHubSubscribeStartsWithLastLength(t *testing.T) {
	hub := NewHub()
	_, early := hub.Subscribe()
	select {
	case n := <-early:
		t.Fatalf("subscriber before any publish got %d", n)
	default:
	}

	NewMemory(hub)
	hub.Publish(4)

	_, late := hub.Subscribe()
	if got := recv(t, late); got != 4 {
		t.Fatalf("late subscriber baseline = %d; want 4", got)
	}
	hub.Publish(5)
	if got := recv(t, late); got != 5 {
		t.Fatalf("late subscriber next = %d; want 5", got)
	}

	if got := recv(t, early); got != 0 {
		t.Fatalf("early subscriber first = %d; want 0", got)
	}
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		ok   bool
	}{
		{name: "text", msg: Message{Sender: 1, Type: TypeText, Content: "a"}, ok: true},
		{name: "blank text", msg: Message{Sender: 1, Type: TypeText, Content: "  "}},
		{name: "image", msg: Message{Sender: 2, Type: TypeImage, Content: "data:image/png;base64,AA=="}, ok: true},
		{name: "bad sender", msg: Message{Sender: 3, Type: TypeText, Content: "a"}},
		{name: "bad type", msg: Message{Sender: 1, Type: "sticker", Content: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err == nil) != tt.ok {
				t.Fatalf("Validate() = %v; want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestWebSocketUpdates(t *testing.T) {
	hub := NewHub()
	_, ch := hub.Subscribe()
	mem := NewMemory(hub)
	recv(t, ch)
	srv := httptest.NewServer(NewWebSocket(hub, mem, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("ws.Dial() = %v", err)
	}
	defer conn.Close()

	send := func(frame string) Ack {
		t.Helper()
		if err := wsutil.WriteClientText(conn, []byte(frame)); err != nil {
			t.Fatalf("WriteClientText() = %v", err)
		}
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			t.Fatalf("ReadServerText() = %v", err)
		}
		var ack Ack
		if err := json.Unmarshal(data, &ack); err != nil {
			t.Fatalf("json.Unmarshal() = %v", err)
		}
		return ack
	}

	if ack := send(`{"count":3}`); !ack.OK || ack.Length != 3 {
		t.Fatalf("count ack = %+v", ack)
	}
	if got := recv(t, ch); got != 3 {
		t.Fatalf("length = %d; want 3", got)
	}

	ack := send(`{"messages":[{"sender":1,"type":"text","content":"a"},{"sender":2,"type":"text","content":"b"}]}`)
	if !ack.OK || ack.Length != 2 {
		t.Fatalf("messages ack = %+v", ack)
	}
	if got := recv(t, ch); got != 2 {
		t.Fatalf("length = %d; want 2", got)
	}

	if ack := send(`{"append":{"sender":2,"type":"text","content":"c"}}`); !ack.OK || ack.Length != 3 {
		t.Fatalf("append ack = %+v", ack)
	}

	if ack := send(`{"count":-1}`); ack.OK {
		t.Fatalf("negative count accepted: %+v", ack)
	}
	if ack := send(`not json`); ack.OK || ack.Error == "" {
		t.Fatalf("invalid frame ack = %+v", ack)
	}
	if ack := send(`{}`); ack.OK {
		t.Fatalf("empty frame accepted: %+v", ack)
	}
}

func TestCountLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.jsonl")
	if n, err := CountLines(path); err != nil || n != 0 {
		t.Fatalf("CountLines(missing) = %d, %v", n, err)
	}
	if err := os.WriteFile(path, []byte("{\"a\":1}\n\n  \n{\"b\":2}\n{\"c\":3}"), 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}
	if n, err := CountLines(path); err != nil || n != 3 {
		t.Fatalf("CountLines() = %d, %v; want 3", n, err)
	}
}

func TestFileWatchPublishesOnAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.jsonl")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}

	hub := NewHub()
	_, ch := hub.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- NewFile(path, hub, nil).Run(ctx) }()

	if got := recv(t, ch); got != 1 {
		t.Fatalf("initial length = %d; want 1", got)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("os.OpenFile() failed: %v", err)
	}
	if _, err := f.WriteString("{}\n"); err != nil {
		t.Fatalf("WriteString() failed: %v", err)
	}
	f.Close()

	if got := recv(t, ch); got != 2 {
		t.Fatalf("length after append = %d; want 2", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() = %v", err)
	}
}
