package feed

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Update is one client frame on the feed socket. Exactly one field is set.
type Update struct {
	Count    *int      `json:"count,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	Append   *Message  `json:"append,omitempty"`
}

// Ack answers every client frame.
type Ack struct {
	OK     bool   `json:"ok"`
	Length int    `json:"length"`
	Error  string `json:"error,omitempty"`
}

// WebSocket lets an external editor push its message feed. Count updates go
// straight to the hub; message updates go through Memory.
type WebSocket struct {
	hub    *Hub
	mem    *Memory
	logger *slog.Logger
}

func NewWebSocket(hub *Hub, mem *Memory, logger *slog.Logger) *WebSocket {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocket{hub: hub, mem: mem, logger: logger}
}

func (s *WebSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Debug("feed ws: upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	s.logger.Info("feed ws: client connected", "remote", r.RemoteAddr)

	for {
		data, op, err := wsutil.ReadClientData(conn)
		if err != nil {
			var closed wsutil.ClosedError
			if errors.Is(err, io.EOF) || errors.As(err, &closed) {
				s.logger.Info("feed ws: client disconnected", "remote", r.RemoteAddr)
			} else {
				s.logger.Debug("feed ws: read failed", "error", err)
			}
			return
		}
		if op != ws.OpText {
			continue
		}

		ack := s.apply(data)
		out, _ := json.Marshal(ack)
		if err := wsutil.WriteServerText(conn, out); err != nil {
			s.logger.Debug("feed ws: write failed", "error", err)
			return
		}
	}
}

func (s *WebSocket) apply(data []byte) Ack {
	var u Update
	if err := json.Unmarshal(data, &u); err != nil {
		return Ack{Error: "invalid json: " + err.Error()}
	}
	switch {
	case u.Count != nil:
		if *u.Count < 0 {
			return Ack{Error: "count must be >= 0"}
		}
		s.hub.Publish(*u.Count)
		return Ack{OK: true, Length: *u.Count}
	case (u.Append != nil || u.Messages != nil) && s.mem == nil:
		return Ack{Error: "message updates need the memory feed"}
	case u.Append != nil:
		if _, err := s.mem.Append(*u.Append); err != nil {
			return Ack{Error: err.Error(), Length: s.mem.Len()}
		}
		return Ack{OK: true, Length: s.mem.Len()}
	case u.Messages != nil:
		if err := s.mem.Replace(u.Messages); err != nil {
			return Ack{Error: err.Error(), Length: s.mem.Len()}
		}
		return Ack{OK: true, Length: s.mem.Len()}
	default:
		return Ack{Error: "expected one of count, messages, append"}
	}
}
