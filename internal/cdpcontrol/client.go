// Package cdpcontrol drives the chat mock editor tab over the Chrome DevTools
// Protocol. Client evaluates small JS snippets in the editor tab, Page adapts
// those snippets to capture.Surface, Converter rasterizes a clone in a
// throwaway tab, and DOMFeed streams the live bubble count.
package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/chatsnap/internal/capture"
)

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (e.g. broken connection, closed session).
var transientHints = []string{
	"target closed",
	"session closed",
	"no session",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
	"not connected",
	"execution context was destroyed",
	"cannot find context",
}

// TabInfo describes the editor tab the client is attached to.
type TabInfo struct {
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

type binding struct {
	name string
	fn   func(payload string)
}

// Client owns one attached session on the editor tab.
type Client struct {
	cdpURL      string
	tabFilter   string
	evalTimeout time.Duration
	logger      *slog.Logger

	mu        sync.Mutex
	cdp       *rawCDP
	tab       TabInfo
	sessionID string
	unbind    func()

	// Binding callbacks run on the read loop, so they never take mu.
	bindMu   sync.RWMutex
	bindings map[string]binding
	active   atomic.Value // string session id
}

func NewClient(cdpURL, tabFilter string, evalTimeout time.Duration, logger *slog.Logger) *Client {
	if evalTimeout <= 0 {
		evalTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cdpURL:      cdpURL,
		tabFilter:   strings.ToLower(strings.TrimSpace(tabFilter)),
		evalTimeout: evalTimeout,
		logger:      logger,
		bindings:    make(map[string]binding),
	}
}

// CDPURL is the HTTP debugging endpoint this client dials.
func (c *Client) CDPURL() string { return c.cdpURL }

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(capture.CodeCDPUnavailable, "missing CDP URL", nil)
	}

	c.logger.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	c.cdp = newRawCDP(c.cdpURL)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return newError(capture.CodeCDPUnavailable, "connect to CDP failed", err)
	}
	c.unbind = c.cdp.registerEventHandler("Runtime.bindingCalled", c.onBindingCalled)

	if err := c.selectTabLocked(ctx); err != nil {
		c.logger.Error("cdpcontrol tab select failed", "error", err)
		c.cleanupLocked()
		return err
	}

	c.logger.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "target_id", c.tab.TargetID, "url", c.tab.URL)
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	if c.cdp != nil {
		if c.sessionID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			_ = c.cdp.detachFromTarget(ctx, c.sessionID)
			cancel()
		}
		if c.unbind != nil {
			c.unbind()
			c.unbind = nil
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.sessionID = ""
	c.active.Store("")
	c.tab = TabInfo{}
}

// Tab returns the attached editor tab.
func (c *Client) Tab() TabInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tab
}

// selectTabLocked picks the first page target whose URL contains the filter.
func (c *Client) selectTabLocked(ctx context.Context) error {
	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return newError(capture.CodeCDPUnavailable, "failed to list targets", err)
	}
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if c.tabFilter != "" && !strings.Contains(strings.ToLower(t.URL), c.tabFilter) {
			continue
		}
		c.tab = TabInfo{TargetID: string(t.TargetID), URL: t.URL, Title: t.Title}
		c.logger.Debug("cdpcontrol tab selected", "target_id", t.TargetID, "targets", len(targets))
		return nil
	}
	return newError(capture.CodeTargetNotFound, "no editor tab matches filter "+jsString(c.tabFilter), nil)
}

// Eval runs a wrapped snippet in the editor tab and decodes the envelope's
// data into out. Transient failures get one retry after recovery.
func (c *Client) Eval(ctx context.Context, js string, out any) error {
	err := c.evalOnce(ctx, js, out)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || !c.shouldRetry(err) {
		return err
	}

	c.logger.Warn("cdpcontrol eval retry after transient failure", "error", err)
	if capture.HasCode(err, capture.CodeCDPUnavailable) {
		if recErr := c.Connect(ctx); recErr != nil {
			c.logger.Error("cdpcontrol reconnect failed during retry", "error", recErr)
			return recErr
		}
	}
	return c.evalOnce(ctx, js, out)
}

func (c *Client) evalOnce(ctx context.Context, js string, out any) error {
	cdp, sessionID, err := c.ensureSession(ctx)
	if err != nil {
		return err
	}

	evalCtx, evalCancel := context.WithTimeout(ctx, c.evalTimeout)
	defer evalCancel()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(capture.CodeEvalTimeout, "evaluation timed out", err)
		}
		if errors.Is(err, context.Canceled) {
			return newError(capture.CodeEvalFailure, "evaluation canceled", err)
		}
		c.logger.Warn("cdpcontrol eval failed", "session_id", sessionID, "error", err)
		// Drop the session so the next call attaches fresh.
		c.mu.Lock()
		if c.sessionID == sessionID {
			c.sessionID = ""
			c.active.Store("")
		}
		c.mu.Unlock()
		return newError(capture.CodeEvalFailure, "evaluation failed", err)
	}
	return decodeEnvelope(raw, out)
}

func decodeEnvelope(raw string, out any) error {
	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(capture.CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = capture.CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(capture.CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

// ensureSession returns the live connection and a session on the editor tab,
// connecting and attaching as needed.
func (c *Client) ensureSession(ctx context.Context) (*rawCDP, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cdp == nil || !c.cdp.connected() {
		if err := c.connectLocked(ctx); err != nil {
			return nil, "", err
		}
	}
	if c.sessionID != "" {
		return c.cdp, c.sessionID, nil
	}

	sid, err := c.cdp.attachToTarget(ctx, c.tab.TargetID)
	if err != nil {
		return nil, "", newError(capture.CodeCDPUnavailable, "attach to target failed", err)
	}
	c.bindMu.RLock()
	names := make([]string, 0, len(c.bindings))
	for name := range c.bindings {
		names = append(names, name)
	}
	c.bindMu.RUnlock()
	for _, name := range names {
		if err := c.cdp.addBinding(ctx, sid, name); err != nil {
			c.logger.Warn("cdpcontrol binding restore failed", "name", name, "error", err)
		}
	}
	c.sessionID = sid
	c.active.Store(sid)
	c.logger.Debug("cdpcontrol session attached", "target_id", c.tab.TargetID, "session_id", sid)
	return c.cdp, sid, nil
}

// Bind exposes window[name] in the editor tab. Every call to it from the page
// invokes fn with the string payload. The binding survives reattachment.
// The returned function removes it.
func (c *Client) Bind(ctx context.Context, name string, fn func(payload string)) (func(), error) {
	cdp, sid, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}
	c.bindMu.Lock()
	c.bindings[name] = binding{name: name, fn: fn}
	c.bindMu.Unlock()

	if err := cdp.addBinding(ctx, sid, name); err != nil {
		c.bindMu.Lock()
		delete(c.bindings, name)
		c.bindMu.Unlock()
		return nil, newError(capture.CodeCDPUnavailable, "add binding failed", err)
	}
	return func() {
		c.bindMu.Lock()
		delete(c.bindings, name)
		c.bindMu.Unlock()
	}, nil
}

func (c *Client) onBindingCalled(sessionID string, params json.RawMessage) {
	var evt struct {
		Name    string `json:"name"`
		Payload string `json:"payload"`
	}
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	c.bindMu.RLock()
	b, ok := c.bindings[evt.Name]
	c.bindMu.RUnlock()
	current, _ := c.active.Load().(string)
	if !ok || (current != "" && sessionID != current) {
		return
	}
	b.fn(evt.Payload)
}

func (c *Client) shouldRetry(err error) bool {
	var coded *capture.CodedError
	if !errors.As(err, &coded) {
		return false
	}

	switch coded.Code {
	case capture.CodeCDPUnavailable:
		return true
	case capture.CodeEvalFailure:
		if coded.Cause == nil {
			return false
		}
		cause := strings.ToLower(coded.Cause.Error())
		for _, hint := range transientHints {
			if strings.Contains(cause, hint) {
				return true
			}
		}
	}
	return false
}

func newError(code, msg string, cause error) error {
	return capture.NewError(code, msg, cause)
}
