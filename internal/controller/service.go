// Package controller wires the capture pipeline, history, exporter, feeds and
// event stream into the operations the HTTP API and CLI expose.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgnsrekt/chatsnap/internal/archive"
	"github.com/dgnsrekt/chatsnap/internal/capture"
	"github.com/dgnsrekt/chatsnap/internal/config"
	"github.com/dgnsrekt/chatsnap/internal/events"
	"github.com/dgnsrekt/chatsnap/internal/feed"
	"github.com/dgnsrekt/chatsnap/internal/history"
)

// CaptureInfo is a screenshot plus its current position in history.
type CaptureInfo struct {
	history.Screenshot
	Position int    `json:"position"`
	Filename string `json:"filename"`
}

// ExportResult describes an archive handed to the sink.
type ExportResult struct {
	Name     string `json:"name"`
	Entries  int    `json:"entries"`
	Location string `json:"location"`
}

// Status is a point-in-time view of the controller.
type Status struct {
	Busy         bool        `json:"busy"`
	TriggerState string      `json:"trigger_state"`
	AutoCapture  bool        `json:"auto_capture"`
	Captures     int         `json:"captures"`
	FeedLength   int         `json:"feed_length"`
	FeedSeen     bool        `json:"feed_seen"`
	EventClients int         `json:"event_clients"`
	Aspect       string      `json:"aspect"`
	ExpectedBox  capture.Box `json:"expected_box"`
	Box          capture.Box `json:"box"`
	BoxMatches   bool        `json:"box_matches"`
	BoxError     string      `json:"box_error,omitempty"`
	Uptime       string      `json:"uptime"`
}

// Deps are the collaborators a Service drives. Memory may be nil when the
// in-process feed is not the active source.
type Deps struct {
	Pipeline *capture.Pipeline
	Trigger  *capture.Trigger
	History  *history.Store
	Exporter *archive.Exporter
	Sink     archive.Sink
	Events   *events.Broker
	Feed     *feed.Hub
	Memory   *feed.Memory
	Profile  config.TargetProfile
	Logger   *slog.Logger
}

// Service exposes capture operations.
type Service struct {
	pipeline *capture.Pipeline
	trigger  *capture.Trigger
	history  *history.Store
	exporter *archive.Exporter
	sink     archive.Sink
	events   *events.Broker
	feed     *feed.Hub
	memory   *feed.Memory
	profile  config.TargetProfile
	logger   *slog.Logger
	started  time.Time
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Exporter == nil {
		d.Exporter = archive.NewExporter()
	}
	if d.Events == nil {
		d.Events = events.NewBroker()
	}
	if d.Profile.Aspect == "" {
		d.Profile = config.DefaultTargetProfile()
	}
	s := &Service{
		pipeline: d.Pipeline,
		trigger:  d.Trigger,
		history:  d.History,
		exporter: d.Exporter,
		sink:     d.Sink,
		events:   d.Events,
		feed:     d.Feed,
		memory:   d.Memory,
		profile:  d.Profile,
		logger:   d.Logger,
		started:  time.Now(),
	}
	s.pipeline.OnAttempt(s.onAttempt)
	return s
}

// Events returns the broker the service publishes to.
func (s *Service) Events() *events.Broker { return s.events }

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return capture.NewError(capture.CodeValidation, fieldName+" is required", nil)
	}
	return nil
}

func (s *Service) onAttempt(a capture.Attempt) {
	if a.Err != nil {
		code := capture.CodeRasterFailure
		var coded *capture.CodedError
		if errors.As(a.Err, &coded) {
			code = coded.Code
		}
		s.events.Emit(events.KindCaptureFailed, map[string]any{
			"source": a.Options.Source,
			"mode":   a.Options.Mode,
			"code":   code,
			"error":  a.Err.Error(),
		})
		return
	}
	if a.Shot != nil {
		s.events.Emit(events.KindCaptureStored, s.info(*a.Shot))
	}
}

func (s *Service) info(shot history.Screenshot) CaptureInfo {
	pos := s.history.Position(shot.ID)
	return CaptureInfo{Screenshot: shot, Position: pos, Filename: archive.SingleName(pos)}
}

// Capture takes one screenshot now.
func (s *Service) Capture(ctx context.Context, opts capture.CaptureOptions) (CaptureInfo, error) {
	if opts.Source == "" {
		opts.Source = capture.SourceManual
	}
	shot, err := s.pipeline.Capture(ctx, opts)
	if err != nil {
		return CaptureInfo{}, err
	}
	return s.info(shot), nil
}

// ListCaptures returns history in insertion order.
func (s *Service) ListCaptures() []CaptureInfo {
	shots := s.history.List()
	out := make([]CaptureInfo, len(shots))
	for i, shot := range shots {
		out[i] = CaptureInfo{Screenshot: shot, Position: i + 1, Filename: archive.SingleName(i + 1)}
	}
	return out
}

func (s *Service) GetCapture(id string) (CaptureInfo, error) {
	if err := s.requireNonEmpty(id, "capture_id"); err != nil {
		return CaptureInfo{}, err
	}
	shot, ok := s.history.Get(strings.TrimSpace(id))
	if !ok {
		return CaptureInfo{}, capture.NewError(capture.CodeNotFound, "capture not found: "+id, nil)
	}
	return s.info(shot), nil
}

// ReadCaptureImage returns the PNG bytes and the single-download file name.
func (s *Service) ReadCaptureImage(id string) ([]byte, string, error) {
	info, err := s.GetCapture(id)
	if err != nil {
		return nil, "", err
	}
	data, err := info.Bytes()
	if err != nil {
		return nil, "", capture.NewError(capture.CodeExportFailure, "decode capture payload", err)
	}
	return data, info.Filename, nil
}

// SaveCapture writes one screenshot through the sink.
func (s *Service) SaveCapture(ctx context.Context, id string) (string, error) {
	data, name, err := s.ReadCaptureImage(id)
	if err != nil {
		return "", err
	}
	loc, err := s.sink.Save(ctx, name, data)
	if err != nil {
		return "", capture.NewError(capture.CodeExportFailure, "save capture", err)
	}
	s.logger.Info("controller: capture saved", "id", id, "location", loc)
	return loc, nil
}

func (s *Service) DeleteCapture(id string) error {
	if err := s.requireNonEmpty(id, "capture_id"); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if !s.history.Remove(id) {
		return capture.NewError(capture.CodeNotFound, "capture not found: "+id, nil)
	}
	s.events.Emit(events.KindCaptureDeleted, map[string]any{"id": id, "remaining": s.history.Len()})
	return nil
}

// ClearCaptures empties history and returns how many were removed.
func (s *Service) ClearCaptures() int {
	n := s.history.Clear()
	s.events.Emit(events.KindHistoryCleared, map[string]any{"removed": n})
	return n
}

// ExportArchive zips the whole history. Empty history is EMPTY_HISTORY.
func (s *Service) ExportArchive(ctx context.Context) (archive.Archive, error) {
	a, ok, err := s.exporter.Export(ctx, s.history.List())
	if err != nil {
		return archive.Archive{}, capture.NewError(capture.CodeExportFailure, "export archive", err)
	}
	if !ok {
		return archive.Archive{}, capture.NewError(capture.CodeEmptyHistory, "no captures to export", nil)
	}
	return a, nil
}

// SaveArchive exports the whole history through the sink.
func (s *Service) SaveArchive(ctx context.Context) (ExportResult, error) {
	shots := s.history.List()
	loc, ok, err := s.exporter.ExportTo(ctx, shots, s.sink)
	if err != nil {
		return ExportResult{}, capture.NewError(capture.CodeExportFailure, "save archive", err)
	}
	if !ok {
		return ExportResult{}, capture.NewError(capture.CodeEmptyHistory, "no captures to export", nil)
	}
	res := ExportResult{Name: filepath.Base(loc), Entries: len(shots), Location: loc}
	s.events.Emit(events.KindArchiveExport, res)
	return res, nil
}

func (s *Service) AutoCapture() bool { return s.trigger.Enabled() }

func (s *Service) SetAutoCapture(on bool) bool {
	prev := s.trigger.Enabled()
	s.trigger.SetEnabled(on)
	if prev != on {
		s.events.Emit(events.KindAutoCapture, map[string]bool{"enabled": on})
		s.logger.Info("controller: auto capture toggled", "enabled", on)
	}
	return on
}

func (s *Service) requireMemory() error {
	if s.memory == nil {
		return capture.NewError(capture.CodeValidation, "in-process message feed is not enabled", nil)
	}
	return nil
}

// Messages lists the in-process feed.
func (s *Service) Messages() ([]feed.Message, error) {
	if err := s.requireMemory(); err != nil {
		return nil, err
	}
	return s.memory.Messages(), nil
}

// AppendMessage adds a message to the in-process feed, which may trigger an
// auto capture.
func (s *Service) AppendMessage(msg feed.Message) (feed.Message, error) {
	if err := s.requireMemory(); err != nil {
		return feed.Message{}, err
	}
	out, err := s.memory.Append(msg)
	if err != nil {
		return feed.Message{}, capture.NewError(capture.CodeValidation, err.Error(), nil)
	}
	return out, nil
}

func (s *Service) DeleteMessage(id int64) error {
	if err := s.requireMemory(); err != nil {
		return err
	}
	if !s.memory.Delete(id) {
		return capture.NewError(capture.CodeNotFound, fmt.Sprintf("message not found: %d", id), nil)
	}
	return nil
}

// RunFeed forwards feed lengths to the trigger and the event stream until
// ctx ends, then waits for any in-flight auto capture. The hub hands a new
// subscriber the current length, which primes the trigger.
func (s *Service) RunFeed(ctx context.Context) {
	id, ch := s.feed.Subscribe()
	defer s.feed.Unsubscribe(id)
	defer s.trigger.Wait()
	s.trigger.Run(ctx, s.announceLengths(ctx, ch))
}

// announceLengths emits a feed.length event for every length read from in
// and passes it on.
func (s *Service) announceLengths(ctx context.Context, in <-chan int) <-chan int {
	out := make(chan int)
	go func() {
		defer close(out)
		for n := range in {
			s.events.Emit(events.KindFeedLength, map[string]int{"length": n})
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Status reports pipeline and feed state and probes the live box.
func (s *Service) Status(ctx context.Context) Status {
	st := Status{
		Busy:         s.pipeline.Busy(),
		TriggerState: s.trigger.State().String(),
		AutoCapture:  s.trigger.Enabled(),
		Captures:     s.history.Len(),
		EventClients: s.events.ClientCount(),
		Aspect:       s.profile.Aspect,
		ExpectedBox:  s.profile.ExpectedBox(),
		Uptime:       time.Since(s.started).Round(time.Second).String(),
	}
	if s.feed != nil {
		st.FeedLength, st.FeedSeen = s.feed.Last()
	}
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	box, err := s.pipeline.Surface().Box(probeCtx)
	if err != nil {
		st.BoxError = err.Error()
		return st
	}
	st.Box = box
	st.BoxMatches = s.profile.MatchesBox(box)
	return st
}
