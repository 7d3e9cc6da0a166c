package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/chatsnap/internal/archive"
	"github.com/dgnsrekt/chatsnap/internal/capture"
	"github.com/dgnsrekt/chatsnap/internal/controller"
	"github.com/dgnsrekt/chatsnap/internal/events"
	"github.com/dgnsrekt/chatsnap/internal/feed"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	Capture(ctx context.Context, opts capture.CaptureOptions) (controller.CaptureInfo, error)
	ListCaptures() []controller.CaptureInfo
	GetCapture(id string) (controller.CaptureInfo, error)
	ReadCaptureImage(id string) ([]byte, string, error)
	SaveCapture(ctx context.Context, id string) (string, error)
	DeleteCapture(id string) error
	ClearCaptures() int
	ExportArchive(ctx context.Context) (archive.Archive, error)
	SaveArchive(ctx context.Context) (controller.ExportResult, error)
	AutoCapture() bool
	SetAutoCapture(on bool) bool
	Messages() ([]feed.Message, error)
	AppendMessage(msg feed.Message) (feed.Message, error)
	DeleteMessage(id int64) error
	Status(ctx context.Context) controller.Status
}

// Streams are the long-lived endpoints served beside the JSON operations.
// Nil fields are not mounted.
type Streams struct {
	Events *events.Broker
	Feed   http.Handler
}

type captureIDInput struct {
	CaptureID string `path:"capture_id" doc:"Capture ID (UUIDv7)"`
}

type statusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func NewServer(svc Service, streams Streams) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("chatsnap Capture API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/docs/streams", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(streamsDocsHTML)); err != nil {
			slog.Debug("stream docs response write failed", "error", err)
		}
	})
	if streams.Events != nil {
		router.Get("/api/v1/events", events.SSEHandler(streams.Events))
	}
	if streams.Feed != nil {
		router.Handle("/api/v1/feed/ws", streams.Feed)
	}

	registerCaptureHandlers(api, svc)
	registerArchiveHandlers(api, svc)
	registerFeedHandlers(api, svc)
	registerStatusHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *capture.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case capture.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case capture.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case capture.CodeBusy, capture.CodeEmptyHistory:
			return huma.Error409Conflict(coded.Message)
		case capture.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case capture.CodeCDPUnavailable, capture.CodeTargetNotFound, capture.CodeEvalFailure:
			return huma.Error502BadGateway(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
