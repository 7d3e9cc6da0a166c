package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/chatsnap/internal/controller"
	"github.com/dgnsrekt/chatsnap/internal/feed"
)

type autoCaptureOutput struct {
	Body struct {
		Enabled bool `json:"enabled"`
	}
}

func registerFeedHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{
		OperationID: "get-auto-capture",
		Method:      http.MethodGet,
		Path:        "/api/v1/auto-capture",
		Summary:     "Get the auto-capture toggle",
		Tags:        []string{"Feed"},
	}, func(ctx context.Context, input *struct{}) (*autoCaptureOutput, error) {
		out := &autoCaptureOutput{}
		out.Body.Enabled = svc.AutoCapture()
		return out, nil
	})

	type setAutoCaptureInput struct {
		Body struct {
			Enabled bool `json:"enabled" doc:"Capture after every message append"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "set-auto-capture",
		Method:      http.MethodPut,
		Path:        "/api/v1/auto-capture",
		Summary:     "Set the auto-capture toggle",
		Tags:        []string{"Feed"},
	}, func(ctx context.Context, input *setAutoCaptureInput) (*autoCaptureOutput, error) {
		out := &autoCaptureOutput{}
		out.Body.Enabled = svc.SetAutoCapture(input.Body.Enabled)
		return out, nil
	})

	type messagesOutput struct {
		Body []feed.Message
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/api/v1/feed/messages",
		Summary:     "List the in-process message feed",
		Description: "Only available when the memory feed source is active.",
		Tags:        []string{"Feed"},
	}, func(ctx context.Context, input *struct{}) (*messagesOutput, error) {
		msgs, err := svc.Messages()
		if err != nil {
			return nil, mapErr(err)
		}
		out := &messagesOutput{}
		out.Body = msgs
		return out, nil
	})

	type appendInput struct {
		Body struct {
			Sender  int    `json:"sender" doc:"1 is the other party, 2 is the phone owner"`
			Type    string `json:"type" doc:"text or image"`
			Content string `json:"content" doc:"Text, or an image URL or data URL"`
			Time    string `json:"time,omitempty" doc:"Display time, e.g. 9:41"`
			Read    bool   `json:"read,omitempty" doc:"Read receipt, owner messages only"`
		}
	}
	type messageOutput struct {
		Body feed.Message
	}
	huma.Register(api, huma.Operation{
		OperationID:   "append-message",
		Method:        http.MethodPost,
		Path:          "/api/v1/feed/messages",
		Summary:       "Append a message to the in-process feed",
		Description:   "The new length is published to the auto-capture trigger.",
		Tags:          []string{"Feed"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *appendInput) (*messageOutput, error) {
		msg, err := svc.AppendMessage(feed.Message{
			Sender:  input.Body.Sender,
			Type:    input.Body.Type,
			Content: input.Body.Content,
			Time:    input.Body.Time,
			Read:    input.Body.Read,
		})
		if err != nil {
			return nil, mapErr(err)
		}
		out := &messageOutput{}
		out.Body = msg
		return out, nil
	})

	type messageIDInput struct {
		MessageID int64 `path:"message_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "delete-message",
		Method:      http.MethodDelete,
		Path:        "/api/v1/feed/messages/{message_id}",
		Summary:     "Delete a message from the in-process feed",
		Tags:        []string{"Feed"},
	}, func(ctx context.Context, input *messageIDInput) (*statusOutput, error) {
		if err := svc.DeleteMessage(input.MessageID); err != nil {
			return nil, mapErr(err)
		}
		out := &statusOutput{}
		out.Body.Status = "deleted"
		return out, nil
	})
}

func registerStatusHandlers(api huma.API, svc Service) {
	type statusBody struct {
		Body controller.Status
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Pipeline, trigger and target status",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*statusBody, error) {
		out := &statusBody{}
		out.Body = svc.Status(ctx)
		return out, nil
	})
}
