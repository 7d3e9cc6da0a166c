package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/chatsnap/internal/capture"
	"github.com/dgnsrekt/chatsnap/internal/controller"
)

func registerCaptureHandlers(api huma.API, svc Service) {
	type captureInput struct {
		Body struct {
			Mode   string  `json:"mode,omitempty" doc:"Viewport position: bottom (default), current, or offset" enum:"bottom,current,offset"`
			Offset float64 `json:"offset,omitempty" doc:"Scroll offset in CSS px when mode is offset" minimum:"0"`
		}
	}
	type captureOutput struct {
		Body controller.CaptureInfo
	}
	huma.Register(api, huma.Operation{
		OperationID:   "create-capture",
		Method:        http.MethodPost,
		Path:          "/api/v1/captures",
		Summary:       "Capture the chat view",
		Description:   "Waits for media, settles the scroll position, pins it and rasterizes the target. Returns 409 when a capture is already in flight.",
		Tags:          []string{"Captures"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *captureInput) (*captureOutput, error) {
		info, err := svc.Capture(ctx, capture.CaptureOptions{
			Mode:   input.Body.Mode,
			Offset: input.Body.Offset,
			Source: capture.SourceManual,
		})
		if err != nil {
			return nil, mapErr(err)
		}
		out := &captureOutput{}
		out.Body = info
		return out, nil
	})

	type listOutput struct {
		Body []controller.CaptureInfo
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-captures",
		Method:      http.MethodGet,
		Path:        "/api/v1/captures",
		Summary:     "List captures in history order",
		Tags:        []string{"Captures"},
	}, func(ctx context.Context, input *struct{}) (*listOutput, error) {
		out := &listOutput{}
		out.Body = svc.ListCaptures()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-capture",
		Method:      http.MethodGet,
		Path:        "/api/v1/captures/{capture_id}",
		Summary:     "Get capture metadata",
		Tags:        []string{"Captures"},
	}, func(ctx context.Context, input *captureIDInput) (*captureOutput, error) {
		info, err := svc.GetCapture(input.CaptureID)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &captureOutput{}
		out.Body = info
		return out, nil
	})

	type imageInput struct {
		CaptureID string `path:"capture_id"`
		Download  bool   `query:"download" doc:"Send as an attachment named screenshot-<n>.png"`
	}
	type imageOutput struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-capture-image",
		Method:      http.MethodGet,
		Path:        "/api/v1/captures/{capture_id}/image",
		Summary:     "Get capture image",
		Tags:        []string{"Captures"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Capture image",
				Content: map[string]*huma.MediaType{
					"image/png": {
						Schema: &huma.Schema{Type: "string", Format: "binary"},
					},
				},
			},
		},
	}, func(ctx context.Context, input *imageInput) (*imageOutput, error) {
		data, name, err := svc.ReadCaptureImage(input.CaptureID)
		if err != nil {
			return nil, mapErr(err)
		}
		disposition := "inline"
		if input.Download {
			disposition = "attachment"
		}
		return &imageOutput{
			ContentType:        "image/png",
			ContentDisposition: disposition + `; filename="` + name + `"`,
			Body:               data,
		}, nil
	})

	type saveOutput struct {
		Body struct {
			Location string `json:"location"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "save-capture",
		Method:      http.MethodPost,
		Path:        "/api/v1/captures/{capture_id}/save",
		Summary:     "Write one capture to the export directory",
		Tags:        []string{"Captures"},
	}, func(ctx context.Context, input *captureIDInput) (*saveOutput, error) {
		loc, err := svc.SaveCapture(ctx, input.CaptureID)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &saveOutput{}
		out.Body.Location = loc
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-capture",
		Method:      http.MethodDelete,
		Path:        "/api/v1/captures/{capture_id}",
		Summary:     "Delete a capture",
		Tags:        []string{"Captures"},
	}, func(ctx context.Context, input *captureIDInput) (*statusOutput, error) {
		if err := svc.DeleteCapture(input.CaptureID); err != nil {
			return nil, mapErr(err)
		}
		out := &statusOutput{}
		out.Body.Status = "deleted"
		return out, nil
	})

	type clearOutput struct {
		Body struct {
			Removed int `json:"removed"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "clear-captures",
		Method:      http.MethodDelete,
		Path:        "/api/v1/captures",
		Summary:     "Delete every capture",
		Tags:        []string{"Captures"},
	}, func(ctx context.Context, input *struct{}) (*clearOutput, error) {
		out := &clearOutput{}
		out.Body.Removed = svc.ClearCaptures()
		return out, nil
	})
}

func registerArchiveHandlers(api huma.API, svc Service) {
	type archiveOutput struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}
	huma.Register(api, huma.Operation{
		OperationID: "download-archive",
		Method:      http.MethodGet,
		Path:        "/api/v1/captures/archive",
		Summary:     "Download every capture as a zip",
		Description: "Entries are named screenshot-<n>.png in history order. Returns 409 when history is empty.",
		Tags:        []string{"Archive"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Zip archive",
				Content: map[string]*huma.MediaType{
					"application/zip": {
						Schema: &huma.Schema{Type: "string", Format: "binary"},
					},
				},
			},
		},
	}, func(ctx context.Context, input *struct{}) (*archiveOutput, error) {
		a, err := svc.ExportArchive(ctx)
		if err != nil {
			return nil, mapErr(err)
		}
		return &archiveOutput{
			ContentType:        "application/zip",
			ContentDisposition: `attachment; filename="` + a.Name + `"`,
			Body:               a.Data,
		}, nil
	})

	type exportOutput struct {
		Body controller.ExportResult
	}
	huma.Register(api, huma.Operation{
		OperationID: "export-archive",
		Method:      http.MethodPost,
		Path:        "/api/v1/captures/export",
		Summary:     "Write every capture as a zip to the export directory",
		Tags:        []string{"Archive"},
	}, func(ctx context.Context, input *struct{}) (*exportOutput, error) {
		res, err := svc.SaveArchive(ctx)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &exportOutput{}
		out.Body = res
		return out, nil
	})
}
