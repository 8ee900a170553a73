package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/design_assistant/internal/checkservice"
)

// CheckService is the analysis backend behind /api/check.
type CheckService interface {
	Check(ctx context.Context, in checkservice.CheckInput) (checkservice.CheckResult, error)
	Health(ctx context.Context) error
	ModelName() string
}

// maxCheckBodyBytes leaves room for a 20 MiB data URL plus the JSON envelope.
const maxCheckBodyBytes = 32 << 20

type checkInput struct {
	Body *struct {
		Image  string `json:"image,omitempty" doc:"Screenshot as a data:image/...;base64 URL"`
		Mode   string `json:"mode,omitempty" doc:"Critique mode; defaults to accessibility"`
		Prompt string `json:"prompt,omitempty" doc:"Overrides the mode's built-in prompt"`
	}
}

type checkOutput struct {
	Body struct {
		Success        bool    `json:"success"`
		Feedback       string  `json:"feedback"`
		ProcessingTime float64 `json:"processing_time"`
		APIUsed        string  `json:"api_used"`
	}
}

type checkHealthOutput struct {
	Status int
	Body   struct {
		Status    string  `json:"status"`
		Error     string  `json:"error,omitempty"`
		API       string  `json:"api"`
		Timestamp float64 `json:"timestamp"`
	}
}

// NewCheckServer exposes the analysis service over HTTP.
func NewCheckServer(svc CheckService) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Design Check Service API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", serveHTML(docsPage("Design Check Service API", false)))

	huma.Register(api, huma.Operation{
		OperationID:     "check",
		Method:          http.MethodPost,
		Path:            "/api/check",
		Summary:         "Critique a screenshot",
		Tags:            []string{"Check"},
		MaxBodyBytes:    maxCheckBodyBytes,
		BodyReadTimeout: time.Minute,
	}, func(ctx context.Context, input *checkInput) (*checkOutput, error) {
		if input.Body == nil {
			return nil, huma.Error400BadRequest("No data received")
		}
		res, err := svc.Check(ctx, checkservice.CheckInput{
			Image:  input.Body.Image,
			Mode:   input.Body.Mode,
			Prompt: input.Body.Prompt,
		})
		if err != nil {
			return nil, mapErr(err)
		}
		out := &checkOutput{}
		out.Body.Success = true
		out.Body.Feedback = res.Feedback
		out.Body.ProcessingTime = res.ProcessingTime
		out.Body.APIUsed = res.APIUsed
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-health",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Verify the vision model answers",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*checkHealthOutput, error) {
		out := &checkHealthOutput{Status: http.StatusOK}
		out.Body.Status = "healthy"
		out.Body.API = svc.ModelName()
		if err := svc.Health(ctx); err != nil {
			out.Status = http.StatusInternalServerError
			out.Body.Status = "unhealthy"
			out.Body.Error = err.Error()
		}
		out.Body.Timestamp = float64(time.Now().UnixMilli()) / 1000
		return out, nil
	})

	return router
}
