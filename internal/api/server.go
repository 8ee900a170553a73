package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/design_assistant/internal/checkservice"
	"github.com/dgnsrekt/design_assistant/internal/critique"
	"github.com/dgnsrekt/design_assistant/internal/prefs"
	"github.com/dgnsrekt/design_assistant/internal/present"
	"github.com/dgnsrekt/design_assistant/internal/progress"
)

// Critic runs one critique at a time.
type Critic interface {
	Submit(ctx context.Context, req critique.Request, onTick func(seconds int)) critique.Outcome
	InFlight() bool
}

type PrefsStore interface {
	Load() (prefs.Preferences, error)
	Save(p prefs.Preferences) (prefs.Preferences, error)
}

// Notifier receives every terminal record. A nil Notifier is skipped.
type Notifier interface {
	Notify(ctx context.Context, mode string, rec present.Terminal) error
}

// Deps are the collaborators of the control panel API.
type Deps struct {
	Critic       Critic
	Prefs        PrefsStore
	Broker       *progress.Broker
	Notifier     Notifier
	SSEKeepAlive time.Duration
}

const notifyTimeout = 10 * time.Second

type healthOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

type modesOutput struct {
	Body struct {
		Modes []critique.ModeInfo `json:"modes"`
	}
}

type critiqueInput struct {
	Body struct {
		Mode   string `json:"mode" doc:"accessibility, ux, branding or custom"`
		Prompt string `json:"prompt,omitempty" maxLength:"4000" doc:"Question for custom mode; ignored otherwise"`
	}
}

type critiqueOutput struct {
	Status int
	Body   present.Terminal
}

type statusOutput struct {
	Body struct {
		InFlight bool `json:"in_flight"`
		Clients  int  `json:"event_clients"`
	}
}

type prefsOutput struct {
	Body prefs.Preferences
}

type prefsInput struct {
	Body prefs.Preferences
}

func NewServer(d Deps) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Design Assistant API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", serveHTML(docsPage("Design Assistant API", true)))
	router.Get("/docs/events", serveHTML(eventsDocsHTML))
	if d.Broker != nil {
		router.Get("/api/v1/critique/events", progress.SSEHandler(d.Broker, d.SSEKeepAlive))
	}

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness check",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		return out, nil
	})

	registerCritiqueHandlers(api, d)
	registerPrefsHandlers(api, d)

	return router
}

func registerCritiqueHandlers(api huma.API, d Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "list-modes",
		Method:      http.MethodGet,
		Path:        "/api/v1/modes",
		Summary:     "List critique modes",
		Tags:        []string{"Critique"},
	}, func(ctx context.Context, input *struct{}) (*modesOutput, error) {
		out := &modesOutput{}
		out.Body.Modes = critique.Modes()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-critique",
		Method:      http.MethodPost,
		Path:        "/api/v1/critique",
		Summary:     "Capture the visible tab and critique it",
		Description: "Blocks until the critique finishes. Progress ticks and the final record are also streamed on /api/v1/critique/events.",
		Tags:        []string{"Critique"},
	}, func(ctx context.Context, input *critiqueInput) (*critiqueOutput, error) {
		req := critique.Request{Mode: normalizeMode(input.Body.Mode), Prompt: input.Body.Prompt}

		// The request runs to completion even if the caller disconnects.
		outcome := d.Critic.Submit(context.WithoutCancel(ctx), req, func(seconds int) {
			if d.Broker != nil {
				d.Broker.PublishJSON(progress.EventTick, present.NewTick(seconds))
			}
		})
		rec := present.FromOutcome(outcome)

		busy := !outcome.OK() && errors.Is(outcome.Err, critique.ErrBusy)
		if !busy {
			if d.Broker != nil {
				d.Broker.PublishJSON(progress.EventTerminal, rec)
			}
			notifyAsync(d.Notifier, string(req.Mode), rec)
		}
		return &critiqueOutput{Status: statusFor(outcome), Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "critique-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/critique/status",
		Summary:     "Report whether a critique is in flight",
		Tags:        []string{"Critique"},
	}, func(ctx context.Context, input *struct{}) (*statusOutput, error) {
		out := &statusOutput{}
		out.Body.InFlight = d.Critic.InFlight()
		if d.Broker != nil {
			out.Body.Clients = d.Broker.ClientCount()
		}
		return out, nil
	})
}

func registerPrefsHandlers(api huma.API, d Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "get-preferences",
		Method:      http.MethodGet,
		Path:        "/api/v1/preferences",
		Summary:     "Get display preferences",
		Tags:        []string{"Preferences"},
	}, func(ctx context.Context, input *struct{}) (*prefsOutput, error) {
		p, err := d.Prefs.Load()
		if err != nil {
			slog.Warn("preferences load failed, using defaults", "error", err)
		}
		return &prefsOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-preferences",
		Method:      http.MethodPut,
		Path:        "/api/v1/preferences",
		Summary:     "Replace display preferences",
		Description: "Font sizes are clamped to 10..24 and malformed colors fall back to their defaults.",
		Tags:        []string{"Preferences"},
	}, func(ctx context.Context, input *prefsInput) (*prefsOutput, error) {
		saved, err := d.Prefs.Save(input.Body)
		if err != nil {
			return nil, mapErr(err)
		}
		return &prefsOutput{Body: saved}, nil
	})
}

func notifyAsync(n Notifier, mode string, rec present.Terminal) {
	if n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := n.Notify(ctx, mode, rec); err != nil {
			slog.Warn("critique notification failed", "error", err)
		}
	}()
}

// statusFor maps a terminal outcome to its HTTP status.
func statusFor(o critique.Outcome) int {
	if o.OK() {
		return http.StatusOK
	}
	switch o.Err.Kind {
	case critique.KindInvalidInput:
		if errors.Is(o.Err, critique.ErrBusy) {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case critique.KindCaptureFailed:
		return http.StatusServiceUnavailable
	case critique.KindTransportFailed, critique.KindRemoteServiceFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func normalizeMode(s string) critique.Mode {
	if m, ok := critique.ParseMode(s); ok {
		return m
	}
	return critique.Mode(s)
}

func serveHTML(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(page)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *checkservice.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case checkservice.CodeValidation, checkservice.CodeImageInvalid:
			return huma.Error400BadRequest(coded.Message)
		case checkservice.CodeModelUnavailable:
			return huma.Error500InternalServerError(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	var ce *critique.Error
	if errors.As(err, &ce) {
		switch ce.Kind {
		case critique.KindInvalidInput:
			return huma.Error400BadRequest(ce.Message)
		case critique.KindCaptureFailed:
			return huma.Error503ServiceUnavailable(ce.Message)
		default:
			return huma.Error502BadGateway(ce.Message)
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
