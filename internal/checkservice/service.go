package checkservice

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dgnsrekt/design_assistant/internal/critique"
)

// NoFeedbackText replaces an empty model answer.
const NoFeedbackText = "No feedback generated from the vision model"

// CheckInput is one critique request as received over HTTP.
type CheckInput struct {
	Image  string
	Mode   string
	Prompt string
}

// CheckResult is a successful critique.
type CheckResult struct {
	Feedback       string
	ProcessingTime float64
	APIUsed        string
}

// Service turns an uploaded screenshot into model feedback.
type Service struct {
	model   Model
	prompts *Prompts
	cache   Cache
	image   ImageOptions
	now     func() time.Time
}

// NewService wires a model with prompts and an image cache. A nil prompts
// uses the defaults; a nil cache disables caching.
func NewService(model Model, prompts *Prompts, cache Cache, image ImageOptions) *Service {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &Service{model: model, prompts: prompts, cache: cache, image: image, now: time.Now}
}

func (s *Service) ModelName() string { return s.model.Name() }

// Check validates the upload, normalizes the image and asks the model for a critique.
func (s *Service) Check(ctx context.Context, in CheckInput) (CheckResult, error) {
	start := s.now()

	mode := critique.Mode(strings.ToLower(strings.TrimSpace(in.Mode)))
	if mode == "" {
		mode = critique.ModeAccessibility
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		prompt = s.prompts.For(mode)
	}
	slog.Info("check request", "mode", mode, "image_received", in.Image != "")

	if in.Image == "" {
		return CheckResult{}, newError(CodeValidation, "No image data received", nil)
	}

	compressed, err := s.compress(ctx, in.Image)
	if err != nil {
		return CheckResult{}, newError(CodeImageInvalid, "Image processing error: "+err.Error(), err)
	}

	text, err := s.model.Generate(ctx, prompt, JPEGDataURL(compressed))
	if err != nil {
		slog.Error("model request failed", "model", s.model.Name(), "error", err)
		return CheckResult{}, newError(CodeModelUnavailable, "API Error: "+err.Error(), err)
	}
	if text == "" {
		slog.Warn("empty response from model", "model", s.model.Name())
		text = NoFeedbackText
	}

	return CheckResult{
		Feedback:       text,
		ProcessingTime: s.now().Sub(start).Seconds(),
		APIUsed:        s.model.Name(),
	}, nil
}

func (s *Service) compress(ctx context.Context, dataURL string) ([]byte, error) {
	raw, err := ParseDataURL(dataURL, s.image.MaxBytes)
	if err != nil {
		return nil, err
	}
	key := CacheKey(raw)
	if s.cache != nil {
		if data, ok := s.cache.Get(ctx, key); ok {
			slog.Debug("image cache hit", "key", key[:12])
			return data, nil
		}
	}
	data, err := Compress(raw, s.image)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, data)
	}
	return data, nil
}

// Health pings the model.
func (s *Service) Health(ctx context.Context) error {
	return Ping(ctx, s.model)
}
