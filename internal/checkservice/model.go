package checkservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Model is the vision model the service delegates critiques to.
type Model interface {
	Name() string
	// Generate sends prompt and an optional image data URL and returns the text answer.
	Generate(ctx context.Context, prompt, imageDataURL string) (string, error)
}

// VisionModel talks to any OpenAI-compatible chat completions endpoint.
type VisionModel struct {
	client *openai.Client
	model  string
}

// NewVisionModel builds a client for model at baseURL. An empty baseURL uses
// the library default.
func NewVisionModel(apiKey, baseURL, model string) (*VisionModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("model API key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("model name is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &VisionModel{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (m *VisionModel) Name() string { return m.model }

func (m *VisionModel) Generate(ctx context.Context, prompt, imageDataURL string) (string, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if imageDataURL == "" {
		msg.Content = prompt
	} else {
		msg.MultiContent = []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: prompt,
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: imageDataURL,
				},
			},
		}
	}

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    m.model,
		Messages: []openai.ChatCompletionMessage{msg},
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", m.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Ping sends a trivial text prompt to confirm the model answers.
func Ping(ctx context.Context, m Model) error {
	_, err := m.Generate(ctx, "Hello", "")
	return err
}
