package checkservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const probePrompt = "Hello, this is a test. Please respond with 'API is working' if you can see this message."

// ProbeResult records one model attempt.
type ProbeResult struct {
	Model    string
	Response string
	Err      error
}

// ErrNoModelAnswered is returned when every candidate failed or stayed silent.
var ErrNoModelAnswered = errors.New("all model attempts failed")

// ProbeModels tries each candidate in order and stops at the first one that
// returns non-empty text. newModel builds the client for a candidate name.
func ProbeModels(ctx context.Context, candidates []string, newModel func(name string) (Model, error)) (string, []ProbeResult, error) {
	results := make([]ProbeResult, 0, len(candidates))
	for _, name := range candidates {
		if err := ctx.Err(); err != nil {
			return "", results, err
		}
		res := ProbeResult{Model: name}
		m, err := newModel(name)
		if err != nil {
			res.Err = err
			results = append(results, res)
			continue
		}
		text, err := m.Generate(ctx, probePrompt, "")
		switch {
		case err != nil:
			res.Err = err
		case strings.TrimSpace(text) == "":
			res.Err = fmt.Errorf("model %s returned empty response", name)
		default:
			res.Response = text
		}
		results = append(results, res)
		if res.Err == nil {
			slog.Info("model probe succeeded", "model", name)
			return name, results, nil
		}
		slog.Debug("model probe failed", "model", name, "error", res.Err)
	}
	return "", results, ErrNoModelAnswered
}
