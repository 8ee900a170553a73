// Command modelprobe checks that the vision model API key works and reports
// the first candidate model that answers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgnsrekt/design_assistant/internal/checkservice"
	"github.com/dgnsrekt/design_assistant/internal/config"
	"github.com/dgnsrekt/design_assistant/internal/logging"
)

func main() {
	models := flag.String("models", "", "comma-separated candidate models (default CHECK_PROBE_MODELS)")
	timeout := flag.Duration("timeout", 30*time.Second, "per-model timeout")
	flag.Parse()

	cfg, err := config.LoadCheckServer()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if err := logging.Setup(cfg.LogLevel, ""); err != nil {
		fmt.Fprintln(os.Stderr, "logger setup failed:", err)
		os.Exit(1)
	}

	if strings.TrimSpace(cfg.APIKey) == "" {
		fmt.Println("GEMINI_API_KEY is not set")
		fmt.Println("Create a key in your model provider's console and export it as GEMINI_API_KEY.")
		os.Exit(1)
	}
	fmt.Println("GEMINI_API_KEY is set")

	candidates := cfg.ProbeModels
	if *models != "" {
		candidates = nil
		for _, m := range strings.Split(*models, ",") {
			if m = strings.TrimSpace(m); m != "" {
				candidates = append(candidates, m)
			}
		}
	}

	newModel := func(name string) (checkservice.Model, error) {
		fmt.Printf("  trying model: %s\n", name)
		m, err := checkservice.NewVisionModel(cfg.APIKey, cfg.BaseURL, name)
		if err != nil {
			return nil, err
		}
		return timeoutModel{Model: m, timeout: *timeout}, nil
	}

	name, results, err := checkservice.ProbeModels(context.Background(), candidates, newModel)
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("  %s failed: %s\n", r.Model, excerpt(r.Err.Error(), 100))
		}
	}
	if err != nil {
		fmt.Println("all model attempts failed")
		slog.Debug("model probe finished", "attempts", len(results), "error", err)
		os.Exit(1)
	}
	fmt.Printf("connectivity test succeeded with model: %s\n", name)
	fmt.Printf("  response: %s\n", results[len(results)-1].Response)
}

type timeoutModel struct {
	checkservice.Model
	timeout time.Duration
}

func (m timeoutModel) Generate(ctx context.Context, prompt, image string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.Model.Generate(ctx, prompt, image)
}

func excerpt(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
