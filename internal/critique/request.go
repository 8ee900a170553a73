package critique

import (
	"encoding/base64"
	"strings"
	"time"
)

// Mode selects the kind of critique the analysis service performs.
type Mode string

const (
	ModeAccessibility Mode = "accessibility"
	ModeUX            Mode = "ux"
	ModeBranding      Mode = "branding"
	ModeCustom        Mode = "custom"
)

// ModeInfo describes a mode for the control panel selector.
type ModeInfo struct {
	Mode  Mode   `json:"mode"`
	Label string `json:"label"`
}

var modeLabels = []ModeInfo{
	{Mode: ModeAccessibility, Label: "Accessibility (WCAG Focus)"},
	{Mode: ModeUX, Label: "UX Critique"},
	{Mode: ModeBranding, Label: "Branding Audit"},
	{Mode: ModeCustom, Label: "Custom Question"},
}

// Modes lists every supported mode in display order.
func Modes() []ModeInfo {
	out := make([]ModeInfo, len(modeLabels))
	copy(out, modeLabels)
	return out
}

// ParseMode normalizes s and reports whether it names a known mode.
func ParseMode(s string) (Mode, bool) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeAccessibility, ModeUX, ModeBranding, ModeCustom:
		return m, true
	}
	return "", false
}

// Request is one user-initiated critique. Treat it as immutable.
type Request struct {
	Mode   Mode
	Prompt string
}

// NewRequest parses and validates a request from raw user input.
func NewRequest(mode, prompt string) (Request, error) {
	m, ok := ParseMode(mode)
	if !ok {
		return Request{}, NewError(KindInvalidInput, "unknown mode "+strings.TrimSpace(mode), nil)
	}
	req := Request{Mode: m}
	if m == ModeCustom {
		req.Prompt = strings.TrimSpace(prompt)
	}
	return req, req.Validate()
}

// Validate rejects unknown modes and custom requests without a prompt.
func (r Request) Validate() error {
	if _, ok := ParseMode(string(r.Mode)); !ok {
		return NewError(KindInvalidInput, "unknown mode "+string(r.Mode), nil)
	}
	if r.Mode == ModeCustom && strings.TrimSpace(r.Prompt) == "" {
		return NewError(KindInvalidInput, "Please enter your question.", nil)
	}
	return nil
}

// EffectivePrompt is the prompt that travels with the request: the trimmed
// prompt for custom mode, empty otherwise.
func (r Request) EffectivePrompt() string {
	if r.Mode != ModeCustom {
		return ""
	}
	return strings.TrimSpace(r.Prompt)
}

// CaptureResult is a still image of the visible tab, produced once per request.
type CaptureResult struct {
	Image      []byte
	Format     string
	CapturedAt time.Time
}

// DataURL encodes the image the way the analysis service expects it.
func (c CaptureResult) DataURL() string {
	format := c.Format
	if format == "" {
		format = "png"
	}
	return "data:image/" + format + ";base64," + base64.StdEncoding.EncodeToString(c.Image)
}

// Response is the successful result of an analysis.
type Response struct {
	Feedback              string
	ProcessingTimeSeconds float64
}

// Outcome is the terminal value of one Submit: either Response or Err is set.
type Outcome struct {
	Response       Response
	Err            *Error
	ElapsedSeconds int
}

func (o Outcome) OK() bool { return o.Err == nil }
