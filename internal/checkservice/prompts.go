package checkservice

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/design_assistant/internal/critique"
)

// FallbackPrompt is used for modes without a configured prompt.
const FallbackPrompt = "Please critique this website's UI."

var defaultPrompts = map[critique.Mode]string{
	critique.ModeAccessibility: `You are a senior UI designer and WCAG 2.1 accessibility specialist reviewing a screenshot of a web page.
Produce an accessibility audit as a hierarchical bullet list grouped by page region (header, main content, footer).
For every finding give:
- Category (color contrast, text alternatives, keyboard access, focus order, ...)
- The concrete problem and the user groups it affects
- The WCAG success criterion it violates
- A frontend fix naming the HTML elements, CSS properties, ARIA attributes or script changes involved, with concrete values where possible
- Priority (High, Medium or Low) and where on the page to apply it
Keep every point specific and implementable by a frontend developer.`,

	critique.ModeUX: `You are a senior UX designer giving a quick review of a web page screenshot.
Reply with a bullet list covering layout consistency, navigation flow, clarity of interactive elements, visual hierarchy and spacing, and likely behavior across mobile, tablet and desktop.
Start with one or two strengths. Then list areas for improvement, each with a summary, its effect on users, who is affected most, and a suggested redesign or frontend fix.`,

	critique.ModeBranding: `You are a senior brand strategist reviewing a web page screenshot for brand consistency.
Use clear bullet points covering color and grid consistency, typography, icon and imagery style, how copy tone matches the visuals, memorability, and differentiation from competitors.
For each point note what works or conflicts, how it shapes user trust and recall, a recommended change, and the frontend adjustment (classes, color tokens, fonts, asset styles) that implements it.`,

	critique.ModeCustom: `Analyze this web page screenshot and answer the user's question as a structured bullet list.`,
}

// Prompts resolves the instruction sent to the model for each mode.
type Prompts struct {
	byMode map[critique.Mode]string
}

func DefaultPrompts() *Prompts {
	m := make(map[critique.Mode]string, len(defaultPrompts))
	for k, v := range defaultPrompts {
		m[k] = v
	}
	return &Prompts{byMode: m}
}

type promptFile struct {
	Prompts map[string]string `yaml:"prompts"`
}

// LoadPrompts overlays the prompts in a YAML file on the defaults. An empty
// path returns the defaults.
//
//	prompts:
//	  ux: "Review the layout..."
func LoadPrompts(path string) (*Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompts file: %w", err)
	}
	var f promptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("prompts file: %w", err)
	}
	for name, text := range f.Prompts {
		mode, ok := critique.ParseMode(name)
		if !ok {
			return nil, fmt.Errorf("prompts file: unknown mode %q", name)
		}
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("prompts file: empty prompt for %s", mode)
		}
		p.byMode[mode] = strings.TrimSpace(text)
	}
	return p, nil
}

// For returns the prompt for mode, or FallbackPrompt if none is configured.
func (p *Prompts) For(mode critique.Mode) string {
	if text, ok := p.byMode[mode]; ok {
		return text
	}
	return FallbackPrompt
}
