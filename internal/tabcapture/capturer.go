// Package tabcapture produces a still image of the active, visible browser
// tab over the Chrome DevTools Protocol.
package tabcapture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/design_assistant/internal/critique"
)

var (
	// ErrNoActiveTab means the browser has no page tab that could be captured.
	ErrNoActiveTab = errors.New("no active tab")
	// ErrNoVisibleTab means page tabs exist but none of them is visible.
	ErrNoVisibleTab = errors.New("no visible tab")
)

const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// Options tune which tab is captured and how.
type Options struct {
	// URLFilter restricts candidates to tabs whose URL contains it.
	URLFilter string
	// Format is png (default) or jpeg.
	Format  string
	Quality int
	// Timeout bounds one whole capture. Zero means DefaultTimeout.
	Timeout time.Duration
	// HTTPClient is used for the /json endpoints.
	HTTPClient *http.Client
}

// DefaultTimeout applies when Options.Timeout is unset.
const DefaultTimeout = 15 * time.Second

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

func (o Options) format() string {
	if strings.EqualFold(o.Format, FormatJPEG) {
		return FormatJPEG
	}
	return FormatPNG
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return http.DefaultClient
}

// Candidates returns the page targets eligible for capture, in the order the
// browser reported them. DevTools windows and extension pages are skipped.
func Candidates(targets []*target.Info, urlFilter string) []*target.Info {
	var out []*target.Info
	for _, t := range targets {
		if t == nil || t.Type != "page" {
			continue
		}
		if strings.HasPrefix(t.URL, "devtools://") || strings.HasPrefix(t.URL, "chrome-extension://") {
			continue
		}
		if urlFilter != "" && !strings.Contains(t.URL, urlFilter) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// RawCapturer talks to the browser over a short-lived gobwas/ws connection.
type RawCapturer struct {
	httpBase string
	opts     Options
}

func NewRawCapturer(cdpURL string, opts Options) *RawCapturer {
	return &RawCapturer{httpBase: strings.TrimRight(cdpURL, "/"), opts: opts}
}

// Capture grabs the first visible candidate tab.
func (c *RawCapturer) Capture(ctx context.Context) (critique.CaptureResult, error) {
	return withTimeout(ctx, c.opts.timeout(), c.capture)
}

func (c *RawCapturer) capture(ctx context.Context) (critique.CaptureResult, error) {
	hc := c.opts.httpClient()
	targets, err := listTargets(ctx, hc, c.httpBase)
	if err != nil {
		return critique.CaptureResult{}, fmt.Errorf("list tabs: %w", err)
	}
	candidates := Candidates(targets, c.opts.URLFilter)
	if len(candidates) == 0 {
		return critique.CaptureResult{}, ErrNoActiveTab
	}

	conn, err := dialCDP(ctx, hc, c.httpBase)
	if err != nil {
		return critique.CaptureResult{}, err
	}
	defer conn.close()

	format := c.opts.format()
	for _, t := range candidates {
		sessionID, err := conn.attach(ctx, t.TargetID)
		if err != nil {
			if ctx.Err() != nil {
				return critique.CaptureResult{}, ctx.Err()
			}
			slog.Debug("capture attach failed", "target_id", t.TargetID, "error", err)
			continue
		}

		state, err := conn.visibilityState(ctx, sessionID)
		if ctx.Err() != nil {
			conn.detach(sessionID)
			return critique.CaptureResult{}, ctx.Err()
		}
		if err != nil || state != "visible" {
			slog.Debug("capture skip tab", "target_id", t.TargetID, "state", state, "error", err)
			conn.detach(sessionID)
			continue
		}

		img, err := conn.screenshot(ctx, sessionID, format, c.opts.Quality)
		conn.detach(sessionID)
		if err != nil {
			return critique.CaptureResult{}, fmt.Errorf("capture %s: %w", t.TargetID, err)
		}
		slog.Debug("captured tab", "target_id", t.TargetID, "url", t.URL, "bytes", len(img))
		return critique.CaptureResult{Image: img, Format: format, CapturedAt: time.Now()}, nil
	}
	return critique.CaptureResult{}, ErrNoVisibleTab
}

// ChromedpCapturer attaches to the chosen tab through chromedp. Target
// discovery goes through /json/list so no helper tab is ever opened.
type ChromedpCapturer struct {
	cdpURL string
	opts   Options
}

func NewChromedpCapturer(cdpURL string, opts Options) *ChromedpCapturer {
	return &ChromedpCapturer{cdpURL: strings.TrimRight(cdpURL, "/"), opts: opts}
}

func (c *ChromedpCapturer) Capture(ctx context.Context) (critique.CaptureResult, error) {
	return withTimeout(ctx, c.opts.timeout(), c.capture)
}

func (c *ChromedpCapturer) capture(ctx context.Context) (critique.CaptureResult, error) {
	targets, err := listTargets(ctx, c.opts.httpClient(), c.cdpURL)
	if err != nil {
		return critique.CaptureResult{}, fmt.Errorf("list tabs: %w", err)
	}
	candidates := Candidates(targets, c.opts.URLFilter)
	if len(candidates) == 0 {
		return critique.CaptureResult{}, ErrNoActiveTab
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, c.cdpURL)
	defer allocCancel()

	format := page.CaptureScreenshotFormatPng
	if c.opts.format() == FormatJPEG {
		format = page.CaptureScreenshotFormatJpeg
	}

	for _, t := range candidates {
		img, visible, err := c.captureTarget(allocCtx, t.TargetID, format)
		if err != nil {
			return critique.CaptureResult{}, fmt.Errorf("capture %s: %w", t.TargetID, err)
		}
		if !visible {
			slog.Debug("capture skip tab", "target_id", t.TargetID)
			continue
		}
		slog.Debug("captured tab", "target_id", t.TargetID, "url", t.URL, "bytes", len(img))
		return critique.CaptureResult{Image: img, Format: c.opts.format(), CapturedAt: time.Now()}, nil
	}
	return critique.CaptureResult{}, ErrNoVisibleTab
}

func (c *ChromedpCapturer) captureTarget(allocCtx context.Context, id target.ID, format page.CaptureScreenshotFormat) ([]byte, bool, error) {
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithTargetID(id))
	defer tabCancel()

	var state string
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(`document.visibilityState`, &state)); err != nil {
		return nil, false, err
	}
	if state != "visible" {
		return nil, false, nil
	}

	var img []byte
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		shot := page.CaptureScreenshot().WithFormat(format).WithFromSurface(true)
		if format == page.CaptureScreenshotFormatJpeg && c.opts.Quality > 0 {
			shot = shot.WithQuality(int64(c.opts.Quality))
		}
		var err error
		img, err = shot.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, true, err
	}
	return img, true, nil
}

// withTimeout runs fn under a deadline of d and names the deadline in the
// error when it is what stopped the capture.
func withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) (critique.CaptureResult, error)) (critique.CaptureResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	res, err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return critique.CaptureResult{}, fmt.Errorf("capture timed out after %s: %w", d, err)
	}
	return res, err
}

const (
	BackendRaw      = "raw"
	BackendChromedp = "chromedp"
)

// Capturer takes one screenshot of the visible tab.
type Capturer interface {
	Capture(ctx context.Context) (critique.CaptureResult, error)
}

// New returns the capturer for backend. Unknown backends use the raw client.
func New(backend, cdpURL string, opts Options) Capturer {
	if strings.EqualFold(backend, BackendChromedp) {
		return NewChromedpCapturer(cdpURL, opts)
	}
	return NewRawCapturer(cdpURL, opts)
}
