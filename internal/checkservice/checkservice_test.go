package checkservice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/dgnsrekt/design_assistant/internal/critique"
)

type fakeModel struct {
	mu      sync.Mutex
	text    string
	err     error
	prompts []string
	images  []string
}

func (m *fakeModel) Name() string { return "fake-vision" }

func (m *fakeModel) Generate(_ context.Context, prompt, imageDataURL string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	m.images = append(m.images, imageDataURL)
	return m.text, m.err
}

type countingCache struct {
	*MemoryCache
	sets int
}

func (c *countingCache) Set(ctx context.Context, key string, data []byte) {
	c.sets++
	c.MemoryCache.Set(ctx, key, data)
}

func pngDataURL(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.NRGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() = %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		max     int
		wantErr string
	}{
		{name: "valid", in: "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("abc")), max: 1024},
		{name: "not a data url", in: "http://example.com/a.png", max: 1024, wantErr: "Invalid image format"},
		{name: "no payload", in: "data:image/png;base64", max: 1024, wantErr: "Invalid image format"},
		{name: "too large", in: "data:image/png;base64," + strings.Repeat("A", 64), max: 32, wantErr: "Image too large"},
		{name: "bad base64", in: "data:image/png;base64,@@@", max: 1024, wantErr: "base64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDataURL(tt.in, tt.max)
			if tt.wantErr == "" {
				if err != nil || string(got) != "abc" {
					t.Fatalf("ParseDataURL() = %q, %v; want abc", got, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("ParseDataURL() err = %v; want %q", err, tt.wantErr)
			}
		})
	}
}

func TestCompressResizesToJPEG(t *testing.T) {
	raw, err := ParseDataURL(pngDataURL(t, 1280, 720), 0)
	if err != nil {
		t.Fatalf("ParseDataURL() = %v", err)
	}
	out, err := Compress(raw, DefaultImageOptions())
	if err != nil {
		t.Fatalf("Compress() = %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not jpeg: %v", err)
	}
	if cfg.Width != 800 || cfg.Height != 600 {
		t.Fatalf("size = %dx%d; want 800x600", cfg.Width, cfg.Height)
	}

	if _, err := Compress([]byte("not an image"), DefaultImageOptions()); err == nil {
		t.Fatal("Compress(garbage) err = nil")
	}
}

func TestMemoryCacheExpires(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"))
	if got, ok := c.Get(ctx, "k"); !ok || string(got) != "v" {
		t.Fatalf("Get() = %q, %v; want v", got, ok)
	}
	now = now.Add(time.Minute)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("Get() after ttl = hit; want miss")
	}

	off := NewMemoryCache(0)
	off.Set(ctx, "k", []byte("v"))
	if _, ok := off.Get(ctx, "k"); ok {
		t.Fatal("zero ttl cache stored an entry")
	}
}

func TestRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() = %v", err)
	}
	t.Cleanup(mr.Close)

	ctx := context.Background()
	c, err := NewRedisCache(ctx, "redis://"+mr.Addr()+"/0", 5*time.Minute)
	if err != nil {
		t.Fatalf("NewRedisCache() = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Fatal("Get(missing) = hit")
	}
	c.Set(ctx, "abc", []byte{1, 2, 3})
	got, ok := c.Get(ctx, "abc")
	if !ok || !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("Get() = %v, %v", got, ok)
	}
	if ttl := mr.TTL(redisKeyPrefix + "abc"); ttl != 5*time.Minute {
		t.Fatalf("TTL = %v; want 5m", ttl)
	}

	mr.FastForward(6 * time.Minute)
	if _, ok := c.Get(ctx, "abc"); ok {
		t.Fatal("Get() after expiry = hit")
	}
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() = %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisCache(context.Background(), "redis://"+addr, time.Minute); err == nil {
		t.Fatal("NewRedisCache() err = nil for closed server")
	}
	if _, err := NewRedisCache(context.Background(), "::bad::", time.Minute); err == nil {
		t.Fatal("NewRedisCache() err = nil for bad url")
	}
}

func TestPromptsFor(t *testing.T) {
	p := DefaultPrompts()
	for _, m := range []critique.Mode{critique.ModeAccessibility, critique.ModeUX, critique.ModeBranding, critique.ModeCustom} {
		if p.For(m) == "" || p.For(m) == FallbackPrompt {
			t.Fatalf("For(%s) has no built-in prompt", m)
		}
	}
	if got := p.For("holistic"); got != FallbackPrompt {
		t.Fatalf("For(unknown) = %q; want fallback", got)
	}
}

func TestLoadPrompts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	if err := os.WriteFile(path, []byte("prompts:\n  UX: \"  Review spacing only.  \"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	p, err := LoadPrompts(path)
	if err != nil {
		t.Fatalf("LoadPrompts() = %v", err)
	}
	if got := p.For(critique.ModeUX); got != "Review spacing only." {
		t.Fatalf("For(ux) = %q", got)
	}
	if p.For(critique.ModeBranding) != DefaultPrompts().For(critique.ModeBranding) {
		t.Fatal("override replaced an unrelated prompt")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("prompts:\n  holistic: x\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	if _, err := LoadPrompts(bad); err == nil {
		t.Fatal("LoadPrompts(unknown mode) err = nil")
	}
	if _, err := LoadPrompts(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("LoadPrompts(missing) err = nil")
	}
	if p, err := LoadPrompts(""); err != nil || p.For(critique.ModeUX) != DefaultPrompts().For(critique.ModeUX) {
		t.Fatalf("LoadPrompts(\"\") = %v", err)
	}
}

func TestServiceCheck(t *testing.T) {
	img := pngDataURL(t, 64, 48)

	tests := []struct {
		name       string
		in         CheckInput
		model      *fakeModel
		wantCode   string
		wantPrompt string
		wantText   string
	}{
		{
			name:       "defaults to accessibility",
			in:         CheckInput{Image: img},
			model:      &fakeModel{text: "Raise contrast."},
			wantPrompt: DefaultPrompts().For(critique.ModeAccessibility),
			wantText:   "Raise contrast.",
		},
		{
			name:       "explicit prompt wins",
			in:         CheckInput{Image: img, Mode: "custom", Prompt: "Is the CTA visible?"},
			model:      &fakeModel{text: "Yes."},
			wantPrompt: "Is the CTA visible?",
			wantText:   "Yes.",
		},
		{
			name:       "unknown mode uses fallback",
			in:         CheckInput{Image: img, Mode: "holistic"},
			model:      &fakeModel{text: "ok"},
			wantPrompt: FallbackPrompt,
			wantText:   "ok",
		},
		{
			name:       "empty answer",
			in:         CheckInput{Image: img, Mode: "ux"},
			model:      &fakeModel{},
			wantPrompt: DefaultPrompts().For(critique.ModeUX),
			wantText:   NoFeedbackText,
		},
		{name: "missing image", in: CheckInput{Mode: "ux"}, model: &fakeModel{}, wantCode: CodeValidation},
		{name: "bad image", in: CheckInput{Image: "data:image/png;base64,AAAA"}, model: &fakeModel{}, wantCode: CodeImageInvalid},
		{name: "model failure", in: CheckInput{Image: img}, model: &fakeModel{err: errors.New("quota exceeded")}, wantCode: CodeModelUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.model, nil, NewMemoryCache(time.Minute), DefaultImageOptions())
			got, err := svc.Check(context.Background(), tt.in)
			if tt.wantCode != "" {
				var coded *CodedError
				if !errors.As(err, &coded) || coded.Code != tt.wantCode {
					t.Fatalf("Check() err = %v; want code %s", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("Check() = %v", err)
			}
			if got.Feedback != tt.wantText || got.APIUsed != "fake-vision" || got.ProcessingTime < 0 {
				t.Fatalf("Check() = %+v", got)
			}
			if len(tt.model.prompts) != 1 || tt.model.prompts[0] != tt.wantPrompt {
				t.Fatalf("prompt = %q; want %q", tt.model.prompts, tt.wantPrompt)
			}
			if !strings.HasPrefix(tt.model.images[0], "data:image/jpeg;base64,") {
				t.Fatalf("image sent = %.40q; want jpeg data url", tt.model.images[0])
			}
		})
	}
}

func TestServiceCheckModelErrorMessage(t *testing.T) {
	svc := NewService(&fakeModel{err: errors.New("quota exceeded")}, nil, nil, DefaultImageOptions())
	_, err := svc.Check(context.Background(), CheckInput{Image: pngDataURL(t, 8, 8)})
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Message != "API Error: quota exceeded" {
		t.Fatalf("Check() err = %v", err)
	}
}

func TestServiceCheckCachesByContent(t *testing.T) {
	cache := &countingCache{MemoryCache: NewMemoryCache(time.Minute)}
	model := &fakeModel{text: "ok"}
	svc := NewService(model, nil, cache, DefaultImageOptions())

	a := pngDataURL(t, 32, 32)
	b := pngDataURL(t, 40, 30)
	for _, img := range []string{a, a, b} {
		if _, err := svc.Check(context.Background(), CheckInput{Image: img}); err != nil {
			t.Fatalf("Check() = %v", err)
		}
	}
	if cache.sets != 2 {
		t.Fatalf("cache sets = %d; want 2 (one per distinct image)", cache.sets)
	}
	if model.images[0] != model.images[1] {
		t.Fatal("identical uploads produced different model images")
	}
}

func chatServer(t *testing.T, handle func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		handle(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeCompletion(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": text}, "finish_reason": "stop"}},
	})
}

func TestVisionModelGenerate(t *testing.T) {
	var got map[string]any
	srv := chatServer(t, func(w http.ResponseWriter, body map[string]any) {
		got = body
		writeCompletion(w, "  Looks clean.  ")
	})

	m, err := NewVisionModel("test-key", srv.URL+"/v1/", "vision-1")
	if err != nil {
		t.Fatalf("NewVisionModel() = %v", err)
	}
	text, err := m.Generate(context.Background(), "critique", "data:image/jpeg;base64,AAAA")
	if err != nil {
		t.Fatalf("Generate() = %v", err)
	}
	if text != "Looks clean." {
		t.Fatalf("Generate() = %q", text)
	}
	if got["model"] != "vision-1" {
		t.Fatalf("model = %v", got["model"])
	}
	msgs := got["messages"].([]any)
	parts := msgs[0].(map[string]any)["content"].([]any)
	if len(parts) != 2 {
		t.Fatalf("content parts = %d; want text and image", len(parts))
	}
	imagePart := parts[1].(map[string]any)
	if imagePart["type"] != "image_url" || imagePart["image_url"].(map[string]any)["url"] != "data:image/jpeg;base64,AAAA" {
		t.Fatalf("image part = %v", imagePart)
	}
}

func TestVisionModelErrors(t *testing.T) {
	if _, err := NewVisionModel("", "", "m"); err == nil {
		t.Fatal("NewVisionModel(no key) err = nil")
	}
	srv := chatServer(t, func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"rate_limit"}}`))
	})
	m, _ := NewVisionModel("test-key", srv.URL+"/v1", "vision-1")
	if err := Ping(context.Background(), m); err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("Ping() = %v; want quota error", err)
	}
}

func TestProbeModels(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, body map[string]any) {
		switch body["model"] {
		case "gone":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
		case "quiet":
			writeCompletion(w, "")
		default:
			writeCompletion(w, "API is working")
		}
	})
	newModel := func(name string) (Model, error) {
		return NewVisionModel("test-key", srv.URL+"/v1", name)
	}

	name, results, err := ProbeModels(context.Background(), []string{"gone", "quiet", "live", "never"}, newModel)
	if err != nil {
		t.Fatalf("ProbeModels() = %v", err)
	}
	if name != "live" || len(results) != 3 {
		t.Fatalf("ProbeModels() = %q, %d results; want live after 3 attempts", name, len(results))
	}
	if results[0].Err == nil || results[1].Err == nil || results[2].Response != "API is working" {
		t.Fatalf("results = %+v", results)
	}

	if _, _, err := ProbeModels(context.Background(), []string{"gone"}, newModel); !errors.Is(err, ErrNoModelAnswered) {
		t.Fatalf("ProbeModels(all fail) = %v; want ErrNoModelAnswered", err)
	}
}
