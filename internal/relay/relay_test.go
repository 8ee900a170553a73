package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/dgnsrekt/design_assistant/internal/critique"
)

type fakeCapturer struct {
	img   []byte
	err   error
	panic any
	calls int
}

func (f *fakeCapturer) Capture(context.Context) (critique.CaptureResult, error) {
	f.calls++
	if f.panic != nil {
		panic(f.panic)
	}
	if f.err != nil {
		return critique.CaptureResult{}, f.err
	}
	return critique.CaptureResult{Image: f.img, Format: "png", CapturedAt: time.Now()}, nil
}

type fakeAnalyzer struct {
	resp  critique.Response
	err   error
	panic any

	calls  int
	mode   critique.Mode
	prompt string
	image  []byte
}

func (f *fakeAnalyzer) Analyze(_ context.Context, c critique.CaptureResult, mode critique.Mode, prompt string) (critique.Response, error) {
	f.calls++
	f.mode, f.prompt, f.image = mode, prompt, c.Image
	if f.panic != nil {
		panic(f.panic)
	}
	return f.resp, f.err
}

// collect runs Handle and returns every reply it sent.
func collect(t *testing.T, r *Relay, msg critique.Message) []critique.Reply {
	t.Helper()
	var replies []critique.Reply
	r.Handle(context.Background(), msg, func(reply critique.Reply) { replies = append(replies, reply) })
	return replies
}

func captureMsg(mode, prompt string) critique.Message {
	return critique.Message{ID: "m1", Action: critique.ActionCapture, Mode: mode, Prompt: prompt}
}

func TestHandleRepliesExactlyOnce(t *testing.T) {
	tests := []struct {
		name         string
		msg          critique.Message
		capturer     *fakeCapturer
		analyzer     *fakeAnalyzer
		wantKind     critique.Kind
		wantMsg      string
		wantAnalyzed int
	}{
		{
			name:         "success",
			msg:          captureMsg("accessibility", ""),
			capturer:     &fakeCapturer{img: []byte("png")},
			analyzer:     &fakeAnalyzer{resp: critique.Response{Feedback: "Fix contrast on buttons.", ProcessingTimeSeconds: 3}},
			wantAnalyzed: 1,
		},
		{
			name:     "capture failure skips analysis",
			msg:      captureMsg("ux", ""),
			capturer: &fakeCapturer{err: errors.New("no active tab")},
			analyzer: &fakeAnalyzer{},
			wantKind: critique.KindCaptureFailed,
			wantMsg:  "no active tab",
		},
		{
			name:         "remote failure preserved",
			msg:          captureMsg("branding", ""),
			capturer:     &fakeCapturer{img: []byte("png")},
			analyzer:     &fakeAnalyzer{err: critique.NewError(critique.KindRemoteServiceFailed, "HTTP error! status: 500", nil)},
			wantKind:     critique.KindRemoteServiceFailed,
			wantMsg:      "HTTP error! status: 500",
			wantAnalyzed: 1,
		},
		{
			name:         "unclassified analysis error",
			msg:          captureMsg("ux", ""),
			capturer:     &fakeCapturer{img: []byte("png")},
			analyzer:     &fakeAnalyzer{err: errors.New("connection reset")},
			wantKind:     critique.KindTransportFailed,
			wantMsg:      "connection reset",
			wantAnalyzed: 1,
		},
		{
			name:     "capture panic",
			msg:      captureMsg("ux", ""),
			capturer: &fakeCapturer{panic: "encoder exploded"},
			analyzer: &fakeAnalyzer{},
			wantKind: critique.KindTransportFailed,
			wantMsg:  "relay fault: encoder exploded",
		},
		{
			name:         "analysis panic",
			msg:          captureMsg("ux", ""),
			capturer:     &fakeCapturer{img: []byte("png")},
			analyzer:     &fakeAnalyzer{panic: errors.New("nil map")},
			wantKind:     critique.KindTransportFailed,
			wantMsg:      "relay fault: nil map",
			wantAnalyzed: 1,
		},
		{
			name:     "unknown action",
			msg:      critique.Message{ID: "m1", Action: "scroll", Mode: "ux"},
			capturer: &fakeCapturer{},
			analyzer: &fakeAnalyzer{},
			wantKind: critique.KindTransportFailed,
			wantMsg:  "relay rejected message",
		},
		{
			name:     "custom without prompt",
			msg:      captureMsg("custom", "  "),
			capturer: &fakeCapturer{},
			analyzer: &fakeAnalyzer{},
			wantKind: critique.KindTransportFailed,
			wantMsg:  "relay rejected message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replies := collect(t, New(tt.capturer, tt.analyzer), tt.msg)
			if len(replies) != 1 {
				t.Fatalf("Handle() sent %d replies; want 1", len(replies))
			}
			reply := replies[0]
			if reply.ID != "m1" {
				t.Fatalf("reply id = %q; want m1", reply.ID)
			}
			if tt.analyzer.calls != tt.wantAnalyzed {
				t.Fatalf("analyzer calls = %d; want %d", tt.analyzer.calls, tt.wantAnalyzed)
			}

			resp, err := reply.Decode("m1")
			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("Decode() = %v; want success", err)
				}
				if resp.Feedback != "Fix contrast on buttons." || resp.ProcessingTimeSeconds != 3 {
					t.Fatalf("Decode() = %+v", resp)
				}
				return
			}
			if critique.KindOf(err) != tt.wantKind {
				t.Fatalf("kind = %q; want %q (err=%v)", critique.KindOf(err), tt.wantKind, err)
			}
			if tt.wantMsg != "" && !strings.Contains(reply.Message, tt.wantMsg) {
				t.Fatalf("message = %q; want to contain %q", reply.Message, tt.wantMsg)
			}
		})
	}
}

func TestHandlePassesModeAndPrompt(t *testing.T) {
	a := &fakeAnalyzer{resp: critique.Response{Feedback: "ok"}}
	collect(t, New(&fakeCapturer{img: []byte("shot")}, a), captureMsg("custom", " Is the CTA visible? "))
	if a.mode != critique.ModeCustom || a.prompt != "Is the CTA visible?" {
		t.Fatalf("analyzer got mode=%q prompt=%q", a.mode, a.prompt)
	}
	if string(a.image) != "shot" {
		t.Fatalf("analyzer got image %q; want the capture", a.image)
	}

	a = &fakeAnalyzer{resp: critique.Response{Feedback: "ok"}}
	collect(t, New(&fakeCapturer{img: []byte("shot")}, a), captureMsg("ux", "stray"))
	if a.prompt != "" {
		t.Fatalf("preset mode prompt = %q; want empty", a.prompt)
	}
}

func TestReplyHandle(t *testing.T) {
	var got []critique.Reply
	h := &replyHandle{id: "x", send: func(r critique.Reply) { got = append(got, r) }}

	if !h.reply(critique.Reply{ID: "x", Success: true}) {
		t.Fatal("first reply should be delivered")
	}
	if h.reply(critique.Reply{ID: "x", Error: true}) {
		t.Fatal("second reply should be dropped")
	}
	h.release(nil)
	h.release("late panic")
	if len(got) != 1 || !got[0].Success {
		t.Fatalf("replies = %+v; want the first one only", got)
	}

	got = nil
	h = &replyHandle{id: "y", send: func(r critique.Reply) { got = append(got, r) }}
	h.release(nil)
	if len(got) != 1 || critique.Kind(got[0].Kind) != critique.KindTransportFailed {
		t.Fatalf("release without reply = %+v; want one transport error", got)
	}
}

type blockingCapturer struct{ release chan struct{} }

func (b *blockingCapturer) Capture(ctx context.Context) (critique.CaptureResult, error) {
	select {
	case <-b.release:
		return critique.CaptureResult{Image: []byte("png")}, nil
	case <-ctx.Done():
		return critique.CaptureResult{}, ctx.Err()
	}
}

func TestLocalPort(t *testing.T) {
	port := NewLocalPort(New(&fakeCapturer{img: []byte("png")}, &fakeAnalyzer{resp: critique.Response{Feedback: "ok"}}))
	reply, err := port.Send(context.Background(), captureMsg("ux", ""))
	if err != nil {
		t.Fatalf("Send() = %v", err)
	}
	if !reply.Success || reply.Feedback != "ok" {
		t.Fatalf("Send() = %+v", reply)
	}

	blocked := NewLocalPort(New(&blockingCapturer{release: make(chan struct{})}, &fakeAnalyzer{}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = blocked.Send(ctx, captureMsg("ux", ""))
	if critique.KindOf(err) != critique.KindTransportFailed {
		t.Fatalf("Send() kind = %q; want transport (err=%v)", critique.KindOf(err), err)
	}
}

func TestWSRoundTrip(t *testing.T) {
	a := &fakeAnalyzer{resp: critique.Response{Feedback: "Fix contrast on buttons.", ProcessingTimeSeconds: 3}}
	srv := httptest.NewServer(WSHandler(New(&fakeCapturer{img: []byte("png")}, a)))
	defer srv.Close()

	port := NewWSPort("ws"+strings.TrimPrefix(srv.URL, "http"), 5*time.Second)
	msg := critique.NewCaptureMessage(critique.Request{Mode: critique.ModeAccessibility})
	reply, err := port.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("Send() = %v", err)
	}
	resp, err := reply.Decode(msg.ID)
	if err != nil {
		t.Fatalf("Decode() = %v", err)
	}
	if resp.Feedback != "Fix contrast on buttons." || resp.ProcessingTimeSeconds != 3 {
		t.Fatalf("Decode() = %+v", resp)
	}
}

func TestWSHandlerMalformedMessage(t *testing.T) {
	srv := httptest.NewServer(WSHandler(New(&fakeCapturer{}, &fakeAnalyzer{})))
	defer srv.Close()

	conn, _, _, err := ws.Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := wsutil.WriteClientText(conn, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := wsutil.ReadServerText(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"transport_failed"`) {
		t.Fatalf("reply = %s; want transport_failed", data)
	}
}

func TestWSPortDroppedConnection(t *testing.T) {
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		once.Do(func() { _, _ = wsutil.ReadClientText(conn) })
		conn.Close()
	}))
	defer srv.Close()

	_, err := NewWSPort("ws"+strings.TrimPrefix(srv.URL, "http"), 5*time.Second).Send(context.Background(), captureMsg("ux", ""))
	if critique.KindOf(err) != critique.KindTransportFailed {
		t.Fatalf("Send() kind = %q; want transport (err=%v)", critique.KindOf(err), err)
	}

	srv.Close()
	_, err = NewWSPort("ws"+strings.TrimPrefix(srv.URL, "http"), 5*time.Second).Send(context.Background(), captureMsg("ux", ""))
	if critique.KindOf(err) != critique.KindTransportFailed {
		t.Fatalf("Send() to closed relay kind = %q; want transport", critique.KindOf(err))
	}
}

func TestWSPortTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(WSHandler(New(&blockingCapturer{release: release}, &fakeAnalyzer{})))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewWSPort("ws"+strings.TrimPrefix(srv.URL, "http"), 100*time.Millisecond).Send(context.Background(), captureMsg("ux", ""))
	if critique.KindOf(err) != critique.KindTransportFailed {
		t.Fatalf("Send() kind = %q; want transport (err=%v)", critique.KindOf(err), err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Send() returned after %v; want prompt timeout", elapsed)
	}
}
