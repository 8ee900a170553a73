// Package relay owns tab capture. It answers each capture message with
// exactly one reply after capturing the active tab and delegating the image
// to the analysis service.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgnsrekt/design_assistant/internal/critique"
)

// Capturer produces a still image of the active, visible tab.
type Capturer interface {
	Capture(ctx context.Context) (critique.CaptureResult, error)
}

// Analyzer sends one capture to the analysis service.
type Analyzer interface {
	Analyze(ctx context.Context, capture critique.CaptureResult, mode critique.Mode, prompt string) (critique.Response, error)
}

type Relay struct {
	capturer Capturer
	analyzer Analyzer
}

func New(capturer Capturer, analyzer Analyzer) *Relay {
	return &Relay{capturer: capturer, analyzer: analyzer}
}

// Handle processes msg and calls send exactly once, also when capture or
// analysis panics.
func (r *Relay) Handle(ctx context.Context, msg critique.Message, send func(critique.Reply)) {
	h := &replyHandle{id: msg.ID, send: send}
	defer func() { h.release(recover()) }()

	h.reply(r.process(ctx, msg))
}

func (r *Relay) process(ctx context.Context, msg critique.Message) critique.Reply {
	log := slog.With("id", msg.ID)
	log.Debug("relay state", "state", "dispatched", "mode", msg.Mode)

	req, err := msg.Request()
	if err != nil {
		// Requests are validated before they are sent, so a rejection here
		// means the two sides disagree about the protocol.
		log.Debug("relay rejected message", "error", err)
		return critique.ErrorReply(msg.ID, critique.NewError(critique.KindTransportFailed, "relay rejected message: "+critique.AsError(err).Message, err))
	}

	log.Debug("relay state", "state", "capturing")
	capture, err := r.capturer.Capture(ctx)
	if err != nil {
		log.Debug("relay state", "state", "capturing_failed", "error", err)
		return critique.ErrorReply(msg.ID, critique.NewError(critique.KindCaptureFailed, err.Error(), err))
	}
	log.Debug("relay state", "state", "capturing_ok", "bytes", len(capture.Image))

	log.Debug("relay state", "state", "analyzing")
	resp, err := r.analyzer.Analyze(ctx, capture, req.Mode, req.EffectivePrompt())
	if err != nil {
		log.Debug("relay state", "state", "analyzing_failed", "error", err)
		return critique.ErrorReply(msg.ID, err)
	}
	log.Debug("relay state", "state", "analyzing_ok", "processing_time", resp.ProcessingTimeSeconds)
	return critique.SuccessReply(msg.ID, resp)
}

// replyHandle delivers at most one reply; release guarantees at least one.
type replyHandle struct {
	id   string
	send func(critique.Reply)

	mu   sync.Mutex
	sent bool
}

func (h *replyHandle) reply(r critique.Reply) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sent {
		slog.Warn("relay duplicate reply dropped", "id", h.id)
		return false
	}
	h.sent = true
	h.send(r)
	return true
}

func (h *replyHandle) release(fault any) {
	h.mu.Lock()
	sent := h.sent
	h.mu.Unlock()

	if fault != nil {
		slog.Error("relay fault", "id", h.id, "panic", fault)
		if !sent {
			h.reply(critique.ErrorReply(h.id, critique.NewError(critique.KindTransportFailed, fmt.Sprintf("relay fault: %v", fault), nil)))
		}
		return
	}
	if !sent {
		h.reply(critique.ErrorReply(h.id, critique.NewError(critique.KindTransportFailed, "relay finished without a reply", nil)))
	}
}

// LocalPort runs the relay in its own goroutine for every message and hands
// back its single reply.
type LocalPort struct {
	relay *Relay
}

func NewLocalPort(r *Relay) *LocalPort {
	return &LocalPort{relay: r}
}

func (p *LocalPort) Send(ctx context.Context, msg critique.Message) (critique.Reply, error) {
	ch := make(chan critique.Reply, 1)
	go p.relay.Handle(ctx, msg, func(reply critique.Reply) { ch <- reply })

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return critique.Reply{}, critique.NewError(critique.KindTransportFailed, "Failed to communicate with background relay", ctx.Err())
	}
}
