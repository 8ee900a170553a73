package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/dgnsrekt/design_assistant/internal/critique"
)

const messageReadTimeout = 10 * time.Second

// WSHandler serves the relay over WebSocket. Every connection carries one
// message and one reply, then closes.
func WSHandler(r *Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(req, w)
		if err != nil {
			slog.Warn("relay upgrade failed", "remote", req.RemoteAddr, "error", err)
			return
		}
		defer conn.Close()

		_ = conn.SetReadDeadline(time.Now().Add(messageReadTimeout))
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			slog.Debug("relay read failed", "remote", req.RemoteAddr, "error", err)
			return
		}
		_ = conn.SetReadDeadline(time.Time{})

		var msg critique.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			writeReply(conn, critique.ErrorReply("", critique.NewError(critique.KindTransportFailed, "malformed relay message", err)))
			return
		}
		r.Handle(req.Context(), msg, func(reply critique.Reply) { writeReply(conn, reply) })
	}
}

func writeReply(conn net.Conn, reply critique.Reply) {
	data, err := json.Marshal(reply)
	if err != nil {
		slog.Error("relay reply marshal failed", "id", reply.ID, "error", err)
		return
	}
	if err := wsutil.WriteServerText(conn, data); err != nil {
		slog.Warn("relay reply write failed", "id", reply.ID, "error", err)
	}
}

// WSPort sends each message over a fresh WebSocket connection to a relay
// served by WSHandler.
type WSPort struct {
	url     string
	timeout time.Duration
}

// NewWSPort returns a port for the relay at url. A positive timeout bounds
// each exchange from dial to reply.
func NewWSPort(url string, timeout time.Duration) *WSPort {
	return &WSPort{url: url, timeout: timeout}
}

func (p *WSPort) Send(ctx context.Context, msg critique.Message) (critique.Reply, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	conn, _, _, err := ws.Dial(ctx, p.url)
	if err != nil {
		return critique.Reply{}, transportErr(err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	data, err := json.Marshal(msg)
	if err != nil {
		return critique.Reply{}, transportErr(err)
	}
	if err := wsutil.WriteClientText(conn, data); err != nil {
		return critique.Reply{}, transportErr(err)
	}

	raw, err := wsutil.ReadServerText(conn)
	if err != nil {
		return critique.Reply{}, transportErr(err)
	}
	var reply critique.Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return critique.Reply{}, critique.NewError(critique.KindTransportFailed, "malformed relay reply", err)
	}
	return reply, nil
}

func transportErr(err error) error {
	return critique.NewError(critique.KindTransportFailed, "Failed to communicate with background relay", err)
}
