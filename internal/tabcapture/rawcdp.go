package tabcapture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var errConnClosed = errors.New("rawcdp: connection closed")

// cdpConn is a minimal browser-level CDP connection using flattened sessions.
// It only speaks the handful of commands a capture needs, so it avoids
// chromedp's session bootstrap (auto-attach, target discovery) entirely.
type cdpConn struct {
	conn    net.Conn
	writeMu sync.Mutex
	seq     atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan cdpResponse
	// closed is set once the read loop has exited; no response can arrive after.
	closed bool

	closeOnce sync.Once
	done      chan struct{}
}

type cdpResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// dialCDP resolves the browser WebSocket URL from httpBase and connects.
func dialCDP(ctx context.Context, hc *http.Client, httpBase string) (*cdpConn, error) {
	wsURL, err := browserWSURL(ctx, hc, httpBase)
	if err != nil {
		return nil, fmt.Errorf("rawcdp: browser ws url: %w", err)
	}

	slog.Debug("rawcdp dial", "ws_url", wsURL)
	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("rawcdp: dial: %w", err)
	}

	c := &cdpConn{
		conn:    conn,
		pending: make(map[int64]chan cdpResponse),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *cdpConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.conn.Close(); err != nil {
			slog.Debug("rawcdp close failed", "error", err)
		}
	})
}

// readLoop routes command responses to their waiters. Events are ignored.
func (c *cdpConn) readLoop() {
	defer c.failPending()
	for {
		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
			default:
				slog.Debug("rawcdp read loop exit", "error", err)
			}
			return
		}

		var msg cdpResponse
		if json.Unmarshal(data, &msg) != nil || msg.ID == 0 {
			continue
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.pendingMu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

func (c *cdpConn) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// call sends method on sessionID ("" for the browser session), waits for the
// response and decodes its result into out (which may be nil).
func (c *cdpConn) call(ctx context.Context, sessionID, method string, params, out any) error {
	id := c.seq.Add(1)
	envelope := struct {
		ID        int64  `json:"id"`
		Method    string `json:"method"`
		SessionID string `json:"sessionId,omitempty"`
		Params    any    `json:"params,omitempty"`
	}{ID: id, Method: method, SessionID: sessionID, Params: params}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("rawcdp: marshal %s: %w", method, err)
	}

	ch := make(chan cdpResponse, 1)
	c.pendingMu.Lock()
	if c.closed {
		c.pendingMu.Unlock()
		return errConnClosed
	}
	c.pending[id] = ch
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	err = wsutil.WriteClientText(c.conn, data)
	c.writeMu.Unlock()
	if err != nil {
		c.dropPending(id)
		return fmt.Errorf("rawcdp: send %s: %w", method, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return errConnClosed
		}
		if resp.Error != nil {
			return fmt.Errorf("rawcdp: %s: %s", method, resp.Error.Message)
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("rawcdp: decode %s: %w", method, err)
		}
		return nil
	case <-c.done:
		c.dropPending(id)
		return errConnClosed
	case <-ctx.Done():
		c.dropPending(id)
		return ctx.Err()
	}
}

func (c *cdpConn) dropPending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *cdpConn) attach(ctx context.Context, id target.ID) (string, error) {
	var out struct {
		SessionID string `json:"sessionId"`
	}
	params := struct {
		TargetID string `json:"targetId"`
		Flatten  bool   `json:"flatten"`
	}{TargetID: string(id), Flatten: true}
	if err := c.call(ctx, "", "Target.attachToTarget", params, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("rawcdp: attach %s: empty session id", id)
	}
	return out.SessionID, nil
}

func (c *cdpConn) detach(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	params := struct {
		SessionID string `json:"sessionId"`
	}{SessionID: sessionID}
	if err := c.call(ctx, "", "Target.detachFromTarget", params, nil); err != nil {
		slog.Debug("rawcdp detach failed", "session_id", sessionID, "error", err)
	}
}

// visibilityState evaluates document.visibilityState in the page.
func (c *cdpConn) visibilityState(ctx context.Context, sessionID string) (string, error) {
	var out struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	params := struct {
		Expression    string `json:"expression"`
		ReturnByValue bool   `json:"returnByValue"`
	}{Expression: "document.visibilityState", ReturnByValue: true}
	if err := c.call(ctx, sessionID, "Runtime.evaluate", params, &out); err != nil {
		return "", err
	}
	if out.ExceptionDetails != nil {
		return "", fmt.Errorf("rawcdp: eval exception: %s", out.ExceptionDetails.Text)
	}
	var state string
	if err := json.Unmarshal(out.Result.Value, &state); err != nil {
		return "", fmt.Errorf("rawcdp: visibility state: %w", err)
	}
	return state, nil
}

// screenshot captures the visible viewport of the page and returns raw bytes.
func (c *cdpConn) screenshot(ctx context.Context, sessionID, format string, quality int) ([]byte, error) {
	params := struct {
		Format      string `json:"format"`
		Quality     int    `json:"quality,omitempty"`
		FromSurface bool   `json:"fromSurface"`
	}{Format: format, FromSurface: true}
	if format == "jpeg" && quality > 0 {
		params.Quality = quality
	}

	var out struct {
		Data string `json:"data"`
	}
	if err := c.call(ctx, sessionID, "Page.captureScreenshot", params, &out); err != nil {
		return nil, err
	}
	if out.Data == "" {
		return nil, errors.New("rawcdp: captureScreenshot returned no data")
	}
	img, err := base64.StdEncoding.DecodeString(out.Data)
	if err != nil {
		return nil, fmt.Errorf("rawcdp: decode screenshot: %w", err)
	}
	return img, nil
}

// listTargets fetches open targets from the /json/list endpoint. Chrome
// returns them most-recently-focused first.
func listTargets(ctx context.Context, hc *http.Client, httpBase string) ([]*target.Info, error) {
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	body, err := getJSON(listCtx, hc, httpBase+"/json/list")
	if err != nil {
		return nil, err
	}

	var entries []struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("rawcdp: decode /json/list: %w", err)
	}

	out := make([]*target.Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, &target.Info{
			TargetID: target.ID(e.ID),
			Type:     e.Type,
			Title:    e.Title,
			URL:      e.URL,
		})
	}
	return out, nil
}

func browserWSURL(ctx context.Context, hc *http.Client, httpBase string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, err := getJSON(ctx, hc, httpBase+"/json/version")
	if err != nil {
		return "", err
	}
	var info struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", err
	}
	if info.WebSocketDebuggerURL == "" {
		return "", errors.New("empty webSocketDebuggerUrl")
	}
	return info.WebSocketDebuggerURL, nil
}

func getJSON(ctx context.Context, hc *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rawcdp: %s: HTTP %d", strings.TrimPrefix(url, "http://"), resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
