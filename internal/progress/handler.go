package progress

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SSEHandler streams broker events as server-sent events. Clients may
// restrict the stream with ?events=tick,terminal.
func SSEHandler(broker *Broker, keepAlive time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		var only map[string]bool
		if q := r.URL.Query().Get("events"); q != "" {
			only = make(map[string]bool)
			for _, name := range strings.Split(q, ",") {
				if name = strings.TrimSpace(name); name != "" {
					only[name] = true
				}
			}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		var ping <-chan time.Time
		if keepAlive > 0 {
			t := time.NewTicker(keepAlive)
			defer t.Stop()
			ping = t.C
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ping:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if only != nil && !only[evt.Name] {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Name, evt.Data)
				flusher.Flush()
			}
		}
	}
}
