package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/dmitrymomot/schoolfeed/pkg/logger"
)

// heartbeatEvent keeps idle streams open through proxies.
const heartbeatEvent = datastar.EventType("heartbeat")

// stream serves feed events as server-sent events. Each event is named
// after its kind (added or stats) and carries the JSON-encoded event as
// data. The stream honours the same query filters as the list endpoint and
// ends when the client goes away, the server shuts down, or the subscriber
// is dropped for falling behind.
func (h *handler) stream(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r.URL.Query())
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		h.fail(w, r, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	ctx := r.Context()
	sub := h.feed.Subscribe(ctx, f)
	defer func() { _ = sub.Close() }()

	w.Header().Set("X-Accel-Buffering", "no")
	sse := datastar.NewSSE(w, r)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := sse.Send(heartbeatEvent, []string{"{}"}); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				h.logger.LogAttrs(ctx, slog.LevelWarn, "failed to encode stream event", logger.Error(err))
				continue
			}
			if err := sse.Send(datastar.EventType(ev.Kind), []string{string(payload)}); err != nil {
				return
			}
		}
	}
}
