package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/schoolfeed/pkg/logger"
	"github.com/dmitrymomot/schoolfeed/pkg/notifications"
)

// maxBodySize bounds request bodies.
const maxBodySize = 64 << 10

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r.URL.Query())
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	h.json(w, r, http.StatusOK, h.feed.View(f))
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r.URL.Query())
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	h.json(w, r, http.StatusOK, h.feed.Stats(f))
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	n, ok := h.feed.Get(chi.URLParam(r, "id"))
	if !ok {
		h.fail(w, r, http.StatusNotFound, errors.New("notification not found"))
		return
	}
	h.json(w, r, http.StatusOK, n)
}

func (h *handler) send(w http.ResponseWriter, r *http.Request) {
	var in notifications.Input
	if err := decodeBody(r, &in); err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(in.Title) == "" {
		h.fail(w, r, http.StatusUnprocessableEntity, errors.New("title is required"))
		return
	}

	id := h.feed.Send(r.Context(), in)
	n, _ := h.feed.Get(id)
	h.json(w, r, http.StatusCreated, n)
}

func (h *handler) markRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.feed.Get(id); !ok {
		h.fail(w, r, http.StatusNotFound, errors.New("notification not found"))
		return
	}
	h.json(w, r, http.StatusOK, map[string]bool{"changed": h.feed.MarkRead(r.Context(), id)})
}

func (h *handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r.URL.Query())
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	h.json(w, r, http.StatusOK, map[string]int{"updated": h.feed.MarkAllRead(r.Context(), f)})
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	if !h.feed.Delete(r.Context(), chi.URLParam(r, "id")) {
		h.fail(w, r, http.StatusNotFound, errors.New("notification not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) act(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	if r.ContentLength != 0 {
		if err := decodeBody(r, &data); err != nil {
			h.fail(w, r, http.StatusBadRequest, err)
			return
		}
	}
	if !h.feed.Act(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "actionID"), data) {
		h.fail(w, r, http.StatusNotFound, errors.New("notification not found"))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	failed := make(map[string]string)
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			h.logger.LogAttrs(r.Context(), slog.LevelError, "readiness check failed",
				slog.String("check", name),
				logger.Error(err),
			)
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		h.json(w, r, http.StatusServiceUnavailable, map[string]any{"status": "NOT_READY", "failed": failed})
		return
	}
	h.json(w, r, http.StatusOK, map[string]string{"status": "READY"})
}

func (h *handler) json(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.LogAttrs(r.Context(), slog.LevelWarn, "failed to write response",
			logger.Path(r.URL.Path),
			logger.Error(err),
		)
	}
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	h.logger.LogAttrs(r.Context(), slog.LevelDebug, "request rejected",
		logger.Method(r.Method),
		logger.Path(r.URL.Path),
		logger.StatusCode(status),
		logger.Error(err),
	)
	h.json(w, r, status, errorResponse{Error: err.Error(), RequestID: RequestIDFromContext(r.Context())})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseFilters reads type, priority, source, read, student_id, user_id,
// from and to. Times are RFC 3339.
func parseFilters(q url.Values) (notifications.Filters, error) {
	var f notifications.Filters

	if v := q.Get("type"); v != "" {
		t := notifications.ParseType(v)
		if !strings.EqualFold(string(t), strings.TrimSpace(v)) {
			return f, fmt.Errorf("unknown type %q", v)
		}
		f.Type = t
	}
	if v := q.Get("priority"); v != "" {
		p := notifications.ParsePriority(v)
		if !strings.EqualFold(string(p), strings.TrimSpace(v)) {
			return f, fmt.Errorf("unknown priority %q", v)
		}
		f.Priority = p
	}
	if v := q.Get("source"); v != "" {
		switch s := notifications.Source(strings.ToLower(v)); s {
		case notifications.SourceLocal, notifications.SourcePush, notifications.SourceWebSocket, notifications.SourceAPI:
			f.Source = s
		default:
			return f, fmt.Errorf("unknown source %q", v)
		}
	}
	if v := q.Get("read"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid read value %q", v)
		}
		f.Read = &b
	}
	f.StudentID = q.Get("student_id")
	f.UserID = q.Get("user_id")

	var err error
	if f.From, err = parseTimeParam(q, "from"); err != nil {
		return f, err
	}
	if f.To, err = parseTimeParam(q, "to"); err != nil {
		return f, err
	}
	return f, nil
}

func parseTimeParam(q url.Values, key string) (time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s time %q", key, v)
	}
	return t, nil
}
