package restapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/schoolfeed/pkg/logger"
	"github.com/dmitrymomot/schoolfeed/pkg/restapi"
)

const pageOne = `{
	"data": [
		{"id": 1, "title": "Fees due", "message": "Term 2", "type": "payment", "read": false, "createdAt": "2024-04-01T09:00:00Z"},
		{"id": "n-2", "title": "Report card", "body": "Available", "type": "academic", "is_read": true, "created_at": "2024-04-02 10:00:00"}
	],
	"metadata": {"current_page": 1, "per_page": 2, "total": 3, "last_page": 2, "from": 1, "to": 2},
	"unread_count": 2
}`

const pageTwo = `{
	"data": [{"id": "n-3", "title": "Trip", "type": "event", "created_at": "2024-04-03T08:00:00Z"}],
	"metadata": {"current_page": 2, "per_page": 2, "total": 3, "last_page": 2, "from": 3, "to": 3},
	"unread_count": 2
}`

func newClient(t *testing.T, url string, mutate ...func(*restapi.Config)) *restapi.Client {
	t.Helper()
	cfg := restapi.Config{
		BaseURL:      url,
		Token:        "secret",
		Timeout:      time.Second,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := restapi.NewClient(cfg, restapi.WithLogger(logger.Discard()))
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	_, err := restapi.NewClient(restapi.Config{})
	assert.ErrorIs(t, err, restapi.ErrNoBaseURL)

	_, err = restapi.NewClient(restapi.Config{BaseURL: "ftp://example.com"})
	assert.ErrorIs(t, err, restapi.ErrInvalidBaseURL)

	_, err = restapi.NewClient(restapi.Config{BaseURL: "/relative"})
	assert.ErrorIs(t, err, restapi.ErrInvalidBaseURL)

	c, err := restapi.NewClient(restapi.Config{BaseURL: "https://school.example.com/api/"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestClient_List(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/notifications", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("per_page"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(pageTwo))
			return
		}
		_, _ = w.Write([]byte(pageOne))
	}))
	t.Cleanup(srv.Close)

	c := newClient(t, srv.URL+"/api")

	page, err := c.List(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "1", page.Data[0].ID)
	assert.Equal(t, "Term 2", page.Data[0].Body)
	assert.False(t, page.Data[0].Read)
	assert.Equal(t, "n-2", page.Data[1].ID)
	assert.True(t, page.Data[1].Read)
	assert.Equal(t, 2, page.UnreadCount)
	assert.Equal(t, 3, page.Metadata.Total)
	assert.True(t, page.HasMore())

	all, err := c.ListAll(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := c.ListAll(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestClient_Mutations(t *testing.T) {
	t.Parallel()

	type call struct{ method, path string }
	calls := make(chan call, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- call{r.Method, r.URL.Path}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	c := newClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, c.MarkRead(ctx, "42"))
	assert.Equal(t, call{http.MethodPatch, "/notifications/42/read"}, <-calls)

	require.NoError(t, c.Delete(ctx, "42"))
	assert.Equal(t, call{http.MethodDelete, "/notifications/42"}, <-calls)

	assert.ErrorIs(t, c.MarkRead(ctx, ""), restapi.ErrEmptyID)
	assert.ErrorIs(t, c.Delete(ctx, ""), restapi.ErrEmptyID)
}

func TestClient_Retries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		wantCalls int32
		wantErr   error
	}{
		{"server error is retried", http.StatusBadGateway, 3, restapi.ErrTemporaryFailure},
		{"rate limit is retried", http.StatusTooManyRequests, 3, restapi.ErrTemporaryFailure},
		{"not found is permanent", http.StatusNotFound, 1, restapi.ErrPermanentFailure},
		{"unauthorized is permanent", http.StatusUnauthorized, 1, restapi.ErrPermanentFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, "nope", tt.status)
			}))
			t.Cleanup(srv.Close)

			err := newClient(t, srv.URL).MarkRead(context.Background(), "1")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}

	t.Run("recovers after transient failure", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(pageTwo))
		}))
		t.Cleanup(srv.Close)

		page, err := newClient(t, srv.URL).List(context.Background(), 2, 2)
		require.NoError(t, err)
		assert.Len(t, page.Data, 1)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestClient_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := newClient(t, srv.URL, func(cfg *restapi.Config) {
		cfg.Timeout = 20 * time.Millisecond
		cfg.MaxRetries = 0
	})
	err := c.Delete(context.Background(), "1")
	assert.ErrorIs(t, err, restapi.ErrTimeout)
}

func TestClient_MalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": "not a list"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := newClient(t, srv.URL).List(context.Background(), 1, 10)
	assert.ErrorIs(t, err, restapi.ErrDecode)
}
