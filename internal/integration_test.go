package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waitboard/config"
	"waitboard/internal/api"
	"waitboard/internal/db"
	"waitboard/internal/model"
	"waitboard/internal/notification"
	"waitboard/internal/session"
)

type recordingSpeaker struct {
	mu   sync.Mutex
	said []string
}

func (r *recordingSpeaker) Speak(_ context.Context, a notification.Announcement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.said = append(r.said, a.Message())
	return nil
}

func (r *recordingSpeaker) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.said...)
}

// backend is a franchise server with a switchable outage.
type backend struct {
	down   atomic.Bool
	events chan string
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /store/status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"business_date":"2024-05-01","is_open":true}`))
	})
	mux.HandleFunc("GET /store/settings", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"calling_status_display_second":30}`))
	})
	mux.HandleFunc("GET /classes", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":1,"class_name":"10:00","current_count":2}]`))
	})
	mux.HandleFunc("GET /waiting", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":40,"waiting_number":1,"class_id":1,"class_order":1,"display_name":"Kim","status":"waiting"},
			{"id":41,"waiting_number":2,"class_id":1,"class_order":2,"display_name":"Lee","status":"waiting"}
		]`))
	})
	mux.HandleFunc("POST /waiting/{id}/call", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":%s,"waiting_number":1,"class_id":1,"class_order":1,"display_name":"Kim","status":"called","call_count":1,"last_called_at":"2024-05-01T03:00:00"}`, r.PathValue("id"))
	})
	mux.HandleFunc("GET /sse/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		for {
			select {
			case <-r.Context().Done():
				return
			case frame := <-b.events:
				fmt.Fprint(w, frame)
				w.(http.Flusher).Flush()
			}
		}
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func testConfig(baseURL, dsn string) *config.Config {
	cfg := &config.Config{}
	cfg.Server.CacheTTL = time.Second
	cfg.Backend.BaseURL = baseURL
	cfg.Backend.StoreID = "store-1"
	cfg.Stream.Channel = "store-1"
	cfg.Stream.Role = "admin"
	cfg.Stream.ReconnectDelay = 10 * time.Millisecond
	cfg.Polling.Interval = 50 * time.Millisecond
	cfg.Display.Location = time.UTC
	cfg.Database.DSN = dsn
	cfg.Database.MaxOpenConns = 1
	cfg.WorkerPool.Size = 2
	return cfg
}

type board struct {
	Classes []struct {
		ID    int64 `json:"id"`
		Items []struct {
			ID     int64 `json:"id"`
			Called bool  `json:"called"`
		} `json:"items"`
	} `json:"classes"`
}

func getJSON(t *testing.T, router http.Handler, path string, out any) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func boardIDs(t *testing.T, router http.Handler) []int64 {
	var b board
	getJSON(t, router, "/api/board", &b)
	require.Len(t, b.Classes, 1)
	ids := make([]int64, 0, len(b.Classes[0].Items))
	for _, it := range b.Classes[0].Items {
		ids = append(ids, it.ID)
	}
	return ids
}

func TestScreenSessionLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	b := &backend{events: make(chan string, 4)}
	server := httptest.NewServer(b.handler())
	defer server.Close()

	cfg := testConfig(server.URL, fmt.Sprintf("file:integration_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	gormDB, err := db.Init(&cfg.Database, nil)
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()

	// First run: live data, a pushed event and a call.
	speaker := &recordingSpeaker{}
	first := session.New(session.Options{Config: cfg, DB: gormDB, Speakers: []notification.Speaker{speaker}})
	first.Start(context.Background())
	router := api.NewRouter(api.NewHandler(first, gormDB, nil), nil)

	require.Eventually(t, func() bool {
		connected, _ := first.Store.Connectivity()
		return connected
	}, time.Second, 5*time.Millisecond)
	// A poll started before the stream came up may still be in flight.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []int64{40, 41}, boardIDs(t, router))

	b.events <- "data: {\"event\":\"item-added\",\"data\":{\"id\":42,\"waiting_number\":3,\"class_id\":1,\"class_order\":3,\"status\":\"waiting\"}}\n\n"
	require.Eventually(t, func() bool { return len(first.Store.OrderedIDs(1)) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{40, 41, 42}, boardIDs(t, router))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/waiting/40/call", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Eventually(t, func() bool { return len(speaker.messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, strings.HasPrefix(speaker.messages()[0], "Now calling number 1"), speaker.messages()[0])
	first.Close()

	// Second run with the backend down: the cached snapshot is shown as stale.
	b.down.Store(true)
	second := session.New(session.Options{Config: cfg, DB: gormDB})
	second.Start(context.Background())
	defer second.Close()
	router = api.NewRouter(api.NewHandler(second, gormDB, nil), nil)

	var state struct {
		Stale     bool `json:"stale"`
		Connected bool `json:"is_connected"`
	}
	getJSON(t, router, "/api/state", &state)
	assert.True(t, state.Stale)
	assert.False(t, state.Connected)
	assert.Equal(t, []int64{40, 41}, boardIDs(t, router), "cache holds the last fetched snapshot")

	// Recovery: polling replaces the cached data with live data.
	b.down.Store(false)
	require.Eventually(t, func() bool { return !second.Store.Runtime().Stale }, 2*time.Second, 10*time.Millisecond)

	var subs []model.PushSubscription
	require.NoError(t, gormDB.Find(&subs).Error)
	assert.Empty(t, subs)
}
