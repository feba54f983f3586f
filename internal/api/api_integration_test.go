// internal/api/api_integration_test.go
package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "user-service/internal"
	"user-service/internal/api/types"
	"user-service/internal/config"
	"user-service/internal/domain"
	"user-service/internal/testutil"
)

// newTestApp starts the whole service over a fresh SQLite store.
func newTestApp(t *testing.T, maxConns int, acquireTimeout time.Duration) (*app.Application, *httptest.Server) {
	t.Helper()

	dbCfg := testutil.SQLiteConfig(t)
	cfg := &config.AppConfig{
		ServerPort:      "0",
		RequestTimeout:  10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		DB: config.DBConfig{
			Driver: dbCfg.Driver,
			Path:   dbCfg.Path,
			Table:  "userTable",
		},
		Pool: config.PoolConfig{
			MinConns:         1,
			MaxConns:         maxConns,
			AcquireTimeout:   acquireTimeout,
			IdleCheckAfter:   time.Minute,
			ValidateSchedule: "@every 1m",
			ConnectRetries:   1,
			ConnectBackoff:   time.Millisecond,
		},
		Log: config.LogConfig{Level: "error", Format: "text"},
	}

	application := app.NewApplication()
	require.NoError(t, application.InitializeWithConfig(context.Background(), cfg))
	testutil.CreateUsersTable(t, application.DB, cfg.DB.Table)

	server := httptest.NewServer(application.HTTPHandler)
	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		assert.NoError(t, application.Shutdown(ctx))
	})
	return application, server
}

// makeRequest sends an HTTP request to the test server and returns the status and body.
func makeRequest(t *testing.T, server *httptest.Server, method, path, body string) (int, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(respBody)
}

func decodeUser(t *testing.T, body string) domain.User {
	t.Helper()
	var user domain.User
	require.NoError(t, json.Unmarshal([]byte(body), &user))
	return user
}

func decodeError(t *testing.T, body string) string {
	t.Helper()
	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	return resp.Error
}

func TestRootIntegration(t *testing.T) {
	_, server := newTestApp(t, 2, time.Second)

	status, body := makeRequest(t, server, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Hello, World!", body)
}

func TestUserLifecycleIntegration(t *testing.T) {
	application, server := newTestApp(t, 2, time.Second)

	t.Run("CreateUser", func(t *testing.T) {
		status, body := makeRequest(t, server, http.MethodPost, "/users", `{"username":"alice"}`)
		require.Equal(t, http.StatusCreated, status, body)
		assert.Equal(t, domain.User{ID: 1, Username: "alice"}, decodeUser(t, body))
	})

	t.Run("FetchUser", func(t *testing.T) {
		status, body := makeRequest(t, server, http.MethodGet, "/user?username=alice", "")
		require.Equal(t, http.StatusOK, status, body)
		assert.Equal(t, domain.User{ID: 1, Username: "alice"}, decodeUser(t, body))
	})

	t.Run("FetchMissingUser", func(t *testing.T) {
		status, body := makeRequest(t, server, http.MethodGet, "/user?username=bob", "")
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "resource not found", decodeError(t, body))
	})

	t.Run("FetchWithoutUsername", func(t *testing.T) {
		status, body := makeRequest(t, server, http.MethodGet, "/user", "")
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "missing or invalid field: username", decodeError(t, body))
	})

	t.Run("UpdateUser", func(t *testing.T) {
		status, body := makeRequest(t, server, http.MethodPatch, "/user", `{"id":1,"username":"alicia"}`)
		require.Equal(t, http.StatusOK, status, body)
		assert.Equal(t, domain.User{ID: 1, Username: "alicia"}, decodeUser(t, body))

		status, _ = makeRequest(t, server, http.MethodGet, "/user?username=alicia", "")
		assert.Equal(t, http.StatusOK, status)
		status, _ = makeRequest(t, server, http.MethodGet, "/user?username=alice", "")
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("UpdateMissingUser", func(t *testing.T) {
		status, body := makeRequest(t, server, http.MethodPatch, "/user", `{"id":99,"username":"ghost"}`)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "resource not found", decodeError(t, body))
	})

	t.Run("UpdateWithoutID", func(t *testing.T) {
		status, body := makeRequest(t, server, http.MethodPatch, "/user", `{"username":"ghost"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "missing or invalid field: id", decodeError(t, body))
	})

	t.Run("CreateWithoutUsername", func(t *testing.T) {
		status, body := makeRequest(t, server, http.MethodPost, "/users", `{}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "missing or invalid field: username", decodeError(t, body))
	})

	t.Run("CreateWithMalformedBody", func(t *testing.T) {
		status, body := makeRequest(t, server, http.MethodPost, "/users", `{"username":`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "missing or invalid field: body", decodeError(t, body))
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		status, body := makeRequest(t, server, http.MethodPost, "/users", `{"username":"alicia"}`)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "resource already exists", decodeError(t, body))
	})

	t.Run("EveryLeaseReturned", func(t *testing.T) {
		stats := application.Pool.Stats()
		assert.Equal(t, 0, stats.InUse)
		assert.Equal(t, int64(0), stats.Discarded)
		assert.LessOrEqual(t, stats.Open, 2)
	})
}

func TestPaddedUsernameRoundTripIntegration(t *testing.T) {
	_, server := newTestApp(t, 2, time.Second)

	status, body := makeRequest(t, server, http.MethodPost, "/users", `{"username":" alice "}`)
	require.Equal(t, http.StatusCreated, status, body)
	created := decodeUser(t, body)
	assert.Equal(t, " alice ", created.Username)

	status, body = makeRequest(t, server, http.MethodGet, "/user?username="+url.QueryEscape(" alice "), "")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, created, decodeUser(t, body))

	// The unpadded name is a different user.
	status, _ = makeRequest(t, server, http.MethodGet, "/user?username=alice", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = makeRequest(t, server, http.MethodPatch, "/user", fmt.Sprintf(`{"id":%d,"username":"\tbob"}`, created.ID))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "\tbob", decodeUser(t, body).Username)

	status, body = makeRequest(t, server, http.MethodGet, "/user?username="+url.QueryEscape("\tbob"), "")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, created.ID, decodeUser(t, body).ID)

	status, body = makeRequest(t, server, http.MethodPost, "/users", `{"username":"   "}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "missing or invalid field: username", decodeError(t, body))
}

func TestConcurrentCreatesIntegration(t *testing.T) {
	application, server := newTestApp(t, 4, 10*time.Second)

	const n = 20
	var wg sync.WaitGroup
	ids := make(chan int64, n)
	errs := make(chan string, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodPost, server.URL+"/users", strings.NewReader(fmt.Sprintf(`{"username":"user-%02d"}`, i)))
			resp, err := server.Client().Do(req)
			if err != nil {
				errs <- err.Error()
				return
			}
			defer resp.Body.Close()

			var user domain.User
			if resp.StatusCode != http.StatusCreated || json.NewDecoder(resp.Body).Decode(&user) != nil {
				errs <- fmt.Sprintf("request %d: status %d", i, resp.StatusCode)
				return
			}
			ids <- user.ID
		}(i)
	}
	wg.Wait()
	close(ids)
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)

	stats := application.Pool.Stats()
	assert.Equal(t, 0, stats.InUse)
	assert.LessOrEqual(t, stats.Open, 4)
}

func TestPoolExhaustionIntegration(t *testing.T) {
	application, server := newTestApp(t, 1, 100*time.Millisecond)

	held, err := application.Pool.Acquire(context.Background())
	require.NoError(t, err)

	status, body := makeRequest(t, server, http.MethodPost, "/users", `{"username":"alice"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "service temporarily unavailable", decodeError(t, body))

	// The root route holds no lease and keeps answering.
	status, _ = makeRequest(t, server, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, status)

	application.Pool.Release(held, true)

	status, body = makeRequest(t, server, http.MethodPost, "/users", `{"username":"alice"}`)
	assert.Equal(t, http.StatusCreated, status, body)
}

func TestHealthzIntegration(t *testing.T) {
	_, server := newTestApp(t, 2, time.Second)

	status, body := makeRequest(t, server, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, status, body)

	var health types.HealthResponse
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 2, health.Pool.MaxConns)
	assert.Equal(t, 0, health.Pool.InUse)
}
