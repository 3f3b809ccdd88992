package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/fortress-ops/internal/auth"
	"github.com/ernie/fortress-ops/internal/config"
	"github.com/ernie/fortress-ops/internal/registry"
	"github.com/ernie/fortress-ops/internal/storage"
)

func testRouter(t *testing.T) (*Router, *storage.Store) {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg, err := registry.Build([]config.GameServer{
		{Address: "192.0.2.1:27015", Name: "payload", Glyph: ":one:", Aggregated: true},
	})
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	return NewRouter(store, reg, auth.NewService("test-secret", time.Hour)), store
}

func addOperator(t *testing.T, store *storage.Store, username, password string, isAdmin bool) {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	require.NoError(t, store.CreateOperator(context.Background(), username, hash, isAdmin))
}

func doJSON(t *testing.T, router *Router, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, router *Router, username, password string) string {
	t.Helper()
	rec := doJSON(t, router, "POST", "/api/auth/login", "", LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Token
}

func TestHealth(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin(t *testing.T) {
	router, store := testRouter(t)
	addOperator(t, store, "alice", "long-enough-pw", true)

	t.Run("valid credentials", func(t *testing.T) {
		token := login(t, router, "alice", "long-enough-pw")
		assert.NotEmpty(t, token)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := doJSON(t, router, "POST", "/api/auth/login", "", LoginRequest{Username: "alice", Password: "nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := doJSON(t, router, "POST", "/api/auth/login", "", LoginRequest{Username: "mallory", Password: "x"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := doJSON(t, router, "POST", "/api/auth/login", "", LoginRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthCheck(t *testing.T) {
	router, store := testRouter(t)
	addOperator(t, store, "alice", "long-enough-pw", true)
	token := login(t, router, "alice", "long-enough-pw")

	rec := doJSON(t, router, "GET", "/api/auth/check", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, true, resp["authenticated"])
	assert.Equal(t, "alice", resp["username"])

	rec = doJSON(t, router, "GET", "/api/auth/check", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, false, resp["authenticated"])
}

func TestGetServers(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, "GET", "/api/servers", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var servers []ServerInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&servers))
	require.Len(t, servers, 1)
	assert.Equal(t, "payload", servers[0].Name)
	assert.Equal(t, ":one:", servers[0].Glyph)
}

func TestAdminEndpointsRequireAdmin(t *testing.T) {
	router, store := testRouter(t)
	addOperator(t, store, "viewer", "long-enough-pw", false)

	t.Run("no token", func(t *testing.T) {
		rec := doJSON(t, router, "POST", "/api/fanout", "", CommandRequest{Command: "status"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non-admin token", func(t *testing.T) {
		token := login(t, router, "viewer", "long-enough-pw")
		rec := doJSON(t, router, "POST", "/api/fanout", token, CommandRequest{Command: "status"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestRconCommandUnknownServer(t *testing.T) {
	router, store := testRouter(t)
	addOperator(t, store, "admin", "long-enough-pw", true)
	token := login(t, router, "admin", "long-enough-pw")

	rec := doJSON(t, router, "POST", "/api/servers/203.0.113.9:27015/rcon", token, CommandRequest{Command: "status"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLeaderboardsEmpty(t *testing.T) {
	router, _ := testRouter(t)

	for _, path := range []string{"/api/leaderboards/seeders", "/api/leaderboards/dominations"} {
		rec := doJSON(t, router, "GET", path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestCreateLinkCode(t *testing.T) {
	router, store := testRouter(t)
	addOperator(t, store, "alice", "long-enough-pw", false)
	token := login(t, router, "alice", "long-enough-pw")

	rec := doJSON(t, router, "POST", "/api/link-code", token, LinkCodeRequest{ExternalID: "discord-99"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LinkCodeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Code, 6)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	// The code redeems back to the external id it was issued for.
	externalID, err := store.ConsumeLinkCode(context.Background(), resp.Code)
	require.NoError(t, err)
	assert.Equal(t, "discord-99", externalID)

	rec = doJSON(t, router, "POST", "/api/link-code", token, LinkCodeRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest("OPTIONS", "/api/servers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
