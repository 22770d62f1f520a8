package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taptapdesign-jimi/cube-crash/game/engine"
	"github.com/taptapdesign-jimi/cube-crash/game/service"
)

func testOptions(t *testing.T, data string) options {
	t.Helper()
	return options{
		host:      "localhost",
		port:      8080,
		configDir: t.TempDir(),
		data:      filepath.Join(t.TempDir(), data),
	}
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "1.0.0", Version)
	assert.Equal(t, "Cube Crash Game Server", AppName)
}

func TestOptions(t *testing.T) {
	opts := options{host: "0.0.0.0", port: 9090}
	assert.Equal(t, "0.0.0.0:9090", opts.addr())

	tests := []struct {
		data   string
		sqlite bool
	}{
		{"cubecrash.db", true},
		{"data/games.SQLITE", true},
		{"games.sqlite3", true},
		{"sessions", false},
		{"sessions/", false},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			assert.Equal(t, tt.sqlite, options{data: tt.data}.usesSQLite())
		})
	}
}

func TestAppDefinition(t *testing.T) {
	app := newApp()
	assert.Equal(t, "cubecrash", app.Name)
	assert.Equal(t, Version, app.Version)

	var names []string
	for _, cmd := range app.Commands {
		names = append(names, cmd.Name)
	}
	assert.ElementsMatch(t, []string{"serve", "mcp", "play"}, names)

	flags := map[string]bool{}
	for _, f := range app.Flags {
		for _, name := range f.Names() {
			flags[name] = true
		}
	}
	for _, name := range []string{"host", "port", "config-dir", "data", "debug", "ngrok", "ngrok-auth", "ngrok-domain"} {
		assert.True(t, flags[name], "missing flag %s", name)
	}
}

func TestInitializeServices_SQLite(t *testing.T) {
	svc, err := initializeServices(testOptions(t, "games.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	require.NotNil(t, svc.sqlite)
	require.NotNil(t, svc.game)

	ctx := context.Background()
	info, err := svc.game.CreateSession(ctx, "")
	require.NoError(t, err)
	assert.True(t, svc.store.Exists(info.ID))

	entries, err := svc.game.Leaderboard(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInitializeServices_Files(t *testing.T) {
	svc, err := initializeServices(testOptions(t, "sessions"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	assert.Nil(t, svc.sqlite)

	info, err := svc.game.CreateSession(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, svc.store.Exists(info.ID))
}

func TestInitializeServices_InvalidConfigDir(t *testing.T) {
	opts := testOptions(t, "games.db")
	opts.configDir = "/non/existent/path"

	_, err := initializeServices(opts, zap.NewNop())
	assert.Error(t, err)
}

func TestPruneOrphans(t *testing.T) {
	svc, err := initializeServices(testOptions(t, "sessions"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	ctx := context.Background()
	kept, err := svc.game.CreateSession(ctx, "")
	require.NoError(t, err)
	dropped, err := svc.game.CreateSession(ctx, "")
	require.NoError(t, err)

	require.NoError(t, svc.store.Delete(dropped.ID))

	assert.Equal(t, 1, pruneOrphans(svc.sessions, svc.store, zap.NewNop()))
	assert.Equal(t, 1, svc.sessions.Count())

	_, err = svc.game.GetSession(ctx, kept.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, pruneOrphans(svc.sessions, nil, zap.NewNop()))
}

func TestRouter(t *testing.T) {
	svc, err := initializeServices(testOptions(t, "games.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.hub.Run(ctx)

	router := newRouter(svc, "http://localhost:8080", zap.NewNop())

	t.Run("health", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("api", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
		require.Equal(t, http.StatusCreated, rr.Code)

		var info service.SessionInfo
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
		assert.NotEmpty(t, info.ID)
		assert.Equal(t, engine.PhaseIdle, info.GameState.Phase)
	})

	t.Run("mcp rejects GET", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/mcp", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})

	t.Run("mcp tools/list", func(t *testing.T) {
		body := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body)))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "merge")
		assert.Contains(t, rr.Body.String(), "game_instructions")
	})
}

func TestAPIAvailable(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer up.Close()
	assert.True(t, apiAvailable(up.URL))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	down.Close()
	assert.False(t, apiAvailable(down.URL))
}
