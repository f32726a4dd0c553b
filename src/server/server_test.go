package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lost-woods/nistcheck/src/api"
	"github.com/lost-woods/nistcheck/src/nist"
	"github.com/lost-woods/nistcheck/src/runner"
	"github.com/lost-woods/nistcheck/src/server"
)

func TestServer_RequiresAPIKey(t *testing.T) {
	log := zap.NewNop().Sugar()
	ctrl := runner.New(nist.Registry(), nil, log)
	srv := server.New(":0", api.NewHandlers(ctrl, nil, 1024, log), "secret", ctrl, time.Second, log)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/tests", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/tests", nil)
	req.Header.Set("X-API-KEY", "secret")
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "[x] Frequency")
}

func TestServer_WatchFinalizesRuns(t *testing.T) {
	log := zap.NewNop().Sugar()
	reg := nist.Registry()
	reg.SetAllEnabled(false)
	require.NoError(t, reg.SetEnabled(nist.IDFrequency, true))

	ctrl := runner.New(reg, nil, log)
	srv := server.New(":0", api.NewHandlers(ctrl, nil, 1024, log), "", ctrl, 5*time.Millisecond, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Watch(ctx)

	data := make([]byte, 4*128)
	for i := range data {
		data[i] = byte(i*151 + 7)
	}
	path := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/runs", strings.NewReader(`{"path":"`+path+`"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Eventually(t, func() bool { return ctrl.LastReport() != nil }, 30*time.Second, 10*time.Millisecond)
	assert.False(t, ctrl.Running())

	_, err := os.Stat(path + ".txt")
	assert.NoError(t, err)
}
