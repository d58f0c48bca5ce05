package cli

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-chat/internal/metrics"
)

func TestServeCmd_Flags(t *testing.T) {
	assert.Equal(t, "serve", serveCmd.Use)
	for _, name := range []string{"port", "addr", "metrics-addr"} {
		assert.NotNil(t, serveCmd.Flags().Lookup(name), name)
	}
}

func TestResolveServeAddr(t *testing.T) {
	setupTestRuntime(t, &mockConversationService{})
	rt := &Runtime{ServeAddr: "127.0.0.1:9000"}

	assert.Equal(t, "127.0.0.1:9000", resolveServeAddr(rt))

	servePort = 8080
	assert.Equal(t, ":8080", resolveServeAddr(rt))

	serveAddr = "0.0.0.0:7000"
	assert.Equal(t, "0.0.0.0:7000", resolveServeAddr(rt))
}

func TestResolveMetricsAddr(t *testing.T) {
	setupTestRuntime(t, &mockConversationService{})
	rt := &Runtime{MetricsAddr: ":9090"}

	assert.Equal(t, ":9090", resolveMetricsAddr(rt))
	serveMetricsAddr = ":9191"
	assert.Equal(t, ":9191", resolveMetricsAddr(rt))
}

func TestNewMetricsServer_ServesRegistry(t *testing.T) {
	metrics.FallbacksTotal.WithLabelValues("serve_test").Inc()

	srv := newMetricsServer(":0")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sercha_chat_synthesis_fallbacks_total")
}

func TestServeMetrics_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveMetrics(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestServeCmd_HTTPStopsOnCancel(t *testing.T) {
	rt := setupTestRuntime(t, &mockConversationService{})
	watcher := &mockPromptWatcher{}
	rt.Prompts = watcher

	rootCmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0"})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	require.NoError(t, err)
	assert.True(t, watcher.watched)
}

func TestServeCmd_WatchErrorIsNotFatal(t *testing.T) {
	rt := setupTestRuntime(t, &mockConversationService{})
	rt.Prompts = &mockPromptWatcher{err: errors.New("no inotify")}

	rootCmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0"})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	assert.NoError(t, rootCmd.ExecuteContext(ctx))
}
