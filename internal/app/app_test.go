package app_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/wayposthq/waypost/internal/app"
	"github.com/wayposthq/waypost/internal/config"
	"github.com/wayposthq/waypost/internal/util/testutil"
)

func basicConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.InitDefaults()
	cfg.LogLevel = "error"
	cfg.APIPort = testutil.RandomPortNumber()
	cfg.APIKey = "apikey"
	cfg.AllowInsecureHTTP = true
	require.NoError(t, cfg.Validate(config.Flags{}))
	return cfg
}

func waitForHealthy(t *testing.T, port int, timeout time.Duration) {
	t.Helper()
	url := fmt.Sprintf("http://localhost:%d/healthz", port)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("server on port %d never became healthy", port)
}

// TestAppPublishDeliverShutdown boots the full singular process, pushes one
// event through the public API, and shuts it down with a context cancel.
func TestAppPublishDeliverShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var received atomic.Int32
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(sink.Close)

	cfg := basicConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appDone := make(chan error, 1)
	go func() {
		appDone <- app.New(cfg).Run(ctx)
	}()

	waitForHealthy(t, cfg.APIPort, 5*time.Second)

	apiURL := fmt.Sprintf("http://localhost:%d/api/v1", cfg.APIPort)
	client := &http.Client{Timeout: 5 * time.Second}

	doJSON := func(method, url, body string) int {
		req, err := http.NewRequest(method, url, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	status := doJSON(http.MethodPost, apiURL+"/endpoints",
		fmt.Sprintf(`{"url":%q,"events":"*"}`, sink.URL))
	require.Equal(t, http.StatusCreated, status)

	status = doJSON(http.MethodPost, apiURL+"/publish",
		`{"type":"user.created","data":{"hello":"world"}}`)
	require.Equal(t, http.StatusAccepted, status)

	require.Eventually(t, func() bool {
		return received.Load() == 1
	}, 5*time.Second, 50*time.Millisecond, "event was never delivered")

	cancel()
	select {
	case err := <-appDone:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("app did not shut down after cancel")
	}
}
