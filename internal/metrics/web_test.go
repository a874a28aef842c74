package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebUI_Routes(t *testing.T) {
	collector := NewCollector()
	collector.Start()
	collector.SetUsers(2)
	collector.Record(Result{Name: "Main Dashboard", Method: "GET", StatusCode: 200, Success: true, Latency: 5 * time.Millisecond})
	collector.Record(Result{Name: "Login", Method: "POST", StatusCode: 200, Error: "AuthenticationFailure"})

	exporter := NewPrometheusExporter(PrometheusExporterConfig{})
	ui := NewWebUI(":0", collector, exporter)
	srv := httptest.NewServer(ui.Handler())
	defer srv.Close()

	t.Run("stats json", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/stats")
		require.NoError(t, err)
		defer resp.Body.Close()

		var body statsJSON
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, 2, body.UserCount)
		require.Len(t, body.Stats, 3)
		assert.Equal(t, AggregatedName, body.Stats[2].Name)
		assert.Equal(t, int64(2), body.Stats[2].NumRequests)
		require.Len(t, body.Errors, 1)
		assert.InDelta(t, 0.5, body.FailRatio, 0.0001)
	})

	t.Run("html page", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(b), "Main Dashboard")
		assert.Contains(t, string(b), "AuthenticationFailure")
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("unknown path", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/nope")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestWebUI_StartStop(t *testing.T) {
	ui := NewWebUI("127.0.0.1:0", NewCollector(), nil)
	require.NoError(t, ui.Start())
	require.NoError(t, ui.Start())

	resp, err := http.Get("http://" + ui.Addr() + "/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ui.Stop(ctx))
	require.NoError(t, ui.Stop(ctx))
	assert.NoError(t, ui.LastError())
}
