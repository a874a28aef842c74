package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrometheusExporter(t *testing.T) {
	exporter := NewPrometheusExporter(PrometheusExporterConfig{})
	require.NotNil(t, exporter.Registry())

	exporter.SetUsers(0)
	families, err := exporter.Gather()
	require.NoError(t, err)

	users := findMetricFamily(families, "odooload_users")
	require.NotNil(t, users, "users gauge should use the default namespace")
}

func TestPrometheusExporter_Record(t *testing.T) {
	exporter := NewPrometheusExporter(PrometheusExporterConfig{})

	exporter.Record(Result{
		Name:         "Fetch Partners Data",
		Method:       "POST",
		StatusCode:   200,
		Success:      true,
		Latency:      100 * time.Millisecond,
		ResponseSize: 1024,
	})
	exporter.Record(Result{
		Name:         "Fetch Partners Data",
		Method:       "POST",
		StatusCode:   500,
		Success:      false,
		Latency:      50 * time.Millisecond,
		ResponseSize: 256,
		Error:        "unexpected status 500",
	})

	families, err := exporter.Gather()
	require.NoError(t, err)

	requestsTotal := findMetricFamily(families, "requests_total")
	require.NotNil(t, requestsTotal, "requests_total metric should exist")

	success := findMetricByLabels(requestsTotal, map[string]string{
		"name":    "Fetch Partners Data",
		"success": "true",
	})
	require.NotNil(t, success)
	assert.Equal(t, 1.0, success.GetCounter().GetValue())

	failure := findMetricByLabels(requestsTotal, map[string]string{
		"name":    "Fetch Partners Data",
		"success": "false",
	})
	require.NotNil(t, failure)
	assert.Equal(t, 1.0, failure.GetCounter().GetValue())

	failures := findMetricFamily(families, "failures_total")
	require.NotNil(t, failures)
	m := findMetricByLabels(failures, map[string]string{"status": "500"})
	require.NotNil(t, m)
	assert.Equal(t, 1.0, m.GetCounter().GetValue())

	duration := findMetricFamily(families, "request_duration_seconds")
	require.NotNil(t, duration)
	assert.Equal(t, dto.MetricType_HISTOGRAM, duration.GetType())
	assert.Equal(t, uint64(2), duration.Metric[0].GetHistogram().GetSampleCount())

	bytesTotal := findMetricFamily(families, "response_bytes_total")
	require.NotNil(t, bytesTotal)
	assert.Equal(t, float64(1024+256), bytesTotal.Metric[0].GetCounter().GetValue())
}

func TestPrometheusExporter_SetUsers(t *testing.T) {
	exporter := NewPrometheusExporter(PrometheusExporterConfig{Namespace: "test"})
	exporter.SetUsers(42)

	families, err := exporter.Gather()
	require.NoError(t, err)

	users := findMetricFamily(families, "test_users")
	require.NotNil(t, users)
	assert.Equal(t, 42.0, users.Metric[0].GetGauge().GetValue())
}

func TestPrometheusExporter_Handler(t *testing.T) {
	exporter := NewPrometheusExporter(PrometheusExporterConfig{})
	exporter.Record(Result{Name: "Main Dashboard", Method: "GET", StatusCode: 200, Success: true, Latency: time.Millisecond})

	srv := httptest.NewServer(exporter.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	content := string(body)
	assert.Contains(t, content, "odooload_requests_total")
	assert.Contains(t, content, `name="Main Dashboard"`)
}

func findMetricFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, f := range families {
		if strings.HasSuffix(f.GetName(), name) {
			return f
		}
	}
	return nil
}

func findMetricByLabels(family *dto.MetricFamily, labels map[string]string) *dto.Metric {
	for _, m := range family.Metric {
		match := true
		for wantKey, wantValue := range labels {
			found := false
			for _, l := range m.Label {
				if l.GetName() == wantKey && l.GetValue() == wantValue {
					found = true
					break
				}
			}
			if !found {
				match = false
				break
			}
		}
		if match {
			return m
		}
	}
	return nil
}
