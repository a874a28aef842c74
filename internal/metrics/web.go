package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"
)

// WebUI serves live run statistics while a non-headless swarm runs.
//
// Routes:
//
//	/         auto-refreshing HTML stats table
//	/stats    JSON snapshot
//	/metrics  Prometheus exposition (when an exporter is attached)
type WebUI struct {
	mu sync.Mutex

	addr      string
	collector *Collector
	exporter  *PrometheusExporter
	page      *template.Template

	server  *http.Server
	ln      net.Listener
	running bool

	lastError error
}

// NewWebUI creates a web UI bound to addr. exporter may be nil.
func NewWebUI(addr string, collector *Collector, exporter *PrometheusExporter) *WebUI {
	return &WebUI{
		addr:      addr,
		collector: collector,
		exporter:  exporter,
		page:      template.Must(template.New("stats").Funcs(template.FuncMap{"ms": msFloat}).Parse(statsPageTemplate)),
	}
}

// Handler returns the UI's HTTP routes.
func (u *WebUI) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", u.serveStats)
	if u.exporter != nil {
		mux.Handle("/metrics", u.exporter.Handler())
	}
	mux.HandleFunc("/", u.servePage)
	return mux
}

// Start listens on the configured address and serves in the background.
func (u *WebUI) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.running {
		return nil
	}

	ln, err := net.Listen("tcp", u.addr)
	if err != nil {
		return fmt.Errorf("starting web UI: %w", err)
	}
	u.ln = ln
	u.server = &http.Server{
		Handler:           u.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := u.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			u.mu.Lock()
			u.lastError = err
			u.mu.Unlock()
		}
	}()

	u.running = true
	return nil
}

// Addr returns the bound listener address, or the configured one before Start.
func (u *WebUI) Addr() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ln != nil {
		return u.ln.Addr().String()
	}
	return u.addr
}

// Stop shuts the server down.
func (u *WebUI) Stop(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.running {
		return nil
	}
	u.running = false
	return u.server.Shutdown(ctx)
}

// LastError returns the last error from the HTTP server, if any.
func (u *WebUI) LastError() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastError
}

type statsEntryJSON struct {
	Method        string             `json:"method"`
	Name          string             `json:"name"`
	NumRequests   int64              `json:"num_requests"`
	NumFailures   int64              `json:"num_failures"`
	AvgResponse   float64            `json:"avg_response_time"`
	MinResponse   float64            `json:"min_response_time"`
	MaxResponse   float64            `json:"max_response_time"`
	MedianResp    float64            `json:"median_response_time"`
	AvgContentLen float64            `json:"avg_content_length"`
	CurrentRPS    float64            `json:"current_rps"`
	CurrentFailPS float64            `json:"current_fail_per_sec"`
	Percentiles   map[string]float64 `json:"percentiles"`
}

type failureJSON struct {
	Method      string `json:"method"`
	Name        string `json:"name"`
	Error       string `json:"error"`
	Occurrences int64  `json:"occurrences"`
}

type statsJSON struct {
	UserCount   int              `json:"user_count"`
	Elapsed     float64          `json:"elapsed_seconds"`
	TotalRPS    float64          `json:"total_rps"`
	FailRatio   float64          `json:"fail_ratio"`
	Stats       []statsEntryJSON `json:"stats"`
	Errors      []failureJSON    `json:"errors"`
	CurrentTime time.Time        `json:"current_time"`
}

func toEntryJSON(e EntryStats) statsEntryJSON {
	pct := make(map[string]float64, len(Percentiles))
	for i, p := range Percentiles {
		pct[PercentileLabel(p)] = msFloat(e.Percentiles[i])
	}
	return statsEntryJSON{
		Method:        e.Method,
		Name:          e.Name,
		NumRequests:   e.Requests,
		NumFailures:   e.Failures,
		AvgResponse:   msFloat(e.AvgLatency),
		MinResponse:   msFloat(e.MinLatency),
		MaxResponse:   msFloat(e.MaxLatency),
		MedianResp:    msFloat(e.MedianLatency),
		AvgContentLen: e.AvgSize,
		CurrentRPS:    e.RPS,
		CurrentFailPS: e.FailuresPerS,
		Percentiles:   pct,
	}
}

func (u *WebUI) serveStats(w http.ResponseWriter, _ *http.Request) {
	snap := u.collector.Snapshot()

	body := statsJSON{
		UserCount:   snap.Users,
		Elapsed:     snap.Elapsed.Seconds(),
		TotalRPS:    snap.Total.RPS,
		FailRatio:   snap.Total.FailureRate() / 100,
		Stats:       make([]statsEntryJSON, 0, len(snap.Entries)+1),
		Errors:      make([]failureJSON, 0, len(snap.Failures)),
		CurrentTime: snap.Taken,
	}
	for _, e := range snap.Entries {
		body.Stats = append(body.Stats, toEntryJSON(e))
	}
	body.Stats = append(body.Stats, toEntryJSON(snap.Total))
	for _, f := range snap.Failures {
		body.Errors = append(body.Errors, failureJSON(f))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (u *WebUI) servePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := u.page.Execute(w, u.collector.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func msFloat(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

const statsPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta http-equiv="refresh" content="2">
    <title>odooload</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #f8fafc; color: #1e293b; margin: 2rem; }
        table { border-collapse: collapse; width: 100%; background: #fff; }
        th, td { padding: 0.4rem 0.75rem; border-bottom: 1px solid #e2e8f0; text-align: right; }
        th:nth-child(-n+2), td:nth-child(-n+2) { text-align: left; }
        tr.total { font-weight: 700; }
        .fail { color: #ef4444; }
    </style>
</head>
<body>
    <h1>odooload</h1>
    <p>Users: {{.Users}} &middot; Elapsed: {{.Elapsed.Round 1000000000}} &middot; RPS: {{printf "%.2f" .Total.RPS}} &middot; Failures: {{printf "%.2f" .Total.FailureRate}}%</p>
    <table>
        <tr><th>Type</th><th>Name</th><th># Requests</th><th># Fails</th><th>Median (ms)</th><th>Average (ms)</th><th>Min (ms)</th><th>Max (ms)</th><th>Avg size (bytes)</th><th>RPS</th><th>Failures/s</th></tr>
        {{range .Entries}}<tr><td>{{.Method}}</td><td>{{.Name}}</td><td>{{.Requests}}</td><td{{if .Failures}} class="fail"{{end}}>{{.Failures}}</td><td>{{printf "%.0f" (ms .MedianLatency)}}</td><td>{{printf "%.0f" (ms .AvgLatency)}}</td><td>{{printf "%.0f" (ms .MinLatency)}}</td><td>{{printf "%.0f" (ms .MaxLatency)}}</td><td>{{printf "%.0f" .AvgSize}}</td><td>{{printf "%.2f" .RPS}}</td><td>{{printf "%.2f" .FailuresPerS}}</td></tr>
        {{end}}{{with .Total}}<tr class="total"><td></td><td>{{.Name}}</td><td>{{.Requests}}</td><td>{{.Failures}}</td><td>{{printf "%.0f" (ms .MedianLatency)}}</td><td>{{printf "%.0f" (ms .AvgLatency)}}</td><td>{{printf "%.0f" (ms .MinLatency)}}</td><td>{{printf "%.0f" (ms .MaxLatency)}}</td><td>{{printf "%.0f" .AvgSize}}</td><td>{{printf "%.2f" .RPS}}</td><td>{{printf "%.2f" .FailuresPerS}}</td></tr>{{end}}
    </table>
    {{if .Failures}}
    <h2>Failures</h2>
    <table>
        <tr><th>Method</th><th>Name</th><th>Error</th><th>Occurrences</th></tr>
        {{range .Failures}}<tr><td>{{.Method}}</td><td>{{.Name}}</td><td>{{.Error}}</td><td>{{.Occurrences}}</td></tr>
        {{end}}
    </table>
    {{end}}
</body>
</html>
`
