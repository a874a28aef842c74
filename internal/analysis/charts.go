package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"
)

// chartData is one time series as Chart.js consumes it.
type chartData struct {
	Labels []string  `json:"labels"`
	Data   []float64 `json:"data"`
}

type chartsPage struct {
	Title       string
	GeneratedAt string
	Prefix      string
	Samples     int
	PeakUsers   int
	PeakRPS     string
	Totals      Totals
	HasTotals   bool

	ResponseJSON template.JS
	RPSJSON      template.JS
	UsersJSON    template.JS
	FailureJSON  template.JS
}

// RenderCharts renders the chart report for the loaded history.
func (r *Results) RenderCharts() ([]byte, error) {
	if len(r.History) == 0 {
		return nil, ErrNoHistory
	}

	labels := make([]string, len(r.History))
	resp := make([]float64, len(r.History))
	rps := make([]float64, len(r.History))
	users := make([]float64, len(r.History))
	failure := make([]float64, len(r.History))
	page := &chartsPage{
		Title:       "Load Test Performance Analysis",
		GeneratedAt: time.Now().UTC().Format("2006-01-02 15:04:05 UTC"),
		Prefix:      r.Prefix,
		Samples:     len(r.History),
		Totals:      r.Totals(),
		HasTotals:   r.Stats != nil,
	}
	var peakRPS float64
	for i, s := range r.History {
		labels[i] = s.Timestamp.UTC().Format("15:04:05")
		resp[i] = s.AvgResponse
		rps[i] = s.RPS
		users[i] = float64(s.Users)
		failure[i] = s.FailureRate()
		page.PeakUsers = max(page.PeakUsers, s.Users)
		peakRPS = max(peakRPS, s.RPS)
	}
	page.PeakRPS = fmt.Sprintf("%.2f", peakRPS)

	var err error
	if page.ResponseJSON, err = seriesJSON(labels, resp); err != nil {
		return nil, err
	}
	if page.RPSJSON, err = seriesJSON(labels, rps); err != nil {
		return nil, err
	}
	if page.UsersJSON, err = seriesJSON(labels, users); err != nil {
		return nil, err
	}
	if page.FailureJSON, err = seriesJSON(labels, failure); err != nil {
		return nil, err
	}

	tmpl, err := template.New("charts").Parse(chartsTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("executing HTML template: %w", err)
	}
	return buf.Bytes(), nil
}

// Charts writes the chart report to path, or to ChartsPath when path is empty.
// It returns the path written.
func (r *Results) Charts(path string) (string, error) {
	if path == "" {
		path = r.ChartsPath()
	}
	path = filepath.Clean(path)

	data, err := r.RenderCharts()
	if err != nil {
		return "", err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing HTML report file: %w", err)
	}
	return path, nil
}

func seriesJSON(labels []string, data []float64) (template.JS, error) {
	b, err := json.Marshal(chartData{Labels: labels, Data: data})
	if err != nil {
		return "", fmt.Errorf("encoding chart data: %w", err)
	}
	return template.JS(b), nil
}

const chartsTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js@4.4.1/dist/chart.umd.min.js"></script>
    <style>
        :root {
            --primary-color: #3b82f6;
            --success-color: #10b981;
            --warning-color: #f59e0b;
            --error-color: #ef4444;
            --bg-color: #f8fafc;
            --card-bg: #ffffff;
            --text-primary: #1e293b;
            --text-secondary: #64748b;
            --border-color: #e2e8f0;
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background-color: var(--bg-color);
            color: var(--text-primary);
            line-height: 1.6;
        }
        .container { max-width: 1400px; margin: 0 auto; padding: 2rem; }
        header {
            background: linear-gradient(135deg, #714b67, #4c3146);
            color: white;
            padding: 2rem;
            border-radius: 12px;
            margin-bottom: 2rem;
        }
        header h1 { font-size: 1.875rem; font-weight: 700; margin-bottom: 0.5rem; }
        header .meta { opacity: 0.9; font-size: 0.875rem; }
        .grid { display: grid; gap: 1.5rem; }
        .grid-2 { grid-template-columns: repeat(2, 1fr); }
        .grid-4 { grid-template-columns: repeat(4, 1fr); }
        @media (max-width: 1024px) { .grid-4 { grid-template-columns: repeat(2, 1fr); } }
        @media (max-width: 640px) { .grid-4, .grid-2 { grid-template-columns: 1fr; } }
        .card {
            background: var(--card-bg);
            border-radius: 12px;
            padding: 1.5rem;
            box-shadow: 0 1px 3px rgba(0, 0, 0, 0.1);
            border: 1px solid var(--border-color);
        }
        .card h2 {
            font-size: 1rem;
            font-weight: 600;
            color: var(--text-secondary);
            text-transform: uppercase;
            letter-spacing: 0.05em;
            margin-bottom: 1rem;
            padding-bottom: 0.75rem;
            border-bottom: 1px solid var(--border-color);
        }
        .stat-card { text-align: center; }
        .stat-card .value { font-size: 2rem; font-weight: 700; color: var(--primary-color); }
        .stat-card .label { color: var(--text-secondary); font-size: 0.875rem; }
        .stat-card.error .value { color: var(--error-color); }
        .chart-container { position: relative; height: 300px; }
        .section { margin-bottom: 2rem; }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>{{.Title}}</h1>
            <div class="meta">Results: {{.Prefix}} | Samples: {{.Samples}} | Generated: {{.GeneratedAt}}</div>
        </header>

        <section class="section">
            <div class="grid grid-4">
                {{if .HasTotals}}
                <div class="card stat-card">
                    <div class="value">{{.Totals.Requests}}</div>
                    <div class="label">Total Requests</div>
                </div>
                <div class="card stat-card{{if .Totals.Failures}} error{{end}}">
                    <div class="value">{{.Totals.Failures}}</div>
                    <div class="label">Total Failures</div>
                </div>
                {{end}}
                <div class="card stat-card">
                    <div class="value">{{.PeakUsers}}</div>
                    <div class="label">Peak Users</div>
                </div>
                <div class="card stat-card">
                    <div class="value">{{.PeakRPS}}</div>
                    <div class="label">Peak Requests/s</div>
                </div>
            </div>
        </section>

        <section class="section">
            <div class="grid grid-2">
                <div class="card">
                    <h2>Average Response Time Over Time</h2>
                    <div class="chart-container"><canvas id="responseChart"></canvas></div>
                </div>
                <div class="card">
                    <h2>Requests per Second Over Time</h2>
                    <div class="chart-container"><canvas id="rpsChart"></canvas></div>
                </div>
                <div class="card">
                    <h2>User Count Over Time</h2>
                    <div class="chart-container"><canvas id="usersChart"></canvas></div>
                </div>
                <div class="card">
                    <h2>Failure Rate Over Time</h2>
                    <div class="chart-container"><canvas id="failureChart"></canvas></div>
                </div>
            </div>
        </section>
    </div>

    <script>
        function lineChart(id, series, label, color) {
            new Chart(document.getElementById(id), {
                type: 'line',
                data: {
                    labels: series.labels,
                    datasets: [{
                        label: label,
                        data: series.data,
                        borderColor: color,
                        backgroundColor: color,
                        pointRadius: 0,
                        tension: 0.2
                    }]
                },
                options: {
                    responsive: true,
                    maintainAspectRatio: false,
                    plugins: { legend: { display: false } },
                    scales: {
                        y: { beginAtZero: true, title: { display: true, text: label }, grid: { color: '#e2e8f0' } },
                        x: { grid: { display: false }, ticks: { maxRotation: 45, minRotation: 45 } }
                    }
                }
            });
        }

        lineChart('responseChart', {{.ResponseJSON}}, 'Response Time (ms)', '#3b82f6');
        lineChart('rpsChart', {{.RPSJSON}}, 'Requests/s', '#10b981');
        lineChart('usersChart', {{.UsersJSON}}, 'Active Users', '#8b5cf6');
        lineChart('failureChart', {{.FailureJSON}}, 'Failure Rate (%)', '#ef4444');
    </script>
</body>
</html>`
