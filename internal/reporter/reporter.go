// Package reporter renders dashboard summaries as reports
package reporter

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/lvonguyen/cloudspy/internal/aggregator"
	"github.com/lvonguyen/cloudspy/internal/anomaly"
	"github.com/lvonguyen/cloudspy/internal/providers"
)

// Supported report formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatHTML = "html"
	FormatText = "text"
)

// Formats lists the accepted format names.
var Formats = []string{FormatJSON, FormatCSV, FormatHTML, FormatText}

// ReportData contains all data for report generation
type ReportData struct {
	Summary     *aggregator.DashboardSummary `json:"summary"`
	Anomalies   []anomaly.Anomaly            `json:"anomalies,omitempty"`
	GeneratedAt time.Time                    `json:"generated_at"`
}

// ContentType returns the MIME type of a report format.
func ContentType(format string) string {
	switch format {
	case FormatJSON:
		return "application/json; charset=UTF-8"
	case FormatCSV:
		return "text/csv; charset=UTF-8"
	case FormatHTML:
		return "text/html; charset=UTF-8"
	}
	return "text/plain; charset=UTF-8"
}

// Render writes data to w in the given format.
func Render(w io.Writer, format string, data ReportData) error {
	if data.Summary == nil {
		return fmt.Errorf("failed to render report: no summary")
	}

	switch strings.ToLower(format) {
	case FormatJSON:
		return renderJSON(w, data)
	case FormatCSV:
		return renderCSV(w, data)
	case FormatHTML:
		return renderHTML(w, data)
	case FormatText:
		return renderText(w, data)
	}
	return providers.Invalid("", fmt.Sprintf("Unsupported report format %q. Use one of: %s", format, strings.Join(Formats, ", ")))
}

func renderJSON(w io.Writer, data ReportData) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return nil
}

func renderCSV(w io.Writer, data ReportData) error {
	writer := csv.NewWriter(w)

	rows := [][]string{{"Type", "Name", "Amount", "Unit"}}
	rows = append(rows, []string{"total", "all", data.Summary.TotalCost.StringFixed(2), "USD"})
	for _, name := range sortedProviders(data.Summary.CostByProvider) {
		rows = append(rows, []string{"provider", name, data.Summary.CostByProvider[name].StringFixed(2), "USD"})
	}
	for _, m := range data.Summary.CostByService {
		rows = append(rows, []string{"service", m.Service, m.Amount.StringFixed(2), m.Unit})
	}

	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

func renderHTML(w io.Writer, data ReportData) error {
	tmpl := template.Must(template.New("report").Funcs(template.FuncMap{
		"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	}).Parse(htmlTemplate))

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

func renderText(w io.Writer, data ReportData) error {
	s := data.Summary

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString("╔══════════════════════════════════════════════════════════════════╗\n")
	b.WriteString("║                Multi-Cloud Cost Summary                          ║\n")
	b.WriteString("╠══════════════════════════════════════════════════════════════════╣\n")
	fmt.Fprintf(&b, "║  Total Spend: $%s\n", s.TotalCost.StringFixed(2))
	fmt.Fprintf(&b, "║  Period: %s\n", s.Period)
	b.WriteString("║\n")
	b.WriteString("║  By Cloud:\n")
	for _, name := range sortedProviders(s.CostByProvider) {
		cost := s.CostByProvider[name]
		pct := decimal.Zero
		if !s.TotalCost.IsZero() {
			pct = cost.Div(s.TotalCost).Mul(decimal.NewFromInt(100))
		}
		fmt.Fprintf(&b, "║    %-8s $%s (%s%%)\n", name+":", cost.StringFixed(2), pct.StringFixed(1))
	}
	if len(s.CostByService) > 0 {
		b.WriteString("║\n")
		b.WriteString("║  Top Services:\n")
		for _, m := range s.CostByService {
			fmt.Fprintf(&b, "║    %-32s $%s\n", m.Service, m.Amount.StringFixed(2))
		}
	}
	if len(data.Anomalies) > 0 {
		b.WriteString("║\n")
		b.WriteString("║  Anomalies:\n")
		for _, a := range data.Anomalies {
			fmt.Fprintf(&b, "║    [%s] %s/%s %s: %s (%.1f%% change)\n",
				a.Severity, a.Provider, a.Service, a.Date, a.Reason, a.PercentChange)
		}
	}
	b.WriteString("╚══════════════════════════════════════════════════════════════════╝\n")
	b.WriteString("\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func sortedProviders(m map[string]decimal.Decimal) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>CloudSpy Cost Report - {{.Summary.Period}}</title>
    <style>
        :root {
            --bg-dark: #0f172a;
            --bg-card: #1e293b;
            --text-primary: #f1f5f9;
            --text-secondary: #94a3b8;
            --accent-blue: #3b82f6;
            --accent-green: #22c55e;
            --accent-yellow: #eab308;
            --accent-red: #ef4444;
            --border: #334155;
        }
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: 'Inter', -apple-system, BlinkMacSystemFont, sans-serif;
            background: var(--bg-dark);
            color: var(--text-primary);
            line-height: 1.6;
            padding: 2rem;
        }
        .container { max-width: 1200px; margin: 0 auto; }
        h1 { font-size: 2rem; margin-bottom: 0.5rem; color: var(--accent-blue); }
        .subtitle { color: var(--text-secondary); margin-bottom: 2rem; }
        .stats-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(200px, 1fr));
            gap: 1rem;
            margin-bottom: 2rem;
        }
        .stat-card, .provider-item {
            background: var(--bg-card);
            border: 1px solid var(--border);
            border-radius: 12px;
            padding: 1.5rem;
        }
        .stat-label { color: var(--text-secondary); font-size: 0.875rem; }
        .stat-value { font-size: 2rem; font-weight: 700; }
        .stat-value.green { color: var(--accent-green); }
        .stat-value.red { color: var(--accent-red); }
        .section { margin-bottom: 2rem; }
        .section-title {
            font-size: 1.25rem;
            margin-bottom: 1rem;
            padding-bottom: 0.5rem;
            border-bottom: 1px solid var(--border);
        }
        table { width: 100%; border-collapse: collapse; background: var(--bg-card); }
        th, td { padding: 1rem; text-align: left; }
        th { background: rgba(59, 130, 246, 0.1); color: var(--accent-blue); }
        tr:not(:last-child) { border-bottom: 1px solid var(--border); }
        .badge { padding: 0.25rem 0.75rem; border-radius: 9999px; font-size: 0.75rem; font-weight: 600; }
        .badge.low { background: rgba(34, 197, 94, 0.2); color: var(--accent-green); }
        .badge.medium { background: rgba(234, 179, 8, 0.2); color: var(--accent-yellow); }
        .badge.high, .badge.critical { background: rgba(239, 68, 68, 0.2); color: var(--accent-red); }
        .provider-breakdown { display: flex; gap: 1rem; flex-wrap: wrap; }
        .provider-item { flex: 1; min-width: 200px; }
        .footer {
            margin-top: 3rem;
            padding-top: 1rem;
            border-top: 1px solid var(--border);
            color: var(--text-secondary);
            font-size: 0.875rem;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>Multi-Cloud Cost Report</h1>
        <p class="subtitle">{{.Summary.Period}} | Generated: {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>

        <div class="stats-grid">
            <div class="stat-card">
                <div class="stat-label">Total Cost</div>
                <div class="stat-value">${{money .Summary.TotalCost}}</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Providers</div>
                <div class="stat-value">{{len .Summary.CostByProvider}}</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Anomalies</div>
                <div class="stat-value {{if gt (len .Anomalies) 0}}red{{else}}green{{end}}">{{len .Anomalies}}</div>
            </div>
        </div>

        <div class="section">
            <h2 class="section-title">Cost by Provider</h2>
            <div class="provider-breakdown">
                {{range $provider, $cost := .Summary.CostByProvider}}
                <div class="provider-item">
                    <div class="stat-label">{{$provider}}</div>
                    <div class="stat-value">${{money $cost}}</div>
                </div>
                {{end}}
            </div>
        </div>

        {{if .Anomalies}}
        <div class="section">
            <h2 class="section-title">Cost Anomalies</h2>
            <table>
                <thead>
                    <tr>
                        <th>Date</th>
                        <th>Provider</th>
                        <th>Service</th>
                        <th>Actual Cost</th>
                        <th>Expected</th>
                        <th>Change</th>
                        <th>Severity</th>
                    </tr>
                </thead>
                <tbody>
                    {{range .Anomalies}}
                    <tr>
                        <td>{{.Date}}</td>
                        <td>{{.Provider}}</td>
                        <td>{{.Service}}</td>
                        <td>${{printf "%.2f" .ActualCost}}</td>
                        <td>${{printf "%.2f" .ExpectedCost}}</td>
                        <td>{{printf "%+.1f" .PercentChange}}%</td>
                        <td><span class="badge {{.Severity}}">{{.Severity}}</span></td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        <div class="section">
            <h2 class="section-title">Top Services by Cost</h2>
            <table>
                <thead>
                    <tr>
                        <th>Service</th>
                        <th>Cost</th>
                    </tr>
                </thead>
                <tbody>
                    {{range .Summary.CostByService}}
                    <tr>
                        <td>{{.Service}}</td>
                        <td>${{money .Amount}} {{.Unit}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>

        <div class="footer">
            <p>Generated by CloudSpy | Last updated {{.Summary.LastUpdated.Format "2006-01-02 15:04:05 MST"}}</p>
        </div>
    </div>
</body>
</html>`
