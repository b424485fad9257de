package reporter

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvonguyen/cloudspy/internal/aggregator"
	"github.com/lvonguyen/cloudspy/internal/anomaly"
	"github.com/lvonguyen/cloudspy/internal/normalizer"
	"github.com/lvonguyen/cloudspy/internal/providers"
)

func sampleData() ReportData {
	return ReportData{
		Summary: &aggregator.DashboardSummary{
			TotalCost: decimal.RequireFromString("150.50"),
			CostByProvider: map[string]decimal.Decimal{
				"aws": decimal.RequireFromString("150.50"),
				"gcp": decimal.Zero,
			},
			CostByService: []normalizer.CostMetric{
				normalizer.NewCostMetric("EC2", decimal.RequireFromString("120.50"), "USD", ""),
				normalizer.NewCostMetric("S3", decimal.RequireFromString("30"), "USD", ""),
			},
			Period:      "2024-01-01 to 2024-01-31",
			LastUpdated: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		Anomalies: []anomaly.Anomaly{
			{Date: "2024-01-25", Provider: "aws", Service: "EC2", ActualCost: 20, ExpectedCost: 11, PercentChange: 81.8, Severity: "critical", Reason: "Notable increase"},
		},
		GeneratedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatJSON, sampleData()))

	var got struct {
		Summary struct {
			TotalCost      float64            `json:"total_cost"`
			CostByProvider map[string]float64 `json:"cost_by_provider"`
			Period         string             `json:"period"`
		} `json:"summary"`
		Anomalies []anomaly.Anomaly `json:"anomalies"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 150.5, got.Summary.TotalCost)
	assert.Equal(t, 0.0, got.Summary.CostByProvider["gcp"])
	assert.Equal(t, "2024-01-01 to 2024-01-31", got.Summary.Period)
	require.Len(t, got.Anomalies, 1)
}

func TestRenderCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "CSV", sampleData()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Type", "Name", "Amount", "Unit"},
		{"total", "all", "150.50", "USD"},
		{"provider", "aws", "150.50", "USD"},
		{"provider", "gcp", "0.00", "USD"},
		{"service", "EC2", "120.50", "USD"},
		{"service", "S3", "30.00", "USD"},
	}, rows)
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatHTML, sampleData()))

	out := buf.String()
	assert.Contains(t, out, "<title>CloudSpy Cost Report - 2024-01-01 to 2024-01-31</title>")
	assert.Contains(t, out, "$150.50")
	assert.Contains(t, out, `<span class="badge critical">critical</span>`)
	assert.Contains(t, out, "<td>EC2</td>")
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatText, sampleData()))

	out := buf.String()
	assert.Contains(t, out, "Total Spend: $150.50")
	assert.Contains(t, out, "aws:     $150.50 (100.0%)")
	assert.Contains(t, out, "gcp:     $0.00 (0.0%)")
	assert.Contains(t, out, "[critical] aws/EC2 2024-01-25")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "╝"))
}

func TestRenderTextZeroTotal(t *testing.T) {
	data := sampleData()
	data.Summary.TotalCost = decimal.Zero
	data.Summary.CostByProvider = map[string]decimal.Decimal{"gcp": decimal.Zero}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatText, data))
	assert.Contains(t, buf.String(), "gcp:     $0.00 (0.0%)")
}

func TestRenderUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, "pdf", sampleData())
	require.Error(t, err)
	assert.Equal(t, providers.KindValidation, providers.KindOf(err))
	assert.Empty(t, buf.String())
}

func TestRenderWithoutSummary(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Render(&buf, FormatJSON, ReportData{}))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv; charset=UTF-8", ContentType(FormatCSV))
	assert.Equal(t, "text/plain; charset=UTF-8", ContentType(FormatText))
}
