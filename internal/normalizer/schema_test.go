package normalizer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "2024-01-31", false},
		{"day first", "01-01-2024", true},
		{"empty", "", true},
		{"timestamp", "2024-01-01T00:00:00Z", true},
		{"bad month", "2024-13-01", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDate(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidDate)
				assert.Equal(t, "Invalid date format. Use YYYY-MM-DD", err.Error())
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01 to 2024-01-31", p.String())
	assert.True(t, p.Contains("2024-01-01"))
	assert.True(t, p.Contains("2024-01-31"))
	assert.False(t, p.Contains("2024-02-01"))
	assert.False(t, p.Contains("garbage"))

	_, err = ParsePeriod("2024-02-01", "2024-01-01")
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = ParsePeriod("2024-01-01", "31/01/2024")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestLastDays(t *testing.T) {
	now := time.Date(2024, 3, 15, 17, 30, 0, 0, time.UTC)
	p := LastDays(now, 30)
	assert.Equal(t, "2024-02-14 to 2024-03-15", p.String())
}

func TestTotal(t *testing.T) {
	metrics := []CostMetric{
		NewCostMetric("EC2", decimal.RequireFromString("120.50"), "", "2024-01-01"),
		NewCostMetric("S3", decimal.RequireFromString("30.00"), "USD", "2024-01-01"),
	}
	assert.True(t, Total(metrics).Equal(decimal.RequireFromString("150.50")))
	assert.True(t, Total(nil).IsZero())
	assert.Equal(t, "USD", metrics[0].Unit)
}

func TestParseAmount(t *testing.T) {
	assert.True(t, ParseAmount("12.3456").Equal(decimal.RequireFromString("12.3456")))
	assert.True(t, ParseAmount("").IsZero())
	assert.True(t, ParseAmount("n/a").IsZero())
}

func TestCostMetricJSON(t *testing.T) {
	m := NewCostMetric("EC2", decimal.RequireFromString("120.5"), "USD", "")
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"service":"EC2","amount":120.5,"unit":"USD"}`, string(data))
}
