// Package normalizer provides the common schema for multi-cloud cost data.
package normalizer

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for every date accepted or emitted by the API.
const DateLayout = "2006-01-02"

// DefaultUnit is used when a provider does not report a currency.
const DefaultUnit = "USD"

// ErrInvalidDate is returned for dates that are not YYYY-MM-DD.
var ErrInvalidDate = errors.New("Invalid date format. Use YYYY-MM-DD")

// ErrInvalidRange is returned when the start date falls after the end date.
var ErrInvalidRange = errors.New("start_date must not be after end_date")

func init() {
	// Amounts are numbers on the wire, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// CostMetric is a normalized cost record from any cloud provider.
type CostMetric struct {
	Service string          `json:"service"`
	Amount  decimal.Decimal `json:"amount"`
	Unit    string          `json:"unit"`
	Date    string          `json:"date,omitempty"`
}

// NewCostMetric builds a metric, defaulting the unit to USD.
func NewCostMetric(service string, amount decimal.Decimal, unit, date string) CostMetric {
	if unit == "" {
		unit = DefaultUnit
	}
	return CostMetric{
		Service: service,
		Amount:  amount,
		Unit:    unit,
		Date:    date,
	}
}

// Total sums the amounts of the given metrics.
func Total(metrics []CostMetric) decimal.Decimal {
	total := decimal.Zero
	for _, m := range metrics {
		total = total.Add(m.Amount)
	}
	return total
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseAmount converts a provider-reported decimal string. Unparseable
// values count as zero.
func ParseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Period is an inclusive date window.
type Period struct {
	Start time.Time
	End   time.Time
}

// ParsePeriod parses and validates a start/end pair.
func ParsePeriod(start, end string) (Period, error) {
	s, err := ParseDate(start)
	if err != nil {
		return Period{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return Period{}, err
	}
	if s.After(e) {
		return Period{}, ErrInvalidRange
	}
	return Period{Start: s, End: e}, nil
}

// LastDays returns the window ending today (UTC) and starting n days earlier.
func LastDays(now time.Time, n int) Period {
	end := now.UTC().Truncate(24 * time.Hour)
	return Period{Start: end.AddDate(0, 0, -n), End: end}
}

// String renders the period the way the dashboard reports it.
func (p Period) String() string {
	return FormatDate(p.Start) + " to " + FormatDate(p.End)
}

// Contains reports whether a YYYY-MM-DD date lies inside the period.
func (p Period) Contains(date string) bool {
	t, err := ParseDate(date)
	if err != nil {
		return false
	}
	return !t.Before(p.Start) && !t.After(p.End)
}
