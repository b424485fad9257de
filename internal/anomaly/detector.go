// Package anomaly provides cost anomaly detection.
package anomaly

import (
	"math"
	"sort"
	"time"

	"github.com/lvonguyen/cloudspy/internal/normalizer"
)

// Sensitivity levels for anomaly detection
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// DefaultRecentDays is the window checked against the baseline.
const DefaultRecentDays = 7

// DetectorConfig holds configuration for anomaly detection
type DetectorConfig struct {
	Sensitivity Sensitivity
	RecentDays  int     // Days at the end of the window that are checked
	MinSpend    float64 // Minimum baseline mean to consider
}

// Anomaly represents a detected cost anomaly
type Anomaly struct {
	Date          string  `json:"date"`
	Provider      string  `json:"provider"`
	Service       string  `json:"service"`
	ActualCost    float64 `json:"actual_cost"`
	ExpectedCost  float64 `json:"expected_cost"`
	Deviation     float64 `json:"deviation"`
	PercentChange float64 `json:"percent_change"`
	Reason        string  `json:"reason"`
	Severity      string  `json:"severity"` // low, medium, high, critical
}

// Detector performs anomaly detection on cost data
type Detector struct {
	config     DetectorConfig
	thresholds map[Sensitivity]float64 // Z-score thresholds
}

// NewDetector creates a new anomaly detector
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.RecentDays <= 0 {
		cfg.RecentDays = DefaultRecentDays
	}
	thresholds := map[Sensitivity]float64{
		SensitivityLow:    3.0,
		SensitivityMedium: 2.0,
		SensitivityHigh:   1.5,
	}
	if _, ok := thresholds[cfg.Sensitivity]; !ok {
		cfg.Sensitivity = SensitivityMedium
	}
	return &Detector{
		config:     cfg,
		thresholds: thresholds,
	}
}

type point struct {
	date time.Time
	cost float64
}

// Detect analyzes one provider's daily metrics for anomalies. Points in the
// last RecentDays before end are checked against the points preceding them.
// Metrics without a parseable date are ignored.
func (d *Detector) Detect(provider string, metrics []normalizer.CostMetric, end time.Time) []Anomaly {
	if len(metrics) == 0 {
		return nil
	}

	byService := make(map[string][]point)
	for _, m := range metrics {
		date, err := normalizer.ParseDate(m.Date)
		if err != nil {
			continue
		}
		byService[m.Service] = append(byService[m.Service], point{date: date, cost: m.Amount.InexactFloat64()})
	}

	cutoff := end.AddDate(0, 0, -d.config.RecentDays)

	var anomalies []Anomaly
	for service, points := range byService {
		sort.Slice(points, func(i, j int) bool {
			return points[i].date.Before(points[j].date)
		})

		baseline := calculateBaseline(points, cutoff)
		if baseline.Count == 0 || baseline.Mean < d.config.MinSpend {
			continue
		}

		for _, p := range points {
			if !p.date.After(cutoff) || p.date.After(end) {
				continue
			}
			if a := d.checkAnomaly(p, baseline); a != nil {
				a.Provider = provider
				a.Service = service
				anomalies = append(anomalies, *a)
			}
		}
	}

	Sort(anomalies)
	return anomalies
}

// Sort orders anomalies by severity, most severe first, then by date and
// service.
func Sort(anomalies []Anomaly) {
	sort.SliceStable(anomalies, func(i, j int) bool {
		ri, rj := severityRank(anomalies[i].Severity), severityRank(anomalies[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if anomalies[i].Date != anomalies[j].Date {
			return anomalies[i].Date < anomalies[j].Date
		}
		return anomalies[i].Service < anomalies[j].Service
	})
}

// Baseline holds statistical baseline for a service
type Baseline struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	Count  int
}

// calculateBaseline computes the baseline from points up to and including
// cutoff. Later points form the recent window.
func calculateBaseline(points []point, cutoff time.Time) Baseline {
	var values []float64
	for _, p := range points {
		if !p.date.After(cutoff) {
			values = append(values, p.cost)
		}
	}

	if len(values) == 0 {
		return Baseline{}
	}

	var sum float64
	min := values[0]
	max := values[0]
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(values))

	var sumSqDiff float64
	for _, v := range values {
		sumSqDiff += (v - mean) * (v - mean)
	}
	stdDev := math.Sqrt(sumSqDiff / float64(len(values)))

	return Baseline{
		Mean:   mean,
		StdDev: stdDev,
		Min:    min,
		Max:    max,
		Count:  len(values),
	}
}

// checkAnomaly returns nil when p is within the sensitivity threshold.
func (d *Detector) checkAnomaly(p point, baseline Baseline) *Anomaly {
	if baseline.StdDev == 0 {
		return nil
	}

	zScore := (p.cost - baseline.Mean) / baseline.StdDev
	if math.Abs(zScore) < d.thresholds[d.config.Sensitivity] {
		return nil
	}

	percentChange := 0.0
	if baseline.Mean != 0 {
		percentChange = ((p.cost - baseline.Mean) / baseline.Mean) * 100
	}

	return &Anomaly{
		Date:          normalizer.FormatDate(p.date),
		ActualCost:    p.cost,
		ExpectedCost:  baseline.Mean,
		Deviation:     zScore,
		PercentChange: percentChange,
		Reason:        determineReason(percentChange),
		Severity:      severityFor(zScore),
	}
}

func severityFor(zScore float64) string {
	switch z := math.Abs(zScore); {
	case z >= 4.0:
		return "critical"
	case z >= 3.0:
		return "high"
	case z >= 2.0:
		return "medium"
	}
	return "low"
}

// determineReason suggests possible reasons for the anomaly
func determineReason(percentChange float64) string {
	switch {
	case percentChange > 100:
		return "Significant cost spike - possible new workload or misconfiguration"
	case percentChange > 50:
		return "Notable increase - check for scaling events or new resources"
	case percentChange < -50:
		return "Significant decrease - resource termination or reduced usage"
	case percentChange > 20:
		return "Moderate increase - normal variance or gradual growth"
	}
	return "Cost deviation from historical baseline"
}

// severityRank returns numeric rank for sorting
func severityRank(severity string) int {
	switch severity {
	case "critical":
		return 4
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	default:
		return 0
	}
}
