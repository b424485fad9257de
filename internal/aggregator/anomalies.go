package aggregator

import (
	"context"

	"go.uber.org/zap"

	"github.com/lvonguyen/cloudspy/internal/anomaly"
	"github.com/lvonguyen/cloudspy/internal/normalizer"
	"github.com/lvonguyen/cloudspy/internal/providers"
)

// Anomalies queries daily costs per service and runs d over each provider
// that answered. The result is ordered by severity.
func (a *Aggregator) Anomalies(ctx context.Context, period normalizer.Period, provs []providers.CostProvider, d *anomaly.Detector) []anomaly.Anomaly {
	q := providers.CostQuery{
		Start:       period.Start,
		End:         period.End,
		Granularity: "DAILY",
		GroupBy:     []string{"SERVICE"},
	}

	found := make([]anomaly.Anomaly, 0)
	for _, r := range a.Collect(ctx, q, provs) {
		if r.Err != nil {
			a.logger.Warn("Skipping anomaly detection",
				zap.String("provider", r.Provider),
				zap.Error(r.Err),
			)
			continue
		}
		found = append(found, d.Detect(r.Provider, r.Metrics, period.End)...)
	}
	anomaly.Sort(found)
	return found
}
