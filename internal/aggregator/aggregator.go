// Package aggregator provides cost aggregation across providers
package aggregator

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lvonguyen/cloudspy/internal/normalizer"
	"github.com/lvonguyen/cloudspy/internal/providers"
)

// TopServiceLimit caps the services listed in a summary.
const TopServiceLimit = 10

// DashboardSummary is the cross-provider view of one period.
type DashboardSummary struct {
	TotalCost      decimal.Decimal            `json:"total_cost"`
	CostByProvider map[string]decimal.Decimal `json:"cost_by_provider"`
	CostByService  []normalizer.CostMetric    `json:"cost_by_service"`
	Period         string                     `json:"period"`
	LastUpdated    time.Time                  `json:"last_updated"`
}

// ProviderComparison holds either the statistics or the error of one provider.
type ProviderComparison struct {
	Total      *decimal.Decimal `json:"total,omitempty"`
	Services   *int             `json:"services,omitempty"`
	TopService string           `json:"top_service,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Comparison is the per-provider breakdown of one period.
type Comparison struct {
	Period               string                        `json:"period"`
	Providers            map[string]ProviderComparison `json:"providers"`
	TotalAcrossProviders decimal.Decimal               `json:"total_across_providers"`
}

// Result is the outcome of one provider call.
type Result struct {
	Provider string
	Metrics  []normalizer.CostMetric
	Err      error
}

// Aggregator fans cost queries out to providers
type Aggregator struct {
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an Aggregator. A zero timeout leaves calls bounded only by ctx.
func New(timeout time.Duration, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Collect queries every provider concurrently. Results keep the order of
// provs; a failing provider does not cancel the others.
func (a *Aggregator) Collect(ctx context.Context, q providers.CostQuery, provs []providers.CostProvider) []Result {
	results := make([]Result, len(provs))

	var g errgroup.Group
	for i, p := range provs {
		i, p := i, p
		g.Go(func() error {
			callCtx, cancel := a.callContext(ctx)
			defer cancel()

			metrics, err := p.GetCosts(callCtx, q)
			results[i] = Result{Provider: p.Name(), Metrics: metrics, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (a *Aggregator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

// Summarize builds the dashboard summary. A failing provider contributes a
// zero subtotal and is logged; it never fails the summary.
func (a *Aggregator) Summarize(ctx context.Context, period normalizer.Period, provs []providers.CostProvider) *DashboardSummary {
	q := providers.CostQuery{
		Start:       period.Start,
		End:         period.End,
		Granularity: "MONTHLY",
		GroupBy:     []string{"SERVICE"},
	}

	summary := &DashboardSummary{
		TotalCost:      decimal.Zero,
		CostByProvider: make(map[string]decimal.Decimal, len(provs)),
		Period:         period.String(),
	}

	all := make([]normalizer.CostMetric, 0)
	for _, r := range a.Collect(ctx, q, provs) {
		if r.Err != nil {
			a.logger.Warn("Provider cost retrieval failed",
				zap.String("provider", r.Provider),
				zap.String("kind", string(providers.KindOf(r.Err))),
				zap.Error(r.Err),
			)
			summary.CostByProvider[r.Provider] = decimal.Zero
			continue
		}

		subtotal := normalizer.Total(r.Metrics)
		summary.CostByProvider[r.Provider] = subtotal
		summary.TotalCost = summary.TotalCost.Add(subtotal)
		all = append(all, r.Metrics...)
	}

	summary.CostByService = TopServices(all, TopServiceLimit)
	summary.LastUpdated = a.now().UTC()
	return summary
}

// TopServices merges metrics by service name and returns the n most
// expensive, ties broken by name. Amounts are labelled USD.
func TopServices(metrics []normalizer.CostMetric, n int) []normalizer.CostMetric {
	byService := make(map[string]decimal.Decimal)
	for _, m := range metrics {
		byService[m.Service] = byService[m.Service].Add(m.Amount)
	}

	services := make([]normalizer.CostMetric, 0, len(byService))
	for name, amount := range byService {
		services = append(services, normalizer.NewCostMetric(name, amount, normalizer.DefaultUnit, ""))
	}

	sort.Slice(services, func(i, j int) bool {
		if c := services[i].Amount.Cmp(services[j].Amount); c != 0 {
			return c > 0
		}
		return services[i].Service < services[j].Service
	})

	if len(services) > n {
		services = services[:n]
	}
	return services
}

// Compare reports totals, distinct service counts and the top service per
// provider. Errors are reported per provider.
func (a *Aggregator) Compare(ctx context.Context, period normalizer.Period, provs []providers.CostProvider) *Comparison {
	q := providers.CostQuery{
		Start:       period.Start,
		End:         period.End,
		Granularity: "MONTHLY",
		GroupBy:     []string{"SERVICE"},
	}

	cmp := &Comparison{
		Period:               period.String(),
		Providers:            make(map[string]ProviderComparison, len(provs)),
		TotalAcrossProviders: decimal.Zero,
	}

	for _, r := range a.Collect(ctx, q, provs) {
		if r.Err != nil {
			a.logger.Warn("Provider comparison failed",
				zap.String("provider", r.Provider),
				zap.Error(r.Err),
			)
			cmp.Providers[r.Provider] = ProviderComparison{Error: r.Err.Error()}
			continue
		}

		total := normalizer.Total(r.Metrics)
		services := len(lo.Uniq(lo.Map(r.Metrics, func(m normalizer.CostMetric, _ int) string {
			return m.Service
		})))

		top := "N/A"
		if len(r.Metrics) > 0 {
			top = lo.MaxBy(r.Metrics, func(x, y normalizer.CostMetric) bool {
				return x.Amount.GreaterThan(y.Amount)
			}).Service
		}

		cmp.Providers[r.Provider] = ProviderComparison{
			Total:      &total,
			Services:   &services,
			TopService: top,
		}
		cmp.TotalAcrossProviders = cmp.TotalAcrossProviders.Add(total)
	}

	return cmp
}
