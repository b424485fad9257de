package azure

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lvonguyen/cloudspy/internal/normalizer"
	"github.com/lvonguyen/cloudspy/internal/providers"
)

// Result columns returned by the Query API.
const (
	columnPreTaxCost   = "PreTaxCost"
	columnCost         = "Cost"
	columnServiceName  = "ServiceName"
	columnResourceID   = "ResourceId"
	columnUsageDate    = "UsageDate"
	columnBillingMonth = "BillingMonth"
	columnCurrency     = "Currency"
)

const errSubscriptionRequired = "Subscription ID is required"

// Subscription is a reshaped subscription listing entry.
type Subscription struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// TestConnection lists resource groups in the subscription, which needs
// only minimal read permission.
func (p *CostProvider) TestConnection(ctx context.Context) providers.ConnectionResult {
	if p.subscriptionID == "" || p.resourceGroups == nil {
		return providers.Failed(errSubscriptionRequired)
	}

	pager := p.resourceGroups.NewListPager(nil)
	if pager.More() {
		if _, err := pager.NextPage(ctx); err != nil {
			p.logger.Debug("Connection test failed", zap.Error(err))
			return providers.Failed(err.Error())
		}
	}
	return providers.Connected()
}

// GetCosts retrieves costs from Azure Cost Management
func (p *CostProvider) GetCosts(ctx context.Context, q providers.CostQuery) ([]normalizer.CostMetric, error) {
	if p.subscriptionID == "" {
		return nil, providers.Invalid(providers.Azure, errSubscriptionRequired)
	}

	granularity := NormalizeGranularity(q.Granularity)
	scope := fmt.Sprintf("/subscriptions/%s", p.subscriptionID)

	start, end := q.Start, q.End
	query := armcostmanagement.QueryDefinition{
		Type:      toPtr(armcostmanagement.ExportTypeActualCost),
		Timeframe: toPtr(armcostmanagement.TimeframeTypeCustom),
		TimePeriod: &armcostmanagement.QueryTimePeriod{
			From: &start,
			To:   &end,
		},
		Dataset: &armcostmanagement.QueryDataset{
			Granularity: &granularity,
			Grouping:    Grouping(q.GroupBy),
			Aggregation: map[string]*armcostmanagement.QueryAggregation{
				"totalCost": {
					Name:     toPtr(columnPreTaxCost),
					Function: toPtr(armcostmanagement.FunctionTypeSum),
				},
			},
		},
	}

	result, err := p.query.Usage(ctx, scope, query, nil)
	if err != nil {
		return nil, providers.Wrap(providers.Azure, "retrieve Azure costs", err)
	}

	if result.Properties == nil {
		return []normalizer.CostMetric{}, nil
	}
	if result.Properties.NextLink != nil && *result.Properties.NextLink != "" {
		p.logger.Warn("Cost query result truncated", zap.String("scope", scope))
	}

	metrics := parseRows(result.Properties.Columns, result.Properties.Rows, normalizer.FormatDate(q.Start))
	p.logger.Debug("Costs retrieved",
		zap.String("granularity", string(granularity)),
		zap.Int("records", len(metrics)),
	)
	return metrics, nil
}

// GetSubscriptions lists the subscriptions visible to the credential.
func (p *CostProvider) GetSubscriptions(ctx context.Context) ([]Subscription, error) {
	subs := make([]Subscription, 0)

	pager := p.subscriptions.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, providers.Wrap(providers.Azure, "retrieve Azure subscriptions", err)
		}
		for _, s := range page.Value {
			if s == nil {
				continue
			}
			state := "Unknown"
			if s.State != nil {
				state = string(*s.State)
			}
			subs = append(subs, Subscription{
				ID:    deref(s.SubscriptionID),
				Name:  deref(s.DisplayName),
				State: state,
			})
		}
	}
	return subs, nil
}

// NormalizeGranularity capitalizes the caller value; anything other than
// Daily or Monthly becomes Monthly.
func NormalizeGranularity(g string) armcostmanagement.GranularityType {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "daily":
		return armcostmanagement.GranularityTypeDaily
	default:
		return armcostmanagement.GranularityType("Monthly")
	}
}

// Grouping maps SERVICE and RESOURCE onto Azure dimensions. Other values
// are ignored; an empty request groups by service.
func Grouping(groupBy []string) []*armcostmanagement.QueryGrouping {
	if len(groupBy) == 0 {
		groupBy = []string{"SERVICE"}
	}

	grouping := make([]*armcostmanagement.QueryGrouping, 0, len(groupBy))
	for _, g := range groupBy {
		var name string
		switch strings.ToUpper(strings.TrimSpace(g)) {
		case "SERVICE":
			name = columnServiceName
		case "RESOURCE":
			name = columnResourceID
		default:
			continue
		}
		grouping = append(grouping, &armcostmanagement.QueryGrouping{
			Type: toPtr(armcostmanagement.QueryColumnTypeDimension),
			Name: toPtr(name),
		})
	}
	return grouping
}

// parseRows maps result rows by column name. start is the query start as
// YYYY-MM-DD; rows without a date, and monthly rows whose billing month
// begins earlier, are dated start.
func parseRows(columns []*armcostmanagement.QueryColumn, rows [][]any, start string) []normalizer.CostMetric {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c != nil && c.Name != nil {
			index[*c.Name] = i
		}
	}

	cell := func(row []any, name string) (any, bool) {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return nil, false
		}
		return row[i], row[i] != nil
	}

	metrics := make([]normalizer.CostMetric, 0, len(rows))
	for _, row := range rows {
		service := "Unknown"
		if v, ok := cell(row, columnServiceName); ok {
			if s := fmt.Sprint(v); s != "" {
				service = s
			}
		} else if v, ok := cell(row, columnResourceID); ok {
			parts := strings.Split(fmt.Sprint(v), "/")
			if last := parts[len(parts)-1]; last != "" {
				service = last
			}
		}

		amount := decimal.Zero
		if v, ok := cell(row, columnPreTaxCost); ok {
			amount = toDecimal(v)
		} else if v, ok := cell(row, columnCost); ok {
			amount = toDecimal(v)
		}

		unit := ""
		if v, ok := cell(row, columnCurrency); ok {
			unit = fmt.Sprint(v)
		}

		date := start
		if v, ok := cell(row, columnUsageDate); ok {
			date = usageDate(v, start)
		} else if v, ok := cell(row, columnBillingMonth); ok {
			date = usageDate(v, start)
		}
		if date < start {
			date = start
		}

		metrics = append(metrics, normalizer.NewCostMetric(service, amount, unit, date))
	}
	return metrics
}

func toDecimal(v any) decimal.Decimal {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n)
	case int64:
		return decimal.NewFromInt(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case string:
		return normalizer.ParseAmount(n)
	}
	return decimal.Zero
}

// usageDate accepts the yyyymmdd number of daily results and the
// timestamp string of monthly results.
func usageDate(v any, fallback string) string {
	var raw string
	switch d := v.(type) {
	case float64:
		raw = strconv.FormatInt(int64(d), 10)
	case int64:
		raw = strconv.FormatInt(d, 10)
	case int:
		raw = strconv.Itoa(d)
	case string:
		raw = d
	default:
		return fallback
	}

	if t, err := time.Parse("20060102", raw); err == nil {
		return normalizer.FormatDate(t)
	}
	if len(raw) >= 10 {
		if t, err := time.Parse(normalizer.DateLayout, raw[:10]); err == nil {
			return normalizer.FormatDate(t)
		}
	}
	return fallback
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toPtr[T any](v T) *T {
	return &v
}
