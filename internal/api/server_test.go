package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lvonguyen/cloudspy/internal/config"
	"github.com/lvonguyen/cloudspy/internal/normalizer"
	"github.com/lvonguyen/cloudspy/internal/providers"
	"github.com/lvonguyen/cloudspy/internal/providers/aws"
	"github.com/lvonguyen/cloudspy/internal/providers/azure"
	"github.com/lvonguyen/cloudspy/internal/providers/gcp"
)

var fixedNow = time.Date(2024, 3, 31, 15, 4, 5, 0, time.UTC)

type fakeCloud struct {
	name     string
	metrics  []normalizer.CostMetric
	err      error
	conn     providers.ConnectionResult
	services []string

	mu      sync.Mutex
	queries []providers.CostQuery
}

func (f *fakeCloud) Name() string { return f.name }

func (f *fakeCloud) TestConnection(context.Context) providers.ConnectionResult { return f.conn }

func (f *fakeCloud) GetCosts(_ context.Context, q providers.CostQuery) ([]normalizer.CostMetric, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.metrics, nil
}

func (f *fakeCloud) lastQuery() providers.CostQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

type fakeAWS struct{ fakeCloud }

func (f *fakeAWS) GetServices(context.Context) ([]string, error) { return f.services, f.err }

func (f *fakeAWS) GetForecast(_ context.Context, start, _ time.Time) (normalizer.CostMetric, error) {
	return normalizer.NewCostMetric("Forecast", decimal.RequireFromString("99.95"), "USD", normalizer.FormatDate(start)), f.err
}

type fakeAzure struct{ fakeCloud }

func (f *fakeAzure) GetSubscriptions(context.Context) ([]azure.Subscription, error) {
	return []azure.Subscription{{ID: "sub-1", Name: "Prod", State: "Enabled"}}, f.err
}

// harness records the credentials each factory call received.
type harness struct {
	server *Server
	aws    *fakeAWS
	azure  *fakeAzure

	awsCreds   aws.Credentials
	azureCreds azure.Credentials
	awsErr     error
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		aws:   &fakeAWS{fakeCloud{name: providers.AWS, conn: providers.Connected()}},
		azure: &fakeAzure{fakeCloud{name: providers.Azure, conn: providers.Connected()}},
	}

	sdk := NewFactory(config.Default().AWS, nil)
	factory := Factory{
		AWS: func(_ context.Context, creds aws.Credentials) (AWSClient, error) {
			h.awsCreds = creds
			if h.awsErr != nil {
				return nil, h.awsErr
			}
			return h.aws, nil
		},
		Azure: func(_ context.Context, creds azure.Credentials) (AzureClient, error) {
			h.azureCreds = creds
			return h.azure, nil
		},
		// GCP needs no network for costs; exercise the real client.
		GCP: sdk.GCP,
	}

	h.server = New(config.Default(), factory, zaptest.NewLogger(t))
	h.server.now = func() time.Time { return fixedNow }
	return h
}

func (h *harness) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return fmt.Sprint(decode(t, rec)["detail"])
}

func usd(service, amount, date string) normalizer.CostMetric {
	return normalizer.NewCostMetric(service, decimal.RequireFromString(amount), "USD", date)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/", "/health"} {
		rec := h.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", decode(t, rec)["status"])
		assert.NotEmpty(t, rec.Header().Get("X-Process-Time"))
		assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	}

	rec := h.do(t, http.MethodGet, "/api/v1/auth/health", "")
	assert.Equal(t, map[string]any{"status": "healthy", "service": "auth"}, decode(t, rec))

	rec = h.do(t, http.MethodGet, "/api/v1/dashboard/health", "")
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "2024-03-31T15:04:05Z", body["timestamp"])
	assert.Equal(t, map[string]any{"aws": "available", "azure": "available", "gcp": "available"}, body["services"])
}

func TestValidateToken(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/auth/validate-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "No authentication token provided", detail(t, rec))

	rec = h.do(t, http.MethodPost, "/api/v1/auth/validate-token", "", "Authorization", "Bearer abc")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "anonymous", body["user_id"])
	assert.Contains(t, body, "expires_at")
	assert.Nil(t, body["expires_at"])
}

func TestCORS(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/health", "", "Origin", "http://localhost:3000")
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = h.do(t, http.MethodGet, "/health", "", "Origin", "http://evil.example.com")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAWSCosts(t *testing.T) {
	h := newHarness(t)
	h.aws.metrics = []normalizer.CostMetric{usd("EC2", "120.50", "2024-01-01")}

	rec := h.do(t, http.MethodGet, "/api/v1/aws/costs?start_date=2024-01-01&end_date=2024-01-31&role_arn=arn:aws:iam::123:role/x", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "EC2", got[0]["service"])
	assert.Equal(t, 120.5, got[0]["amount"])
	assert.Equal(t, "USD", got[0]["unit"])
	assert.Equal(t, "2024-01-01", got[0]["date"])

	q := h.aws.lastQuery()
	assert.Equal(t, "MONTHLY", q.Granularity)
	assert.Equal(t, []string{"SERVICE"}, q.GroupBy)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), q.End)
	assert.Equal(t, "arn:aws:iam::123:role/x", h.awsCreds.RoleARN)

	rec = h.do(t, http.MethodGet, "/api/v1/aws/costs?start_date=2024-01-01&end_date=2024-01-31&granularity=DAILY&group_by=SERVICE,REGION", "")
	require.Equal(t, http.StatusOK, rec.Code)
	q = h.aws.lastQuery()
	assert.Equal(t, "DAILY", q.Granularity)
	assert.Equal(t, []string{"SERVICE", "REGION"}, q.GroupBy)
}

func TestCostsInvalidDates(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"malformed start", "/api/v1/aws/costs?start_date=2024-13-01&end_date=2024-01-31", "Invalid date format. Use YYYY-MM-DD"},
		{"slashes", "/api/v1/azure/costs?start_date=2024/01/01&end_date=2024-01-31&subscription_id=s", "Invalid date format. Use YYYY-MM-DD"},
		{"reversed", "/api/v1/gcp/costs?start_date=2024-02-01&end_date=2024-01-31&project_id=p", "start_date must not be after end_date"},
		{"missing", "/api/v1/aws/costs?start_date=2024-01-01", "start_date and end_date are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, detail(t, rec))
		})
	}
	assert.Empty(t, h.aws.queries)
}

func TestProviderRequiredIdentifiers(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/azure/costs?start_date=2024-01-01&end_date=2024-01-31", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Subscription ID is required", detail(t, rec))

	rec = h.do(t, http.MethodGet, "/api/v1/gcp/costs?start_date=2024-01-01&end_date=2024-01-31", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Project ID is required", detail(t, rec))
}

func TestAzureCostsDefaults(t *testing.T) {
	h := newHarness(t)
	h.azure.metrics = []normalizer.CostMetric{}

	rec := h.do(t, http.MethodGet, "/api/v1/azure/costs?start_date=2024-01-01&end_date=2024-01-31&subscription_id=sub-1&tenant_id=t&client_id=c&client_secret=s", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
	assert.Equal(t, "Monthly", h.azure.lastQuery().Granularity)
	assert.Equal(t, azure.Credentials{TenantID: "t", ClientID: "c", ClientSecret: "s", SubscriptionID: "sub-1"}, h.azureCreds)
}

func TestGCPCostsEmpty(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/gcp/costs?start_date=2024-01-01&end_date=2024-01-31&project_id=my-project", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestGCPInvalidServiceAccountKey(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/gcp/costs?start_date=2024-01-01&end_date=2024-01-31&project_id=p&service_account_key=nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid service account key JSON", detail(t, rec))
}

func TestErrorKindStatus(t *testing.T) {
	tests := []struct {
		kind providers.Kind
		want int
	}{
		{providers.KindValidation, http.StatusBadRequest},
		{providers.KindUpstreamAuth, http.StatusForbidden},
		{providers.KindUpstreamRateLimit, http.StatusTooManyRequests},
		{providers.KindUpstreamOther, http.StatusBadGateway},
		{providers.KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			h := newHarness(t)
			h.aws.err = &providers.Error{Provider: providers.AWS, Op: "retrieve AWS costs", Kind: tt.kind, Err: errors.New("upstream said no")}

			rec := h.do(t, http.MethodGet, "/api/v1/aws/costs?start_date=2024-01-01&end_date=2024-01-31&access_key=AK", "")
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "failed to retrieve AWS costs: upstream said no", detail(t, rec))
		})
	}
}

func TestTestConnection(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/aws/test-connection",
		`{"provider":"aws","credentials":{"access_key":"AK","secret_key":"SK"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"success": true, "message": "Connection successful"}, decode(t, rec))
	assert.Equal(t, aws.Credentials{AccessKey: "AK", SecretKey: "SK"}, h.awsCreds)

	h.azure.conn = providers.Failed("AuthorizationFailed")
	rec = h.do(t, http.MethodPost, "/api/v1/azure/test-connection",
		`{"provider":"azure","credentials":{"subscription_id":"sub-1"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "AuthorizationFailed", detail(t, rec))

	rec = h.do(t, http.MethodPost, "/api/v1/aws/test-connection", `{"provider":"gcp","credentials":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Provider mismatch: expected aws", detail(t, rec))

	rec = h.do(t, http.MethodPost, "/api/v1/aws/test-connection", `{"provider":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/aws/test-connection", `{"provider":"aws","credentials":{"access_key":42}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(detail(t, rec), "Invalid credentials"))
}

func TestDashboardSummary(t *testing.T) {
	h := newHarness(t)
	h.aws.metrics = []normalizer.CostMetric{
		usd("EC2", "120.50", "2024-01-01"),
		usd("S3", "30.00", "2024-01-01"),
	}

	rec := h.do(t, http.MethodGet, "/api/v1/dashboard/summary?start_date=2024-01-01&end_date=2024-01-31&aws_role_arn=arn&gcp_project_id=my-project", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, 150.5, body["total_cost"])
	assert.Equal(t, map[string]any{"aws": 150.5, "gcp": 0.0}, body["cost_by_provider"])
	assert.Equal(t, "2024-01-01 to 2024-01-31", body["period"])

	services := body["cost_by_service"].([]any)
	require.Len(t, services, 2)
	assert.Equal(t, "EC2", services[0].(map[string]any)["service"])
	assert.NotContains(t, services[0].(map[string]any), "date")

	assert.Equal(t, "arn", h.awsCreds.RoleARN)
	assert.Nil(t, h.azure.queries)
}

func TestDashboardSummaryDefaults(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/dashboard/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, 0.0, body["total_cost"])
	assert.Equal(t, map[string]any{}, body["cost_by_provider"])
	assert.Equal(t, []any{}, body["cost_by_service"])
	assert.Equal(t, "2024-03-01 to 2024-03-31", body["period"])
}

func TestDashboardSummaryProviderFailure(t *testing.T) {
	h := newHarness(t)
	h.aws.err = providers.Wrap(providers.AWS, "retrieve AWS costs", errors.New("throttled"))
	h.azure.metrics = []normalizer.CostMetric{usd("Storage", "10", "2024-01-01")}

	rec := h.do(t, http.MethodGet, "/api/v1/dashboard/summary?start_date=2024-01-01&end_date=2024-01-31&aws_access_key=AK&azure_subscription_id=sub", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, 10.0, body["total_cost"])
	assert.Equal(t, map[string]any{"aws": 0.0, "azure": 10.0}, body["cost_by_provider"])
}

func TestDashboardSummaryClientFailure(t *testing.T) {
	h := newHarness(t)
	h.awsErr = errors.New("failed to load AWS config")

	rec := h.do(t, http.MethodGet, "/api/v1/dashboard/summary?aws_access_key=AK", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"aws": 0.0}, decode(t, rec)["cost_by_provider"])
}

func TestDashboardSummaryInvalidDate(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/dashboard/summary?start_date=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid date format. Use YYYY-MM-DD", detail(t, rec))
}

func TestCostComparison(t *testing.T) {
	h := newHarness(t)
	h.aws.metrics = []normalizer.CostMetric{
		usd("EC2", "120.50", "2024-01-01"),
		usd("S3", "30.00", "2024-01-01"),
	}
	h.azure.err = providers.Invalid(providers.Azure, "Subscription ID is required")

	rec := h.do(t, http.MethodGet, "/api/v1/dashboard/costs/comparison?start_date=2024-01-01&end_date=2024-01-31"+
		"&providers=AWS,%20azure,gcp&aws_role_arn=arn&azure_subscription_id=sub&gcp_project_id=p", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "2024-01-01 to 2024-01-31", body["period"])
	assert.Equal(t, 150.5, body["total_across_providers"])

	provs := body["providers"].(map[string]any)
	assert.Equal(t, map[string]any{"total": 150.5, "services": 2.0, "top_service": "EC2"}, provs["aws"])
	assert.Equal(t, map[string]any{"error": "Subscription ID is required"}, provs["azure"])
	assert.Equal(t, map[string]any{"total": 0.0, "services": 0.0, "top_service": "N/A"}, provs["gcp"])
}

func TestCostComparisonSelection(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/dashboard/costs/comparison?start_date=2024-01-01&end_date=2024-01-31&providers=gcp&aws_role_arn=arn", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{}, decode(t, rec)["providers"])
	assert.Nil(t, h.aws.queries)

	rec = h.do(t, http.MethodGet, "/api/v1/dashboard/costs/comparison?start_date=2024-01-01&end_date=2024-01-31", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "providers is required", detail(t, rec))
}

func TestAWSServicesAndForecast(t *testing.T) {
	h := newHarness(t)
	h.aws.services = []string{"Amazon EC2", "Amazon S3"}

	rec := h.do(t, http.MethodGet, "/api/v1/aws/services?access_key=AK&secret_key=SK", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"services": []any{"Amazon EC2", "Amazon S3"}}, decode(t, rec))

	rec = h.do(t, http.MethodGet, "/api/v1/aws/forecast?access_key=AK", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "2024-03-31 to 2024-04-30", body["period"])
	forecast := body["forecast"].(map[string]any)
	assert.Equal(t, 99.95, forecast["amount"])
	assert.Equal(t, "2024-03-31", forecast["date"])
}

func TestAzureSubscriptions(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/azure/subscriptions?tenant_id=t", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"subscriptions":[{"id":"sub-1","name":"Prod","state":"Enabled"}]}`, rec.Body.String())
}

func TestGCPBudgetsRequiresAccount(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/gcp/budgets?project_id=p", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "billing_account is required", detail(t, rec))
}

func dailySeries() []normalizer.CostMetric {
	var out []normalizer.CostMetric
	for day := 1; day <= 22; day++ {
		amount := "10"
		if day%2 == 0 {
			amount = "12"
		}
		out = append(out, usd("EC2", amount, fmt.Sprintf("2024-03-%02d", day)))
	}
	return append(out, usd("EC2", "50", "2024-03-30"))
}

func TestDashboardAnomalies(t *testing.T) {
	h := newHarness(t)
	h.aws.metrics = dailySeries()

	rec := h.do(t, http.MethodGet, "/api/v1/dashboard/anomalies?aws_role_arn=arn", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "2024-03-01 to 2024-03-31", body["period"])
	found := body["anomalies"].([]any)
	require.Len(t, found, 1)
	a := found[0].(map[string]any)
	assert.Equal(t, "aws", a["provider"])
	assert.Equal(t, "EC2", a["service"])
	assert.Equal(t, "2024-03-30", a["date"])
	assert.Equal(t, "critical", a["severity"])

	assert.Equal(t, "DAILY", h.aws.lastQuery().Granularity)
}

func TestDashboardReport(t *testing.T) {
	h := newHarness(t)
	h.aws.metrics = dailySeries()

	rec := h.do(t, http.MethodGet, "/api/v1/dashboard/report?format=csv&aws_role_arn=arn", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=UTF-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Type,Name,Amount,Unit\n"))
	assert.Contains(t, rec.Body.String(), "provider,aws,")

	rec = h.do(t, http.MethodGet, "/api/v1/dashboard/report?format=text&include_anomalies=true&aws_role_arn=arn", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "[critical] aws/EC2 2024-03-30")

	rec = h.do(t, http.MethodGet, "/api/v1/dashboard/report?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/dashboard/report?include_anomalies=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/oracle/costs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", detail(t, rec))
}

var _ GCPClient = (*gcp.CostProvider)(nil)
