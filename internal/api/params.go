package api

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"github.com/lvonguyen/cloudspy/internal/normalizer"
	"github.com/lvonguyen/cloudspy/internal/providers"
	"github.com/lvonguyen/cloudspy/internal/providers/aws"
	"github.com/lvonguyen/cloudspy/internal/providers/azure"
	"github.com/lvonguyen/cloudspy/internal/providers/gcp"
)

// dashboardWindowDays is the default dashboard look-back.
const dashboardWindowDays = 30

// Credential query parameters. Dashboard routes prefix them with the
// provider name, e.g. aws_role_arn.

func awsCredentials(c echo.Context, prefix string) aws.Credentials {
	return aws.Credentials{
		RoleARN:      c.QueryParam(prefix + "role_arn"),
		AccessKey:    c.QueryParam(prefix + "access_key"),
		SecretKey:    c.QueryParam(prefix + "secret_key"),
		SessionToken: c.QueryParam(prefix + "session_token"),
	}
}

func azureCredentials(c echo.Context, prefix string) azure.Credentials {
	return azure.Credentials{
		TenantID:       c.QueryParam(prefix + "tenant_id"),
		ClientID:       c.QueryParam(prefix + "client_id"),
		ClientSecret:   c.QueryParam(prefix + "client_secret"),
		SubscriptionID: c.QueryParam(prefix + "subscription_id"),
	}
}

func gcpCredentials(c echo.Context, prefix string) gcp.Credentials {
	return gcp.Credentials{
		ProjectID:         c.QueryParam(prefix + "project_id"),
		ServiceAccountKey: c.QueryParam(prefix + "service_account_key"),
	}
}

// dashboardCredentials returns the prefixed credential sets in reporting order.
func dashboardCredentials(c echo.Context) []providers.Credentials {
	return []providers.Credentials{
		awsCredentials(c, "aws_"),
		azureCredentials(c, "azure_"),
		gcpCredentials(c, "gcp_"),
	}
}

// credentialsFromJSON decodes a test-connection credential object.
func credentialsFromJSON(provider string, raw json.RawMessage) (providers.Credentials, error) {
	var creds providers.Credentials
	var err error

	switch provider {
	case providers.AWS:
		var c aws.Credentials
		err = decodeCredentials(raw, &c)
		creds = c
	case providers.Azure:
		var c azure.Credentials
		err = decodeCredentials(raw, &c)
		creds = c
	case providers.GCP:
		var c gcp.Credentials
		err = decodeCredentials(raw, &c)
		creds = c
	default:
		return nil, badRequest("Unsupported provider: " + provider)
	}
	if err != nil {
		return nil, badRequest("Invalid credentials: " + err.Error())
	}
	return creds, nil
}

func decodeCredentials(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// requiredPeriod reads start_date and end_date, both mandatory.
func requiredPeriod(c echo.Context) (normalizer.Period, error) {
	start, end := c.QueryParam("start_date"), c.QueryParam("end_date")
	if start == "" || end == "" {
		return normalizer.Period{}, badRequest("start_date and end_date are required")
	}
	p, err := normalizer.ParsePeriod(start, end)
	if err != nil {
		return normalizer.Period{}, badRequest(err.Error())
	}
	return p, nil
}

// optionalPeriod defaults end_date to today and start_date to the given
// number of days before today, independently of each other.
func optionalPeriod(c echo.Context, now time.Time, days int) (normalizer.Period, error) {
	def := normalizer.LastDays(now, days)

	start, end := c.QueryParam("start_date"), c.QueryParam("end_date")
	if start == "" {
		start = normalizer.FormatDate(def.Start)
	}
	if end == "" {
		end = normalizer.FormatDate(def.End)
	}

	p, err := normalizer.ParsePeriod(start, end)
	if err != nil {
		return normalizer.Period{}, badRequest(err.Error())
	}
	return p, nil
}

// queryDefault returns the named query parameter or def when it is empty.
func queryDefault(c echo.Context, name, def string) string {
	if v := c.QueryParam(name); v != "" {
		return v
	}
	return def
}
