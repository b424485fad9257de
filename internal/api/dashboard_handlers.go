package api

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lvonguyen/cloudspy/internal/anomaly"
	"github.com/lvonguyen/cloudspy/internal/providers"
	"github.com/lvonguyen/cloudspy/internal/reporter"
)

// dashboardProviders builds a client for every credential set that carries
// its minimal identifying fields. A nil names slice selects all providers.
// Construction failures are reported through the aggregation.
func (s *Server) dashboardProviders(c echo.Context, names []string) []providers.CostProvider {
	ctx := c.Request().Context()

	var out []providers.CostProvider
	for _, creds := range dashboardCredentials(c) {
		if !creds.Present() {
			continue
		}
		if names != nil && !lo.Contains(names, creds.Provider()) {
			continue
		}

		p, err := s.factory.CostProvider(ctx, creds)
		if err != nil {
			s.logger.Warn("Failed to create provider client",
				zap.String("provider", creds.Provider()),
				zap.Error(err),
			)
			p = unavailable{name: creds.Provider(), err: err}
		}
		out = append(out, p)
	}
	return out
}

func (s *Server) dashboardSummary(c echo.Context) error {
	period, err := optionalPeriod(c, s.now(), dashboardWindowDays)
	if err != nil {
		return err
	}

	summary := s.agg.Summarize(c.Request().Context(), period, s.dashboardProviders(c, nil))
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) costComparison(c echo.Context) error {
	period, err := requiredPeriod(c)
	if err != nil {
		return err
	}

	names := providers.ParseList(c.QueryParam("providers"))
	if len(names) == 0 {
		return badRequest("providers is required")
	}

	cmp := s.agg.Compare(c.Request().Context(), period, s.dashboardProviders(c, names))
	return c.JSON(http.StatusOK, cmp)
}

func (s *Server) dashboardHealth(c echo.Context) error {
	services := make(map[string]string, len(providers.All))
	for _, p := range providers.All {
		services[p] = "available"
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.now().UTC(),
		"services":  services,
	})
}

type anomaliesResponse struct {
	Period    string            `json:"period"`
	Anomalies []anomaly.Anomaly `json:"anomalies"`
}

func (s *Server) dashboardAnomalies(c echo.Context) error {
	period, err := optionalPeriod(c, s.now(), dashboardWindowDays)
	if err != nil {
		return err
	}

	found := s.agg.Anomalies(c.Request().Context(), period, s.dashboardProviders(c, nil), s.detector)
	return c.JSON(http.StatusOK, anomaliesResponse{Period: period.String(), Anomalies: found})
}

// dashboardReport renders the summary, and optionally the anomalies, in the
// requested format.
func (s *Server) dashboardReport(c echo.Context) error {
	format := strings.ToLower(queryDefault(c, "format", reporter.FormatJSON))
	if !lo.Contains(reporter.Formats, format) {
		return badRequest("Unsupported report format. Use one of: " + strings.Join(reporter.Formats, ", "))
	}

	var withAnomalies bool
	if err := echo.QueryParamsBinder(c).Bool("include_anomalies", &withAnomalies).BindError(); err != nil {
		return badRequest("include_anomalies must be a boolean")
	}

	period, err := optionalPeriod(c, s.now(), dashboardWindowDays)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	provs := s.dashboardProviders(c, nil)

	data := reporter.ReportData{
		Summary:     s.agg.Summarize(ctx, period, provs),
		GeneratedAt: s.now().UTC(),
	}
	if withAnomalies {
		data.Anomalies = s.agg.Anomalies(ctx, period, provs, s.detector)
	}

	var buf bytes.Buffer
	if err := reporter.Render(&buf, format, data); err != nil {
		return err
	}
	return c.Blob(http.StatusOK, reporter.ContentType(format), buf.Bytes())
}
