package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lvonguyen/cloudspy/internal/normalizer"
	"github.com/lvonguyen/cloudspy/internal/providers"
)

// forecastWindowDays is the default forecast horizon.
const forecastWindowDays = 30

func (s *Server) awsCosts(c echo.Context) error {
	return s.costs(c, awsCredentials(c, ""), "MONTHLY")
}

func (s *Server) awsServices(c echo.Context) error {
	p, err := s.factory.AWS(c.Request().Context(), awsCredentials(c, ""))
	if err != nil {
		return clientError(providers.AWS, err)
	}

	ctx, cancel := s.callContext(c)
	defer cancel()

	services, err := p.GetServices(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string][]string{"services": services})
}

// awsForecast defaults to the next 30 days. Cost Explorer rejects forecast
// windows that start in the past.
func (s *Server) awsForecast(c echo.Context) error {
	today := s.now().UTC().Truncate(24 * time.Hour)
	start := queryDefault(c, "start_date", normalizer.FormatDate(today))
	end := queryDefault(c, "end_date", normalizer.FormatDate(today.AddDate(0, 0, forecastWindowDays)))

	period, err := normalizer.ParsePeriod(start, end)
	if err != nil {
		return badRequest(err.Error())
	}

	p, err := s.factory.AWS(c.Request().Context(), awsCredentials(c, ""))
	if err != nil {
		return clientError(providers.AWS, err)
	}

	ctx, cancel := s.callContext(c)
	defer cancel()

	forecast, err := p.GetForecast(ctx, period.Start, period.End)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"period":   period.String(),
		"forecast": forecast,
	})
}

func (s *Server) azureCosts(c echo.Context) error {
	creds := azureCredentials(c, "")
	if creds.SubscriptionID == "" {
		return badRequest("Subscription ID is required")
	}
	return s.costs(c, creds, "Monthly")
}

func (s *Server) azureSubscriptions(c echo.Context) error {
	p, err := s.factory.Azure(c.Request().Context(), azureCredentials(c, ""))
	if err != nil {
		return clientError(providers.Azure, err)
	}

	ctx, cancel := s.callContext(c)
	defer cancel()

	subs, err := p.GetSubscriptions(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"subscriptions": subs})
}

func (s *Server) gcpCosts(c echo.Context) error {
	creds := gcpCredentials(c, "")
	if creds.ProjectID == "" {
		return badRequest("Project ID is required")
	}
	return s.costs(c, creds, "MONTHLY")
}

func (s *Server) gcpClient(c echo.Context) (GCPClient, error) {
	p, err := s.factory.GCP(c.Request().Context(), gcpCredentials(c, ""))
	if err != nil {
		return nil, clientError(providers.GCP, err)
	}
	return p, nil
}

func (s *Server) gcpProjects(c echo.Context) error {
	p, err := s.gcpClient(c)
	if err != nil {
		return err
	}

	ctx, cancel := s.callContext(c)
	defer cancel()

	projects, err := p.GetProjects(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) gcpBillingAccounts(c echo.Context) error {
	p, err := s.gcpClient(c)
	if err != nil {
		return err
	}

	ctx, cancel := s.callContext(c)
	defer cancel()

	accounts, err := p.GetBillingAccounts(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"billing_accounts": accounts})
}

func (s *Server) gcpBudgets(c echo.Context) error {
	account := c.QueryParam("billing_account")
	if account == "" {
		return badRequest("billing_account is required")
	}

	p, err := s.gcpClient(c)
	if err != nil {
		return err
	}

	ctx, cancel := s.callContext(c)
	defer cancel()

	budgets, err := p.GetBudgets(ctx, account)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"budgets": budgets})
}
