package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/BarkinBalci/viewer-analytics-service/internal/analytics"
	"github.com/BarkinBalci/viewer-analytics-service/internal/dto"
)

// query binds the shared analytics parameters, runs fn and writes its result.
// Malformed parameters are answered with 400 before fn runs.
func query[T any](h *Handler, c *gin.Context, name string, fn func(context.Context, *dto.AnalyticsQuery) (T, error)) {
	var req dto.AnalyticsQuery

	if err := c.ShouldBindQuery(&req); err != nil {
		h.log.Warn("Invalid analytics request", zap.String("query", name), zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	response, err := fn(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, analytics.ErrInvalidWindow) {
			h.log.Warn("Invalid analytics parameters", zap.String("query", name), zap.Error(err))
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "validation_error",
				Message: err.Error(),
			})
			return
		}

		h.log.Error("Failed to run analytics query", zap.String("query", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response)
}

// getKPIs handles GET /kpis
// @Summary Live KPIs
// @Description Active viewers (last 60s), events per second (last 10s) and average dwell (last 30m)
// @Tags analytics
// @Produce json
// @Param now query string false "Reference instant (RFC3339)"
// @Success 200 {object} dto.KPIsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /kpis [get]
func (h *Handler) getKPIs(c *gin.Context) {
	query(h, c, "kpis", h.analyticsService.KPIs)
}

// getConcurrency handles GET /concurrency
// @Summary Rolling concurrent viewers
// @Tags analytics
// @Produce json
// @Param window query string false "Lookback window" default(15m)
// @Param step query string false "Sampling step" default(1s)
// @Param horizon query string false "Concurrency horizon" default(60s)
// @Success 200 {object} dto.ConcurrencyResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /concurrency [get]
func (h *Handler) getConcurrency(c *gin.Context) {
	query(h, c, "concurrency", h.analyticsService.Concurrency)
}

// getEventsPerSecond handles GET /events-per-second
// @Summary Events per second series
// @Tags analytics
// @Produce json
// @Param window query string false "Lookback window" default(5m)
// @Success 200 {object} dto.EventsPerSecondResponse
// @Router /events-per-second [get]
func (h *Handler) getEventsPerSecond(c *gin.Context) {
	query(h, c, "events_per_second", h.analyticsService.EventsPerSecond)
}

// getCountries handles GET /countries
// @Summary Top countries by active viewers
// @Tags analytics
// @Produce json
// @Param window query string false "Lookback window" default(15m)
// @Param k query int false "Number of countries" default(10)
// @Success 200 {object} dto.CountriesResponse
// @Router /countries [get]
func (h *Handler) getCountries(c *gin.Context) {
	query(h, c, "countries", h.analyticsService.Countries)
}

// getSessions handles GET /sessions
// @Summary Reconstructed viewing sessions
// @Tags analytics
// @Produce json
// @Param window query string false "Lookback window" default(24h)
// @Success 200 {object} dto.SessionsResponse
// @Router /sessions [get]
func (h *Handler) getSessions(c *gin.Context) {
	query(h, c, "sessions", h.analyticsService.Sessions)
}

// getSurvival handles GET /survival
// @Summary Kaplan-Meier audience retention
// @Tags analytics
// @Produce json
// @Param window query string false "Lookback window" default(24h)
// @Success 200 {object} dto.SurvivalResponse
// @Router /survival [get]
func (h *Handler) getSurvival(c *gin.Context) {
	query(h, c, "survival", h.analyticsService.Survival)
}

// getStartsPerMinute handles GET /starts-per-minute
// @Summary View starts per minute with forecast
// @Tags analytics
// @Produce json
// @Param window query string false "Lookback window" default(24h)
// @Param periods query int false "Forecast minutes" default(60)
// @Success 200 {object} dto.StartsPerMinuteResponse
// @Router /starts-per-minute [get]
func (h *Handler) getStartsPerMinute(c *gin.Context) {
	query(h, c, "starts_per_minute", h.analyticsService.StartsPerMinute)
}

// getOverview handles GET /overview
// @Summary Dashboard overview
// @Tags analytics
// @Produce json
// @Success 200 {object} dto.OverviewResponse
// @Router /overview [get]
func (h *Handler) getOverview(c *gin.Context) {
	query(h, c, "overview", h.analyticsService.Overview)
}
