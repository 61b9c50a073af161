package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/BarkinBalci/viewer-analytics-service/internal/dto"
	"github.com/BarkinBalci/viewer-analytics-service/internal/service"
)

const healthCheckTimeout = 2 * time.Second

type Handler struct {
	eventService     service.EventServicer
	analyticsService service.AnalyticsServicer
	router           *gin.Engine
	log              *zap.Logger

	corsOrigins    []string
	metricsHandler http.Handler
	readiness      func(context.Context) error
}

// Option configures a Handler
type Option func(*Handler)

// WithCORSOrigins enables CORS for the given origins
func WithCORSOrigins(origins []string) Option {
	return func(h *Handler) {
		h.corsOrigins = origins
	}
}

// WithMetricsHandler serves h on GET /metrics
func WithMetricsHandler(metrics http.Handler) Option {
	return func(h *Handler) {
		h.metricsHandler = metrics
	}
}

// WithReadiness makes /health report 503 while check fails
func WithReadiness(check func(context.Context) error) Option {
	return func(h *Handler) {
		h.readiness = check
	}
}

// NewHandler builds the router. eventService may be nil, in which case the publish routes are not registered.
func NewHandler(eventService service.EventServicer, analyticsService service.AnalyticsServicer, log *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		eventService:     eventService,
		analyticsService: analyticsService,
		router:           gin.Default(),
		log:              log,
	}
	for _, o := range opts {
		o(h)
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// ParseOrigins splits a comma separated origin list, dropping blanks and trailing slashes
func ParseOrigins(s string) []string {
	origins := make([]string, 0)
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (h *Handler) registerRoutes() {
	if len(h.corsOrigins) > 0 {
		h.router.Use(cors.New(cors.Config{
			AllowOrigins: h.corsOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Length", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	h.router.GET("/health", h.healthCheck)

	h.router.GET("/kpis", h.getKPIs)
	h.router.GET("/concurrency", h.getConcurrency)
	h.router.GET("/events-per-second", h.getEventsPerSecond)
	h.router.GET("/countries", h.getCountries)
	h.router.GET("/sessions", h.getSessions)
	h.router.GET("/survival", h.getSurvival)
	h.router.GET("/starts-per-minute", h.getStartsPerMinute)
	h.router.GET("/overview", h.getOverview)

	if h.eventService != nil {
		h.router.POST("/events", h.publishEvent)
		h.router.POST("/events/bulk", h.publishEventsBulk)
	}

	if h.metricsHandler != nil {
		h.router.GET("/metrics", gin.WrapH(h.metricsHandler))
	}
}

// healthCheck handles health check requests
// @Summary Health check
// @Description Check if the service and its event log are reachable
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	if h.readiness != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		if err := h.readiness(ctx); err != nil {
			h.log.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// publishEvent handles POST /events
// @Summary Publish a single viewer event
// @Tags events
// @Accept json
// @Produce json
// @Param event body dto.PublishEventRequest true "Event data"
// @Success 202 {object} dto.PublishEventResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /events [post]
func (h *Handler) publishEvent(c *gin.Context) {
	var req dto.PublishEventRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid event request",
			zap.Error(err),
			zap.String("viewer_id", req.ViewerID))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	if err := h.eventService.ProcessEvent(c.Request.Context(), &req); err != nil {
		h.log.Error("Failed to process event",
			zap.Error(err),
			zap.String("viewer_id", req.ViewerID),
			zap.String("event_type", req.EventType))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	h.log.Debug("Event accepted",
		zap.String("viewer_id", req.ViewerID),
		zap.String("event_type", req.EventType))

	c.JSON(http.StatusAccepted, dto.PublishEventResponse{
		Status: "accepted",
	})
}

// publishEventsBulk handles POST /events/bulk
// @Summary Publish multiple viewer events
// @Tags events
// @Accept json
// @Produce json
// @Param events body dto.PublishEventsBulkRequest true "Bulk events data"
// @Success 202 {object} dto.PublishBulkEventsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /events/bulk [post]
func (h *Handler) publishEventsBulk(c *gin.Context) {
	var bulkRequest dto.PublishEventsBulkRequest

	if err := c.ShouldBindJSON(&bulkRequest); err != nil {
		h.log.Warn("Invalid bulk event request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	accepted, errors := h.eventService.ProcessBulkEvents(c.Request.Context(), bulkRequest.Events)
	rejected := len(errors)

	h.log.Info("Bulk events processed",
		zap.Int("accepted", accepted),
		zap.Int("rejected", rejected),
		zap.Int("total", len(bulkRequest.Events)))

	c.JSON(http.StatusAccepted, dto.PublishBulkEventsResponse{
		Accepted: accepted,
		Rejected: rejected,
		Errors:   errors,
	})
}
