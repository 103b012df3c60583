// Package api exposes the shipment CRUD service over HTTP.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/wms-platform/shipping-api/internal/application"
	"github.com/wms-platform/shipping-api/internal/domain"
	sharedapi "github.com/wms-platform/shipping-api/pkg/api"
	"github.com/wms-platform/shipping-api/pkg/logging"
	"github.com/wms-platform/shipping-api/pkg/metrics"
	"github.com/wms-platform/shipping-api/pkg/middleware"
)

// ShippingRoute is the base path of the shipment resource
const ShippingRoute = "/api/Shipping"

// RouterConfig holds what the router needs to serve requests
type RouterConfig struct {
	ServiceName string
	Service     *application.ShippingApplicationService
	Logger      *logging.Logger
	Metrics     *metrics.Metrics
	// Tracing adds a server span per request
	Tracing bool
}

// NewRouter builds the gin engine with middleware, ambient endpoints and shipment routes
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	sharedapi.InitValidator()
	if err := sharedapi.RegisterValidation("tracking_number", func(fl validator.FieldLevel) bool {
		return domain.IsValidTrackingNumber(fl.Field().String())
	}); err != nil {
		return nil, err
	}

	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(cfg.ServiceName, cfg.Logger.Logger))

	if cfg.Metrics != nil {
		router.Use(middleware.MetricsMiddleware(cfg.Metrics))
		router.GET("/metrics", middleware.MetricsEndpoint(cfg.Metrics))
	}
	if cfg.Tracing {
		router.Use(middleware.TracingMiddleware(cfg.ServiceName))
	}

	router.GET("/health", middleware.HealthCheck(cfg.ServiceName))
	router.GET("/ready", middleware.ReadinessCheck(cfg.ServiceName, func(c *gin.Context) error {
		return cfg.Service.Ping(c.Request.Context())
	}))

	shipping := router.Group(ShippingRoute)
	{
		shipping.GET("", listShipmentsHandler(cfg.Service, cfg.Logger))
		shipping.GET("/:id", getShipmentHandler(cfg.Service, cfg.Logger))
		shipping.POST("", createShipmentHandler(cfg.Service, cfg.Logger))
		shipping.PUT("/:id", updateShipmentHandler(cfg.Service, cfg.Logger))
		shipping.DELETE("/:id", deleteShipmentHandler(cfg.Service, cfg.Logger))
	}

	return router, nil
}
