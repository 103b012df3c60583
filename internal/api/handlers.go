package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wms-platform/shipping-api/internal/application"
	sharedapi "github.com/wms-platform/shipping-api/pkg/api"
	"github.com/wms-platform/shipping-api/pkg/errors"
	"github.com/wms-platform/shipping-api/pkg/logging"
	"github.com/wms-platform/shipping-api/pkg/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ShipmentRequest is the body of POST and PUT /api/Shipping.
// On create, ShippingDate and TrackingNumber are ignored and assigned by the server.
type ShipmentRequest struct {
	ID              string    `json:"id" binding:"max=64"`
	OrderID         string    `json:"orderId" binding:"required,max=128"`
	UserID          string    `json:"userId" binding:"required,max=128"`
	ShippingDate    time.Time `json:"shippingDate"`
	ShippingAddress string    `json:"shippingAddress" binding:"required,max=512"`
	TrackingNumber  string    `json:"trackingNumber" binding:"omitempty,tracking_number"`
}

func setShipmentSpanID(c *gin.Context, id string) {
	trace.SpanFromContext(c.Request.Context()).SetAttributes(attribute.String("shipment.id", id))
}

func listShipmentsHandler(service *application.ShippingApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		shipments, err := service.ListShipments(c.Request.Context())
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, shipments)
	}
}

func getShipmentHandler(service *application.ShippingApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		query := application.GetShipmentQuery{ShipmentID: c.Param("id")}
		setShipmentSpanID(c, query.ShipmentID)

		shipment, err := service.GetShipment(c.Request.Context(), query)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, shipment)
	}
}

func createShipmentHandler(service *application.ShippingApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req ShipmentRequest
		if appErr := sharedapi.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		shipment, err := service.CreateShipment(c.Request.Context(), application.CreateShipmentCommand{
			ShipmentID:      req.ID,
			OrderID:         req.OrderID,
			UserID:          req.UserID,
			ShippingAddress: req.ShippingAddress,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		setShipmentSpanID(c, shipment.ID)

		c.Header("Location", ShippingRoute+"/"+shipment.ID)
		c.JSON(http.StatusCreated, shipment)
	}
}

func updateShipmentHandler(service *application.ShippingApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)
		id := c.Param("id")
		setShipmentSpanID(c, id)

		var req ShipmentRequest
		if appErr := sharedapi.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		shipment, err := service.UpdateShipment(c.Request.Context(), application.UpdateShipmentCommand{
			ShipmentID:      id,
			BodyID:          req.ID,
			OrderID:         req.OrderID,
			UserID:          req.UserID,
			ShippingDate:    req.ShippingDate,
			ShippingAddress: req.ShippingAddress,
			TrackingNumber:  req.TrackingNumber,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, shipment)
	}
}

func deleteShipmentHandler(service *application.ShippingApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)
		id := c.Param("id")
		setShipmentSpanID(c, id)

		deleted, err := service.DeleteShipment(c.Request.Context(), application.DeleteShipmentCommand{ShipmentID: id})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		if !deleted {
			responder.RespondWithAppError(errors.ErrNotFoundWithID("shipment", id))
			return
		}

		c.Status(http.StatusOK)
	}
}
