package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/airbooking-core/internal/service/flights"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type FlightHandler struct {
	service flights.FlightUseCase
}

type createFlightRequest struct {
	FlightNumber  string    `json:"flight_number" binding:"required,max=10"`
	FromAirport   string    `json:"from_airport" binding:"required,len=3"`
	ToAirport     string    `json:"to_airport" binding:"required,len=3"`
	DepartureTime time.Time `json:"departure_time" binding:"required"`
	ArrivalTime   time.Time `json:"arrival_time" binding:"required"`
	Capacity      int       `json:"capacity" binding:"required,min=1"`
	FareCents     int64     `json:"fare_cents" binding:"min=0"`
}

type inventoryResponse struct {
	FlightID  uuid.UUID `json:"flight_id"`
	Total     int       `json:"total"`
	Reserved  int       `json:"reserved"`
	Confirmed int       `json:"confirmed"`
	Available int       `json:"available"`
}

func NewFlightHandler(service flights.FlightUseCase) *FlightHandler {
	return &FlightHandler{service: service}
}

func (h *FlightHandler) Register(router gin.IRoutes) {
	router.POST("", h.create)
	router.GET("/:id", h.get)
	router.GET("/:id/inventory", h.inventory)
}

func (h *FlightHandler) create(c *gin.Context) {
	var req createFlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	flight, err := h.service.Create(c.Request.Context(), flights.CreateFlightInput{
		FlightNumber:  req.FlightNumber,
		FromAirport:   req.FromAirport,
		ToAirport:     req.ToAirport,
		DepartureTime: req.DepartureTime,
		ArrivalTime:   req.ArrivalTime,
		Capacity:      req.Capacity,
		FareCents:     req.FareCents,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, flight)
}

func (h *FlightHandler) get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	flight, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flight)
}

func (h *FlightHandler) inventory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	inv, err := h.service.GetInventory(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inventoryResponse{
		FlightID:  inv.FlightID,
		Total:     inv.Total,
		Reserved:  inv.Reserved,
		Confirmed: inv.Confirmed,
		Available: inv.Available(),
	})
}
