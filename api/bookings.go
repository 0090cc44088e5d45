package api

import (
	"net/http"
	"strings"

	"github.com/Domenick1991/airbooking-core/internal/locator"
	"github.com/Domenick1991/airbooking-core/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	idempotencyHeader = "Idempotency-Key"
	maxIdempotencyKey = 100
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type createBookingRequest struct {
	FlightID       string `json:"flight_id" binding:"required,uuid"`
	FirstName      string `json:"first_name" binding:"required,max=100"`
	LastName       string `json:"last_name" binding:"required,max=100"`
	Email          string `json:"email" binding:"required,email,max=254"`
	Seats          int    `json:"seats" binding:"required,min=1,max=9"`
	IdempotencyKey string `json:"idempotency_key"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router gin.IRoutes) {
	router.POST("", h.create)
	router.GET("/:locator", h.get)
	router.POST("/:locator/confirm", h.confirm)
	router.POST("/:locator/cancel", h.cancel)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := strings.TrimSpace(c.GetHeader(idempotencyHeader))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}
	if key == "" || len(key) > maxIdempotencyKey {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idempotency key must be 1-100 characters"})
		return
	}

	res, err := h.service.CreateBooking(c.Request.Context(), booking.CreateBookingInput{
		FlightID:       uuid.MustParse(req.FlightID),
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Seats:          req.Seats,
		IdempotencyKey: key,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if res.Replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	c.JSON(http.StatusCreated, res)
}

func (h *BookingHandler) confirm(c *gin.Context) {
	code, ok := locatorParam(c)
	if !ok {
		return
	}
	confirmed, err := h.service.ConfirmBooking(c.Request.Context(), code)
	if err != nil {
		respondError(c, err)
		return
	}
	if !confirmed {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found or cancelled"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *BookingHandler) cancel(c *gin.Context) {
	code, ok := locatorParam(c)
	if !ok {
		return
	}
	view, err := h.service.CancelBooking(c.Request.Context(), code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *BookingHandler) get(c *gin.Context) {
	code, ok := locatorParam(c)
	if !ok {
		return
	}
	view, err := h.service.GetBooking(c.Request.Context(), code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// locatorParam upper-cases the path parameter and rejects malformed codes.
func locatorParam(c *gin.Context) (string, bool) {
	code := strings.ToUpper(c.Param("locator"))
	if !locator.Valid(code) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid locator"})
		return "", false
	}
	return code, true
}
