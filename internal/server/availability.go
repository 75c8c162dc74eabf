package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	availabilitydomain "github.com/smallbiznis/guesthouse/internal/availability/domain"
	bookingdomain "github.com/smallbiznis/guesthouse/internal/booking/domain"
)

type availabilityRequest struct {
	RoomID           string `json:"room_id"`
	CheckIn          string `json:"checkin_date"`
	CheckOut         string `json:"checkout_date"`
	ExcludeBookingID string `json:"exclude_booking_id"`
}

func (s *Server) CheckAvailability(c *gin.Context) {
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	roomID, ok := parseSnowflakeID(req.RoomID)
	if !ok {
		AbortWithError(c, newValidationError("room_id", "invalid_id", "invalid room id"))
		return
	}
	checkIn, checkOut, ok := parseStay(c, req.CheckIn, req.CheckOut)
	if !ok {
		return
	}
	exclude, ok := parseOptionalSnowflakeID(req.ExcludeBookingID)
	if !ok {
		AbortWithError(c, newValidationError("exclude_booking_id", "invalid_id", "invalid booking id"))
		return
	}

	query := availabilitydomain.Request{RoomID: roomID, CheckIn: checkIn, CheckOut: checkOut}
	if exclude != nil {
		query.ExcludeBookingID = *exclude
	}

	result, err := s.bookingSvc.CheckAvailability(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

type quoteRequest struct {
	RoomID    string            `json:"room_id"`
	GuestID   string            `json:"guest_id"`
	IsMember  *bool             `json:"is_member"`
	CheckIn   string            `json:"checkin_date"`
	CheckOut  string            `json:"checkout_date"`
	LineItems []lineItemRequest `json:"line_items"`
}

func (s *Server) QuotePrice(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	roomID, ok := parseSnowflakeID(req.RoomID)
	if !ok {
		AbortWithError(c, newValidationError("room_id", "invalid_id", "invalid room id"))
		return
	}
	guestID, ok := parseOptionalSnowflakeID(req.GuestID)
	if !ok {
		AbortWithError(c, newValidationError("guest_id", "invalid_id", "invalid guest id"))
		return
	}
	checkIn, checkOut, ok := parseStay(c, req.CheckIn, req.CheckOut)
	if !ok {
		return
	}
	items, err := toLineItemInputs(req.LineItems)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	query := bookingdomain.QuoteRequest{
		RoomID:    roomID,
		IsMember:  req.IsMember,
		CheckIn:   checkIn,
		CheckOut:  checkOut,
		LineItems: items,
	}
	if guestID != nil {
		query.GuestID = *guestID
	}

	breakdown, err := s.bookingSvc.CalculatePrice(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": breakdown})
}
