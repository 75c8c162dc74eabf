package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	bookingdomain "github.com/smallbiznis/guesthouse/internal/booking/domain"
	creditdomain "github.com/smallbiznis/guesthouse/internal/credit/domain"
)

type applyCreditRequest struct {
	GuestID     string `json:"guest_id"`
	BookingID   string `json:"booking_id"`
	AmountCents *int64 `json:"amount_cents"`
	Amount      string `json:"amount"`
}

func (s *Server) ApplyCredit(c *gin.Context) {
	var req applyCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	guestID, ok := parseSnowflakeID(req.GuestID)
	if !ok {
		AbortWithError(c, newValidationError("guest_id", "invalid_id", "invalid guest id"))
		return
	}
	bookingID, ok := parseSnowflakeID(req.BookingID)
	if !ok {
		AbortWithError(c, newValidationError("booking_id", "invalid_id", "invalid booking id"))
		return
	}
	amount, err := amountCents(req.AmountCents, req.Amount)
	if err != nil {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "invalid amount"))
		return
	}

	result, err := s.bookingSvc.ApplyCredit(c.Request.Context(), bookingdomain.ApplyCreditRequest{
		GuestID:     guestID,
		BookingID:   bookingID,
		AmountCents: amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

type topUpCreditRequest struct {
	GuestID     string `json:"guest_id"`
	AmountCents *int64 `json:"amount_cents"`
	Amount      string `json:"amount"`
	Note        string `json:"note"`
}

func (s *Server) TopUpCredit(c *gin.Context) {
	var req topUpCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	guestID, ok := parseSnowflakeID(req.GuestID)
	if !ok {
		AbortWithError(c, newValidationError("guest_id", "invalid_id", "invalid guest id"))
		return
	}
	amount, err := amountCents(req.AmountCents, req.Amount)
	if err != nil {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "invalid amount"))
		return
	}

	result, err := s.bookingSvc.TopUpCredit(c.Request.Context(), bookingdomain.TopUpCreditRequest{
		GuestID:     guestID,
		AmountCents: amount,
		Note:        req.Note,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) GetGuestCredit(c *gin.Context) {
	guestID, ok := pathID(c)
	if !ok {
		return
	}
	pageSize, ok := queryInt(c, "page_size")
	if !ok {
		return
	}

	resp, err := s.ledger.History(c.Request.Context(), creditdomain.HistoryRequest{
		GuestID:   guestID,
		PageToken: c.Query("page_token"),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
