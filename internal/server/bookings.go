package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	bookingdomain "github.com/smallbiznis/guesthouse/internal/booking/domain"
	obsmiddleware "github.com/smallbiznis/guesthouse/internal/observability/logger"
	pricingdomain "github.com/smallbiznis/guesthouse/internal/pricing/domain"
)

// lineItemRequest carries amounts either in minor units or as decimals.
// Percent discounts accept basis points in discount_value or a percentage
// such as "12.5" in percent.
type lineItemRequest struct {
	Kind          string `json:"kind"`
	Name          string `json:"name"`
	AmountCents   *int64 `json:"amount_cents"`
	Amount        string `json:"amount"`
	DiscountType  string `json:"discount_type"`
	DiscountValue *int64 `json:"discount_value"`
	Percent       string `json:"percent"`
	TemplateID    string `json:"template_id"`
}

func (r lineItemRequest) toInput() (bookingdomain.LineItemInput, error) {
	input := bookingdomain.LineItemInput{
		Kind: bookingdomain.LineItemKind(strings.TrimSpace(r.Kind)),
		Name: strings.TrimSpace(r.Name),
	}

	templateID, ok := parseOptionalSnowflakeID(r.TemplateID)
	if !ok {
		return input, newValidationError("template_id", "invalid_id", "invalid template id")
	}
	input.TemplateID = templateID

	switch input.Kind {
	case bookingdomain.LineItemService:
		cents, err := amountCents(r.AmountCents, r.Amount)
		if err != nil {
			return input, newValidationError("amount", "invalid_amount", "invalid amount")
		}
		input.AmountCents = cents
	case bookingdomain.LineItemDiscount:
		input.DiscountType = pricingdomain.DiscountType(strings.TrimSpace(r.DiscountType))
		switch {
		case r.DiscountValue != nil:
			input.DiscountValue = *r.DiscountValue
		case input.DiscountType == pricingdomain.DiscountPercent && strings.TrimSpace(r.Percent) != "":
			bp, err := percentBasisPoints(r.Percent)
			if err != nil {
				return input, newValidationError("percent", "invalid_percent", "invalid percentage")
			}
			input.DiscountValue = bp
		case input.DiscountType == pricingdomain.DiscountFixed:
			cents, err := amountCents(r.AmountCents, r.Amount)
			if err != nil {
				return input, newValidationError("amount", "invalid_amount", "invalid amount")
			}
			input.DiscountValue = cents
		}
	}
	return input, nil
}

func toLineItemInputs(reqs []lineItemRequest) ([]bookingdomain.LineItemInput, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	inputs := make([]bookingdomain.LineItemInput, 0, len(reqs))
	for _, r := range reqs {
		input, err := r.toInput()
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, input)
	}
	return inputs, nil
}

// parseStay aborts the request when either date is malformed. Range checks
// are left to the booking service.
func parseStay(c *gin.Context, checkIn, checkOut string) (time.Time, time.Time, bool) {
	in, ok := parseDate(checkIn)
	if !ok {
		AbortWithError(c, newValidationError("checkin_date", "invalid_date", "expected YYYY-MM-DD"))
		return time.Time{}, time.Time{}, false
	}
	out, ok := parseDate(checkOut)
	if !ok {
		AbortWithError(c, newValidationError("checkout_date", "invalid_date", "expected YYYY-MM-DD"))
		return time.Time{}, time.Time{}, false
	}
	return in, out, true
}

// editor prefers the staff header over a value sent in the body.
func editor(c *gin.Context, fromBody string) string {
	if header := strings.TrimSpace(c.GetHeader(obsmiddleware.ActorHeader)); header != "" {
		return header
	}
	return strings.TrimSpace(fromBody)
}

type createBookingRequest struct {
	RoomID             string            `json:"room_id"`
	GuestID            string            `json:"guest_id"`
	CheckIn            string            `json:"checkin_date"`
	CheckOut           string            `json:"checkout_date"`
	GuestCount         int               `json:"guest_count"`
	Status             string            `json:"status"`
	IsMember           *bool             `json:"is_member"`
	LineItems          []lineItemRequest `json:"line_items"`
	Paid               bool              `json:"paid"`
	PaymentRecipientID *string           `json:"payment_recipient_id"`
	FoundationCase     bool              `json:"foundation_case"`
	Notes              string            `json:"notes"`
	CreditCents        *int64            `json:"credit_cents"`
	Credit             string            `json:"credit"`
}

func (s *Server) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	roomID, ok := parseSnowflakeID(req.RoomID)
	if !ok {
		AbortWithError(c, newValidationError("room_id", "invalid_id", "invalid room id"))
		return
	}
	guestID, ok := parseSnowflakeID(req.GuestID)
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
	credit, err := amountCents(req.CreditCents, req.Credit)
	if err != nil {
		AbortWithError(c, newValidationError("credit", "invalid_amount", "invalid credit amount"))
		return
	}

	result, err := s.bookingSvc.CreateBooking(c.Request.Context(), bookingdomain.CreateBookingRequest{
		RoomID:             roomID,
		GuestID:            guestID,
		CheckIn:            checkIn,
		CheckOut:           checkOut,
		GuestCount:         req.GuestCount,
		Status:             bookingdomain.Status(strings.TrimSpace(req.Status)),
		IsMember:           req.IsMember,
		LineItems:          items,
		Paid:               req.Paid,
		PaymentRecipientID: req.PaymentRecipientID,
		FoundationCase:     req.FoundationCase,
		Notes:              req.Notes,
		CreditCents:        credit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := gin.H{"data": result}
	if result.CreditError != nil {
		_, payload := mapError(result.CreditError)
		resp["credit_error"] = payload
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetBooking(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	details, err := s.bookingSvc.GetBooking(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": details})
}

type updateBookingRequest struct {
	ExpectedVersion    *int64  `json:"expected_version"`
	Editor             string  `json:"editor"`
	RoomID             *string `json:"room_id"`
	CheckIn            *string `json:"checkin_date"`
	CheckOut           *string `json:"checkout_date"`
	GuestCount         *int    `json:"guest_count"`
	Status             *string `json:"status"`
	IsMember           *bool   `json:"is_member"`
	Paid               *bool   `json:"paid"`
	PaymentRecipientID *string `json:"payment_recipient_id"`
	FoundationCase     *bool   `json:"foundation_case"`
	Notes              *string `json:"notes"`
}

func (s *Server) UpdateBooking(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req updateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := bookingdomain.UpdateBookingRequest{
		ExpectedVersion:    req.ExpectedVersion,
		Editor:             editor(c, req.Editor),
		GuestCount:         req.GuestCount,
		IsMember:           req.IsMember,
		Paid:               req.Paid,
		PaymentRecipientID: req.PaymentRecipientID,
		FoundationCase:     req.FoundationCase,
		Notes:              req.Notes,
	}
	if req.RoomID != nil {
		roomID, ok := parseSnowflakeID(*req.RoomID)
		if !ok {
			AbortWithError(c, newValidationError("room_id", "invalid_id", "invalid room id"))
			return
		}
		update.RoomID = &roomID
	}
	if update.CheckIn, ok = parseOptionalDate(req.CheckIn); !ok {
		AbortWithError(c, newValidationError("checkin_date", "invalid_date", "expected YYYY-MM-DD"))
		return
	}
	if update.CheckOut, ok = parseOptionalDate(req.CheckOut); !ok {
		AbortWithError(c, newValidationError("checkout_date", "invalid_date", "expected YYYY-MM-DD"))
		return
	}
	if req.Status != nil {
		status := bookingdomain.Status(strings.TrimSpace(*req.Status))
		update.Status = &status
	}

	booking, err := s.bookingSvc.UpdateBooking(c.Request.Context(), id, update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": booking})
}

func (s *Server) CancelBooking(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.locker.Check(c.Request.Context(), id, editor(c, "")); err != nil {
		AbortWithError(c, err)
		return
	}

	booking, err := s.bookingSvc.CancelBooking(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": booking})
}

func (s *Server) DeleteBooking(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.locker.Check(c.Request.Context(), id, editor(c, "")); err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.bookingSvc.DeleteBooking(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) AddLineItem(c *gin.Context) {
	bookingID, ok := pathID(c)
	if !ok {
		return
	}

	var req lineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	input, err := req.toInput()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.locker.Check(c.Request.Context(), bookingID, editor(c, "")); err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.bookingSvc.AddLineItem(c.Request.Context(), bookingID, input)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) RemoveLineItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.bookingSvc.RemoveLineItem(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
