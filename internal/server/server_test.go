package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	availabilitydomain "github.com/smallbiznis/guesthouse/internal/availability/domain"
	bookingdomain "github.com/smallbiznis/guesthouse/internal/booking/domain"
	creditdomain "github.com/smallbiznis/guesthouse/internal/credit/domain"
	"github.com/smallbiznis/guesthouse/internal/editlock"
	"github.com/smallbiznis/guesthouse/internal/events"
	"github.com/smallbiznis/guesthouse/internal/observability"
	obsmiddleware "github.com/smallbiznis/guesthouse/internal/observability/logger"
	pricingdomain "github.com/smallbiznis/guesthouse/internal/pricing/domain"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
	undodomain "github.com/smallbiznis/guesthouse/internal/undo/domain"
	"github.com/smallbiznis/guesthouse/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeBookingService struct {
	bookingdomain.Service

	created   *bookingdomain.CreateBookingRequest
	updated   *bookingdomain.UpdateBookingRequest
	createErr error
	credit    error
	getErr    error
}

func (f *fakeBookingService) CheckAvailability(_ context.Context, req availabilitydomain.Request) (availabilitydomain.Result, error) {
	return availabilitydomain.Result{Available: req.ExcludeBookingID != 0}, nil
}

func (f *fakeBookingService) CreateBooking(_ context.Context, req bookingdomain.CreateBookingRequest) (bookingdomain.CreateBookingResult, error) {
	f.created = &req
	if f.createErr != nil {
		return bookingdomain.CreateBookingResult{}, f.createErr
	}
	return bookingdomain.CreateBookingResult{
		Booking:     bookingdomain.Booking{ID: 42, RoomID: req.RoomID, Status: bookingdomain.StatusReserved},
		CreditError: f.credit,
	}, nil
}

func (f *fakeBookingService) UpdateBooking(_ context.Context, id snowflake.ID, req bookingdomain.UpdateBookingRequest) (bookingdomain.Booking, error) {
	f.updated = &req
	return bookingdomain.Booking{ID: id, Version: 2}, nil
}

func (f *fakeBookingService) GetBooking(_ context.Context, id snowflake.ID) (bookingdomain.BookingDetails, error) {
	if f.getErr != nil {
		return bookingdomain.BookingDetails{}, f.getErr
	}
	return bookingdomain.BookingDetails{Booking: bookingdomain.Booking{ID: id}, PayableCents: 17000}, nil
}

func (f *fakeBookingService) DeleteBooking(context.Context, snowflake.ID) error {
	return nil
}

type fakeTxLog struct {
	txlogdomain.Logger

	listed *txlogdomain.ListRequest
	limit  int
}

func (f *fakeTxLog) ListRecent(_ context.Context, limit int) ([]txlogdomain.Entry, error) {
	f.limit = limit
	return []txlogdomain.Entry{{ID: 7, Label: "Create booking R1", CanUndo: true}}, nil
}

func (f *fakeTxLog) List(_ context.Context, req txlogdomain.ListRequest) (txlogdomain.ListResponse, error) {
	f.listed = &req
	return txlogdomain.ListResponse{}, nil
}

type fakeUndo struct {
	err error
}

func (f *fakeUndo) Undo(_ context.Context, id snowflake.ID) (undodomain.Result, error) {
	if f.err != nil {
		return undodomain.Result{}, f.err
	}
	return undodomain.Result{
		Entry:         txlogdomain.Entry{ID: id},
		Compensations: []txlogdomain.Entry{{ID: id + 1, UndoOf: &id, Label: "Undo: Create booking R1"}},
	}, nil
}

type fakeLedger struct {
	creditdomain.Ledger
}

func (fakeLedger) History(_ context.Context, req creditdomain.HistoryRequest) (creditdomain.HistoryResponse, error) {
	return creditdomain.HistoryResponse{BalanceCents: 5000}, nil
}

type harness struct {
	server  *Server
	booking *fakeBookingService
	txlog   *fakeTxLog
	undo    *fakeUndo
	hub     *events.Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		booking: &fakeBookingService{},
		txlog:   &fakeTxLog{},
		undo:    &fakeUndo{},
		hub:     events.NewHub(nil),
	}
	h.server = NewServer(ServerParams{
		Gin:        NewEngine(zaptest.NewLogger(t), observability.Config{LogLevel: "info"}, nil),
		BookingSvc: h.booking,
		Ledger:     fakeLedger{},
		TxLog:      h.txlog,
		Undo:       h.undo,
		Hub:        h.hub,
	})
	return h
}

func (h *harness) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.server.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealthAndFallback(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestCreateBookingParsesRequest(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/bookings", `{
		"room_id": "11",
		"guest_id": "12",
		"checkin_date": "2025-07-01",
		"checkout_date": "2025-07-04",
		"guest_count": 2,
		"line_items": [
			{"kind": "service", "name": "Breakfast", "amount": "15.00"},
			{"kind": "discount", "name": "Loyalty", "discount_type": "percent", "percent": "12.5"}
		],
		"credit": "50.00"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got := h.booking.created
	require.NotNil(t, got)
	assert.Equal(t, snowflake.ID(11), got.RoomID)
	assert.Equal(t, snowflake.ID(12), got.GuestID)
	assert.True(t, got.CheckIn.Equal(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(5000), got.CreditCents)
	require.Len(t, got.LineItems, 2)
	assert.Equal(t, int64(1500), got.LineItems[0].AmountCents)
	assert.Equal(t, pricingdomain.DiscountPercent, got.LineItems[1].DiscountType)
	assert.Equal(t, int64(1250), got.LineItems[1].DiscountValue)
	assert.NotContains(t, rec.Body.String(), "credit_error")
}

func TestCreateBookingReportsCreditFailure(t *testing.T) {
	h := newHarness(t)
	h.booking.credit = creditdomain.ErrInsufficientCredit

	rec := h.do(http.MethodPost, "/api/bookings", `{"room_id":"11","guest_id":"12","checkin_date":"2025-07-01","checkout_date":"2025-07-04","guest_count":1,"credit_cents":900}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		CreditError errorPayload `json:"credit_error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "insufficient_credit", body.CreditError.Type)
}

func TestCreateBookingRejectsMalformedInput(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"not json", `{`, "request"},
		{"bad room", `{"room_id":"x","guest_id":"12","checkin_date":"2025-07-01","checkout_date":"2025-07-04"}`, "room_id"},
		{"bad date", `{"room_id":"11","guest_id":"12","checkin_date":"07/01/2025","checkout_date":"2025-07-04"}`, "checkin_date"},
		{"bad amount", `{"room_id":"11","guest_id":"12","checkin_date":"2025-07-01","checkout_date":"2025-07-04","line_items":[{"kind":"service","name":"Tour","amount":"abc"}]}`, "amount"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			rec := h.do(http.MethodPost, "/api/bookings", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			payload := decodeError(t, rec)
			require.NotEmpty(t, payload.Errors)
			assert.Equal(t, tc.field, payload.Errors[0].Field)
			assert.Nil(t, h.booking.created)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{bookingdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{bookingdomain.Invalid("guest_count", bookingdomain.CodeCapacityExceeded, "room holds 4"), http.StatusBadRequest, "validation_error"},
		{availabilitydomain.ErrAvailabilityConflict, http.StatusConflict, "availability_conflict"},
		{bookingdomain.ErrVersionConflict, http.StatusConflict, "version_conflict"},
		{undodomain.Conflictf("booking changed"), http.StatusConflict, "undo_conflict"},
		{txlogdomain.ErrAlreadyUndone, http.StatusConflict, "already_undone"},
		{txlogdomain.ErrUndoNotSupported, http.StatusUnprocessableEntity, "undo_not_supported"},
		{creditdomain.ErrInsufficientCredit, http.StatusPaymentRequired, "insufficient_credit"},
		{editlock.ErrLocked, http.StatusLocked, "locked"},
		{&db.PersistenceError{Op: "booking.get", Err: errors.New("dial tcp"), Unavailable: true}, http.StatusServiceUnavailable, "service_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			h := newHarness(t)
			h.booking.getErr = tc.err
			rec := h.do(http.MethodGet, "/api/bookings/42", "")
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.kind, decodeError(t, rec).Type)
		})
	}
}

func TestUpdateBookingTakesEditorFromHeader(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPatch, "/api/bookings/42",
		`{"expected_version":1,"editor":"body","checkout_date":"2025-07-05","status":"confirmed"}`,
		obsmiddleware.ActorHeader, "frontdesk")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := h.booking.updated
	require.NotNil(t, got)
	assert.Equal(t, "frontdesk", got.Editor)
	require.NotNil(t, got.ExpectedVersion)
	assert.Equal(t, int64(1), *got.ExpectedVersion)
	assert.Nil(t, got.CheckIn)
	require.NotNil(t, got.CheckOut)
	require.NotNil(t, got.Status)
	assert.Equal(t, bookingdomain.StatusConfirmed, *got.Status)
}

func TestDeleteBookingAndLockWithoutRedis(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodDelete, "/api/bookings/42", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(http.MethodPost, "/api/bookings/42/lock", "", obsmiddleware.ActorHeader, "frontdesk")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"enabled":false}}`, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/bookings/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransactionsEndpoints(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/transactions/recent?limit=25", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 25, h.txlog.limit)

	rec = h.do(http.MethodGet, "/api/transactions?entity_type=booking&entity_id=42&only_undoable=true&page_size=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, h.txlog.listed)
	assert.Equal(t, txlogdomain.EntityBooking, h.txlog.listed.EntityType)
	assert.Equal(t, snowflake.ID(42), h.txlog.listed.EntityID)
	assert.True(t, h.txlog.listed.OnlyUndo)
	assert.Equal(t, 5, h.txlog.listed.PageSize)

	rec = h.do(http.MethodGet, "/api/transactions?entity_type=room", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/transactions/7/undo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Undo: Create booking R1")

	h.undo.err = txlogdomain.ErrAlreadyUndone
	rec = h.do(http.MethodPost, "/api/transactions/7/undo", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGuestCredit(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/guests/12/credit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance_cents":5000`)

	rec = h.do(http.MethodGet, "/api/guests/12/credit?page_size=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamChangesReplaysBacklog(t *testing.T) {
	h := newHarness(t)

	keep, _, err := h.hub.Subscribe(events.TopicAll)
	require.NoError(t, err)
	defer keep.Close()
	h.hub.Publish(context.Background(), events.BookingChanged(42, txlogdomain.OperationUpdate))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.server.Engine().ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "retry: 2000"))
	assert.Contains(t, body, "event: booking\n")
	assert.Contains(t, body, `"entity_id":"42"`)
}

func TestStreamChangesRejectsUnknownTopic(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/api/events?topic=room", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.server.hub = nil
	rec = h.do(http.MethodGet, "/api/events", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
