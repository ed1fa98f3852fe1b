package booking_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonasLeetTheWay/ticketmarket/internal/auth"
	"github.com/JonasLeetTheWay/ticketmarket/internal/auth/authtest"
	"github.com/JonasLeetTheWay/ticketmarket/internal/database/dbtest"
	"github.com/JonasLeetTheWay/ticketmarket/internal/models"
	"github.com/JonasLeetTheWay/ticketmarket/internal/services/booking"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	svc      *booking.Service
	ticket   models.Ticket
	vendor   *models.User
	customer *models.User
	admin    *models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)

	f := &fixture{
		db:       db,
		svc:      booking.NewService(db),
		vendor:   &models.User{Email: "vendor@example.com", Name: "Coach Co", Role: models.RoleVendor},
		customer: &models.User{Email: "buyer@example.com", Name: "Buyer", Role: models.RoleCustomer},
		admin:    &models.User{Email: "admin@example.com", Role: models.RoleAdmin},
	}
	require.NoError(t, db.Create([]*models.User{f.vendor, f.customer, f.admin}).Error)

	f.ticket = models.Ticket{
		VendorEmail:        f.vendor.Email,
		VendorName:         f.vendor.Name,
		Title:              "Dhaka to Sylhet Express",
		TransportType:      "bus",
		From:               "Dhaka",
		To:                 "Sylhet",
		DepartureDate:      "2026-12-01",
		DepartureTime:      "08:30",
		Price:              decimal.NewFromInt(20),
		Quantity:           10,
		VerificationStatus: models.VerificationApproved,
	}
	require.NoError(t, db.Create(&f.ticket).Error)
	return f
}

func (f *fixture) quantity(t *testing.T) int {
	t.Helper()
	var ticket models.Ticket
	require.NoError(t, f.db.First(&ticket, f.ticket.ID).Error)
	return ticket.Quantity
}

func TestCreate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, f.customer, booking.CreateRequest{TicketID: f.ticket.ID, Quantity: 2, Seat: "12c"})
	require.NoError(t, err)

	assert.Equal(t, models.BookingPending, b.Status)
	assert.Equal(t, "12C", b.Seat)
	assert.True(t, decimal.NewFromInt(40).Equal(b.TotalPrice))
	assert.Equal(t, f.vendor.Email, b.VendorEmail)
	assert.Equal(t, "Dhaka", b.From)
	assert.True(t, strings.HasPrefix(b.Reference, "TB"))

	// Inventory only moves on confirmation.
	assert.Equal(t, 10, f.quantity(t))
}

func TestCreateRejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.customer, booking.CreateRequest{TicketID: f.ticket.ID, Quantity: 11})
	assert.ErrorIs(t, err, booking.ErrNotEnoughTickets)

	_, err = f.svc.Create(ctx, f.customer, booking.CreateRequest{TicketID: f.ticket.ID, Quantity: 0})
	assert.ErrorIs(t, err, booking.ErrInvalidQuantity)

	for _, seat := range []string{"0A", "51A", "7G", "A7", "12"} {
		_, err = f.svc.Create(ctx, f.customer, booking.CreateRequest{TicketID: f.ticket.ID, Quantity: 1, Seat: seat})
		assert.ErrorIs(t, err, booking.ErrInvalidSeat, seat)
	}

	_, err = f.svc.Create(ctx, f.customer, booking.CreateRequest{TicketID: 999, Quantity: 1})
	assert.ErrorIs(t, err, booking.ErrTicketNotFound)

	require.NoError(t, f.db.Model(&models.Ticket{}).Where("id = ?", f.ticket.ID).Update("hidden", true).Error)
	_, err = f.svc.Create(ctx, f.customer, booking.CreateRequest{TicketID: f.ticket.ID, Quantity: 1})
	assert.ErrorIs(t, err, booking.ErrTicketNotFound)
}

func TestConcurrentRequestsForOneSeat(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		taken   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			customer := &models.User{Email: fmt.Sprintf("racer%d@example.com", i), Role: models.RoleCustomer}
			_, err := f.svc.Create(ctx, customer, booking.CreateRequest{TicketID: f.ticket.ID, Quantity: 1, Seat: "7C"})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case assert.ErrorIs(t, err, booking.ErrSeatTaken):
				taken++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, workers-1, taken)

	var active int64
	require.NoError(t, f.db.Model(&models.Booking{}).
		Where("ticket_id = ? AND seat = ? AND status IN ?", f.ticket.ID, "7C", models.ActiveStatuses).
		Count(&active).Error)
	assert.EqualValues(t, 1, active)
}

func TestCancelledSeatCanBeRebooked(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.customer, booking.CreateRequest{TicketID: f.ticket.ID, Quantity: 1, Seat: "3A"})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.admin, booking.CreateRequest{TicketID: f.ticket.ID, Quantity: 1, Seat: "3A"})
	assert.ErrorIs(t, err, booking.ErrSeatTaken)

	_, err = f.svc.Cancel(ctx, f.customer.Email, first.ID)
	require.NoError(t, err)

	again, err := f.svc.Create(ctx, f.admin, booking.CreateRequest{TicketID: f.ticket.ID, Quantity: 1, Seat: "3A"})
	require.NoError(t, err)
	assert.Equal(t, "3A", again.Seat)
}

func TestTransitionsReconcileInventory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, f.customer, booking.CreateRequest{TicketID: f.ticket.ID, Quantity: 3})
	require.NoError(t, err)

	confirmed, err := f.svc.UpdateStatus(ctx, f.vendor, b.ID, "accepted")
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, confirmed.Status)
	assert.Equal(t, 7, f.quantity(t))

	_, err = f.svc.Transition(ctx, b.ID, models.BookingPending)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	cancelled, err := f.svc.Cancel(ctx, f.customer.Email, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)
	assert.Equal(t, 10, f.quantity(t))

	// Cancelling again changes nothing.
	_, err = f.svc.Cancel(ctx, f.customer.Email, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, f.quantity(t))

	_, err = f.svc.Transition(ctx, b.ID, models.BookingConfirmed)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
}

func TestCancelPendingLeavesInventory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, f.customer, booking.CreateRequest{TicketID: f.ticket.ID, Quantity: 4})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, f.customer, b.ID, "rejected")
	require.NoError(t, err)
	assert.Equal(t, 10, f.quantity(t))
}

func TestConfirmFailsWhenInventoryGone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, f.customer, booking.CreateRequest{TicketID: f.ticket.ID, Quantity: 5})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Ticket{}).Where("id = ?", f.ticket.ID).Update("quantity", 2).Error)

	_, err = f.svc.UpdateStatus(ctx, f.admin, b.ID, "confirmed")
	assert.ErrorIs(t, err, booking.ErrNotEnoughTickets)

	got, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, got.Status)
	assert.Equal(t, 2, f.quantity(t))
}

func TestUpdateStatusAuthorization(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	other := &models.User{Email: "rival@example.com", Role: models.RoleVendor}
	stranger := &models.User{Email: "nobody@example.com", Role: models.RoleCustomer}

	b, err := f.svc.Create(ctx, f.customer, booking.CreateRequest{TicketID: f.ticket.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, f.customer, b.ID, "paid")
	assert.ErrorIs(t, err, booking.ErrNotAllowed)

	_, err = f.svc.UpdateStatus(ctx, other, b.ID, "confirmed")
	assert.ErrorIs(t, err, booking.ErrNotAllowed)

	_, err = f.svc.UpdateStatus(ctx, stranger, b.ID, "cancelled")
	assert.ErrorIs(t, err, booking.ErrNotAllowed)

	_, err = f.svc.UpdateStatus(ctx, f.admin, b.ID, "shipped")
	assert.ErrorIs(t, err, booking.ErrUnknownStatus)

	_, err = f.svc.Cancel(ctx, stranger.Email, b.ID)
	assert.ErrorIs(t, err, booking.ErrNotOwner)

	_, err = f.svc.UpdateStatus(ctx, f.admin, 12345, "confirmed")
	assert.ErrorIs(t, err, booking.ErrBookingNotFound)
}

func TestListForCustomer(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, f.customer, booking.CreateRequest{TicketID: f.ticket.ID, Quantity: 1})
		require.NoError(t, err)
	}
	_, err := f.svc.Create(ctx, f.admin, booking.CreateRequest{TicketID: f.ticket.ID, Quantity: 1})
	require.NoError(t, err)

	mine, err := f.svc.ListForCustomer(ctx, f.customer.Email)
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	none, err := f.svc.ListForCustomer(ctx, "empty@example.com")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestGenerators(t *testing.T) {
	for i := 0; i < 200; i++ {
		seat := booking.GenerateSeat()
		assert.Regexp(t, `^([1-9]|[1-4][0-9]|50)[A-F]$`, seat)
	}

	ref, err := booking.GenerateReference(time.UnixMilli(1_700_000_000_000))
	require.NoError(t, err)
	assert.Regexp(t, `^TB[0-9A-Z]+-[0-9A-F]{4}$`, ref)
}

func TestBookingRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := setup(t)

	r := gin.New()
	f.svc.SetupRoutes(r, auth.NewMiddleware(authtest.Verifier(), auth.NewResolver(f.db)))

	do := func(method, path, body, email string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if email != "" {
			req.Header.Set("Authorization", authtest.Bearer(t, email))
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	body := fmt.Sprintf(`{"ticketId":%d,"quantity":2,"seat":"9B"}`, f.ticket.ID)
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/bookings", body, "").Code)
	assert.Equal(t, http.StatusForbidden, do(http.MethodPost, "/bookings", body, "ghost@example.com").Code)

	w := do(http.MethodPost, "/bookings", body, f.customer.Email)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "9B", created.Seat)

	w = do(http.MethodPost, "/bookings", body, f.admin.Email)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"Seat already booked"}`, w.Body.String())

	w = do(http.MethodGet, "/user/bookings", "", f.customer.Email)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Bookings []models.Booking `json:"bookings"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	path := fmt.Sprintf("/bookings/%d/status", created.ID)
	assert.Equal(t, http.StatusForbidden, do(http.MethodPatch, path, `{"status":"confirmed"}`, f.customer.Email).Code)
	assert.Equal(t, http.StatusOK, do(http.MethodPatch, path, `{"status":"confirmed"}`, f.vendor.Email).Code)
	assert.Equal(t, 8, f.quantity(t))

	assert.Equal(t, http.StatusBadRequest, do(http.MethodDelete, "/bookings/abc", "", f.customer.Email).Code)
	assert.Equal(t, http.StatusOK, do(http.MethodDelete, fmt.Sprintf("/bookings/%d", created.ID), "", f.customer.Email).Code)
	assert.Equal(t, 10, f.quantity(t))
}
