package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleVendor, RoleAdmin:
		return true
	}
	return false
}

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// MaxAdvertised caps tickets that are advertised and approved at the same time.
const MaxAdvertised = 6

type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Email     string    `gorm:"not null;uniqueIndex" json:"email"`
	Name      string    `json:"name"`
	PhotoURL  string    `json:"photoUrl"`
	Role      Role      `gorm:"not null;default:'customer'" json:"role"`
	Fraud     bool      `gorm:"not null;default:false" json:"fraud"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Ticket struct {
	ID                 uint               `gorm:"primarykey" json:"id"`
	VendorEmail        string             `gorm:"not null;index" json:"vendorEmail"`
	VendorName         string             `json:"vendorName"`
	Title              string             `gorm:"not null" json:"title"`
	TransportType      string             `gorm:"index" json:"transportType"`
	From               string             `gorm:"column:from_location;not null" json:"from"`
	To                 string             `gorm:"column:to_location;not null" json:"to"`
	DepartureDate      string             `gorm:"not null" json:"departureDate"`
	DepartureTime      string             `json:"departureTime"`
	Price              decimal.Decimal    `gorm:"type:decimal(12,2);not null" json:"price"`
	Quantity           int                `gorm:"not null" json:"quantity"`
	Perks              []string           `gorm:"serializer:json" json:"perks"`
	ImageURL           string             `json:"imageUrl"`
	VerificationStatus VerificationStatus `gorm:"not null;default:'pending';index" json:"verificationStatus"`
	Advertised         bool               `gorm:"not null;default:false" json:"advertised"`
	Hidden             bool               `gorm:"not null;default:false" json:"hidden"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
	DeletedAt          gorm.DeletedAt     `gorm:"index" json:"-"`
}

// Visible reports whether the ticket belongs in the public catalog.
func (t *Ticket) Visible() bool {
	return t.VerificationStatus == VerificationApproved && !t.Hidden
}

type Booking struct {
	ID            uint            `gorm:"primarykey" json:"id"`
	TicketID      uint            `gorm:"not null;index" json:"ticketId"`
	VendorEmail   string          `gorm:"not null;index" json:"vendorEmail"`
	CustomerEmail string          `gorm:"not null;index" json:"customerEmail"`
	CustomerName  string          `json:"customerName"`
	Quantity      int             `gorm:"not null" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unitPrice"`
	TotalPrice    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"totalPrice"`
	Seat          string          `gorm:"not null" json:"seat"`
	Reference     string          `gorm:"not null;uniqueIndex" json:"reference"`
	Status        BookingStatus   `gorm:"not null;default:'pending';index" json:"status"`
	TransactionID string          `json:"transactionId,omitempty"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
	TicketTitle   string          `json:"ticketTitle"`
	From          string          `gorm:"column:from_location" json:"from"`
	To            string          `gorm:"column:to_location" json:"to"`
	DepartureDate string          `json:"departureDate"`
	DepartureTime string          `json:"departureTime"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type Payment struct {
	ID            uint            `gorm:"primarykey" json:"id"`
	BookingID     uint            `gorm:"not null;uniqueIndex" json:"bookingId"`
	CustomerEmail string          `gorm:"not null;index" json:"customerEmail"`
	TransactionID string          `gorm:"not null;uniqueIndex" json:"transactionId"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Method        string          `json:"method"`
	PaidAt        time.Time       `gorm:"not null" json:"paidAt"`
	TicketTitle   string          `json:"ticketTitle"`
	From          string          `gorm:"column:from_location" json:"from"`
	To            string          `gorm:"column:to_location" json:"to"`
	DepartureDate string          `json:"departureDate"`
	Seat          string          `json:"seat"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// AdvertSlot is a single-row reservation counter. Used always equals the
// number of tickets that are both advertised and approved.
type AdvertSlot struct {
	ID   uint `gorm:"primarykey"`
	Used int  `gorm:"not null;default:0"`
}

const AdvertSlotID = 1

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&User{},
		&Ticket{},
		&Booking{},
		&Payment{},
		&AdvertSlot{},
	); err != nil {
		return err
	}

	// Seat uniqueness only applies to active bookings, so a cancelled
	// booking frees its seat.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_seat
		ON bookings (ticket_id, seat) WHERE status IN ('pending', 'confirmed')`).Error; err != nil {
		return err
	}

	return db.Where(AdvertSlot{ID: AdvertSlotID}).FirstOrCreate(&AdvertSlot{ID: AdvertSlotID}).Error
}
