// Package booking holds the backend resources the site reads and writes through the gateway.
// Inventory, pricing and payment rules live in the backend.
package booking

import (
	"strings"
	"time"

	domainauth "github.com/target/tourbook/internal/domain/auth"
)

// Package is a bookable travel package.
type Package struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Destination string  `json:"destination"`
	Nights      int     `json:"nights"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	ImageURL    string  `json:"image_url,omitempty"`
}

// Status is a booking's lifecycle state as reported by the backend.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCanceled  Status = "canceled"
)

// Booking is a customer's reservation of a package.
type Booking struct {
	ID        string    `json:"id"`
	PackageID string    `json:"package_id"`
	Email     string    `json:"email"`
	Travelers int       `json:"travelers"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// BookingRequest is the payload for creating a booking.
type BookingRequest struct {
	PackageID string `json:"package_id"`
	Email     string `json:"email"`
	Travelers int    `json:"travelers"`
}

// Validate checks the request before it is sent.
func (r BookingRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.PackageID) == "":
		return ErrPackageRequired
	case strings.TrimSpace(r.Email) == "":
		return ErrEmailRequired
	case r.Travelers < 1:
		return ErrTravelersRequired
	}
	return nil
}

// User is a backend user record.
type User struct {
	Email       string          `json:"email"`
	DisplayName string          `json:"display_name,omitempty"`
	Role        domainauth.Role `json:"role"`
}

// Transaction is a payment record from the hosted payment provider, as listed by the backend.
type Transaction struct {
	ID        string    `json:"id"`
	BookingID string    `json:"booking_id"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

// DashboardSummary is what the dashboard page renders. Admin-only fields stay empty for customers.
type DashboardSummary struct {
	Role         domainauth.Role `json:"role"`
	Packages     int             `json:"packages"`
	Bookings     []Booking       `json:"bookings"`
	Users        int             `json:"users,omitempty"`
	Transactions []Transaction   `json:"transactions,omitempty"`
}
