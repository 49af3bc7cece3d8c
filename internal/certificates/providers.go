package certificates

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Issuance is one recipient of a badge linked to a template
type Issuance struct {
	UserID  int64  `json:"user_id"`
	Hash    string `json:"hash"`
	BadgeID int64  `json:"badge_id"`
}

// Assertion is the badge metadata behind an issuance hash
type Assertion struct {
	Hash             string    `json:"hash"`
	BadgeID          int64     `json:"badge_id"`
	BadgeName        string    `json:"badge_name"`
	BadgeDescription string    `json:"badge_description"`
	UserID           int64     `json:"user_id"`
	IssuedAt         time.Time `json:"issued_at"`
}

// IssuanceProvider resolves who received the badges of a template
type IssuanceProvider interface {
	Issuances(ctx context.Context, templateID uuid.UUID) ([]Issuance, error)
	// Assertion returns ErrNotFound for unknown hashes
	Assertion(ctx context.Context, hash string) (*Assertion, error)
}

// RecipientInfo is the host's view of a user
type RecipientInfo struct {
	UserID        int64      `json:"user_id"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	AccountEmail  string     `json:"account_email"`
	BackpackEmail string     `json:"backpack_email"`
	BirthDate     *time.Time `json:"birth_date,omitempty"`
	Institution   string     `json:"institution"`
}

// Email prefers the backpack address over the account address
func (r *RecipientInfo) Email() string {
	if r.BackpackEmail != "" {
		return r.BackpackEmail
	}
	return r.AccountEmail
}

// RecipientProvider loads users
type RecipientProvider interface {
	Recipient(ctx context.Context, userID int64) (*RecipientInfo, error)
}

// CourseProvider resolves course names
type CourseProvider interface {
	CourseName(ctx context.Context, courseID int64) (string, error)
}

// BookingInfo is a seminar the recipient completed. Empty fields fall back
// to the not set sentinels.
type BookingInfo struct {
	Title    string     `json:"title"`
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
	Duration string     `json:"duration"`
}

// BookingProvider looks up seminar data. A nil result means no completed
// booking.
type BookingProvider interface {
	Booking(ctx context.Context, bookingID, userID int64) (*BookingInfo, error)
}

// HostData groups the host application collaborators. Bookings may be nil.
type HostData struct {
	Issuances  IssuanceProvider
	Recipients RecipientProvider
	Courses    CourseProvider
	Bookings   BookingProvider
}
