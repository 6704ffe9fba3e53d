package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyWindow       = errors.New("window end must be after start")
	ErrNonPositiveGuests = errors.New("guest count must be positive")
)

// Window is the half-open occupancy interval [Start, End).
type Window struct {
	Start time.Time `json:"start_at"`
	End   time.Time `json:"expires_at"`
}

func (w Window) Validate() error {
	if !w.End.After(w.Start) {
		return ErrEmptyWindow
	}
	return nil
}

// Overlaps reports whether two half-open windows share at least one instant.
// Touching windows (w.End == o.Start) do not overlap.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Contains reports whether t falls inside [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

type Area struct {
	ID                        uuid.UUID  `json:"id"`
	SpaceID                   uuid.UUID  `json:"space_id"`
	PartnerID                 *uuid.UUID `json:"partner_id,omitempty"`
	MaxCapacity               *int       `json:"max_capacity,omitempty"`
	AutomaticBookingEnabled   bool       `json:"automatic_booking_enabled"`
	RequestApprovalAtCapacity bool       `json:"request_approval_at_capacity"`
}

type Booking struct {
	ID         uuid.UUID  `json:"id"`
	SpaceID    uuid.UUID  `json:"space_id"`
	AreaID     uuid.UUID  `json:"area_id"`
	CustomerID uuid.UUID  `json:"customer_id"`
	PartnerID  *uuid.UUID `json:"partner_id,omitempty"`
	Window
	GuestCount int `json:"guest_count"`
	// AreaMaxCapacity is the area limit captured at creation; nil means unbounded.
	AreaMaxCapacity *int          `json:"area_max_capacity,omitempty"`
	Status          BookingStatus `json:"status"`
	Decision        DecisionKind  `json:"decision"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type SettlementStatus string

const (
	SettlementPending   SettlementStatus = "pending"
	SettlementSucceeded SettlementStatus = "succeeded"
	SettlementFailed    SettlementStatus = "failed"
	SettlementRefunded  SettlementStatus = "refunded"
)

// Settlement is the payment record attached to a booking.
type Settlement struct {
	ID          uuid.UUID        `json:"id"`
	BookingID   uuid.UUID        `json:"booking_id"`
	Reference   string           `json:"reference"`
	AmountCents int64            `json:"amount_cents"`
	Currency    string           `json:"currency"`
	Status      SettlementStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
}

type NotificationType string

const (
	NotifyBookingConfirmed        NotificationType = "booking_confirmed"
	NotifyBookingNew              NotificationType = "booking_new"
	NotifyBookingReviewRequested  NotificationType = "booking_review_requested"
	NotifyBookingCancelled        NotificationType = "booking_cancelled"
	NotifyBookingRejected         NotificationType = "booking_rejected"
	NotifyCapacityWarningCustomer NotificationType = "capacity_warning_customer"
	NotifyCapacityWarningPartner  NotificationType = "capacity_warning_partner"
)

type Notification struct {
	ID          uuid.UUID        `json:"id"`
	RecipientID uuid.UUID        `json:"recipient_id"`
	Type        NotificationType `json:"type"`
	BookingID   uuid.UUID        `json:"booking_id"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	CreatedAt   time.Time        `json:"created_at"`
}
