package httpgin

import (
	"time"

	"github.com/google/uuid"
)

type CreateBookingRequest struct {
	CustomerID string `json:"customer_id" binding:"required,uuid"`
	StartAt    string `json:"start_at" binding:"required"`
	ExpiresAt  string `json:"expires_at" binding:"required"`
	GuestCount int    `json:"guest_count"`
}

type RejectManyRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,dive,uuid"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	// Status is the booking's current status when a transition was refused.
	Status string `json:"status,omitempty"`
}

type OccupancyResponse struct {
	AreaID    uuid.UUID `json:"area_id"`
	StartAt   time.Time `json:"start_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Guests    int       `json:"guests"`
}

type RejectManyResponse struct {
	Rejected int64 `json:"rejected"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
