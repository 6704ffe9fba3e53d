// Package admission decides whether a booking request fits an area.
package admission

import "github.com/kirinyoku/spacebook/internal/domain"

type Input struct {
	AutomaticBookingEnabled   bool
	RequestApprovalAtCapacity bool
	// MaxCapacity nil means the area is unbounded.
	MaxCapacity *int
	// ActiveCount is the guest total already committed to overlapping windows.
	ActiveCount int
	GuestCount  int
}

type Decision struct {
	Status domain.BookingStatus
	Kind   domain.DecisionKind
}

// Decide evaluates a request against the area policy. It never reads state;
// capacity is enforced against whatever ActiveCount the caller observed.
func Decide(in Input) Decision {
	if !in.AutomaticBookingEnabled {
		return Decision{Status: domain.StatusPending, Kind: domain.DecisionPendingReview}
	}

	if in.MaxCapacity != nil && Projected(in.ActiveCount, in.GuestCount) > *in.MaxCapacity {
		if in.RequestApprovalAtCapacity {
			return Decision{Status: domain.StatusPending, Kind: domain.DecisionPendingReview}
		}
		return Decision{Status: domain.StatusRejected, Kind: domain.DecisionRejectFull}
	}

	return Decision{Status: domain.StatusConfirmed, Kind: domain.DecisionAutoConfirmed}
}

// Projected is the occupancy after admitting guests; a request always
// consumes at least one unit.
func Projected(activeCount, guests int) int {
	return activeCount + max(guests, 1)
}

// OverCapacity reports whether admitting guests would exceed maxCapacity.
func OverCapacity(maxCapacity *int, activeCount, guests int) bool {
	return maxCapacity != nil && Projected(activeCount, guests) > *maxCapacity
}
