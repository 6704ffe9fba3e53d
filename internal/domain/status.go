package domain

import "fmt"

type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusRejected   BookingStatus = "rejected"
	StatusExpired    BookingStatus = "expired"
	StatusCancelled  BookingStatus = "cancelled"
	StatusCheckedIn  BookingStatus = "checkedin"
	StatusCheckedOut BookingStatus = "checkedout"
	StatusCompleted  BookingStatus = "completed"
	StatusNoShow     BookingStatus = "noshow"
)

// ActiveStatuses are the statuses that consume area capacity.
var ActiveStatuses = []BookingStatus{StatusPending, StatusConfirmed, StatusCheckedIn}

var allowedTransitions = map[BookingStatus]map[BookingStatus]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusRejected:  true,
		StatusExpired:   true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusCancelled: true,
		StatusCheckedIn: true,
		StatusCompleted: true,
		StatusNoShow:    true,
	},
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	switch st := BookingStatus(s); st {
	case StatusPending, StatusConfirmed, StatusRejected, StatusExpired, StatusCancelled,
		StatusCheckedIn, StatusCheckedOut, StatusCompleted, StatusNoShow:
		return st, nil
	default:
		return "", fmt.Errorf("unknown booking status: %q", s)
	}
}

func (s BookingStatus) String() string { return string(s) }

// CanTransition reports whether from -> to is a legal forward move.
func CanTransition(from, to BookingStatus) bool {
	return allowedTransitions[from][to]
}

// IsTerminal reports whether no transition may leave s.
func (s BookingStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// IsActive reports whether a booking in status s counts toward occupancy.
func (s BookingStatus) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// StatusStrings converts statuses to their wire form, e.g. for SQL ANY($n).
func StatusStrings(ss []BookingStatus) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

// DecisionKind is the outcome of an admission evaluation.
type DecisionKind string

const (
	DecisionAutoConfirmed DecisionKind = "auto_confirmed"
	DecisionPendingReview DecisionKind = "pending_review"
	DecisionRejectFull    DecisionKind = "reject_full"
)
