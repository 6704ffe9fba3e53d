package notify

import (
	"fmt"

	"github.com/kirinyoku/spacebook/internal/domain"
)

const timeLayout = "2006-01-02 15:04 MST"

func BookingConfirmed(b domain.Booking) domain.Notification {
	return domain.Notification{
		RecipientID: b.CustomerID,
		Type:        domain.NotifyBookingConfirmed,
		BookingID:   b.ID,
		Title:       "Booking confirmed",
		Body:        fmt.Sprintf("Your booking for %d guest(s) starting %s is confirmed.", b.GuestCount, b.Start.Format(timeLayout)),
	}
}

// BookingNew is sent to the partner; ok is false when the booking has none.
func BookingNew(b domain.Booking) (domain.Notification, bool) {
	return partner(b, domain.NotifyBookingNew,
		"New booking",
		fmt.Sprintf("A booking for %d guest(s) starting %s was confirmed.", b.GuestCount, b.Start.Format(timeLayout)))
}

func BookingReviewRequested(b domain.Booking) (domain.Notification, bool) {
	return partner(b, domain.NotifyBookingReviewRequested,
		"Booking awaiting review",
		fmt.Sprintf("A booking for %d guest(s) starting %s needs your approval.", b.GuestCount, b.Start.Format(timeLayout)))
}

func BookingCancelled(b domain.Booking) (domain.Notification, bool) {
	return partner(b, domain.NotifyBookingCancelled,
		"Booking cancelled",
		fmt.Sprintf("The booking starting %s was cancelled by the customer.", b.Start.Format(timeLayout)))
}

func BookingRejected(b domain.Booking) domain.Notification {
	return domain.Notification{
		RecipientID: b.CustomerID,
		Type:        domain.NotifyBookingRejected,
		BookingID:   b.ID,
		Title:       "Booking declined",
		Body:        fmt.Sprintf("Your booking starting %s could not be accepted.", b.Start.Format(timeLayout)),
	}
}

func CapacityWarningCustomer(b domain.Booking, projected int) domain.Notification {
	return domain.Notification{
		RecipientID: b.CustomerID,
		Type:        domain.NotifyCapacityWarningCustomer,
		BookingID:   b.ID,
		Title:       "Your booking is not confirmed yet",
		Body: fmt.Sprintf("The area is at capacity (%d/%d) for your booking starting %s; the host will follow up.",
			projected, capOf(b), b.Start.Format(timeLayout)),
	}
}

func CapacityWarningPartner(b domain.Booking, projected int) (domain.Notification, bool) {
	return partner(b, domain.NotifyCapacityWarningPartner,
		"Paid booking over capacity",
		fmt.Sprintf("A paid booking starting %s would bring occupancy to %d/%d. Please resolve it.",
			b.Start.Format(timeLayout), projected, capOf(b)))
}

func partner(b domain.Booking, typ domain.NotificationType, title, body string) (domain.Notification, bool) {
	if b.PartnerID == nil {
		return domain.Notification{}, false
	}
	return domain.Notification{
		RecipientID: *b.PartnerID,
		Type:        typ,
		BookingID:   b.ID,
		Title:       title,
		Body:        body,
	}, true
}

func capOf(b domain.Booking) int {
	if b.AreaMaxCapacity == nil {
		return 0
	}
	return *b.AreaMaxCapacity
}
