package redis

import (
	"fmt"

	"github.com/google/uuid"
)

const ns = "spacebook:v1"

func KeyArea(areaID uuid.UUID) string {
	return fmt.Sprintf("%s:area:%s", ns, areaID)
}

func KeyIdemBooking(areaID uuid.UUID, idemKey string) string {
	return fmt.Sprintf("%s:idem:bookings:%s:%s", ns, areaID, idemKey)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelBookingsChanged() string {
	return ns + ":bookings:changed"
}
