package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kirinyoku/spacebook/internal/domain"
)

// BookingsPubSub announces booking status changes so listing and chat
// surfaces can refresh without polling.
type BookingsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewBookingsPubSub(rdb *redis.Client) *BookingsPubSub {
	return &BookingsPubSub{
		rdb:     rdb,
		channel: ChannelBookingsChanged(),
	}
}

type BookingChangedMsg struct {
	Type      string    `json:"type"`
	BookingID uuid.UUID `json:"booking_id"`
	AreaID    uuid.UUID `json:"area_id"`
	Status    string    `json:"status"`
	TsUnix    int64     `json:"ts_unix"`
}

func (p *BookingsPubSub) PublishBookingChanged(ctx context.Context, b domain.Booking) error {
	msg := BookingChangedMsg{
		Type:      "booking_changed",
		BookingID: b.ID,
		AreaID:    b.AreaID,
		Status:    string(b.Status),
		TsUnix:    time.Now().Unix(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, data).Err()
}
