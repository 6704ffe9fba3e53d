package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/kirinyoku/spacebook/internal/domain"
)

type fakeRefunds struct {
	got *stripe.RefundCreateParams
	err error
}

func (f *fakeRefunds) Create(_ context.Context, p *stripe.RefundCreateParams) (*stripe.Refund, error) {
	f.got = p
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.Refund{ID: "re_123"}, nil
}

func TestRefundUsesPaymentIntentAndIdempotencyKey(t *testing.T) {
	fake := &fakeRefunds{}
	r := &StripeRefunder{refunds: fake}
	s := domain.Settlement{ID: uuid.New(), BookingID: uuid.New(), Reference: "pi_abc"}

	require.NoError(t, r.Refund(context.Background(), s))
	require.NotNil(t, fake.got)
	assert.Equal(t, "pi_abc", *fake.got.PaymentIntent)
	assert.Equal(t, "refund-"+s.ID.String(), *fake.got.IdempotencyKey)
	assert.Equal(t, s.BookingID.String(), fake.got.Metadata["booking_id"])
}

func TestRefundErrors(t *testing.T) {
	r := &StripeRefunder{refunds: &fakeRefunds{}}
	err := r.Refund(context.Background(), domain.Settlement{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrNoReference)

	boom := errors.New("card_declined")
	r = &StripeRefunder{refunds: &fakeRefunds{err: boom}}
	err = r.Refund(context.Background(), domain.Settlement{ID: uuid.New(), Reference: "pi_x"})
	assert.ErrorIs(t, err, boom)
}
