// Package payment issues refunds for captured settlements through Stripe.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"

	"github.com/kirinyoku/spacebook/internal/domain"
)

var ErrNoReference = errors.New("settlement has no payment reference")

type refundCreator interface {
	Create(ctx context.Context, params *stripe.RefundCreateParams) (*stripe.Refund, error)
}

type StripeRefunder struct {
	refunds refundCreator
}

func NewStripeRefunder(secretKey string) *StripeRefunder {
	sc := stripe.NewClient(secretKey)
	return &StripeRefunder{refunds: sc.V1Refunds}
}

// Refund asks Stripe to refund the payment intent behind s. The settlement
// id is the idempotency key, so repeating a call for the same settlement
// never refunds twice.
func (r *StripeRefunder) Refund(ctx context.Context, s domain.Settlement) error {
	const op = "payment.StripeRefunder.Refund"

	if s.Reference == "" {
		return fmt.Errorf("%s:%w", op, ErrNoReference)
	}

	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(s.Reference),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.AddMetadata("settlement_id", s.ID.String())
	params.AddMetadata("booking_id", s.BookingID.String())
	params.SetIdempotencyKey("refund-" + s.ID.String())

	if _, err := r.refunds.Create(ctx, params); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
