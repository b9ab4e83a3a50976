package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ErrNoActiveSubscription is returned when a customer has nothing to cancel.
var ErrNoActiveSubscription = errors.New("no active subscription found")

type Config struct {
	SecretKey           string
	WebhookSecret       string
	SubscriptionPriceID string
	SuccessURL          string
	CancelURL           string
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg}
}

// Cancellation describes a subscription scheduled to end at period end.
type Cancellation struct {
	SubscriptionID string
	CancelAt       time.Time
}

// CreateSubscriptionCheckout creates a subscription checkout session for the
// default price and returns its hosted URL.
func (c *Client) CreateSubscriptionCheckout(ctx context.Context, userID string) (string, error) {
	if c.cfg.SubscriptionPriceID == "" {
		return "", errors.New("create checkout session: no subscription price configured")
	}
	return c.createCheckout(ctx, stripe.CheckoutSessionModeSubscription, userID, c.cfg.SubscriptionPriceID)
}

// CreateTicketCheckout creates a one-off payment checkout session for priceID.
func (c *Client) CreateTicketCheckout(ctx context.Context, userID, priceID string) (string, error) {
	return c.createCheckout(ctx, stripe.CheckoutSessionModePayment, userID, priceID)
}

func (c *Client) createCheckout(ctx context.Context, mode stripe.CheckoutSessionMode, userID, priceID string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(mode)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(userID),
		SuccessURL:        stripe.String(c.cfg.SuccessURL),
		CancelURL:         stripe.String(c.cfg.CancelURL),
	}
	params.Context = ctx
	sess, err := checksession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// FirstLineItemPriceID returns the price id of the first line item of a
// checkout session, or "" if the session has no priced line item.
func (c *Client) FirstLineItemPriceID(ctx context.Context, sessionID string) (string, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{
		Session: stripe.String(sessionID),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.Single = true

	it := checksession.ListLineItems(params)
	if it.Next() {
		if li := it.LineItem(); li != nil && li.Price != nil {
			return li.Price.ID, nil
		}
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("list line items: %w", err)
	}
	return "", nil
}

// activeSubscriptionID returns the first active subscription of customerID.
func (c *Client) activeSubscriptionID(ctx context.Context, customerID string) (string, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.Single = true

	it := subscription.List(params)
	if it.Next() {
		return it.Subscription().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("list subscriptions: %w", err)
	}
	return "", ErrNoActiveSubscription
}

// HasActiveSubscription reports whether customerID still has an active subscription.
func (c *Client) HasActiveSubscription(ctx context.Context, customerID string) (bool, error) {
	_, err := c.activeSubscriptionID(ctx, customerID)
	if errors.Is(err, ErrNoActiveSubscription) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CancelActiveSubscription schedules the customer's active subscription to
// end at the close of the current billing period.
func (c *Client) CancelActiveSubscription(ctx context.Context, customerID string) (*Cancellation, error) {
	subID, err := c.activeSubscriptionID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx
	sub, err := subscription.Update(subID, params)
	if err != nil {
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}

	out := &Cancellation{SubscriptionID: sub.ID}
	if sub.CancelAt > 0 {
		out.CancelAt = time.Unix(sub.CancelAt, 0).UTC()
	}
	return out, nil
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
// API version mismatches are tolerated; only the fields this service reads matter.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, c.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
