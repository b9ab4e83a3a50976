// Package reconcile turns verified Stripe events into the small, closed set of
// entitlement outcomes the webhook acts on.
package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
)

var (
	// ErrMissingClientReference means a completed checkout carries no user id
	// and cannot be attributed. The checkout initiator failed to set it.
	ErrMissingClientReference = errors.New("checkout session has no client_reference_id")
	// ErrInvalidClientReference means the correlation id is not a user id.
	ErrInvalidClientReference = errors.New("checkout session client_reference_id is not a valid user id")
	// ErrMalformedEvent means the event object could not be decoded.
	ErrMalformedEvent = errors.New("malformed event object")
)

// Outcome is one of Subscription, TicketPurchase, SubscriptionEnded or Unhandled.
type Outcome interface {
	outcome()
}

// Subscription is a completed subscription-mode checkout.
type Subscription struct {
	EventID    string
	SessionID  string
	UserID     string
	CustomerID string
}

// TicketPurchase is a completed one-off payment-mode checkout. The purchased
// price is not part of the event and must be fetched from the session's line items.
type TicketPurchase struct {
	EventID    string
	SessionID  string
	UserID     string
	CustomerID string
}

// SubscriptionEnded is a subscription the provider reports as deleted.
type SubscriptionEnded struct {
	EventID        string
	SubscriptionID string
	CustomerID     string
}

// Unhandled is acknowledged without any write.
type Unhandled struct {
	EventID string
	Type    string
	Reason  string
}

func (Subscription) outcome()      {}
func (TicketPurchase) outcome()    {}
func (SubscriptionEnded) outcome() {}
func (Unhandled) outcome()         {}

// Decode classifies a verified event.
func Decode(event stripe.Event) (Outcome, error) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return decodeCheckoutCompleted(event)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		return decodeSubscriptionDeleted(event)
	default:
		return Unhandled{EventID: event.ID, Type: string(event.Type), Reason: "event type"}, nil
	}
}

func decodeCheckoutCompleted(event stripe.Event) (Outcome, error) {
	var sess stripe.CheckoutSession
	if err := unmarshalObject(event, &sess); err != nil {
		return nil, err
	}

	userID := strings.TrimSpace(sess.ClientReferenceID)
	if userID == "" {
		return nil, ErrMissingClientReference
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidClientReference, userID)
	}

	var customerID string
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}

	switch sess.Mode {
	case stripe.CheckoutSessionModeSubscription:
		return Subscription{EventID: event.ID, SessionID: sess.ID, UserID: userID, CustomerID: customerID}, nil
	case stripe.CheckoutSessionModePayment:
		return TicketPurchase{EventID: event.ID, SessionID: sess.ID, UserID: userID, CustomerID: customerID}, nil
	default:
		return Unhandled{EventID: event.ID, Type: string(event.Type), Reason: "mode " + string(sess.Mode)}, nil
	}
}

func decodeSubscriptionDeleted(event stripe.Event) (Outcome, error) {
	var sub stripe.Subscription
	if err := unmarshalObject(event, &sub); err != nil {
		return nil, err
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return Unhandled{EventID: event.ID, Type: string(event.Type), Reason: "no customer"}, nil
	}
	return SubscriptionEnded{EventID: event.ID, SubscriptionID: sub.ID, CustomerID: sub.Customer.ID}, nil
}

func unmarshalObject(event stripe.Event, v any) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("%w: empty data for %s", ErrMalformedEvent, event.Type)
	}
	if err := json.Unmarshal(event.Data.Raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, event.Type, err)
	}
	return nil
}
