package reconcile

import (
	"encoding/json"
	"errors"
	"testing"

	stripe "github.com/stripe/stripe-go/v82"
)

const testUserID = "6f1c2a8e-0d4b-4f7e-9a51-3c2b1d0e9f87"

func event(id string, typ stripe.EventType, object string) stripe.Event {
	return stripe.Event{
		ID:   id,
		Type: typ,
		Data: &stripe.EventData{Raw: json.RawMessage(object)},
	}
}

func TestDecodeSubscriptionCheckout(t *testing.T) {
	ev := event("evt_1", stripe.EventTypeCheckoutSessionCompleted,
		`{"id":"cs_1","object":"checkout.session","mode":"subscription","client_reference_id":"`+testUserID+`","customer":"cus_123"}`)

	out, err := Decode(ev)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sub, ok := out.(Subscription)
	if !ok {
		t.Fatalf("outcome = %T, want Subscription", out)
	}
	want := Subscription{EventID: "evt_1", SessionID: "cs_1", UserID: testUserID, CustomerID: "cus_123"}
	if sub != want {
		t.Errorf("outcome = %+v, want %+v", sub, want)
	}
}

func TestDecodeTicketCheckout(t *testing.T) {
	ev := event("evt_2", stripe.EventTypeCheckoutSessionCompleted,
		`{"id":"cs_2","object":"checkout.session","mode":"payment","client_reference_id":"`+testUserID+`","customer":null}`)

	out, err := Decode(ev)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tp, ok := out.(TicketPurchase)
	if !ok {
		t.Fatalf("outcome = %T, want TicketPurchase", out)
	}
	if tp.SessionID != "cs_2" || tp.UserID != testUserID || tp.CustomerID != "" {
		t.Errorf("outcome = %+v", tp)
	}
}

func TestDecodeOtherModeIsUnhandled(t *testing.T) {
	ev := event("evt_3", stripe.EventTypeCheckoutSessionCompleted,
		`{"id":"cs_3","mode":"setup","client_reference_id":"`+testUserID+`"}`)

	out, err := Decode(ev)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	u, ok := out.(Unhandled)
	if !ok {
		t.Fatalf("outcome = %T, want Unhandled", out)
	}
	if u.Reason != "mode setup" {
		t.Errorf("reason = %q, want %q", u.Reason, "mode setup")
	}
}

func TestDecodeMissingClientReference(t *testing.T) {
	// Checked before the mode, so even an unknown mode is rejected.
	for _, mode := range []string{"subscription", "payment", "setup"} {
		ev := event("evt_4", stripe.EventTypeCheckoutSessionCompleted,
			`{"id":"cs_4","mode":"`+mode+`","customer":"cus_1"}`)
		if _, err := Decode(ev); !errors.Is(err, ErrMissingClientReference) {
			t.Errorf("mode %s: err = %v, want ErrMissingClientReference", mode, err)
		}
	}
}

func TestDecodeInvalidClientReference(t *testing.T) {
	ev := event("evt_5", stripe.EventTypeCheckoutSessionCompleted,
		`{"id":"cs_5","mode":"payment","client_reference_id":"not-a-user"}`)
	if _, err := Decode(ev); !errors.Is(err, ErrInvalidClientReference) {
		t.Errorf("err = %v, want ErrInvalidClientReference", err)
	}
}

func TestDecodeMalformedObject(t *testing.T) {
	ev := event("evt_6", stripe.EventTypeCheckoutSessionCompleted, `{"mode": 42}`)
	if _, err := Decode(ev); !errors.Is(err, ErrMalformedEvent) {
		t.Errorf("err = %v, want ErrMalformedEvent", err)
	}

	empty := stripe.Event{ID: "evt_7", Type: stripe.EventTypeCheckoutSessionCompleted}
	if _, err := Decode(empty); !errors.Is(err, ErrMalformedEvent) {
		t.Errorf("nil data: err = %v, want ErrMalformedEvent", err)
	}
}

func TestDecodeUnhandledType(t *testing.T) {
	ev := event("evt_8", "invoice.paid", `{"id":"in_1"}`)

	out, err := Decode(ev)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	u, ok := out.(Unhandled)
	if !ok {
		t.Fatalf("outcome = %T, want Unhandled", out)
	}
	if u.Type != "invoice.paid" {
		t.Errorf("type = %q, want %q", u.Type, "invoice.paid")
	}
}

func TestDecodeSubscriptionDeleted(t *testing.T) {
	ev := event("evt_9", stripe.EventTypeCustomerSubscriptionDeleted,
		`{"id":"sub_1","object":"subscription","customer":"cus_123","status":"canceled"}`)

	out, err := Decode(ev)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	se, ok := out.(SubscriptionEnded)
	if !ok {
		t.Fatalf("outcome = %T, want SubscriptionEnded", out)
	}
	if se.SubscriptionID != "sub_1" || se.CustomerID != "cus_123" {
		t.Errorf("outcome = %+v", se)
	}
}

func TestDecodeSubscriptionDeletedWithoutCustomer(t *testing.T) {
	ev := event("evt_10", stripe.EventTypeCustomerSubscriptionDeleted, `{"id":"sub_2"}`)

	out, err := Decode(ev)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := out.(Unhandled); !ok {
		t.Errorf("outcome = %T, want Unhandled", out)
	}
}
