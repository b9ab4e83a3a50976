package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ai-consultation/billing/internal/billing/model"
	"github.com/ai-consultation/billing/internal/billing/reconcile"
	"github.com/ai-consultation/billing/internal/billing/store"
	billingstripe "github.com/ai-consultation/billing/internal/billing/stripe"
	"github.com/ai-consultation/billing/internal/logging"
)

const (
	testWebhookSecret = "whsec_handler_test"
	aliceID           = "6f1c2a8e-0d4b-4f7e-9a51-3c2b1d0e9f87"
	bobID             = "0b7e4d11-52a9-4c3e-8f60-7d9a2e1c4b35"
)

var testPrices = reconcile.NewPriceTable(map[string]int{
	"price_one":   1,
	"price_three": 3,
	"price_ten":   10,
})

// fakeProvider verifies signatures with the real webhook code and fakes
// every API call.
type fakeProvider struct {
	signer *billingstripe.Client

	mu         sync.Mutex
	linePrices map[string]string
	lineErr    error
	lineCalls  int
	active     bool
	activeErr  error

	checkoutURL string
	checkoutErr error
	checkouts   []string

	cancellation *billingstripe.Cancellation
	cancelErr    error
	cancelCalls  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		signer:      billingstripe.NewClient(billingstripe.Config{WebhookSecret: testWebhookSecret}),
		linePrices:  make(map[string]string),
		checkoutURL: "https://checkout.stripe.test/session",
	}
}

func (p *fakeProvider) ConstructWebhookEvent(payload []byte, sig string) (stripe.Event, error) {
	return p.signer.ConstructWebhookEvent(payload, sig)
}

func (p *fakeProvider) FirstLineItemPriceID(ctx context.Context, sessionID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lineCalls++
	if p.lineErr != nil {
		return "", p.lineErr
	}
	return p.linePrices[sessionID], nil
}

func (p *fakeProvider) HasActiveSubscription(ctx context.Context, customerID string) (bool, error) {
	return p.active, p.activeErr
}

func (p *fakeProvider) CreateSubscriptionCheckout(ctx context.Context, userID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkouts = append(p.checkouts, "subscription:"+userID)
	return p.checkoutURL, p.checkoutErr
}

func (p *fakeProvider) CreateTicketCheckout(ctx context.Context, userID, priceID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkouts = append(p.checkouts, "payment:"+userID+":"+priceID)
	return p.checkoutURL, p.checkoutErr
}

func (p *fakeProvider) CancelActiveSubscription(ctx context.Context, customerID string) (*billingstripe.Cancellation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelCalls++
	if p.cancelErr != nil {
		return nil, p.cancelErr
	}
	return p.cancellation, nil
}

// fakeStore mirrors the ledger semantics of store.UserStore in memory.
type fakeStore struct {
	mu      sync.Mutex
	users   map[string]*model.User
	ledger  map[string]bool
	writes  int
	err     error
	deleted []string
}

func newFakeStore(users ...*model.User) *fakeStore {
	s := &fakeStore{
		users:  make(map[string]*model.User),
		ledger: make(map[string]bool),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeStore) user(id string) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[id]
}

func (s *fakeStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) SetPremium(ctx context.Context, id string, premium bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	u, ok := s.users[id]
	if !ok {
		return store.ErrUserNotFound
	}
	u.IsPremium = premium
	s.writes++
	return nil
}

func (s *fakeStore) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	return s.ledger[eventID], nil
}

func (s *fakeStore) ActivatePremium(ctx context.Context, ev model.EventRef, userID, customerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if s.ledger[ev.ID] {
		return false, nil
	}
	u, ok := s.users[userID]
	if !ok {
		return false, store.ErrUserNotFound
	}
	u.IsPremium = true
	if customerID != "" {
		u.StripeCustomerID = &customerID
	}
	s.ledger[ev.ID] = true
	s.writes++
	return true, nil
}

func (s *fakeStore) CreditTickets(ctx context.Context, ev model.EventRef, userID string, count int) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, 0, s.err
	}
	if s.ledger[ev.ID] {
		return false, 0, nil
	}
	u, ok := s.users[userID]
	if !ok {
		return false, 0, store.ErrUserNotFound
	}
	u.TicketCount += count
	s.ledger[ev.ID] = true
	s.writes++
	return true, u.TicketCount, nil
}

func (s *fakeStore) RevokePremiumByCustomer(ctx context.Context, ev model.EventRef, customerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if s.ledger[ev.ID] {
		return false, nil
	}
	for _, u := range s.users {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
			u.IsPremium = false
		}
	}
	s.ledger[ev.ID] = true
	s.writes++
	return true, nil
}

func (s *fakeStore) DeleteAccountData(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.users, userID)
	s.deleted = append(s.deleted, userID)
	return nil
}

func strPtr(s string) *string { return &s }

var errBoom = errors.New("boom")

// signedWebhook builds a webhook request signed with the test secret.
func signedWebhook(t *testing.T, payload string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func checkoutCompletedEvent(eventID, sessionID, mode, userID string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","type":"checkout.session.completed","data":{"object":`+
		`{"id":%q,"object":"checkout.session","mode":%q,"client_reference_id":%q,"customer":"cus_123"}}}`,
		eventID, sessionID, mode, userID)
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return m
}

var testLogger = logging.Discard()
