package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/ai-consultation/billing/internal/billing/model"
	"github.com/ai-consultation/billing/internal/billing/reconcile"
)

const maxWebhookBody = 1 << 20

// Ack statuses returned to the provider.
const (
	statusProcessed = "processed"
	statusDuplicate = "duplicate"
	statusIgnored   = "ignored"
)

// WebhookProvider is the part of the payment provider the webhook needs.
type WebhookProvider interface {
	ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error)
	FirstLineItemPriceID(ctx context.Context, sessionID string) (string, error)
	HasActiveSubscription(ctx context.Context, customerID string) (bool, error)
}

// Entitlements applies ledgered entitlement changes. Each mutation reports
// false when the event was already processed.
type Entitlements interface {
	EventProcessed(ctx context.Context, eventID string) (bool, error)
	ActivatePremium(ctx context.Context, ev model.EventRef, userID, customerID string) (bool, error)
	CreditTickets(ctx context.Context, ev model.EventRef, userID string, count int) (bool, int, error)
	RevokePremiumByCustomer(ctx context.Context, ev model.EventRef, customerID string) (bool, error)
}

type WebhookHandler struct {
	provider WebhookProvider
	store    Entitlements
	prices   reconcile.PriceTable
	logger   *slog.Logger
}

func NewWebhookHandler(p WebhookProvider, s Entitlements, prices reconcile.PriceTable, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		provider: p,
		store:    s,
		prices:   prices,
		logger:   logger,
	}
}

type webhookAck struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
}

// HandleStripeWebhook verifies and applies a provider event. Any non-2xx
// response makes the provider redeliver, so only transient failures return 500.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	event, err := h.provider.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		writeError(w, http.StatusBadRequest, "Webhook signature verification failed")
		return
	}

	log := h.logger.With("event_id", event.ID, "type", string(event.Type))

	out, err := reconcile.Decode(event)
	if err != nil {
		log.Warn("rejecting event", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ref := model.EventRef{ID: event.ID, Type: string(event.Type)}
	status, err := h.apply(r.Context(), log, ref, out)
	if err != nil {
		log.Error("reconcile event", "error", err)
		writeError(w, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	writeJSON(w, http.StatusOK, webhookAck{Received: true, Status: status})
}

func (h *WebhookHandler) apply(ctx context.Context, log *slog.Logger, ref model.EventRef, out reconcile.Outcome) (string, error) {
	switch o := out.(type) {
	case reconcile.Subscription:
		return h.activatePremium(ctx, log, ref, o)
	case reconcile.TicketPurchase:
		return h.creditTickets(ctx, log, ref, o)
	case reconcile.SubscriptionEnded:
		return h.endSubscription(ctx, log, ref, o)
	case reconcile.Unhandled:
		log.Debug("event ignored", "reason", o.Reason)
		return statusIgnored, nil
	default:
		return "", fmt.Errorf("unexpected outcome %T", out)
	}
}

func (h *WebhookHandler) activatePremium(ctx context.Context, log *slog.Logger, ref model.EventRef, o reconcile.Subscription) (string, error) {
	log = log.With("user_id", o.UserID, "mode", "subscription")

	applied, err := h.store.ActivatePremium(ctx, ref, o.UserID, o.CustomerID)
	if err != nil {
		return "", fmt.Errorf("activate premium: %w", err)
	}
	if !applied {
		log.Info("duplicate event")
		return statusDuplicate, nil
	}
	log.Info("premium activated", "customer_id", o.CustomerID)
	return statusProcessed, nil
}

func (h *WebhookHandler) creditTickets(ctx context.Context, log *slog.Logger, ref model.EventRef, o reconcile.TicketPurchase) (string, error) {
	log = log.With("user_id", o.UserID, "mode", "payment")

	// Skip the line-item lookup for replays.
	done, err := h.store.EventProcessed(ctx, ref.ID)
	if err != nil {
		return "", fmt.Errorf("check ledger: %w", err)
	}
	if done {
		log.Info("duplicate event")
		return statusDuplicate, nil
	}

	priceID, err := h.provider.FirstLineItemPriceID(ctx, o.SessionID)
	if err != nil {
		return "", fmt.Errorf("fetch line items for %s: %w", o.SessionID, err)
	}
	count := h.prices.Count(priceID)
	if count == 0 {
		log.Warn("no ticket count for price, nothing credited", "price_id", priceID, "session_id", o.SessionID)
		return statusIgnored, nil
	}

	applied, balance, err := h.store.CreditTickets(ctx, ref, o.UserID, count)
	if err != nil {
		return "", fmt.Errorf("credit tickets: %w", err)
	}
	if !applied {
		log.Info("duplicate event")
		return statusDuplicate, nil
	}
	log.Info("tickets credited", "price_id", priceID, "count", count, "balance", balance)
	return statusProcessed, nil
}

func (h *WebhookHandler) endSubscription(ctx context.Context, log *slog.Logger, ref model.EventRef, o reconcile.SubscriptionEnded) (string, error) {
	log = log.With("customer_id", o.CustomerID, "subscription_id", o.SubscriptionID)

	// A deletion can arrive after the customer has already resubscribed.
	active, err := h.provider.HasActiveSubscription(ctx, o.CustomerID)
	if err != nil {
		return "", fmt.Errorf("check active subscriptions: %w", err)
	}
	if active {
		log.Info("customer still has an active subscription, premium kept")
		return statusIgnored, nil
	}

	applied, err := h.store.RevokePremiumByCustomer(ctx, ref, o.CustomerID)
	if err != nil {
		return "", fmt.Errorf("revoke premium: %w", err)
	}
	if !applied {
		log.Info("duplicate event")
		return statusDuplicate, nil
	}
	log.Info("premium revoked")
	return statusProcessed, nil
}
