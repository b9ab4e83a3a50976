package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/ai-consultation/billing/internal/billing/reconcile"
)

type CheckoutProvider interface {
	CreateSubscriptionCheckout(ctx context.Context, userID string) (string, error)
	CreateTicketCheckout(ctx context.Context, userID, priceID string) (string, error)
}

type CheckoutHandler struct {
	provider CheckoutProvider
	validate *validator.Validate
	logger   *slog.Logger
}

func NewCheckoutHandler(p CheckoutProvider, prices reconcile.PriceTable, logger *slog.Logger) *CheckoutHandler {
	v := newValidator()
	if err := v.RegisterValidation("ticket_price", func(fl validator.FieldLevel) bool {
		return prices.Has(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return &CheckoutHandler{
		provider: p,
		validate: v,
		logger:   logger,
	}
}

type subscriptionCheckoutRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
}

type ticketCheckoutRequest struct {
	UserID  string `json:"userId" validate:"required,uuid"`
	PriceID string `json:"price_id" validate:"required,ticket_price"`
}

// CreateCheckoutSession starts a premium subscription checkout for userId.
func (h *CheckoutHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req subscriptionCheckoutRequest
	if !h.bind(w, r, &req, &req.UserID) {
		return
	}

	url, err := h.provider.CreateSubscriptionCheckout(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("create subscription checkout", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create checkout session")
		return
	}
	h.logger.Info("subscription checkout created", "user_id", req.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// CreateTicketCheckoutSession starts a one-off ticket bundle checkout.
func (h *CheckoutHandler) CreateTicketCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req ticketCheckoutRequest
	if !h.bind(w, r, &req, &req.UserID) {
		return
	}

	url, err := h.provider.CreateTicketCheckout(r.Context(), req.UserID, req.PriceID)
	if err != nil {
		h.logger.Error("create ticket checkout", "user_id", req.UserID, "price_id", req.PriceID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create checkout session")
		return
	}
	h.logger.Info("ticket checkout created", "user_id", req.UserID, "price_id", req.PriceID)
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// bind decodes and validates req, then checks that an authenticated caller
// only acts on their own user ID. It writes the error response itself.
func (h *CheckoutHandler) bind(w http.ResponseWriter, r *http.Request, req any, userID *string) bool {
	if err := decodeJSON(w, r, req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	if caller := UserIDFromContext(r.Context()); caller != "" && caller != *userID {
		writeError(w, http.StatusForbidden, "Forbidden")
		return false
	}
	return true
}
