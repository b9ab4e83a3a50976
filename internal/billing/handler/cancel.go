package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/ai-consultation/billing/internal/billing/model"
	billingstripe "github.com/ai-consultation/billing/internal/billing/stripe"
)

type CancelProvider interface {
	CancelActiveSubscription(ctx context.Context, customerID string) (*billingstripe.Cancellation, error)
}

type CancelStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	SetPremium(ctx context.Context, id string, premium bool) error
}

type CancelHandler struct {
	provider          CancelProvider
	store             CancelStore
	revokeImmediately bool
	validate          *validator.Validate
	logger            *slog.Logger
}

// NewCancelHandler builds the cancellation handler. With revokeImmediately the
// premium flag is cleared as soon as cancellation is scheduled; otherwise it
// stays until the provider reports the subscription deleted.
func NewCancelHandler(p CancelProvider, s CancelStore, revokeImmediately bool, logger *slog.Logger) *CancelHandler {
	return &CancelHandler{
		provider:          p,
		store:             s,
		revokeImmediately: revokeImmediately,
		validate:          newValidator(),
		logger:            logger,
	}
}

type cancelRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
}

type cancelResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	CancelAt *int64 `json:"cancel_at"`
}

// CancelSubscription schedules the user's active subscription to end at the
// close of the billing period.
func (h *CancelHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if caller := UserIDFromContext(r.Context()); caller != "" && caller != req.UserID {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	log := h.logger.With("user_id", req.UserID)

	user, err := h.store.GetByID(r.Context(), req.UserID)
	if err != nil {
		log.Error("get user", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}
	if user == nil || user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		writeError(w, http.StatusNotFound, "Customer not found")
		return
	}

	c, err := h.provider.CancelActiveSubscription(r.Context(), *user.StripeCustomerID)
	if errors.Is(err, billingstripe.ErrNoActiveSubscription) {
		writeError(w, http.StatusNotFound, "No active subscription found")
		return
	}
	if err != nil {
		log.Error("cancel subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to cancel subscription")
		return
	}

	if h.revokeImmediately {
		if err := h.store.SetPremium(r.Context(), req.UserID, false); err != nil {
			log.Error("revoke premium after cancel", "subscription_id", c.SubscriptionID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to update user status")
			return
		}
	}

	log.Info("subscription cancellation scheduled",
		"subscription_id", c.SubscriptionID,
		"cancel_at", c.CancelAt,
		"premium_revoked", h.revokeImmediately,
	)

	resp := cancelResponse{
		Success: true,
		Message: "Subscription will be cancelled at the end of the current period",
	}
	if !c.CancelAt.IsZero() {
		at := c.CancelAt.Unix()
		resp.CancelAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}
