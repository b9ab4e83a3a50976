package handler

import (
	"context"
	"log/slog"
	"net/http"
)

type AccountStore interface {
	DeleteAccountData(ctx context.Context, userID string) error
}

// AuthAdmin removes users from the identity provider.
type AuthAdmin interface {
	DeleteUser(ctx context.Context, userID string) error
}

type AccountHandler struct {
	store  AccountStore
	admin  AuthAdmin
	logger *slog.Logger
}

func NewAccountHandler(s AccountStore, admin AuthAdmin, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		store:  s,
		admin:  admin,
		logger: logger,
	}
}

// DeleteAccount removes the caller's data and then their auth identity. It
// must sit behind authentication; the user is taken from the context only.
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	log := h.logger.With("user_id", userID)

	if err := h.store.DeleteAccountData(r.Context(), userID); err != nil {
		log.Error("delete account data", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete account")
		return
	}
	if err := h.admin.DeleteUser(r.Context(), userID); err != nil {
		log.Error("delete auth user", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete account")
		return
	}

	log.Info("account deleted")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Account deleted"})
}
