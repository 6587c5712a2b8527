package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ErlanBelekov/fallah-auth/internal/domain"
	"github.com/ErlanBelekov/fallah-auth/internal/phone"
)

type verificationLister interface {
	List(ctx context.Context) ([]domain.PendingVerification, error)
}

// VerificationsHandler lists pending verifications for local debugging.
// Phone numbers are masked and codes are never included. It is mounted on
// the internal metrics server, which has no gin engine.
type VerificationsHandler struct {
	store  verificationLister
	logger *slog.Logger
	now    func() time.Time
}

func NewVerificationsHandler(store verificationLister, logger *slog.Logger) *VerificationsHandler {
	return &VerificationsHandler{
		store:  store,
		logger: logger.With("component", "debug_handler"),
		now:    time.Now,
	}
}

type pendingVerificationResponse struct {
	PhoneNumber string    `json:"phoneNumber"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Attempts    int       `json:"attempts"`
	Expired     bool      `json:"expired"`
}

func (h *VerificationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	pending, err := h.store.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list verifications", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": errInternalServer})
		return
	}

	now := h.now()
	out := make([]pendingVerificationResponse, 0, len(pending))
	for i := range pending {
		p := &pending[i]
		out = append(out, pendingVerificationResponse{
			PhoneNumber: phone.Mask(p.PhoneNumber),
			ExpiresAt:   p.ExpiresAt,
			Attempts:    p.Attempts,
			Expired:     p.Expired(now),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"verifications": out, "count": len(out)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
