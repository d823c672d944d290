package verification

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lumichess/account-service/internal/account"
	"github.com/lumichess/account-service/internal/token"
)

// Handler exposes HTTP endpoints for the one-time-code flows.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) SendVerification(w http.ResponseWriter, r *http.Request) {
	claims := token.ClaimsFromContext(r.Context())
	if err := h.svc.SendVerification(r.Context(), claims.UserID); err != nil {
		h.logger.Debugw("send verification failed", "user_id", claims.UserID, "err", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "code sent"})
}

// VerifyEmailRequest carries the 6-digit code.
type VerifyEmailRequest struct {
	Code string `json:"code"`
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	claims := token.ClaimsFromContext(r.Context())
	a, tok, err := h.svc.VerifyEmail(r.Context(), claims.UserID, req.Code)
	if err != nil {
		h.logger.Debugw("verify email failed", "user_id", claims.UserID, "err", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"message": "email verified",
		"user":    a.PublicProfile(),
		"token":   tok,
	})
}

// ForgotPasswordRequest starts the reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email required"})
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		h.logger.Errorw("forgot password failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
		return
	}
	// same reply whether or not the email exists
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "if that email exists, a code has been sent"})
}

// VerifyResetCodeRequest checks a reset code without consuming it.
type VerifyResetCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *Handler) VerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyResetCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if err := h.svc.VerifyResetCode(r.Context(), req.Email, req.Code); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"message": "code verified", "valid": true})
}

// ResetPasswordRequest consumes a reset code and sets a new password.
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if req.Email == "" || req.Code == "" || req.NewPassword == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "all fields required"})
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		h.logger.Debugw("reset password failed", "err", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "password reset"})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAlreadyVerified),
		errors.Is(err, ErrMalformedCode),
		errors.Is(err, ErrInvalidCode),
		errors.Is(err, account.ErrWeakPassword):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, account.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrDeliveryFailed):
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		h.logger.Errorw("verification operation failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
