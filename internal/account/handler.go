package account

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lumichess/account-service/internal/federation"
	"github.com/lumichess/account-service/internal/token"
)

// Handler exposes HTTP endpoints for account lifecycle operations.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRequest request body for the register endpoint.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Username  string `json:"username"`
	BirthDate string `json:"birthDate"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	a, tok, err := h.svc.Register(r.Context(), RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Username:  req.Username,
		BirthDate: req.BirthDate,
	})
	if err != nil {
		h.logger.Debugw("register failed", "err", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"message": "account created",
		"user":    a.PublicProfile(),
		"token":   tok,
	})
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	a, tok, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Debugw("login failed", "err", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"message": "login successful",
		"user":    a.PublicProfile(),
		"token":   tok,
	})
}

// GoogleAuthRequest carries the raw Google credential (id token or access
// token).
type GoogleAuthRequest struct {
	Credential string `json:"credential"`
}

func (h *Handler) GoogleAuth(w http.ResponseWriter, r *http.Request) {
	var req GoogleAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Credential == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "google credential required"})
		return
	}
	res, err := h.svc.FederatedAuth(r.Context(), req.Credential)
	if err != nil {
		h.logger.Debugw("google auth failed", "err", err)
		h.writeError(w, err)
		return
	}
	if res.Existing {
		h.writeJSON(w, http.StatusOK, map[string]any{
			"message":        "login successful",
			"user":           res.Account.PublicProfile(),
			"token":          res.Token,
			"isExistingUser": true,
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"message": "please complete registration",
		"googleData": map[string]string{
			"googleId":  res.Identity.ProviderID,
			"email":     res.Identity.Email,
			"firstname": res.Identity.Firstname,
			"lastname":  res.Identity.Lastname,
		},
		"isExistingUser": false,
	})
}

// GoogleRegisterRequest completes a federated registration.
type GoogleRegisterRequest struct {
	GoogleID  string `json:"googleId"`
	Email     string `json:"email"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	BirthDate string `json:"birthDate"`
}

func (h *Handler) GoogleRegister(w http.ResponseWriter, r *http.Request) {
	var req GoogleRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	a, tok, err := h.svc.FederatedRegister(r.Context(), FederatedRegisterInput{
		GoogleID:  req.GoogleID,
		Email:     req.Email,
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Username:  req.Username,
		Password:  req.Password,
		BirthDate: req.BirthDate,
	})
	if err != nil {
		h.logger.Debugw("google register failed", "err", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"message": "account created",
		"user":    a.PublicProfile(),
		"token":   tok,
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims := token.ClaimsFromContext(r.Context())
	a, err := h.svc.GetSelf(r.Context(), claims.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"user": a.PublicProfile()})
}

// UpdateRequest partial profile update; currentPassword is always required.
type UpdateRequest struct {
	CurrentPassword string `json:"currentPassword"`
	Email           string `json:"email"`
	Firstname       string `json:"firstname"`
	Lastname        string `json:"lastname"`
	Username        string `json:"username"`
	NewPassword     string `json:"newPassword"`
	BirthDate       string `json:"birthDate"`
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	claims := token.ClaimsFromContext(r.Context())
	a, tok, err := h.svc.Update(r.Context(), claims.UserID, UpdateInput{
		CurrentPassword: req.CurrentPassword,
		Email:           req.Email,
		Firstname:       req.Firstname,
		Lastname:        req.Lastname,
		Username:        req.Username,
		NewPassword:     req.NewPassword,
		BirthDate:       req.BirthDate,
	})
	if err != nil {
		h.logger.Debugw("update failed", "user_id", claims.UserID, "err", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"message": "profile updated",
		"user":    a.PublicProfile(),
		"token":   tok,
	})
}

// DeleteRequest requires the current password to confirm deletion.
type DeleteRequest struct {
	Password string `json:"password"`
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "password required"})
		return
	}
	claims := token.ClaimsFromContext(r.Context())
	if err := h.svc.Delete(r.Context(), claims.UserID, req.Password); err != nil {
		h.logger.Debugw("delete failed", "user_id", claims.UserID, "err", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "account deleted"})
}

// writeError maps service errors to status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrEmailTaken),
		errors.Is(err, ErrUsernameTaken),
		errors.Is(err, ErrNothingToUpdate),
		errors.Is(err, ErrMissingFederatedData),
		errors.Is(err, ErrUsernameTooShort),
		errors.Is(err, ErrBirthDateRequired),
		errors.Is(err, ErrInvalidBirthDate):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrBadCredentials), errors.Is(err, federation.ErrInvalidCredential):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		h.logger.Errorw("account operation failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
