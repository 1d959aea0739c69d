package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mpaterson/bulwark/internal/auth"
	"github.com/mpaterson/bulwark/internal/models"
	"github.com/mpaterson/bulwark/internal/services"
	pkghttp "github.com/mpaterson/bulwark/pkg/http"
)

// LoginAttempter defines the interface for the login engine
type LoginAttempter interface {
	Attempt(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
}

// AuthHandler handles login HTTP requests
type AuthHandler struct {
	service  LoginAttempter
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service LoginAttempter, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username          string `json:"username" validate:"required,max=255"`
	Password          string `json:"password" validate:"required,max=1024"`
	ChallengeResponse string `json:"challenge_response,omitempty" validate:"max=64"`
	SecondFactorCode  string `json:"second_factor_code,omitempty" validate:"max=64"`
}

// LoginResponse is the success body
type LoginResponse struct {
	Success bool         `json:"success"`
	Token   string       `json:"token"`
	Profile LoginProfile `json:"profile"`
}

// LoginProfile describes the authenticated account
type LoginProfile struct {
	Username      string `json:"username"`
	StrengthLabel string `json:"strength_label"`
}

// ChallengePayload carries the challenge the client must solve next
type ChallengePayload struct {
	Code      string `json:"code"`
	Image     string `json:"image,omitempty"` // PNG data URL
	ExpiresAt string `json:"expires_at"`
}

// RefusalResponse is the body for every refused attempt
type RefusalResponse struct {
	Error                string            `json:"error"`
	Message              string            `json:"message"`
	LockMinutesRemaining int               `json:"lock_minutes_remaining,omitempty"`
	RetryAfterSeconds    int               `json:"retry_after_seconds,omitempty"`
	Challenge            *ChallengePayload `json:"challenge,omitempty"`
	EnrollmentSecret     string            `json:"enrollment_secret,omitempty"`
	EnrollmentURL        string            `json:"enrollment_url,omitempty"`
}

// Login handles a login attempt
// @Summary Attempt login through the protection engine
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} RefusalResponse
// @Failure 403 {object} RefusalResponse
// @Failure 423 {object} RefusalResponse
// @Failure 429 {object} RefusalResponse
// @Router /api/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	sourceAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	result, err := h.service.Attempt(r.Context(), services.LoginRequest{
		Username:          req.Username,
		Password:          req.Password,
		ChallengeResponse: req.ChallengeResponse,
		SecondFactorCode:  req.SecondFactorCode,
		SourceAddress:     sourceAddress,
	})
	if err != nil {
		h.writeRefusal(w, result, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(LoginResponse{
		Success: true,
		Token:   result.Token,
		Profile: LoginProfile{
			Username:      result.Username,
			StrengthLabel: result.StrengthLabel,
		},
	})
}

// writeRefusal maps a refusal to its status code and body. The engine's hint
// fields ride along so clients know what the next attempt needs.
func (h *AuthHandler) writeRefusal(w http.ResponseWriter, result *services.LoginResult, err error) {
	resp := RefusalResponse{Message: "Authentication failed"}
	status := http.StatusUnauthorized

	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		resp.Error = "invalid_credentials"

	case errors.Is(err, models.ErrAccountLocked):
		status = http.StatusLocked
		resp.Error = "account_locked"
		resp.Message = "Account temporarily locked"
		resp.LockMinutesRemaining = result.LockMinutesRemaining

	case errors.Is(err, models.ErrChallengeRequired), errors.Is(err, models.ErrChallengeInvalid):
		status = http.StatusForbidden
		resp.Error = "challenge_required"
		resp.Message = "Solve the challenge and retry"
		if errors.Is(err, models.ErrChallengeInvalid) {
			resp.Error = "challenge_invalid"
			resp.Message = "Challenge response incorrect; a new challenge was issued"
		}
		resp.Challenge = buildChallengePayload(result)

	case errors.Is(err, models.ErrSecondFactorRequired):
		status = http.StatusForbidden
		resp.Error = "second_factor_required"
		resp.Message = "Second factor code required"
		resp.EnrollmentSecret = result.EnrollmentSecret
		resp.EnrollmentURL = result.ProvisioningURL

	case errors.Is(err, models.ErrSecondFactorInvalid):
		status = http.StatusForbidden
		resp.Error = "second_factor_invalid"
		resp.Message = "Second factor code incorrect"

	case errors.Is(err, models.ErrRateLimited):
		status = http.StatusTooManyRequests
		resp.Error = "rate_limited"
		resp.Message = "Too many attempts. Please try again later."
		resp.RetryAfterSeconds = result.RetryAfterSeconds
		w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfterSeconds))

	default:
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func buildChallengePayload(result *services.LoginResult) *ChallengePayload {
	if result == nil || result.ChallengeCode == "" {
		return nil
	}

	payload := &ChallengePayload{
		Code:      result.ChallengeCode,
		ExpiresAt: result.ChallengeExpiresAt.UTC().Format(time.RFC3339),
	}

	// Image rendering is best-effort; the code alone is enough to answer.
	if img, err := auth.ChallengeImageDataURL(result.ChallengeCode); err == nil {
		payload.Image = img
	}

	return payload
}
