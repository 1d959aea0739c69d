package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpaterson/bulwark/internal/models"
	"github.com/mpaterson/bulwark/internal/services"
)

type mockLoginService struct {
	AttemptFunc func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
}

func (m *mockLoginService) Attempt(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
	return m.AttemptFunc(ctx, req)
}

func postLogin(t *testing.T, h *AuthHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/login", bytes.NewBufferString(body))
	req.RemoteAddr = "10.0.0.1:54321"
	recorder := httptest.NewRecorder()
	h.Login(recorder, req)
	return recorder
}

func decodeRefusal(t *testing.T, rec *httptest.ResponseRecorder) RefusalResponse {
	t.Helper()
	var resp RefusalResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestLogin_Success(t *testing.T) {
	svc := &mockLoginService{
		AttemptFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
			assert.Equal(t, "alice", req.Username)
			assert.Equal(t, "hunter2", req.Password)
			assert.Equal(t, "10.0.0.1", req.SourceAddress)
			return &services.LoginResult{
				Token:         "jwt-token",
				Username:      "alice",
				StrengthLabel: "medium",
			}, nil
		},
	}
	h := NewAuthHandler(svc, nil)

	rec := postLogin(t, h, `{"username":"alice","password":"hunter2"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "jwt-token", resp.Token)
	assert.Equal(t, "alice", resp.Profile.Username)
	assert.Equal(t, "medium", resp.Profile.StrengthLabel)
}

func TestLogin_InvalidBody(t *testing.T) {
	h := NewAuthHandler(&mockLoginService{}, nil)

	rec := postLogin(t, h, `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_MissingFields(t *testing.T) {
	h := NewAuthHandler(&mockLoginService{}, nil)

	rec := postLogin(t, h, `{"username":"alice"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &mockLoginService{
		AttemptFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
			return &services.LoginResult{}, models.ErrInvalidCredentials
		},
	}
	h := NewAuthHandler(svc, nil)

	rec := postLogin(t, h, `{"username":"alice","password":"nope"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", decodeRefusal(t, rec).Error)
}

func TestLogin_AccountLocked(t *testing.T) {
	svc := &mockLoginService{
		AttemptFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
			return &services.LoginResult{LockMinutesRemaining: 3}, models.ErrAccountLocked
		},
	}
	h := NewAuthHandler(svc, nil)

	rec := postLogin(t, h, `{"username":"alice","password":"hunter2"}`)

	assert.Equal(t, http.StatusLocked, rec.Code)
	resp := decodeRefusal(t, rec)
	assert.Equal(t, "account_locked", resp.Error)
	assert.Equal(t, 3, resp.LockMinutesRemaining)
}

func TestLogin_ChallengeRequired(t *testing.T) {
	expires := time.Date(2026, 8, 1, 12, 5, 0, 0, time.UTC)
	svc := &mockLoginService{
		AttemptFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
			return &services.LoginResult{
				ChallengeCode:      "K7M2P",
				ChallengeExpiresAt: expires,
			}, models.ErrChallengeRequired
		},
	}
	h := NewAuthHandler(svc, nil)

	rec := postLogin(t, h, `{"username":"alice","password":"hunter2"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	resp := decodeRefusal(t, rec)
	assert.Equal(t, "challenge_required", resp.Error)
	require.NotNil(t, resp.Challenge)
	assert.Equal(t, "K7M2P", resp.Challenge.Code)
	assert.Equal(t, "2026-08-01T12:05:00Z", resp.Challenge.ExpiresAt)
	assert.True(t, strings.HasPrefix(resp.Challenge.Image, "data:image/png;base64,"))
}

func TestLogin_ChallengeInvalidCarriesFreshChallenge(t *testing.T) {
	svc := &mockLoginService{
		AttemptFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
			return &services.LoginResult{
				ChallengeCode:      "W9XYZ",
				ChallengeExpiresAt: time.Now().Add(5 * time.Minute),
			}, models.ErrChallengeInvalid
		},
	}
	h := NewAuthHandler(svc, nil)

	rec := postLogin(t, h, `{"username":"alice","password":"hunter2","challenge_response":"BAD"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	resp := decodeRefusal(t, rec)
	assert.Equal(t, "challenge_invalid", resp.Error)
	require.NotNil(t, resp.Challenge)
	assert.Equal(t, "W9XYZ", resp.Challenge.Code)
}

func TestLogin_SecondFactorRequired(t *testing.T) {
	svc := &mockLoginService{
		AttemptFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
			return &services.LoginResult{EnrollmentSecret: "123456"}, models.ErrSecondFactorRequired
		},
	}
	h := NewAuthHandler(svc, nil)

	rec := postLogin(t, h, `{"username":"alice","password":"hunter2"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	resp := decodeRefusal(t, rec)
	assert.Equal(t, "second_factor_required", resp.Error)
	assert.Equal(t, "123456", resp.EnrollmentSecret)
}

func TestLogin_SecondFactorInvalid(t *testing.T) {
	svc := &mockLoginService{
		AttemptFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
			return &services.LoginResult{}, models.ErrSecondFactorInvalid
		},
	}
	h := NewAuthHandler(svc, nil)

	rec := postLogin(t, h, `{"username":"alice","password":"hunter2","second_factor_code":"000000"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "second_factor_invalid", decodeRefusal(t, rec).Error)
}

func TestLogin_RateLimited(t *testing.T) {
	svc := &mockLoginService{
		AttemptFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
			return &services.LoginResult{RetryAfterSeconds: 40}, models.ErrRateLimited
		},
	}
	h := NewAuthHandler(svc, nil)

	rec := postLogin(t, h, `{"username":"alice","password":"hunter2"}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "40", rec.Header().Get("Retry-After"))
	resp := decodeRefusal(t, rec)
	assert.Equal(t, "rate_limited", resp.Error)
	assert.Equal(t, 40, resp.RetryAfterSeconds)
}

func TestLogin_InternalError(t *testing.T) {
	svc := &mockLoginService{
		AttemptFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
			return &services.LoginResult{}, models.ErrInternalServer
		},
	}
	h := NewAuthHandler(svc, nil)

	rec := postLogin(t, h, `{"username":"alice","password":"hunter2"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
