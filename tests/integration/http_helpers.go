package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mpaterson/bulwark/internal/auth"
	"github.com/mpaterson/bulwark/internal/database"
	"github.com/mpaterson/bulwark/internal/handlers"
	middlewareCustom "github.com/mpaterson/bulwark/internal/middleware"
	"github.com/mpaterson/bulwark/internal/models"
	"github.com/mpaterson/bulwark/internal/protection"
	"github.com/mpaterson/bulwark/internal/repositories"
	"github.com/mpaterson/bulwark/internal/routes"
	"github.com/mpaterson/bulwark/internal/services"
	pkgauth "github.com/mpaterson/bulwark/pkg/auth"
	pkghttp "github.com/mpaterson/bulwark/pkg/http"
)

const testPepper = "integration-test-pepper"

// TestServer wraps httptest.Server with a real database and the full login stack
type TestServer struct {
	Server   *httptest.Server
	DB       *database.DB
	Verifier *pkgauth.Verifier
	logger   *slog.Logger
}

// NewTestServer wires the engine against a real database with the given protections active
func NewTestServer(db *database.DB, active models.ProtectionSet) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	accountRepo := repositories.NewAccountRepository(db)
	attemptLogRepo := repositories.NewAttemptLogRepository(db)

	auditService := services.NewAuditService(attemptLogRepo, nil, logger)

	limiter := protection.NewSlidingWindowLimiter(logger)
	lockoutGuard := protection.NewLockoutGuard(protection.LockoutConfig{
		MaxFailedAttempts: 5,
		LockoutDuration:   3 * time.Minute,
	}, logger)
	challengeStore := protection.NewMemoryChallengeStore()
	challengeIssuer := protection.NewChallengeIssuer(challengeStore, protection.ChallengeConfig{
		FailureThreshold: 3,
		CodeLength:       5,
		TTL:              5 * time.Minute,
	}, logger)
	secondFactor := protection.NewStaticCodeVerifier(logger)

	verifier := pkgauth.NewVerifier(testPepper)
	tokenManager := auth.NewTokenManager("test-secret-32-characters-long-for-testing", 24*time.Hour)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})

	loginService := services.NewLoginService(services.LoginServiceDeps{
		Repo:            accountRepo,
		Verifier:        verifier,
		TokenManager:    tokenManager,
		Audit:           auditService,
		Notifier:        services.NoopLockoutNotifier{},
		Timing:          timingDelay,
		ActiveSet:       active,
		Limiter:         limiter,
		Lockout:         lockoutGuard,
		Challenge:       challengeIssuer,
		SecondFactor:    secondFactor,
		Logger:          logger,
		RateLimitMax:    10,
		RateLimitWindow: 60 * time.Second,
	})

	ipConfig := &pkghttp.IPConfig{}
	authHandler := handlers.NewAuthHandler(loginService, ipConfig)
	statsHandler := handlers.NewStatsHandler(auditService)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// The transport-level limiter is left generous so flows exercise the
	// engine's own sliding-window limiter instead.
	routes.RegisterRoutes(r, authHandler, statsHandler, middlewareCustom.RateLimitConfig{
		RequestsPerMinute: 1000,
	})

	server := httptest.NewServer(r)

	return &TestServer{
		Server:   server,
		DB:       db,
		Verifier: verifier,
		logger:   logger,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Login posts a login request and returns the raw response
func (ts *TestServer) Login(body map[string]interface{}) (*http.Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, ts.Server.URL+"/api/login", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return http.DefaultClient.Do(req)
}

// ParseJSONResponse parses the JSON response body into target and closes the body
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// DrainAndClose discards the response body so connections can be reused
func DrainAndClose(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
