package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"recordkeeper-auth/internal/keys"
	"recordkeeper-auth/internal/service"
	"recordkeeper-auth/internal/token"
	"recordkeeper-auth/internal/util"
)

type contextKey string

const claimsContextKey contextKey = "authClaims"

// AuthHandler exposes the authentication flows over HTTP.
type AuthHandler struct {
	authService *service.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	PublicKey string `json:"public_key"`
}

type challengeRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email     string   `json:"email"`
	Signature string   `json:"signature"`
	Biometric *float64 `json:"biometric,omitempty"`
}

type passwordLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// RegisterRoutes mounts the auth endpoints.
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login/challenge", h.RequestChallenge)
		r.Post("/login/verify", h.VerifyChallenge)
		r.Post("/login/password", h.LoginWithPassword)
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)
		r.Post("/password/forgot", h.ForgotPassword)
		r.Post("/password/reset", h.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.Get("/sessions", h.ListSessions)
		})
	})
}

// Register handles identity creation.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" || req.PublicKey == "" {
		h.respondWithError(w, http.StatusBadRequest,
			errors.New("email, password and public_key are required"), "Missing required fields")
		return
	}

	profile, err := h.authService.Register(ctx, req.FirstName, req.LastName,
		req.Email, req.Password, req.PublicKey, h.clientContext(r))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Registration failed")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(profile, "Identity registered successfully"))
	h.logger.Info("Identity registered via HTTP",
		util.String("identity_id", profile.ID),
		util.Duration("duration", time.Since(startTime)),
	)
}

// RequestChallenge issues a login nonce.
func (h *AuthHandler) RequestChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	challenge, err := h.authService.RequestChallenge(ctx, req.Email)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to issue challenge")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(
		map[string]string{"challenge": challenge}, "Challenge issued"))
}

// VerifyChallenge completes a challenge/response login.
func (h *AuthHandler) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.authService.VerifyChallenge(ctx, req.Email, req.Signature,
		req.Biometric, h.clientContext(r))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Login failed")
		return
	}

	h.respondLoginResult(w, result)
}

// LoginWithPassword completes a password login.
func (h *AuthHandler) LoginWithPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req passwordLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.authService.LoginWithPassword(ctx, req.Email, req.Password, h.clientContext(r))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Login failed")
		return
	}

	h.respondLoginResult(w, result)
}

// Refresh rotates a bearer token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokenString, ok := bearerToken(r)
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized,
			errors.New("missing bearer token"), "Authorization required")
		return
	}

	result, err := h.authService.Refresh(ctx, tokenString, h.clientContext(r))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Refresh failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Token refreshed"))
}

// Logout retires the caller's session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokenString, ok := bearerToken(r)
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized,
			errors.New("missing bearer token"), "Authorization required")
		return
	}

	if err := h.authService.Logout(ctx, tokenString, h.clientContext(r)); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Logout failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Logged out"))
}

// ForgotPassword starts a password reset. The response does not reveal
// whether the email is registered.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if _, err := h.authService.ForgotPassword(ctx, req.Email); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to process request")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil,
		"If that email is registered, a reset link has been sent"))
}

// ResetPassword completes a password reset.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.authService.ResetPassword(ctx, req.Token, req.NewPassword, h.clientContext(r)); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Password reset failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Password updated"))
}

// ListSessions returns the caller's active sessions.
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized,
			errors.New("missing authentication context"), "Authorization required")
		return
	}

	sessions, err := h.authService.ListSessions(ctx, claims.IdentityID)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to list sessions")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(sessions, "Active sessions"))
}

// RequireAuth validates the bearer token and attaches its claims to the
// request context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			h.respondWithError(w, http.StatusUnauthorized,
				errors.New("missing bearer token"), "Authorization required")
			return
		}

		claims, err := h.authService.Authorize(r.Context(), tokenString)
		if err != nil {
			h.respondWithError(w, http.StatusUnauthorized, err, "Authorization failed")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext extracts the verified claims set by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*token.Claims)
	return claims, ok
}

func (h *AuthHandler) respondLoginResult(w http.ResponseWriter, result *service.LoginResult) {
	if result.MFARequired {
		h.respondWithJSON(w, http.StatusForbidden, Response{
			Success: false,
			Data:    result,
			Message: "Additional verification required",
		})
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Login successful"))
}

func (h *AuthHandler) clientContext(r *http.Request) service.ClientContext {
	return service.ClientContext{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func clientIP(r *http.Request) string {
	// RealIP middleware rewrites RemoteAddr from forwarding headers;
	// direct connections still carry a port.
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode maps service errors to HTTP status codes.
func (h *AuthHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrIdentityNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrIdentityExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrChallengeExpired),
		errors.Is(err, service.ErrInvalidSignature),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, service.ErrSessionNotActive):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, keys.ErrInvalidKeyFormat),
		errors.Is(err, service.ErrResetTokenInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
