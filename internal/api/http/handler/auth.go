package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mzaikin/dbportal/internal/api/http/middleware"
	"github.com/mzaikin/dbportal/internal/api/http/response"
	"github.com/mzaikin/dbportal/internal/logger"
	"github.com/mzaikin/dbportal/internal/model"
	"github.com/mzaikin/dbportal/internal/service"
)

// AuthService defines registration, login and session operations.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput, client service.Client) (service.RegisterResult, error)
	Login(ctx context.Context, session model.Session, in service.LoginInput, client service.Client) (model.Session, model.User, error)
	Logout(ctx context.Context, session model.Session, client service.Client) error
	EnsureSession(ctx context.Context, client service.Client) (model.Session, error)
}

// Auth handles the identity endpoints.
type Auth struct {
	authService  AuthService
	ctxMgr       middleware.ContextManager
	secureCookie bool
	logger       *logger.Logger
}

// NewAuth creates a new Auth handler.
func NewAuth(authService AuthService, ctxMgr middleware.ContextManager, secureCookie bool, logger *logger.Logger) *Auth {
	return &Auth{
		authService:  authService,
		ctxMgr:       ctxMgr,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	TenantLabel string `json:"tenant_label"`
	Phone       string `json:"phone"`
}

type registerResponse struct {
	Success  bool   `json:"success"`
	UserID   string `json:"user_id"`
	TenantDB string `json:"tenant_db"`
}

// Register creates an account and its tenant database.
func (h *Auth) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSON(w, http.StatusBadRequest, response.Error{Errors: []string{"malformed request body"}})
		return
	}

	result, err := h.authService.Register(r.Context(), service.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		TenantLabel: req.TenantLabel,
		Phone:       req.Phone,
	}, middleware.ClientFromRequest(r))
	if err != nil {
		response.WriteError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, registerResponse{
		Success:  true,
		UserID:   result.UserID.String(),
		TenantDB: result.TenantDB,
	})
}

type csrfResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// CSRF guarantees the caller a session and returns its CSRF token. The
// session may be anonymous; login consumes it.
func (h *Auth) CSRF(w http.ResponseWriter, r *http.Request) {
	if session, ok := h.ctxMgr.GetSessionFromContext(r.Context()); ok {
		response.WriteJSON(w, http.StatusOK, csrfResponse{CSRFToken: session.CSRFToken})
		return
	}

	session, err := h.authService.EnsureSession(r.Context(), middleware.ClientFromRequest(r))
	if err != nil {
		response.WriteError(w, err)
		return
	}

	h.setSessionCookie(w, session.ID)
	response.WriteJSON(w, http.StatusOK, csrfResponse{CSRFToken: session.CSRFToken})
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	CSRFToken  string `json:"csrf_token"`
}

type loginResponse struct {
	Success   bool   `json:"success"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	TenantDB  string `json:"tenant_db"`
	CSRFToken string `json:"csrf_token"`
}

// Login performs the stage-one gate and rotates the session cookie.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	session, ok := h.ctxMgr.GetSessionFromContext(r.Context())
	if !ok {
		response.WriteError(w, model.ErrInvalidRequest)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSON(w, http.StatusBadRequest, response.Error{Errors: []string{"malformed request body"}})
		return
	}
	if len(req.Identifier) == 0 || len(req.Identifier) > 255 || len(req.Password) == 0 || len(req.Password) > 255 {
		response.WriteJSON(w, http.StatusBadRequest, response.Error{Errors: []string{"identifier and password are required"}})
		return
	}

	rotated, user, err := h.authService.Login(r.Context(), session, service.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
		CSRFToken:  req.CSRFToken,
	}, middleware.ClientFromRequest(r))
	if err != nil {
		response.WriteError(w, err)
		return
	}

	h.setSessionCookie(w, rotated.ID)
	response.WriteJSON(w, http.StatusOK, loginResponse{
		Success:   true,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		TenantDB:  user.TenantDB,
		CSRFToken: rotated.CSRFToken,
	})
}

// Logout deletes the acting session and clears the cookie.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.ctxMgr.GetSessionFromContext(r.Context())

	if err := h.authService.Logout(r.Context(), session, middleware.ClientFromRequest(r)); err != nil {
		response.WriteError(w, err)
		return
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type sessionResponse struct {
	Authenticated  bool   `json:"authenticated"`
	CSRFToken      string `json:"csrf_token"`
	VaultUnlocked  bool   `json:"vault_unlocked"`
	VaultExpiresIn int    `json:"vault_expires_in_seconds"`
}

// Session reports the caller's current session state.
func (h *Auth) Session(vaultTTL time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := h.ctxMgr.GetSessionFromContext(r.Context())

		now := time.Now()
		response.WriteJSON(w, http.StatusOK, sessionResponse{
			Authenticated:  session.Authenticated(),
			CSRFToken:      session.CSRFToken,
			VaultUnlocked:  session.VaultUnlocked(vaultTTL, now),
			VaultExpiresIn: int(session.VaultRemaining(vaultTTL, now).Seconds()),
		})
	}
}

func (h *Auth) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Auth) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}
