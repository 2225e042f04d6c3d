package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mzaikin/dbportal/internal/api/http/middleware"
	"github.com/mzaikin/dbportal/internal/api/http/response"
	"github.com/mzaikin/dbportal/internal/logger"
	"github.com/mzaikin/dbportal/internal/model"
	"github.com/mzaikin/dbportal/internal/service"
)

// VaultService defines the stage-two gate operations.
type VaultService interface {
	Check(ctx context.Context, session model.Session, client service.Client) (service.Status, error)
	Unlock(ctx context.Context, session model.Session, password string, client service.Client) (service.Status, error)
}

// Vault handles the re-authentication gate endpoints.
type Vault struct {
	vaultService VaultService
	ctxMgr       middleware.ContextManager
	logger       *logger.Logger
}

// NewVault creates a new Vault handler.
func NewVault(vaultService VaultService, ctxMgr middleware.ContextManager, logger *logger.Logger) *Vault {
	return &Vault{
		vaultService: vaultService,
		ctxMgr:       ctxMgr,
		logger:       logger,
	}
}

type unlockRequest struct {
	Password string `json:"password"`
}

type vaultStatusResponse struct {
	Unlocked         bool `json:"unlocked"`
	ExpiresInSeconds int  `json:"expires_in_seconds"`
}

// Unlock grants time-boxed portal access after re-authentication with the
// account password.
func (h *Vault) Unlock(w http.ResponseWriter, r *http.Request) {
	session, ok := h.ctxMgr.GetSessionFromContext(r.Context())
	if !ok {
		response.WriteError(w, model.ErrInvalidCredentials)
		return
	}

	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSON(w, http.StatusBadRequest, response.Error{Errors: []string{"malformed request body"}})
		return
	}
	if req.Password == "" {
		response.WriteJSON(w, http.StatusBadRequest, response.Error{Errors: []string{"password is required"}})
		return
	}

	status, err := h.vaultService.Unlock(r.Context(), session, req.Password, middleware.ClientFromRequest(r))
	if err != nil {
		response.WriteError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, vaultStatusResponse{
		Unlocked:         status.Unlocked,
		ExpiresInSeconds: int(status.ExpiresIn.Seconds()),
	})
}

type portalResponse struct {
	TenantDB         string `json:"tenant_db"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

// Portal serves the gated resource view. A locked gate is reported as
// locked, never as missing, so clients can distinguish re-authentication
// from authentication.
func (h *Vault) Portal(w http.ResponseWriter, r *http.Request) {
	session, ok := h.ctxMgr.GetSessionFromContext(r.Context())
	if !ok {
		response.WriteError(w, model.ErrInvalidCredentials)
		return
	}

	status, err := h.vaultService.Check(r.Context(), session, middleware.ClientFromRequest(r))
	if err != nil {
		response.WriteError(w, err)
		return
	}
	if !status.Unlocked {
		response.WriteError(w, model.ErrVaultLocked)
		return
	}

	var tenantDB string
	if session.UserID != nil {
		tenantDB = model.TenantDBName(*session.UserID)
	}

	response.WriteJSON(w, http.StatusOK, portalResponse{
		TenantDB:         tenantDB,
		ExpiresInSeconds: int(status.ExpiresIn.Seconds()),
	})
}
