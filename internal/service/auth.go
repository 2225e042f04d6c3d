package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mzaikin/dbportal/internal/logger"
	"github.com/mzaikin/dbportal/internal/model"
)

// Auth coordinates registration, login, logout and per-request session
// resolution.
type Auth struct {
	users             model.UserStore
	sessions          model.SessionStore
	provisioner       model.TenantProvisioner
	loginLimiter      *Limiter
	tokens            model.TokenManager
	audit             *Recorder
	inactivityTimeout time.Duration
	logger            *logger.Logger
}

func NewAuth(
	users model.UserStore,
	sessions model.SessionStore,
	provisioner model.TenantProvisioner,
	loginLimiter *Limiter,
	tokens model.TokenManager,
	audit *Recorder,
	inactivityTimeout time.Duration,
	logger *logger.Logger,
) *Auth {
	return &Auth{
		users:             users,
		sessions:          sessions,
		provisioner:       provisioner,
		loginLimiter:      loginLimiter,
		tokens:            tokens,
		audit:             audit,
		inactivityTimeout: inactivityTimeout,
		logger:            logger,
	}
}

// RegisterInput carries registration form fields.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	TenantLabel string
	Phone       string
}

// RegisterResult reports the created identity and its tenant database.
type RegisterResult struct {
	UserID   uuid.UUID
	TenantDB string
}

// LoginInput carries login form fields.
type LoginInput struct {
	Identifier string
	Password   string
	CSRFToken  string
}

var (
	emailPattern       = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	upperPattern       = regexp.MustCompile(`[A-Z]`)
	lowerPattern       = regexp.MustCompile(`[a-z]`)
	digitPattern       = regexp.MustCompile(`[0-9]`)
	tenantLabelPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// compareDummy is a valid bcrypt hash used to equalize verification cost
// when the identifier does not resolve to a user.
var compareDummy = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

func validateRegistration(in RegisterInput) *model.ValidationError {
	var fields []string

	if len(in.Username) < 3 || len(in.Username) > 50 {
		fields = append(fields, "username must be 3-50 characters long")
	}
	if !emailPattern.MatchString(in.Email) {
		fields = append(fields, "invalid email format")
	}
	if len(in.Password) < 8 ||
		!upperPattern.MatchString(in.Password) ||
		!lowerPattern.MatchString(in.Password) ||
		!digitPattern.MatchString(in.Password) {
		fields = append(fields, "password must be at least 8 characters with uppercase, lowercase, and number")
	}
	if in.FirstName == "" || in.LastName == "" {
		fields = append(fields, "first name and last name are required")
	}
	if in.TenantLabel != "" {
		if len(in.TenantLabel) < 3 || len(in.TenantLabel) > 50 || !tenantLabelPattern.MatchString(in.TenantLabel) {
			fields = append(fields, "database label must be 3-50 characters long and contain only letters, numbers, and underscores")
		}
	}

	if len(fields) > 0 {
		return &model.ValidationError{Fields: fields}
	}
	return nil
}

// Register validates the input, creates the user row and provisions the
// tenant database. A provisioning failure deletes the just-created row so
// no user exists without a usable tenant and no tenant outlives a rolled
// back user.
func (a *Auth) Register(ctx context.Context, in RegisterInput, client Client) (RegisterResult, error) {
	if verr := validateRegistration(in); verr != nil {
		return RegisterResult{}, verr
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	id := uuid.New()
	user := model.User{
		ID:           id,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		TenantLabel:  in.TenantLabel,
		Phone:        in.Phone,
		TenantDB:     model.TenantDBName(id),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	saved, err := a.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			return RegisterResult{}, model.ErrConflict
		}
		return RegisterResult{}, fmt.Errorf("failed to create user: %w", err)
	}

	// Tenant creation runs outside the user transaction: it is a distinct
	// resource. The compensation below is what keeps the pair consistent.
	if err := a.provisioner.Create(ctx, saved.ID); err != nil {
		a.logger.Error("tenant provisioning failed, rolling back user",
			"user_id", saved.ID,
			"error", err.Error())
		if delErr := a.users.Delete(ctx, saved.ID); delErr != nil {
			a.logger.Error("failed to delete user after provisioning failure",
				"user_id", saved.ID,
				"error", delErr.Error())
		}
		return RegisterResult{}, err
	}

	a.audit.Record(ctx, &saved.ID, model.AuditUserRegistered,
		fmt.Sprintf("user registered with database %s", saved.TenantDB), client)

	a.logger.Info("user registered",
		"user_id", saved.ID,
		"tenant_db", saved.TenantDB)

	return RegisterResult{UserID: saved.ID, TenantDB: saved.TenantDB}, nil
}

// Login performs the stage-one gate: limiter, CSRF, credential check,
// session rotation and tenant self-heal. The attempt is reserved against
// the limiter atomically before anything is evaluated and the counter
// resets on success, so of two concurrent attempts at the limit boundary
// exactly one reaches credential verification. Credential failures surface
// one generic error regardless of cause; the audit log keeps the detail.
func (a *Auth) Login(ctx context.Context, session model.Session, in LoginInput, client Client) (model.Session, model.User, error) {
	if _, err := a.loginLimiter.Reserve(ctx, client.IP); err != nil {
		return model.Session{}, model.User{}, err
	}

	if subtle.ConstantTimeCompare([]byte(session.CSRFToken), []byte(in.CSRFToken)) != 1 {
		a.audit.Record(ctx, nil, model.AuditLoginFailed, "csrf token mismatch", client)
		return model.Session{}, model.User{}, model.ErrInvalidRequest
	}

	user, err := a.users.GetByIdentifier(ctx, in.Identifier)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.Session{}, model.User{}, fmt.Errorf("failed to look up user: %w", err)
	}

	verifyErr := errors.New("unknown identifier")
	if err == nil {
		verifyErr = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password))
	} else {
		// Equalize cost so response timing does not reveal whether the
		// identifier exists.
		_ = bcrypt.CompareHashAndPassword(compareDummy, []byte(in.Password))
	}

	if verifyErr != nil {
		a.audit.Record(ctx, nil, model.AuditLoginFailed,
			fmt.Sprintf("failed login attempt for identifier length %d", len(in.Identifier)), client)
		return model.Session{}, model.User{}, model.ErrInvalidCredentials
	}

	if err := a.loginLimiter.Reset(ctx, client.IP); err != nil {
		a.logger.Error("failed to reset login limiter", "error", err.Error())
	}

	// Self-heal: accounts whose original provisioning failed, or that
	// predate the one-user-one-tenant invariant, get their database here.
	exists, err := a.provisioner.Exists(ctx, user.ID)
	if err != nil {
		return model.Session{}, model.User{}, err
	}
	if !exists {
		a.logger.Info("tenant database missing at login, provisioning",
			"user_id", user.ID,
			"tenant_db", user.TenantDB)
		if err := a.provisioner.Create(ctx, user.ID); err != nil {
			return model.Session{}, model.User{}, err
		}
	}

	authToken, err := a.tokens.Generate(user.ID)
	if err != nil {
		return model.Session{}, model.User{}, fmt.Errorf("failed to issue auth token: %w", err)
	}

	now := time.Now()
	rotated := model.Session{
		ID:             newOpaqueToken(),
		UserID:         &user.ID,
		CSRFToken:      newOpaqueToken(),
		AuthToken:      authToken,
		IP:             client.IP,
		UserAgent:      client.UserAgent,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	// Session fixation defense: the pre-login id never becomes an
	// authenticated session.
	if err := a.sessions.Rotate(ctx, session.ID, rotated); err != nil {
		return model.Session{}, model.User{}, fmt.Errorf("failed to rotate session: %w", err)
	}

	if err := a.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		a.logger.Error("failed to update last login", "user_id", user.ID, "error", err.Error())
	}

	a.audit.Record(ctx, &user.ID, model.AuditUserLogin, "user logged in successfully", client)

	return rotated, user, nil
}

// Logout destroys the acting session only.
func (a *Auth) Logout(ctx context.Context, session model.Session, client Client) error {
	if err := a.sessions.Delete(ctx, session.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if session.UserID != nil {
		a.audit.Record(ctx, session.UserID, model.AuditUserLogout, "user logged out", client)
	}
	return nil
}

// EnsureSession returns an anonymous session carrying a fresh CSRF token.
// It backs the pre-login form flow.
func (a *Auth) EnsureSession(ctx context.Context, client Client) (model.Session, error) {
	now := time.Now()
	session := model.Session{
		ID:             newOpaqueToken(),
		CSRFToken:      newOpaqueToken(),
		IP:             client.IP,
		UserAgent:      client.UserAgent,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := a.sessions.Create(ctx, session); err != nil {
		return model.Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// Resolve loads the session for a request and applies both expiry policies
// lazily: the absolute token lifetime and the rolling inactivity window.
// An expired session is deleted and reported as ErrSessionExpired; a live
// one gets its activity timestamp refreshed.
func (a *Auth) Resolve(ctx context.Context, sessionID string, client Client) (model.Session, error) {
	session, err := a.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Session{}, model.ErrNotFound
		}
		return model.Session{}, fmt.Errorf("failed to load session: %w", err)
	}

	now := time.Now()
	if session.Authenticated() {
		if _, err := a.tokens.Parse(session.AuthToken); err != nil {
			return model.Session{}, a.expire(ctx, session, "absolute lifetime elapsed", client)
		}
		if now.Sub(session.LastActivityAt) >= a.inactivityTimeout {
			return model.Session{}, a.expire(ctx, session, "inactivity timeout elapsed", client)
		}
	}

	if err := a.sessions.Touch(ctx, session.ID, now); err != nil {
		a.logger.Error("failed to refresh session activity", "error", err.Error())
	}
	session.LastActivityAt = now

	return session, nil
}

func (a *Auth) expire(ctx context.Context, session model.Session, reason string, client Client) error {
	if err := a.sessions.Delete(ctx, session.ID); err != nil {
		a.logger.Error("failed to delete expired session", "error", err.Error())
	}
	a.audit.Record(ctx, session.UserID, model.AuditSessionExpired, reason, client)
	return model.ErrSessionExpired
}

// newOpaqueToken returns a 256-bit random identifier in hex. Used for both
// session ids and CSRF tokens; neither carries internal structure.
func newOpaqueToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failure means the process cannot mint any secret.
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(b)
}
