package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/mzaikin/dbportal/internal/api/http/response"
	"github.com/mzaikin/dbportal/internal/logger"
	"github.com/mzaikin/dbportal/internal/model"
	"github.com/mzaikin/dbportal/internal/service"
)

// CookieName is the session cookie.
const CookieName = "dbportal_session"

type ctxKey int

// expiredKey marks requests whose cookie resolved to an expired session,
// so the guard can tell "session expired" apart from "no session".
const expiredKey ctxKey = iota

// SessionResolver loads and expires sessions for incoming requests.
type SessionResolver interface {
	Resolve(ctx context.Context, sessionID string, client service.Client) (model.Session, error)
}

// ContextManager injects the resolved session into the request context.
type ContextManager interface {
	SetSessionToContext(ctx context.Context, session model.Session) context.Context
	GetSessionFromContext(ctx context.Context) (model.Session, bool)
}

// Session resolves the session cookie on every request and places the
// session, when present and live, into the request context. Enforcement is
// left to RequireAuth so public routes can still observe an anonymous
// session.
type Session struct {
	resolver SessionResolver
	ctxMgr   ContextManager
	logger   *logger.Logger
}

// NewSession creates the session-loading middleware.
func NewSession(resolver SessionResolver, ctxMgr ContextManager, logger *logger.Logger) *Session {
	return &Session{resolver: resolver, ctxMgr: ctxMgr, logger: logger}
}

// Handle attaches the resolved session to the request context. Expired or
// unknown cookies pass through without a session; handlers that need one
// reject the request downstream.
func (m *Session) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		session, err := m.resolver.Resolve(r.Context(), cookie.Value, ClientFromRequest(r))
		if err != nil {
			if errors.Is(err, model.ErrSessionExpired) {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), expiredKey, true)))
				return
			}
			if !errors.Is(err, model.ErrNotFound) {
				m.logger.Error("failed to resolve session", "error", err.Error())
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(m.ctxMgr.SetSessionToContext(r.Context(), session)))
	})
}

// RequireAuth rejects requests that did not resolve to an authenticated
// session.
type RequireAuth struct {
	ctxMgr ContextManager
}

// NewRequireAuth creates the authentication guard middleware.
func NewRequireAuth(ctxMgr ContextManager) *RequireAuth {
	return &RequireAuth{ctxMgr: ctxMgr}
}

// Handle passes the request through only for authenticated sessions. A
// cookie that resolved to an expired session is rejected as expired, not
// as missing, so the client knows to re-authenticate rather than retry.
func (m *RequireAuth) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := m.ctxMgr.GetSessionFromContext(r.Context())
		if !ok || !session.Authenticated() {
			if expired, _ := r.Context().Value(expiredKey).(bool); expired {
				response.WriteError(w, model.ErrSessionExpired)
				return
			}
			response.WriteError(w, model.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientFromRequest extracts the remote address and user agent. The
// leftmost X-Forwarded-For element wins when a proxy set one.
func ClientFromRequest(r *http.Request) service.Client {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found || first != "" {
			ip = strings.TrimSpace(first)
		}
	}
	return service.Client{IP: ip, UserAgent: r.UserAgent()}
}
