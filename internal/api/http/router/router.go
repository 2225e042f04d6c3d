package router

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mzaikin/dbportal/internal/api/http/handler"
	"github.com/mzaikin/dbportal/internal/api/http/middleware"
)

// Config carries the pieces the router wires together.
type Config struct {
	Auth        *handler.Auth
	Vault       *handler.Vault
	Logging     *middleware.Logging
	Session     *middleware.Session
	RequireAuth *middleware.RequireAuth
	VaultTTL    time.Duration
}

// New builds the API route table. Every request passes through logging and
// session resolution; authentication is enforced per route.
func New(cfg Config) http.Handler {
	r := mux.NewRouter()
	r.Use(cfg.Logging.Handle)
	r.Use(cfg.Session.Handle)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/register", cfg.Auth.Register).Methods(http.MethodPost)
	api.HandleFunc("/csrf", cfg.Auth.CSRF).Methods(http.MethodGet)
	api.HandleFunc("/login", cfg.Auth.Login).Methods(http.MethodPost)
	api.HandleFunc("/session", cfg.Auth.Session(cfg.VaultTTL)).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(cfg.RequireAuth.Handle)
	protected.HandleFunc("/logout", cfg.Auth.Logout).Methods(http.MethodPost)
	protected.HandleFunc("/vault/unlock", cfg.Vault.Unlock).Methods(http.MethodPost)
	protected.HandleFunc("/portal", cfg.Vault.Portal).Methods(http.MethodGet)

	return r
}
