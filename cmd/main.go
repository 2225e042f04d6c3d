package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	httpctx "github.com/mzaikin/dbportal/internal/api/http/context"
	"github.com/mzaikin/dbportal/internal/api/http/handler"
	"github.com/mzaikin/dbportal/internal/api/http/middleware"
	"github.com/mzaikin/dbportal/internal/api/http/router"
	httpServer "github.com/mzaikin/dbportal/internal/api/http/server"
	"github.com/mzaikin/dbportal/internal/config"
	"github.com/mzaikin/dbportal/internal/logger"
	"github.com/mzaikin/dbportal/internal/model"
	"github.com/mzaikin/dbportal/internal/repository/postgres"
	"github.com/mzaikin/dbportal/internal/server"
	"github.com/mzaikin/dbportal/internal/service"
	"github.com/mzaikin/dbportal/internal/tenant"
	"github.com/mzaikin/dbportal/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN, cfg.Database.QueryTimeout)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer db.Close()

	userRepo := postgres.NewUserRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)
	rateLimitRepo := postgres.NewRateLimitRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	connector := tenant.NewDSNConnector(cfg.Database.AdminDSN)
	defer connector.Close()
	provisioner := tenant.NewProvisioner(connector, cfg.Database.QueryTimeout, logger)

	tokenManager := token.NewJWT(cfg.JWT.Secret, cfg.Session.AbsoluteLifetime)

	loginLimiter := service.NewLimiter(rateLimitRepo, model.RateLimitPolicy{
		Purpose:     model.RateLimitLogin,
		MaxAttempts: cfg.Login.MaxAttempts,
		Window:      cfg.Login.Window,
	})
	unlockLimiter := service.NewLimiter(rateLimitRepo, model.RateLimitPolicy{
		Purpose:     model.RateLimitUnlock,
		MaxAttempts: cfg.Unlock.MaxAttempts,
		Window:      cfg.Unlock.Window,
	})

	auditRecorder := service.NewRecorder(auditRepo, logger)
	authService := service.NewAuth(userRepo, sessionRepo, provisioner, loginLimiter, tokenManager, auditRecorder, cfg.Session.InactivityTimeout, logger)
	vaultService := service.NewVault(userRepo, sessionRepo, unlockLimiter, auditRecorder, cfg.Vault.GrantTTL, logger)

	ctxMgr := httpctx.NewManager()

	srv := registerHTTPServer(cfg, logger, authService, vaultService, ctxMgr, fmt.Sprintf(":%s", cfg.HTTP.Port))

	var sl model.SecurityLayer

	if cfg.HTTP.EnableHTTPS {
		sl = server.NewTLSListener(cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)
	} else {
		sl = server.NewPlainListener()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address())
		err := s.Start(sl)
		if err != nil {
			logger.Error("failed to start server", "error", err)
		}
	}(srv)

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", srv.Address())
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}

func registerHTTPServer(
	cfg *config.Config,
	logger *logger.Logger,
	authService *service.Auth,
	vaultService *service.Vault,
	ctxMgr *httpctx.Manager,
	addr string,
) *httpServer.HTTPServer {
	authHandler := handler.NewAuth(authService, ctxMgr, cfg.HTTP.EnableHTTPS, logger)
	vaultHandler := handler.NewVault(vaultService, ctxMgr, logger)

	h := router.New(router.Config{
		Auth:        authHandler,
		Vault:       vaultHandler,
		Logging:     middleware.NewLogging(logger),
		Session:     middleware.NewSession(authService, ctxMgr, logger),
		RequireAuth: middleware.NewRequireAuth(ctxMgr),
		VaultTTL:    cfg.Vault.GrantTTL,
	})

	return httpServer.NewHTTPServer(h, addr)
}
