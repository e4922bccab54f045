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

	"github.com/keyfold/keyfold/internal/api/http/authctx"
	"github.com/keyfold/keyfold/internal/api/http/router"
	httpserver "github.com/keyfold/keyfold/internal/api/http/server"
	"github.com/keyfold/keyfold/internal/config"
	"github.com/keyfold/keyfold/internal/logger"
	"github.com/keyfold/keyfold/internal/model"
	"github.com/keyfold/keyfold/internal/repository/postgres"
	"github.com/keyfold/keyfold/internal/server"
	"github.com/keyfold/keyfold/internal/service"
	"github.com/keyfold/keyfold/internal/token"
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

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer db.Close()

	store := postgres.NewStore(db.Pool)
	tokenManager := token.NewJWT(cfg.JWT.Secret)
	ctxMgr := authctx.NewManager()

	sessions := service.NewSessions(store, cfg.Auth.SessionTTL, logger)
	rotator := service.NewRotator(store, service.RotatorConfig{
		TokenTTL:    cfg.Auth.RefreshTTL,
		ReuseWindow: cfg.Auth.ReuseWindow,
	}, logger)
	accounts := service.NewAccounts(store, logger)
	handshake := service.NewHandshake(store, sessions, rotator, accounts, service.HandshakeConfig{
		VerifierTTL:     cfg.Auth.VerifierTTL,
		CodeTTL:         cfg.Auth.CodeTTL,
		MaxCodeAttempts: cfg.Auth.MaxCodeAttempts,
	}, logger)
	authService := service.NewAuth(store, sessions, rotator, accounts, handshake, tokenManager, logger)

	sweeper := service.NewSweeper(store, cfg.Auth.SweepInterval, logger)

	r := router.New(authService, tokenManager, ctxMgr, logger)
	srv := httpserver.NewHTTPServer(r.Register(), fmt.Sprintf(":%s", cfg.HTTP.Port))

	var sl model.SecurityLayer
	if cfg.HTTP.EnableHTTPS {
		sl = server.NewTLSListener(cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)
	} else {
		sl = server.NewPlainListener()
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address())
		if err := s.Start(sl); err != nil {
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
