package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/lumichess/account-service/internal/account"
	"github.com/lumichess/account-service/internal/federation"
	"github.com/lumichess/account-service/internal/mailer"
	"github.com/lumichess/account-service/internal/reaper"
	"github.com/lumichess/account-service/internal/router"
	"github.com/lumichess/account-service/internal/token"
	"github.com/lumichess/account-service/internal/verification"
	"github.com/lumichess/account-service/pkg/database"
	"github.com/lumichess/account-service/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	// init logger
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting account-service")

	// init db; unreachable database is fatal
	cfg := database.ConfigFromEnv()
	sqlDB, err := database.Connect(cfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(migrateCtx, sqlDB); err != nil {
		cancelMigrate()
		sugar.Fatalf("db migrate: %v", err)
	}
	cancelMigrate()

	// wrap with sqlx for convenience in repos/services
	sqlxDB := sqlx.NewDb(sqlDB, "postgres")
	defer sqlxDB.Close()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens := token.NewService(token.ConfigFromEnv())
	verifier := federation.NewGoogleVerifier(federation.ConfigFromEnv())
	mail := mailer.NewSMTPMailer(mailer.ConfigFromEnv())

	accountSvc := account.NewService(sqlxDB, tokens, verifier, mail, sugar)
	verificationSvc := verification.NewService(sqlxDB, tokens, mail, sugar)

	accountHandler := account.NewHandler(accountSvc, sugar)
	verificationHandler := verification.NewHandler(verificationSvc, sugar)

	// background sweep of stale unverified accounts and expired codes
	go reaper.New(sqlxDB, mail, sugar).Run(ctx)

	sugar.Info("service is running; press Ctrl+C to stop")

	// mount http server
	handler := router.RegisterRoutes(accountHandler, verificationHandler, tokens, sugar)
	port := os.Getenv("PORT")
	if port == "" {
		port = "5000"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: handler,
	}

	// run server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
