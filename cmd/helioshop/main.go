package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/helioshop/helioshop/internal/auth"
	"github.com/helioshop/helioshop/internal/config"
	"github.com/helioshop/helioshop/internal/database"
	"github.com/helioshop/helioshop/internal/httpapi"
	"github.com/helioshop/helioshop/internal/limiters"
	"github.com/helioshop/helioshop/internal/mailer"
	"github.com/helioshop/helioshop/internal/password"
	"github.com/helioshop/helioshop/internal/session"
	"github.com/helioshop/helioshop/internal/token"
	"github.com/helioshop/helioshop/internal/user"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("helioshop: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongo, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongo.Disconnect(shutdownCtx); err != nil {
			log.Printf("mongo disconnect: %v", err)
		}
	}()

	rdb, err := database.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return err
	}
	defer rdb.Close()

	hasher, err := password.NewHasher(password.DefaultParams())
	if err != nil {
		return err
	}
	tokens, err := token.NewManager(cfg.JWTSecret, cfg.TokenTTL, cfg.SessionCheckInterval)
	if err != nil {
		return err
	}
	sender, err := mailer.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom, cfg.SMTPTimeout)
	if err != nil {
		return err
	}

	users := user.NewMongoStore(mongo.Users)
	sessions := session.NewMongoStore(mongo.Users, mongo.Sessions)
	guard := limiters.NewGuard(rdb, limiters.GuardConfig{
		MaxAttempts: cfg.LoginMaxAttempts,
		Lockout:     cfg.LoginLockout,
	})
	resend := limiters.NewResendThrottle(rdb, cfg.ResendCooldown)

	authSvc := auth.NewService(users, sessions, guard, resend, hasher, tokens, sender, auth.Config{
		OTPTTL:        cfg.OTPTTL,
		ResetTokenTTL: cfg.ResetTokenTTL,
		BaseURL:       cfg.BaseURL,
	})

	api := httpapi.NewAPI(authSvc, sessions, tokens, []httpapi.HealthCheck{
		{Name: "mongo", Check: func(ctx context.Context) error {
			return mongo.Client.Ping(ctx, nil)
		}},
		{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}},
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("helioshop: listening on %s", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Print("helioshop: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
