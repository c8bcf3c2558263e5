package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"quicklaunch.dev/internal/account"
	"quicklaunch.dev/internal/audit"
	"quicklaunch.dev/internal/auth"
	"quicklaunch.dev/internal/config"
	"quicklaunch.dev/internal/httpapi"
	"quicklaunch.dev/internal/impersonate"
	"quicklaunch.dev/internal/migrate"
	"quicklaunch.dev/internal/obs"
	"quicklaunch.dev/internal/rbac"
	"quicklaunch.dev/internal/store/pg"
	"quicklaunch.dev/internal/workspace"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	db, err := pg.Open(cfg.PGDSN, cfg.PGMaxOpenConns, cfg.PGMaxIdleConns)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	if os.Getenv("QL_MIGRATE_ON_START") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := migrate.NewRunner(db, migrate.Files).Up(ctx); err != nil {
			cancel()
			log.Fatalf("migrate: %v", err)
		}
		cancel()
	}

	issuer, err := auth.NewIssuer(cfg.AuthSecret, auth.WithAccessTTL(cfg.AccessTTL))
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	auditStore := audit.NewPGStore(db)
	audits := audit.NewPublisher(auditStore, audit.WithBuffer(cfg.AuditBuffer))

	accounts, err := account.NewService(account.NewPGStore(db))
	if err != nil {
		log.Fatalf("accounts: %v", err)
	}
	sessions, err := impersonate.NewService(
		impersonate.NewPGStore(db), issuer, audits,
		impersonate.WithSessionTTL(cfg.ImpersonationTTL),
		impersonate.WithMinReasonLength(cfg.MinReasonLength),
	)
	if err != nil {
		log.Fatalf("impersonation: %v", err)
	}
	workspaces, err := workspace.NewService(
		workspace.NewPGStore(db), audits,
		workspace.WithInviteTTL(cfg.InviteTTL),
	)
	if err != nil {
		log.Fatalf("workspaces: %v", err)
	}
	gate, err := rbac.NewGate(rbac.DefaultRequirements)
	if err != nil {
		log.Fatalf("rbac: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, httpapi.Deps{
		Issuer:       issuer,
		Accounts:     accounts,
		Sessions:     sessions,
		Workspaces:   workspaces,
		Gate:         gate,
		Audits:       audits,
		AuditLog:     auditStore,
		RateBurst:    cfg.RateLimitBurst,
		RatePerSec:   int(cfg.RateLimitRPS),
		MaxBodyBytes: cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting quicklaunch-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	audits.Close()
	_ = db.Close()
	log.Println("Stopped")
}
