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

	"utem.cl/canvas-gate/internal/access"
	"utem.cl/canvas-gate/internal/config"
	"utem.cl/canvas-gate/internal/directory"
	"utem.cl/canvas-gate/internal/httpapi"
	"utem.cl/canvas-gate/internal/oauth"
	"utem.cl/canvas-gate/internal/obs"
	"utem.cl/canvas-gate/internal/policy"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load(os.Getenv("GATE_CONFIG"))
	if err != nil {
		log.Printf("config: %v (continuing with defaults)", err)
	}

	table, err := policy.Load(cfg.PolicyFile)
	if err != nil {
		// Self-healing: the table is usable even when the document was not.
		log.Printf("policy: %v", err)
	}

	dir, err := directory.Open(cfg.UsersFile, table.IsAllowedDomain)
	if err != nil {
		log.Printf("directory: %v (continuing with empty table)", err)
	}

	limiter := access.NewLimiter(table.MaxAttempts(), table.LockoutDuration())
	sessions := access.NewSessionManager(table.SessionTimeout())
	auth := access.NewAuthenticator(table, dir, limiter, sessions)
	authz := access.NewAuthorizer(table, sessions)

	var provider oauth.Provider = oauth.NewGoogle(oauth.GoogleConfig{
		ClientID:      cfg.OAuth.ClientID,
		ClientSecret:  cfg.OAuth.ClientSecret,
		RedirectURI:   cfg.OAuth.RedirectURI,
		AuthEndpoint:  cfg.OAuth.AuthEndpoint,
		TokenEndpoint: cfg.OAuth.TokenEndpoint,
	})

	api := httpapi.New(httpapi.Options{
		Auth:      auth,
		Authz:     authz,
		Directory: dir,
		Policy:    table,
		Provider:  provider,
		DataFile:  cfg.DataFile,
		DevLogin:  cfg.DevLogin,
		Version:   version,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting canvas-gate %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
