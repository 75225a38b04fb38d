package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"booklending/internal/config"
	"booklending/internal/database"
	"booklending/internal/handlers"
	"booklending/internal/repositories"
	"booklending/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
	}

	userRepo := repositories.NewUserRepository(db)
	studentRepo := repositories.NewStudentRepository(db)
	librarianRepo := repositories.NewLibrarianRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	loanRepo := repositories.NewLoanRepository(db)
	tokenRepo := repositories.NewTokenRepository(db)

	svc := handlers.Services{
		Auth:    services.NewAuthService(db, userRepo, tokenRepo, cfg.BcryptCost),
		Loans:   services.NewLoanService(db, studentRepo, bookRepo, loanRepo),
		Books:   services.NewBookService(db, bookRepo, loanRepo),
		Members: services.NewMemberService(db, userRepo, studentRepo, librarianRepo, bookRepo, loanRepo, tokenRepo, cfg.BcryptCost),
	}

	if cfg.AdminEmail != "" {
		if err := svc.Auth.BootstrapAdmin(context.Background(), cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Fatalf("failed to bootstrap admin account: %v", err)
		}
	}

	router := gin.Default()

	handlers.RegisterRoutes(router, svc, handlers.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Printf("Shutting down server")
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
