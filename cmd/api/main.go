package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/credana/lending-service/internal/config"
	"github.com/credana/lending-service/internal/handler"
	"github.com/credana/lending-service/internal/integrations/ratefeed"
	"github.com/credana/lending-service/internal/middleware"
	"github.com/credana/lending-service/internal/service"
	"github.com/credana/lending-service/internal/store"
	"github.com/credana/lending-service/internal/utils/email"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	st := store.NewPostgres(db)
	if err := st.InitSchema(context.Background()); err != nil {
		logger.Fatalf("Failed to initialize schema: %v", err)
	}
	sender := email.NewSender(cfg, logger)
	rates := ratefeed.NewClient(cfg, logger)
	svc := service.NewService(st, logger, cfg, sender, rates)
	h := handler.NewHandler(svc, logger)

	// Daily sweeps: interest accrual, membership expiry, EMI reminders.
	c := cron.New()
	if _, err := c.AddFunc("@daily", func() {
		ctx := context.Background()
		svc.AccrueAllInterest(ctx)
		if _, err := svc.ExpireDueMemberships(ctx); err != nil {
			logger.Errorf("Membership expiry sweep failed: %v", err)
		}
		svc.SendDueReminders(ctx, 3*24*time.Hour)
	}); err != nil {
		logger.Fatalf("Failed to schedule daily sweep: %v", err)
	}
	c.Start()
	defer c.Stop()

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	authRouter.HandleFunc("/accounts/{id}", h.GetAccount).Methods("GET")
	authRouter.HandleFunc("/accounts/{id}/transactions", h.GetTransactions).Methods("GET")
	authRouter.HandleFunc("/accounts/{id}/deposit", h.Deposit).Methods("POST")
	authRouter.HandleFunc("/accounts/{id}/withdraw", h.Withdraw).Methods("POST")
	authRouter.HandleFunc("/accounts/{id}/transfer", h.Transfer).Methods("POST")
	authRouter.HandleFunc("/accounts/{id}/purchase", h.Purchase).Methods("POST")
	authRouter.HandleFunc("/accounts/{id}/repay", h.RepayCredit).Methods("POST")
	authRouter.HandleFunc("/loans", h.ApplyForLoan).Methods("POST")
	authRouter.HandleFunc("/loans", h.ListLoans).Methods("GET")
	authRouter.HandleFunc("/loans/{id}", h.GetLoan).Methods("GET")
	authRouter.HandleFunc("/loans/{id}/approve", h.ApproveLoan).Methods("POST")
	authRouter.HandleFunc("/loans/{id}/reject", h.RejectLoan).Methods("POST")
	authRouter.HandleFunc("/loans/{id}/delays", h.RequestDelay).Methods("POST")
	authRouter.HandleFunc("/loans/{id}/delays", h.DelayHistory).Methods("GET")
	authRouter.HandleFunc("/credit-profile", h.CreditProfile).Methods("GET")
	authRouter.HandleFunc("/payments", h.CreatePayment).Methods("POST")
	authRouter.HandleFunc("/payments/{reference}", h.PaymentStatus).Methods("GET")
	authRouter.HandleFunc("/payments/{reference}/confirm", h.ConfirmPayment).Methods("POST")
	authRouter.HandleFunc("/payments/{reference}/disburse", h.CompleteDisbursement).Methods("POST")
	authRouter.HandleFunc("/membership", h.SubscribeFlex).Methods("POST")
	authRouter.HandleFunc("/membership", h.MembershipStatus).Methods("GET")
	authRouter.HandleFunc("/membership", h.CancelMembership).Methods("DELETE")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
