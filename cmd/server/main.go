package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/chainfund/backend/internal/config"
	"github.com/chainfund/backend/internal/database"
	"github.com/chainfund/backend/internal/handlers"
	"github.com/chainfund/backend/internal/jobs"
	"github.com/chainfund/backend/internal/queue"
	"github.com/chainfund/backend/internal/routes"
	"github.com/chainfund/backend/internal/services/commission"
	"github.com/chainfund/backend/internal/services/payment"
	"github.com/chainfund/backend/internal/services/payment/providers/paystack"
	"github.com/chainfund/backend/internal/services/reconcile"
	"github.com/chainfund/backend/internal/services/referral"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.LoadConfig()

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	jobQueue := queue.NewQueue(redisClient, db)

	// Payment providers
	paystackProvider := paystack.NewPaystackProvider(paystack.PaystackConfig{
		SecretKey: cfg.Paystack.SecretKey,
		PublicKey: cfg.Paystack.PublicKey,
		BaseURL:   cfg.Paystack.BaseURL,
	})

	paymentService := payment.NewPaymentService(db)
	paymentService.RegisterProvider(payment.ProviderPaystack, paystackProvider)

	// Core services
	referralService := referral.NewReferralService(db, jobQueue, cfg.FrontendURL, cfg.Payout.DefaultCommissionRate)
	commissionService := commission.NewCommissionService(db)
	reconciler := reconcile.NewReconciler(db, paymentService, commissionService)

	// Background jobs
	clickStatsJob := jobs.NewClickStatsJob(db, referralService)
	payoutBatchJob := jobs.NewPayoutBatchJob(db, paymentService)
	jobs.RegisterJobHandlers(jobQueue, clickStatsJob, payoutBatchJob)

	worker := queue.NewWorker(jobQueue, []queue.JobType{
		queue.JobTypeClickAnalytics,
		queue.JobTypeRunPayoutBatch,
		queue.JobTypeReconcileClickCounters,
	}, 10)
	worker.Start()

	batchInterval := time.Duration(cfg.Payout.BatchIntervalMinutes) * time.Minute
	if err := worker.ScheduleRecurring(batchInterval, func() {
		if _, err := jobQueue.Enqueue(queue.JobTypeRunPayoutBatch, map[string]interface{}{
			"limit": cfg.Payout.BatchLimit,
		}); err != nil {
			log.Printf("Failed to enqueue payout batch: %v", err)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule payout batch: %v", err)
	}

	if err := worker.ScheduleRecurring(time.Hour, func() {
		if _, err := jobQueue.Enqueue(queue.JobTypeReconcileClickCounters, nil); err != nil {
			log.Printf("Failed to enqueue click counter reconciliation: %v", err)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule click counter reconciliation: %v", err)
	}

	// HTTP handlers
	h := routes.Handlers{
		Referral: handlers.NewReferralHandler(referralService),
		Chainer:  handlers.NewChainerHandler(referralService, cfg.FrontendURL),
		Donation: handlers.NewDonationHandler(db, referralService, paymentService, cfg.Server.BaseURL),
		Webhook:  handlers.NewWebhookHandler(db, paymentService, reconciler, cfg.FrontendURL),
		Payout:   handlers.NewPayoutHandler(payoutBatchJob),
	}

	router := routes.SetupRouter(cfg, h)

	srv := startServer(router, cfg.Server)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	worker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}

// startServer starts the HTTP server
func startServer(router http.Handler, serverCfg config.ServerConfig) *http.Server {
	srv := &http.Server{
		Addr:         ":" + serverCfg.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(serverCfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(serverCfg.WriteTimeout) * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", serverCfg.Port)
	return srv
}
