package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"littlekobe-store/config"
	"littlekobe-store/internal/api"
	"littlekobe-store/internal/broker"
	"littlekobe-store/internal/gateway"
	"littlekobe-store/internal/models"
	"littlekobe-store/internal/notify"
	"littlekobe-store/internal/redisclient"
	"littlekobe-store/internal/service"
	"littlekobe-store/internal/store"
	"littlekobe-store/internal/util"
	"littlekobe-store/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting Little Kobe storefront backend")

	tp, err := util.InitTracer("littlekobe-store", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayments)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	gatewayClient := gateway.NewClient(
		cfg.Gateway.BaseURL, cfg.Gateway.ConsumerKey, cfg.Gateway.ConsumerSecret)

	ipnID := cfg.Gateway.IPNID
	if ipnID == "" {
		ipnURL := cfg.Server.BaseURL + "/webhooks/payment/ipn"
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		reg, err := gatewayClient.RegisterIPNURL(ctx, ipnURL, "GET")
		cancel()
		if err != nil {
			log.Printf("IPN URL registration failed, continuing without notification channel: %v", err)
		} else {
			ipnID = reg.ID
			log.Printf("IPN URL registered: id=%s, url=%s", reg.ID, reg.URL)
		}
	}

	emailSender := notify.NewEmailSender(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	chatSender := notify.NewChatSender(notify.ChatConfig{
		BaseURL:       cfg.Chat.BaseURL,
		AccessToken:   cfg.Chat.AccessToken,
		PhoneNumberID: cfg.Chat.PhoneNumberID,
	})
	fanOut := notify.NewFanOut(emailSender, chatSender, notify.MerchantContact{
		Email: cfg.Merchant.Email,
		Phone: cfg.Merchant.Phone,
	})

	catalogClient := service.NewCatalogClient(cfg.Catalog.BaseURL, cfg.Catalog.APIKey, redisClient)

	callbackURL := cfg.Server.BaseURL + "/payment-callback"
	checkoutService := service.NewCheckoutService(db, db, gatewayClient, catalogClient, callbackURL, ipnID)
	reconcileService := service.NewReconcileService(db, gatewayClient, fanOut, eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	ipnConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayments, cfg.Kafka.ConsumerGroup)
	ipnWorker := worker.NewIPNWorker(ipnConsumer, reconcileService, redisClient)
	go func() {
		if err := ipnWorker.Start(workerCtx); err != nil {
			log.Printf("IPN worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(api.HandlerConfig{
		Checkout:  checkoutService,
		Reconcile: reconcileService,
		Admin:     db,
		PublishIPN: func(ctx context.Context, event *models.IPNReceivedEvent) error {
			return eventPublisher.PublishIPNReceived(ctx, event)
		},
		DropCache: redisClient.InvalidateProduct,
		NotifyTester:  &notify.Tester{Email: emailSender, Chat: chatSender},
		AdminAccounts: gin.Accounts{cfg.Admin.Username: cfg.Admin.Password},
		WebhookSecret: cfg.Webhook.Secret,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	ipnWorker.Stop()

	log.Println("Server exited")
}
