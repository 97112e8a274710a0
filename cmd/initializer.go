package main

import (
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"paydesk/internal/chain"
	"paydesk/internal/config"
	"paydesk/internal/gateway"
	"paydesk/internal/handlers"
	"paydesk/internal/repositories"
	"paydesk/internal/services"
	"paydesk/utils"
)

const trackerTick = 15 * time.Second

type application struct {
	errorLog *log.Logger
	infoLog  *log.Logger
	logger   *slog.Logger

	db  *sql.DB
	rdb *redis.Client

	tokenManager *utils.Manager

	invoiceService *services.InvoiceService
	statusHub      *statusHub
	tracker        *chain.Tracker

	invoiceHandler *handlers.InvoiceHandler
	webhookHandler *handlers.WebhookHandler
	chainHandler   *handlers.ChainHandler
	statusHandler  *handlers.StatusHandler
	statsHandler   *handlers.StatsHandler
	exportHandler  *handlers.ExportHandler
}

func initializeApp(cfg config.Config, db *sql.DB, rdb *redis.Client, logger *slog.Logger, errorLog, infoLog *log.Logger) (*application, error) {
	// Repositories
	invoiceRepo := repositories.NewInvoiceRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db)
	ledgerRepo := repositories.NewLedgerRepository(db)
	webhookRepo := repositories.NewWebhookRepository(db)
	walletRepo := repositories.NewWalletRepository(db)
	userRepo := repositories.NewUserRepository(db)

	tokenManager, err := utils.NewManager(cfg.JWT.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("jwt manager: %w", err)
	}

	stripeGW, err := gateway.NewStripeGateway(gateway.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		SuccessURL:    cfg.Stripe.SuccessURL,
		CancelURL:     cfg.Stripe.CancelURL,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	gateways := gateway.NewFactory(stripeGW)

	registry := chain.NewRegistry()
	for name, chainCfg := range cfg.Chains {
		verifier, err := chain.NewVerifier(name, chainCfg.RPCURL, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", name, err)
		}
		registry.Add(verifier)
	}

	statusHub := newStatusHub(logger)

	// Services
	invoiceService := &services.InvoiceService{InvoiceRepo: invoiceRepo, UserRepo: userRepo}
	idempotencyService := services.NewIdempotencyService(webhookRepo)
	settlementService := &services.SettlementService{
		DB:       db,
		Invoices: invoiceRepo,
		Payments: paymentRepo,
		Ledger:   ledgerRepo,
		Users:    userRepo,
		Notifier: statusHub,
		Logger:   logger,
	}
	activityService := &services.ChainActivityService{
		Invoices:    invoiceRepo,
		Payments:    paymentRepo,
		Wallets:     walletRepo,
		Idempotency: idempotencyService,
		Logger:      logger,
	}
	walletService := &services.WalletService{
		Wallets: walletRepo,
		Pool:    cfg.Wallet.AddressPool,
		Logger:  logger,
	}
	statusService := &services.StatusService{
		Invoices: invoiceRepo,
		Payments: paymentRepo,
		Redis:    rdb,
		Logger:   logger,
	}
	statsService := &services.StatsService{Ledger: ledgerRepo, Users: userRepo}
	exportService := &services.ExportService{Ledger: ledgerRepo}

	tracker := chain.NewTracker(paymentRepo, settlementService, registry, rdb, logger, trackerTick)

	// Handlers
	invoiceHandler := &handlers.InvoiceHandler{Service: invoiceService, Gateways: gateways}
	webhookHandler := &handlers.WebhookHandler{
		Gateways:    gateways,
		Idempotency: idempotencyService,
		Settlement:  settlementService,
		Logger:      logger,
	}
	chainHandler := &handlers.ChainHandler{
		Activity:   activityService,
		Wallets:    walletService,
		SigningKey: cfg.ChainFeed.SigningKey,
		Logger:     logger,
	}
	statusHandler := &handlers.StatusHandler{Status: statusService}
	statsHandler := &handlers.StatsHandler{Stats: statsService}
	exportHandler := &handlers.ExportHandler{Export: exportService}

	return &application{
		errorLog:       errorLog,
		infoLog:        infoLog,
		logger:         logger,
		db:             db,
		rdb:            rdb,
		tokenManager:   tokenManager,
		invoiceService: invoiceService,
		statusHub:      statusHub,
		tracker:        tracker,
		invoiceHandler: invoiceHandler,
		webhookHandler: webhookHandler,
		chainHandler:   chainHandler,
		statusHandler:  statusHandler,
		statsHandler:   statsHandler,
		exportHandler:  exportHandler,
	}, nil
}

func addSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}
