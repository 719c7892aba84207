package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/ustabor/internal/config"
	"github.com/example/ustabor/internal/handlers"
	"github.com/example/ustabor/internal/middleware"
	"github.com/example/ustabor/internal/notify"
	"github.com/example/ustabor/internal/recon"
	"github.com/example/ustabor/internal/services"
	"github.com/example/ustabor/internal/store"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	telegram := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	dispatcher := notify.NewDispatcher(db, telegram)

	engine := recon.NewEngine(store.NewTransactionStore(db))

	click := services.NewClickService(engine, dispatcher, services.ClickConfig{
		MerchantID:     cfg.ClickMerchantID,
		MerchantUserID: cfg.ClickMerchantUserID,
		ServiceID:      cfg.ClickServiceID,
		SecretKey:      cfg.ClickSecretKey,
	})
	payme := services.NewPaymeService(engine, dispatcher, services.PaymeConfig{
		MerchantID:  cfg.PaymeMerchantID,
		MerchantKey: cfg.PaymeMerchantKey,
		CheckoutURL: cfg.PaymeCheckoutURL,
		CallbackURL: cfg.PaymeCallbackURL,
	})

	authHandler := handlers.NewAuthHandler(db, cfg)
	serviceHandler := handlers.NewServiceHandler(db)
	orderHandler := handlers.NewOrderHandler(db, dispatcher)
	paymentHandler := handlers.NewPaymentHandler(db, engine, click, payme)
	clickHandler := handlers.NewClickHandler(click)
	paymeHandler := handlers.NewPaymeHandler(payme)
	notificationHandler := handlers.NewNotificationHandler(db)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Gateway webhooks; responses are always 200 with embedded error codes.
	payment := api.Group("/payment")
	payment.Post("/click/webhook", clickHandler.Webhook)
	payment.Post("/payme/webhook", middleware.PaymeAuthMiddleware(payme), paymeHandler.Pay)

	// Service catalog
	api.Get("/services", serviceHandler.ListServices)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(db, cfg))

	protected.Post("/services", serviceHandler.CreateService)

	protected.Post("/orders", orderHandler.CreateOrder)
	protected.Get("/orders", orderHandler.ListOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)
	protected.Patch("/orders/:id/status", orderHandler.UpdateStatus)

	protected.Post("/payment", paymentHandler.CreateLink)
	protected.Get("/payment/transactions", paymentHandler.ListTransactions)
	protected.Get("/payment/transactions/:order_id", paymentHandler.GetTransaction)
	protected.Post("/payment/receipt/:transaction_id", paymentHandler.Receipt)

	protected.Get("/notifications", notificationHandler.ListNotifications)
	protected.Put("/notifications/:id/read", notificationHandler.MarkRead)
}
