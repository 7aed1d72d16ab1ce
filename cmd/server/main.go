package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/learnhub/backend/docs"
	"github.com/learnhub/backend/internal/database"
	"github.com/learnhub/backend/internal/handlers"
	mW "github.com/learnhub/backend/internal/middleware"
	"github.com/learnhub/backend/internal/services"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title LearnHub Marketplace API
// @version 1.0
// @description API for the LearnHub e-learning marketplace commerce core
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "LearnHub Marketplace API"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize storage
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Initialize services
	ledgerService := services.NewLedgerService(db)
	voucherService := services.NewVoucherService(db)
	cartService := services.NewCartService(db)
	checkoutService := services.NewCheckoutService(db, redisClient, ledgerService, voucherService, cartService)
	catalogService := services.NewCatalogService(db)
	reservationService := services.NewReservationService(db)
	reservationHandler := handlers.NewReservationHandler(reservationService)
	ticketService := services.NewTicketService(db, redisClient)
	ticketHandler := handlers.NewTicketHandler(ticketService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for course thumbnails
	r.Handle("/static/course-thumbs/*", http.StripPrefix("/static/course-thumbs/",
		mW.StaticFileServer("./static/course-thumbs")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Get("/catalog", catalogService.ListHandler)
		r.Get("/catalog/popular", catalogService.PopularHandler)
		r.Get("/catalog/{itemId}", catalogService.GetHandler)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/wallet/balance", ledgerService.GetBalanceHandler)
			r.Get("/wallet/entries", ledgerService.ListEntriesHandler)

			r.Get("/cart", cartService.ListHandler)
			r.Post("/cart/items", cartService.AddHandler)
			r.Delete("/cart/items/{itemId}", cartService.RemoveHandler)

			r.Post("/vouchers/validate", voucherService.ValidateHandler)

			r.Post("/checkout", checkoutService.ProcessHandler)
			r.Get("/orders", checkoutService.ListOrdersHandler)
			r.Get("/orders/{orderId}", checkoutService.GetOrderHandler)

			r.Get("/exams/{examId}/schedules", reservationHandler.ListAvailable)
			r.Post("/schedules/{scheduleId}/bookings", reservationHandler.Book)
			r.Get("/bookings", reservationHandler.ListBookings)
			r.Post("/bookings/{bookingId}/cancel", reservationHandler.Cancel)
			r.Post("/bookings/{bookingId}/ticket", ticketHandler.Issue)

			// Administrative endpoints
			r.Route("/admin", func(r chi.Router) {
				r.Use(mW.RequireAdmin)

				r.Post("/wallet/top-up", ledgerService.TopUpHandler)

				r.Get("/vouchers", voucherService.ListHandler)
				r.Post("/vouchers", voucherService.CreateHandler)
				r.Put("/vouchers/{code}/deactivate", voucherService.DeactivateHandler)

				r.Post("/schedules", reservationHandler.CreateSchedule)
				r.Post("/schedules/bulk", reservationHandler.BulkCreateSchedules)
				r.Post("/schedules/bulk-delete", reservationHandler.BulkDeleteSchedules)
				r.Put("/schedules/{scheduleId}", reservationHandler.UpdateSchedule)
				r.Delete("/schedules/{scheduleId}", reservationHandler.DeleteSchedule)

				r.Post("/bookings/{bookingId}/complete", reservationHandler.MarkCompleted)
				r.Post("/bookings/{bookingId}/no-show", reservationHandler.MarkNoShow)

				r.Post("/tickets/verify", ticketHandler.Verify)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
