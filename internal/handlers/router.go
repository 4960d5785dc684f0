package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	mW "github.com/somexchange/backend/internal/middleware"
	"github.com/somexchange/backend/internal/services"
)

// Services is everything the HTTP API is served from.
type Services struct {
	Auth      *services.AuthService
	Exchange  *services.ExchangeService
	Editor    *services.LedgerEditor
	Query     *services.QueryService
	Analytics *services.AnalyticsService
	Accounts  *services.AccountService
	Repair    *services.RepairService
	Receipts  *services.ReceiptService
	Location  *time.Location
}

func NewRouter(s Services) http.Handler {
	authHandler := NewAuthHandler(s.Auth)
	exchangeHandler := NewExchangeHandler(s.Exchange)
	entryHandler := NewEntryHandler(s.Query, s.Editor, s.Receipts, s.Location)
	statsHandler := NewStatsHandler(s.Analytics, s.Location)
	accountHandler := NewAccountHandler(s.Accounts)
	repairHandler := NewRepairHandler(s.Repair)

	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(mW.Metrics)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware(s.Auth))

			r.Post("/auth/logout", authHandler.Logout)

			r.Get("/accounts", accountHandler.ListAccounts)
			r.Get("/accounts/{code}", accountHandler.GetAccount)

			r.Post("/exchanges", exchangeHandler.PerformExchange)
			r.Post("/deposits", exchangeHandler.Deposit)

			r.Get("/entries", entryHandler.ListEntries)
			r.Get("/entries/{id}", entryHandler.GetEntry)
			r.Put("/entries/{id}", entryHandler.EditEntry)
			r.Delete("/entries/{id}", entryHandler.DeleteEntry)
			r.Get("/entries/{id}/receipt", entryHandler.Receipt)

			r.Get("/currencies", entryHandler.CurrencyCodes)
			r.Get("/operation-types", entryHandler.OperationTypes)

			r.Get("/stats", statsHandler.Stats)
			r.Get("/stats/daily", statsHandler.Daily)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireAdmin)

				r.Put("/accounts/{code}", accountHandler.ProvisionAccount)
				r.Post("/admin/users", authHandler.CreateUser)
				r.Post("/admin/repair", repairHandler.Repair)
			})
		})
	})

	return r
}
