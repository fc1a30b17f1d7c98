package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Esemudje/portfolio-manager-team02/internal/metrics"
)

// requestTimeout bounds a whole request. It is above the backend timeout so
// upstream errors surface as mapped statuses rather than a bare 503.
const requestTimeout = 60 * time.Second

// NewRouter mounts every gateway route. An empty origins list allows any
// origin.
func NewRouter(s *Service, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.hub != nil {
			r.Get("/ws", s.hub.HandleWS)
		}

		r.Get("/dashboard", s.GetDashboard)
		r.Post("/dashboard/refresh", s.RefreshDashboard)

		r.Get("/portfolio", s.GetPortfolio)
		r.Get("/portfolio/trades", s.GetTrades)
		r.Get("/portfolio/performance", s.GetPerformance)

		r.Get("/search", s.SearchStocks)

		r.Get("/stocks/{symbol}", s.GetQuote)
		r.Get("/stocks/{symbol}/{kind}", s.GetReference)

		r.Get("/trading/{symbol}", s.GetTradingContext)

		r.Get("/orders", s.ListOrders)
		r.Post("/orders", s.SubmitOrder)
		r.Delete("/orders/{orderID}", s.CancelOrder)

		r.Post("/trade/buy", s.Buy)
		r.Post("/trade/sell", s.Sell)
		r.Get("/trade/holdings/{symbol}", s.GetLots)

		r.Get("/watchlist", s.GetWatchlist)
		r.Post("/watchlist", s.AddToWatchlist)
		r.Delete("/watchlist/{symbol}", s.RemoveFromWatchlist)

		r.Get("/preferences", s.GetPreferences)
		r.Put("/preferences/dark-mode", s.SetDarkMode)

		r.Get("/cash", s.GetCash)
		r.Post("/cash/deposit", s.Deposit)
		r.Post("/cash/withdraw", s.Withdraw)
	})

	return r
}
