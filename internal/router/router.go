package router

import (
	"log"
	"net/http"

	"github.com/floorline/api/internal/config"
	"github.com/floorline/api/internal/database"
	"github.com/floorline/api/internal/event"
	"github.com/floorline/api/internal/handler"
	mw "github.com/floorline/api/internal/middleware"
	"github.com/floorline/api/internal/service"
	"github.com/floorline/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New creates a Chi router with all application routes wired up.
// Every RPC operation sits behind authentication; role checks are applied per
// operation by the handlers.
func New(cfg *config.Config, pool service.Pool, hub *ws.Hub, notify event.Publisher) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handler.IdempotencyKeyHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	queries := database.New(pool)

	// Push channel. Browsers cannot set headers on the upgrade request, so the
	// token may also arrive as ?token=.
	r.With(mw.Authenticate(cfg.JWTSecret)).Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, w, r)
	})

	ledger := service.NewInventoryLedger(pool, func(db database.DBTX) service.InventoryStore {
		return database.New(db)
	}, notify)
	tables := service.NewTableController(pool, func(db database.DBTX) service.TableStore {
		return database.New(db)
	}, notify)
	orders := service.NewOrderService(pool, func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}, notify, cfg.MaxConflictRetries)
	requests := service.NewServiceRequestService(pool, func(db database.DBTX) service.ServiceRequestStore {
		return database.New(db)
	}, notify)

	r.Route("/rpc", func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		handler.NewOrderHandler(orders).RegisterRoutes(r)
		handler.NewTableHandler(tables).RegisterRoutes(r)
		handler.NewInventoryHandler(ledger).RegisterRoutes(r)
		handler.NewServiceRequestHandler(requests).RegisterRoutes(r)
		handler.NewMenuHandler(queries).RegisterRoutes(r)
	})

	log.Println("Router initialized with all handlers")
	return r
}
