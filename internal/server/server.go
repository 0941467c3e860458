package server

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/prawira/gotix/config"
	"github.com/prawira/gotix/internal/clock"
	"github.com/prawira/gotix/internal/coordinator"
	"github.com/prawira/gotix/internal/handlers"
	"github.com/prawira/gotix/internal/inventory"
	"github.com/prawira/gotix/internal/issuer"
	"github.com/prawira/gotix/internal/middleware"
	"github.com/prawira/gotix/internal/provider"
	"github.com/prawira/gotix/internal/reconcile"
	"github.com/prawira/gotix/internal/storage"
)

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}

	clk := clock.System()
	store := storage.New(db)
	ledger := inventory.NewLedger(store, clk, cfg.ReservationTTL)
	tickets := issuer.NewIssuer(store)
	reconciler := reconcile.NewReconciler(store, ledger, tickets, clk)

	gateways := []provider.Gateway{
		provider.NewDoku(config.LoadDokuConfig(), nil, clk),
		provider.NewXendit(config.LoadXenditConfig(), nil),
	}
	co := coordinator.New(store, ledger, reconciler, gateways)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go reconcile.NewSweeper(reconciler, cfg.SweepInterval).Run(sweepCtx)

	r := gin.Default()

	setupRoutes(r, db, co)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return r.Run(":" + port)
}

func setupRoutes(r *gin.Engine, db *gorm.DB, co *coordinator.Coordinator) {
	r.Use(middleware.DatabaseMiddleware(db))
	r.Use(middleware.EngineMiddleware(co))

	public := r.Group("/v1")
	{
		public.POST("/register", handlers.Register)
		public.POST("/login", handlers.Login)

		eventPublic := public.Group("/events")
		{
			eventPublic.GET("", handlers.ListEvents)
			eventPublic.GET("/:id", handlers.GetEvent)
		}

		// Provider callbacks authenticate themselves via signature or
		// pre-shared token; they carry no user session.
		public.POST("/callbacks/:provider", handlers.HandleProviderCallback)
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware())
	{
		purchases := protected.Group("/purchases")
		{
			purchases.POST("", handlers.CreatePurchase)
			purchases.GET("/:id", handlers.GetPurchase)
			purchases.POST("/:id/sync", handlers.SyncPurchase)
		}

		tickets := protected.Group("/tickets")
		{
			tickets.GET("", handlers.ListMyTickets)
			tickets.GET("/:id", handlers.GetTicket)
		}
	}

	admin := r.Group("/v1")
	admin.Use(middleware.JWTAuthMiddleware(), middleware.AdminOnly())
	{
		adminEvents := admin.Group("/events")
		{
			adminEvents.POST("", handlers.CreateEvent)
			adminEvents.PUT("/:id", handlers.UpdateEvent)
			adminEvents.DELETE("/:id", handlers.DeleteEvent)
		}

		admin.DELETE("/admin/tickets/:id", handlers.CancelTicket)
	}
}
