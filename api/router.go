package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pos_sync/internal/connectivity"
	"pos_sync/internal/notify"
	"pos_sync/internal/sales"
	"pos_sync/internal/syncer"
)

// Deps are the components the checkout UI talks to.
type Deps struct {
	Service *sales.Service
	Local   *sales.Local
	Engine  *syncer.Engine
	Monitor *connectivity.Monitor
	Drawer  sales.Drawer
	Hub     *notify.Hub
	Logger  *zap.Logger

	Currency         string
	CurrencyExponent int32
}

// InitRoutes registers the register endpoints on the given Gin engine.
func InitRoutes(e *gin.Engine, d Deps) {
	if d.Logger == nil {
		d.Logger, _ = zap.NewProduction()
	}
	h := NewSalesHandler(d)

	e.POST("/checkout", h.handleCheckout)
	e.GET("/tender", h.handleTender)

	e.GET("/products", h.handleListProducts)
	e.GET("/products/:id", h.handleGetProduct)
	e.POST("/products/refresh", h.handleRefreshProducts)

	e.GET("/queue", h.handleListQueue)
	e.POST("/sync", h.handleSync)
	e.GET("/status", h.handleStatus)
	e.POST("/connectivity", h.handleConnectivity)

	e.GET("/drawer", h.handleDrawerBalance)
	e.POST("/drawer", h.handleDrawerEntry)

	e.GET("/notifications", h.handleNotifications)
	e.GET("/ws", h.handleWebsocket)

	e.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
}
