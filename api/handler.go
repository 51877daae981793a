package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pos_sync/internal/sales"
	"pos_sync/internal/syncer"
)

// salesHandler implements the HTTP handlers of the checkout UI.
type salesHandler struct {
	Deps
	logger *zap.Logger
}

// NewSalesHandler creates a new sales handler.
func NewSalesHandler(d Deps) *salesHandler {
	return &salesHandler{
		Deps:   d,
		logger: d.Logger,
	}
}

type checkoutRequest struct {
	Lines          []sales.CartLine `json:"lines"`
	AmountReceived sales.Amount     `json:"amount_received"`
}

type checkoutResponse struct {
	*sales.Receipt
	Text string `json:"text"`
}

// handleCheckout handles the POST /checkout endpoint.
func (h *salesHandler) handleCheckout(ctx *gin.Context) {
	var req checkoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("failed to bind JSON request", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	// Repeated scans of one product arrive as separate lines.
	var cart sales.Cart
	for _, l := range req.Lines {
		if err := sales.Validate(l); err != nil {
			h.writeError(ctx, err)
			return
		}
		cart.AddLine(l)
	}
	if cart.Empty() {
		h.writeError(ctx, sales.ErrEmptyCart)
		return
	}

	if _, err := sales.Tender(cart.Total(), req.AmountReceived); err != nil {
		h.writeError(ctx, err)
		return
	}

	lines := cart.Lines()
	receipt, err := h.Service.Commit(ctx.Request.Context(), lines, req.AmountReceived)
	if err != nil {
		h.logger.Error("checkout failed", zap.Error(err), zap.Int("lines", len(lines)))
		h.writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, checkoutResponse{
		Receipt: receipt,
		Text:    receipt.Text(h.Currency, h.CurrencyExponent),
	})
}

// handleTender lists the banknotes offered as quick-tender buttons.
func (h *salesHandler) handleTender(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"currency":  h.Currency,
		"banknotes": sales.Banknotes,
	})
}

func (h *salesHandler) handleListProducts(ctx *gin.Context) {
	products, err := h.Local.Mirror.List(ctx.Request.Context())
	if err != nil {
		h.logger.Error("failed to list mirror", zap.Error(err))
		h.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"results": products})
}

func (h *salesHandler) handleGetProduct(ctx *gin.Context) {
	product, err := h.Local.Mirror.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, product)
}

func (h *salesHandler) handleRefreshProducts(ctx *gin.Context) {
	err := h.Engine.RefreshMirror(ctx.Request.Context())
	switch {
	case errors.Is(err, syncer.ErrPendingSales):
		ctx.JSON(http.StatusConflict, gin.H{"error": "unsynced sales pending, sync first"})
	case err != nil:
		h.logger.Warn("mirror refresh failed", zap.Error(err))
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "failed to refresh products"})
	default:
		ctx.Status(http.StatusNoContent)
	}
}

func (h *salesHandler) handleListQueue(ctx *gin.Context) {
	txs, err := h.Local.Queue.ListAll(ctx.Request.Context())
	if err != nil && !errors.Is(err, sales.ErrInvalidRecord) {
		h.writeError(ctx, err)
		return
	}

	resp := gin.H{"results": txs, "pending": len(txs)}
	if err != nil {
		resp["warning"] = err.Error()
	}
	ctx.JSON(http.StatusOK, resp)
}

// handleSync runs one drain and reports its outcome. Sync failures are
// reported in the body, never as an HTTP error.
func (h *salesHandler) handleSync(ctx *gin.Context) {
	report := h.Engine.DrainOnce(ctx.Request.Context())
	ctx.JSON(http.StatusOK, gin.H{"report": report, "status": h.Engine.Status()})
}

func (h *salesHandler) handleStatus(ctx *gin.Context) {
	pending, err := h.Local.Queue.Len(ctx.Request.Context())
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"connectivity": h.Monitor.State().String(),
		"since":        h.Monitor.Since(),
		"pending":      pending,
		"sync":         h.Engine.Status(),
	})
}

// handleConnectivity accepts reachability signals from the host.
func (h *salesHandler) handleConnectivity(ctx *gin.Context) {
	var req struct {
		Online *bool `json:"online"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Online == nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "online flag is required"})
		return
	}
	h.Monitor.Set(*req.Online)
	ctx.JSON(http.StatusOK, gin.H{"connectivity": h.Monitor.State().String()})
}

type entryLister interface {
	Entries(ctx context.Context) ([]sales.DrawerEntry, error)
}

func (h *salesHandler) handleDrawerBalance(ctx *gin.Context) {
	balance, err := h.Drawer.Balance(ctx.Request.Context())
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	resp := gin.H{
		"balance":   balance,
		"formatted": balance.Format(h.Currency, h.CurrencyExponent),
	}
	if l, ok := h.Drawer.(entryLister); ok {
		entries, err := l.Entries(ctx.Request.Context())
		if err != nil {
			h.writeError(ctx, err)
			return
		}
		resp["entries"] = entries
	}
	ctx.JSON(http.StatusOK, resp)
}

func (h *salesHandler) handleDrawerEntry(ctx *gin.Context) {
	var entry sales.DrawerEntry
	if err := ctx.ShouldBindJSON(&entry); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if err := sales.Validate(entry); err != nil {
		h.writeError(ctx, err)
		return
	}
	if err := h.Drawer.Record(ctx.Request.Context(), entry); err != nil {
		h.logger.Error("failed to record drawer entry", zap.Error(err))
		h.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, entry)
}

func (h *salesHandler) handleNotifications(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"results": h.Hub.Recent()})
}

// writeError maps the sales error taxonomy to HTTP statuses. Errors that may
// mean an unrecorded sale are flagged as blocking for the UI.
func (h *salesHandler) writeError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, sales.ErrEmptyCart),
		errors.Is(err, sales.ErrInvalidRecord),
		errors.Is(err, sales.ErrInsufficientPayment):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, sales.ErrProductNotFoundLocally):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
	case errors.Is(err, sales.ErrEnqueueFailed):
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "sale could not be saved", "blocking": true})
	case errors.Is(err, sales.ErrStorageUnavailable):
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "local storage unavailable", "blocking": true})
	default:
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
