package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-data-redeem/internal/calculator"
	"github.com/0gfoundation/0g-data-redeem/internal/offers"
	"github.com/0gfoundation/0g-data-redeem/internal/pricing"
	"github.com/0gfoundation/0g-data-redeem/internal/receipt"
	"github.com/0gfoundation/0g-data-redeem/internal/redeem"
	"github.com/0gfoundation/0g-data-redeem/internal/view"
)

// Handler serves the offer table, calculator and redemption flow.
type Handler struct {
	ctrl    *redeem.Controller
	catalog offers.Catalog
	engine  pricing.Engine
	render  view.Renderer
	log     *zap.Logger
}

func NewHandler(ctrl *redeem.Controller, catalog offers.Catalog, engine pricing.Engine, render view.Renderer, log *zap.Logger) *Handler {
	return &Handler{ctrl: ctrl, catalog: catalog, engine: engine, render: render, log: log}
}

// Register mounts all routes. SessionMiddleware should already be applied.
func (h *Handler) Register(r gin.IRouter) {
	// ── HTML page + form posts ─────────────────────────────────────────────
	r.GET("/", h.handleIndex)
	r.POST("/redeem", h.handleFormOpen)
	r.POST("/redeem/confirm", h.formAction(dropReceipt(h.ctrl.PressConfirm)))
	r.POST("/redeem/cancel", h.formAction(dropState(h.ctrl.Cancel)))
	r.POST("/redeem/close", h.formAction(dropState(h.ctrl.Close)))
	r.POST("/redeem/reset", h.formAction(dropState(h.ctrl.Reset)))

	// ── JSON API ───────────────────────────────────────────────────────────
	api := r.Group("/api")
	api.GET("/offers", h.handleOffers)
	api.GET("/quote", h.handleQuote)
	api.GET("/redeem", h.handleState)
	api.POST("/redeem", h.handleOpen)
	api.POST("/redeem/confirm-control", h.handleConfirm(h.ctrl.PressConfirm))
	api.POST("/redeem/confirm", h.handleConfirm(h.ctrl.Confirm))
	api.POST("/redeem/cancel", h.handleTransition(h.ctrl.Cancel))
	api.POST("/redeem/close", h.handleTransition(h.ctrl.Close))
	api.POST("/redeem/reset", h.handleTransition(h.ctrl.Reset))
}

type openRequest struct {
	AmountMB float64 `json:"amount_mb" form:"amount_mb"`
	Label    string  `json:"label" form:"label"`
}

// offer keeps the client's label only when it names the same amount;
// otherwise the label is derived from AmountMB.
func (o openRequest) offer(catalog offers.Catalog) offers.Offer {
	if mb, ok := offers.ParseLabel(o.Label); ok && mb == o.AmountMB {
		return offers.Offer{Label: strings.TrimSpace(o.Label), AmountMB: o.AmountMB}
	}
	return offers.Offer{Label: catalog.LabelFor(o.AmountMB), AmountMB: o.AmountMB}
}

type stateResponse struct {
	Modal   view.Modal       `json:"modal"`
	Pending *redeem.Pending  `json:"pending"`
	Receipt *receipt.Receipt `json:"receipt,omitempty"`
}

type offerResponse struct {
	offers.Offer
	pricing.Quote
	Display view.OfferRow `json:"display"`
}

type quoteResponse struct {
	calculator.Result
	Display view.Calc `json:"display"`
}

// ── Page ────────────────────────────────────────────────────────────────────

func (h *Handler) handleIndex(c *gin.Context) {
	sid := c.GetString(sessionKey)
	st, err := h.ctrl.State(c.Request.Context(), sid)
	if err != nil {
		h.log.Error("load session", zap.String("session", sid), zap.Error(err))
		c.String(http.StatusInternalServerError, "internal error")
		return
	}

	page := view.Page{
		Query:             c.Query("q"),
		Amount:            c.Query("amount"),
		Unit:              c.DefaultQuery("unit", string(calculator.MB)),
		CommissionPercent: h.engine.CommissionPercent(),
		Rows:              h.render.RenderOffers(h.catalog.Rows(h.engine, c.Query("q"))),
		Modal:             h.render.RenderModal(st, h.ctrl.Policy()),
	}
	if _, ok := c.GetQuery("amount"); ok {
		res, err := calculator.Calculate(h.engine, page.Amount, page.Unit)
		if err != nil {
			page.Calc = h.render.RenderCalc(nil, err)
		} else {
			page.Calc = h.render.RenderCalc(&res, nil)
		}
	}
	c.HTML(http.StatusOK, "index.tmpl", page)
}

func (h *Handler) handleFormOpen(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBind(&req); err != nil {
		c.String(http.StatusBadRequest, calculator.ErrInvalidInput.Error())
		return
	}
	if _, err := h.ctrl.Open(c.Request.Context(), c.GetString(sessionKey), req.offer(h.catalog)); err != nil {
		h.formError(c, err)
		return
	}
	h.backToIndex(c)
}

type (
	transitionFunc func(ctx context.Context, sid string) (redeem.State, error)
	confirmFunc    func(ctx context.Context, sid string) (redeem.State, *receipt.Receipt, error)
	actionFunc     func(ctx context.Context, sid string) error
)

func (h *Handler) formAction(fn actionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(c.Request.Context(), c.GetString(sessionKey)); err != nil {
			h.formError(c, err)
			return
		}
		h.backToIndex(c)
	}
}

func dropState(fn transitionFunc) actionFunc {
	return func(ctx context.Context, sid string) error {
		_, err := fn(ctx, sid)
		return err
	}
}

func dropReceipt(fn confirmFunc) actionFunc {
	return func(ctx context.Context, sid string) error {
		_, _, err := fn(ctx, sid)
		return err
	}
}

func (h *Handler) formError(c *gin.Context, err error) {
	if errors.Is(err, calculator.ErrInvalidInput) {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	h.log.Error("redeem form action", zap.String("session", c.GetString(sessionKey)), zap.Error(err))
	c.String(http.StatusInternalServerError, "internal error")
}

func (h *Handler) backToIndex(c *gin.Context) {
	target := "/"
	if q := c.Query("q"); q != "" {
		target += "?q=" + url.QueryEscape(q)
	}
	c.Redirect(http.StatusSeeOther, target)
}

// ── JSON API ────────────────────────────────────────────────────────────────

func (h *Handler) handleOffers(c *gin.Context) {
	rows := h.catalog.Rows(h.engine, c.Query("q"))
	display := h.render.RenderOffers(rows)
	out := make([]offerResponse, len(rows))
	for i, r := range rows {
		out[i] = offerResponse{Offer: r.Offer, Quote: r.Quote, Display: display[i]}
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) handleQuote(c *gin.Context) {
	res, err := calculator.Calculate(h.engine, c.Query("amount"), c.DefaultQuery("unit", string(calculator.MB)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, quoteResponse{Result: res, Display: h.render.RenderCalc(&res, nil)})
}

func (h *Handler) handleState(c *gin.Context) {
	st, err := h.ctrl.State(c.Request.Context(), c.GetString(sessionKey))
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.stateResponse(st, nil))
}

func (h *Handler) handleOpen(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	st, err := h.ctrl.Open(c.Request.Context(), c.GetString(sessionKey), req.offer(h.catalog))
	if err != nil {
		if errors.Is(err, calculator.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.stateResponse(st, nil))
}

func (h *Handler) handleConfirm(fn confirmFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, rc, err := fn(c.Request.Context(), c.GetString(sessionKey))
		if err != nil {
			h.internalError(c, err)
			return
		}
		c.JSON(http.StatusOK, h.stateResponse(st, rc))
	}
}

func (h *Handler) handleTransition(fn transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := fn(c.Request.Context(), c.GetString(sessionKey))
		if err != nil {
			h.internalError(c, err)
			return
		}
		c.JSON(http.StatusOK, h.stateResponse(st, nil))
	}
}

func (h *Handler) stateResponse(st redeem.State, rc *receipt.Receipt) stateResponse {
	return stateResponse{
		Modal:   h.render.RenderModal(st, h.ctrl.Policy()),
		Pending: st.Pending,
		Receipt: rc,
	}
}

func (h *Handler) internalError(c *gin.Context, err error) {
	h.log.Error("redeem api", zap.String("session", c.GetString(sessionKey)), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
