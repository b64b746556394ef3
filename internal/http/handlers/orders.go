package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/orderhub/internal/actorctx"
	"github.com/geocoder89/orderhub/internal/apperr"
	"github.com/geocoder89/orderhub/internal/config"
	"github.com/geocoder89/orderhub/internal/domain/order"
	"github.com/geocoder89/orderhub/internal/domain/user"
	"github.com/gin-gonic/gin"
)

type OrderAPI interface {
	Create(ctx context.Context, actor user.User, req order.CreateOrderRequest) (order.Order, error)
	Get(ctx context.Context, actor user.User, id string) (order.Order, error)
	ListByUser(ctx context.Context, actor user.User, userID string) ([]order.Order, error)
	Update(ctx context.Context, actor user.User, id string, req order.UpdateOrderRequest) (order.Order, error)
	Delete(ctx context.Context, actor user.User, id string) error
	AddItems(ctx context.Context, actor user.User, id string, reqs []order.ItemRequest) (order.Order, error)
	RemoveItems(ctx context.Context, actor user.User, id string, itemIDs []string) (order.Order, error)
}

type OrdersHandler struct {
	svc     OrderAPI
	timeout time.Duration
}

func NewOrdersHandler(svc OrderAPI, timeout time.Duration) *OrdersHandler {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &OrdersHandler{svc: svc, timeout: timeout}
}

// actor is set by the auth middleware on every order route.
func (h *OrdersHandler) actor(ctx *gin.Context) (user.User, bool) {
	u, ok := actorctx.UserFrom(ctx.Request.Context())
	if !ok {
		RespondAppError(ctx, apperr.Unauthenticated("unauthorized", "Please authenticate"))
	}
	return u, ok
}

func (h *OrdersHandler) Create(ctx *gin.Context) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	var req order.CreateOrderRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	o, err := h.svc.Create(cctx, actor, req)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, o)
}

func (h *OrdersHandler) Get(ctx *gin.Context) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	o, err := h.svc.Get(cctx, actor, ctx.Param("orderId"))
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, o)
}

func (h *OrdersHandler) ListByUser(ctx *gin.Context) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	orders, err := h.svc.ListByUser(cctx, actor, ctx.Param("userId"))
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{"results": orders, "count": len(orders)})
}

func (h *OrdersHandler) Update(ctx *gin.Context) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	var req order.UpdateOrderRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	o, err := h.svc.Update(cctx, actor, ctx.Param("orderId"), req)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, o)
}

func (h *OrdersHandler) Delete(ctx *gin.Context) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	if err := h.svc.Delete(cctx, actor, ctx.Param("orderId")); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *OrdersHandler) AddItems(ctx *gin.Context) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	var req order.AddItemsRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	o, err := h.svc.AddItems(cctx, actor, ctx.Param("orderId"), req.Items)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, o)
}

func (h *OrdersHandler) RemoveItems(ctx *gin.Context) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	var req order.RemoveItemsRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	o, err := h.svc.RemoveItems(cctx, actor, ctx.Param("orderId"), req.ItemIDs)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, o)
}
