package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/orderhub/internal/apperr"
	"github.com/geocoder89/orderhub/internal/domain/order"
	"github.com/geocoder89/orderhub/internal/domain/user"
	"github.com/geocoder89/orderhub/internal/rbac"
)

// OrderService enforces ownership: callers without MANAGE_USER only see their
// own orders, and a foreign order looks exactly like a missing one.
type OrderService struct {
	orders OrderStore
	users  UserStore
	perms  *rbac.Registry
	log    *slog.Logger
	now    func() time.Time
}

func NewOrderService(orders OrderStore, users UserStore, perms *rbac.Registry, log *slog.Logger) *OrderService {
	if log == nil {
		log = slog.Default()
	}
	return &OrderService{
		orders: orders,
		users:  users,
		perms:  perms,
		log:    log,
		now:    nowUTC,
	}
}

func errOrderNotFound() *apperr.Error {
	return apperr.NotFound("order_not_found", "Order not found")
}

func (s *OrderService) canManage(actor user.User) bool {
	return s.perms.Allows(actor.Role, rbac.ManageUser)
}

func (s *OrderService) loadOwned(ctx context.Context, actor user.User, id string) (order.Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return order.Order{}, errOrderNotFound()
		}
		return order.Order{}, apperr.Internal("Could not load order", err)
	}

	if o.UserID != actor.ID && !s.canManage(actor) {
		return order.Order{}, errOrderNotFound()
	}
	return o, nil
}

func (s *OrderService) Create(ctx context.Context, actor user.User, req order.CreateOrderRequest) (order.Order, error) {
	if len(req.Items) == 0 {
		return order.Order{}, apperr.Validation("validation_error", order.ErrNoItems.Error())
	}

	ownerID := actor.ID
	if req.UserID != "" && req.UserID != actor.ID {
		if !s.canManage(actor) {
			return order.Order{}, apperr.Forbidden("forbidden", "Forbidden")
		}
		if _, err := s.users.GetByID(ctx, req.UserID); err != nil {
			return order.Order{}, mapUserWriteErr(err, "Could not create order")
		}
		ownerID = req.UserID
	}

	o := order.New(ownerID, req.Status, req.TotalAmount, req.Items, s.now())

	created, err := s.orders.Create(ctx, o)
	if err != nil {
		return order.Order{}, apperr.Internal("Could not create order", err)
	}

	s.log.InfoContext(ctx, "order_created", "order_id", created.ID, "user_id", ownerID)
	return created, nil
}

func (s *OrderService) Get(ctx context.Context, actor user.User, id string) (order.Order, error) {
	return s.loadOwned(ctx, actor, id)
}

func (s *OrderService) ListByUser(ctx context.Context, actor user.User, userID string) ([]order.Order, error) {
	if userID != actor.ID && !s.canManage(actor) {
		return nil, apperr.Forbidden("forbidden", "Forbidden")
	}

	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("Could not list orders", err)
	}
	return orders, nil
}

func (s *OrderService) Update(ctx context.Context, actor user.User, id string, req order.UpdateOrderRequest) (order.Order, error) {
	if _, err := s.loadOwned(ctx, actor, id); err != nil {
		return order.Order{}, err
	}

	patch := order.Patch{Status: req.Status, TotalAmount: req.TotalAmount}
	if req.Items != nil {
		if len(req.Items) == 0 {
			return order.Order{}, apperr.Validation("validation_error", order.ErrNoItems.Error())
		}
		patch.ReplaceItems = true
		patch.Items = order.NewItems(id, req.Items)
	}

	updated, err := s.orders.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return order.Order{}, errOrderNotFound()
		}
		return order.Order{}, apperr.Internal("Could not update order", err)
	}
	return updated, nil
}

func (s *OrderService) Delete(ctx context.Context, actor user.User, id string) error {
	if _, err := s.loadOwned(ctx, actor, id); err != nil {
		return err
	}

	if err := s.orders.Delete(ctx, id); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return errOrderNotFound()
		}
		return apperr.Internal("Could not delete order", err)
	}

	s.log.InfoContext(ctx, "order_deleted", "order_id", id)
	return nil
}

func (s *OrderService) AddItems(ctx context.Context, actor user.User, id string, reqs []order.ItemRequest) (order.Order, error) {
	if _, err := s.loadOwned(ctx, actor, id); err != nil {
		return order.Order{}, err
	}

	updated, err := s.orders.AddItems(ctx, id, order.NewItems(id, reqs))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return order.Order{}, errOrderNotFound()
		}
		return order.Order{}, apperr.Internal("Could not add items", err)
	}
	return updated, nil
}

func (s *OrderService) RemoveItems(ctx context.Context, actor user.User, id string, itemIDs []string) (order.Order, error) {
	if _, err := s.loadOwned(ctx, actor, id); err != nil {
		return order.Order{}, err
	}

	updated, err := s.orders.RemoveItems(ctx, id, itemIDs)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return order.Order{}, errOrderNotFound()
		}
		return order.Order{}, apperr.Internal("Could not remove items", err)
	}
	return updated, nil
}
