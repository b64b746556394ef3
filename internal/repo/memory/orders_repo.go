package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/orderhub/internal/domain/order"
)

type OrdersRepo struct {
	mu    sync.RWMutex
	items map[string]order.Order
}

func NewOrdersRepo() *OrdersRepo {
	return &OrdersRepo{
		items: make(map[string]order.Order),
	}
}

func cloneOrder(o order.Order) order.Order {
	items := make([]order.Item, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}

func (r *OrdersRepo) Create(_ context.Context, o order.Order) (order.Order, error) {
	r.mu.Lock()
	r.items[o.ID] = cloneOrder(o)
	r.mu.Unlock()
	return o, nil
}

func (r *OrdersRepo) GetByID(_ context.Context, id string) (order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.items[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *OrdersRepo) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	r.mu.RLock()
	out := make([]order.Order, 0)
	for _, o := range r.items {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *OrdersRepo) Update(_ context.Context, id string, p order.Patch) (order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.items[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.TotalAmount != nil {
		o.TotalAmount = *p.TotalAmount
	}
	if p.ReplaceItems {
		o.Items = append([]order.Item(nil), p.Items...)
	}
	o.UpdatedAt = time.Now().UTC()
	r.items[id] = o
	return cloneOrder(o), nil
}

func (r *OrdersRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return order.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *OrdersRepo) AddItems(_ context.Context, id string, items []order.Item) (order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.items[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	o.Items = append(o.Items, items...)
	o.UpdatedAt = time.Now().UTC()
	r.items[id] = o
	return cloneOrder(o), nil
}

func (r *OrdersRepo) RemoveItems(_ context.Context, id string, itemIDs []string) (order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.items[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}

	drop := make(map[string]struct{}, len(itemIDs))
	for _, itemID := range itemIDs {
		drop[itemID] = struct{}{}
	}

	kept := make([]order.Item, 0, len(o.Items))
	for _, it := range o.Items {
		if _, gone := drop[it.ID]; !gone {
			kept = append(kept, it)
		}
	}
	o.Items = kept
	o.UpdatedAt = time.Now().UTC()
	r.items[id] = o
	return cloneOrder(o), nil
}
