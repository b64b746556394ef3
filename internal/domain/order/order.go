package order

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
)

type Item struct {
	ID          string  `json:"id"`
	OrderID     string  `json:"orderId"`
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Total       float64 `json:"total"`
}

type Order struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Status      Status    `json:"status"`
	TotalAmount float64   `json:"totalAmount"`
	Items       []Item    `json:"items"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

var (
	ErrNotFound = errors.New("order not found")
	ErrNoItems  = errors.New("order must have at least one item")
)

type ItemRequest struct {
	ProductID   int64    `json:"productId" binding:"required"`
	ProductName string   `json:"productName" binding:"required"`
	Quantity    int      `json:"quantity" binding:"required,min=1"`
	Price       float64  `json:"price" binding:"min=0"`
	Total       *float64 `json:"total" binding:"omitempty,min=0"`
}

type CreateOrderRequest struct {
	UserID      string        `json:"userId" binding:"omitempty,uuid"`
	Status      Status        `json:"status" binding:"omitempty,oneof=PENDING COMPLETED"`
	TotalAmount float64       `json:"totalAmount" binding:"min=0"`
	Items       []ItemRequest `json:"items" binding:"required,min=1,dive"`
}

type UpdateOrderRequest struct {
	Status      *Status       `json:"status" binding:"omitempty,oneof=PENDING COMPLETED"`
	TotalAmount *float64      `json:"totalAmount" binding:"omitempty,min=0"`
	Items       []ItemRequest `json:"items" binding:"omitempty,dive"`
}

type AddItemsRequest struct {
	Items []ItemRequest `json:"items" binding:"required,min=1,dive"`
}

type RemoveItemsRequest struct {
	ItemIDs []string `json:"itemIds" binding:"required,min=1"`
}

// NewItems builds item rows for orderID. A missing total defaults to quantity*price.
func NewItems(orderID string, reqs []ItemRequest) []Item {
	items := make([]Item, 0, len(reqs))
	for _, r := range reqs {
		total := float64(r.Quantity) * r.Price
		if r.Total != nil {
			total = *r.Total
		}
		items = append(items, Item{
			ID:          uuid.NewString(),
			OrderID:     orderID,
			ProductID:   r.ProductID,
			ProductName: r.ProductName,
			Quantity:    r.Quantity,
			Price:       r.Price,
			Total:       total,
		})
	}
	return items
}

func New(userID string, status Status, totalAmount float64, reqs []ItemRequest, now time.Time) Order {
	if status == "" {
		status = StatusPending
	}
	id := uuid.NewString()
	return Order{
		ID:          id,
		UserID:      userID,
		Status:      status,
		TotalAmount: totalAmount,
		Items:       NewItems(id, reqs),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Patch updates the order header. When ReplaceItems is set the item list is swapped wholesale.
type Patch struct {
	Status       *Status
	TotalAmount  *float64
	ReplaceItems bool
	Items        []Item
}
