package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/orderhub/internal/domain/order"
	"github.com/geocoder89/orderhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrdersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewOrdersRepo(pool *pgxpool.Pool, prom *observability.Prom) *OrdersRepo {
	return &OrdersRepo{pool: pool, prom: prom}
}

func (r *OrdersRepo) observe(op string, fn func() error) error {
	return r.prom.ObserveDB(op, fn)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *OrdersRepo) inTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func insertItems(ctx context.Context, tx pgx.Tx, items []order.Item) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(
			`INSERT INTO order_items (id, order_id, product_id, product_name, quantity, price, total)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			it.ID, it.OrderID, it.ProductID, it.ProductName, it.Quantity, it.Price, it.Total,
		)
	}

	return tx.SendBatch(ctx, batch).Close()
}

func loadItems(ctx context.Context, q querier, orderID string) ([]order.Item, error) {
	rows, err := q.Query(ctx,
		`SELECT id, order_id, product_id, product_name, quantity, price, total
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]order.Item, 0)
	for rows.Next() {
		var it order.Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price, &it.Total); err != nil {
			return nil, err
		}
		items = append(items, it)
	}

	return items, rows.Err()
}

func loadOrder(ctx context.Context, q querier, id string) (order.Order, error) {
	var o order.Order

	err := q.QueryRow(ctx,
		`SELECT id, user_id, status, total_amount, created_at, updated_at FROM orders WHERE id = $1`,
		id,
	).Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, err
	}

	o.Items, err = loadItems(ctx, q, id)
	if err != nil {
		return order.Order{}, err
	}

	return o, nil
}

func (r *OrdersRepo) Create(ctx context.Context, o order.Order) (order.Order, error) {
	err := r.observe("orders.create", func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx,
				`INSERT INTO orders (id, user_id, status, total_amount, created_at, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				o.ID, o.UserID, o.Status, o.TotalAmount, o.CreatedAt, o.UpdatedAt,
			)
			if err != nil {
				return err
			}
			return insertItems(ctx, tx, o.Items)
		})
	})

	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func (r *OrdersRepo) GetByID(ctx context.Context, id string) (order.Order, error) {
	var o order.Order

	err := r.observe("orders.get_by_id", func() error {
		var err error
		o, err = loadOrder(ctx, r.pool, id)
		return err
	})

	return o, err
}

func (r *OrdersRepo) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	out := make([]order.Order, 0)

	err := r.observe("orders.list_by_user", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT id, user_id, status, total_amount, created_at, updated_at
			FROM orders
			WHERE user_id = $1
			ORDER BY created_at ASC, id ASC`,
			userID,
		)
		if err != nil {
			return err
		}

		for rows.Next() {
			var o order.Order
			if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt); err != nil {
				rows.Close()
				return err
			}
			out = append(out, o)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for i := range out {
			out[i].Items, err = loadItems(ctx, r.pool, out[i].ID)
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *OrdersRepo) Update(ctx context.Context, id string, p order.Patch) (order.Order, error) {
	var o order.Order

	err := r.observe("orders.update", func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx,
				`UPDATE orders
				SET status = COALESCE($2, status),
					total_amount = COALESCE($3, total_amount),
					updated_at = NOW()
				WHERE id = $1`,
				id, p.Status, p.TotalAmount,
			)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return order.ErrNotFound
			}

			if p.ReplaceItems {
				if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
					return err
				}
				if err := insertItems(ctx, tx, p.Items); err != nil {
					return err
				}
			}

			o, err = loadOrder(ctx, tx, id)
			return err
		})
	})

	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func (r *OrdersRepo) Delete(ctx context.Context, id string) error {
	return r.observe("orders.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return order.ErrNotFound
		}
		return nil
	})
}

func (r *OrdersRepo) AddItems(ctx context.Context, id string, items []order.Item) (order.Order, error) {
	var o order.Order

	err := r.observe("orders.add_items", func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			// lock the header so concurrent item edits serialize
			var exists string
			err := tx.QueryRow(ctx, `SELECT id FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&exists)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return order.ErrNotFound
				}
				return err
			}

			if err := insertItems(ctx, tx, items); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `UPDATE orders SET updated_at = NOW() WHERE id = $1`, id); err != nil {
				return err
			}

			o, err = loadOrder(ctx, tx, id)
			return err
		})
	})

	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func (r *OrdersRepo) RemoveItems(ctx context.Context, id string, itemIDs []string) (order.Order, error) {
	var o order.Order

	err := r.observe("orders.remove_items", func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			var exists string
			err := tx.QueryRow(ctx, `SELECT id FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&exists)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return order.ErrNotFound
				}
				return err
			}

			_, err = tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1 AND id = ANY($2)`, id, itemIDs)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `UPDATE orders SET updated_at = NOW() WHERE id = $1`, id); err != nil {
				return err
			}

			o, err = loadOrder(ctx, tx, id)
			return err
		})
	})

	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}
