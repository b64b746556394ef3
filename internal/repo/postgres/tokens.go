package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/orderhub/internal/domain/token"
	"github.com/geocoder89/orderhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TokensRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewTokensRepo(pool *pgxpool.Pool, prom *observability.Prom) *TokensRepo {
	return &TokensRepo{pool: pool, prom: prom}
}

func (r *TokensRepo) observe(op string, fn func() error) error {
	return r.prom.ObserveDB(op, fn)
}

// Replace deletes the user's tokens of t.Type and inserts t in one transaction.
// Two concurrent calls for the same pair still race; the last commit wins.
func (r *TokensRepo) Replace(ctx context.Context, t token.Token) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	err = r.observe("tokens.replace.delete", func() error {
		_, err := tx.Exec(ctx, `DELETE FROM tokens WHERE user_id = $1 AND type = $2`, t.UserID, t.Type)
		return err
	})
	if err != nil {
		return err
	}

	err = r.observe("tokens.replace.insert", func() error {
		_, err := tx.Exec(ctx,
			`INSERT INTO tokens (id, user_id, value, type, expires, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
			t.ID, t.UserID, t.Value, t.Type, t.Expires, t.CreatedAt,
		)
		return err
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func scanToken(row pgx.Row) (token.Token, error) {
	var t token.Token
	err := row.Scan(&t.ID, &t.UserID, &t.Value, &t.Type, &t.Expires, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return token.Token{}, token.ErrNotFound
		}
		return token.Token{}, err
	}
	return t, nil
}

func (r *TokensRepo) Find(ctx context.Context, userID, value string, typ token.Type) (token.Token, error) {
	var t token.Token

	err := r.observe("tokens.find", func() error {
		var err error
		t, err = scanToken(r.pool.QueryRow(ctx,
			`SELECT id, user_id, value, type, expires, created_at
			FROM tokens
			WHERE user_id = $1 AND value = $2 AND type = $3`,
			userID, value, typ,
		))
		return err
	})

	return t, err
}

func (r *TokensRepo) FindByValue(ctx context.Context, value string, typ token.Type) (token.Token, error) {
	var t token.Token

	err := r.observe("tokens.find_by_value", func() error {
		var err error
		t, err = scanToken(r.pool.QueryRow(ctx,
			`SELECT id, user_id, value, type, expires, created_at
			FROM tokens
			WHERE value = $1 AND type = $2
			LIMIT 1`,
			value, typ,
		))
		return err
	})

	return t, err
}

// Delete reports token.ErrNotFound when no row matched; concurrent
// consumers of the same token race on the row and only one wins.
func (r *TokensRepo) Delete(ctx context.Context, id string) error {
	err := r.observe("tokens.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM tokens WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return token.ErrNotFound
	}
	return err
}

func (r *TokensRepo) DeleteByUserAndType(ctx context.Context, userID string, typ token.Type) error {
	return r.observe("tokens.delete_by_user_type", func() error {
		_, err := r.pool.Exec(ctx, `DELETE FROM tokens WHERE user_id = $1 AND type = $2`, userID, typ)
		return err
	})
}

func (r *TokensRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	return r.observe("tokens.delete_all_for_user", func() error {
		_, err := r.pool.Exec(ctx, `DELETE FROM tokens WHERE user_id = $1`, userID)
		return err
	})
}

// LastSessions returns the newest access token creation time per user.
func (r *TokensRepo) LastSessions(ctx context.Context, userIDs []string) ([]token.Session, error) {
	out := make([]token.Session, 0, len(userIDs))

	err := r.observe("tokens.last_sessions", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT user_id, MAX(created_at)
			FROM tokens
			WHERE type = $1 AND user_id = ANY($2)
			GROUP BY user_id`,
			token.TypeAccess, userIDs,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var s token.Session
			if err := rows.Scan(&s.UserID, &s.IssuedAt); err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *TokensRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64

	err := r.observe("tokens.purge_expired", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM tokens WHERE expires <= $1`, now)
		n = tag.RowsAffected()
		return err
	})

	return n, err
}
