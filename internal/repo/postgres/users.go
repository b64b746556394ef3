package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/orderhub/internal/domain/user"
	"github.com/geocoder89/orderhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, username, password_hash, role, status, email_verified, name, avatar, note, created_at, updated_at, deleted_at`

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	return r.prom.ObserveDB(op, fn)
}

func scanUser(row pgx.Row, u *user.User) error {
	return row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.PasswordHash,
		&u.Role,
		&u.Status,
		&u.EmailVerified,
		&u.Name,
		&u.Avatar,
		&u.Note,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.DeletedAt,
	)
}

func mapUserErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return user.ErrNotFound
	}
	switch uniqueViolation(err) {
	case "users_email_live_key":
		return user.ErrEmailTaken
	case "users_username_live_key":
		return user.ErrUsernameTaken
	}
	return err
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	err := r.observe("users.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO users (id, email, username, password_hash, role, status, email_verified, name, avatar, note, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			u.ID, u.Email, u.Username, u.PasswordHash, u.Role, u.Status, u.EmailVerified,
			u.Name, u.Avatar, u.Note, u.CreatedAt, u.UpdatedAt,
		)
		return err
	})

	if err != nil {
		return user.User{}, mapUserErr(err)
	}

	return u, nil
}

func (r *UsersRepo) getOne(ctx context.Context, op, where string, arg any) (user.User, error) {
	var u user.User

	err := r.observe(op, func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE `+where+` AND deleted_at IS NULL`,
			arg,
		), &u)
	})

	if err != nil {
		return user.User{}, mapUserErr(err)
	}
	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_id", "id = $1", id)
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_email", "lower(email) = lower($1)", email)
}

func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_username", "lower(username) = lower($1)", username)
}

// Update writes only the columns set on the patch.
func (r *UsersRepo) Update(ctx context.Context, id string, p user.Patch) (user.User, error) {
	sets := []string{}
	args := []any{id}
	argsPosition := 2

	add := func(column string, v any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argsPosition))
		args = append(args, v)
		argsPosition++
	}

	if p.Email != nil {
		add("email", *p.Email)
	}
	if p.PasswordHash != nil {
		add("password_hash", *p.PasswordHash)
	}
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Avatar != nil {
		add("avatar", *p.Avatar)
	}
	if p.Note != nil {
		add("note", *p.Note)
	}
	if p.Role != nil {
		add("role", *p.Role)
	}
	if p.Status != nil {
		add("status", *p.Status)
	}
	if p.EmailVerified != nil {
		add("email_verified", *p.EmailVerified)
	}
	sets = append(sets, "updated_at = NOW()")

	query := `UPDATE users SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 AND deleted_at IS NULL RETURNING ` + userColumns

	var u user.User
	err := r.observe("users.update", func() error {
		return scanUser(r.pool.QueryRow(ctx, query, args...), &u)
	})

	if err != nil {
		return user.User{}, mapUserErr(err)
	}
	return u, nil
}

func (r *UsersRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	var affected int64

	err := r.observe("users.soft_delete", func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE users SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
			id, at,
		)
		affected = tag.RowsAffected()
		return err
	})

	if err != nil {
		return err
	}

	if affected == 0 {
		return user.ErrNotFound
	}
	return nil
}

// List filters, sorts and paginates live users. Every value is a bind
// parameter; the sort column comes from user.SortColumns only.
func (r *UsersRepo) List(ctx context.Context, f user.ListFilter) ([]user.User, int, error) {
	baseQuery := `SELECT ` + userColumns + `, COUNT(*) OVER() AS total FROM users`

	conds := []string{"deleted_at IS NULL"}
	var args []any

	argsPosition := 1

	if f.Name != nil {
		conds = append(conds, fmt.Sprintf("name = $%d", argsPosition))
		args = append(args, *f.Name)
		argsPosition++
	}

	if f.Role != nil {
		conds = append(conds, fmt.Sprintf("role = $%d", argsPosition))
		args = append(args, *f.Role)
		argsPosition++
	}

	if f.Search != "" {
		conds = append(conds, fmt.Sprintf("email ILIKE $%d", argsPosition))
		args = append(args, "%"+escapeLike(f.Search)+"%")
		argsPosition++
	}

	column, ok := user.SortColumns[f.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if f.SortDesc {
		direction = "DESC"
	}

	query := baseQuery + " WHERE " + strings.Join(conds, " AND ")

	// id as tiebreaker keeps pages stable
	query += fmt.Sprintf(" ORDER BY %s %s, id ASC LIMIT $%d OFFSET $%d", column, direction, argsPosition, argsPosition+1)

	args = append(args, f.Limit, f.Offset())

	output := make([]user.User, 0, f.Limit)
	total := 0

	err := r.observe("users.list", func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var u user.User
			var t int

			err = rows.Scan(
				&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.Status, &u.EmailVerified,
				&u.Name, &u.Avatar, &u.Note, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt, &t,
			)
			if err != nil {
				return err
			}

			total = t
			output = append(output, u)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, 0, err
	}

	// a page past the end has no rows to carry the window count
	if len(output) == 0 && f.Offset() > 0 {
		err = r.observe("users.count", func() error {
			return r.pool.QueryRow(ctx,
				`SELECT COUNT(*) FROM users WHERE `+strings.Join(conds, " AND "),
				args[:len(args)-2]...,
			).Scan(&total)
		})
		if err != nil {
			return nil, 0, err
		}
	}

	return output, total, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
