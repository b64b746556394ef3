package observability

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ObserveDB times fn under the logical op name. A miss (pgx.ErrNoRows) is an
// answer, not a failure, and is not counted as an error. A nil Prom just runs fn.
func (p *Prom) ObserveDB(op string, fn func() error) error {
	if p == nil {
		return fn()
	}

	start := time.Now()
	err := fn()

	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		outcome = "miss"
	default:
		outcome = "error"
		p.DbErrorsTotal.WithLabelValues(op, classifyDBErr(err)).Inc()
	}

	p.DbQueryDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	return err
}

var pgErrorClasses = map[string]string{
	"23505": "unique_violation",
	"23503": "foreign_key_violation",
	"40001": "serialization_failure",
	"40P01": "deadlock",
	"57014": "query_canceled",
}

func classifyDBErr(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if class, ok := pgErrorClasses[pgErr.Code]; ok {
			return class
		}
		return "pg_" + pgErr.Code
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return "timeout"
	}

	if strings.Contains(strings.ToLower(err.Error()), "connection") {
		return "connection"
	}
	return "unknown"
}
