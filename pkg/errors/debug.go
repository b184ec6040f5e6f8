package errors

import (
	stdErrors "errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Dump renders the full cause chain of err, including driver-level
// Postgres diagnostics when present. Output is intended for logs only
// and must never be returned to API clients.
func Dump(err error) string {
	if err == nil {
		return ""
	}

	var b strings.Builder
	depth := 0
	for current := err; current != nil; current = stdErrors.Unwrap(current) {
		if depth > 0 {
			b.WriteString("\n  caused by: ")
		}
		b.WriteString(current.Error())

		var pgErr *pgconn.PgError
		if stdErrors.As(current, &pgErr) {
			writePgconnDiagnostics(&b, pgErr)
		}
		var pqErr *pq.Error
		if stdErrors.As(current, &pqErr) {
			writePqDiagnostics(&b, pqErr)
		}
		depth++
		if depth > 32 {
			b.WriteString("\n  ... chain truncated")
			break
		}
	}
	return b.String()
}

func writePgconnDiagnostics(b *strings.Builder, pgErr *pgconn.PgError) {
	b.WriteString("\n    pg code=")
	b.WriteString(pgErr.Code)
	if pgErr.ConstraintName != "" {
		b.WriteString(" constraint=")
		b.WriteString(pgErr.ConstraintName)
	}
	if pgErr.TableName != "" {
		b.WriteString(" table=")
		b.WriteString(pgErr.TableName)
	}
	if pgErr.Detail != "" {
		b.WriteString(" detail=")
		b.WriteString(pgErr.Detail)
	}
}

func writePqDiagnostics(b *strings.Builder, pqErr *pq.Error) {
	b.WriteString("\n    pq code=")
	b.WriteString(string(pqErr.Code))
	if pqErr.Constraint != "" {
		b.WriteString(" constraint=")
		b.WriteString(pqErr.Constraint)
	}
	if pqErr.Table != "" {
		b.WriteString(" table=")
		b.WriteString(pqErr.Table)
	}
	if pqErr.Detail != "" {
		b.WriteString(" detail=")
		b.WriteString(pqErr.Detail)
	}
}
