package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"staffhub/internal/models"
)

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

// sqlQuerier is the subset of *sql.DB and *sql.Tx used by the SQLite backend.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// nullableID maps an empty generated ID to NULL so legacy rows without one
// do not collide on the UNIQUE constraint.
func nullableID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nativeIDFromSeq renders a row sequence as the NativeID exposed to clients.
func nativeIDFromSeq(seq int64) string {
	return strconv.FormatInt(seq, 10)
}

// seqFromRef parses a ref as a row sequence. Generated IDs never parse.
func seqFromRef(ref string) (int64, bool) {
	seq, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}

// canonicalRefFor mirrors models.Target.Ref for a raw row.
func canonicalRefFor(id *string, seq int64) string {
	if id != nil && *id != "" {
		return *id
	}
	return nativeIDFromSeq(seq)
}

func toUnixNano(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// notFound wraps sql.ErrNoRows into ErrNotFound and passes anything else through.
func notFound(err error, what, ref string) error {
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %s: %w", what, ref, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// userPatchColumns lists the column and value of every set field in p, in a
// fixed order. boolValue converts is_admin for the backend's column type.
func userPatchColumns(p *models.UserPatch, boolValue func(bool) any) ([]string, []any) {
	var cols []string
	var args []any
	add := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
	}
	if p.FirstName != nil {
		add("first_name", *p.FirstName)
	}
	if p.LastName != nil {
		add("last_name", *p.LastName)
	}
	if p.Position != nil {
		add("position", *p.Position)
	}
	if p.PasswordHash != nil {
		add("password_hash", *p.PasswordHash)
	}
	if p.IsAdmin != nil {
		add("is_admin", boolValue(*p.IsAdmin))
	}
	if p.SpecialRole != nil {
		add("special_role", *p.SpecialRole)
	}
	return cols, args
}

// setClause renders "a = ?, b = ?" or, with a placeholder func, "a = $1, b = $2".
func setClause(cols []string, placeholder func(i int) string) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = col + " = " + placeholder(i+1)
	}
	return strings.Join(parts, ", ")
}
