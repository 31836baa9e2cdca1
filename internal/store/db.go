package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// execer is the query surface *sql.DB and *sql.Tx share.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rebound runs queries written with `?` placeholders against PostgreSQL,
// which wants `$n`.
type rebound struct {
	h execer
}

func (r rebound) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.h.ExecContext(ctx, rebind(query), args...)
}

func (r rebound) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.h.QueryContext(ctx, rebind(query), args...)
}

func (r rebound) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return r.h.QueryRowContext(ctx, rebind(query), args...)
}

type DB struct {
	rebound
	raw *sql.DB
}

func newDB(raw *sql.DB) *DB {
	return &DB{rebound: rebound{h: raw}, raw: raw}
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.raw.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{rebound: rebound{h: tx}, raw: tx}, nil
}

func (db *DB) Close() error { return db.raw.Close() }

type Tx struct {
	rebound
	raw *sql.Tx
}

func (tx *Tx) Commit() error   { return tx.raw.Commit() }
func (tx *Tx) Rollback() error { return tx.raw.Rollback() }

// rebind numbers `?` placeholders outside string literals, quoted
// identifiers and line comments.
func rebind(query string) string {
	var out strings.Builder
	out.Grow(len(query) + 8)

	n := 0
	var quote byte
	comment := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case comment:
			comment = ch != '\n'
		case quote != 0:
			// A doubled quote is an escaped one and keeps the literal open.
			if ch == quote {
				if i+1 < len(query) && query[i+1] == quote {
					out.WriteByte(ch)
					i++
				} else {
					quote = 0
				}
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '-' && i+1 < len(query) && query[i+1] == '-':
			comment = true
		case ch == '?':
			n++
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(n))
			continue
		}
		out.WriteByte(ch)
	}
	return out.String()
}

// placeholders returns n comma-separated `?`.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
