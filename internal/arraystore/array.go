// SPDX-License-Identifier: EPL-2.0

package arraystore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// Kind tells dense and sparse arrays apart.
type Kind string

const (
	KindDense  Kind = "dense"
	KindSparse Kind = "sparse"
)

// FragmentStats counts the fragments of an array.
type FragmentStats struct {
	Live         int64 `db:"live" json:"live" yaml:"live"`
	Consolidated int64 `db:"consolidated" json:"consolidated" yaml:"consolidated"`
}

// array is the part shared by both kinds: the connection, metadata and
// fragment bookkeeping.
type array struct {
	db   *sqlx.DB
	uri  string
	kind Kind
	log  *zap.Logger
}

func (c *Context) createArray(ctx context.Context, uri string, kind Kind, schema any) (*array, error) {
	if c.Exists(uri) {
		return nil, fmt.Errorf("array %s: %w", uri, ErrAlreadyExists)
	}

	body, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}

	if err := os.MkdirAll(uri, 0o750); err != nil {
		return nil, fmt.Errorf("create array dir: %w", err)
	}

	db, err := c.connect(ctx, filepath.Join(uri, arrayFile))
	if err != nil {
		c.removeArray(uri)
		return nil, err
	}

	a := &array{db: db, uri: uri, kind: kind, log: c.log.With(zap.String("array", uri))}

	err = a.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}

		_, err := tx.ExecContext(ctx, `INSERT INTO array_schema (id, kind, body) VALUES (1, ?, ?)`, string(kind), string(body))
		if err != nil {
			return fmt.Errorf("store schema: %w", err)
		}

		return nil
	})
	if err != nil {
		_ = db.Close()
		c.removeArray(uri)

		return nil, err
	}

	a.log.Debug("array created", zap.String("kind", string(kind)))

	return a, nil
}

func (c *Context) openArray(ctx context.Context, uri string, kind Kind, schema any) (*array, error) {
	if !c.Exists(uri) {
		return nil, fmt.Errorf("array %s: %w", uri, ErrNotFound)
	}

	db, err := c.connect(ctx, filepath.Join(uri, arrayFile))
	if err != nil {
		return nil, err
	}

	var row struct {
		Kind string `db:"kind"`
		Body string `db:"body"`
	}

	if err := db.GetContext(ctx, &row, `SELECT kind, body FROM array_schema WHERE id = 1`); err != nil {
		_ = db.Close()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("array %s has no schema: %w", uri, ErrInvalidSchema)
		}

		return nil, fmt.Errorf("load schema: %w", err)
	}

	if Kind(row.Kind) != kind {
		_ = db.Close()
		return nil, fmt.Errorf("array %s is %s, want %s: %w", uri, row.Kind, kind, ErrKindMismatch)
	}

	if err := json.Unmarshal([]byte(row.Body), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	return &array{db: db, uri: uri, kind: kind, log: c.log.With(zap.String("array", uri))}, nil
}

// URI returns the array directory.
func (a *array) URI() string {
	return a.uri
}

// Close releases the underlying database.
func (a *array) Close() error {
	return a.db.Close()
}

// PutMeta stores a metadata value, replacing any previous one.
func (a *array) PutMeta(ctx context.Context, key, value string) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO array_meta (meta_key, meta_value) VALUES (?, ?)
		ON CONFLICT (meta_key) DO UPDATE SET meta_value = excluded.meta_value`, key, value)
	if err != nil {
		return fmt.Errorf("put meta %s: %w", key, err)
	}

	return nil
}

// Meta returns a metadata value, or ErrNotFound.
func (a *array) Meta(ctx context.Context, key string) (string, error) {
	var value string

	err := a.db.GetContext(ctx, &value, `SELECT meta_value FROM array_meta WHERE meta_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %s: %w", key, ErrNotFound)
	}

	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}

	return value, nil
}

// MetaInt returns a metadata value parsed as a base 10 integer.
func (a *array) MetaInt(ctx context.Context, key string) (int64, error) {
	value, err := a.Meta(ctx, key)
	if err != nil {
		return 0, err
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("meta %s is not an integer: %w", key, err)
	}

	return n, nil
}

// Fragments counts live and consolidated fragments.
func (a *array) Fragments(ctx context.Context) (FragmentStats, error) {
	var st FragmentStats

	err := a.db.GetContext(ctx, &st, `
		SELECT COALESCE(SUM(consolidated = 0), 0) AS live,
		       COALESCE(SUM(consolidated = 1), 0) AS consolidated
		FROM fragments`)
	if err != nil {
		return FragmentStats{}, fmt.Errorf("count fragments: %w", err)
	}

	return st, nil
}

// Vacuum deletes consolidated fragments and compacts the file.
func (a *array) Vacuum(ctx context.Context) error {
	var removed int64

	err := a.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, q := range []string{
			`DELETE FROM dense_cells WHERE fragment IN (SELECT seq FROM fragments WHERE consolidated = 1)`,
			`DELETE FROM sparse_cells WHERE fragment IN (SELECT seq FROM fragments WHERE consolidated = 1)`,
		} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("delete cells: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM fragments WHERE consolidated = 1`)
		if err != nil {
			return fmt.Errorf("delete fragments: %w", err)
		}

		removed, _ = res.RowsAffected()

		return nil
	})
	if err != nil {
		return err
	}

	if _, err := a.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}

	a.log.Debug("vacuumed", zap.Int64("fragments_removed", removed))

	return nil
}

// consolidate runs merge inside one transaction against a fresh fragment,
// then retires every fragment that was live when it started. It is a no-op
// with fewer than two live fragments.
func (a *array) consolidate(ctx context.Context, merge func(tx *sqlx.Tx, lastSeq, frag int64) error) error {
	return a.withTx(ctx, func(tx *sqlx.Tx) error {
		var live struct {
			Count   int64         `db:"n"`
			LastSeq sql.NullInt64 `db:"last_seq"`
		}

		err := tx.GetContext(ctx, &live, `SELECT COUNT(*) AS n, MAX(seq) AS last_seq FROM fragments WHERE consolidated = 0`)
		if err != nil {
			return fmt.Errorf("count live fragments: %w", err)
		}

		if live.Count < 2 {
			return nil
		}

		frag, err := a.newFragment(ctx, tx)
		if err != nil {
			return err
		}

		if err := merge(tx, live.LastSeq.Int64, frag); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE fragments SET consolidated = 1 WHERE consolidated = 0 AND seq <= ?`, live.LastSeq.Int64)
		if err != nil {
			return fmt.Errorf("retire fragments: %w", err)
		}

		a.log.Debug("consolidated", zap.Int64("fragments", live.Count))

		return nil
	})
}

func (a *array) newFragment(ctx context.Context, tx *sqlx.Tx) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO fragments (uri, created_at) VALUES (?, ?)`,
		uuid.NewString(), time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("create fragment: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("fragment id: %w", err)
	}

	return seq, nil
}

func (a *array) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}
