// SPDX-License-Identifier: EPL-2.0

package arraystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"
)

// AttrType is the logical type of a sparse attribute. Values are always
// stored as int64.
type AttrType string

const (
	AttrInt64      AttrType = "int64"
	AttrDatetimeMS AttrType = "datetime_ms"
)

// Attr names one sparse attribute.
type Attr struct {
	Name string   `json:"name"`
	Type AttrType `json:"type"`
}

// SparseSchema describes a string keyed array.
type SparseSchema struct {
	Dim   string `json:"dim"`
	Attrs []Attr `json:"attrs"`
}

func (s SparseSchema) validate() error {
	if s.Dim == "" {
		return fmt.Errorf("%w: dimension has no name", ErrInvalidSchema)
	}

	if len(s.Attrs) == 0 {
		return fmt.Errorf("%w: no attributes", ErrInvalidSchema)
	}

	seen := make(map[string]struct{}, len(s.Attrs))
	for _, a := range s.Attrs {
		if a.Name == "" {
			return fmt.Errorf("%w: attribute has no name", ErrInvalidSchema)
		}

		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("%w: duplicate attribute %q", ErrInvalidSchema, a.Name)
		}

		seen[a.Name] = struct{}{}
	}

	return nil
}

// Cell is one sparse entry. Attrs holds exactly the schema attributes.
type Cell struct {
	Key   string
	Attrs map[string]int64
}

// SparseArray maps string keys to attribute sets.
type SparseArray struct {
	*array
	schema SparseSchema
}

// CreateSparse declares a new sparse array at uri.
func (c *Context) CreateSparse(ctx context.Context, uri string, schema SparseSchema) (*SparseArray, error) {
	if err := schema.validate(); err != nil {
		return nil, err
	}

	a, err := c.createArray(ctx, uri, KindSparse, schema)
	if err != nil {
		return nil, err
	}

	return &SparseArray{array: a, schema: schema}, nil
}

// OpenSparse opens an existing sparse array.
func (c *Context) OpenSparse(ctx context.Context, uri string) (*SparseArray, error) {
	var schema SparseSchema

	a, err := c.openArray(ctx, uri, KindSparse, &schema)
	if err != nil {
		return nil, err
	}

	return &SparseArray{array: a, schema: schema}, nil
}

// Schema returns the array layout.
func (s *SparseArray) Schema() SparseSchema {
	return s.schema
}

func (s *SparseArray) checkCell(c Cell) error {
	if c.Key == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidCell, s.schema.Dim)
	}

	if len(c.Attrs) != len(s.schema.Attrs) {
		return fmt.Errorf("%w: %q has %d attributes, want %d", ErrInvalidCell, c.Key, len(c.Attrs), len(s.schema.Attrs))
	}

	for _, a := range s.schema.Attrs {
		if _, ok := c.Attrs[a.Name]; !ok {
			return fmt.Errorf("%w: %q is missing %s", ErrInvalidCell, c.Key, a.Name)
		}
	}

	return nil
}

// Write stores cells as one new fragment. A key repeated in cells keeps its
// last value.
func (s *SparseArray) Write(ctx context.Context, cells []Cell) error {
	if len(cells) == 0 {
		return nil
	}

	last := make(map[string]int, len(cells))
	for i, c := range cells {
		if err := s.checkCell(c); err != nil {
			return err
		}

		last[c.Key] = i
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		frag, err := s.newFragment(ctx, tx)
		if err != nil {
			return err
		}

		for i, c := range cells {
			if last[c.Key] != i {
				continue
			}

			if err := insertSparse(ctx, tx, frag, c); err != nil {
				return err
			}
		}

		return nil
	})
}

func insertSparse(ctx context.Context, tx *sqlx.Tx, frag int64, c Cell) error {
	attrs, err := json.Marshal(c.Attrs)
	if err != nil {
		return fmt.Errorf("encode %q: %w", c.Key, err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO sparse_cells (fragment, cell_key, attrs) VALUES (?, ?, ?)`,
		frag, c.Key, string(attrs))
	if err != nil {
		return fmt.Errorf("insert %q: %w", c.Key, err)
	}

	return nil
}

type sparseRow struct {
	Key   string `db:"cell_key"`
	Attrs string `db:"attrs"`
}

func (r sparseRow) cell() (Cell, error) {
	c := Cell{Key: r.Key}
	if err := json.Unmarshal([]byte(r.Attrs), &c.Attrs); err != nil {
		return Cell{}, fmt.Errorf("decode %q: %w", r.Key, err)
	}

	return c, nil
}

// Lookup returns the latest value of key.
func (s *SparseArray) Lookup(ctx context.Context, key string) (Cell, bool, error) {
	var row sparseRow

	err := s.db.GetContext(ctx, &row, `
		SELECT c.cell_key, c.attrs
		FROM sparse_cells c JOIN fragments f ON f.seq = c.fragment
		WHERE f.consolidated = 0 AND c.cell_key = ?
		ORDER BY c.fragment DESC
		LIMIT 1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return Cell{}, false, nil
	}

	if err != nil {
		return Cell{}, false, fmt.Errorf("lookup %q: %w", key, err)
	}

	c, err := row.cell()
	if err != nil {
		return Cell{}, false, err
	}

	return c, true, nil
}

const latestSparseSQL = `
	SELECT c.cell_key, c.attrs
	FROM sparse_cells c
	JOIN (
		SELECT s.cell_key, MAX(s.fragment) AS fragment
		FROM sparse_cells s JOIN fragments f ON f.seq = s.fragment
		WHERE f.consolidated = 0 AND s.fragment <= ?
		GROUP BY s.cell_key
	) latest ON latest.cell_key = c.cell_key AND latest.fragment = c.fragment
	ORDER BY c.cell_key`

// ReadAll returns the latest value of every key, sorted by key.
func (s *SparseArray) ReadAll(ctx context.Context) ([]Cell, error) {
	return readLatest(ctx, s.db, -1)
}

func readLatest(ctx context.Context, q sqlx.QueryerContext, lastSeq int64) ([]Cell, error) {
	var rows []sparseRow

	bound := lastSeq
	if bound < 0 {
		bound = math.MaxInt64
	}

	if err := sqlx.SelectContext(ctx, q, &rows, latestSparseSQL, bound); err != nil {
		return nil, fmt.Errorf("read cells: %w", err)
	}

	cells := make([]Cell, 0, len(rows))
	for _, r := range rows {
		c, err := r.cell()
		if err != nil {
			return nil, err
		}

		cells = append(cells, c)
	}

	return cells, nil
}

// Consolidate folds all live fragments into one holding the latest value of
// every key.
func (s *SparseArray) Consolidate(ctx context.Context) error {
	return s.consolidate(ctx, func(tx *sqlx.Tx, lastSeq, frag int64) error {
		cells, err := readLatest(ctx, tx, lastSeq)
		if err != nil {
			return err
		}

		for _, c := range cells {
			if err := insertSparse(ctx, tx, frag, c); err != nil {
				return err
			}
		}

		return nil
	})
}
