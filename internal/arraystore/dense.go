// SPDX-License-Identifier: EPL-2.0

package arraystore

import (
	"cmp"
	"context"
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/jmoiron/sqlx"
)

// Dim is an inclusive integer dimension. Tile is only used on the column axis.
type Dim struct {
	Name string `json:"name"`
	Lo   int64  `json:"lo"`
	Hi   int64  `json:"hi"`
	Tile int64  `json:"tile"`
}

// Extent is the number of coordinates along the dimension.
func (d Dim) Extent() int64 {
	return d.Hi - d.Lo + 1
}

func (d Dim) contains(v int64) bool {
	return v >= d.Lo && v <= d.Hi
}

// DenseSchema describes a rows × cols grid with one int16 attribute.
type DenseSchema struct {
	Rows Dim    `json:"rows"`
	Cols Dim    `json:"cols"`
	Attr string `json:"attr"`
}

func (s DenseSchema) validate() error {
	switch {
	case s.Rows.Extent() < 1:
		return fmt.Errorf("%w: empty row domain [%d, %d]", ErrInvalidSchema, s.Rows.Lo, s.Rows.Hi)
	case s.Cols.Extent() < 1:
		return fmt.Errorf("%w: empty column domain [%d, %d]", ErrInvalidSchema, s.Cols.Lo, s.Cols.Hi)
	case s.Cols.Tile < 1 || s.Cols.Tile > s.Cols.Extent():
		return fmt.Errorf("%w: tile extent %d outside [1, %d]", ErrInvalidSchema, s.Cols.Tile, s.Cols.Extent())
	case s.Attr == "":
		return fmt.Errorf("%w: attribute has no name", ErrInvalidSchema)
	}

	return nil
}

// DenseArray is a bounded int16 grid. Cells that were never written read
// as zero.
type DenseArray struct {
	*array
	schema DenseSchema
}

// CreateDense declares a new dense array at uri.
func (c *Context) CreateDense(ctx context.Context, uri string, schema DenseSchema) (*DenseArray, error) {
	if err := schema.validate(); err != nil {
		return nil, err
	}

	a, err := c.createArray(ctx, uri, KindDense, schema)
	if err != nil {
		return nil, err
	}

	return &DenseArray{array: a, schema: schema}, nil
}

// OpenDense opens an existing dense array.
func (c *Context) OpenDense(ctx context.Context, uri string) (*DenseArray, error) {
	var schema DenseSchema

	a, err := c.openArray(ctx, uri, KindDense, &schema)
	if err != nil {
		return nil, err
	}

	return &DenseArray{array: a, schema: schema}, nil
}

// Schema returns the array layout.
func (d *DenseArray) Schema() DenseSchema {
	return d.schema
}

// tileEnd returns the exclusive end of the tile holding col.
func (d *DenseArray) tileEnd(col int64) int64 {
	tile := d.schema.Cols.Tile
	return d.schema.Cols.Lo + ((col-d.schema.Cols.Lo)/tile+1)*tile
}

// Write stores data in row starting at column col, as one new fragment.
func (d *DenseArray) Write(ctx context.Context, row, col int64, data []int16) error {
	if len(data) == 0 {
		return nil
	}

	end := col + int64(len(data))
	if !d.schema.Rows.contains(row) || !d.schema.Cols.contains(col) || !d.schema.Cols.contains(end-1) {
		return fmt.Errorf("%w: row %d, columns [%d, %d) in [%d, %d] × [%d, %d]", ErrOutOfBounds,
			row, col, end, d.schema.Rows.Lo, d.schema.Rows.Hi, d.schema.Cols.Lo, d.schema.Cols.Hi)
	}

	return d.withTx(ctx, func(tx *sqlx.Tx) error {
		frag, err := d.newFragment(ctx, tx)
		if err != nil {
			return err
		}

		return d.insertRuns(ctx, tx, frag, row, col, data)
	})
}

func (d *DenseArray) insertRuns(ctx context.Context, tx *sqlx.Tx, frag, row, col int64, data []int16) error {
	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO dense_cells (fragment, row_id, col_start, col_end, data) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	end := col + int64(len(data))
	for start := col; start < end; {
		stop := min(d.tileEnd(start), end)

		if _, err := stmt.ExecContext(ctx, frag, row, start, stop, encode(data[start-col:stop-col])); err != nil {
			return fmt.Errorf("insert run [%d, %d): %w", start, stop, err)
		}

		start = stop
	}

	return nil
}

type denseRun struct {
	Row   int64  `db:"row_id"`
	Start int64  `db:"col_start"`
	End   int64  `db:"col_end"`
	Data  []byte `db:"data"`
}

// Read returns rows [rowLo, rowHi] × columns [colLo, colHi], both inclusive.
func (d *DenseArray) Read(ctx context.Context, rowLo, rowHi, colLo, colHi int64) ([][]int16, error) {
	if rowLo > rowHi || colLo > colHi ||
		!d.schema.Rows.contains(rowLo) || !d.schema.Rows.contains(rowHi) ||
		!d.schema.Cols.contains(colLo) || !d.schema.Cols.contains(colHi) {
		return nil, fmt.Errorf("%w: rows [%d, %d], columns [%d, %d]", ErrOutOfBounds, rowLo, rowHi, colLo, colHi)
	}

	out := make([][]int16, rowHi-rowLo+1)
	for i := range out {
		out[i] = make([]int16, colHi-colLo+1)
	}

	rows, err := d.db.QueryxContext(ctx, `
		SELECT c.row_id, c.col_start, c.col_end, c.data
		FROM dense_cells c JOIN fragments f ON f.seq = c.fragment
		WHERE f.consolidated = 0
		  AND c.row_id BETWEEN ? AND ?
		  AND c.col_start > ? AND c.col_start <= ?
		  AND c.col_end > ?
		ORDER BY c.fragment, c.col_start`,
		rowLo, rowHi, colLo-d.schema.Cols.Tile, colHi, colLo)
	if err != nil {
		return nil, fmt.Errorf("query cells: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var run denseRun
		if err := rows.StructScan(&run); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}

		from, to := max(run.Start, colLo), min(run.End, colHi+1)
		decode(out[run.Row-rowLo][from-colLo:to-colLo], run.Data[2*(from-run.Start):])
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read cells: %w", err)
	}

	return out, nil
}

type runKey struct {
	Row  int64 `db:"row_id"`
	Tile int64 `db:"tile"`
}

// Consolidate folds all live fragments into one. Only written intervals are
// carried over, so the merged fragment stays as sparse as its inputs.
func (d *DenseArray) Consolidate(ctx context.Context) error {
	lo, tile := d.schema.Cols.Lo, d.schema.Cols.Tile

	return d.consolidate(ctx, func(tx *sqlx.Tx, lastSeq, frag int64) error {
		var keys []runKey

		err := tx.SelectContext(ctx, &keys, `
			SELECT DISTINCT c.row_id, (c.col_start - ?) / ? AS tile
			FROM dense_cells c JOIN fragments f ON f.seq = c.fragment
			WHERE f.consolidated = 0 AND c.fragment <= ?
			ORDER BY 1, 2`, lo, tile, lastSeq)
		if err != nil {
			return fmt.Errorf("list tiles: %w", err)
		}

		for _, k := range keys {
			var runs []denseRun

			tileStart := lo + k.Tile*tile

			err := tx.SelectContext(ctx, &runs, `
				SELECT c.row_id, c.col_start, c.col_end, c.data
				FROM dense_cells c JOIN fragments f ON f.seq = c.fragment
				WHERE f.consolidated = 0 AND c.fragment <= ?
				  AND c.row_id = ? AND c.col_start >= ? AND c.col_start < ?
				ORDER BY c.fragment, c.col_start`,
				lastSeq, k.Row, tileStart, tileStart+tile)
			if err != nil {
				return fmt.Errorf("load tile %d of row %d: %w", k.Tile, k.Row, err)
			}

			if err := d.mergeTile(ctx, tx, frag, k.Row, runs); err != nil {
				return err
			}
		}

		return nil
	})
}

// mergeTile overlays runs (ordered oldest first) and writes the union of
// their intervals to frag.
func (d *DenseArray) mergeTile(ctx context.Context, tx *sqlx.Tx, frag, row int64, runs []denseRun) error {
	if len(runs) == 0 {
		return nil
	}

	lo, hi := runs[0].Start, runs[0].End
	for _, r := range runs[1:] {
		lo, hi = min(lo, r.Start), max(hi, r.End)
	}

	buf := make([]int16, hi-lo)
	for _, r := range runs {
		decode(buf[r.Start-lo:r.End-lo], r.Data)
	}

	spans := slices.Clone(runs)
	slices.SortFunc(spans, func(a, b denseRun) int { return cmp.Compare(a.Start, b.Start) })

	start, end := spans[0].Start, spans[0].End
	for _, r := range spans[1:] {
		if r.Start <= end {
			end = max(end, r.End)
			continue
		}

		if err := d.insertRuns(ctx, tx, frag, row, start, buf[start-lo:end-lo]); err != nil {
			return err
		}

		start, end = r.Start, r.End
	}

	return d.insertRuns(ctx, tx, frag, row, start, buf[start-lo:end-lo])
}

func encode(samples []int16) []byte {
	out := make([]byte, 0, 2*len(samples))
	for _, s := range samples {
		out = binary.LittleEndian.AppendUint16(out, uint16(s))
	}

	return out
}

// decode fills dst from little-endian data, stopping at whichever runs out
// first.
func decode(dst []int16, data []byte) {
	n := min(len(dst), len(data)/2)
	for i := range n {
		dst[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
}
