// SPDX-License-Identifier: EPL-2.0

// Package registry maps device serials to stable row IDs of the sample array.
//
// Rows are handed out densely from 0 in order of first registration and are
// never reused. The mapping lives in a sparse array keyed by device id with
// two attributes: the row and the time the device was first seen.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ik5/uwloc/internal/arraystore"
	"go.uber.org/zap"
)

// Array layout.
const (
	DimDevice     = "device"
	AttrRow       = "row"
	AttrTimestamp = "timestamp"
)

// Schema is the sparse layout of the registry array.
func Schema() arraystore.SparseSchema {
	return arraystore.SparseSchema{
		Dim: DimDevice,
		Attrs: []arraystore.Attr{
			{Name: AttrRow, Type: arraystore.AttrInt64},
			{Name: AttrTimestamp, Type: arraystore.AttrDatetimeMS},
		},
	}
}

// Entry is one registered device.
type Entry struct {
	DeviceID  string    `json:"device_id" yaml:"device_id"`
	RowID     int64     `json:"row_id" yaml:"row_id"`
	FirstSeen time.Time `json:"first_seen" yaml:"first_seen"`
}

func entryFromCell(c arraystore.Cell) Entry {
	return Entry{
		DeviceID:  c.Key,
		RowID:     c.Attrs[AttrRow],
		FirstSeen: time.UnixMilli(c.Attrs[AttrTimestamp]).UTC(),
	}
}

// Registry is the device to row mapping of one database.
type Registry struct {
	arr      *arraystore.SparseArray
	maxUnits int64
	log      *zap.Logger

	mu sync.Mutex
}

// Create declares the registry array at uri.
func Create(ctx context.Context, sc *arraystore.Context, uri string) error {
	arr, err := sc.CreateSparse(ctx, uri, Schema())
	if err != nil {
		return err
	}

	return arr.Close()
}

// Open opens the registry at uri. maxUnits bounds the rows Assign may hand
// out.
func Open(ctx context.Context, sc *arraystore.Context, uri string, maxUnits int64, log *zap.Logger) (*Registry, error) {
	arr, err := sc.OpenSparse(ctx, uri)
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Registry{arr: arr, maxUnits: maxUnits, log: log.Named("registry")}, nil
}

// Close releases the backing array.
func (r *Registry) Close() error {
	return r.arr.Close()
}

// Resolve returns the row of id, or the row it would get if registered now.
// Nothing is persisted.
func (r *Registry) Resolve(ctx context.Context, id string) (int64, bool, error) {
	row, ok, err := r.Lookup(ctx, id)
	if err != nil || ok {
		return row, ok, err
	}

	next, err := r.Count(ctx)
	if err != nil {
		return 0, false, err
	}

	return next, false, nil
}

// Register records id at row. Registering an id again with the same row is a
// no-op that keeps the original first seen time.
func (r *Registry) Register(ctx context.Context, id string, row int64, firstSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.register(ctx, id, row, firstSeen)
}

func (r *Registry) register(ctx context.Context, id string, row int64, firstSeen time.Time) error {
	if id == "" {
		return fmt.Errorf("%w: empty device id", ErrInvariantViolation)
	}

	entries, err := r.Entries(ctx)
	if err != nil {
		return err
	}

	for _, e := range entries {
		switch {
		case e.DeviceID == id && e.RowID == row:
			return nil
		case e.DeviceID == id:
			return fmt.Errorf("%w: device %s already owns row %d, not %d", ErrInvariantViolation, id, e.RowID, row)
		case e.RowID == row:
			return fmt.Errorf("%w: row %d already belongs to device %s", ErrInvariantViolation, row, e.DeviceID)
		}
	}

	if next := nextRow(entries); row != next {
		return fmt.Errorf("%w: row %d is not the next free row %d", ErrInvariantViolation, row, next)
	}

	if row >= r.maxUnits {
		return fmt.Errorf("%w: row %d, max units %d", ErrUnitsExhausted, row, r.maxUnits)
	}

	err = r.arr.Write(ctx, []arraystore.Cell{{
		Key: id,
		Attrs: map[string]int64{
			AttrRow:       row,
			AttrTimestamp: firstSeen.UTC().UnixMilli(),
		},
	}})
	if err != nil {
		return fmt.Errorf("register %s: %w", id, err)
	}

	r.log.Info("device registered", zap.String("device", id), zap.Int64("row", row), zap.Time("first_seen", firstSeen.UTC()))

	return nil
}

// Assign returns the row of id, registering it first when it is new.
// Resolution and registration happen under one lock.
func (r *Registry) Assign(ctx context.Context, id string, firstSeen time.Time) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, existed, err := r.Resolve(ctx, id)
	if err != nil || existed {
		return row, existed, err
	}

	if row >= r.maxUnits {
		return 0, false, fmt.Errorf("%w: device %s would get row %d, max units %d", ErrUnitsExhausted, id, row, r.maxUnits)
	}

	if err := r.register(ctx, id, row, firstSeen); err != nil {
		return 0, false, err
	}

	return row, false, nil
}

// Lookup returns the row of id. An unknown id is not an error.
func (r *Registry) Lookup(ctx context.Context, id string) (int64, bool, error) {
	c, ok, err := r.arr.Lookup(ctx, id)
	if err != nil || !ok {
		return 0, false, err
	}

	return c.Attrs[AttrRow], true, nil
}

// Entries lists every registered device, sorted by id.
func (r *Registry) Entries(ctx context.Context) ([]Entry, error) {
	cells, err := r.arr.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(cells))
	for _, c := range cells {
		entries = append(entries, entryFromCell(c))
	}

	return entries, nil
}

// Devices lists registered device ids, sorted.
func (r *Registry) Devices(ctx context.Context) ([]string, error) {
	entries, err := r.Entries(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.DeviceID)
	}

	return ids, nil
}

// Count is the number of registered devices, which is also the next row.
func (r *Registry) Count(ctx context.Context) (int64, error) {
	entries, err := r.Entries(ctx)
	if err != nil {
		return 0, err
	}

	return nextRow(entries), nil
}

// Tidy consolidates the registry fragments and vacuums the retired ones.
func (r *Registry) Tidy(ctx context.Context) error {
	if err := r.arr.Consolidate(ctx); err != nil {
		return fmt.Errorf("consolidate registry: %w", err)
	}

	if err := r.arr.Vacuum(ctx); err != nil {
		return fmt.Errorf("vacuum registry: %w", err)
	}

	return nil
}

// Fragments reports the fragment counts of the registry array.
func (r *Registry) Fragments(ctx context.Context) (arraystore.FragmentStats, error) {
	return r.arr.Fragments(ctx)
}

func nextRow(entries []Entry) int64 {
	var next int64
	for _, e := range entries {
		next = max(next, e.RowID+1)
	}

	return next
}
