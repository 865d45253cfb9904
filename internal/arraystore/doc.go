// SPDX-License-Identifier: EPL-2.0

// Package arraystore is a small fragment-based array engine on top of SQLite.
//
// A group is a directory marked by a JSON file. Every array inside a group is
// a sub directory holding a single SQLite database. Each write appends one
// fragment inside a single transaction, so a failed write leaves nothing
// behind. Reads overlay the live fragments in write order.
//
// Two array kinds exist:
//
//   - Dense: a bounded two dimensional int16 grid. Unwritten cells read as
//     zero. Runs are split at tile boundaries on the column axis.
//   - Sparse: string keyed cells with int64 attributes. Reads return the
//     latest value per key.
//
// Consolidate folds the live fragments into one; Vacuum drops what was folded
// and compacts the file. Both can be run any number of times.
//
// All arrays are opened through a Context, created once per process:
//
//	sc := arraystore.New(arraystore.DefaultConfig())
//	if err := sc.CreateGroup(path); err != nil && !errors.Is(err, arraystore.ErrAlreadyExists) {
//	    return err
//	}
package arraystore
