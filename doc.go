// Package mvcc implements an embedded, snapshot-isolated transactional
// storage core: multi-version rows, eager write-write conflict
// detection, and an explicit transaction lifecycle, independent of any
// particular on-disk format or query language.
//
// What: Begin/Commit/Rollback plus Insert/Update/Delete/Get, all
// composed from internal packages each covering one piece of the
// design — internal/row (value types), internal/chain (version
// chains), internal/txn (transaction registry), internal/visibility
// (snapshot rules), internal/writepath (mutations and conflict
// detection), internal/durability (the persistence bridge),
// internal/mvccerr (the error taxonomy), and internal/reaper for the
// optional background sweep.
// How: every write stages a pending version that only a commit
// publishes; conflicts are detected eagerly at write time under
// per-row locks; a commit persists its write-set through the
// durability bridge before any version becomes visible.
// Why: a caller embedding this as a library should never need to know
// how rows are chained, how conflicts are detected, or how commits
// reach durable storage — Store is the entire surface.
package mvcc
