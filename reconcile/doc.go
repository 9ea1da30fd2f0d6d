// Package reconcile repairs a vector store against the identity scheme and
// the catalog.
//
// Duplicates are points sharing a (sequence key, position) under different
// ids, which only happens when the id scheme changed between runs. Cleanup
// keeps the first id seen in scan order. Orphans are points whose source is
// no longer in the catalog. Purges remove one source or, after an exact
// confirmation, a whole corpus. Deletes go out in bounded batches with a
// pause between them.
package reconcile
