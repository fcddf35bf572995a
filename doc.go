// Package bisna provides a generic transactional service over the
// repository and database packages. Writes run in their own transaction
// on the write context, reads go to the read context, and every failure
// is classified, logged, reported to an optional Notifier and returned as
// a *types.PersistenceFailure.
package bisna
