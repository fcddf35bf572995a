// Package repository provides the per-entity gateway over a
// database.PersistenceContext: queued saves and deletes, lookups by
// identifier, criteria filtering, counting, pagination and dialect aware
// upserts. Repositories are cached by the context they are bound to.
package repository
