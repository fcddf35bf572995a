// Package database is the bun backend of bisna: the EntityManager unit of
// work, criteria materialization, association mappings, connection
// management with an optional read replica, migrations, error
// classification and query hooks.
package database
