// Package filter provides a fluent, mutable Criteria builder that compiles into
// an immutable Query snapshot executed by a persistence backend.
package filter
