// Package distlock keeps scheduled jobs from overlapping across replicas.
//
// NewFactory prefers Redis (SET NX with an ownership token), falls back to
// Postgres advisory locks, and uses an in-process table when neither is
// shared.
package distlock
