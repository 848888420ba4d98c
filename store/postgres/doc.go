// Package postgres is the shipped durable implementation of the keygate
// storage contracts on PostgreSQL, using database/sql with the pgx stdlib
// driver.
//
// Schema management is explicit and versioned: [Store.Migrate] runs the
// embedded goose migrations once at startup. For deployments pointed at a
// database that predates the two-factor columns and cannot be migrated,
// [Store.DetectSchema] probes the live column set once at startup and
// switches account writes to a reduced statement that omits the missing
// fields; the gap is never discovered mid-request.
package postgres
