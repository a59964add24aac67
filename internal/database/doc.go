// Package database provides the PostgreSQL connection pool and schema used
// by the frame journal.
package database
