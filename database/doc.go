// Package database provides connection management for the SQL row stores
// (MySQL, PostgreSQL, SQLite) behind the live repository: YAML and
// environment configuration, health checks, query logging, slow query and
// metrics hooks, error classification, and the logging contract.
package database
