// Package repository provides the generic Repository contract, its immutable
// Query builder, a Bun-backed live implementation, an in-memory mock with the
// same semantics, and a factory choosing between them.
package repository
