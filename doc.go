// Package rowkit generates a uniform CRUD and batch API for an entity type
// on top of a repository.Repository, reporting every outcome through
// types.Result.
package rowkit
