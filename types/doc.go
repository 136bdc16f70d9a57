// Package types defines the result envelope, error taxonomy, rows and query
// descriptors shared by the repository and API layers.
package types
