// Package types defines the Store and Table interfaces, the record, query,
// change and envelope types, and the standard errors shared by every obay
// storage backend and by the record gateway.
package types
