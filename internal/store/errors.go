package store

import "errors"

// ErrSchemaIncompatible wraps a migration-time failure; fatal at startup
// per the error taxonomy.
func ErrSchemaIncompatible(cause error) error {
	return errors.Join(errSchemaIncompatible, cause)
}

var errSchemaIncompatible = errors.New("schema incompatible")

// ErrNotFound is returned by repository lookups that find no row.
var ErrNotFound = errors.New("not found")
