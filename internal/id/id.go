package id

import "github.com/google/uuid"

// New returns a random UUIDv4 string. Sessions and uploads are keyed by it.
func New() string {
	return uuid.NewString()
}

// Valid reports whether s parses as a UUID, so malformed path IDs can be
// rejected before a store lookup.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
