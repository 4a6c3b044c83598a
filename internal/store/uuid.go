package store

import "github.com/google/uuid"

// GenerateUUID returns a new UUID v4 string for dialects without a
// database-side default.
func GenerateUUID() string {
	return uuid.New().String()
}
