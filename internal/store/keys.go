package store

import "github.com/google/uuid"

// NewKey returns a time-ordered unique key suitable for GenerateKey
func NewKey() string {
	return uuid.Must(uuid.NewV7()).String()
}
