package facade

import "github.com/google/uuid"

// NewUUIDGenerator returns the default ID generator for entities,
// observations, and relationships created through mutate_memory.
func NewUUIDGenerator() func() string {
	return func() string { return uuid.NewString() }
}
