package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	UnitID      ID
	RunID       ID
	VariableKey ID
)

// String conversions for domain IDs
func (id UnitID) String() string      { return ID(id).String() }
func (id RunID) String() string       { return ID(id).String() }
func (id VariableKey) String() string { return ID(id).String() }

// ParseUnitID parses a string into UnitID
func ParseUnitID(s string) (UnitID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("unit ID cannot be empty")
	}
	return UnitID(strings.TrimSpace(s)), nil
}

// NewRunID creates a new run identifier
func NewRunID() RunID {
	return RunID(NewID())
}
