package common

import (
	"errors"
	"sort"
	"strings"
)

// ValidationErrors collects field-level failures. It matches ErrValidation under errors.Is.
type ValidationErrors struct {
	Fields map[string]string
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{Fields: make(map[string]string)}
}

// Add records the first message for field.
func (v *ValidationErrors) Add(field, message string) {
	if _, exists := v.Fields[field]; !exists {
		v.Fields[field] = message
	}
}

func (v *ValidationErrors) Empty() bool {
	return len(v.Fields) == 0
}

// Err returns nil when nothing was recorded.
func (v *ValidationErrors) Err() error {
	if v.Empty() {
		return nil
	}
	return v
}

func (v *ValidationErrors) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (v *ValidationErrors) Unwrap() error {
	return ErrValidation
}

func AsValidationErrors(err error, target **ValidationErrors) bool {
	return errors.As(err, target)
}
