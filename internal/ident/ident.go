// Package ident produces the correlation tokens attached to envelopes.
package ident

import "github.com/google/uuid"

// Generator returns a fresh unique token on every call.
type Generator interface {
	NewID() string
}

// UUID generates random (version 4) UUIDs in their canonical text form.
type UUID struct{}

func (UUID) NewID() string {
	return uuid.NewString()
}

// Func adapts a plain function to Generator.
type Func func() string

func (f Func) NewID() string {
	return f()
}
