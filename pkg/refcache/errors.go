package refcache

import (
	"errors"

	"github.com/dmitrymomot/weakref/pkg/reference"
)

// Sentinel errors for cache operations.
var (
	// ErrNilKey is returned when an operation receives a nil key.
	ErrNilKey = reference.ErrNilKey

	// ErrInvalidPolicy is returned by New for an unknown reference policy.
	ErrInvalidPolicy = reference.ErrInvalidPolicy

	// ErrNilSupplier is returned when ComputeIfAbsent receives a nil function.
	ErrNilSupplier = errors.New("refcache: nil supplier")

	// errSupplierPanicked marks a flight whose supplier panicked; waiters retry.
	errSupplierPanicked = errors.New("refcache: supplier panicked")
)
