package typemeta

import "errors"

// Sentinel errors for metadata lookups.
var (
	// ErrNilType is returned when describing a nil reflect.Type.
	ErrNilType = errors.New("typemeta: nil type")

	// ErrNilDescriptor is returned when a lookup receives a nil descriptor.
	ErrNilDescriptor = errors.New("typemeta: nil descriptor")

	// ErrNotStruct is returned when fields are requested for a non-struct type.
	ErrNotStruct = errors.New("typemeta: not a struct type")
)
