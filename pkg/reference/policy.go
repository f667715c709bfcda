package reference

// Policy selects how a tracked reference decides when its key may be
// reclaimed and whether the key is still readable through it.
type Policy uint8

const (
	// Weak references are cleared as soon as the key is reachable only
	// through weak references.
	Weak Policy = iota + 1

	// Soft references pin the key until memory pressure (see SoftPolicy)
	// releases the pin; afterwards they behave like Weak.
	Soft

	// Phantom references never expose the key. Only the frozen hash,
	// identity comparison and liveness remain observable.
	Phantom
)

// String returns the lowercase policy name.
func (p Policy) String() string {
	switch p {
	case Weak:
		return "weak"
	case Soft:
		return "soft"
	case Phantom:
		return "phantom"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the defined policies.
func (p Policy) Valid() bool {
	return p >= Weak && p <= Phantom
}

// Readable reports whether references of this policy hand the key back
// through Get while it is alive.
func (p Policy) Readable() bool {
	return p == Weak || p == Soft
}
