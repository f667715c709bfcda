package typemeta

import "context"

type inspectorKey struct{}

// NewContext returns a copy of ctx carrying i.
func NewContext(ctx context.Context, i *Inspector) context.Context {
	return context.WithValue(ctx, inspectorKey{}, i)
}

// FromContext returns the inspector stored by NewContext.
func FromContext(ctx context.Context) (*Inspector, bool) {
	i, ok := ctx.Value(inspectorKey{}).(*Inspector)
	return i, ok && i != nil
}
