package settle

import (
	"context"

	"github.com/xraph/settle/types"
)

type callerKey struct{}

// WithCaller returns a context carrying the acting principal. Every
// mutating engine operation authorizes against this identity.
func WithCaller(ctx context.Context, p types.Principal) context.Context {
	return context.WithValue(ctx, callerKey{}, p)
}

// CallerFrom extracts the acting principal from the context.
func CallerFrom(ctx context.Context) (types.Principal, bool) {
	p, ok := ctx.Value(callerKey{}).(types.Principal)
	if !ok || p.IsZero() {
		return types.NoPrincipal, false
	}
	return p, true
}

// caller returns the acting principal or ErrMissingCaller.
func (e *Engine) caller(ctx context.Context) (types.Principal, error) {
	p, ok := CallerFrom(ctx)
	if !ok {
		return types.NoPrincipal, ErrMissingCaller
	}
	return p, nil
}
