package dephealth

import "context"

// Checker is the uniform contract every protocol probe implements. Check
// must respect ctx's deadline: it is the scheduler, not the probe, that
// owns the timeout for a cycle. Kind identifies which DependencyType the
// checker speaks, purely for bookkeeping/logging; the scheduler already
// knows the kind from the Dependency it was registered against.
type Checker interface {
	Check(ctx context.Context, ep Endpoint) error
	Kind() DependencyType
}

// CheckerFunc adapts a plain function to the Checker interface, for
// protocols whose probe has no state worth a named type (principally tcp).
type CheckerFunc struct {
	Fn      func(ctx context.Context, ep Endpoint) error
	KindVal DependencyType
}

func (f CheckerFunc) Check(ctx context.Context, ep Endpoint) error { return f.Fn(ctx, ep) }
func (f CheckerFunc) Kind() DependencyType                         { return f.KindVal }
