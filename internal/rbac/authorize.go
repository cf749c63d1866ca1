package rbac

// MatrixSource yields the cached permission matrix, typically the
// session store's persisted copy. Absent or unparseable state reports
// false; it never errors and never touches the network.
type MatrixSource interface {
	CachedMatrix() (Matrix, bool)
}

// MatrixSourceFunc adapts a plain function to MatrixSource.
type MatrixSourceFunc func() (Matrix, bool)

func (f MatrixSourceFunc) CachedMatrix() (Matrix, bool) { return f() }

// Authorizer answers permission checks for UI-level guards. It is cheap
// enough to consult per guarded element and has no side effects.
type Authorizer struct {
	source   MatrixSource
	fallback Matrix
}

// NewAuthorizer builds an Authorizer over the given cache source. A nil
// source always falls back to the static default matrix.
func NewAuthorizer(source MatrixSource) *Authorizer {
	return &Authorizer{source: source, fallback: DefaultMatrix()}
}

// HasPermission decides whether role may perform action on resource.
// SUPER_ADMIN bypasses the matrix entirely; everything else is a
// membership test against the cached matrix, falling back to the static
// defaults when no usable cache exists. Missing roles deny.
func (a *Authorizer) HasPermission(role Role, resource Resource, action Action) bool {
	if role == RoleSuperAdmin {
		return true
	}
	if a == nil {
		return false
	}
	if a.source != nil {
		if m, ok := a.source.CachedMatrix(); ok {
			return m.Allows(role, resource, action)
		}
	}
	return a.fallback.Allows(role, resource, action)
}
