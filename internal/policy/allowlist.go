package policy

import "sort"

// Allowlist is the set of forwardable method names. It is built once and never
// modified, so lookups need no locking.
type Allowlist struct {
	methods map[string]struct{}
}

func NewAllowlist(methods []string) *Allowlist {
	a := &Allowlist{methods: make(map[string]struct{}, len(methods))}
	for _, m := range methods {
		a.methods[m] = struct{}{}
	}
	return a
}

// Allows reports whether method may be forwarded. Matching is exact and case sensitive,
// as it is in bitcoind.
func (a *Allowlist) Allows(method string) bool {
	_, ok := a.methods[method]
	return ok
}

// Methods returns the allowed names sorted.
func (a *Allowlist) Methods() []string {
	out := make([]string, 0, len(a.methods))
	for m := range a.methods {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (a *Allowlist) Len() int {
	return len(a.methods)
}
