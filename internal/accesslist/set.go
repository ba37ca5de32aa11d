package accesslist

import "sync/atomic"

// Set is an immutable snapshot of permitted addresses.
type Set struct {
	addrs map[string]struct{}
}

func NewSet(addrs []string) *Set {
	s := &Set{addrs: make(map[string]struct{}, len(addrs))}
	for _, a := range addrs {
		if k := Key(a); k != "" {
			s.addrs[k] = struct{}{}
		}
	}
	return s
}

func (s *Set) Contains(addr string) bool {
	_, ok := s.addrs[Key(addr)]
	return ok
}

func (s *Set) Len() int { return len(s.addrs) }

// PermittedIPs publishes the current Set to every worker. Refreshes swap in
// a freshly built Set, so a reader holds either the old or the new one.
type PermittedIPs struct {
	current atomic.Pointer[Set]
}

// NewPermittedIPs starts with an empty set.
func NewPermittedIPs() *PermittedIPs {
	p := &PermittedIPs{}
	p.current.Store(NewSet(nil))
	return p
}

// Snapshot returns the set in effect now.
func (p *PermittedIPs) Snapshot() *Set {
	return p.current.Load()
}

func (p *PermittedIPs) Replace(s *Set) {
	p.current.Store(s)
}

func (p *PermittedIPs) Contains(addr string) bool {
	return p.Snapshot().Contains(addr)
}
