package spec

import (
	"sort"
	"strings"
)

// scope is the set of fields visible at one point of a transform chain.
// An open scope accepts any field: the source schema was never declared.
type scope struct {
	open   bool
	fields map[string]bool
}

func openScope() scope { return scope{open: true, fields: map[string]bool{}} }

func closedScope(fields ...string) scope {
	s := scope{fields: make(map[string]bool, len(fields))}
	for _, f := range fields {
		s.fields[f] = true
	}
	return s
}

// has reports whether f is visible. A nested path such as "properties.name"
// is visible when the path itself or any of its parents is.
func (s scope) has(f string) bool {
	if s.open || s.fields[f] {
		return true
	}
	for i := strings.LastIndexByte(f, '.'); i > 0; i = strings.LastIndexByte(f[:i], '.') {
		if s.fields[f[:i]] {
			return true
		}
	}
	return false
}

// with returns a copy of s extended with fields.
func (s scope) with(fields ...string) scope {
	out := scope{open: s.open, fields: make(map[string]bool, len(s.fields)+len(fields))}
	for f := range s.fields {
		out.fields[f] = true
	}
	for _, f := range fields {
		if f != "" {
			out.fields[f] = true
		}
	}
	return out
}

func (s scope) list() []string {
	out := make([]string, 0, len(s.fields))
	for f := range s.fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// paramSet indexes the parameters declared on a spec.
type paramSet map[string]*Param

func (p paramSet) has(name string) bool {
	_, ok := p[name]
	return ok
}
