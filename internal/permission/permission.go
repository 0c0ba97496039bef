// Package permission decides which tools an agent may invoke in a turn.
package permission

import (
	"sort"
	"strings"
)

// Wildcard is the allow-list token that permits every tool. It is only
// interpreted by ParseAllowList; inside the process an allow-list is either
// Any or Named.
const Wildcard = "*"

// AllowList is the set of tool names an agent may invoke. It is a closed sum
// type: the only implementations are the values returned by Any and Named.
type AllowList interface {
	// Permits reports whether the named tool may be invoked.
	Permits(name string) bool
	// Names returns the permitted names, or nil for Any.
	Names() []string

	allowList()
}

type anyTools struct{}

func (anyTools) Permits(string) bool { return true }
func (anyTools) Names() []string     { return nil }
func (anyTools) allowList()          {}
func (anyTools) String() string      { return Wildcard }

// namedTools permits only its literal entries.
type namedTools map[string]struct{}

func (n namedTools) Permits(name string) bool {
	_, ok := n[name]
	return ok
}

func (n namedTools) Names() []string {
	out := make([]string, 0, len(n))
	for name := range n {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (namedTools) allowList() {}

func (n namedTools) String() string { return strings.Join(n.Names(), ",") }

// Any permits every tool name.
func Any() AllowList { return anyTools{} }

// Named permits exactly the given names. An empty list permits nothing.
func Named(names ...string) AllowList {
	set := make(namedTools, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// IsAny reports whether the list permits every tool.
func IsAny(list AllowList) bool {
	_, ok := list.(anyTools)
	return ok
}

// ParseAllowList converts the wire/config form of an allow-list into an
// AllowList. An entry equal to Wildcard yields Any; blank entries are dropped.
func ParseAllowList(entries []string) AllowList {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if e == Wildcard {
			return Any()
		}
		names = append(names, e)
	}
	return Named(names...)
}
