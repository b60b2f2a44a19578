// Package request defines the data model handed from a document scanner to
// the import orchestrator: module keys, the elements that requested them, and
// the eager/deferred partition of a scan.
package request

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/dataimport/internal/errors"
)

// Key identifies a module as written in the document, before resolution.
type Key string

// Element is a reference to a document node that requested a module.
type Element interface {
	ElementID() string
}

// Node is the concrete Element produced by the manifest scanner.
type Node struct {
	ID     string `yaml:"id"`
	Offset int    `yaml:"offset"` // Vertical position of the node's top edge
	Height int    `yaml:"height"` // Zero is treated as a one-pixel node
}

// ElementID implements Element. A nil node has an empty ID.
func (n *Node) ElementID() string {
	if n == nil {
		return ""
	}
	return n.ID
}

// Span returns the node's vertical position and its height, at least one.
func (n *Node) Span() (offset, height int) {
	if n.Height <= 0 {
		return n.Offset, 1
	}
	return n.Offset, n.Height
}

// Group is the ordered list of elements sharing one key. Never empty.
type Group []Element

// IDs returns the element IDs in group order.
func (g Group) IDs() []string {
	ids := make([]string, len(g))
	for i, el := range g {
		ids[i] = el.ElementID()
	}
	return ids
}

// Set maps keys to the elements that requested them.
type Set map[Key]Group

// Keys returns the set's keys in sorted order.
func (s Set) Keys() []Key {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Snapshot returns a copy of the set as key -> element IDs, for notifications.
func (s Set) Snapshot() map[string][]string {
	out := make(map[string][]string, len(s))
	for k, g := range s {
		out[string(k)] = g.IDs()
	}
	return out
}

// Filter returns the subset of s whose keys match a glob pattern, where `*`
// does not cross `/` and `**` does. An empty pattern returns s unchanged.
func (s Set) Filter(pattern string) (Set, error) {
	if pattern == "" {
		return s, nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrInvalidRequest, "filter", pattern, err.Error())
	}

	out := make(Set)
	for k, group := range s {
		if g.Match(string(k)) {
			out[k] = group
		}
	}
	return out, nil
}

// Requests is one scan's result, partitioned into eager and deferred sets.
type Requests struct {
	Eager    Set
	Deferred Set
}

// Total returns the number of keys across both partitions.
func (r Requests) Total() int {
	return len(r.Eager) + len(r.Deferred)
}

// Validate checks the invariants the orchestrator depends on: no empty keys,
// no empty groups, no nil elements, and no key in both partitions.
func (r Requests) Validate() error {
	for _, part := range []struct {
		name string
		set  Set
	}{{"eager", r.Eager}, {"deferred", r.Deferred}} {
		for k, g := range part.set {
			if k == "" {
				return errors.NewValidationError(errors.ErrInvalidRequest, part.name, k, "module key must not be empty")
			}
			if len(g) == 0 {
				return errors.NewValidationError(errors.ErrInvalidRequest, fmt.Sprintf("%s[%s]", part.name, k), 0, "element group must not be empty")
			}
			for i, el := range g {
				if isNil(el) {
					return errors.NewValidationError(errors.ErrInvalidRequest, fmt.Sprintf("%s[%s][%d]", part.name, k, i), nil, "element must not be nil")
				}
			}
		}
	}

	for k := range r.Eager {
		if _, ok := r.Deferred[k]; ok {
			return errors.NewValidationError(errors.ErrInvalidRequest, "deferred", k, "key is also requested eagerly")
		}
	}
	return nil
}

// isNil reports whether el is nil or an interface holding a nil pointer.
func isNil(el Element) bool {
	if el == nil {
		return true
	}
	v := reflect.ValueOf(el)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
