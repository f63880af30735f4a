package jsonapi

import (
	"context"
	"sort"

	"github.com/grantwwu/jsonapi/apierror"
	"github.com/grantwwu/jsonapi/schema"
)

// Included collects the resources discovered while resolving include
// paths: each resource once, keyed by identifier, in discovery order,
// together with the relationship names each resource was reached
// through.
type Included struct {
	order     []Identifier
	resources map[Identifier]any
	tags      map[Identifier]map[string]struct{}
}

func newIncluded() *Included {
	return &Included{
		resources: make(map[Identifier]any),
		tags:      make(map[Identifier]map[string]struct{}),
	}
}

// add records a discovered resource. The first resource seen for an
// identifier wins; later duplicates are dropped.
func (inc *Included) add(id Identifier, resource any) {
	if _, seen := inc.resources[id]; seen {
		return
	}
	inc.order = append(inc.order, id)
	inc.resources[id] = resource
}

// tag records that the resource behind id was reached through
// relname.
func (inc *Included) tag(id Identifier, relname string) {
	set, ok := inc.tags[id]
	if !ok {
		set = make(map[string]struct{})
		inc.tags[id] = set
	}
	set[relname] = struct{}{}
}

// Len returns the number of included resources.
func (inc *Included) Len() int { return len(inc.order) }

// Has reports whether a resource with the given identifier was
// included.
func (inc *Included) Has(id Identifier) bool {
	_, ok := inc.resources[id]
	return ok
}

// Resource returns the included resource with the given identifier.
func (inc *Included) Resource(id Identifier) (any, bool) {
	r, ok := inc.resources[id]
	return r, ok
}

// Resources returns the included resources in discovery order.
func (inc *Included) Resources() []any {
	out := make([]any, 0, len(inc.order))
	for _, id := range inc.order {
		out = append(out, inc.resources[id])
	}
	return out
}

// Identifiers returns the identifiers of the included resources in
// discovery order.
func (inc *Included) Identifiers() []Identifier {
	return append([]Identifier(nil), inc.order...)
}

// Tags returns the relationship names the resource behind id was
// reached through, in lexical order.
func (inc *Included) Tags(id Identifier) []string {
	set := inc.tags[id]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// visitKey identifies one expansion step: a parent resource and the
// relationship walked from it.
type visitKey struct {
	parent  Identifier
	relname string
}

// includeWalk carries the state of one Include resolution.
type includeWalk struct {
	api       *API
	inc       *Included
	relatives map[visitKey][]any
}

// Include resolves the given include paths from the primary
// resources, loading relatives through each schema's relationship
// includer.
//
// The relatives of a (parent, relationship) pair are fetched at most
// once per resolution, so overlapping path prefixes and repeated paths
// cost nothing extra, and resolution always terminates: every path is
// finite and each step consumes one segment. Unknown relationship
// names fail with an InvalidValue error naming the include query
// parameter. The primaries are never seeded into the result; a graph
// that cycles back to a primary includes it like any other relative,
// and the web layer drops such duplicates when it renders the
// document.
func (a *API) Include(ctx context.Context, primaries []any, paths [][]string) (*Included, error) {
	w := &includeWalk{
		api:       a,
		inc:       newIncluded(),
		relatives: make(map[visitKey][]any),
	}
	for _, path := range paths {
		if len(path) == 0 {
			continue
		}
		for _, primary := range primaries {
			if primary == nil {
				continue
			}
			if err := w.walk(ctx, primary, path); err != nil {
				return nil, err
			}
		}
	}
	return w.inc, nil
}

// walk expands one path from parent, consuming the leading segment.
func (w *includeWalk) walk(ctx context.Context, parent any, path []string) error {
	relname, rest := path[0], path[1:]
	s, err := w.api.schemaOf(parent)
	if err != nil {
		return err
	}
	if _, ok := s.Relationship(relname); !ok {
		return apierror.InvalidValue(
			"The type '"+s.Type()+"' has no relationship '"+relname+"'.", "",
		).WithParameter("include")
	}
	pid, err := s.Identifier(parent)
	if err != nil {
		return err
	}

	key := visitKey{parent: pid, relname: relname}
	relatives, cached := w.relatives[key]
	if !cached {
		relatives, err = s.Include(ctx, parent, relname)
		if err != nil {
			return err
		}
		w.relatives[key] = relatives
	} else if len(rest) == 0 {
		// Everything this step could add is already present.
		return nil
	}

	for _, relative := range relatives {
		if relative == nil {
			continue
		}
		rid, err := w.api.EnsureIdentifier(relative)
		if err != nil {
			return err
		}
		w.inc.add(rid, relative)
		w.inc.tag(rid, relname)
		if len(rest) > 0 {
			if err := w.walk(ctx, relative, rest); err != nil {
				return err
			}
		}
	}
	return nil
}

// RebaseInclude prepends newRoot to every include path, turning paths
// that are relative to a related resource into paths relative to its
// parent. An empty path list becomes the single path [newRoot].
func RebaseInclude(newRoot string, include [][]string) [][]string {
	if len(include) == 0 {
		return [][]string{{newRoot}}
	}
	out := make([][]string, 0, len(include))
	for _, path := range include {
		rebased := make([]string, 0, len(path)+1)
		rebased = append(rebased, newRoot)
		rebased = append(rebased, path...)
		out = append(out, rebased)
	}
	return out
}

// CollectIdentifiers walks a decoded document fragment and returns
// every {type, id} object found in it as an identifier, each once, in
// lexical order. Values under meta members are not searched.
func CollectIdentifiers(doc any) []Identifier {
	seen := make(map[Identifier]struct{})
	stack := []any{doc}
	for len(stack) > 0 {
		d := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch v := d.(type) {
		case []any:
			for _, item := range v {
				switch item.(type) {
				case map[string]any, []any:
					stack = append(stack, item)
				}
			}
		case map[string]any:
			t, tok := v["type"].(string)
			id, iok := v["id"].(string)
			if tok && iok {
				seen[Identifier{Type: t, ID: id}] = struct{}{}
			}
			for key, value := range v {
				if key == "meta" {
					continue
				}
				switch value.(type) {
				case map[string]any, []any:
					stack = append(stack, value)
				}
			}
		}
	}
	out := make([]Identifier, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].ID < out[j].ID
	})
	return out
}

var _ schema.API = (*API)(nil)
