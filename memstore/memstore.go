// Package memstore backs schemas with an in-memory store. It keeps
// resources per type in insertion order and supports exact-match
// filtering, multi-field sorting and window pagination, which makes it
// a complete schema.Store for examples and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/grantwwu/jsonapi/apierror"
	"github.com/grantwwu/jsonapi/schema"
)

// Store is an in-memory schema.Store. One store can serve any number
// of types; resources are kept per type, keyed by id. All methods are
// safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string]*collection
}

type collection struct {
	order []string
	byID  map[string]any
}

// New returns an empty store.
func New() *Store {
	return &Store{data: make(map[string]*collection)}
}

func (st *Store) collectionOf(typeName string) *collection {
	c, ok := st.data[typeName]
	if !ok {
		c = &collection{byID: make(map[string]any)}
		st.data[typeName] = c
	}
	return c
}

// Add seeds the store with resources of s's type, keyed by their ids.
func (st *Store) Add(s *schema.Schema, resources ...any) error {
	for _, r := range resources {
		id, err := s.IDOf(r)
		if err != nil {
			return err
		}
		st.Put(s.Type(), id, r)
	}
	return nil
}

// Put stores resource under the given type and id, replacing any
// previous resource with that id.
func (st *Store) Put(typeName, id string, resource any) {
	st.mu.Lock()
	defer st.mu.Unlock()
	c := st.collectionOf(typeName)
	if _, exists := c.byID[id]; !exists {
		c.order = append(c.order, id)
	}
	c.byID[id] = resource
}

// Remove deletes the resource with the given type and id, reporting
// whether it existed.
func (st *Store) Remove(typeName, id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	c, ok := st.data[typeName]
	if !ok {
		return false
	}
	if _, exists := c.byID[id]; !exists {
		return false
	}
	delete(c.byID, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Reset drops every resource.
func (st *Store) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.data = make(map[string]*collection)
}

// Len returns the number of resources stored for typeName.
func (st *Store) Len(typeName string) int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	c, ok := st.data[typeName]
	if !ok {
		return 0
	}
	return len(c.order)
}

// Deleter returns a schema.DeleterFunc removing resources of typeName,
// suitable for schema.Config.Deleter.
func (st *Store) Deleter(typeName string) schema.DeleterFunc {
	return func(ctx context.Context, id string) error {
		if !st.Remove(typeName, id) {
			return apierror.NotFound("The resource '" + typeName + "/" + id + "' does not exist.")
		}
		return nil
	}
}

// Save implements schema.Saver: the resource is stored under its
// current id.
func (st *Store) Save(ctx context.Context, s *schema.Schema, resource any) error {
	id, err := s.IDOf(resource)
	if err != nil {
		return err
	}
	st.Put(s.Type(), id, resource)
	return nil
}

// Resource implements schema.Store.
func (st *Store) Resource(ctx context.Context, s *schema.Schema, id string, q *schema.Query) (any, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	c, ok := st.data[s.Type()]
	if ok {
		if r, exists := c.byID[id]; exists {
			return r, nil
		}
	}
	return nil, apierror.NotFound("The resource '" + s.Type() + "/" + id + "' does not exist.")
}

// Collection implements schema.Store: the stored resources in
// insertion order, filtered, sorted and paginated per q.
func (st *Store) Collection(ctx context.Context, s *schema.Schema, q *schema.Query) ([]any, error) {
	st.mu.RLock()
	var items []any
	if c, ok := st.data[s.Type()]; ok {
		items = make([]any, 0, len(c.order))
		for _, id := range c.order {
			items = append(items, c.byID[id])
		}
	}
	st.mu.RUnlock()
	return shape(s, items, q)
}

// Relatives implements schema.Store: the relationship's relatives,
// shaped by q when they all belong to one registered type.
func (st *Store) Relatives(ctx context.Context, s *schema.Schema, resource any, relname string, q *schema.Query) ([]any, error) {
	relatives, err := s.Include(ctx, resource, relname)
	if err != nil {
		return nil, err
	}
	rs := relatedSchema(s, relatives)
	if rs == nil {
		return paginate(relatives, q), nil
	}
	return shape(rs, relatives, q)
}

// relatedSchema resolves the single schema all relatives share, or nil
// for empty or mixed collections.
func relatedSchema(s *schema.Schema, relatives []any) *schema.Schema {
	api := s.API()
	if api == nil || len(relatives) == 0 {
		return nil
	}
	var rs *schema.Schema
	for _, r := range relatives {
		id, err := api.EnsureIdentifier(r)
		if err != nil {
			return nil
		}
		candidate, ok := api.SchemaByType(id.Type)
		if !ok {
			return nil
		}
		if rs == nil {
			rs = candidate
			continue
		}
		if rs != candidate {
			return nil
		}
	}
	return rs
}

// shape applies q's filters, sort order and pagination to items of s's
// type.
func shape(s *schema.Schema, items []any, q *schema.Query) ([]any, error) {
	if q == nil {
		return items, nil
	}
	items, err := filterItems(s, items, q.Filters)
	if err != nil {
		return nil, err
	}
	if err := sortItems(s, items, q.Sort); err != nil {
		return nil, err
	}
	return paginate(items, q), nil
}

// filterItems keeps the items whose encoded field values match the
// filters exactly. Filter names address fields by wire name; "id"
// addresses the resource id.
func filterItems(s *schema.Schema, items []any, filters map[string]string) ([]any, error) {
	if len(filters) == 0 {
		return items, nil
	}
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	kept := items
	for _, name := range names {
		want := filters[name]
		matcher, err := fieldStringer(s, name, "filter["+name+"]")
		if err != nil {
			return nil, err
		}
		next := make([]any, 0, len(kept))
		for _, item := range kept {
			got, err := matcher(item)
			if err != nil {
				return nil, err
			}
			if got == want {
				next = append(next, item)
			}
		}
		kept = next
	}
	return kept, nil
}

// sortItems orders items by the sort fields, stable per field
// priority. Numeric values compare numerically, everything else by
// its encoded string form.
func sortItems(s *schema.Schema, items []any, fields []schema.SortField) error {
	if len(fields) == 0 {
		return nil
	}
	type keyed struct {
		valuer func(any) (any, error)
		desc   bool
	}
	keys := make([]keyed, 0, len(fields))
	for _, sf := range fields {
		valuer, err := fieldValuer(s, sf.Name, "sort")
		if err != nil {
			return err
		}
		keys = append(keys, keyed{valuer: valuer, desc: sf.Desc})
	}
	var sortErr error
	sort.SliceStable(items, func(i, j int) bool {
		for _, k := range keys {
			a, err := k.valuer(items[i])
			if err != nil {
				sortErr = err
				return false
			}
			b, err := k.valuer(items[j])
			if err != nil {
				sortErr = err
				return false
			}
			cmp := compareEncoded(a, b)
			if cmp == 0 {
				continue
			}
			if k.desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return sortErr
}

// compareEncoded orders two encoded field values.
func compareEncoded(a, b any) int {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			switch {
			case !ab && bb:
				return -1
			case ab && !bb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// fieldValuer returns a function producing one encoded field value of
// a resource. Unknown field names fail with an InvalidValue error
// naming the query parameter.
func fieldValuer(s *schema.Schema, name, parameter string) (func(any) (any, error), error) {
	if name == "id" {
		return func(item any) (any, error) {
			return s.IDOf(item)
		}, nil
	}
	var field schema.Field
	for _, f := range s.Attributes() {
		if f.Name() == name {
			field = f
			break
		}
	}
	if field == nil {
		return nil, apierror.InvalidValue(
			"The type '"+s.Type()+"' has no attribute '"+name+"'.", "",
		).WithParameter(parameter)
	}
	return func(item any) (any, error) {
		v, err := field.Get(s, item)
		if err != nil {
			return nil, err
		}
		return field.Encode(s, v)
	}, nil
}

// fieldStringer renders one field of a resource as a string for exact
// matching.
func fieldStringer(s *schema.Schema, name, parameter string) (func(any) (string, error), error) {
	valuer, err := fieldValuer(s, name, parameter)
	if err != nil {
		return nil, err
	}
	return func(item any) (string, error) {
		v, err := valuer(item)
		if err != nil {
			return "", err
		}
		return fmt.Sprint(v), nil
	}, nil
}

// paginate bounds items to the query's page window and reports the
// total to the pager.
func paginate(items []any, q *schema.Query) []any {
	if q == nil || q.Page == nil {
		return items
	}
	if t, ok := q.Page.(schema.Totaler); ok {
		t.SetTotal(len(items))
	}
	w, ok := q.Page.(schema.Window)
	if !ok {
		return items
	}
	offset, limit := w.Window()
	if offset >= len(items) {
		return []any{}
	}
	items = items[offset:]
	if limit >= 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var (
	_ schema.Store = (*Store)(nil)
	_ schema.Saver = (*Store)(nil)
)
