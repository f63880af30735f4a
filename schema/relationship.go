package schema

import (
	"context"
	"reflect"

	"go.uber.org/zap"

	"github.com/grantwwu/jsonapi/apierror"
	"github.com/grantwwu/jsonapi/jsonpointer"
)

// relationshipField is the package-internal face of ToOne and ToMany.
type relationshipField interface {
	Field
	relState() *relationshipState
	encodeObject(s *Schema, resource any, pager Pager) (map[string]any, error)
}

var identifierType = reflect.TypeOf(Identifier{})

// relationshipState carries the declaration shared by both
// relationship kinds.
type relationshipState struct {
	fieldState
	foreignTypes   map[string]struct{}
	requireData    Policy
	requireDataSet bool
	dereference    bool
	noDefaultLinks bool
	includer       IncluderFunc
	querier        QuerierFunc
	links          []*Link
}

func (r *relationshipState) relState() *relationshipState { return r }

func (r *relationshipState) cloneRelState() relationshipState {
	c := *r
	c.fieldState = r.cloneState()
	if r.foreignTypes != nil {
		c.foreignTypes = make(map[string]struct{}, len(r.foreignTypes))
		for k := range r.foreignTypes {
			c.foreignTypes[k] = struct{}{}
		}
	}
	c.links = make([]*Link, len(r.links))
	for i, l := range r.links {
		c.links[i] = l.clone().(*Link)
	}
	return c
}

func (r *relationshipState) finish(s *Schema) error {
	if r.optionErr != nil {
		return r.optionErr
	}
	r.resolve(s)
	if !r.requireDataSet {
		if r.dereference {
			r.requireData = Always
		} else {
			r.requireData = Never
		}
	}
	if r.index == nil && r.getter == nil && r.includer == nil && r.querier == nil {
		return apierror.Configuration(
			"relationship %q has no mapping on %s and no getter, includer or querier",
			r.key, s.resourceName(),
		)
	}
	if r.writable != Never && r.index == nil && r.setter == nil {
		return apierror.Configuration(
			"relationship %q is writable but has no mapping on %s and no setter",
			r.key, s.resourceName(),
		)
	}
	for _, l := range r.links {
		if err := l.finish(s); err != nil {
			return err
		}
	}
	return nil
}

// validateObject checks the relationship object shape: an object with
// only data, links and meta members, at least one of them, and a data
// member whenever the relationship requires one under op.
func (r *relationshipState) validateObject(raw any, sp jsonpointer.Pointer, op Operation) (map[string]any, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, apierror.InvalidType("Must be a relationship object.", sp)
	}
	if len(obj) == 0 {
		return nil, apierror.InvalidValue("Must contain at least one of 'data', 'links' or 'meta'.", sp)
	}
	for _, k := range sortedKeys(obj) {
		switch k {
		case "data", "links", "meta":
		default:
			return nil, apierror.InvalidValue("Unexpected member: '"+k+"'.", sp.Child(k))
		}
	}
	if _, has := obj["data"]; !has && r.requireData.Applies(op) {
		return nil, apierror.InvalidValue("The 'data' member is required.", sp)
	}
	return obj, nil
}

// linkageObject renders one linkage value as a resource identifier
// object, or nil for an empty to-one linkage. Resources are resolved
// through the bound API.
func (r *relationshipState) linkageObject(s *Schema, v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case Identifier:
		if t.IsZero() {
			return nil, nil
		}
		return t.Object(), nil
	case *Identifier:
		if t == nil {
			return nil, nil
		}
		return t.Object(), nil
	case map[string]any:
		return map[string]any{"type": t["type"], "id": t["id"]}, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, nil
	}
	if s.api == nil {
		return nil, apierror.Configuration(
			"relationship %q: schema %q is not bound to an API", r.key, s.typeName,
		)
	}
	id, err := s.api.EnsureIdentifier(v)
	if err != nil {
		return nil, err
	}
	return id.Object(), nil
}

// encodeLinks renders the relationship's links object: the automatic
// self and related links plus any attached link fields.
func (r *relationshipState) encodeLinks(s *Schema, resource any) (map[string]any, error) {
	links := make(map[string]any)
	if s.api != nil && !r.noDefaultLinks {
		id, err := s.IDOf(resource)
		if err != nil {
			return nil, err
		}
		links["self"] = s.api.RelationshipURL(s.typeName, id, r.name)
		links["related"] = s.api.RelatedURL(s.typeName, id, r.name)
	}
	for _, l := range r.links {
		v, err := l.Get(s, resource)
		if err != nil {
			return nil, err
		}
		ev, err := l.Encode(s, v)
		if err != nil {
			return nil, err
		}
		links[l.Name()] = ev
	}
	return links, nil
}

// targetType returns the type of the mapped struct field.
func (r *relationshipState) targetType(s *Schema) (reflect.Type, bool) {
	if r.index == nil || s.resourceType == nil {
		return nil, false
	}
	return s.resourceType.FieldByIndex(r.index).Type, true
}

// wantsIdentifier reports whether the mapped struct field stores
// identifiers rather than resolved relatives.
func (r *relationshipState) wantsIdentifier(s *Schema) bool {
	t, ok := r.targetType(s)
	if !ok {
		return false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Slice {
		t = t.Elem()
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
	}
	return t == identifierType
}

// fetchRelative resolves one identifier to its resource through the
// bound API and the related schema's store.
func (r *relationshipState) fetchRelative(ctx context.Context, s *Schema, id Identifier, sp jsonpointer.Pointer) (any, error) {
	if s.api == nil {
		return nil, apierror.Configuration(
			"relationship %q: schema %q is not bound to an API", r.key, s.typeName,
		)
	}
	rs, ok := s.api.SchemaByType(id.Type)
	if !ok {
		return nil, apierror.InvalidValue("Unexpected type: '"+id.Type+"'.", sp)
	}
	return rs.Load(ctx, id.ID, nil)
}

func (r *relationshipState) fetchRelatives(ctx context.Context, s *Schema, ids []Identifier, sp jsonpointer.Pointer) ([]any, error) {
	out := make([]any, 0, len(ids))
	for i, id := range ids {
		rel, err := r.fetchRelative(ctx, s, id, sp.ChildIndex(i))
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, nil
}

// assignRelatives writes resolved relatives into the mapped slice
// field.
func (r *relationshipState) assignRelatives(s *Schema, resource any, relatives []any) error {
	t, ok := r.targetType(s)
	if !ok || t.Kind() != reflect.Slice {
		return apierror.Configuration(
			"relationship %q: cannot store relatives on %s without a slice mapping or a setter",
			r.key, s.resourceName(),
		)
	}
	out := reflect.MakeSlice(t, 0, len(relatives))
	for _, rel := range relatives {
		rv := reflect.ValueOf(rel)
		if !rv.Type().AssignableTo(t.Elem()) {
			return apierror.Configuration(
				"relationship %q: cannot store %T in %s", r.key, rel, t,
			)
		}
		out = reflect.Append(out, rv)
	}
	return r.assign(s, resource, out.Interface())
}

// Include returns the relatives of resource for compound documents,
// through the includer or the mapped value.
func (r *relationshipState) Include(ctx context.Context, s *Schema, resource any) ([]any, error) {
	if r.includer != nil {
		return r.includer(ctx, s, resource)
	}
	v, err := r.Get(s, resource)
	if err != nil {
		return nil, err
	}
	return r.relativesFromValue(ctx, s, v)
}

// Query returns the relatives of resource for a related-resource
// request. The querier wins over the schema's store, which wins over
// the mapped value.
func (r *relationshipState) Query(ctx context.Context, s *Schema, resource any, q *Query) ([]any, error) {
	if r.querier != nil {
		return r.querier(ctx, s, resource, q)
	}
	if s.store != nil {
		return s.store.Relatives(ctx, s, resource, r.name, q)
	}
	return r.Include(ctx, s, resource)
}

// relativesFromValue derives the relatives from a mapped value, which
// may hold resolved resources or identifiers.
func (r *relationshipState) relativesFromValue(ctx context.Context, s *Schema, v any) ([]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case Identifier:
		if t.IsZero() {
			return nil, nil
		}
		rel, err := r.fetchRelative(ctx, s, t, "")
		if err != nil {
			return nil, err
		}
		return []any{rel}, nil
	case *Identifier:
		if t == nil {
			return nil, nil
		}
		return r.relativesFromValue(ctx, s, *t)
	case []Identifier:
		return r.fetchRelatives(ctx, s, t, "")
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, rv.Index(i).Interface())
		}
		return out, nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return []any{v}, nil
	case reflect.Struct, reflect.Map:
		return []any{v}, nil
	}
	return nil, apierror.Configuration(
		"relationship %q: cannot derive relatives from %T; install an includer", r.key, v,
	)
}

// ToOne is a relationship pointing to at most one resource. Its
// linkage decodes to a *Identifier, nil meaning an empty relationship.
type ToOne struct {
	relationshipState
}

// NewToOne returns a to-one relationship field.
func NewToOne(key string, opts ...Option) *ToOne {
	f := &ToOne{relationshipState{
		fieldState:  fieldState{key: key, writable: Always},
		dereference: true,
	}}
	applyOptions(f, opts)
	return f
}

func (f *ToOne) clone() Field {
	c := *f
	c.relationshipState = f.cloneRelState()
	return &c
}

func (f *ToOne) ValidatePreDecode(s *Schema, raw any, sp jsonpointer.Pointer, op Operation) error {
	obj, err := f.validateObject(raw, sp, op)
	if err != nil {
		return err
	}
	if data, has := obj["data"]; has && data != nil {
		if err := validateIdentifierObject(data, f.foreignTypes, sp.Child("data")); err != nil {
			return err
		}
	}
	return f.fieldState.ValidatePreDecode(s, raw, sp, op)
}

// Decode extracts the linkage. A null data member yields nil; a
// missing one yields nil as well, which update handling treats as
// "leave unchanged".
func (f *ToOne) Decode(s *Schema, raw any, sp jsonpointer.Pointer) (any, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, apierror.InvalidType("Must be a relationship object.", sp)
	}
	data, has := obj["data"]
	if !has || data == nil {
		return (*Identifier)(nil), nil
	}
	m, ok := data.(map[string]any)
	if !ok {
		return nil, apierror.InvalidType("Must be a resource identifier object.", sp.Child("data"))
	}
	id := identifierFromObject(m)
	return &id, nil
}

// Encode renders the linkage value as a resource identifier object or
// nil.
func (f *ToOne) Encode(s *Schema, value any) (any, error) {
	return f.linkageObject(s, value)
}

func (f *ToOne) encodeObject(s *Schema, resource any, pager Pager) (map[string]any, error) {
	obj := make(map[string]any)
	links, err := f.encodeLinks(s, resource)
	if err != nil {
		return nil, err
	}
	if f.dereference {
		v, err := f.Get(s, resource)
		if err != nil {
			return nil, err
		}
		data, err := f.linkageObject(s, v)
		if err != nil {
			return nil, err
		}
		obj["data"] = data
	}
	mergePager(obj, links, pager)
	if len(links) > 0 {
		obj["links"] = links
	}
	return obj, nil
}

// Set stores the linkage. Identifiers are written as-is when the
// mapped field holds identifiers, and resolved to the relative through
// the related schema's store otherwise.
func (f *ToOne) Set(ctx context.Context, s *Schema, resource, value any, sp jsonpointer.Pointer) error {
	if f.writable == Never {
		return apierror.InvalidOperation("The relationship '"+f.name+"' is read-only.", sp)
	}
	if f.setter != nil {
		return f.setter(ctx, s, resource, value, sp)
	}
	var id *Identifier
	switch v := value.(type) {
	case nil:
	case *Identifier:
		id = v
	case Identifier:
		id = &v
	default:
		return f.assign(s, resource, value)
	}
	if id == nil {
		return f.assign(s, resource, nil)
	}
	if f.wantsIdentifier(s) {
		return f.assign(s, resource, *id)
	}
	rel, err := f.fetchRelative(ctx, s, *id, sp.Child("data"))
	if err != nil {
		return err
	}
	return f.assign(s, resource, rel)
}

// ToMany is a relationship pointing to any number of resources. Its
// linkage decodes to a []Identifier.
type ToMany struct {
	relationshipState
	adder   AdderFunc
	remover RemoverFunc
}

// NewToMany returns a to-many relationship field.
func NewToMany(key string, opts ...Option) *ToMany {
	f := &ToMany{relationshipState: relationshipState{
		fieldState:  fieldState{key: key, writable: Always},
		dereference: true,
	}}
	applyOptions(f, opts)
	return f
}

func (f *ToMany) clone() Field {
	c := *f
	c.relationshipState = f.cloneRelState()
	return &c
}

func (f *ToMany) ValidatePreDecode(s *Schema, raw any, sp jsonpointer.Pointer, op Operation) error {
	obj, err := f.validateObject(raw, sp, op)
	if err != nil {
		return err
	}
	if data, has := obj["data"]; has {
		items, ok := data.([]any)
		if !ok {
			return apierror.InvalidType("Must be an array of resource identifier objects.", sp.Child("data"))
		}
		for i, item := range items {
			if err := validateIdentifierObject(item, f.foreignTypes, sp.Child("data").ChildIndex(i)); err != nil {
				return err
			}
		}
	}
	return f.fieldState.ValidatePreDecode(s, raw, sp, op)
}

// Decode extracts the linkage as identifiers. A missing data member
// yields nil, which update handling treats as "leave unchanged".
func (f *ToMany) Decode(s *Schema, raw any, sp jsonpointer.Pointer) (any, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, apierror.InvalidType("Must be a relationship object.", sp)
	}
	data, has := obj["data"]
	if !has {
		return []Identifier(nil), nil
	}
	items, ok := data.([]any)
	if !ok {
		return nil, apierror.InvalidType("Must be an array of resource identifier objects.", sp.Child("data"))
	}
	ids := make([]Identifier, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, apierror.InvalidType("Must be a resource identifier object.", sp.Child("data").ChildIndex(i))
		}
		ids = append(ids, identifierFromObject(m))
	}
	return ids, nil
}

// Encode renders the linkage value as an array of resource identifier
// objects.
func (f *ToMany) Encode(s *Schema, value any) (any, error) {
	if value == nil {
		return []any{}, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return []any{}, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, apierror.Configuration(
			"relationship %q: cannot encode %T as to-many linkage", f.key, value,
		)
	}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		ido, err := f.linkageObject(s, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		if ido != nil {
			out = append(out, ido)
		}
	}
	return out, nil
}

func (f *ToMany) encodeObject(s *Schema, resource any, pager Pager) (map[string]any, error) {
	obj := make(map[string]any)
	links, err := f.encodeLinks(s, resource)
	if err != nil {
		return nil, err
	}
	if f.dereference {
		v, err := f.Get(s, resource)
		if err != nil {
			return nil, err
		}
		data, err := f.Encode(s, v)
		if err != nil {
			return nil, err
		}
		obj["data"] = data
	}
	mergePager(obj, links, pager)
	if len(links) > 0 {
		obj["links"] = links
	}
	return obj, nil
}

// Set replaces the linkage.
func (f *ToMany) Set(ctx context.Context, s *Schema, resource, value any, sp jsonpointer.Pointer) error {
	if f.writable == Never {
		return apierror.InvalidOperation("The relationship '"+f.name+"' is read-only.", sp)
	}
	if f.setter != nil {
		return f.setter(ctx, s, resource, value, sp)
	}
	ids, ok := value.([]Identifier)
	if !ok {
		if value == nil {
			ids = nil
		} else {
			return f.assign(s, resource, value)
		}
	}
	if f.wantsIdentifier(s) {
		return f.assign(s, resource, ids)
	}
	relatives, err := f.fetchRelatives(ctx, s, ids, sp.Child("data"))
	if err != nil {
		return err
	}
	return f.assignRelatives(s, resource, relatives)
}

// Add extends the linkage with ids, skipping ones already present.
func (f *ToMany) Add(ctx context.Context, s *Schema, resource any, ids []Identifier, sp jsonpointer.Pointer) error {
	if !f.writable.Applies(OpUpdate) {
		return apierror.InvalidOperation("The relationship '"+f.name+"' is read-only.", sp)
	}
	if f.adder != nil {
		return f.adder(ctx, s, resource, ids, sp)
	}
	s.logger.Debug("using default relationship adder",
		zap.String("type", s.typeName),
		zap.String("relationship", f.name),
	)
	current, seen, err := f.currentLinkage(s, resource)
	if err != nil {
		return err
	}
	if f.wantsIdentifier(s) {
		merged := append([]Identifier(nil), currentIdentifiers(current)...)
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
		return f.assign(s, resource, merged)
	}
	kept := append([]any(nil), current...)
	for i, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		rel, err := f.fetchRelative(ctx, s, id, sp.Child("data").ChildIndex(i))
		if err != nil {
			return err
		}
		kept = append(kept, rel)
	}
	return f.assignRelatives(s, resource, kept)
}

// Remove drops ids from the linkage, ignoring ones that are absent.
func (f *ToMany) Remove(ctx context.Context, s *Schema, resource any, ids []Identifier, sp jsonpointer.Pointer) error {
	if !f.writable.Applies(OpUpdate) {
		return apierror.InvalidOperation("The relationship '"+f.name+"' is read-only.", sp)
	}
	if f.remover != nil {
		return f.remover(ctx, s, resource, ids, sp)
	}
	s.logger.Debug("using default relationship remover",
		zap.String("type", s.typeName),
		zap.String("relationship", f.name),
	)
	drop := make(map[Identifier]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	current, _, err := f.currentLinkage(s, resource)
	if err != nil {
		return err
	}
	if f.wantsIdentifier(s) {
		kept := make([]Identifier, 0, len(current))
		for _, id := range currentIdentifiers(current) {
			if _, gone := drop[id]; !gone {
				kept = append(kept, id)
			}
		}
		return f.assign(s, resource, kept)
	}
	kept := make([]any, 0, len(current))
	for _, rel := range current {
		id, err := f.identifierOf(s, rel)
		if err != nil {
			return err
		}
		if _, gone := drop[id]; !gone {
			kept = append(kept, rel)
		}
	}
	return f.assignRelatives(s, resource, kept)
}

// currentLinkage reads the mapped value and indexes the identifiers of
// its elements.
func (f *ToMany) currentLinkage(s *Schema, resource any) ([]any, map[Identifier]struct{}, error) {
	v, err := f.Get(s, resource)
	if err != nil {
		return nil, nil, err
	}
	var elems []any
	if v != nil {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, nil, apierror.Configuration(
				"relationship %q: mapped value %T is not a slice", f.key, v,
			)
		}
		elems = make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elems = append(elems, rv.Index(i).Interface())
		}
	}
	seen := make(map[Identifier]struct{}, len(elems))
	for _, e := range elems {
		id, err := f.identifierOf(s, e)
		if err != nil {
			return nil, nil, err
		}
		seen[id] = struct{}{}
	}
	return elems, seen, nil
}

func (f *ToMany) identifierOf(s *Schema, v any) (Identifier, error) {
	if id, ok := v.(Identifier); ok {
		return id, nil
	}
	if s.api == nil {
		return Identifier{}, apierror.Configuration(
			"relationship %q: schema %q is not bound to an API", f.key, s.typeName,
		)
	}
	return s.api.EnsureIdentifier(v)
}

func currentIdentifiers(elems []any) []Identifier {
	ids := make([]Identifier, 0, len(elems))
	for _, e := range elems {
		if id, ok := e.(Identifier); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// mergePager folds pagination links and meta into a relationship
// object.
func mergePager(obj, links map[string]any, pager Pager) {
	if pager == nil {
		return
	}
	for k, v := range pager.Links() {
		links[k] = v
	}
	if meta := pager.Meta(); len(meta) > 0 {
		m, ok := obj["meta"].(map[string]any)
		if !ok {
			m = make(map[string]any, len(meta))
			obj["meta"] = m
		}
		for k, v := range meta {
			m[k] = v
		}
	}
}
