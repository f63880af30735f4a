package schema

import (
	"context"
	"fmt"
	"reflect"

	"github.com/grantwwu/jsonapi/apierror"
	"github.com/grantwwu/jsonapi/internal/strcase"
	"github.com/grantwwu/jsonapi/jsonpointer"
)

// Field is one named member of a resource: an attribute, the id, a
// link or a relationship. A field bundles the full lifecycle of that
// member: reading it from and writing it to the application resource,
// translating between application and wire values, and validating wire
// input in both decode phases.
//
// Fields are declared once, as part of a Config, and copied into every
// schema built from them; mutating a field after schema construction
// has no effect. All implementations live in this package and are
// created through the New* constructors.
type Field interface {
	// Key is the field's name within its schema. Unique per schema.
	Key() string

	// Name is the field's wire name, the member name used in
	// documents. Defaults to Key.
	Name() string

	// MappedKey is the resource struct field the field binds to, or ""
	// for virtual fields.
	MappedKey() string

	// Writable reports in which contexts a client may supply the
	// field.
	Writable() Policy

	// Required reports in which contexts the field's wire member must
	// be present.
	Required() Policy

	// SourcePointer locates the field's member within a resource
	// object, e.g. "/attributes/title". Assigned at schema
	// construction.
	SourcePointer() jsonpointer.Pointer

	// Get reads the field's value from resource, through the custom
	// getter or the mapped struct field.
	Get(s *Schema, resource any) (any, error)

	// Set writes a decoded value to resource, through the custom
	// setter or the mapped struct field. It fails with InvalidOperation
	// citing sp when Writable is Never.
	Set(ctx context.Context, s *Schema, resource, value any, sp jsonpointer.Pointer) error

	// Encode transforms an application value into its wire form.
	Encode(s *Schema, value any) (any, error)

	// Decode transforms a validated wire value into its application
	// form.
	Decode(s *Schema, raw any, sp jsonpointer.Pointer) (any, error)

	// ValidatePreDecode checks the raw wire value under op, before
	// Decode. Errors cite sp or a child of it.
	ValidatePreDecode(s *Schema, raw any, sp jsonpointer.Pointer, op Operation) error

	// ValidatePostDecode checks the decoded value under op.
	ValidatePostDecode(s *Schema, value any, sp jsonpointer.Pointer, op Operation) error

	state() *fieldState
	clone() Field
	finish(s *Schema) error
}

// GetterFunc reads a field's value from a resource.
type GetterFunc func(s *Schema, resource any) (any, error)

// SetterFunc writes a decoded value to a resource. sp locates the
// value within the request document, for error reporting.
type SetterFunc func(ctx context.Context, s *Schema, resource, value any, sp jsonpointer.Pointer) error

// ValidatorFunc checks one field value. Pre-decode validators receive
// the raw wire value, post-decode validators the decoded one.
type ValidatorFunc func(s *Schema, value any, sp jsonpointer.Pointer) error

// IncluderFunc returns the resources related to resource through a
// relationship, for compound documents.
type IncluderFunc func(ctx context.Context, s *Schema, resource any) ([]any, error)

// QuerierFunc returns the resources related to resource through a
// relationship, shaped by q. Used by related-resource endpoints.
type QuerierFunc func(ctx context.Context, s *Schema, resource any, q *Query) ([]any, error)

// AdderFunc extends a to-many relationship with the given relatives.
type AdderFunc func(ctx context.Context, s *Schema, resource any, ids []Identifier, sp jsonpointer.Pointer) error

// RemoverFunc removes the given relatives from a to-many relationship.
type RemoverFunc func(ctx context.Context, s *Schema, resource any, ids []Identifier, sp jsonpointer.Pointer) error

// fieldValidator is a registered ValidatorFunc with its phase and
// context filter.
type fieldValidator struct {
	fn     ValidatorFunc
	phase  Phase
	when   Policy
}

// fieldState carries the declaration shared by every field kind. The
// concrete kinds embed it and layer their wire behavior on top.
type fieldState struct {
	key       string
	name      string
	mappedKey string
	virtual   bool
	id        bool
	meta      bool

	writable        Policy
	writableSet     bool
	required        Policy
	requiredSet     bool

	getter     GetterFunc
	setter     SetterFunc
	validators []fieldValidator

	sp    jsonpointer.Pointer
	index []int

	// optionErr records the first inapplicable or invalid option; it
	// surfaces as a configuration error when a schema is built.
	optionErr error
}

func (f *fieldState) Key() string                        { return f.key }
func (f *fieldState) Name() string                       { return f.name }
func (f *fieldState) Writable() Policy                   { return f.writable }
func (f *fieldState) Required() Policy                   { return f.required }
func (f *fieldState) SourcePointer() jsonpointer.Pointer { return f.sp }
func (f *fieldState) state() *fieldState                 { return f }

// MappedKey returns the bound struct field name, or "" for virtual
// fields.
func (f *fieldState) MappedKey() string {
	if f.virtual {
		return ""
	}
	return f.mappedKey
}

// cloneState returns a deep copy of the shared declaration.
func (f *fieldState) cloneState() fieldState {
	c := *f
	c.validators = append([]fieldValidator(nil), f.validators...)
	c.index = append([]int(nil), f.index...)
	return c
}

// fail records an option error, keeping the first one.
func (f *fieldState) fail(err error) {
	if f.optionErr == nil {
		f.optionErr = err
	}
}

// resolve fills in declaration defaults and looks the mapped struct
// field up on the schema's resource type.
func (f *fieldState) resolve(s *Schema) {
	if f.name == "" {
		f.name = f.key
	}
	if f.virtual {
		return
	}
	if f.mappedKey == "" {
		f.mappedKey = strcase.ToExported(f.key)
	}
	if s.resourceType != nil {
		if sf, ok := s.resourceType.FieldByName(f.mappedKey); ok {
			f.index = sf.Index
		}
	}
}

// finish resolves the field against the schema's resource type. It is
// called once per field during schema construction, after cloning.
func (f *fieldState) finish(s *Schema) error {
	if f.optionErr != nil {
		return f.optionErr
	}
	f.resolve(s)
	if f.virtual {
		if f.getter == nil {
			return apierror.Configuration("field %q is virtual but has no getter", f.key)
		}
		if f.writable != Never && f.setter == nil {
			return apierror.Configuration("field %q is virtual and writable but has no setter", f.key)
		}
		return nil
	}
	if f.index == nil && f.getter == nil {
		return apierror.Configuration(
			"field %q maps to %q, which does not exist on %s, and has no getter",
			f.key, f.mappedKey, s.resourceName(),
		)
	}
	if f.index == nil && f.writable != Never && f.setter == nil {
		return apierror.Configuration(
			"field %q is writable but maps to %q, which does not exist on %s, and has no setter",
			f.key, f.mappedKey, s.resourceName(),
		)
	}
	return nil
}

// Get reads the field's value from resource.
func (f *fieldState) Get(s *Schema, resource any) (any, error) {
	if f.getter != nil {
		return f.getter(s, resource)
	}
	rv, err := structValue(resource)
	if err != nil {
		return nil, apierror.Configuration("field %q: %v", f.key, err)
	}
	if f.index == nil {
		return nil, apierror.Configuration("field %q has no mapping on %s", f.key, s.resourceName())
	}
	return rv.FieldByIndex(f.index).Interface(), nil
}

// Set writes value to resource. value must be assignable to the mapped
// struct field, either directly or through a pointer indirection.
func (f *fieldState) Set(ctx context.Context, s *Schema, resource, value any, sp jsonpointer.Pointer) error {
	if f.writable == Never {
		return apierror.InvalidOperation("The field '"+f.name+"' is read-only.", sp)
	}
	if f.setter != nil {
		return f.setter(ctx, s, resource, value, sp)
	}
	return f.assign(s, resource, value)
}

// assign writes value to the mapped struct field without a writability
// check. Relationship kinds reuse it after resolving linkage.
func (f *fieldState) assign(s *Schema, resource, value any) error {
	if f.index == nil {
		return apierror.Configuration("field %q has no mapping on %s and no setter", f.key, s.resourceName())
	}
	rv, err := structValue(resource)
	if err != nil {
		return apierror.Configuration("field %q: %v", f.key, err)
	}
	if !rv.CanSet() {
		return apierror.Configuration("field %q: resource %T is not addressable", f.key, resource)
	}
	target := rv.FieldByIndex(f.index)
	if value == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	vv := reflect.ValueOf(value)
	switch {
	case vv.Type().AssignableTo(target.Type()):
		target.Set(vv)
	case target.Kind() == reflect.Pointer && vv.Type().AssignableTo(target.Type().Elem()):
		p := reflect.New(target.Type().Elem())
		p.Elem().Set(vv)
		target.Set(p)
	case vv.Type().ConvertibleTo(target.Type()) && convertible(vv.Type(), target.Type()):
		target.Set(vv.Convert(target.Type()))
	case target.Kind() == reflect.Slice && vv.Kind() == reflect.Slice:
		converted, err := convertSlice(vv, target.Type())
		if err != nil {
			return apierror.Configuration("field %q: %v", f.key, err)
		}
		target.Set(converted)
	case target.Kind() == reflect.Map && vv.Kind() == reflect.Map:
		converted, err := convertMap(vv, target.Type())
		if err != nil {
			return apierror.Configuration("field %q: %v", f.key, err)
		}
		target.Set(converted)
	default:
		return apierror.Configuration(
			"field %q: cannot assign %T to %s.%s (%s)",
			f.key, value, s.resourceName(), f.mappedKey, target.Type(),
		)
	}
	return nil
}

// convertSlice converts src element-wise into a slice of type dst,
// unwrapping interface elements. Decoded composite values arrive as
// []any and frequently land in typed slices like []string.
func convertSlice(src reflect.Value, dst reflect.Type) (reflect.Value, error) {
	out := reflect.MakeSlice(dst, src.Len(), src.Len())
	for i := 0; i < src.Len(); i++ {
		ev, err := convertElem(src.Index(i), dst.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(ev)
	}
	return out, nil
}

// convertMap converts src value-wise into a map of type dst.
func convertMap(src reflect.Value, dst reflect.Type) (reflect.Value, error) {
	if dst.Key().Kind() != reflect.String || src.Type().Key().Kind() != reflect.String {
		return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", src.Type(), dst)
	}
	out := reflect.MakeMapWithSize(dst, src.Len())
	iter := src.MapRange()
	for iter.Next() {
		ev, err := convertElem(iter.Value(), dst.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("key %q: %w", iter.Key().String(), err)
		}
		out.SetMapIndex(iter.Key().Convert(dst.Key()), ev)
	}
	return out, nil
}

// convertElem adapts one collection element to the element type of
// the target collection.
func convertElem(ev reflect.Value, dst reflect.Type) (reflect.Value, error) {
	if ev.Kind() == reflect.Interface {
		if ev.IsNil() {
			return reflect.Zero(dst), nil
		}
		ev = ev.Elem()
	}
	switch {
	case ev.Type().AssignableTo(dst):
		return ev, nil
	case ev.Type().ConvertibleTo(dst) && convertible(ev.Type(), dst):
		return ev.Convert(dst), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot assign %s to %s", ev.Type(), dst)
}

// Encode passes the value through unchanged.
func (f *fieldState) Encode(s *Schema, value any) (any, error) {
	return value, nil
}

// Decode passes the raw value through unchanged.
func (f *fieldState) Decode(s *Schema, raw any, sp jsonpointer.Pointer) (any, error) {
	return raw, nil
}

// ValidatePreDecode runs the registered pre-decode validators that
// apply under op.
func (f *fieldState) ValidatePreDecode(s *Schema, raw any, sp jsonpointer.Pointer, op Operation) error {
	return f.runValidators(s, raw, sp, op, PreDecode)
}

// ValidatePostDecode runs the registered post-decode validators that
// apply under op.
func (f *fieldState) ValidatePostDecode(s *Schema, value any, sp jsonpointer.Pointer, op Operation) error {
	return f.runValidators(s, value, sp, op, PostDecode)
}

func (f *fieldState) runValidators(s *Schema, value any, sp jsonpointer.Pointer, op Operation, phase Phase) error {
	for _, v := range f.validators {
		if v.phase != phase || !v.when.Applies(op) {
			continue
		}
		if err := v.fn(s, value, sp); err != nil {
			return err
		}
	}
	return nil
}

// structValue unwraps resource down to an addressable struct value.
func structValue(resource any) (reflect.Value, error) {
	rv := reflect.ValueOf(resource)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("resource is nil")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("resource %T is not a struct", resource)
	}
	return rv, nil
}

// convertible restricts reflect conversions to ones that cannot lose
// information silently between unrelated kinds. Numeric widening and
// named-type conversions are allowed, string/numeric cross conversions
// are not.
func convertible(from, to reflect.Type) bool {
	if from.Kind() == reflect.String && to.Kind() != reflect.String {
		return false
	}
	if to.Kind() == reflect.String && from.Kind() != reflect.String {
		return false
	}
	return true
}
