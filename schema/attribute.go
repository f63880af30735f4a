package schema

import "github.com/grantwwu/jsonapi/jsonpointer"

// Attr is the untyped attribute. Any JSON value passes through
// unchanged in both directions; only registered validators constrain
// it. The typed catalog (NewString, NewInteger, ...) should be
// preferred wherever the value shape is known.
type Attr struct {
	fieldState
}

// NewAttr returns an untyped attribute field.
func NewAttr(key string, opts ...Option) *Attr {
	f := &Attr{fieldState: fieldState{key: key, writable: Always}}
	applyOptions(f, opts)
	return f
}

func (f *Attr) clone() Field {
	c := *f
	c.fieldState = f.cloneState()
	return &c
}

// NewID designates f as the resource identifier. Exactly one field per
// schema must be designated; string, UUID and integer fields qualify.
// The id defaults to Writable(OnCreate), admitting client-generated
// ids on creation; pass ReadOnly() to the inner constructor for
// server-generated ids.
func NewID(f Field) Field {
	st := f.state()
	st.id = true
	if !st.writableSet {
		st.writable = OnCreate
	}
	return f
}

// idField is implemented by the kinds that can serve as the resource
// identifier. The wire id is always a string; these methods translate
// between that string and the kind's application value.
type idField interface {
	decodeIDString(s *Schema, value string, sp jsonpointer.Pointer) (any, error)
	encodeIDString(value any) (string, error)
}
