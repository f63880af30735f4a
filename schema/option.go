package schema

import (
	"regexp"

	"github.com/grantwwu/jsonapi/apierror"
)

// Option customizes a field at construction time. Options are passed
// to the New* constructors; an option that does not apply to the
// field's kind records a configuration error, which surfaces when a
// schema is built from the field.
type Option interface {
	apply(f Field)
}

type optionFunc func(f Field)

func (fn optionFunc) apply(f Field) { fn(f) }

// Name overrides the field's wire name. The key stays the handle used
// in Go code; the name is what appears in documents.
func Name(name string) Option {
	return optionFunc(func(f Field) { f.state().name = name })
}

// MapTo overrides the resource struct field the field binds to. The
// default mapping is the exported form of the key.
func MapTo(structField string) Option {
	return optionFunc(func(f Field) {
		st := f.state()
		st.mappedKey = structField
		st.virtual = structField == ""
	})
}

// Virtual detaches the field from the resource struct. A virtual field
// must carry a getter, and a setter if it is writable.
func Virtual() Option {
	return optionFunc(func(f Field) {
		st := f.state()
		st.mappedKey = ""
		st.virtual = true
	})
}

// Writable sets the contexts in which a client may supply the field.
// Attributes and relationships default to Always.
func Writable(p Policy) Option {
	return optionFunc(func(f Field) {
		st := f.state()
		st.writable = p
		st.writableSet = true
	})
}

// ReadOnly is shorthand for Writable(Never).
func ReadOnly() Option { return Writable(Never) }

// Required sets the contexts in which the field's wire member must be
// present. The default is Never.
func Required(p Policy) Option {
	return optionFunc(func(f Field) {
		st := f.state()
		st.required = p
		st.requiredSet = true
	})
}

// Getter installs a custom read accessor, replacing the mapped struct
// field on the read path.
func Getter(fn GetterFunc) Option {
	return optionFunc(func(f Field) { f.state().getter = fn })
}

// Setter installs a custom write accessor, replacing the mapped struct
// field on the write path.
func Setter(fn SetterFunc) Option {
	return optionFunc(func(f Field) { f.state().setter = fn })
}

// Validate registers a validator for one phase. when filters the CRUD
// contexts the validator runs in; validators registered for a phase
// run in registration order after the field's built-in checks.
func Validate(phase Phase, when Policy, fn ValidatorFunc) Option {
	return optionFunc(func(f Field) {
		st := f.state()
		st.validators = append(st.validators, fieldValidator{fn: fn, phase: phase, when: when})
	})
}

// Meta moves an attribute into the resource's meta object.
func Meta() Option {
	return optionFunc(func(f Field) {
		switch f.(type) {
		case *Link, *ToOne, *ToMany:
			f.state().fail(apierror.Configuration("option Meta does not apply to %T", f))
		default:
			f.state().meta = true
		}
	})
}

// Pattern requires string values to match expr in full. expr uses RE2
// syntax and is anchored automatically.
func Pattern(expr string) Option {
	return optionFunc(func(f Field) {
		sf, ok := f.(*String)
		if !ok {
			f.state().fail(apierror.Configuration("option Pattern does not apply to %T", f))
			return
		}
		re, err := regexp.Compile(`\A(?:` + expr + `)\z`)
		if err != nil {
			f.state().fail(apierror.Configuration("field %q: invalid pattern: %v", f.state().key, err))
			return
		}
		sf.pattern = re
	})
}

// MinLength requires string values to be at least n characters long,
// counted in runes.
func MinLength(n int) Option {
	return optionFunc(func(f Field) {
		sf, ok := f.(*String)
		if !ok {
			f.state().fail(apierror.Configuration("option MinLength does not apply to %T", f))
			return
		}
		sf.minLength = n
	})
}

// MaxLength requires string values to be at most n characters long,
// counted in runes.
func MaxLength(n int) Option {
	return optionFunc(func(f Field) {
		sf, ok := f.(*String)
		if !ok {
			f.state().fail(apierror.Configuration("option MaxLength does not apply to %T", f))
			return
		}
		sf.maxLength = &n
	})
}

// Min sets an inclusive lower bound for numeric values. On Duration
// fields the bound is in seconds.
func Min(v float64) Option {
	return optionFunc(func(f Field) {
		switch nf := f.(type) {
		case *Integer:
			nf.min = &v
		case *Float:
			nf.min = &v
		case *Duration:
			nf.min = &v
		default:
			f.state().fail(apierror.Configuration("option Min does not apply to %T", f))
		}
	})
}

// Max sets an inclusive upper bound for numeric values. On Duration
// fields the bound is in seconds.
func Max(v float64) Option {
	return optionFunc(func(f Field) {
		switch nf := f.(type) {
		case *Integer:
			nf.max = &v
		case *Float:
			nf.max = &v
		case *Duration:
			nf.max = &v
		default:
			f.state().fail(apierror.Configuration("option Max does not apply to %T", f))
		}
	})
}

// DecimalMin sets an inclusive lower bound for decimal values. The
// bound is given as a decimal string to keep it exact.
func DecimalMin(v string) Option {
	return optionFunc(func(f Field) {
		df, ok := f.(*Decimal)
		if !ok {
			f.state().fail(apierror.Configuration("option DecimalMin does not apply to %T", f))
			return
		}
		df.setBound(&df.min, v)
	})
}

// DecimalMax sets an inclusive upper bound for decimal values.
func DecimalMax(v string) Option {
	return optionFunc(func(f Field) {
		df, ok := f.(*Decimal)
		if !ok {
			f.state().fail(apierror.Configuration("option DecimalMax does not apply to %T", f))
			return
		}
		df.setBound(&df.max, v)
	})
}

// DateOnly switches a DateTime field to calendar dates without a time
// component, in "2006-01-02" form.
func DateOnly() Option {
	return optionFunc(func(f Field) {
		df, ok := f.(*DateTime)
		if !ok {
			f.state().fail(apierror.Configuration("option DateOnly does not apply to %T", f))
			return
		}
		df.dateOnly = true
	})
}

// UUIDVersion requires values of a UUID field to be of the given
// version.
func UUIDVersion(version int) Option {
	return optionFunc(func(f Field) {
		uf, ok := f.(*UUID)
		if !ok {
			f.state().fail(apierror.Configuration("option UUIDVersion does not apply to %T", f))
			return
		}
		uf.version = version
	})
}

// ForeignTypes restricts the resource types accepted in a
// relationship's linkage. Without it any type is accepted.
func ForeignTypes(typeNames ...string) Option {
	return relOption("ForeignTypes", func(r *relationshipState) {
		r.foreignTypes = make(map[string]struct{}, len(typeNames))
		for _, t := range typeNames {
			r.foreignTypes[t] = struct{}{}
		}
	})
}

// RequireData sets the contexts in which a relationship object must
// carry a data member. Dereferencing relationships default to Always,
// link-only ones to Never.
func RequireData(p Policy) Option {
	return relOption("RequireData", func(r *relationshipState) {
		r.requireData = p
		r.requireDataSet = true
	})
}

// NoDereference marks a relationship as link-only: its value is never
// resolved to related resources and its relationship object carries no
// data member when encoded.
func NoDereference() Option {
	return relOption("NoDereference", func(r *relationshipState) {
		r.dereference = false
	})
}

// NoDefaultLinks suppresses the automatic self and related links of a
// relationship.
func NoDefaultLinks() Option {
	return relOption("NoDefaultLinks", func(r *relationshipState) {
		r.noDefaultLinks = true
	})
}

// Includer installs the callback that loads a relationship's relatives
// for compound documents, replacing the mapped-value default.
func Includer(fn IncluderFunc) Option {
	return relOption("Includer", func(r *relationshipState) {
		r.includer = fn
	})
}

// Querier installs the callback that loads a relationship's relatives
// for related-resource requests, with query support.
func Querier(fn QuerierFunc) Option {
	return relOption("Querier", func(r *relationshipState) {
		r.querier = fn
	})
}

// Adder installs the callback that extends a to-many relationship.
func Adder(fn AdderFunc) Option {
	return optionFunc(func(f Field) {
		tm, ok := f.(*ToMany)
		if !ok {
			f.state().fail(apierror.Configuration("option Adder does not apply to %T", f))
			return
		}
		tm.adder = fn
	})
}

// Remover installs the callback that shrinks a to-many relationship.
func Remover(fn RemoverFunc) Option {
	return optionFunc(func(f Field) {
		tm, ok := f.(*ToMany)
		if !ok {
			f.state().fail(apierror.Configuration("option Remover does not apply to %T", f))
			return
		}
		tm.remover = fn
	})
}

// LinkOf attaches a link field to the relationship declared under
// relKey instead of the resource's top-level links object.
func LinkOf(relKey string) Option {
	return optionFunc(func(f Field) {
		lf, ok := f.(*Link)
		if !ok {
			f.state().fail(apierror.Configuration("option LinkOf does not apply to %T", f))
			return
		}
		lf.linkOf = relKey
	})
}

// NoNormalize keeps bare string link values as strings instead of
// wrapping them into {"href": ...} objects.
func NoNormalize() Option {
	return optionFunc(func(f Field) {
		lf, ok := f.(*Link)
		if !ok {
			f.state().fail(apierror.Configuration("option NoNormalize does not apply to %T", f))
			return
		}
		lf.normalize = false
	})
}

// relOption builds an option that applies to both relationship kinds.
func relOption(name string, fn func(r *relationshipState)) Option {
	return optionFunc(func(f Field) {
		rf, ok := f.(relationshipField)
		if !ok {
			f.state().fail(apierror.Configuration("option %s does not apply to %T", name, f))
			return
		}
		fn(rf.relState())
	})
}

// applyOptions runs opts against f in declaration order.
func applyOptions(f Field, opts []Option) {
	for _, o := range opts {
		o.apply(f)
	}
}
