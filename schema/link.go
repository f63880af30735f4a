package schema

import (
	"strings"

	"github.com/grantwwu/jsonapi/apierror"
)

// Link is a URL member of the resource's links object, or, with the
// LinkOf option, of a relationship's links object. Its default value
// is the href template with {base}, {type} and {id} expanded; a getter
// replaces the template entirely.
//
// Links are read-only and never decoded.
type Link struct {
	fieldState
	href      string
	linkOf    string
	normalize bool
}

// NewLink returns a link field. href is a URL template; {base},
// {type} and {id} are replaced with the API base URL, the schema's
// type name and the resource's id when the value is read.
func NewLink(key, href string, opts ...Option) *Link {
	f := &Link{
		fieldState: fieldState{key: key, writable: Never, virtual: true},
		href:       href,
		normalize:  true,
	}
	applyOptions(f, opts)
	return f
}

func (f *Link) clone() Field {
	c := *f
	c.fieldState = f.cloneState()
	return &c
}

func (f *Link) finish(s *Schema) error {
	if f.optionErr != nil {
		return f.optionErr
	}
	if f.name == "" {
		f.name = f.key
	}
	if f.href == "" && f.getter == nil {
		return apierror.Configuration("link %q has neither an href template nor a getter", f.key)
	}
	if f.writable != Never && f.setter == nil {
		return apierror.Configuration("link %q is writable but has no setter", f.key)
	}
	return nil
}

// Get returns the link's value: the getter's result, or the expanded
// href template.
func (f *Link) Get(s *Schema, resource any) (any, error) {
	if f.getter != nil {
		return f.getter(s, resource)
	}
	base := ""
	if s.api != nil {
		base = s.api.BaseURL()
	}
	id := ""
	if strings.Contains(f.href, "{id}") {
		var err error
		id, err = s.IDOf(resource)
		if err != nil {
			return nil, err
		}
	}
	r := strings.NewReplacer("{base}", base, "{type}", s.typeName, "{id}", id)
	return r.Replace(f.href), nil
}

// Encode renders the link value. Bare strings become {"href": ...}
// objects unless NoNormalize was set; link objects pass through.
func (f *Link) Encode(s *Schema, value any) (any, error) {
	if !f.normalize {
		return value, nil
	}
	switch v := value.(type) {
	case string:
		return map[string]any{"href": v}, nil
	case map[string]any:
		return v, nil
	case nil:
		return nil, nil
	}
	return nil, apierror.Configuration("link %q: cannot encode %T as a link", f.key, value)
}
