package schema

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/grantwwu/jsonapi/apierror"
	"github.com/grantwwu/jsonapi/internal/strcase"
	"github.com/grantwwu/jsonapi/jsonpointer"
)

// DeleterFunc deletes the resource with the given id.
type DeleterFunc func(ctx context.Context, id string) error

// Config describes a resource type: its wire name, the Go type backing
// it, its fields and its collaborators.
type Config struct {
	// Type is the resource type name used on the wire. Defaults to the
	// snake_case name of the resource struct.
	Type string

	// Resource is a value (or pointer) of the struct the schema maps.
	// It may be left nil when every field carries custom accessors.
	Resource any

	// Fields declares the resource's members in order. Later fields
	// replace earlier ones with the same key, so field slices can be
	// composed by appending overrides to a shared base.
	Fields []Field

	// Store loads resources for this schema. Optional; without it the
	// read endpoints report their absence.
	Store Store

	// Deleter deletes resources. Optional; without it Delete fails
	// with a NotImplemented error.
	Deleter DeleterFunc

	// NewResource constructs an empty resource for Create. Defaults to
	// a pointer to a zero value of the resource struct.
	NewResource func() any

	// Logger receives the schema's debug logging. Defaults to the
	// bound API's logger.
	Logger *zap.Logger
}

// Schema is the immutable description of one resource type. It drives
// encoding, validation, decoding and the CRUD entry points for that
// type. A schema is safe for concurrent use once built and bound.
type Schema struct {
	typeName     string
	resourceType reflect.Type

	fields        []Field
	byKey         map[string]Field
	id            Field
	attributes    []Field
	relationships []Field
	links         []Field
	metaFields    []Field
	attrsByName   map[string]Field
	relsByName    map[string]Field
	metaByName    map[string]Field
	decodable     []Field

	store       Store
	deleter     DeleterFunc
	newResource func() any

	logger        *zap.Logger
	defaultLogger bool

	mu  sync.Mutex
	api API
}

// New builds a schema from cfg. Every declaration defect (duplicate
// keys or wire names, missing id, unmapped fields, inapplicable
// options) fails construction with a configuration error.
func New(cfg Config) (*Schema, error) {
	s := &Schema{
		typeName:    cfg.Type,
		store:       cfg.Store,
		deleter:     cfg.Deleter,
		newResource: cfg.NewResource,
		logger:      cfg.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
		s.defaultLogger = true
	}

	if cfg.Resource != nil {
		rt := reflect.TypeOf(cfg.Resource)
		for rt.Kind() == reflect.Pointer {
			rt = rt.Elem()
		}
		if rt.Kind() != reflect.Struct {
			return nil, apierror.Configuration("resource %T is not a struct", cfg.Resource)
		}
		s.resourceType = rt
		if s.newResource == nil {
			s.newResource = func() any { return reflect.New(rt).Interface() }
		}
	}
	if s.typeName == "" {
		if s.resourceType == nil {
			return nil, apierror.Configuration("schema has neither a type name nor a resource")
		}
		s.typeName = strcase.ToSnake(s.resourceType.Name())
	}

	if err := s.composeFields(cfg.Fields); err != nil {
		return nil, err
	}
	if err := s.attachLinks(); err != nil {
		return nil, err
	}
	for _, f := range s.fields {
		if err := f.finish(s); err != nil {
			return nil, err
		}
	}
	if err := s.classify(); err != nil {
		return nil, err
	}
	s.assignPointers()
	return s, nil
}

// MustNew is New, panicking on configuration errors. Intended for
// schema declarations at program start.
func MustNew(cfg Config) *Schema {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// composeFields clones the declared fields, applying the
// later-replaces-earlier rule per key.
func (s *Schema) composeFields(fields []Field) error {
	s.byKey = make(map[string]Field, len(fields))
	position := make(map[string]int, len(fields))
	for _, f := range fields {
		if f == nil {
			return apierror.Configuration("schema %q declares a nil field", s.typeName)
		}
		key := f.state().key
		if key == "" {
			return apierror.Configuration("schema %q declares a field without a key", s.typeName)
		}
		c := f.clone()
		if at, seen := position[key]; seen {
			s.fields[at] = c
		} else {
			position[key] = len(s.fields)
			s.fields = append(s.fields, c)
		}
		s.byKey[key] = c
	}
	return nil
}

// attachLinks moves LinkOf links from the top level into their
// relationship's links object.
func (s *Schema) attachLinks() error {
	kept := s.fields[:0]
	for _, f := range s.fields {
		l, ok := f.(*Link)
		if !ok || l.linkOf == "" {
			kept = append(kept, f)
			continue
		}
		target, ok := s.byKey[l.linkOf]
		if !ok {
			return apierror.Configuration(
				"link %q references unknown field %q", l.key, l.linkOf,
			)
		}
		rel, ok := target.(relationshipField)
		if !ok {
			return apierror.Configuration(
				"link %q references %q, which is not a relationship", l.key, l.linkOf,
			)
		}
		rel.relState().links = append(rel.relState().links, l)
		delete(s.byKey, l.key)
	}
	s.fields = kept
	return nil
}

// classify partitions the fields into id, attributes, relationships,
// links and meta, and checks wire name uniqueness.
func (s *Schema) classify() error {
	s.attrsByName = make(map[string]Field)
	s.relsByName = make(map[string]Field)
	s.metaByName = make(map[string]Field)
	fieldNames := make(map[string]string)
	for _, f := range s.fields {
		st := f.state()
		if st.id {
			if s.id != nil {
				return apierror.Configuration(
					"schema %q designates both %q and %q as the id",
					s.typeName, s.id.Key(), f.Key(),
				)
			}
			if _, ok := f.(idField); !ok {
				return apierror.Configuration(
					"schema %q: field %q cannot serve as the id", s.typeName, f.Key(),
				)
			}
			if st.meta {
				return apierror.Configuration(
					"schema %q: the id field %q cannot live in meta", s.typeName, f.Key(),
				)
			}
			s.id = f
			continue
		}
		switch f.(type) {
		case relationshipField:
			if prev, dup := fieldNames[st.name]; dup {
				return apierror.Configuration(
					"schema %q: fields %q and %q share the wire name %q",
					s.typeName, prev, st.key, st.name,
				)
			}
			fieldNames[st.name] = st.key
			s.relationships = append(s.relationships, f)
			s.relsByName[st.name] = f
		case *Link:
			s.links = append(s.links, f)
		default:
			if st.meta {
				if prev, dup := s.metaByName[st.name]; dup {
					return apierror.Configuration(
						"schema %q: fields %q and %q share the wire name %q",
						s.typeName, prev.Key(), st.key, st.name,
					)
				}
				s.metaFields = append(s.metaFields, f)
				s.metaByName[st.name] = f
				continue
			}
			if prev, dup := fieldNames[st.name]; dup {
				return apierror.Configuration(
					"schema %q: fields %q and %q share the wire name %q",
					s.typeName, prev, st.key, st.name,
				)
			}
			fieldNames[st.name] = st.key
			s.attributes = append(s.attributes, f)
			s.attrsByName[st.name] = f
		}
	}
	if s.id == nil {
		return apierror.Configuration("schema %q designates no id field", s.typeName)
	}
	s.decodable = make([]Field, 0, len(s.attributes)+len(s.relationships)+len(s.metaFields))
	s.decodable = append(s.decodable, s.attributes...)
	s.decodable = append(s.decodable, s.relationships...)
	s.decodable = append(s.decodable, s.metaFields...)
	return nil
}

// assignPointers gives every field its static source pointer within a
// resource object.
func (s *Schema) assignPointers() {
	s.id.state().sp = jsonpointer.Pointer("").Child("id")
	for _, f := range s.attributes {
		f.state().sp = jsonpointer.Pointer("").Child("attributes").Child(f.Name())
	}
	for _, f := range s.relationships {
		sp := jsonpointer.Pointer("").Child("relationships").Child(f.Name())
		f.state().sp = sp
		for _, l := range f.(relationshipField).relState().links {
			l.state().sp = sp.Child("links").Child(l.Name())
		}
	}
	for _, f := range s.links {
		f.state().sp = jsonpointer.Pointer("").Child("links").Child(f.Name())
	}
	for _, f := range s.metaFields {
		f.state().sp = jsonpointer.Pointer("").Child("meta").Child(f.Name())
	}
}

// Bind attaches the schema to its API. It is called by the API's
// AddSchema and must complete before the schema serves requests.
func (s *Schema) Bind(api API) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.api != nil {
		return apierror.Configuration("schema %q is already bound to an API", s.typeName)
	}
	s.api = api
	if s.defaultLogger && api.Logger() != nil {
		s.logger = api.Logger()
	}
	return nil
}

// API returns the bound API, or nil.
func (s *Schema) API() API {
	return s.api
}

// Type returns the resource type name used on the wire.
func (s *Schema) Type() string { return s.typeName }

// ResourceType returns the Go struct type backing the schema, or nil.
func (s *Schema) ResourceType() reflect.Type { return s.resourceType }

// Store returns the schema's store, or nil.
func (s *Schema) Store() Store { return s.store }

// Logger returns the schema's logger.
func (s *Schema) Logger() *zap.Logger { return s.logger }

// ID returns the designated id field.
func (s *Schema) ID() Field { return s.id }

// Field returns the field declared under key.
func (s *Schema) Field(key string) (Field, bool) {
	f, ok := s.byKey[key]
	return f, ok
}

// Fields returns all fields in declaration order.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Attributes returns the attribute fields in declaration order.
func (s *Schema) Attributes() []Field {
	return append([]Field(nil), s.attributes...)
}

// Relationships returns the relationship fields in declaration order.
func (s *Schema) Relationships() []Field {
	return append([]Field(nil), s.relationships...)
}

// Relationship returns the relationship with the given wire name.
func (s *Schema) Relationship(name string) (Field, bool) {
	f, ok := s.relsByName[name]
	return f, ok
}

// Matches reports whether resource is an instance of the schema's
// resource type.
func (s *Schema) Matches(resource any) bool {
	if s.resourceType == nil || resource == nil {
		return false
	}
	rt := reflect.TypeOf(resource)
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	return rt == s.resourceType
}

// IDOf returns the string form of resource's id.
func (s *Schema) IDOf(resource any) (string, error) {
	v, err := s.id.Get(s, resource)
	if err != nil {
		return "", err
	}
	return s.id.(idField).encodeIDString(v)
}

// Identifier returns resource's (type, id) pair.
func (s *Schema) Identifier(resource any) (Identifier, error) {
	id, err := s.IDOf(resource)
	if err != nil {
		return Identifier{}, err
	}
	return Identifier{Type: s.typeName, ID: id}, nil
}

// NewResource returns an empty resource for Create.
func (s *Schema) NewResource() (any, error) {
	if s.newResource == nil {
		return nil, apierror.Configuration(
			"schema %q has no resource constructor", s.typeName,
		)
	}
	return s.newResource(), nil
}

// resourceName names the resource type in configuration errors.
func (s *Schema) resourceName() string {
	if s.resourceType == nil {
		return "schema " + s.typeName
	}
	return s.resourceType.Name()
}

// sortedKeys returns m's keys in lexical order, for deterministic
// validation and error reporting.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
