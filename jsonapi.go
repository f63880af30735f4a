// Package jsonapi ties resource schemas together into one API: a
// registry of types, URL construction for every endpoint kind,
// identifier resolution and the include-path resolver for compound
// documents.
//
// An API is assembled once at startup and is read-only afterwards:
//
//	api := jsonapi.New("/api", jsonapi.WithLogger(logger))
//	if err := api.AddSchema(articles); err != nil {
//		...
//	}
//
// The subpackages build on it: web serves an API over HTTP, memstore
// backs schemas with an in-memory store, and pagination implements the
// schema.Pager strategies.
package jsonapi

import (
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/grantwwu/jsonapi/apierror"
	"github.com/grantwwu/jsonapi/schema"
)

// Identifier is the (type, id) pair naming a resource. It is an alias
// for schema.Identifier so both packages speak the same currency.
type Identifier = schema.Identifier

// Option configures an API.
type Option func(*API)

// WithLogger sets the API's logger. Schemas without their own logger
// inherit it when they are added.
func WithLogger(logger *zap.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithDebug toggles debug behavior: error responses carry details for
// unexpected failures instead of a generic message.
func WithDebug(debug bool) Option {
	return func(a *API) { a.debug = debug }
}

// WithMeta adds a member to the top-level meta object of every
// document the API renders.
func WithMeta(key string, value any) Option {
	return func(a *API) {
		if a.meta == nil {
			a.meta = make(map[string]any)
		}
		a.meta[key] = value
	}
}

// WithVersion overrides the version advertised in the top-level
// jsonapi object. The default is "1.0".
func WithVersion(version string) Option {
	return func(a *API) { a.version = version }
}

// API is the registry of resource schemas sharing one base URL. All
// schemas are added at startup; afterwards an API is safe for
// concurrent use.
type API struct {
	base    string
	logger  *zap.Logger
	debug   bool
	meta    map[string]any
	version string

	mu       sync.RWMutex
	byType   map[string]*schema.Schema
	byGoType map[reflect.Type]*schema.Schema
}

// New returns an API rooted at base, which may be a path ("/api") or
// an absolute URL ("https://example.org/api").
func New(base string, opts ...Option) *API {
	a := &API{
		base:     strings.TrimRight(base, "/"),
		logger:   zap.NewNop(),
		version:  "1.0",
		byType:   make(map[string]*schema.Schema),
		byGoType: make(map[reflect.Type]*schema.Schema),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AddSchema registers s and binds it to the API. Duplicate type names
// and double binds are configuration errors.
func (a *API) AddSchema(s *schema.Schema) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, dup := a.byType[s.Type()]; dup {
		return apierror.Configuration("type %q is already registered", s.Type())
	}
	if err := s.Bind(a); err != nil {
		return err
	}
	a.byType[s.Type()] = s
	if rt := s.ResourceType(); rt != nil {
		a.byGoType[rt] = s
	}
	a.logger.Debug("registered resource type",
		zap.String("type", s.Type()),
	)
	return nil
}

// MustAddSchema is AddSchema for startup wiring, panicking on error.
func (a *API) MustAddSchema(schemas ...*schema.Schema) {
	for _, s := range schemas {
		if err := a.AddSchema(s); err != nil {
			panic(err)
		}
	}
}

// SchemaByType returns the schema registered under the given type
// name. It implements part of the schema.API contract.
func (a *API) SchemaByType(typeName string) (*schema.Schema, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.byType[typeName]
	return s, ok
}

// Schema looks a schema up by type name, by reflect.Type, or by a
// live resource of the registered struct type.
func (a *API) Schema(o any) (*schema.Schema, bool) {
	switch v := o.(type) {
	case string:
		return a.SchemaByType(v)
	case reflect.Type:
		return a.schemaByGoType(v)
	case *schema.Schema:
		return v, true
	default:
		return a.schemaByGoType(reflect.TypeOf(o))
	}
}

// MustSchema is Schema, panicking when the lookup fails.
func (a *API) MustSchema(o any) *schema.Schema {
	s, ok := a.Schema(o)
	if !ok {
		panic(apierror.Configuration("no schema registered for %v", o))
	}
	return s
}

func (a *API) schemaByGoType(rt reflect.Type) (*schema.Schema, bool) {
	if rt == nil {
		return nil, false
	}
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.byGoType[rt]
	return s, ok
}

// schemaOf resolves the schema of a live resource, as an error rather
// than a bool for callers on the request path.
func (a *API) schemaOf(resource any) (*schema.Schema, error) {
	s, ok := a.Schema(resource)
	if !ok {
		return nil, apierror.Configuration("no schema registered for %T", resource)
	}
	return s, nil
}

// Schemas returns the registered schemas ordered by type name.
func (a *API) Schemas() []*schema.Schema {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*schema.Schema, 0, len(a.byType))
	for _, s := range a.byType {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type() < out[j].Type() })
	return out
}

// Types returns the registered type names in lexical order.
func (a *API) Types() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.byType))
	for t := range a.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Logger returns the API's logger.
func (a *API) Logger() *zap.Logger { return a.logger }

// Debug reports whether debug behavior is enabled.
func (a *API) Debug() bool { return a.debug }

// Version returns the advertised JSON:API version.
func (a *API) Version() string { return a.version }

// Meta returns a copy of the document-level meta defaults.
func (a *API) Meta() map[string]any {
	if len(a.meta) == 0 {
		return nil
	}
	out := make(map[string]any, len(a.meta))
	for k, v := range a.meta {
		out[k] = v
	}
	return out
}

// BaseURL returns the URL prefix shared by all resources.
func (a *API) BaseURL() string { return a.base }

// CollectionURL returns the URL of a type's collection.
func (a *API) CollectionURL(typeName string) string {
	return a.base + "/" + typeName
}

// ResourceURL returns the URL of a single resource.
func (a *API) ResourceURL(typeName, id string) string {
	return a.base + "/" + typeName + "/" + id
}

// RelationshipURL returns the URL of a relationship endpoint.
func (a *API) RelationshipURL(typeName, id, relname string) string {
	return a.base + "/" + typeName + "/" + id + "/relationships/" + relname
}

// RelatedURL returns the URL of a related-resources endpoint.
func (a *API) RelatedURL(typeName, id, relname string) string {
	return a.base + "/" + typeName + "/" + id + "/" + relname
}

// EnsureIdentifier derives the Identifier of o. It accepts an
// Identifier, a [2]string or []string of length two ({type, id}), an
// identifier object map, or a resource of a registered type; every
// form of the same logical resource yields the same Identifier.
func (a *API) EnsureIdentifier(o any) (Identifier, error) {
	switch v := o.(type) {
	case Identifier:
		return v, nil
	case *Identifier:
		if v == nil {
			return Identifier{}, apierror.Configuration("cannot derive an identifier from a nil *Identifier")
		}
		return *v, nil
	case [2]string:
		return Identifier{Type: v[0], ID: v[1]}, nil
	case []string:
		if len(v) != 2 {
			return Identifier{}, apierror.Configuration("cannot derive an identifier from a %d-element slice", len(v))
		}
		return Identifier{Type: v[0], ID: v[1]}, nil
	case map[string]any:
		t, tok := v["type"].(string)
		id, iok := v["id"].(string)
		if !tok || !iok {
			return Identifier{}, apierror.Configuration("cannot derive an identifier from a map without string 'type' and 'id' members")
		}
		return Identifier{Type: t, ID: id}, nil
	case map[string]string:
		t, tok := v["type"]
		id, iok := v["id"]
		if !tok || !iok {
			return Identifier{}, apierror.Configuration("cannot derive an identifier from a map without 'type' and 'id' members")
		}
		return Identifier{Type: t, ID: id}, nil
	}
	s, err := a.schemaOf(o)
	if err != nil {
		return Identifier{}, err
	}
	return s.Identifier(o)
}

// EnsureIdentifierObject derives the identifier of o in its wire map
// form.
func (a *API) EnsureIdentifierObject(o any) (map[string]any, error) {
	id, err := a.EnsureIdentifier(o)
	if err != nil {
		return nil, err
	}
	return id.Object(), nil
}
