package schema

import (
	"context"

	"go.uber.org/zap"
)

// Query carries the request parameters that shape a fetch: filters,
// sort order, sparse fieldsets, inclusion paths and pagination. A nil
// *Query is always valid and means "everything, unsorted, first page
// of nothing".
type Query struct {
	// Filters maps filter names to their raw values, as parsed from
	// filter[name]=value parameters.
	Filters map[string]string

	// Sort lists the requested sort fields in priority order.
	Sort []SortField

	// Fields maps a resource type to the field names requested for it,
	// as parsed from fields[type] parameters. A type that is absent
	// from the map is encoded in full; a type mapped to an empty slice
	// is encoded with no fields at all.
	Fields map[string][]string

	// Include lists the requested inclusion paths, each path a slice
	// of relationship names.
	Include [][]string

	// Page bounds the collection, if pagination was requested.
	Page Pager
}

// Fieldset returns the requested field names for typeName and whether
// a sparse fieldset was requested for it at all.
func (q *Query) Fieldset(typeName string) ([]string, bool) {
	if q == nil || q.Fields == nil {
		return nil, false
	}
	names, ok := q.Fields[typeName]
	return names, ok
}

// SortField is one component of a sort order.
type SortField struct {
	// Name is the field's wire name.
	Name string
	// Desc sorts in descending order, from a "-" prefix on the wire.
	Desc bool
}

// Pager bounds a collection to one page and describes that page in
// links and meta. Implementations live in the pagination package; the
// schema core only renders what they report.
type Pager interface {
	// Links returns the pagination links (first, last, prev, next,
	// self) for the current page. Values are URL strings or null.
	Links() map[string]any

	// Meta returns pagination counters for the document meta object.
	Meta() map[string]any
}

// Window is implemented by pagers that bound a collection to a
// contiguous window. Stores use it to slice a filtered collection.
type Window interface {
	// Window returns the zero-based offset and the maximum number of
	// resources of the current page. A limit < 0 means unbounded.
	Window() (offset, limit int)
}

// Totaler is implemented by pagers that can use the total collection
// size, for "last" links and count meta. Stores should call SetTotal
// with the filtered collection size before the pager is rendered.
type Totaler interface {
	SetTotal(n int)
}

// Store loads resources on behalf of a schema. All methods receive the
// owning schema, so one store instance can serve several types. A
// store must return resources of the schema's resource type and signal
// missing resources with a NotFound error.
type Store interface {
	// Resource returns the resource with the given id.
	Resource(ctx context.Context, s *Schema, id string, q *Query) (any, error)

	// Collection returns the resources selected by q, filtered, sorted
	// and paginated.
	Collection(ctx context.Context, s *Schema, q *Query) ([]any, error)

	// Relatives returns the resources related to resource through the
	// named relationship.
	Relatives(ctx context.Context, s *Schema, resource any, relname string, q *Query) ([]any, error)
}

// Saver is an optional Store capability for persisting a created or
// modified resource. The web layer saves through it after a create and
// after successful mutations; stores without it reject creation.
type Saver interface {
	Save(ctx context.Context, s *Schema, resource any) error
}

// API is the contract a schema needs from the registry it is bound to:
// URL construction for links and identifier resolution for
// relationship linkage. The root jsonapi.API satisfies it.
type API interface {
	// BaseURL returns the URL prefix shared by all resources.
	BaseURL() string

	// CollectionURL returns the URL of a type's collection.
	CollectionURL(typeName string) string

	// ResourceURL returns the URL of a single resource.
	ResourceURL(typeName, id string) string

	// RelationshipURL returns the URL of a relationship endpoint.
	RelationshipURL(typeName, id, relname string) string

	// RelatedURL returns the URL of a related-resources endpoint.
	RelatedURL(typeName, id, relname string) string

	// SchemaByType returns the schema registered for typeName.
	SchemaByType(typeName string) (*Schema, bool)

	// EnsureIdentifier derives the Identifier of o, which may be an
	// Identifier, an identifier object or a registered resource.
	EnsureIdentifier(o any) (Identifier, error)

	// Logger returns the registry's logger.
	Logger() *zap.Logger
}
