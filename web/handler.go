// Package web mounts the JSON:API HTTP endpoints of an API onto a chi
// router: collection, resource, relationship and related endpoints for
// every registered schema, with content negotiation, body limits and
// JSON:API error documents throughout.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/grantwwu/jsonapi"
	"github.com/grantwwu/jsonapi/apierror"
	"github.com/grantwwu/jsonapi/pagination"
	"github.com/grantwwu/jsonapi/schema"
	"github.com/grantwwu/jsonapi/web/query"
	"github.com/grantwwu/jsonapi/web/response"
)

// DefaultMaxBodyBytes bounds request bodies when Config.MaxBodyBytes
// is zero.
const DefaultMaxBodyBytes = 10 << 20 // 10MB

// Config adjusts the mounted handler.
type Config struct {
	// Pagination builds a pager per request for collection and to-many
	// relationship endpoints. Leave nil to disable pagination.
	Pagination pagination.Factory

	// MaxBodyBytes bounds request bodies. Defaults to
	// DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// Logger overrides the API's logger for request logging.
	Logger *zap.Logger
}

// Handler mounts the JSON:API endpoints of every type registered on
// api and returns the router. The endpoints live under the path of the
// API's base URL:
//
//	GET, POST                {base}/{type}
//	GET, PATCH, DELETE       {base}/{type}/{id}
//	GET, PATCH, POST, DELETE {base}/{type}/{id}/relationships/{rel}
//	GET                      {base}/{type}/{id}/{rel}
func Handler(api *jsonapi.API, cfg Config) http.Handler {
	h := &handler{
		api:     api,
		pf:      cfg.Pagination,
		maxBody: cfg.MaxBodyBytes,
		logger:  cfg.Logger,
		debug:   api.Debug(),
		base:    basePath(api.BaseURL()),
	}
	if h.maxBody <= 0 {
		h.maxBody = DefaultMaxBodyBytes
	}
	if h.logger == nil {
		h.logger = api.Logger()
	}

	r := chi.NewRouter()
	r.Use(h.recoverer)
	r.NotFound(h.notFound)
	r.MethodNotAllowed(h.methodNotAllowed)

	r.Get(h.base+"/{type}", h.collectionGet)
	r.Post(h.base+"/{type}", h.collectionPost)
	r.Get(h.base+"/{type}/{id}", h.resourceGet)
	r.Patch(h.base+"/{type}/{id}", h.resourcePatch)
	r.Delete(h.base+"/{type}/{id}", h.resourceDelete)
	r.Get(h.base+"/{type}/{id}/relationships/{rel}", h.relationshipGet)
	r.Patch(h.base+"/{type}/{id}/relationships/{rel}", h.relationshipPatch)
	r.Post(h.base+"/{type}/{id}/relationships/{rel}", h.relationshipPost)
	r.Delete(h.base+"/{type}/{id}/relationships/{rel}", h.relationshipDelete)
	r.Get(h.base+"/{type}/{id}/{rel}", h.relatedGet)

	return r
}

// basePath extracts the mount path from a base URL. "http://x/api" and
// "/api" both map to "/api"; a bare origin maps to "".
func basePath(base string) string {
	path := base
	if u, err := url.Parse(base); err == nil {
		path = u.Path
	}
	path = strings.TrimSuffix(path, "/")
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

type handler struct {
	api     *jsonapi.API
	pf      pagination.Factory
	maxBody int64
	logger  *zap.Logger
	debug   bool
	base    string
}

// fail renders err as a JSON:API errors document.
func (h *handler) fail(w http.ResponseWriter, err error) {
	_ = response.WriteError(w, h.logger, err, h.debug)
}

// recoverer converts panics into opaque internal error documents, in
// the recovery middleware style with a logged stack trace.
func (h *handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)
				h.fail(w, apierror.Internal("An unexpected error occurred."))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.fail(w, apierror.NotFound("The requested endpoint does not exist."))
}

func (h *handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	if allow := h.allowedMethods(r.URL.Path); len(allow) > 0 {
		w.Header().Set("Allow", strings.Join(allow, ", "))
	}
	h.fail(w, apierror.MethodNotAllowed("The '"+r.Method+"' method is not supported by this endpoint."))
}

// allowedMethods reports the methods an endpoint path supports, for
// the Allow header of 405 responses.
func (h *handler) allowedMethods(path string) []string {
	rel := strings.Trim(strings.TrimPrefix(path, h.base), "/")
	if rel == "" {
		return nil
	}
	segments := strings.Split(rel, "/")
	switch {
	case len(segments) == 1:
		return []string{http.MethodGet, http.MethodPost}
	case len(segments) == 2:
		return []string{http.MethodGet, http.MethodPatch, http.MethodDelete}
	case len(segments) == 3:
		return []string{http.MethodGet}
	case len(segments) == 4 && segments[2] == "relationships":
		return []string{http.MethodGet, http.MethodPatch, http.MethodPost, http.MethodDelete}
	}
	return nil
}

// schemaFor resolves the {type} URL parameter to a registered schema.
func (h *handler) schemaFor(r *http.Request) (*schema.Schema, error) {
	typeName := chi.URLParam(r, "type")
	s, ok := h.api.SchemaByType(typeName)
	if !ok {
		return nil, apierror.NotFound("The type '" + typeName + "' is not registered.")
	}
	return s, nil
}

// readBody parses the request body into a JSON object, enforcing the
// JSON:API content type and the body size limit.
func (h *handler) readBody(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	if err := response.ValidateContentType(r); err != nil {
		return nil, err
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	var body any
	if err := decoder.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apierror.RequestTooLarge(fmt.Sprintf("The request body must not exceed %d bytes.", tooLarge.Limit))
		}
		if errors.Is(err, io.EOF) {
			return nil, apierror.InvalidType("The request body must be a JSON:API document.", "")
		}
		return nil, apierror.InvalidType("The request body is not valid JSON.", "")
	}
	if decoder.More() {
		return nil, apierror.InvalidType("The request body must contain a single JSON:API document.", "")
	}
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, apierror.InvalidType("Must be an object.", "")
	}
	return obj, nil
}

// dataMember extracts the required top-level data member.
func dataMember(doc map[string]any) (any, error) {
	data, ok := doc["data"]
	if !ok {
		return nil, apierror.InvalidValue("The 'data' member is required.", "")
	}
	return data, nil
}

// saver returns the schema's store as a Saver, if it is one.
func saver(s *schema.Schema) (schema.Saver, bool) {
	sv, ok := s.Store().(schema.Saver)
	return sv, ok
}

// newDocument seeds a document with the API's jsonapi object and
// document meta.
func (h *handler) newDocument() *response.Document {
	doc := &response.Document{}
	if v := h.api.Version(); v != "" {
		doc.JSONAPI = map[string]any{"version": v}
	}
	doc.MergeMeta(h.api.Meta())
	return doc
}

// appendIncluded resolves the query's inclusion paths from the primary
// resources and appends every included resource that is not already
// primary data, encoded under the same sparse fieldsets.
func (h *handler) appendIncluded(ctx context.Context, doc *response.Document, primaries []any, q *schema.Query, primary map[jsonapi.Identifier]struct{}) error {
	if q == nil || len(q.Include) == 0 || len(primaries) == 0 {
		return nil
	}
	inc, err := h.api.Include(ctx, primaries, q.Include)
	if err != nil {
		return err
	}
	for _, res := range inc.Resources() {
		rs, ok := h.api.Schema(res)
		if !ok {
			return apierror.Configuration("no schema registered for %T", res)
		}
		id, err := rs.Identifier(res)
		if err != nil {
			return err
		}
		if _, dup := primary[id]; dup {
			continue
		}
		obj, err := rs.EncodeResource(res, q)
		if err != nil {
			return err
		}
		doc.Included = append(doc.Included, obj)
	}
	return nil
}

// collectionDocument assembles a compound document around a collection
// of resources of one type.
func (h *handler) collectionDocument(r *http.Request, s *schema.Schema, resources []any, q *schema.Query) (*response.Document, error) {
	doc := h.newDocument()
	data := make([]any, 0, len(resources))
	primary := make(map[jsonapi.Identifier]struct{}, len(resources))
	for _, res := range resources {
		obj, err := s.EncodeResource(res, q)
		if err != nil {
			return nil, err
		}
		id, err := s.Identifier(res)
		if err != nil {
			return nil, err
		}
		data = append(data, obj)
		primary[id] = struct{}{}
	}
	doc.SetData(data)
	doc.SetLink("self", r.URL.RequestURI())
	if q != nil && q.Page != nil {
		doc.MergeLinks(q.Page.Links())
		doc.MergeMeta(q.Page.Meta())
	}
	if err := h.appendIncluded(r.Context(), doc, resources, q, primary); err != nil {
		return nil, err
	}
	return doc, nil
}

// resourceDocument assembles a compound document around one resource.
func (h *handler) resourceDocument(r *http.Request, s *schema.Schema, resource any, q *schema.Query) (*response.Document, error) {
	doc := h.newDocument()
	obj, err := s.EncodeResource(resource, q)
	if err != nil {
		return nil, err
	}
	id, err := s.Identifier(resource)
	if err != nil {
		return nil, err
	}
	doc.SetData(obj)
	doc.SetLink("self", h.api.ResourceURL(id.Type, id.ID))
	primary := map[jsonapi.Identifier]struct{}{id: {}}
	if err := h.appendIncluded(r.Context(), doc, []any{resource}, q, primary); err != nil {
		return nil, err
	}
	return doc, nil
}

// collectionGet handles GET {base}/{type}.
func (h *handler) collectionGet(w http.ResponseWriter, r *http.Request) {
	s, err := h.schemaFor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := response.Negotiate(r); err != nil {
		h.fail(w, err)
		return
	}
	q, err := query.Parse(r, h.pf)
	if err != nil {
		h.fail(w, err)
		return
	}
	resources, err := s.LoadCollection(r.Context(), q)
	if err != nil {
		h.fail(w, err)
		return
	}
	doc, err := h.collectionDocument(r, s, resources, q)
	if err != nil {
		h.fail(w, err)
		return
	}
	_ = response.WriteDocument(w, http.StatusOK, doc)
}

// collectionPost handles POST {base}/{type}: resource creation.
func (h *handler) collectionPost(w http.ResponseWriter, r *http.Request) {
	s, err := h.schemaFor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := response.Negotiate(r); err != nil {
		h.fail(w, err)
		return
	}
	sv, ok := saver(s)
	if !ok {
		h.fail(w, apierror.NotImplemented("Creating '"+s.Type()+"' resources is not supported."))
		return
	}
	body, err := h.readBody(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}
	data, err := dataMember(body)
	if err != nil {
		h.fail(w, err)
		return
	}
	resource, err := s.Create(r.Context(), data, "/data")
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := sv.Save(r.Context(), s, resource); err != nil {
		h.fail(w, err)
		return
	}
	doc, err := h.resourceDocument(r, s, resource, nil)
	if err != nil {
		h.fail(w, err)
		return
	}
	id, err := s.IDOf(resource)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Location", h.api.ResourceURL(s.Type(), id))
	_ = response.WriteDocument(w, http.StatusCreated, doc)
}

// loadResource resolves {type} and {id} to a stored resource.
func (h *handler) loadResource(r *http.Request) (*schema.Schema, any, error) {
	s, err := h.schemaFor(r)
	if err != nil {
		return nil, nil, err
	}
	resource, err := s.Load(r.Context(), chi.URLParam(r, "id"), nil)
	if err != nil {
		return nil, nil, err
	}
	return s, resource, nil
}

// resourceGet handles GET {base}/{type}/{id}.
func (h *handler) resourceGet(w http.ResponseWriter, r *http.Request) {
	if err := response.Negotiate(r); err != nil {
		h.fail(w, err)
		return
	}
	q, err := query.Parse(r, nil)
	if err != nil {
		h.fail(w, err)
		return
	}
	s, resource, err := h.loadResource(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	doc, err := h.resourceDocument(r, s, resource, q)
	if err != nil {
		h.fail(w, err)
		return
	}
	_ = response.WriteDocument(w, http.StatusOK, doc)
}

// resourcePatch handles PATCH {base}/{type}/{id}: resource update.
func (h *handler) resourcePatch(w http.ResponseWriter, r *http.Request) {
	if err := response.Negotiate(r); err != nil {
		h.fail(w, err)
		return
	}
	s, resource, err := h.loadResource(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	body, err := h.readBody(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}
	data, err := dataMember(body)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := s.Update(r.Context(), resource, data, "/data"); err != nil {
		h.fail(w, err)
		return
	}
	if sv, ok := saver(s); ok {
		if err := sv.Save(r.Context(), s, resource); err != nil {
			h.fail(w, err)
			return
		}
	}
	doc, err := h.resourceDocument(r, s, resource, nil)
	if err != nil {
		h.fail(w, err)
		return
	}
	_ = response.WriteDocument(w, http.StatusOK, doc)
}

// resourceDelete handles DELETE {base}/{type}/{id}.
func (h *handler) resourceDelete(w http.ResponseWriter, r *http.Request) {
	if err := response.Negotiate(r); err != nil {
		h.fail(w, err)
		return
	}
	s, err := h.schemaFor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := s.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// relationshipDocument renders a relationship object as a top-level
// document.
func (h *handler) relationshipDocument(s *schema.Schema, resource any, relname string, pager schema.Pager) (*response.Document, error) {
	obj, err := s.EncodeRelationship(resource, relname, pager)
	if err != nil {
		return nil, err
	}
	doc := h.newDocument()
	if data, ok := obj["data"]; ok {
		doc.SetData(data)
	}
	if links, ok := obj["links"].(map[string]any); ok {
		doc.MergeLinks(links)
	}
	if meta, ok := obj["meta"].(map[string]any); ok {
		doc.MergeMeta(meta)
	}
	return doc, nil
}

// relationshipPager builds a pager for to-many relationship
// endpoints. To-one relationships are never paginated.
func (h *handler) relationshipPager(r *http.Request, s *schema.Schema, relname string) (schema.Pager, error) {
	if h.pf == nil {
		return nil, nil
	}
	f, ok := s.Relationship(relname)
	if !ok {
		return nil, apierror.NotFound("The type '" + s.Type() + "' has no relationship '" + relname + "'.")
	}
	if _, many := f.(*schema.ToMany); !many {
		return nil, nil
	}
	return h.pf(r)
}

// relationshipGet handles GET {base}/{type}/{id}/relationships/{rel}.
func (h *handler) relationshipGet(w http.ResponseWriter, r *http.Request) {
	if err := response.Negotiate(r); err != nil {
		h.fail(w, err)
		return
	}
	s, resource, err := h.loadResource(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	relname := chi.URLParam(r, "rel")
	pager, err := h.relationshipPager(r, s, relname)
	if err != nil {
		h.fail(w, err)
		return
	}
	doc, err := h.relationshipDocument(s, resource, relname, pager)
	if err != nil {
		h.fail(w, err)
		return
	}
	_ = response.WriteDocument(w, http.StatusOK, doc)
}

// mutateRelationship runs one relationship mutation and renders the
// updated relationship document.
func (h *handler) mutateRelationship(w http.ResponseWriter, r *http.Request, mutate func(ctx context.Context, s *schema.Schema, resource any, relname string, body map[string]any) error) {
	if err := response.Negotiate(r); err != nil {
		h.fail(w, err)
		return
	}
	s, resource, err := h.loadResource(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	body, err := h.readBody(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}
	relname := chi.URLParam(r, "rel")
	if err := mutate(r.Context(), s, resource, relname, body); err != nil {
		h.fail(w, err)
		return
	}
	if sv, ok := saver(s); ok {
		if err := sv.Save(r.Context(), s, resource); err != nil {
			h.fail(w, err)
			return
		}
	}
	doc, err := h.relationshipDocument(s, resource, relname, nil)
	if err != nil {
		h.fail(w, err)
		return
	}
	_ = response.WriteDocument(w, http.StatusOK, doc)
}

// relationshipPatch handles PATCH .../relationships/{rel}: full
// replacement.
func (h *handler) relationshipPatch(w http.ResponseWriter, r *http.Request) {
	h.mutateRelationship(w, r, func(ctx context.Context, s *schema.Schema, resource any, relname string, body map[string]any) error {
		return s.UpdateRelationship(ctx, resource, relname, body, "")
	})
}

// relationshipPost handles POST .../relationships/{rel}: adding
// members to a to-many relationship.
func (h *handler) relationshipPost(w http.ResponseWriter, r *http.Request) {
	h.mutateRelationship(w, r, func(ctx context.Context, s *schema.Schema, resource any, relname string, body map[string]any) error {
		return s.AddRelationship(ctx, resource, relname, body, "")
	})
}

// relationshipDelete handles DELETE .../relationships/{rel}: removing
// members from a to-many relationship.
func (h *handler) relationshipDelete(w http.ResponseWriter, r *http.Request) {
	h.mutateRelationship(w, r, func(ctx context.Context, s *schema.Schema, resource any, relname string, body map[string]any) error {
		return s.RemoveRelationship(ctx, resource, relname, body, "")
	})
}

// relatedGet handles GET {base}/{type}/{id}/{rel}: the related
// resource or collection itself.
func (h *handler) relatedGet(w http.ResponseWriter, r *http.Request) {
	if err := response.Negotiate(r); err != nil {
		h.fail(w, err)
		return
	}
	s, resource, err := h.loadResource(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	relname := chi.URLParam(r, "rel")
	f, ok := s.Relationship(relname)
	if !ok {
		h.fail(w, apierror.NotFound("The type '"+s.Type()+"' has no relationship '"+relname+"'."))
		return
	}

	if _, many := f.(*schema.ToMany); many {
		q, err := query.Parse(r, h.pf)
		if err != nil {
			h.fail(w, err)
			return
		}
		relatives, err := s.LoadRelatives(r.Context(), resource, relname, q)
		if err != nil {
			h.fail(w, err)
			return
		}
		doc, err := h.relatedCollectionDocument(r, relatives, q)
		if err != nil {
			h.fail(w, err)
			return
		}
		_ = response.WriteDocument(w, http.StatusOK, doc)
		return
	}

	q, err := query.Parse(r, nil)
	if err != nil {
		h.fail(w, err)
		return
	}
	relatives, err := s.Include(r.Context(), resource, relname)
	if err != nil {
		h.fail(w, err)
		return
	}
	doc := h.newDocument()
	doc.SetData(nil)
	doc.SetLink("self", r.URL.RequestURI())
	if len(relatives) > 0 {
		rs, ok := h.api.Schema(relatives[0])
		if !ok {
			h.fail(w, apierror.Configuration("no schema registered for %T", relatives[0]))
			return
		}
		obj, err := rs.EncodeResource(relatives[0], q)
		if err != nil {
			h.fail(w, err)
			return
		}
		doc.SetData(obj)
		id, err := rs.Identifier(relatives[0])
		if err != nil {
			h.fail(w, err)
			return
		}
		primary := map[jsonapi.Identifier]struct{}{id: {}}
		if err := h.appendIncluded(r.Context(), doc, relatives[:1], q, primary); err != nil {
			h.fail(w, err)
			return
		}
	}
	_ = response.WriteDocument(w, http.StatusOK, doc)
}

// relatedCollectionDocument assembles the document of a to-many
// related endpoint, whose members may span several types.
func (h *handler) relatedCollectionDocument(r *http.Request, relatives []any, q *schema.Query) (*response.Document, error) {
	doc := h.newDocument()
	data := make([]any, 0, len(relatives))
	primary := make(map[jsonapi.Identifier]struct{}, len(relatives))
	for _, res := range relatives {
		rs, ok := h.api.Schema(res)
		if !ok {
			return nil, apierror.Configuration("no schema registered for %T", res)
		}
		obj, err := rs.EncodeResource(res, q)
		if err != nil {
			return nil, err
		}
		id, err := rs.Identifier(res)
		if err != nil {
			return nil, err
		}
		data = append(data, obj)
		primary[id] = struct{}{}
	}
	doc.SetData(data)
	doc.SetLink("self", r.URL.RequestURI())
	if q != nil && q.Page != nil {
		doc.MergeLinks(q.Page.Links())
		doc.MergeMeta(q.Page.Meta())
	}
	if err := h.appendIncluded(r.Context(), doc, relatives, q, primary); err != nil {
		return nil, err
	}
	return doc, nil
}
