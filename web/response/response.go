// Package response renders JSON:API documents and error documents
// over HTTP. Writers marshal before touching the ResponseWriter, so a
// marshal failure never leaves a half-written body behind.
package response

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/grantwwu/jsonapi/apierror"
)

// MediaType is the official JSON:API media type.
const MediaType = "application/vnd.api+json"

// internalErrorBody is the fallback payload for marshal failures.
const internalErrorBody = `{"errors":[{"status":"500","code":"internal_error","title":"Internal server error"}]}`

// ValidateContentType checks that the request body is declared as
// JSON:API. The media type must match exactly and must not carry any
// media type parameters.
func ValidateContentType(r *http.Request) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return apierror.UnsupportedMediaType("Use the 'application/vnd.api+json' content type.")
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != MediaType {
		return apierror.UnsupportedMediaType("Use the 'application/vnd.api+json' content type.")
	}
	if len(params) > 0 {
		return apierror.UnsupportedMediaType("The 'application/vnd.api+json' content type must not carry media type parameters.")
	}
	return nil
}

// Negotiate checks the Accept header. Requests fail only when they
// mention the JSON:API media type and every mention carries media type
// parameters. A missing Accept header, wildcards and foreign media
// types all pass.
func Negotiate(r *http.Request) error {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return nil
	}
	mentioned := false
	for _, part := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil || mediaType != MediaType {
			continue
		}
		mentioned = true
		delete(params, "q")
		if len(params) == 0 {
			return nil
		}
	}
	if mentioned {
		return apierror.NotAcceptable("The 'application/vnd.api+json' media type must be accepted without media type parameters.")
	}
	return nil
}

// Document is a top-level JSON:API document. Data and Errors are
// mutually exclusive; HasData distinguishes "no primary data" from
// "primary data is null".
type Document struct {
	Data     any
	HasData  bool
	Errors   apierror.ErrorList
	Included []any
	Meta     map[string]any
	Links    map[string]any
	JSONAPI  map[string]any
}

// SetData installs v as the primary data, which may be nil for an
// empty to-one relationship.
func (d *Document) SetData(v any) {
	d.Data = v
	d.HasData = true
}

// SetLink adds a top-level link.
func (d *Document) SetLink(name string, value any) {
	if d.Links == nil {
		d.Links = make(map[string]any)
	}
	d.Links[name] = value
}

// MergeLinks adds every link in links, overriding existing names.
func (d *Document) MergeLinks(links map[string]any) {
	for name, value := range links {
		d.SetLink(name, value)
	}
}

// SetMeta adds a top-level meta member.
func (d *Document) SetMeta(name string, value any) {
	if d.Meta == nil {
		d.Meta = make(map[string]any)
	}
	d.Meta[name] = value
}

// MergeMeta adds every meta member in meta, overriding existing names.
func (d *Document) MergeMeta(meta map[string]any) {
	for name, value := range meta {
		d.SetMeta(name, value)
	}
}

// validate enforces the top-level member rules.
func (d *Document) validate() error {
	if d.HasData && len(d.Errors) > 0 {
		return apierror.Configuration("a document cannot carry both data and errors")
	}
	if !d.HasData && len(d.Included) > 0 {
		return apierror.Configuration("a document without primary data cannot carry included resources")
	}
	return nil
}

// MarshalJSON encodes the document with only its populated members.
func (d *Document) MarshalJSON() ([]byte, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	obj := make(map[string]any, 6)
	if d.HasData {
		obj["data"] = d.Data
	}
	if len(d.Errors) > 0 {
		obj["errors"] = d.Errors
	}
	if len(d.Included) > 0 {
		obj["included"] = d.Included
	}
	if len(d.Meta) > 0 {
		obj["meta"] = d.Meta
	}
	if len(d.Links) > 0 {
		obj["links"] = d.Links
	}
	if len(d.JSONAPI) > 0 {
		obj["jsonapi"] = d.JSONAPI
	}
	return json.Marshal(obj)
}

// WriteDocument marshals doc and writes it with the given status. The
// document is marshaled before any byte reaches the wire; if that
// fails the client receives a minimal internal error document instead.
func WriteDocument(w http.ResponseWriter, status int, doc *Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		w.Header().Set("Content-Type", MediaType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, internalErrorBody)
		return err
	}
	w.Header().Set("Content-Type", MediaType)
	w.WriteHeader(status)
	_, err = w.Write(payload)
	return err
}

// WriteError renders err as a JSON:API errors document. Taxonomy
// errors keep their status and detail; anything else becomes an opaque
// internal error whose detail is withheld unless debug is set. Server
// errors are logged at error level, client errors at debug level.
func WriteError(w http.ResponseWriter, logger *zap.Logger, err error, debug bool) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	list := errorList(err, debug)
	status := list.Status()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	return WriteDocument(w, status, &Document{Errors: list})
}

// errorList normalizes err into an ErrorList.
func errorList(err error, debug bool) apierror.ErrorList {
	var list apierror.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return list
	}
	var e *apierror.Error
	if errors.As(err, &e) {
		return apierror.ErrorList{e}
	}
	detail := "An unexpected error occurred."
	if debug && err != nil {
		detail = err.Error()
	}
	return apierror.ErrorList{apierror.Internal(detail)}
}
