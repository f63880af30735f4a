package schema

import (
	"github.com/grantwwu/jsonapi/apierror"
)

// EncodeResource renders resource as a JSON:API resource object. The
// query's sparse fieldset for the schema's type, if any, restricts the
// encoded attributes and relationships; id, links and meta are always
// encoded. A self link is added when the schema is bound to an API and
// no link field claims the name.
func (s *Schema) EncodeResource(resource any, q *Query) (map[string]any, error) {
	if resource == nil {
		return nil, apierror.Configuration("schema %q: cannot encode a nil resource", s.typeName)
	}
	id, err := s.IDOf(resource)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"type": s.typeName,
		"id":   id,
	}

	fieldset, restricted := q.Fieldset(s.typeName)
	allowed := func(name string) bool { return true }
	if restricted {
		names := make(map[string]struct{}, len(fieldset))
		for _, n := range fieldset {
			names[n] = struct{}{}
		}
		allowed = func(name string) bool {
			_, ok := names[name]
			return ok
		}
	}

	attrs := make(map[string]any)
	for _, f := range s.attributes {
		if !allowed(f.Name()) {
			continue
		}
		v, err := f.Get(s, resource)
		if err != nil {
			return nil, err
		}
		ev, err := f.Encode(s, v)
		if err != nil {
			return nil, err
		}
		attrs[f.Name()] = ev
	}
	if len(attrs) > 0 {
		out["attributes"] = attrs
	}

	rels := make(map[string]any)
	for _, f := range s.relationships {
		if !allowed(f.Name()) {
			continue
		}
		obj, err := f.(relationshipField).encodeObject(s, resource, nil)
		if err != nil {
			return nil, err
		}
		rels[f.Name()] = obj
	}
	if len(rels) > 0 {
		out["relationships"] = rels
	}

	meta := make(map[string]any)
	for _, f := range s.metaFields {
		v, err := f.Get(s, resource)
		if err != nil {
			return nil, err
		}
		ev, err := f.Encode(s, v)
		if err != nil {
			return nil, err
		}
		meta[f.Name()] = ev
	}
	if len(meta) > 0 {
		out["meta"] = meta
	}

	links := make(map[string]any)
	for _, f := range s.links {
		v, err := f.Get(s, resource)
		if err != nil {
			return nil, err
		}
		ev, err := f.Encode(s, v)
		if err != nil {
			return nil, err
		}
		links[f.Name()] = ev
	}
	if s.api != nil {
		if _, claimed := links["self"]; !claimed {
			links["self"] = s.api.ResourceURL(s.typeName, id)
		}
	}
	if len(links) > 0 {
		out["links"] = links
	}
	return out, nil
}

// EncodeRelationship renders one relationship of resource as a
// relationship object. The pager, if any, contributes pagination links
// and meta; pass nil for unpaginated relationships.
func (s *Schema) EncodeRelationship(resource any, relname string, pager Pager) (map[string]any, error) {
	f, err := s.relationship(relname)
	if err != nil {
		return nil, err
	}
	return f.encodeObject(s, resource, pager)
}
