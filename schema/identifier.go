package schema

import (
	"github.com/grantwwu/jsonapi/apierror"
	"github.com/grantwwu/jsonapi/jsonpointer"
)

// Identifier is the (type, id) pair that uniquely names a resource.
// It is the currency of relationship linkage: decoding a relationship
// document yields identifiers, and encoding one renders them back into
// resource identifier objects.
type Identifier struct {
	Type string
	ID   string
}

// String returns the identifier in "type/id" form.
func (i Identifier) String() string {
	return i.Type + "/" + i.ID
}

// IsZero reports whether both members are empty.
func (i Identifier) IsZero() bool {
	return i.Type == "" && i.ID == ""
}

// Object returns the JSON:API resource identifier object for i.
func (i Identifier) Object() map[string]any {
	return map[string]any{"type": i.Type, "id": i.ID}
}

// identifierFromObject extracts an Identifier from a resource
// identifier object that has already passed shape validation.
func identifierFromObject(data map[string]any) Identifier {
	id := Identifier{}
	if t, ok := data["type"].(string); ok {
		id.Type = t
	}
	if v, ok := data["id"].(string); ok {
		id.ID = v
	}
	return id
}

// validateIdentifierObject checks that raw is a resource identifier
// object: a JSON object carrying string "type" and "id" members, with
// the type admitted by the allowlist (an empty allowlist admits any
// type). sp locates raw within the enclosing document.
func validateIdentifierObject(raw any, allowed map[string]struct{}, sp jsonpointer.Pointer) error {
	data, ok := raw.(map[string]any)
	if !ok {
		return apierror.InvalidType("Must be a resource identifier object.", sp)
	}
	t, hasType := data["type"]
	v, hasID := data["id"]
	if !hasType || !hasID {
		return apierror.InvalidValue("Must contain a 'type' and an 'id' member.", sp)
	}
	typeName, ok := t.(string)
	if !ok {
		return apierror.InvalidType("Must be a string.", sp.Child("type"))
	}
	if _, ok := v.(string); !ok {
		return apierror.InvalidType("Must be a string.", sp.Child("id"))
	}
	if len(allowed) > 0 {
		if _, ok := allowed[typeName]; !ok {
			return apierror.InvalidValue("Unexpected type: '"+typeName+"'.", sp.Child("type"))
		}
	}
	return nil
}
