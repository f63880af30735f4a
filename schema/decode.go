package schema

import (
	"github.com/grantwwu/jsonapi/apierror"
	"github.com/grantwwu/jsonapi/jsonpointer"
)

// Memo holds the decoded field values of one resource document,
// keyed by field key and remembering the document location of each
// value. Iteration over Keys follows decode order: attributes, then
// relationships, then meta fields, each in declaration order.
type Memo struct {
	keys   []string
	values map[string]memoEntry
}

type memoEntry struct {
	value any
	sp    jsonpointer.Pointer
}

func newMemo() *Memo {
	return &Memo{values: make(map[string]memoEntry)}
}

func (m *Memo) add(key string, value any, sp jsonpointer.Pointer) {
	if _, seen := m.values[key]; !seen {
		m.keys = append(m.keys, key)
	}
	m.values[key] = memoEntry{value: value, sp: sp}
}

// Len returns the number of decoded fields.
func (m *Memo) Len() int { return len(m.keys) }

// Keys returns the decoded field keys in decode order.
func (m *Memo) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Get returns the decoded value for key.
func (m *Memo) Get(key string) (any, bool) {
	e, ok := m.values[key]
	return e.value, ok
}

// Lookup returns the decoded value for key together with the document
// location it was decoded from.
func (m *Memo) Lookup(key string) (any, jsonpointer.Pointer, bool) {
	e, ok := m.values[key]
	return e.value, e.sp, ok
}

// memberObject extracts an optional object member of a resource
// object, failing with InvalidType when the member is present but not
// an object.
func memberObject(doc map[string]any, name string, sp jsonpointer.Pointer) (map[string]any, error) {
	raw, ok := doc[name]
	if !ok {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, apierror.InvalidType("Must be an object.", sp.Child(name))
	}
	return m, nil
}

// ValidateResourcePreDecode checks a resource object against the
// schema under op, before any value is decoded. sp locates the
// resource object within the request document (usually "/data").
//
// The check covers the document structure: the type member must match
// the schema, the id member must obey the operation's id rules and
// expectedID (the id addressed by the endpoint, "" for creation),
// unknown attributes and relationships are rejected, and every present
// field must be writable under op, every absent one not required under
// it. Field values themselves are checked with each field's
// ValidatePreDecode. Unknown members of the resource object itself and
// of its meta object are ignored.
func (s *Schema) ValidateResourcePreDecode(doc map[string]any, sp jsonpointer.Pointer, op Operation, expectedID string) error {
	rawType, hasType := doc["type"]
	if !hasType {
		return apierror.InvalidValue("The 'type' member is missing.", sp)
	}
	typeName, ok := rawType.(string)
	if !ok {
		return apierror.InvalidType("Must be a string.", sp.Child("type"))
	}
	if typeName != s.typeName {
		return apierror.Conflict("Expected type '"+s.typeName+"', got '"+typeName+"'.", sp.Child("type"))
	}

	rawID, hasID := doc["id"]
	if hasID {
		idStr, ok := rawID.(string)
		if !ok {
			return apierror.InvalidType("Must be a string.", sp.Child("id"))
		}
		if expectedID != "" && idStr != expectedID {
			return apierror.Conflict("The id does not match the endpoint.", sp.Child("id"))
		}
		if op == OpCreate && !s.id.Writable().Applies(OpCreate) {
			return apierror.Conflict("The id is assigned by the server.", sp.Child("id"))
		}
	} else {
		if op == OpUpdate || expectedID != "" {
			return apierror.InvalidValue("The 'id' member is missing.", sp)
		}
		if s.id.Required().Applies(op) {
			return apierror.InvalidValue("The 'id' member is missing.", sp)
		}
	}

	attrs, err := memberObject(doc, "attributes", sp)
	if err != nil {
		return err
	}
	rels, err := memberObject(doc, "relationships", sp)
	if err != nil {
		return err
	}
	meta, err := memberObject(doc, "meta", sp)
	if err != nil {
		return err
	}

	attrsSP := sp.Child("attributes")
	for _, name := range sortedKeys(attrs) {
		if _, known := s.attrsByName[name]; !known {
			return apierror.InvalidValue("Unknown attribute: '"+name+"'.", attrsSP.Child(name))
		}
	}
	relsSP := sp.Child("relationships")
	for _, name := range sortedKeys(rels) {
		if _, known := s.relsByName[name]; !known {
			return apierror.InvalidValue("Unknown relationship: '"+name+"'.", relsSP.Child(name))
		}
	}

	if hasID {
		if err := s.validateIDValue(rawID.(string), sp.Child("id"), op); err != nil {
			return err
		}
	}
	if err := s.validateFields(s.attributes, attrs, attrsSP, op); err != nil {
		return err
	}
	if err := s.validateFields(s.relationships, rels, relsSP, op); err != nil {
		return err
	}
	return s.validateFields(s.metaFields, meta, sp.Child("meta"), op)
}

// validateIDValue runs the id field's own checks against the wire id.
func (s *Schema) validateIDValue(value string, sp jsonpointer.Pointer, op Operation) error {
	if _, err := s.id.(idField).decodeIDString(s, value, sp); err != nil {
		return err
	}
	return s.id.state().runValidators(s, value, sp, op, PreDecode)
}

// validateFields applies the writability, requiredness and per-field
// checks of one member partition.
func (s *Schema) validateFields(fields []Field, member map[string]any, memberSP jsonpointer.Pointer, op Operation) error {
	for _, f := range fields {
		raw, present := member[f.Name()]
		fsp := memberSP.Child(f.Name())
		if present && !f.Writable().Applies(op) {
			return apierror.InvalidOperation("The field '"+f.Name()+"' is read-only.", fsp)
		}
		if !present && f.Required().Applies(op) {
			return apierror.InvalidValue("The field '"+f.Name()+"' is required.", fsp)
		}
		if present {
			if err := f.ValidatePreDecode(s, raw, fsp, op); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecodeResource decodes the field values of a validated resource
// object into a Memo. The id member is not part of the memo; creation
// handles it separately. Relationship members without a data member
// decode to nothing, so updates leave such relationships unchanged.
func (s *Schema) DecodeResource(doc map[string]any, sp jsonpointer.Pointer) (*Memo, error) {
	memo := newMemo()

	attrs, _ := doc["attributes"].(map[string]any)
	attrsSP := sp.Child("attributes")
	for _, f := range s.attributes {
		raw, present := attrs[f.Name()]
		if !present {
			continue
		}
		fsp := attrsSP.Child(f.Name())
		v, err := f.Decode(s, raw, fsp)
		if err != nil {
			return nil, err
		}
		memo.add(f.Key(), v, fsp)
	}

	rels, _ := doc["relationships"].(map[string]any)
	relsSP := sp.Child("relationships")
	for _, f := range s.relationships {
		raw, present := rels[f.Name()]
		if !present {
			continue
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, apierror.InvalidType("Must be a relationship object.", relsSP.Child(f.Name()))
		}
		if _, hasData := obj["data"]; !hasData {
			continue
		}
		fsp := relsSP.Child(f.Name())
		v, err := f.Decode(s, raw, fsp)
		if err != nil {
			return nil, err
		}
		memo.add(f.Key(), v, fsp)
	}

	meta, _ := doc["meta"].(map[string]any)
	metaSP := sp.Child("meta")
	for _, f := range s.metaFields {
		raw, present := meta[f.Name()]
		if !present {
			continue
		}
		fsp := metaSP.Child(f.Name())
		v, err := f.Decode(s, raw, fsp)
		if err != nil {
			return nil, err
		}
		memo.add(f.Key(), v, fsp)
	}
	return memo, nil
}

// ValidateResourcePostDecode runs the post-decode checks of every
// decoded field, in decode order.
func (s *Schema) ValidateResourcePostDecode(memo *Memo, op Operation) error {
	for _, f := range s.decodable {
		v, fsp, ok := memo.Lookup(f.Key())
		if !ok {
			continue
		}
		if err := f.ValidatePostDecode(s, v, fsp, op); err != nil {
			return err
		}
	}
	return nil
}
