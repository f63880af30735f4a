package schema

import (
	"context"

	"github.com/grantwwu/jsonapi/apierror"
	"github.com/grantwwu/jsonapi/jsonpointer"
)

// relationship resolves a relationship by wire name.
func (s *Schema) relationship(relname string) (relationshipField, error) {
	f, ok := s.relsByName[relname]
	if !ok {
		return nil, apierror.NotFound("The type '" + s.typeName + "' has no relationship '" + relname + "'.")
	}
	return f.(relationshipField), nil
}

// Create validates doc as a creation document, decodes it and applies
// it to a fresh resource, which is returned. The caller persists the
// result. sp locates the resource object within the request document.
//
// A client-supplied id is honored when the id field is writable on
// creation and rejected with a Conflict otherwise.
func (s *Schema) Create(ctx context.Context, doc any, sp jsonpointer.Pointer) (any, error) {
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, apierror.InvalidType("Must be a resource object.", sp)
	}
	if err := s.ValidateResourcePreDecode(obj, sp, OpCreate, ""); err != nil {
		return nil, err
	}
	memo, err := s.DecodeResource(obj, sp)
	if err != nil {
		return nil, err
	}
	if err := s.ValidateResourcePostDecode(memo, OpCreate); err != nil {
		return nil, err
	}

	resource, err := s.NewResource()
	if err != nil {
		return nil, err
	}
	if rawID, has := obj["id"]; has {
		idSP := sp.Child("id")
		idValue, err := s.id.(idField).decodeIDString(s, rawID.(string), idSP)
		if err != nil {
			return nil, err
		}
		if err := s.id.Set(ctx, s, resource, idValue, idSP); err != nil {
			return nil, err
		}
	}
	if err := s.applyMemo(ctx, resource, memo); err != nil {
		return nil, err
	}
	return resource, nil
}

// Update validates doc as an update document for resource, decodes it
// and applies the decoded values. The document id must match the
// resource's id; a mismatch is a Conflict, detected before anything is
// decoded.
func (s *Schema) Update(ctx context.Context, resource any, doc any, sp jsonpointer.Pointer) error {
	obj, ok := doc.(map[string]any)
	if !ok {
		return apierror.InvalidType("Must be a resource object.", sp)
	}
	expectedID, err := s.IDOf(resource)
	if err != nil {
		return err
	}
	if err := s.ValidateResourcePreDecode(obj, sp, OpUpdate, expectedID); err != nil {
		return err
	}
	memo, err := s.DecodeResource(obj, sp)
	if err != nil {
		return err
	}
	if err := s.ValidateResourcePostDecode(memo, OpUpdate); err != nil {
		return err
	}
	return s.applyMemo(ctx, resource, memo)
}

// applyMemo writes the decoded values to resource in decode order.
func (s *Schema) applyMemo(ctx context.Context, resource any, memo *Memo) error {
	for _, key := range memo.Keys() {
		f, ok := s.byKey[key]
		if !ok {
			return apierror.Configuration("schema %q has no field %q", s.typeName, key)
		}
		v, fsp, _ := memo.Lookup(key)
		if err := f.Set(ctx, s, resource, v, fsp); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the resource with the given id through the schema's
// deleter.
func (s *Schema) Delete(ctx context.Context, id string) error {
	if s.deleter == nil {
		return apierror.NotImplemented("Deleting '" + s.typeName + "' resources is not supported.")
	}
	return s.deleter(ctx, id)
}

// UpdateRelationship validates doc as a relationship object for the
// named relationship and replaces the relationship's linkage with the
// decoded one. A document without a data member changes nothing.
func (s *Schema) UpdateRelationship(ctx context.Context, resource any, relname string, doc any, sp jsonpointer.Pointer) error {
	f, err := s.relationship(relname)
	if err != nil {
		return err
	}
	if !f.Writable().Applies(OpUpdate) {
		return apierror.InvalidOperation("The relationship '"+relname+"' is read-only.", sp)
	}
	if err := f.ValidatePreDecode(s, doc, sp, OpUpdate); err != nil {
		return err
	}
	obj := doc.(map[string]any)
	if _, hasData := obj["data"]; !hasData {
		return nil
	}
	v, err := f.Decode(s, doc, sp)
	if err != nil {
		return err
	}
	if err := f.ValidatePostDecode(s, v, sp, OpUpdate); err != nil {
		return err
	}
	return f.Set(ctx, s, resource, v, sp)
}

// AddRelationship extends the named to-many relationship with the
// identifiers in doc. Adding to a to-one relationship is an
// InvalidOperation.
func (s *Schema) AddRelationship(ctx context.Context, resource any, relname string, doc any, sp jsonpointer.Pointer) error {
	tm, ids, err := s.decodeToManyLinkage(resource, relname, doc, sp)
	if err != nil {
		return err
	}
	return tm.Add(ctx, s, resource, ids, sp)
}

// RemoveRelationship removes the identifiers in doc from the named
// to-many relationship. Identifiers that are not part of the linkage
// are ignored.
func (s *Schema) RemoveRelationship(ctx context.Context, resource any, relname string, doc any, sp jsonpointer.Pointer) error {
	tm, ids, err := s.decodeToManyLinkage(resource, relname, doc, sp)
	if err != nil {
		return err
	}
	return tm.Remove(ctx, s, resource, ids, sp)
}

// decodeToManyLinkage validates and decodes a relationship object
// aimed at a to-many relationship, requiring its data member.
func (s *Schema) decodeToManyLinkage(resource any, relname string, doc any, sp jsonpointer.Pointer) (*ToMany, []Identifier, error) {
	f, err := s.relationship(relname)
	if err != nil {
		return nil, nil, err
	}
	tm, ok := f.(*ToMany)
	if !ok {
		return nil, nil, apierror.InvalidOperation("The relationship '"+relname+"' is to-one.", sp)
	}
	if !tm.Writable().Applies(OpUpdate) {
		return nil, nil, apierror.InvalidOperation("The relationship '"+relname+"' is read-only.", sp)
	}
	if err := tm.ValidatePreDecode(s, doc, sp, OpUpdate); err != nil {
		return nil, nil, err
	}
	obj := doc.(map[string]any)
	if _, hasData := obj["data"]; !hasData {
		return nil, nil, apierror.InvalidValue("The 'data' member is required.", sp)
	}
	v, err := tm.Decode(s, doc, sp)
	if err != nil {
		return nil, nil, err
	}
	if err := tm.ValidatePostDecode(s, v, sp, OpUpdate); err != nil {
		return nil, nil, err
	}
	ids, _ := v.([]Identifier)
	return tm, ids, nil
}

// Load returns the resource with the given id through the schema's
// store.
func (s *Schema) Load(ctx context.Context, id string, q *Query) (any, error) {
	if s.store == nil {
		return nil, apierror.NotImplemented("Loading '" + s.typeName + "' resources is not supported.")
	}
	return s.store.Resource(ctx, s, id, q)
}

// LoadCollection returns the resources selected by q through the
// schema's store.
func (s *Schema) LoadCollection(ctx context.Context, q *Query) ([]any, error) {
	if s.store == nil {
		return nil, apierror.NotImplemented("Listing '" + s.typeName + "' resources is not supported.")
	}
	return s.store.Collection(ctx, s, q)
}

// LoadRelatives returns the resources related to resource through the
// named relationship, shaped by q. The relationship's querier wins
// over the schema's store, which wins over the mapped value.
func (s *Schema) LoadRelatives(ctx context.Context, resource any, relname string, q *Query) ([]any, error) {
	f, err := s.relationship(relname)
	if err != nil {
		return nil, err
	}
	return f.relState().Query(ctx, s, resource, q)
}

// Include returns the resources related to resource through the named
// relationship, for compound documents.
func (s *Schema) Include(ctx context.Context, resource any, relname string) ([]any, error) {
	f, err := s.relationship(relname)
	if err != nil {
		return nil, err
	}
	return f.relState().Include(ctx, s, resource)
}
