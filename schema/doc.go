// Package schema maps Go structs to JSON:API resource objects.
//
// A Schema describes one resource type: its fields, how each field is
// read from and written to the application struct, and which CRUD
// contexts each field may be written or is required in. Schemas are
// built once from a Config, are immutable afterwards, and are bound to
// a jsonapi.API that provides URL construction and type registry
// services.
//
// The field catalog covers typed attributes (strings, numbers,
// timestamps, durations, UUIDs, arbitrary precision decimals, URIs,
// email addresses, homogeneous objects and arrays), links and to-one
// and to-many relationships. Every field supports custom accessors and
// validators; relationships additionally support custom loaders for
// inclusion and related-resource queries.
package schema
