// Package jsonpointer implements the subset of RFC 6901 JSON Pointers
// needed to address members of a JSON:API document.
//
// Pointers are built top-down while a document is validated and
// decoded, so the package only supports constructing and extending
// pointers, not evaluating them against a document:
//
//	sp := jsonpointer.Pointer("/data")
//	sp.Child("attributes").Child("title")   // "/data/attributes/title"
//	sp.Child("data").ChildIndex(3)          // "/data/data/3"
//
// The zero value addresses the document root.
package jsonpointer

import (
	"strconv"
	"strings"
)

// Pointer is a JSON Pointer in its string representation.
// The empty string is the whole-document pointer.
type Pointer string

// escaper rewrites the two characters that RFC 6901 reserves inside a
// reference token: "~" becomes "~0" and "/" becomes "~1".
var escaper = strings.NewReplacer("~", "~0", "/", "~1")

// Child returns a new pointer addressing the member *token* of the
// object addressed by p.
func (p Pointer) Child(token string) Pointer {
	return p + "/" + Pointer(escaper.Replace(token))
}

// ChildIndex returns a new pointer addressing the i-th element of the
// array addressed by p.
func (p Pointer) ChildIndex(i int) Pointer {
	return p + "/" + Pointer(strconv.Itoa(i))
}

// String returns the pointer in its RFC 6901 string form.
func (p Pointer) String() string {
	return string(p)
}

// IsRoot reports whether p addresses the whole document.
func (p Pointer) IsRoot() bool {
	return p == ""
}
