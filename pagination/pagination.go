// Package pagination implements the schema.Pager contract for the
// three classic JSON:API strategies: page number and size, limit and
// offset, and opaque cursors.
//
// A strategy is wired into the web handler as a Factory; the pager it
// builds owns its page[...] query parameters, bounds the collection
// through the schema.Window contract, and renders its pagination links
// and meta into the response document. Links reuse the request's URL
// with only the page parameters replaced, so filters and sparse
// fieldsets survive page navigation.
package pagination

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/grantwwu/jsonapi/apierror"
	"github.com/grantwwu/jsonapi/schema"
)

// Factory builds a pager from the request's query parameters. A
// factory reports malformed parameters as InvalidValue errors naming
// the offending page[...] parameter.
type Factory func(r *http.Request) (schema.Pager, error)

// Guard rail defaults, used when Limits leaves a bound zero.
const (
	DefaultSize = 25
	MaxSize     = 250
)

// Limits bounds the page sizes a client may request.
type Limits struct {
	// DefaultSize is the page size used when the request names none.
	DefaultSize int
	// MaxSize caps the requested page size.
	MaxSize int
}

func (l Limits) withDefaults() Limits {
	if l.DefaultSize <= 0 {
		l.DefaultSize = DefaultSize
	}
	if l.MaxSize <= 0 {
		l.MaxSize = MaxSize
	}
	return l
}

// intParam reads an integer query parameter with a lower bound.
func intParam(values url.Values, name string, fallback, min int) (int, error) {
	raw := values.Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min {
		return 0, apierror.InvalidValue(
			fmt.Sprintf("Must be an integer >= %d.", min), "",
		).WithParameter(name)
	}
	return n, nil
}

// sizeParam reads a page size parameter within the guard rails.
func sizeParam(values url.Values, name string, l Limits) (int, error) {
	n, err := intParam(values, name, l.DefaultSize, 1)
	if err != nil {
		return 0, err
	}
	if n > l.MaxSize {
		return 0, apierror.InvalidValue(
			fmt.Sprintf("Must be <= %d.", l.MaxSize), "",
		).WithParameter(name)
	}
	return n, nil
}

// pageLink renders the request URL with the page parameters replaced.
// An empty replacement value removes the parameter.
func pageLink(path string, query url.Values, set map[string]string) string {
	q := make(url.Values, len(query))
	for k, vs := range query {
		q[k] = append([]string(nil), vs...)
	}
	for k, v := range set {
		if v == "" {
			q.Del(k)
		} else {
			q.Set(k, v)
		}
	}
	if enc := q.Encode(); enc != "" {
		return path + "?" + enc
	}
	return path
}

// NumberSizePage paginates with a 1-based page[number] and a
// page[size]. The last link and the total counters appear once the
// store reports the collection size through SetTotal.
type NumberSizePage struct {
	path  string
	query url.Values

	number int
	size   int

	total    int
	hasTotal bool
}

// NumberSize returns a factory for number and size pagination.
func NumberSize(l Limits) Factory {
	l = l.withDefaults()
	return func(r *http.Request) (schema.Pager, error) {
		values := r.URL.Query()
		number, err := intParam(values, "page[number]", 1, 1)
		if err != nil {
			return nil, err
		}
		size, err := sizeParam(values, "page[size]", l)
		if err != nil {
			return nil, err
		}
		return &NumberSizePage{
			path:   r.URL.Path,
			query:  values,
			number: number,
			size:   size,
		}, nil
	}
}

// Number returns the requested 1-based page number.
func (p *NumberSizePage) Number() int { return p.number }

// Size returns the page size.
func (p *NumberSizePage) Size() int { return p.size }

// Window implements schema.Window.
func (p *NumberSizePage) Window() (offset, limit int) {
	return (p.number - 1) * p.size, p.size
}

// SetTotal implements schema.Totaler.
func (p *NumberSizePage) SetTotal(n int) {
	p.total = n
	p.hasTotal = true
}

func (p *NumberSizePage) lastPage() int {
	last := (p.total + p.size - 1) / p.size
	if last < 1 {
		last = 1
	}
	return last
}

func (p *NumberSizePage) link(number int) string {
	return pageLink(p.path, p.query, map[string]string{
		"page[number]": strconv.Itoa(number),
		"page[size]":   strconv.Itoa(p.size),
	})
}

// Links implements schema.Pager.
func (p *NumberSizePage) Links() map[string]any {
	links := map[string]any{
		"self":  p.link(p.number),
		"first": p.link(1),
	}
	if p.number > 1 {
		links["prev"] = p.link(p.number - 1)
	}
	if p.hasTotal {
		last := p.lastPage()
		links["last"] = p.link(last)
		if p.number < last {
			links["next"] = p.link(p.number + 1)
		}
	}
	return links
}

// Meta implements schema.Pager.
func (p *NumberSizePage) Meta() map[string]any {
	meta := map[string]any{
		"page": p.number,
		"size": p.size,
	}
	if p.hasTotal {
		meta["total-resources"] = p.total
		meta["last-page"] = p.lastPage()
	}
	return meta
}

// LimitOffsetPage paginates with page[limit] and page[offset].
type LimitOffsetPage struct {
	path  string
	query url.Values

	limit  int
	offset int

	total    int
	hasTotal bool
}

// LimitOffset returns a factory for limit and offset pagination.
func LimitOffset(l Limits) Factory {
	l = l.withDefaults()
	return func(r *http.Request) (schema.Pager, error) {
		values := r.URL.Query()
		limit, err := sizeParam(values, "page[limit]", l)
		if err != nil {
			return nil, err
		}
		offset, err := intParam(values, "page[offset]", 0, 0)
		if err != nil {
			return nil, err
		}
		return &LimitOffsetPage{
			path:   r.URL.Path,
			query:  values,
			limit:  limit,
			offset: offset,
		}, nil
	}
}

// Limit returns the page size.
func (p *LimitOffsetPage) Limit() int { return p.limit }

// Offset returns the zero-based collection offset.
func (p *LimitOffsetPage) Offset() int { return p.offset }

// Window implements schema.Window.
func (p *LimitOffsetPage) Window() (offset, limit int) {
	return p.offset, p.limit
}

// SetTotal implements schema.Totaler.
func (p *LimitOffsetPage) SetTotal(n int) {
	p.total = n
	p.hasTotal = true
}

func (p *LimitOffsetPage) link(offset int) string {
	return pageLink(p.path, p.query, map[string]string{
		"page[limit]":  strconv.Itoa(p.limit),
		"page[offset]": strconv.Itoa(offset),
	})
}

// Links implements schema.Pager.
func (p *LimitOffsetPage) Links() map[string]any {
	links := map[string]any{
		"self":  p.link(p.offset),
		"first": p.link(0),
	}
	if p.offset > 0 {
		prev := p.offset - p.limit
		if prev < 0 {
			prev = 0
		}
		links["prev"] = p.link(prev)
	}
	if p.hasTotal {
		last := 0
		if p.total > 0 {
			last = ((p.total - 1) / p.limit) * p.limit
		}
		links["last"] = p.link(last)
		if p.offset+p.limit < p.total {
			links["next"] = p.link(p.offset + p.limit)
		}
	}
	return links
}

// Meta implements schema.Pager.
func (p *LimitOffsetPage) Meta() map[string]any {
	meta := map[string]any{
		"limit":  p.limit,
		"offset": p.offset,
	}
	if p.hasTotal {
		meta["total-resources"] = p.total
	}
	return meta
}

// CursorPage paginates with an opaque page[cursor] and a page[limit].
// The store interprets the cursor and reports the neighboring cursors
// through SetCursors; prev and next links appear only afterwards.
type CursorPage struct {
	path  string
	query url.Values

	cursor string
	limit  int

	prev    string
	hasPrev bool
	next    string
	hasNext bool
}

// Cursor returns a factory for cursor pagination.
func Cursor(l Limits) Factory {
	l = l.withDefaults()
	return func(r *http.Request) (schema.Pager, error) {
		values := r.URL.Query()
		limit, err := sizeParam(values, "page[limit]", l)
		if err != nil {
			return nil, err
		}
		return &CursorPage{
			path:   r.URL.Path,
			query:  values,
			cursor: values.Get("page[cursor]"),
			limit:  limit,
		}, nil
	}
}

// CursorValue returns the requested cursor, "" for the first page.
func (p *CursorPage) CursorValue() string { return p.cursor }

// Limit returns the page size.
func (p *CursorPage) Limit() int { return p.limit }

// SetCursors records the cursors of the neighboring pages. An empty
// cursor means there is no page in that direction.
func (p *CursorPage) SetCursors(prev, next string) {
	p.prev, p.hasPrev = prev, prev != ""
	p.next, p.hasNext = next, next != ""
}

func (p *CursorPage) link(cursor string) string {
	return pageLink(p.path, p.query, map[string]string{
		"page[cursor]": cursor,
		"page[limit]":  strconv.Itoa(p.limit),
	})
}

// Links implements schema.Pager.
func (p *CursorPage) Links() map[string]any {
	links := map[string]any{
		"self":  p.link(p.cursor),
		"first": p.link(""),
	}
	if p.hasPrev {
		links["prev"] = p.link(p.prev)
	}
	if p.hasNext {
		links["next"] = p.link(p.next)
	}
	return links
}

// Meta implements schema.Pager.
func (p *CursorPage) Meta() map[string]any {
	return map[string]any{"limit": p.limit}
}

var (
	_ schema.Pager   = (*NumberSizePage)(nil)
	_ schema.Window  = (*NumberSizePage)(nil)
	_ schema.Totaler = (*NumberSizePage)(nil)
	_ schema.Pager   = (*LimitOffsetPage)(nil)
	_ schema.Window  = (*LimitOffsetPage)(nil)
	_ schema.Totaler = (*LimitOffsetPage)(nil)
	_ schema.Pager   = (*CursorPage)(nil)
)
