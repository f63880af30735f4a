// Package query parses JSON:API query parameters into a schema.Query.
package query

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/grantwwu/jsonapi/pagination"
	"github.com/grantwwu/jsonapi/schema"
)

// fieldsPattern matches query parameters like fields[typename]
var fieldsPattern = regexp.MustCompile(`^fields\[([^\]]+)\]$`)

// filterPattern matches query parameters like filter[key]
var filterPattern = regexp.MustCompile(`^filter\[([^\]]+)\]$`)

// ParseInclude parses the include query parameter into relationship
// paths. Example: ?include=author,comments.author returns
// [["author"], ["comments", "author"]]. Duplicate paths are removed,
// first occurrence order kept. Returns an empty slice if the include
// parameter is not present.
func ParseInclude(r *http.Request) [][]string {
	include := r.URL.Query().Get("include")
	if include == "" {
		return [][]string{}
	}

	parts := strings.Split(include, ",")
	result := make([][]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		path := make([]string, 0, strings.Count(trimmed, ".")+1)
		for _, segment := range strings.Split(trimmed, ".") {
			segment = strings.TrimSpace(segment)
			if segment != "" {
				path = append(path, segment)
			}
		}
		if len(path) == 0 {
			continue
		}
		key := strings.Join(path, ".")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, path)
	}

	return result
}

// ParseFields parses the fields query parameters into a map of
// resource types to field names.
// Example: ?fields[articles]=title,body&fields[people]=name
// Returns: {"articles": ["title", "body"], "people": ["name"]}
// An empty value keeps an empty list, which requests no fields at all.
func ParseFields(r *http.Request) map[string][]string {
	result := make(map[string][]string)

	for key, values := range r.URL.Query() {
		matches := fieldsPattern.FindStringSubmatch(key)
		if len(matches) != 2 {
			continue
		}

		typeName := matches[1]
		if len(values) == 0 || values[0] == "" {
			result[typeName] = []string{}
			continue
		}

		fields := strings.Split(values[0], ",")
		fieldList := make([]string, 0, len(fields))
		for _, field := range fields {
			trimmed := strings.TrimSpace(field)
			if trimmed != "" {
				fieldList = append(fieldList, trimmed)
			}
		}
		result[typeName] = fieldList
	}

	return result
}

// ParseFilter parses the filter query parameters into a map of filter
// keys to values.
// Example: ?filter[state]=published&filter[author]=123
// Returns: {"state": "published", "author": "123"}
func ParseFilter(r *http.Request) map[string]string {
	result := make(map[string]string)

	for key, values := range r.URL.Query() {
		matches := filterPattern.FindStringSubmatch(key)
		if len(matches) != 2 {
			continue
		}

		filterKey := matches[1]
		if len(values) > 0 {
			result[filterKey] = values[0]
		}
	}

	return result
}

// ParseSort parses the sort query parameter into sort fields. A "-"
// prefix marks descending order.
// Example: ?sort=-created,title returns
// [{Name: "created", Desc: true}, {Name: "title"}]
func ParseSort(r *http.Request) []schema.SortField {
	sortParam := r.URL.Query().Get("sort")
	if sortParam == "" {
		return []schema.SortField{}
	}

	parts := strings.Split(sortParam, ",")
	result := make([]schema.SortField, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		field := schema.SortField{Name: trimmed}
		if strings.HasPrefix(trimmed, "-") {
			field.Name = trimmed[1:]
			field.Desc = true
		}
		if field.Name != "" {
			result = append(result, field)
		}
	}

	return result
}

// Parse assembles a schema.Query from every JSON:API query parameter
// of the request. The pagination factory may be nil, in which case the
// query carries no pager.
func Parse(r *http.Request, pf pagination.Factory) (*schema.Query, error) {
	q := &schema.Query{
		Filters: ParseFilter(r),
		Sort:    ParseSort(r),
		Fields:  ParseFields(r),
		Include: ParseInclude(r),
	}
	if pf != nil {
		pager, err := pf(r)
		if err != nil {
			return nil, err
		}
		q.Page = pager
	}
	return q, nil
}
