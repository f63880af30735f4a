package query

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantwwu/jsonapi/pagination"
	"github.com/grantwwu/jsonapi/schema"
)

func TestParseInclude(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   [][]string
	}{
		{
			name:   "absent",
			target: "/articles",
			want:   [][]string{},
		},
		{
			name:   "single path",
			target: "/articles?include=author",
			want:   [][]string{{"author"}},
		},
		{
			name:   "multiple paths",
			target: "/articles?include=author,comments.author",
			want:   [][]string{{"author"}, {"comments", "author"}},
		},
		{
			name:   "duplicates dropped",
			target: "/articles?include=author,comments,author",
			want:   [][]string{{"author"}, {"comments"}},
		},
		{
			name:   "whitespace and empty segments",
			target: "/articles?include=%20author%20,,comments..author",
			want:   [][]string{{"author"}, {"comments", "author"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.target, nil)
			assert.Equal(t, tt.want, ParseInclude(r))
		})
	}
}

func TestParseFields(t *testing.T) {
	r := httptest.NewRequest("GET", "/articles?fields[articles]=title,%20body&fields[people]=name&fields=x", nil)
	assert.Equal(t, map[string][]string{
		"articles": {"title", "body"},
		"people":   {"name"},
	}, ParseFields(r))

	// An empty value is an empty fieldset, not an absent one.
	r = httptest.NewRequest("GET", "/articles?fields[articles]=", nil)
	assert.Equal(t, map[string][]string{"articles": {}}, ParseFields(r))

	r = httptest.NewRequest("GET", "/articles", nil)
	assert.Empty(t, ParseFields(r))
}

func TestParseFilter(t *testing.T) {
	r := httptest.NewRequest("GET", "/articles?filter[state]=published&filter[author]=123&filter=x", nil)
	assert.Equal(t, map[string]string{
		"state":  "published",
		"author": "123",
	}, ParseFilter(r))

	// The first value of a repeated parameter wins.
	r = httptest.NewRequest("GET", "/articles?filter[state]=a&filter[state]=b", nil)
	assert.Equal(t, map[string]string{"state": "a"}, ParseFilter(r))

	r = httptest.NewRequest("GET", "/articles", nil)
	assert.Empty(t, ParseFilter(r))
}

func TestParseSort(t *testing.T) {
	r := httptest.NewRequest("GET", "/articles?sort=-created,%20title,-", nil)
	assert.Equal(t, []schema.SortField{
		{Name: "created", Desc: true},
		{Name: "title"},
	}, ParseSort(r))

	r = httptest.NewRequest("GET", "/articles", nil)
	assert.Empty(t, ParseSort(r))
}

func TestParse(t *testing.T) {
	target := "/api/articles?include=author&fields[articles]=title&filter[title]=Go&sort=-rating&page[number]=2&page[size]=5"
	r := httptest.NewRequest("GET", target, nil)

	q, err := Parse(r, pagination.NumberSize(pagination.Limits{}))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"title": "Go"}, q.Filters)
	assert.Equal(t, []schema.SortField{{Name: "rating", Desc: true}}, q.Sort)
	assert.Equal(t, map[string][]string{"articles": {"title"}}, q.Fields)
	assert.Equal(t, [][]string{{"author"}}, q.Include)
	require.NotNil(t, q.Page)
	assert.Equal(t, 2, q.Page.(*pagination.NumberSizePage).Number())
}

func TestParseWithoutPagination(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/articles?page[number]=2", nil)
	q, err := Parse(r, nil)
	require.NoError(t, err)
	assert.Nil(t, q.Page)
}

func TestParsePagerError(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/articles?page[number]=zero", nil)
	_, err := Parse(r, pagination.NumberSize(pagination.Limits{}))
	require.Error(t, err)
}
