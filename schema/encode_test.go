package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeResource(t *testing.T) {
	s := newArticleSchema(t, nil)
	newTestAPI(t, s)

	a := &testArticle{
		ID:     "1",
		Title:  "Hello",
		Body:   "World",
		Rating: 4,
		Tags:   []string{"go"},
		Author: Identifier{Type: "people", ID: "9"},
		Comments: []Identifier{
			{Type: "comments", ID: "1"},
			{Type: "comments", ID: "2"},
		},
	}

	got, err := s.EncodeResource(a, nil)
	require.NoError(t, err)

	want := map[string]any{
		"type": "articles",
		"id":   "1",
		"attributes": map[string]any{
			"title":  "Hello",
			"body":   "World",
			"rating": int64(4),
			"tags":   []any{"go"},
		},
		"relationships": map[string]any{
			"author": map[string]any{
				"data": map[string]any{"type": "people", "id": "9"},
				"links": map[string]any{
					"self":    "/api/articles/1/relationships/author",
					"related": "/api/articles/1/author",
				},
			},
			"comments": map[string]any{
				"data": []any{
					map[string]any{"type": "comments", "id": "1"},
					map[string]any{"type": "comments", "id": "2"},
				},
				"links": map[string]any{
					"self":    "/api/articles/1/relationships/comments",
					"related": "/api/articles/1/comments",
				},
			},
		},
		"links": map[string]any{"self": "/api/articles/1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("resource object mismatch (-want +got):\n%s", diff)
	}
}

// An unbound schema encodes no links, an empty to-one linkage encodes
// as null and an empty to-many linkage as an empty array.
func TestEncodeResourceZeroValues(t *testing.T) {
	s := newArticleSchema(t, nil)

	got, err := s.EncodeResource(&testArticle{ID: "1"}, nil)
	require.NoError(t, err)

	want := map[string]any{
		"type": "articles",
		"id":   "1",
		"attributes": map[string]any{
			"title":  "",
			"body":   "",
			"rating": int64(0),
			"tags":   []any{},
		},
		"relationships": map[string]any{
			"author":   map[string]any{"data": nil},
			"comments": map[string]any{"data": []any{}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("resource object mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeResourceNil(t *testing.T) {
	s := newArticleSchema(t, nil)
	_, err := s.EncodeResource(nil, nil)
	require.Error(t, err)
}

func TestEncodeResourceSparseFieldset(t *testing.T) {
	s := newArticleSchema(t, nil)
	newTestAPI(t, s)
	a := &testArticle{ID: "1", Title: "Hello", Rating: 4}

	q := &Query{Fields: map[string][]string{"articles": {"title", "author"}}}
	got, err := s.EncodeResource(a, q)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"title": "Hello"}, got["attributes"])
	rels := got["relationships"].(map[string]any)
	assert.Contains(t, rels, "author")
	assert.NotContains(t, rels, "comments")

	// The id and links stay regardless of the fieldset.
	assert.Equal(t, "1", got["id"])
	assert.Contains(t, got, "links")
}

func TestEncodeResourceEmptyFieldset(t *testing.T) {
	s := newArticleSchema(t, nil)
	a := &testArticle{ID: "1", Title: "Hello"}

	q := &Query{Fields: map[string][]string{"articles": {}}}
	got, err := s.EncodeResource(a, q)
	require.NoError(t, err)
	assert.NotContains(t, got, "attributes")
	assert.NotContains(t, got, "relationships")

	// A fieldset for some other type does not restrict this one.
	q = &Query{Fields: map[string][]string{"people": {}}}
	got, err = s.EncodeResource(a, q)
	require.NoError(t, err)
	assert.Contains(t, got, "attributes")
}

func TestEncodeResourceMetaAndLinks(t *testing.T) {
	s, err := New(Config{
		Type:     "articles",
		Resource: testArticle{},
		Fields: []Field{
			NewID(NewString("id")),
			NewString("title"),
			NewString("body", Meta()),
			NewLink("archive", "{base}/{type}/{id}/archive"),
		},
	})
	require.NoError(t, err)
	newTestAPI(t, s)

	got, err := s.EncodeResource(&testArticle{ID: "1", Title: "T", Body: "draft"}, nil)
	require.NoError(t, err)

	want := map[string]any{
		"type":       "articles",
		"id":         "1",
		"attributes": map[string]any{"title": "T"},
		"meta":       map[string]any{"body": "draft"},
		"links": map[string]any{
			"archive": map[string]any{"href": "/api/articles/1/archive"},
			"self":    "/api/articles/1",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("resource object mismatch (-want +got):\n%s", diff)
	}
}

// A link field named self claims the member; the automatic self link
// backs off.
func TestEncodeResourceSelfLinkClaimed(t *testing.T) {
	s, err := New(Config{
		Type:     "articles",
		Resource: testArticle{},
		Fields: []Field{
			NewID(NewString("id")),
			NewLink("self", "{base}/reading/{id}", NoNormalize()),
		},
	})
	require.NoError(t, err)
	newTestAPI(t, s)

	got, err := s.EncodeResource(&testArticle{ID: "1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"self": "/api/reading/1"}, got["links"])
}

type fakePager struct {
	links map[string]any
	meta  map[string]any
}

func (p *fakePager) Links() map[string]any { return p.links }
func (p *fakePager) Meta() map[string]any  { return p.meta }

func TestEncodeRelationship(t *testing.T) {
	s := newArticleSchema(t, nil)
	newTestAPI(t, s)
	a := &testArticle{ID: "1", Comments: []Identifier{{Type: "comments", ID: "3"}}}

	got, err := s.EncodeRelationship(a, "comments", nil)
	require.NoError(t, err)

	want := map[string]any{
		"data": []any{map[string]any{"type": "comments", "id": "3"}},
		"links": map[string]any{
			"self":    "/api/articles/1/relationships/comments",
			"related": "/api/articles/1/comments",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("relationship object mismatch (-want +got):\n%s", diff)
	}

	_, err = s.EncodeRelationship(a, "bogus", nil)
	require.Error(t, err)
}

func TestEncodeRelationshipMergesPager(t *testing.T) {
	s := newArticleSchema(t, nil)
	newTestAPI(t, s)
	a := &testArticle{ID: "1", Comments: []Identifier{{Type: "comments", ID: "3"}}}

	pager := &fakePager{
		links: map[string]any{"next": "/api/articles/1/comments?page[number]=2"},
		meta:  map[string]any{"total": 7},
	}
	got, err := s.EncodeRelationship(a, "comments", pager)
	require.NoError(t, err)

	links := got["links"].(map[string]any)
	assert.Equal(t, "/api/articles/1/relationships/comments", links["self"])
	assert.Equal(t, "/api/articles/1/comments?page[number]=2", links["next"])
	assert.Equal(t, map[string]any{"total": 7}, got["meta"])
}

// NoDereference drops the data member, leaving a links-only
// relationship object.
func TestEncodeRelationshipNoDereference(t *testing.T) {
	s, err := New(Config{
		Type:     "articles",
		Resource: testArticle{},
		Fields: []Field{
			NewID(NewString("id")),
			NewToOne("author", NoDereference()),
		},
	})
	require.NoError(t, err)
	newTestAPI(t, s)

	got, err := s.EncodeRelationship(&testArticle{ID: "1"}, "author", nil)
	require.NoError(t, err)
	assert.NotContains(t, got, "data")
	assert.Equal(t, map[string]any{
		"self":    "/api/articles/1/relationships/author",
		"related": "/api/articles/1/author",
	}, got["links"])
}
