package jsonapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantwwu/jsonapi/apierror"
	"github.com/grantwwu/jsonapi/memstore"
	"github.com/grantwwu/jsonapi/schema"
)

func TestInclude(t *testing.T) {
	api, store := newBlogAPI(t)
	seedBlog(t, api, store)
	ctx := context.Background()

	article, err := api.MustSchema("articles").Load(ctx, "1", nil)
	require.NoError(t, err)

	inc, err := api.Include(ctx, []any{article}, [][]string{
		{"author"},
		{"comments"},
		{"comments", "author"},
	})
	require.NoError(t, err)

	// Ann is reached through both the article and her comment, but is
	// included once, at her first discovery.
	assert.Equal(t, []Identifier{
		{Type: "people", ID: "1"},
		{Type: "comments", ID: "1"},
		{Type: "comments", ID: "2"},
		{Type: "people", ID: "2"},
	}, inc.Identifiers())

	assert.Equal(t, 4, inc.Len())
	assert.True(t, inc.Has(Identifier{Type: "people", ID: "2"}))
	assert.False(t, inc.Has(Identifier{Type: "people", ID: "404"}))

	r, ok := inc.Resource(Identifier{Type: "comments", ID: "1"})
	require.True(t, ok)
	assert.Equal(t, "First", r.(*testComment).Body)

	resources := inc.Resources()
	require.Len(t, resources, 4)
	assert.Equal(t, "Ann", resources[0].(*testPerson).Name)

	assert.Equal(t, []string{"author"}, inc.Tags(Identifier{Type: "people", ID: "1"}))
	assert.Equal(t, []string{"comments"}, inc.Tags(Identifier{Type: "comments", ID: "1"}))
	assert.Nil(t, inc.Tags(Identifier{Type: "people", ID: "404"}))
}

func TestIncludeFetchesOncePerStep(t *testing.T) {
	store := memstore.New()
	var fetches int

	articles, err := schema.New(schema.Config{
		Type:     "articles",
		Resource: testArticle{},
		Fields: []schema.Field{
			schema.NewID(schema.NewString("id")),
			schema.NewToMany("comments", schema.Includer(func(ctx context.Context, s *schema.Schema, resource any) ([]any, error) {
				fetches++
				return []any{
					&testComment{ID: "1", Author: Identifier{Type: "people", ID: "1"}},
				}, nil
			})),
		},
	})
	require.NoError(t, err)

	comments, err := schema.New(schema.Config{
		Type:     "comments",
		Resource: testComment{},
		Fields: []schema.Field{
			schema.NewID(schema.NewString("id")),
			schema.NewToOne("author", schema.ForeignTypes("people")),
		},
	})
	require.NoError(t, err)

	people, err := schema.New(schema.Config{
		Type:     "people",
		Resource: testPerson{},
		Fields:   []schema.Field{schema.NewID(schema.NewString("id"))},
		Store:    store,
	})
	require.NoError(t, err)

	api := New("/api")
	api.MustAddSchema(articles, comments, people)
	require.NoError(t, store.Add(people, &testPerson{ID: "1", Name: "Ann"}))

	inc, err := api.Include(context.Background(), []any{&testArticle{ID: "1"}}, [][]string{
		{"comments"},
		{"comments"},
		{"comments", "author"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, fetches, "one fetch serves every path through the step")
	assert.Equal(t, 2, inc.Len())
}

func TestIncludeTerminatesOnCycles(t *testing.T) {
	type loopArticle struct {
		ID       string
		Comments []Identifier
	}
	type loopComment struct {
		ID      string
		Article Identifier
	}

	store := memstore.New()
	articles, err := schema.New(schema.Config{
		Type:     "articles",
		Resource: loopArticle{},
		Fields: []schema.Field{
			schema.NewID(schema.NewString("id")),
			schema.NewToMany("comments", schema.ForeignTypes("comments")),
		},
		Store: store,
	})
	require.NoError(t, err)
	comments, err := schema.New(schema.Config{
		Type:     "comments",
		Resource: loopComment{},
		Fields: []schema.Field{
			schema.NewID(schema.NewString("id")),
			schema.NewToOne("article", schema.ForeignTypes("articles")),
		},
		Store: store,
	})
	require.NoError(t, err)

	api := New("/api")
	api.MustAddSchema(articles, comments)

	a := &loopArticle{ID: "1", Comments: []Identifier{
		{Type: "comments", ID: "1"},
		{Type: "comments", ID: "2"},
	}}
	require.NoError(t, store.Add(articles, a))
	require.NoError(t, store.Add(comments,
		&loopComment{ID: "1", Article: Identifier{Type: "articles", ID: "1"}},
		&loopComment{ID: "2", Article: Identifier{Type: "articles", ID: "1"}},
	))

	inc, err := api.Include(context.Background(), []any{a}, [][]string{
		{"comments", "article", "comments", "article"},
	})
	require.NoError(t, err)

	// The walk is depth-first, so the article is rediscovered through
	// the first comment before the second comment is reached. Each
	// resource appears once.
	assert.Equal(t, []Identifier{
		{Type: "comments", ID: "1"},
		{Type: "articles", ID: "1"},
		{Type: "comments", ID: "2"},
	}, inc.Identifiers())
}

func TestIncludeUnknownRelationship(t *testing.T) {
	api, store := newBlogAPI(t)
	seedBlog(t, api, store)
	ctx := context.Background()

	article, err := api.MustSchema("articles").Load(ctx, "1", nil)
	require.NoError(t, err)

	_, err = api.Include(ctx, []any{article}, [][]string{{"comments", "history"}})
	require.Error(t, err)
	var ae *apierror.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apierror.CodeInvalidValue, ae.Code)
	assert.Equal(t, "The type 'comments' has no relationship 'history'.", ae.Detail)
	assert.Equal(t, "include", ae.SourceParameter)
}

func TestIncludeNothing(t *testing.T) {
	api, store := newBlogAPI(t)
	seedBlog(t, api, store)
	ctx := context.Background()

	inc, err := api.Include(ctx, nil, [][]string{{"author"}})
	require.NoError(t, err)
	assert.Equal(t, 0, inc.Len())

	article, err := api.MustSchema("articles").Load(ctx, "1", nil)
	require.NoError(t, err)

	inc, err = api.Include(ctx, []any{article, nil}, [][]string{{}, nil})
	require.NoError(t, err)
	assert.Equal(t, 0, inc.Len())
	assert.Empty(t, inc.Resources())
}

func TestRebaseInclude(t *testing.T) {
	assert.Equal(t, [][]string{{"author"}}, RebaseInclude("author", nil))

	paths := [][]string{{"comments"}, {"comments", "author"}}
	got := RebaseInclude("article", paths)
	assert.Equal(t, [][]string{
		{"article", "comments"},
		{"article", "comments", "author"},
	}, got)
	assert.Equal(t, [][]string{{"comments"}, {"comments", "author"}}, paths, "the input paths stay untouched")
}

func TestCollectIdentifiers(t *testing.T) {
	doc := map[string]any{
		"data": map[string]any{
			"type": "articles",
			"id":   "2",
			"relationships": map[string]any{
				"author": map[string]any{
					"data": map[string]any{"type": "people", "id": "9"},
				},
				"comments": map[string]any{
					"data": []any{
						map[string]any{"type": "comments", "id": "1"},
						map[string]any{"type": "comments", "id": "1"},
					},
				},
			},
			"meta": map[string]any{
				"reviewer": map[string]any{"type": "people", "id": "404"},
			},
		},
	}

	assert.Equal(t, []Identifier{
		{Type: "articles", ID: "2"},
		{Type: "comments", ID: "1"},
		{Type: "people", ID: "9"},
	}, CollectIdentifiers(doc))

	assert.Empty(t, CollectIdentifiers(nil))
	assert.Empty(t, CollectIdentifiers(map[string]any{"data": nil}))
}
