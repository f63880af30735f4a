package memstore

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantwwu/jsonapi"
	"github.com/grantwwu/jsonapi/apierror"
	"github.com/grantwwu/jsonapi/pagination"
	"github.com/grantwwu/jsonapi/schema"
)

type article struct {
	ID       string
	Title    string
	Rating   int
	Comments []schema.Identifier
}

type comment struct {
	ID   string
	Body string
}

func articleSchema(t *testing.T, store *Store) *schema.Schema {
	t.Helper()
	s, err := schema.New(schema.Config{
		Type:     "articles",
		Resource: article{},
		Fields: []schema.Field{
			schema.NewID(schema.NewString("id")),
			schema.NewString("title"),
			schema.NewInteger("rating"),
			schema.NewToMany("comments", schema.ForeignTypes("comments")),
		},
		Store: store,
	})
	require.NoError(t, err)
	return s
}

func commentSchema(t *testing.T, store *Store) *schema.Schema {
	t.Helper()
	s, err := schema.New(schema.Config{
		Type:     "comments",
		Resource: comment{},
		Fields: []schema.Field{
			schema.NewID(schema.NewString("id")),
			schema.NewString("body"),
		},
		Store: store,
	})
	require.NoError(t, err)
	return s
}

func seedArticles(t *testing.T, st *Store, s *schema.Schema) {
	t.Helper()
	require.NoError(t, st.Add(s,
		&article{ID: "3", Title: "Go", Rating: 2},
		&article{ID: "1", Title: "Go", Rating: 10},
		&article{ID: "2", Title: "Rust", Rating: 1},
	))
}

func TestPutResourceRemove(t *testing.T) {
	st := New()
	s := articleSchema(t, st)
	ctx := context.Background()

	st.Put("articles", "1", &article{ID: "1", Title: "One"})
	assert.Equal(t, 1, st.Len("articles"))

	r, err := st.Resource(ctx, s, "1", nil)
	require.NoError(t, err)
	assert.Equal(t, "One", r.(*article).Title)

	_, err = st.Resource(ctx, s, "9", nil)
	require.Error(t, err)
	assert.True(t, apierror.IsNotFound(err))
	assert.Contains(t, err.Error(), "The resource 'articles/9' does not exist.")

	assert.True(t, st.Remove("articles", "1"))
	assert.False(t, st.Remove("articles", "1"))
	assert.Equal(t, 0, st.Len("articles"))
	assert.False(t, st.Remove("people", "1"))
}

func TestAdd(t *testing.T) {
	st := New()
	s := articleSchema(t, st)

	require.NoError(t, st.Add(s, &article{ID: "1"}, &article{ID: "2"}))
	assert.Equal(t, 2, st.Len("articles"))

	assert.Error(t, st.Add(s, "not an article"))
}

func TestReset(t *testing.T) {
	st := New()
	st.Put("articles", "1", &article{ID: "1"})
	st.Put("comments", "1", &comment{ID: "1"})

	st.Reset()
	assert.Equal(t, 0, st.Len("articles"))
	assert.Equal(t, 0, st.Len("comments"))
}

func TestCollectionInsertionOrder(t *testing.T) {
	st := New()
	s := articleSchema(t, st)
	seedArticles(t, st, s)
	ctx := context.Background()

	items, err := st.Collection(ctx, s, nil)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "3", items[0].(*article).ID)
	assert.Equal(t, "1", items[1].(*article).ID)
	assert.Equal(t, "2", items[2].(*article).ID)

	// Replacing a resource keeps its position.
	st.Put("articles", "1", &article{ID: "1", Title: "Replaced"})
	items, err = st.Collection(ctx, s, nil)
	require.NoError(t, err)
	assert.Equal(t, "Replaced", items[1].(*article).Title)

	empty, err := st.Collection(ctx, commentSchema(t, st), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCollectionFilter(t *testing.T) {
	st := New()
	s := articleSchema(t, st)
	seedArticles(t, st, s)
	ctx := context.Background()

	items, err := st.Collection(ctx, s, &schema.Query{
		Filters: map[string]string{"title": "Go"},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	// Numeric fields match against their encoded form.
	items, err = st.Collection(ctx, s, &schema.Query{
		Filters: map[string]string{"rating": "10"},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "1", items[0].(*article).ID)

	// Filters combine conjunctively; id addresses the resource id.
	items, err = st.Collection(ctx, s, &schema.Query{
		Filters: map[string]string{"title": "Go", "id": "3"},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "3", items[0].(*article).ID)

	_, err = st.Collection(ctx, s, &schema.Query{
		Filters: map[string]string{"bogus": "x"},
	})
	require.Error(t, err)
	var ae *apierror.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apierror.CodeInvalidValue, ae.Code)
	assert.Equal(t, "The type 'articles' has no attribute 'bogus'.", ae.Detail)
	assert.Equal(t, "filter[bogus]", ae.SourceParameter)
}

func TestCollectionSort(t *testing.T) {
	st := New()
	s := articleSchema(t, st)
	seedArticles(t, st, s)
	ctx := context.Background()

	// Integers order numerically, not by their string form.
	items, err := st.Collection(ctx, s, &schema.Query{
		Sort: []schema.SortField{{Name: "rating"}},
	})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, 1, items[0].(*article).Rating)
	assert.Equal(t, 2, items[1].(*article).Rating)
	assert.Equal(t, 10, items[2].(*article).Rating)

	items, err = st.Collection(ctx, s, &schema.Query{
		Sort: []schema.SortField{{Name: "rating", Desc: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, items[0].(*article).Rating)

	// Secondary keys break ties; the sort is stable per priority.
	items, err = st.Collection(ctx, s, &schema.Query{
		Sort: []schema.SortField{{Name: "title"}, {Name: "rating", Desc: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, "1", items[0].(*article).ID)
	assert.Equal(t, "3", items[1].(*article).ID)
	assert.Equal(t, "2", items[2].(*article).ID)

	_, err = st.Collection(ctx, s, &schema.Query{
		Sort: []schema.SortField{{Name: "bogus"}},
	})
	require.Error(t, err)
	var ae *apierror.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "sort", ae.SourceParameter)
}

func TestCollectionPaginate(t *testing.T) {
	st := New()
	s := articleSchema(t, st)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		st.Put("articles", id, &article{ID: id})
	}

	page := func(t *testing.T, target string) *pagination.NumberSizePage {
		t.Helper()
		p, err := pagination.NumberSize(pagination.Limits{})(httptest.NewRequest("GET", target, nil))
		require.NoError(t, err)
		return p.(*pagination.NumberSizePage)
	}

	p := page(t, "/api/articles?page[number]=2&page[size]=2")
	items, err := st.Collection(ctx, s, &schema.Query{Page: p})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "3", items[0].(*article).ID)
	assert.Equal(t, "4", items[1].(*article).ID)

	// The store reports the filtered total to the pager.
	assert.Equal(t, 5, p.Meta()["total-resources"])

	// The final page is short, a window past the end is empty.
	p = page(t, "/api/articles?page[number]=3&page[size]=2")
	items, err = st.Collection(ctx, s, &schema.Query{Page: p})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "5", items[0].(*article).ID)

	p = page(t, "/api/articles?page[number]=9&page[size]=2")
	items, err = st.Collection(ctx, s, &schema.Query{Page: p})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDeleter(t *testing.T) {
	st := New()
	st.Put("articles", "1", &article{ID: "1"})
	ctx := context.Background()

	del := st.Deleter("articles")
	require.NoError(t, del(ctx, "1"))
	assert.Equal(t, 0, st.Len("articles"))

	err := del(ctx, "1")
	require.Error(t, err)
	assert.True(t, apierror.IsNotFound(err))
}

func TestSave(t *testing.T) {
	st := New()
	s := articleSchema(t, st)
	ctx := context.Background()

	require.NoError(t, st.Save(ctx, s, &article{ID: "9", Title: "Nine"}))
	r, err := st.Resource(ctx, s, "9", nil)
	require.NoError(t, err)
	assert.Equal(t, "Nine", r.(*article).Title)
}

func TestRelatives(t *testing.T) {
	st := New()
	articles := articleSchema(t, st)
	comments := commentSchema(t, st)

	api := jsonapi.New("/api")
	api.MustAddSchema(articles, comments)

	require.NoError(t, st.Add(comments,
		&comment{ID: "1", Body: "beta"},
		&comment{ID: "2", Body: "alpha"},
	))
	a := &article{ID: "1", Comments: []schema.Identifier{
		{Type: "comments", ID: "2"},
		{Type: "comments", ID: "1"},
	}}
	require.NoError(t, st.Add(articles, a))
	ctx := context.Background()

	// Unshaped, the relatives follow the linkage order.
	relatives, err := st.Relatives(ctx, articles, a, "comments", nil)
	require.NoError(t, err)
	require.Len(t, relatives, 2)
	assert.Equal(t, "2", relatives[0].(*comment).ID)

	// All relatives share one type, so the query shapes them through
	// that type's schema.
	relatives, err = st.Relatives(ctx, articles, a, "comments", &schema.Query{
		Sort: []schema.SortField{{Name: "body"}},
	})
	require.NoError(t, err)
	require.Len(t, relatives, 2)
	assert.Equal(t, "alpha", relatives[0].(*comment).Body)
	assert.Equal(t, "beta", relatives[1].(*comment).Body)

	relatives, err = st.Relatives(ctx, articles, a, "comments", &schema.Query{
		Filters: map[string]string{"body": "beta"},
	})
	require.NoError(t, err)
	require.Len(t, relatives, 1)
	assert.Equal(t, "1", relatives[0].(*comment).ID)

	_, err = st.Relatives(ctx, articles, a, "bogus", nil)
	assert.True(t, apierror.IsNotFound(err))
}

// Relatives that resolve without a bound API cannot be shaped; sorting
// is skipped but pagination still applies.
func TestRelativesUnshaped(t *testing.T) {
	type linkedArticle struct {
		ID       string
		Comments []*comment
	}
	st := New()
	s, err := schema.New(schema.Config{
		Type:     "articles",
		Resource: linkedArticle{},
		Fields: []schema.Field{
			schema.NewID(schema.NewString("id")),
			schema.NewToMany("comments"),
		},
		Store: st,
	})
	require.NoError(t, err)
	ctx := context.Background()

	a := &linkedArticle{ID: "1", Comments: []*comment{
		{ID: "1", Body: "beta"},
		{ID: "2", Body: "alpha"},
	}}

	relatives, err := st.Relatives(ctx, s, a, "comments", &schema.Query{
		Sort: []schema.SortField{{Name: "body"}},
	})
	require.NoError(t, err)
	require.Len(t, relatives, 2)
	assert.Equal(t, "beta", relatives[0].(*comment).Body, "the linkage order survives")

	p, err := pagination.LimitOffset(pagination.Limits{})(
		httptest.NewRequest("GET", "/api/articles/1/comments?page[limit]=1&page[offset]=1", nil))
	require.NoError(t, err)
	relatives, err = st.Relatives(ctx, s, a, "comments", &schema.Query{Page: p})
	require.NoError(t, err)
	require.Len(t, relatives, 1)
	assert.Equal(t, "alpha", relatives[0].(*comment).Body)
}
