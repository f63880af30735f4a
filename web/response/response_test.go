package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantwwu/jsonapi/apierror"
)

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		detail      string
	}{
		{
			name:   "missing",
			detail: "Use the 'application/vnd.api+json' content type.",
		},
		{
			name:        "wrong media type",
			contentType: "application/json",
			detail:      "Use the 'application/vnd.api+json' content type.",
		},
		{
			name:        "unparsable",
			contentType: "not//a/type;;",
			detail:      "Use the 'application/vnd.api+json' content type.",
		},
		{
			name:        "media type parameters",
			contentType: "application/vnd.api+json; charset=utf-8",
			detail:      "The 'application/vnd.api+json' content type must not carry media type parameters.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/articles", nil)
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}
			err := ValidateContentType(r)
			var e *apierror.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, http.StatusUnsupportedMediaType, e.Status)
			assert.Equal(t, apierror.CodeUnsupportedMediaType, e.Code)
			assert.Equal(t, tt.detail, e.Detail)
		})
	}

	r := httptest.NewRequest("POST", "/articles", nil)
	r.Header.Set("Content-Type", MediaType)
	assert.NoError(t, ValidateContentType(r))
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name   string
		accept string
		ok     bool
	}{
		{name: "missing", accept: "", ok: true},
		{name: "wildcard", accept: "*/*", ok: true},
		{name: "foreign media type", accept: "application/json", ok: true},
		{name: "exact", accept: "application/vnd.api+json", ok: true},
		{name: "quality parameter is exempt", accept: "application/vnd.api+json; q=0.9", ok: true},
		{name: "one unparameterized mention passes", accept: "application/vnd.api+json; profile=x, application/vnd.api+json", ok: true},
		{name: "single parameterized mention", accept: "application/vnd.api+json; profile=x", ok: false},
		{name: "every mention parameterized", accept: "application/vnd.api+json; profile=x, text/html", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/articles", nil)
			if tt.accept != "" {
				r.Header.Set("Accept", tt.accept)
			}
			err := Negotiate(r)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var e *apierror.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, http.StatusNotAcceptable, e.Status)
			assert.Equal(t, apierror.CodeNotAcceptable, e.Code)
		})
	}
}

func marshalToMap(t *testing.T, doc *Document) map[string]any {
	t.Helper()
	payload, err := json.Marshal(doc)
	require.NoError(t, err)
	var obj map[string]any
	require.NoError(t, json.Unmarshal(payload, &obj))
	return obj
}

func TestDocumentMarshal(t *testing.T) {
	doc := &Document{}
	payload, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(payload))

	// Null primary data is a populated member.
	doc = &Document{}
	doc.SetData(nil)
	payload, err = json.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"data":null}`, string(payload))

	doc = &Document{
		Included: []any{map[string]any{"type": "people", "id": "1"}},
		JSONAPI:  map[string]any{"version": "1.0"},
	}
	doc.SetData(map[string]any{"type": "articles", "id": "1"})
	doc.SetLink("self", "/articles/1")
	doc.SetMeta("count", 1)
	want := map[string]any{
		"data":     map[string]any{"type": "articles", "id": "1"},
		"included": []any{map[string]any{"type": "people", "id": "1"}},
		"links":    map[string]any{"self": "/articles/1"},
		"meta":     map[string]any{"count": float64(1)},
		"jsonapi":  map[string]any{"version": "1.0"},
	}
	if diff := cmp.Diff(want, marshalToMap(t, doc)); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}

	doc = &Document{Errors: apierror.ErrorList{apierror.NotFound("The resource does not exist.")}}
	want = map[string]any{
		"errors": []any{map[string]any{
			"status": "404",
			"code":   "not_found",
			"title":  "Not found",
			"detail": "The resource does not exist.",
		}},
	}
	if diff := cmp.Diff(want, marshalToMap(t, doc)); diff != "" {
		t.Errorf("errors document mismatch (-want +got):\n%s", diff)
	}
}

func TestDocumentValidate(t *testing.T) {
	doc := &Document{Errors: apierror.ErrorList{apierror.NotFound("gone")}}
	doc.SetData(map[string]any{"type": "articles", "id": "1"})
	_, err := json.Marshal(doc)
	assert.True(t, apierror.IsConfiguration(err))

	doc = &Document{Included: []any{map[string]any{"type": "people", "id": "1"}}}
	_, err = json.Marshal(doc)
	assert.True(t, apierror.IsConfiguration(err))
}

func TestDocumentMerge(t *testing.T) {
	doc := &Document{}
	doc.SetLink("self", "/articles")
	doc.MergeLinks(map[string]any{"self": "/articles?page[number]=1", "next": "/articles?page[number]=2"})
	assert.Equal(t, map[string]any{
		"self": "/articles?page[number]=1",
		"next": "/articles?page[number]=2",
	}, doc.Links)

	doc.SetMeta("size", 25)
	doc.MergeMeta(map[string]any{"total-resources": 50})
	assert.Equal(t, map[string]any{"size": 25, "total-resources": 50}, doc.Meta)
}

func TestWriteDocument(t *testing.T) {
	doc := &Document{}
	doc.SetData(map[string]any{"type": "articles", "id": "7"})

	w := httptest.NewRecorder()
	require.NoError(t, WriteDocument(w, http.StatusCreated, doc))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, MediaType, w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"type":"articles","id":"7"}}`, w.Body.String())
}

func TestWriteDocumentMarshalFailure(t *testing.T) {
	doc := &Document{Errors: apierror.ErrorList{apierror.NotFound("gone")}}
	doc.SetData("conflicting")

	w := httptest.NewRecorder()
	err := WriteDocument(w, http.StatusOK, doc)
	require.Error(t, err)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, MediaType, w.Header().Get("Content-Type"))
	assert.JSONEq(t, internalErrorBody, w.Body.String())
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteError(w, nil, apierror.NotFound("The resource 'articles/9' does not exist."), false))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, MediaType, w.Header().Get("Content-Type"))

	var body struct {
		Errors []struct {
			Status string `json:"status"`
			Code   string `json:"code"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "404", body.Errors[0].Status)
	assert.Equal(t, apierror.CodeNotFound, body.Errors[0].Code)
	assert.Equal(t, "The resource 'articles/9' does not exist.", body.Errors[0].Detail)
}

func TestWriteErrorList(t *testing.T) {
	list := apierror.ErrorList{
		apierror.InvalidValue("Must be an integer >= 1.", "").WithParameter("page[number]"),
		apierror.InvalidType("Must be a string.", "/data/id"),
	}

	w := httptest.NewRecorder()
	require.NoError(t, WriteError(w, nil, list, false))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Errors []json.RawMessage `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Errors, 2)
}

func TestWriteErrorOpaque(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteError(w, nil, errors.New("pipe burst"), false))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "An unexpected error occurred.")
	assert.NotContains(t, w.Body.String(), "pipe burst")

	w = httptest.NewRecorder()
	require.NoError(t, WriteError(w, nil, errors.New("pipe burst"), true))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "pipe burst")
}
