package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcherFetchesItemsAndCursor(t *testing.T) {
	var gotCursor, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCursor = r.URL.Query().Get("cursor")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [
				{"id": "i-1", "source_type": "weather", "raw_content": "cyclone warning"},
				{"event_id": "e-2", "raw_content": "port closed"}
			],
			"next_cursor": "page-2"
		}`))
	}))
	t.Cleanup(srv.Close)

	fetch := NewHTTPFetcher(srv.Client())
	cfg := ProviderConfig{"url": srv.URL, "auth_token": "tok"}

	items, next, err := fetch(context.Background(), cfg, "page-1")
	require.NoError(t, err)
	assert.Equal(t, "page-1", gotCursor)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "page-2", next)

	require.Len(t, items, 2)
	assert.Equal(t, "i-1", items[0].ID)
	assert.Equal(t, "cyclone warning", items[0].Data["raw_content"])
	// event_id stands in when the provider has no id field.
	assert.Equal(t, "e-2", items[1].ID)
}

func TestHTTPFetcherErrors(t *testing.T) {
	t.Run("missing url", func(t *testing.T) {
		_, _, err := NewHTTPFetcher(nil)(context.Background(), ProviderConfig{}, "")
		assert.ErrorContains(t, err, "no url")
	})

	t.Run("non-200 status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		t.Cleanup(srv.Close)

		_, _, err := NewHTTPFetcher(srv.Client())(context.Background(), ProviderConfig{"url": srv.URL}, "")
		assert.ErrorContains(t, err, "unexpected status 503")
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"items": [`))
		}))
		t.Cleanup(srv.Close)

		_, _, err := NewHTTPFetcher(srv.Client())(context.Background(), ProviderConfig{"url": srv.URL}, "")
		assert.ErrorContains(t, err, "decoding response")
	})
}

func TestContentVersionStableAcrossPolls(t *testing.T) {
	a := Item{ID: "i-1", Data: map[string]any{"observation": "clear", "station": "mum-01"}}
	b := Item{ID: "i-1", Data: map[string]any{"station": "mum-01", "observation": "clear"}}
	changed := Item{ID: "i-1", Data: map[string]any{"observation": "cyclone", "station": "mum-01"}}

	// Key order does not matter; content does.
	assert.Equal(t, ContentVersion(a), ContentVersion(b))
	assert.NotEqual(t, ContentVersion(a), ContentVersion(changed))
}

func TestRawSignalTransformPassesFieldsThrough(t *testing.T) {
	raw, err := RawSignalTransform(Item{
		ID:   "i-1",
		Data: map[string]any{"source_type": "weather", "raw_content": "cyclone"},
	})
	require.NoError(t, err)
	assert.Equal(t, "weather", raw.String("source_type"))
	assert.Equal(t, "i-1", raw.String("event_id"))

	// A provider-supplied event id wins over the item id.
	raw, err = RawSignalTransform(Item{
		ID:   "i-2",
		Data: map[string]any{"event_id": "e-9"},
	})
	require.NoError(t, err)
	assert.Equal(t, "e-9", raw.String("event_id"))
}
