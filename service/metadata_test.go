package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "isbn:0441013597", r.URL.Query().Get("q"))
		w.Write([]byte(`{"totalItems":1,"items":[{"volumeInfo":{
			"title":"Dune","subtitle":"Deluxe Edition","authors":["Frank Herbert","Brian Herbert"],
			"publisher":"Ace","publishedDate":"2005-08-02","description":" Desert planet. ",
			"categories":["Fiction"],
			"industryIdentifiers":[{"type":"ISBN_10","identifier":"0441013597"},{"type":"ISBN_13","identifier":"9780441013593"}]}}]}`))
	}))
	defer srv.Close()
	c := &MetadataClient{HTTP: srv.Client(), BaseURL: srv.URL}

	meta, err := c.Fetch(context.Background(), "0-441-01359-7")

	require.NoError(t, err)
	assert.Equal(t, &BookMetadata{
		ISBN:        "9780441013593",
		Title:       "Dune: Deluxe Edition",
		Author:      "Frank Herbert, Brian Herbert",
		Category:    "Fiction",
		Publisher:   "Ace",
		PublishYear: 2005,
		Description: "Desert planet.",
		CoverURL:    "https://covers.openlibrary.org/b/isbn/9780441013593-L.jpg",
	}, meta)
}

func TestMetadataClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalItems":0}`))
	}))
	defer srv.Close()
	c := &MetadataClient{HTTP: srv.Client(), BaseURL: srv.URL}

	_, err := c.Fetch(context.Background(), "123")

	assert.ErrorIs(t, err, ErrMetadataNotFound)
}

func TestMetadataClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := &MetadataClient{HTTP: srv.Client(), BaseURL: srv.URL}

	_, err := c.Fetch(context.Background(), "123")

	assert.EqualError(t, err, "google books returned 503")
}
