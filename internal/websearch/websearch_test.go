package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsPage = `<!DOCTYPE html>
<html><body>
<ol id="b_results">
  <li class="b_algo">
    <h2><a href="https://go.dev/">The Go Programming Language</a></h2>
    <div class="b_caption"><p>Build simple, secure, scalable systems with Go.</p></div>
  </li>
  <li class="b_ad">
    <h2><a href="https://ads.example.com/">Sponsored</a></h2>
    <p>An advertisement.</p>
  </li>
  <li class="b_algo">
    <h2><a href="https://go.dev/doc/">Documentation</a></h2>
    <div class="b_caption"><p>Learn how to  use Go.</p></div>
  </li>
  <li class="b_algo">
    <h2>No link here</h2>
    <p>Result without an anchor is dropped.</p>
  </li>
  <li class="b_algo">
    <h2><a href="https://example.com/bare">Bare result</a></h2>
  </li>
</ol>
</body></html>`

func TestParseResults(t *testing.T) {
	results, err := ParseResults(strings.NewReader(resultsPage))
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, SearchResult{
		URL:         "https://go.dev/",
		Title:       "The Go Programming Language",
		Description: "Build simple, secure, scalable systems with Go.",
	}, results[0])
	assert.Equal(t, "https://go.dev/doc/", results[1].URL)
}

func TestParseResults_EmptyPage(t *testing.T) {
	results, err := ParseResults(strings.NewReader("<html><body></body></html>"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEscapeQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "plain", query: "golang tutorial", want: "golang tutorial"},
		{name: "whitespace runs", query: "  golang \t tutorial \n", want: "golang tutorial"},
		{name: "quotes dropped", query: `"golang" 'tutorial'`, want: "golang tutorial"},
		{name: "empty", query: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeQuery(tt.query))
		})
	}
}

func TestClient_Search(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		require.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(resultsPage))
	}))
	defer server.Close()

	client := NewClient(nil, WithEndpoint(server.URL))

	results, err := client.Search(context.Background(), `  "golang"  tutorial `, 10)
	require.NoError(t, err)

	assert.Equal(t, "golang tutorial", gotQuery)
	require.Len(t, results, 2)
}

func TestClient_Search_Limit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(resultsPage))
	}))
	defer server.Close()

	client := NewClient(nil, WithEndpoint(server.URL))

	results, err := client.Search(context.Background(), "golang", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestClient_Search_EmptyQuery(t *testing.T) {
	client := NewClient(nil)

	_, err := client.Search(context.Background(), `""`, 10)
	require.ErrorIs(t, err, ErrEmptyQuery)
}

func TestClient_Search_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "blocked", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(nil, WithEndpoint(server.URL))

	_, err := client.Search(context.Background(), "golang", 10)
	require.ErrorIs(t, err, ErrSearchFailed)
}
