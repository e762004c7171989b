package documents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocument(t *testing.T) {
	doc, err := NewDocument("greeting", "hello world", Metadata{"lang": "en"})
	require.NoError(t, err)

	assert.True(t, len(doc.DocumentID) > len("doc-"))
	assert.Equal(t, "greeting", doc.Name)
	assert.Equal(t, HashContent("hello world"), doc.ContentMD5)
	assert.Equal(t, doc.CreatedAt, doc.UpdatedAt)
	assert.NotZero(t, doc.CreatedAt)
}

func TestNewDocument_Validation(t *testing.T) {
	long := make([]byte, MaxContentLength+1)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name    string
		docName string
		content string
	}{
		{name: "empty name", docName: "", content: "text"},
		{name: "empty content", docName: "doc", content: ""},
		{name: "content too long", docName: "doc", content: string(long)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDocument(tt.docName, tt.content, nil)
			require.Error(t, err)
		})
	}
}

func TestHashContent(t *testing.T) {
	// Known md5 of "hello world".
	assert.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", HashContent("hello world"))
	assert.NotEqual(t, HashContent("a"), HashContent("b"))
}

func TestPointStale(t *testing.T) {
	doc, err := NewDocument("doc", "original", nil)
	require.NoError(t, err)

	point := Point{ContentMD5: doc.ContentMD5}
	assert.False(t, point.Stale(doc))

	doc.Content = "revised"
	doc.ContentMD5 = HashContent(doc.Content)
	assert.True(t, point.Stale(doc))
}

func TestVectorRoundTrip(t *testing.T) {
	original := Vector{0.1, -0.2, 0.3}

	value, err := original.Value()
	require.NoError(t, err)

	var decoded Vector
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, original, decoded)

	var fromString Vector
	require.NoError(t, fromString.Scan("[1,2,3]"))
	assert.Equal(t, Vector{1, 2, 3}, fromString)

	var fromNil Vector
	require.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)

	require.Error(t, fromNil.Scan(42))
}

func TestMetadataRoundTrip(t *testing.T) {
	original := Metadata{"lang": "en", "rank": float64(3)}

	value, err := original.Value()
	require.NoError(t, err)

	var decoded Metadata
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, original, decoded)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
		ok   bool
	}{
		{name: "identical", a: []float64{1, 2, 3}, b: []float64{1, 2, 3}, want: 1, ok: true},
		{name: "orthogonal", a: []float64{1, 0}, b: []float64{0, 1}, want: 0, ok: true},
		{name: "opposite", a: []float64{1, 0}, b: []float64{-1, 0}, want: -1, ok: true},
		{name: "length mismatch", a: []float64{1, 2}, b: []float64{1}, ok: false},
		{name: "empty", a: nil, b: nil, ok: false},
		{name: "zero magnitude", a: []float64{0, 0}, b: []float64{1, 1}, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CosineSimilarity(tt.a, tt.b)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}
