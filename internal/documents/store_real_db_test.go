//go:build integration
// +build integration

package documents

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dockhardman/General-LLM-Stack/internal/domain"
)

// stubEmbedder maps content to fixed vectors so similarity is predictable.
type stubEmbedder struct {
	vectors map[string][]float64
	calls   int
}

func (s *stubEmbedder) Embeddings(_ context.Context, req *domain.EmbeddingRequest) (*domain.CreateEmbeddingResponse, error) {
	s.calls++
	text := req.Input[0]
	vec, ok := s.vectors[text]
	if !ok {
		vec = []float64{0, 0, 1}
	}
	return &domain.CreateEmbeddingResponse{
		Object: "list",
		Model:  req.Model,
		Data: []domain.Embedding{
			{Object: "embedding", Index: 0, Embedding: vec},
		},
	}, nil
}

func setupPostgres(t testing.TB) *gorm.DB {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "documents_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=documents_test sslmode=disable",
		host, port.Port())
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func setupStore(t testing.TB, embedder Embedder) *Store {
	db := setupPostgres(t)
	store, err := NewStore(db, embedder, "text-embedding-3-small", nil)
	require.NoError(t, err)
	require.NoError(t, store.Touch(context.Background()))
	return store
}

func TestStore_CreateRetrieveDelete(t *testing.T) {
	store := setupStore(t, &stubEmbedder{})
	ctx := context.Background()

	doc, err := store.Create(ctx, "greeting", "hello world", Metadata{"lang": "en"})
	require.NoError(t, err)

	got, err := store.Retrieve(ctx, doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, doc.Name, got.Name)
	assert.Equal(t, doc.ContentMD5, got.ContentMD5)
	assert.Equal(t, "en", got.Metadata["lang"])

	require.NoError(t, store.Delete(ctx, doc.DocumentID))

	_, err = store.Retrieve(ctx, doc.DocumentID)
	require.ErrorIs(t, err, ErrDocumentNotFound)

	err = store.Delete(ctx, doc.DocumentID)
	require.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestStore_SyncEmbedsOnlyStale(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float64{}}
	store := setupStore(t, embedder)
	ctx := context.Background()

	doc, err := store.Create(ctx, "greeting", "hello world", nil)
	require.NoError(t, err)

	synced, err := store.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	assert.Equal(t, 1, embedder.calls)

	// Fresh points are not re-embedded.
	synced, err = store.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, synced)
	assert.Equal(t, 1, embedder.calls)

	// A content change invalidates the point.
	_, err = store.Update(ctx, doc.DocumentID, "goodbye world", nil)
	require.NoError(t, err)

	synced, err = store.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	assert.Equal(t, 2, embedder.calls)
}

func TestStore_SearchRanksByCosine(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float64{
		"cats are great":   {1, 0, 0},
		"dogs are loyal":   {0.7, 0.7, 0},
		"stock prices":     {0, 0, 1},
		"tell me about cats": {0.9, 0.1, 0},
	}}
	store := setupStore(t, embedder)
	ctx := context.Background()

	for _, content := range []string{"cats are great", "dogs are loyal", "stock prices"} {
		_, err := store.Create(ctx, content, content, nil)
		require.NoError(t, err)
	}
	_, err := store.Sync(ctx)
	require.NoError(t, err)

	results, err := store.Search(ctx, "tell me about cats", 2)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "cats are great", results[0].Document.Content)
	assert.Equal(t, "dogs are loyal", results[1].Document.Content)
	assert.Greater(t, results[0].Score, results[1].Score)
}
