package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dockhardman/General-LLM-Stack/internal/domain"
)

// Embedder is the slice of the llm client the store needs.
type Embedder interface {
	Embeddings(ctx context.Context, req *domain.EmbeddingRequest) (*domain.CreateEmbeddingResponse, error)
}

// SearchResult pairs a matched document with its similarity score.
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// Store persists documents and their embedding points.
type Store struct {
	db         *gorm.DB
	embedder   Embedder
	embedModel string
	logger     *slog.Logger
}

// NewStore returns a Store over db that embeds with embedModel. Touch must
// be called before first use.
func NewStore(db *gorm.DB, embedder Embedder, embedModel string, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("nil gorm DB passed to documents store")
	}
	if embedder == nil {
		return nil, errors.New("nil embedder passed to documents store")
	}
	if embedModel == "" {
		return nil, errors.New("documents store requires an embedding model")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:         db,
		embedder:   embedder,
		embedModel: embedModel,
		logger:     logger.With("component", "documents"),
	}, nil
}

// Touch migrates the documents and points tables.
func (s *Store) Touch(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Document{}, &Point{}); err != nil {
		return fmt.Errorf("migrate documents tables: %w", err)
	}
	return nil
}

// Create stores a new document. Points are created lazily by Sync.
func (s *Store) Create(ctx context.Context, name, content string, metadata Metadata) (Document, error) {
	doc, err := NewDocument(name, content, metadata)
	if err != nil {
		return Document{}, err
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return Document{}, fmt.Errorf("create document %s: %w", name, err)
	}
	return doc, nil
}

// Retrieve loads a document by id.
func (s *Store) Retrieve(ctx context.Context, documentID string) (Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).First(&doc, "document_id = ?", documentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return Document{}, fmt.Errorf("retrieve document %s: %w", documentID, err)
	}
	return doc, nil
}

// RetrievePoint loads a point by id. The embedding column is skipped
// unless withEmbedding is set.
func (s *Store) RetrievePoint(ctx context.Context, pointID string, withEmbedding bool) (Point, error) {
	query := s.db.WithContext(ctx)
	if !withEmbedding {
		query = query.Select("point_id", "document_id", "content_md5")
	}

	var point Point
	err := query.First(&point, "point_id = ?", pointID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Point{}, fmt.Errorf("%w: %s", ErrPointNotFound, pointID)
	}
	if err != nil {
		return Point{}, fmt.Errorf("retrieve point %s: %w", pointID, err)
	}
	return point, nil
}

// List returns up to limit documents ordered by creation time. A limit of
// zero or less returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Document, error) {
	query := s.db.WithContext(ctx).Order("created_at, document_id")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var docs []Document
	if err := query.Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Update replaces a document's content and metadata, recomputing the
// content hash. Existing points become stale until the next Sync.
func (s *Store) Update(ctx context.Context, documentID, content string, metadata Metadata) (Document, error) {
	if content == "" {
		return Document{}, errEmptyContent
	}
	if len(content) > MaxContentLength {
		return Document{}, errContentTooLong
	}

	doc, err := s.Retrieve(ctx, documentID)
	if err != nil {
		return Document{}, err
	}

	doc.Content = content
	doc.ContentMD5 = HashContent(content)
	if metadata != nil {
		doc.Metadata = metadata
	}
	doc.UpdatedAt = time.Now().Unix()

	if err := s.db.WithContext(ctx).Save(&doc).Error; err != nil {
		return Document{}, fmt.Errorf("update document %s: %w", documentID, err)
	}
	return doc, nil
}

// Delete removes a document and all of its points.
func (s *Store) Delete(ctx context.Context, documentID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&Document{}, "document_id = ?", documentID)
		if result.Error != nil {
			return fmt.Errorf("delete document %s: %w", documentID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
		}
		if err := tx.Delete(&Point{}, "document_id = ?", documentID).Error; err != nil {
			return fmt.Errorf("delete points for %s: %w", documentID, err)
		}
		return nil
	})
}

// Sync re-embeds every document whose points are missing or stale. It
// returns the number of documents embedded.
func (s *Store) Sync(ctx context.Context) (int, error) {
	docs, err := s.List(ctx, 0)
	if err != nil {
		return 0, err
	}

	var synced int
	for _, doc := range docs {
		var fresh int64
		err := s.db.WithContext(ctx).Model(&Point{}).
			Where("document_id = ? AND content_md5 = ?", doc.DocumentID, doc.ContentMD5).
			Count(&fresh).Error
		if err != nil {
			return synced, fmt.Errorf("count points for %s: %w", doc.DocumentID, err)
		}
		if fresh > 0 {
			continue
		}

		if err := s.embedDocument(ctx, doc); err != nil {
			return synced, err
		}
		synced++
	}

	if synced > 0 {
		s.logger.Info("documents synced", "embedded", synced, "total", len(docs))
	}
	return synced, nil
}

func (s *Store) embedDocument(ctx context.Context, doc Document) error {
	embedding, err := s.embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embed document %s: %w", doc.DocumentID, err)
	}

	point := Point{
		PointID:    "pt-" + uuid.NewString(),
		DocumentID: doc.DocumentID,
		ContentMD5: doc.ContentMD5,
		Embedding:  embedding,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Stale points are replaced, not accumulated.
		if err := tx.Delete(&Point{}, "document_id = ?", doc.DocumentID).Error; err != nil {
			return fmt.Errorf("drop stale points for %s: %w", doc.DocumentID, err)
		}
		if err := tx.Create(&point).Error; err != nil {
			return fmt.Errorf("create point for %s: %w", doc.DocumentID, err)
		}
		return nil
	})
}

// Search embeds the query and returns the top documents by cosine
// similarity over their current points. Stale points never match; run Sync
// after content changes.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if query == "" {
		return nil, errors.New("search query must not be empty")
	}
	if limit <= 0 {
		limit = 10
	}

	queryVec, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var points []Point
	if err := s.db.WithContext(ctx).Find(&points).Error; err != nil {
		return nil, fmt.Errorf("load points: %w", err)
	}

	type scored struct {
		documentID string
		score      float64
	}
	best := make(map[string]float64)
	for _, p := range points {
		score, ok := CosineSimilarity(queryVec, p.Embedding)
		if !ok {
			continue
		}
		if prev, seen := best[p.DocumentID]; !seen || score > prev {
			best[p.DocumentID] = score
		}
	}

	ranked := make([]scored, 0, len(best))
	for id, score := range best {
		ranked = append(ranked, scored{documentID: id, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].documentID < ranked[j].documentID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	results := make([]SearchResult, 0, len(ranked))
	for _, r := range ranked {
		doc, err := s.Retrieve(ctx, r.documentID)
		if err != nil {
			// A point whose document vanished mid-search is skipped.
			if errors.Is(err, ErrDocumentNotFound) {
				continue
			}
			return nil, err
		}
		results = append(results, SearchResult{Document: doc, Score: r.score})
	}
	return results, nil
}

func (s *Store) embed(ctx context.Context, text string) (Vector, error) {
	resp, err := s.embedder.Embeddings(ctx, &domain.EmbeddingRequest{
		Model: s.embedModel,
		Input: domain.EmbeddingInput{text},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response carried no vectors")
	}
	return Vector(resp.Data[0].Embedding), nil
}
