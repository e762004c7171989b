package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dockhardman/General-LLM-Stack/internal/domain"
)

// modelRecord maps a registration row. The composite primary key lets the
// same deploy name be registered by multiple serving instances.
type modelRecord struct {
	ID      string `gorm:"column:id;primaryKey"`
	OwnedBy string `gorm:"column:owned_by;primaryKey"`
	Created int64  `gorm:"column:created;index"`
}

func (modelRecord) TableName() string { return "model_registrations" }

type gormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore migrates the registrations table and returns a Store backed
// by db.
func NewGormStore(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, errors.New("nil gorm DB passed to registry store")
	}
	if err := db.AutoMigrate(&modelRecord{}); err != nil {
		return nil, fmt.Errorf("migrate model registrations: %w", err)
	}
	return &gormStore{db: db, now: time.Now}, nil
}

func (s *gormStore) Register(ctx context.Context, model domain.Model) error {
	if err := model.Validate(); err != nil {
		return fmt.Errorf("invalid model registration: %w", err)
	}

	record := modelRecord{
		ID:      model.ID,
		OwnedBy: model.OwnedBy,
		Created: s.now().Unix(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}, {Name: "owned_by"}},
			DoUpdates: clause.AssignmentColumns([]string{"created"}),
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("register model %s: %w", model.ID, err)
	}
	return nil
}

func (s *gormStore) List(ctx context.Context, id string) ([]domain.Model, error) {
	query := s.db.WithContext(ctx).Model(&modelRecord{})
	if id != "" {
		query = query.Where("id = ?", id)
	}

	var records []modelRecord
	if err := query.Order("id, owned_by").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list model registrations: %w", err)
	}

	models := make([]domain.Model, 0, len(records))
	for _, r := range records {
		models = append(models, domain.Model{
			ID:      r.ID,
			Object:  "model",
			Created: r.Created,
			OwnedBy: r.OwnedBy,
		})
	}
	return models, nil
}

func (s *gormStore) Sweep(ctx context.Context, olderThan time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("created < ?", olderThan.Unix()).
		Delete(&modelRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("sweep model registrations: %w", result.Error)
	}
	return result.RowsAffected, nil
}
