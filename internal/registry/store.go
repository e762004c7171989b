// Package registry tracks which model deployments are currently servable.
//
// Instances running in llm mode register their deploy names with an agent;
// the agent answers routing queries only from registrations younger than the
// configured freshness window, so a crashed instance falls out of rotation
// without any explicit deregistration.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dockhardman/General-LLM-Stack/internal/domain"
)

// ErrModelNotFound indicates no registration matched the query.
var ErrModelNotFound = errors.New("model not found")

// Store persists model registrations.
//
// Register upserts a record keyed by (id, owned_by) and stamps it with the
// current time. List returns registrations filtered by id (empty matches
// all); freshness is the caller's concern, via domain.Model.FreshAt. Sweep
// removes registrations older than the cutoff and reports how many were
// removed, keeping the table bounded.
type Store interface {
	Register(ctx context.Context, model domain.Model) error
	List(ctx context.Context, id string) ([]domain.Model, error)
	Sweep(ctx context.Context, olderThan time.Time) (int64, error)
}

// memoryStore keeps registrations in a map. It backs single-process
// deployments and tests; multi-instance agents use the database store.
type memoryStore struct {
	mu     sync.Mutex
	models map[string]domain.Model
	now    func() time.Time
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{
		models: make(map[string]domain.Model),
		now:    time.Now,
	}
}

func registrationKey(id, ownedBy string) string {
	return id + "\x00" + ownedBy
}

func (s *memoryStore) Register(_ context.Context, model domain.Model) error {
	if err := model.Validate(); err != nil {
		return fmt.Errorf("invalid model registration: %w", err)
	}

	model.Object = "model"
	model.Created = s.now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[registrationKey(model.ID, model.OwnedBy)] = model
	return nil
}

func (s *memoryStore) List(_ context.Context, id string) ([]domain.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Model
	for _, m := range s.models {
		if id != "" && m.ID != id {
			continue
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].OwnedBy < out[j].OwnedBy
	})
	return out, nil
}

func (s *memoryStore) Sweep(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, m := range s.models {
		if m.Created < olderThan.Unix() {
			delete(s.models, key)
			removed++
		}
	}
	return removed, nil
}
