package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/maheshrc27/autoposter/internal/models"
)

// PostingHistoryRepository is the append-only posted log, capped at the most recent entries.
type PostingHistoryRepository interface {
	Load(ctx context.Context) error
	Create(ctx context.Context, ph *models.PostingHistory) error
	List() []models.PostingHistory
}

type postingHistoryRepository struct {
	store DocumentStore
	name  string
	limit int

	mu      sync.Mutex
	entries []models.PostingHistory
}

func NewPostingHistoryRepository(store DocumentStore, name string, limit int) PostingHistoryRepository {
	return &postingHistoryRepository{store: store, name: name, limit: limit}
}

func (r *postingHistoryRepository) Load(ctx context.Context) error {
	var entries []models.PostingHistory
	if _, err := r.store.Load(ctx, r.name, &entries); err != nil {
		return err
	}
	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
	return nil
}

func (r *postingHistoryRepository) Create(ctx context.Context, ph *models.PostingHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, *ph)
	if r.limit > 0 && len(r.entries) > r.limit {
		r.entries = append([]models.PostingHistory(nil), r.entries[len(r.entries)-r.limit:]...)
	}
	if err := r.store.Save(ctx, r.name, r.entries); err != nil {
		return fmt.Errorf("flush posting history: %w", err)
	}
	return nil
}

func (r *postingHistoryRepository) List() []models.PostingHistory {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.PostingHistory, len(r.entries))
	copy(out, r.entries)
	return out
}
