package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/autoposter/internal/models"
)

// SeenRepository is a coarse, time-boxed dedup of remote item ids.
type SeenRepository interface {
	Load(ctx context.Context) error
	MarkSeen(ctx context.Context, id string) error
	IsSeen(id string) bool
	ClearIfExpired(ctx context.Context, now time.Time, window time.Duration) (bool, error)
	Len() int
}

type seenRepository struct {
	store DocumentStore
	name  string
	now   func() time.Time

	mu            sync.Mutex
	entries       map[string]struct{}
	lastClearedAt time.Time
}

func NewSeenRepository(store DocumentStore, name string, now func() time.Time) SeenRepository {
	return &seenRepository{
		store:         store,
		name:          name,
		now:           now,
		entries:       map[string]struct{}{},
		lastClearedAt: now(),
	}
}

func (r *seenRepository) Load(ctx context.Context) error {
	var doc models.SeenDocument
	found, err := r.store.Load(ctx, r.name, &doc)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]struct{}, len(doc.Entries))
	for _, id := range doc.Entries {
		r.entries[id] = struct{}{}
	}
	if found && !doc.LastClearedAt.IsZero() {
		r.lastClearedAt = doc.LastClearedAt
	} else {
		r.lastClearedAt = r.now()
	}
	return nil
}

func (r *seenRepository) MarkSeen(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return nil
	}
	r.entries[id] = struct{}{}
	return r.flushLocked(ctx)
}

func (r *seenRepository) IsSeen(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// ClearIfExpired drops every entry once the window has elapsed since the last clear.
func (r *seenRepository) ClearIfExpired(ctx context.Context, now time.Time, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastClearedAt) < window {
		return false, nil
	}
	dropped := len(r.entries)
	r.entries = map[string]struct{}{}
	r.lastClearedAt = now
	slog.Info("Cleared seen registry", "dropped", dropped, "window", window.String())
	return true, r.flushLocked(ctx)
}

func (r *seenRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *seenRepository) flushLocked(ctx context.Context) error {
	doc := models.SeenDocument{
		Entries:       make([]string, 0, len(r.entries)),
		LastClearedAt: r.lastClearedAt,
	}
	for id := range r.entries {
		doc.Entries = append(doc.Entries, id)
	}
	sort.Strings(doc.Entries)
	if err := r.store.Save(ctx, r.name, doc); err != nil {
		return fmt.Errorf("flush seen registry: %w", err)
	}
	return nil
}
