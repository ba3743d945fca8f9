package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maheshrc27/autoposter/internal/models"
)

// UsageRepository is the usage ledger: how many times each usage key has been posted.
type UsageRepository interface {
	Load(ctx context.Context) error
	RecordUse(ctx context.Context, key string) (models.UsageRecord, error)
	IsEligible(key string, quota int) bool
	Retire(ctx context.Context, key string) (bool, error)
	Get(key string) (models.UsageRecord, bool)
	MarkRetiring(key string)
	ClearRetiring(key string)
	IsRetiring(key string) bool
}

type usageRepository struct {
	store DocumentStore
	name  string
	now   func() time.Time

	mu       sync.Mutex
	records  map[string]models.UsageRecord
	retiring map[string]bool
}

func NewUsageRepository(store DocumentStore, name string, now func() time.Time) UsageRepository {
	return &usageRepository{
		store:    store,
		name:     name,
		now:      now,
		records:  map[string]models.UsageRecord{},
		retiring: map[string]bool{},
	}
}

func (r *usageRepository) Load(ctx context.Context) error {
	var doc models.UsageDocument
	if _, err := r.store.Load(ctx, r.name, &doc); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = map[string]models.UsageRecord{}
	for k, v := range doc.Records {
		r.records[k] = v
	}
	return nil
}

// RecordUse applies the increment in memory before flushing. A flush error is
// returned with the updated record; the in-memory count stays correct.
func (r *usageRepository) RecordUse(ctx context.Context, key string) (models.UsageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	rec := r.records[key]
	rec.TimesPosted++
	if rec.FirstPostedAt == nil {
		rec.FirstPostedAt = &now
	}
	rec.LastPostedAt = &now
	r.records[key] = rec

	if err := r.flushLocked(ctx); err != nil {
		return rec, err
	}
	return rec, nil
}

func (r *usageRepository) IsEligible(key string, quota int) bool {
	if quota <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	return !ok || rec.TimesPosted < quota
}

// Retire drops the record. It reports false when there was nothing to retire.
func (r *usageRepository) Retire(ctx context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[key]; !ok {
		return false, nil
	}
	delete(r.records, key)
	return true, r.flushLocked(ctx)
}

func (r *usageRepository) Get(key string) (models.UsageRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	return rec, ok
}

func (r *usageRepository) MarkRetiring(key string) {
	r.mu.Lock()
	r.retiring[key] = true
	r.mu.Unlock()
}

func (r *usageRepository) ClearRetiring(key string) {
	r.mu.Lock()
	delete(r.retiring, key)
	r.mu.Unlock()
}

func (r *usageRepository) IsRetiring(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retiring[key]
}

func (r *usageRepository) flushLocked(ctx context.Context) error {
	doc := models.UsageDocument{Records: make(map[string]models.UsageRecord, len(r.records))}
	for k, v := range r.records {
		doc.Records[k] = v
	}
	if err := r.store.Save(ctx, r.name, doc); err != nil {
		return fmt.Errorf("flush usage ledger: %w", err)
	}
	return nil
}
