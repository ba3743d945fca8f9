package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/autoposter/internal/models"
)

// SlotRepository is the durable queue of armed schedule slots. It lets a
// restarted process re-arm slots that were planned but never fired.
type SlotRepository interface {
	Load(ctx context.Context) error
	AddAll(ctx context.Context, slots []models.ScheduleSlot) error
	Get(id string) (models.ScheduleSlot, bool)
	Pending() []models.ScheduleSlot
	MarkFired(ctx context.Context, id string, at time.Time) error
	MarkDropped(ctx context.Context, id string) error
	PruneSettledBefore(ctx context.Context, cutoff time.Time) error
}

type slotRepository struct {
	store DocumentStore
	name  string

	mu    sync.Mutex
	slots []models.ScheduleSlot
}

func NewSlotRepository(store DocumentStore, name string) SlotRepository {
	return &slotRepository{store: store, name: name}
}

func (r *slotRepository) Load(ctx context.Context) error {
	var slots []models.ScheduleSlot
	if _, err := r.store.Load(ctx, r.name, &slots); err != nil {
		return err
	}
	r.mu.Lock()
	r.slots = slots
	r.mu.Unlock()
	return nil
}

func (r *slotRepository) AddAll(ctx context.Context, slots []models.ScheduleSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots = append(r.slots, slots...)
	sort.SliceStable(r.slots, func(i, j int) bool {
		return r.slots[i].FiringTime.Before(r.slots[j].FiringTime)
	})
	return r.flushLocked(ctx)
}

func (r *slotRepository) Get(id string) (models.ScheduleSlot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.ID == id {
			return s, true
		}
	}
	return models.ScheduleSlot{}, false
}

func (r *slotRepository) Pending() []models.ScheduleSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ScheduleSlot
	for _, s := range r.slots {
		if s.Status == models.SlotStatusPending {
			out = append(out, s)
		}
	}
	return out
}

func (r *slotRepository) MarkFired(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, func(s *models.ScheduleSlot) {
		s.Status = models.SlotStatusFired
		s.FiredAt = &at
	})
}

func (r *slotRepository) MarkDropped(ctx context.Context, id string) error {
	return r.update(ctx, id, func(s *models.ScheduleSlot) {
		s.Status = models.SlotStatusDropped
	})
}

// PruneSettledBefore forgets fired and dropped slots whose firing time is before cutoff.
func (r *slotRepository) PruneSettledBefore(ctx context.Context, cutoff time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.slots[:0]
	for _, s := range r.slots {
		if s.Status != models.SlotStatusPending && s.FiringTime.Before(cutoff) {
			continue
		}
		kept = append(kept, s)
	}
	r.slots = kept
	return r.flushLocked(ctx)
}

func (r *slotRepository) update(ctx context.Context, id string, fn func(*models.ScheduleSlot)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.slots {
		if r.slots[i].ID == id {
			fn(&r.slots[i])
			return r.flushLocked(ctx)
		}
	}
	return fmt.Errorf("slot %s not found", id)
}

func (r *slotRepository) flushLocked(ctx context.Context) error {
	doc := make([]models.ScheduleSlot, len(r.slots))
	copy(doc, r.slots)
	if err := r.store.Save(ctx, r.name, doc); err != nil {
		return fmt.Errorf("flush slots: %w", err)
	}
	return nil
}
