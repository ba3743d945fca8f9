package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/autoposter/internal/models"
)

// LocalDispatcher keeps armed slots in memory and fires them from a single
// goroutine in firing-time order.
type LocalDispatcher struct {
	firer SlotFirer
	now   func() time.Time

	mu    sync.Mutex
	armed map[string]models.ScheduleSlot
	wake  chan struct{}
}

func NewLocalDispatcher(firer SlotFirer, now func() time.Time) *LocalDispatcher {
	if now == nil {
		now = time.Now
	}
	return &LocalDispatcher{
		firer: firer,
		now:   now,
		armed: map[string]models.ScheduleSlot{},
		wake:  make(chan struct{}, 1),
	}
}

func (d *LocalDispatcher) Arm(ctx context.Context, slot models.ScheduleSlot) error {
	d.mu.Lock()
	d.armed[slot.ID] = slot
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	slog.Info("Slot armed", "slot", slot.ID, "firing_time", slot.FiringTime)
	return nil
}

func (d *LocalDispatcher) Run(ctx context.Context) error {
	for {
		next, ok := d.next()

		var fire <-chan time.Time
		var timer *time.Timer
		if ok {
			timer = time.NewTimer(max(next.FiringTime.Sub(d.now()), 0))
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return nil
		case <-d.wake:
			stopTimer(timer)
		case <-fire:
			d.remove(next.ID)
			if err := d.firer.Fire(ctx, next.ID); err != nil {
				slog.Error("Slot failed", "slot", next.ID, "error", err)
			}
		}
	}
}

func (d *LocalDispatcher) Close() error {
	return nil
}

// Armed is the number of slots waiting to fire.
func (d *LocalDispatcher) Armed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.armed)
}

func (d *LocalDispatcher) next() (models.ScheduleSlot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var (
		best  models.ScheduleSlot
		found bool
	)
	for _, s := range d.armed {
		if !found || s.FiringTime.Before(best.FiringTime) {
			best, found = s, true
		}
	}
	return best, found
}

func (d *LocalDispatcher) remove(id string) {
	d.mu.Lock()
	delete(d.armed, id)
	d.mu.Unlock()
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
