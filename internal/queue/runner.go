package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	config "github.com/maheshrc27/autoposter/configs"
	"github.com/maheshrc27/autoposter/internal/models"
	"github.com/maheshrc27/autoposter/internal/repository"
	"github.com/maheshrc27/autoposter/internal/service"
)

// missedAfter is how late a slot may fire before the missed-slot policy applies.
const missedAfter = 5 * time.Minute

var ErrUnknownSlot = errors.New("unknown slot")

// SlotRunner fires a single slot: missed-slot policy, pre-post jitter, the
// post itself, then cool-down. Fires are serialized.
type SlotRunner struct {
	cfg     config.Schedule
	slots   repository.SlotRepository
	planner service.SchedulePlanner
	posts   service.PostService
	now     func() time.Time
	sleep   service.Sleeper

	mu sync.Mutex
	// Span of the last run of back-to-back posting fires. A slot that came
	// due inside it was held by the runner, not missed.
	busyFrom, busyUntil time.Time
}

func NewSlotRunner(cfg config.Schedule, slots repository.SlotRepository, planner service.SchedulePlanner, posts service.PostService, now func() time.Time, sleep service.Sleeper) *SlotRunner {
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = service.SleepContext
	}
	return &SlotRunner{cfg: cfg, slots: slots, planner: planner, posts: posts, now: now, sleep: sleep}
}

func (r *SlotRunner) Fire(ctx context.Context, slotID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots.Get(slotID)
	if !ok {
		return fmt.Errorf("fire %s: %w", slotID, ErrUnknownSlot)
	}
	if slot.Status != models.SlotStatusPending {
		slog.Info("Slot already settled", "slot", slotID, "status", slot.Status)
		return nil
	}

	held := r.heldByPrevious(slot)
	due := slot.FiringTime
	if held {
		due = r.busyUntil
	}
	if late := r.now().Sub(due); late > missedAfter {
		if r.cfg.MissedSlotPolicy == config.MissedSlotDrop || late > r.cfg.MissedSlotGrace {
			slog.Warn("Dropping missed slot", "slot", slotID, "late", late.Round(time.Second).String(), "policy", r.cfg.MissedSlotPolicy)
			if err := r.slots.MarkDropped(ctx, slotID); err != nil {
				slog.Warn("Failed to persist slot", "slot", slotID, "error", err)
			}
			return nil
		}
		slog.Info("Firing missed slot late", "slot", slotID, "late", late.Round(time.Second).String())
	}

	busyFrom := r.now()
	if held {
		busyFrom = r.busyFrom
	}
	defer func() { r.busyFrom, r.busyUntil = busyFrom, r.now() }()

	delay := r.planner.PrePostDelay()
	slog.Info("Waiting before post", "slot", slotID, "delay", delay.String())
	if err := r.sleep(ctx, delay); err != nil {
		return err
	}

	r.posts.ExecutePost(ctx, slot)
	if err := r.slots.MarkFired(ctx, slotID, r.now()); err != nil {
		slog.Warn("Failed to persist slot", "slot", slotID, "error", err)
	}

	coolDown := r.planner.CoolDownDelay()
	slog.Info("Cooling down", "slot", slotID, "delay", coolDown.String())
	return r.sleep(ctx, coolDown)
}

// heldByPrevious reports whether the slot came due while earlier fires
// occupied the runner.
func (r *SlotRunner) heldByPrevious(slot models.ScheduleSlot) bool {
	return !r.busyFrom.IsZero() && !slot.FiringTime.Before(r.busyFrom) && slot.FiringTime.Before(r.busyUntil)
}
