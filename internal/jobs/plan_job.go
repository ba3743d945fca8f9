package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	config "github.com/maheshrc27/autoposter/configs"
	"github.com/maheshrc27/autoposter/internal/models"
	"github.com/maheshrc27/autoposter/internal/repository"
	"github.com/maheshrc27/autoposter/internal/service"
)

type SlotArmer interface {
	Arm(ctx context.Context, slot models.ScheduleSlot) error
}

// PlanJob starts each scheduling cycle: it expires the seen registry, refreshes
// the remote pool and, once every slot of the previous cycle has settled,
// plans and arms the next one.
type PlanJob struct {
	cfg     *config.Config
	planner service.SchedulePlanner
	slots   repository.SlotRepository
	seen    repository.SeenRepository
	content service.ContentService
	remote  *service.RemotePool
	armer   SlotArmer
	now     func() time.Time

	mu sync.Mutex
}

func NewPlanJob(
	cfg *config.Config,
	planner service.SchedulePlanner,
	slots repository.SlotRepository,
	seen repository.SeenRepository,
	content service.ContentService,
	remote *service.RemotePool,
	armer SlotArmer,
	now func() time.Time) *PlanJob {
	if now == nil {
		now = time.Now
	}
	return &PlanJob{
		cfg:     cfg,
		planner: planner,
		slots:   slots,
		seen:    seen,
		content: content,
		remote:  remote,
		armer:   armer,
		now:     now,
	}
}

func (j *PlanJob) Run(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	cleared, err := j.seen.ClearIfExpired(ctx, now, j.cfg.SeenWindow)
	if err != nil {
		slog.Warn("Failed to persist seen registry", "error", err)
	}
	if cleared {
		slog.Info("Seen registry cleared", "window", j.cfg.SeenWindow.String())
	}

	j.refreshRemotePool(ctx, now)

	j.dropStale(ctx, now)
	if pending := j.slots.Pending(); len(pending) > 0 {
		// Arming is idempotent, so this retries slots whose earlier Arm failed.
		j.arm(ctx, pending)
		slog.Info("Previous cycle still has pending slots", "pending", len(pending))
		return nil
	}

	cycle := time.Duration(max(j.cfg.Schedule.CycleDays, 1)) * 24 * time.Hour
	if err := j.slots.PruneSettledBefore(ctx, now.Add(-cycle)); err != nil {
		slog.Warn("Failed to prune settled slots", "error", err)
	}

	planned, err := j.planner.PlanCycle(now)
	if err != nil {
		return fmt.Errorf("plan cycle: %w", err)
	}
	if len(planned) == 0 {
		slog.Info("No slots planned for this cycle")
		return nil
	}
	if err := j.slots.AddAll(ctx, planned); err != nil {
		slog.Warn("Failed to persist planned slots", "error", err)
	}

	j.arm(ctx, planned)
	slog.Info("Cycle planned", "slots", len(planned), "first", planned[0].FiringTime, "last", planned[len(planned)-1].FiringTime)
	return nil
}

func (j *PlanJob) arm(ctx context.Context, slots []models.ScheduleSlot) {
	for _, slot := range slots {
		if err := j.armer.Arm(ctx, slot); err != nil {
			slog.Error("Failed to arm slot", "slot", slot.ID, "error", err)
		}
	}
}

// staleAfter is how long past its firing time a pending slot can still be
// legitimately waiting: the missed-slot grace, or one full fire when that is longer.
func (j *PlanJob) staleAfter() time.Duration {
	s := j.cfg.Schedule
	return max(s.MissedSlotGrace, s.PrePostDelayMax+s.CoolDownMax)
}

// dropStale settles pending slots that can no longer fire, so a lost task
// never blocks the next cycle.
func (j *PlanJob) dropStale(ctx context.Context, now time.Time) {
	cutoff := now.Add(-j.staleAfter())
	for _, slot := range j.slots.Pending() {
		if !slot.FiringTime.Before(cutoff) {
			continue
		}
		slog.Warn("Dropping stale pending slot", "slot", slot.ID, "firing_time", slot.FiringTime)
		if err := j.slots.MarkDropped(ctx, slot.ID); err != nil {
			slog.Warn("Failed to persist slot", "slot", slot.ID, "error", err)
		}
	}
}

// Recover re-arms every pending slot persisted by a previous process.
// Missed ones are settled by the runner's missed-slot policy when they fire.
func (j *PlanJob) Recover(ctx context.Context) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	pending := j.slots.Pending()
	j.arm(ctx, pending)
	if len(pending) > 0 {
		slog.Info("Recovered pending slots", "slots", len(pending))
	}
	return len(pending)
}

// RefreshRemotePool refetches the remote pool outside of a planning run.
func (j *PlanJob) RefreshRemotePool(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.refreshRemotePool(ctx, j.now())
}

func (j *PlanJob) refreshRemotePool(ctx context.Context, now time.Time) {
	accounts := j.cfg.Content.SourceAccounts
	if len(accounts) == 0 {
		return
	}
	items := j.content.FetchPool(ctx, accounts)
	j.remote.Set(items, now)
	slog.Info("Remote pool refreshed", "accounts", len(accounts), "items", len(items))
}

// PlanCycle is the cron entry point.
func (j *PlanJob) PlanCycle() {
	if err := j.Run(context.Background()); err != nil {
		slog.Info(err.Error())
	}
}
