package queue

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/autoposter/internal/models"
	"github.com/maheshrc27/autoposter/internal/repository"
)

type fixedPlanner struct {
	pre, cool time.Duration
}

func (p fixedPlanner) DailySlotCount() int { return 0 }
func (p fixedPlanner) SlotTimes(day time.Time, count int) []time.Time { return nil }
func (p fixedPlanner) SkipDay() bool { return false }
func (p fixedPlanner) PlanCycle(now time.Time) ([]models.ScheduleSlot, error) {
	return nil, nil
}
func (p fixedPlanner) PrePostDelay() time.Duration { return p.pre }
func (p fixedPlanner) CoolDownDelay() time.Duration { return p.cool }

type fakePosts struct {
	mu    sync.Mutex
	slots []string
}

func (f *fakePosts) ExecutePost(ctx context.Context, slot models.ScheduleSlot) models.PostOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slots = append(f.slots, slot.ID)
	return models.PostOutcome{Status: models.PostStatusSuccess}
}

func (f *fakePosts) OwnedPool(ctx context.Context) []models.MediaCandidate { return nil }

func (f *fakePosts) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.slots...)
}

type recordingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newSlotRepo(t *testing.T, slots ...models.ScheduleSlot) repository.SlotRepository {
	t.Helper()
	repo := repository.NewSlotRepository(repository.NewFileDocumentStore(), filepath.Join(t.TempDir(), "slots.json"))
	require.NoError(t, repo.Load(context.Background()))
	require.NoError(t, repo.AddAll(context.Background(), slots))
	return repo
}
