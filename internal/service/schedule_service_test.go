package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/maheshrc27/autoposter/configs"
	"github.com/maheshrc27/autoposter/internal/models"
	"github.com/maheshrc27/autoposter/pkg/utils"
)

func testScheduleConfig() config.Schedule {
	return config.Schedule{
		SlotsMin:          3,
		SlotsMax:          5,
		ActiveWindowStart: 6 * time.Hour,
		ActiveWindowEnd:   22 * time.Hour,
		Perturbation:      45 * time.Minute,
		CycleDays:         1,
		PrePostDelayMin:   time.Minute,
		PrePostDelayMax:   15 * time.Minute,
		CoolDownMin:       5 * time.Minute,
		CoolDownMax:       30 * time.Minute,
		Location:          time.UTC,
	}
}

func TestDailySlotCount_InRange(t *testing.T) {
	p := NewSchedulePlanner(testScheduleConfig(), utils.NewRand(11), nil)
	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		n := p.DailySlotCount()
		assert.GreaterOrEqual(t, n, 3)
		assert.LessOrEqual(t, n, 5)
		seen[n] = true
	}
	assert.Len(t, seen, 3)
}

func TestSlotTimes_SpreadAcrossWindow(t *testing.T) {
	cfg := testScheduleConfig()
	day := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)
	lo := day.Add(cfg.ActiveWindowStart - cfg.Perturbation)
	hi := day.Add(cfg.ActiveWindowEnd + cfg.Perturbation)

	for seed := uint64(1); seed <= 200; seed++ {
		p := NewSchedulePlanner(cfg, utils.NewRand(seed), nil)
		n := p.DailySlotCount()
		times := p.SlotTimes(day, n)

		require.Len(t, times, n)
		for i, ts := range times {
			assert.False(t, ts.Before(lo), "seed %d slot %d at %s", seed, i, ts)
			assert.False(t, ts.After(hi), "seed %d slot %d at %s", seed, i, ts)
			if i > 0 {
				assert.True(t, ts.After(times[i-1]), "seed %d not strictly increasing", seed)
			}
		}
	}
}

func TestSlotTimes_NoCount(t *testing.T) {
	p := NewSchedulePlanner(testScheduleConfig(), utils.NewRand(1), nil)
	assert.Empty(t, p.SlotTimes(time.Now(), 0))
}

func TestSlotTimes_CollisionsAreNudged(t *testing.T) {
	cfg := testScheduleConfig()
	cfg.ActiveWindowStart = 10 * time.Hour
	cfg.ActiveWindowEnd = 10*time.Hour + time.Nanosecond
	cfg.Perturbation = 0
	p := NewSchedulePlanner(cfg, firstRand{}, nil)

	times := p.SlotTimes(time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC), 3)

	require.Len(t, times, 3)
	assert.True(t, times[1].After(times[0]))
	assert.True(t, times[2].After(times[1]))
}

func TestPlanCycle_DropsPastSlots(t *testing.T) {
	cfg := testScheduleConfig()
	cfg.CycleDays = 2
	n := 0
	ids := func() (string, error) {
		n++
		return fmt.Sprintf("slot-%d", n), nil
	}
	p := NewSchedulePlanner(cfg, utils.NewRand(9), ids)
	now := time.Date(2026, 2, 14, 14, 0, 0, 0, time.UTC)

	slots, err := p.PlanCycle(now)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	for _, s := range slots {
		assert.True(t, s.FiringTime.After(now))
		assert.Equal(t, models.SlotStatusPending, s.Status)
		assert.NotEmpty(t, s.ID)
	}
	var tomorrow int
	for _, s := range slots {
		if s.DayIndex == 1 {
			tomorrow++
		}
	}
	assert.GreaterOrEqual(t, tomorrow, 3)
}

func TestPlanCycle_SkipDay(t *testing.T) {
	cfg := testScheduleConfig()
	cfg.DaySkipProbability = 1
	p := NewSchedulePlanner(cfg, utils.NewRand(2), nil)

	slots, err := p.PlanCycle(time.Date(2026, 2, 14, 0, 5, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestPlanCycle_IDError(t *testing.T) {
	p := NewSchedulePlanner(testScheduleConfig(), utils.NewRand(2), func() (string, error) {
		return "", errors.New("entropy exhausted")
	})

	_, err := p.PlanCycle(time.Date(2026, 2, 14, 0, 5, 0, 0, time.UTC))
	assert.Error(t, err)
}

func TestJitterDelays_WithinBounds(t *testing.T) {
	cfg := testScheduleConfig()
	p := NewSchedulePlanner(cfg, utils.NewRand(4), nil)
	for i := 0; i < 200; i++ {
		pre := p.PrePostDelay()
		assert.GreaterOrEqual(t, pre, cfg.PrePostDelayMin)
		assert.LessOrEqual(t, pre, cfg.PrePostDelayMax)

		cool := p.CoolDownDelay()
		assert.GreaterOrEqual(t, cool, cfg.CoolDownMin)
		assert.LessOrEqual(t, cool, cfg.CoolDownMax)
	}
}
