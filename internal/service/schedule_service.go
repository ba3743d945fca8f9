package service

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	config "github.com/maheshrc27/autoposter/configs"
	"github.com/maheshrc27/autoposter/internal/models"
	"github.com/maheshrc27/autoposter/pkg/utils"
)

// SchedulePlanner spreads posts over the active window of each day with
// randomized counts, times and jitter.
type SchedulePlanner interface {
	DailySlotCount() int
	SlotTimes(day time.Time, count int) []time.Time
	SkipDay() bool
	PlanCycle(now time.Time) ([]models.ScheduleSlot, error)
	PrePostDelay() time.Duration
	CoolDownDelay() time.Duration
}

type schedulePlanner struct {
	cfg   config.Schedule
	rand  utils.Rand
	newID func() (string, error)
}

func NewSchedulePlanner(cfg config.Schedule, r utils.Rand, newID func() (string, error)) SchedulePlanner {
	if newID == nil {
		newID = func() (string, error) { return gonanoid.New() }
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &schedulePlanner{cfg: cfg, rand: r, newID: newID}
}

func (p *schedulePlanner) DailySlotCount() int {
	lo, hi := p.cfg.SlotsMin, p.cfg.SlotsMax
	if hi < lo {
		hi = lo
	}
	return lo + p.rand.IntN(hi-lo+1)
}

// SlotTimes splits the active window of day into count equal segments, draws
// one instant per segment and perturbs it. The result is sorted and strictly increasing.
func (p *schedulePlanner) SlotTimes(day time.Time, count int) []time.Time {
	if count <= 0 {
		return nil
	}
	start, end := p.window(day)
	segment := end.Sub(start) / time.Duration(count)

	times := make([]time.Time, 0, count)
	for i := 0; i < count; i++ {
		segStart := start.Add(time.Duration(i) * segment)
		t := segStart.Add(utils.DurationBetween(p.rand, 0, segment-1))
		t = t.Add(utils.DurationBetween(p.rand, -p.cfg.Perturbation, p.cfg.Perturbation))
		times = append(times, t)
	}

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			times[i] = times[i-1].Add(time.Second)
		}
	}
	return times
}

func (p *schedulePlanner) SkipDay() bool {
	return p.cfg.DaySkipProbability > 0 && p.rand.Float64() < p.cfg.DaySkipProbability
}

func (p *schedulePlanner) PlanCycle(now time.Time) ([]models.ScheduleSlot, error) {
	days := p.cfg.CycleDays
	if days < 1 {
		days = 1
	}

	local := now.In(p.cfg.Location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.cfg.Location)

	var slots []models.ScheduleSlot
	for d := 0; d < days; d++ {
		day := midnight.AddDate(0, 0, d)
		if p.SkipDay() {
			slog.Info("Skipping posting day", "day", day.Format(time.DateOnly))
			continue
		}
		count := p.DailySlotCount()
		for _, t := range p.SlotTimes(day, count) {
			if !t.After(now) {
				continue
			}
			id, err := p.newID()
			if err != nil {
				return nil, fmt.Errorf("slot id: %w", err)
			}
			slots = append(slots, models.ScheduleSlot{
				ID:         id,
				FiringTime: t,
				DayIndex:   d,
				Status:     models.SlotStatusPending,
			})
		}
	}
	return slots, nil
}

func (p *schedulePlanner) PrePostDelay() time.Duration {
	return utils.DurationBetween(p.rand, p.cfg.PrePostDelayMin, p.cfg.PrePostDelayMax)
}

func (p *schedulePlanner) CoolDownDelay() time.Duration {
	return utils.DurationBetween(p.rand, p.cfg.CoolDownMin, p.cfg.CoolDownMax)
}

// window returns the active window of day. An end at or before the start wraps past midnight.
func (p *schedulePlanner) window(day time.Time) (time.Time, time.Time) {
	local := day.In(p.cfg.Location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.cfg.Location)
	end := p.cfg.ActiveWindowEnd
	if end <= p.cfg.ActiveWindowStart {
		end += 24 * time.Hour
	}
	return midnight.Add(p.cfg.ActiveWindowStart), midnight.Add(end)
}
