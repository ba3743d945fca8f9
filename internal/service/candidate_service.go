package service

import (
	"context"
	"log/slog"
	"path/filepath"

	config "github.com/maheshrc27/autoposter/configs"
	"github.com/maheshrc27/autoposter/internal/models"
	"github.com/maheshrc27/autoposter/internal/repository"
	"github.com/maheshrc27/autoposter/pkg/utils"
)

// CandidateService picks what to post next. It always returns a candidate:
// the placeholder is the last resort.
type CandidateService interface {
	SelectCandidate(ctx context.Context, owned, remote []models.MediaCandidate, exclude map[string]bool) models.MediaCandidate
	Placeholder() models.MediaCandidate
	Eligible(c models.MediaCandidate) bool
}

type candidateService struct {
	priorityMode string
	quota        int
	usage        repository.UsageRepository
	seen         repository.SeenRepository
	rand         utils.Rand
	placeholder  string
}

func NewCandidateService(priorityMode string, quota int, usage repository.UsageRepository, seen repository.SeenRepository, r utils.Rand, placeholderPath string) CandidateService {
	return &candidateService{
		priorityMode: priorityMode,
		quota:        quota,
		usage:        usage,
		seen:         seen,
		rand:         r,
		placeholder:  placeholderPath,
	}
}

func (s *candidateService) SelectCandidate(ctx context.Context, owned, remote []models.MediaCandidate, exclude map[string]bool) models.MediaCandidate {
	pickOwned := func() (models.MediaCandidate, bool) {
		return s.pick(filter(owned, func(c models.MediaCandidate) bool {
			return !exclude[c.Identity()] && s.Eligible(c)
		}))
	}
	pickRemote := func() (models.MediaCandidate, bool) {
		c, ok := s.pick(filter(remote, func(c models.MediaCandidate) bool {
			return !exclude[c.Identity()] && s.Eligible(c)
		}))
		if ok {
			if err := s.seen.MarkSeen(ctx, c.RemoteID); err != nil {
				slog.Warn("Failed to persist seen registry", "id", c.RemoteID, "error", err)
			}
		}
		return c, ok
	}

	order := []func() (models.MediaCandidate, bool){pickOwned, pickRemote}
	if s.priorityMode == config.PriorityRemote {
		order = []func() (models.MediaCandidate, bool){pickRemote, pickOwned}
	}
	for _, next := range order {
		if c, ok := next(); ok {
			return c
		}
	}
	return s.Placeholder()
}

// Eligible applies the pool rules to a single candidate, without the exclusion set.
func (s *candidateService) Eligible(c models.MediaCandidate) bool {
	key := c.UsageKey()
	if key == "" {
		return false
	}
	switch c.Origin {
	case models.OriginLocal, models.OriginBlobStore:
		return s.usage.IsEligible(key, s.quota) && !s.usage.IsRetiring(key)
	case models.OriginRemoteAPI:
		return !s.seen.IsSeen(key) && s.usage.IsEligible(key, s.quota)
	}
	return false
}

func (s *candidateService) Placeholder() models.MediaCandidate {
	return models.MediaCandidate{
		Origin:  models.OriginPlaceholder,
		Locator: s.placeholder,
		Kind:    models.KindPhoto,
		Name:    filepath.Base(s.placeholder),
	}
}

func (s *candidateService) pick(pool []models.MediaCandidate) (models.MediaCandidate, bool) {
	if len(pool) == 0 {
		return models.MediaCandidate{}, false
	}
	return pool[s.rand.IntN(len(pool))], true
}

func filter(in []models.MediaCandidate, keep func(models.MediaCandidate) bool) []models.MediaCandidate {
	var out []models.MediaCandidate
	for _, c := range in {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}
