package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	config "github.com/maheshrc27/autoposter/configs"
	"github.com/maheshrc27/autoposter/internal/models"
	"github.com/maheshrc27/autoposter/internal/repository"
)

// PostService runs one post attempt for a slot: select, validate, prepare,
// publish, record and retire.
type PostService interface {
	ExecutePost(ctx context.Context, slot models.ScheduleSlot) models.PostOutcome
	OwnedPool(ctx context.Context) []models.MediaCandidate
}

type PostServiceDeps struct {
	Candidates CandidateService
	Usage      repository.UsageRepository
	History    repository.PostingHistoryRepository
	Local      LocalMediaService
	Blob       BlobStore
	Content    ContentService
	Remote     *RemotePool
	Media      MediaService
	Captions   CaptionService
	Publisher  Publisher
	Now        func() time.Time
}

type postService struct {
	cfg   config.Media
	quota int
	PostServiceDeps
}

func NewPostService(cfg config.Media, quota int, deps PostServiceDeps) PostService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Remote == nil {
		deps.Remote = NewRemotePool()
	}
	return &postService{cfg: cfg, quota: quota, PostServiceDeps: deps}
}

// preparedMedia is validated media ready to publish. cleanup removes every temporary file.
type preparedMedia struct {
	data    []byte
	cover   []byte
	kind    models.MediaKind
	cleanup func()
}

func (s *postService) ExecutePost(ctx context.Context, slot models.ScheduleSlot) models.PostOutcome {
	retriesBefore := s.Content.Retries()
	outcome := s.executePost(ctx, slot)
	outcome.FetchRetries = int(s.Content.Retries() - retriesBefore)

	attrs := []any{
		"slot", slot.ID,
		"status", outcome.Status,
		"origin", outcome.Candidate.Origin,
		"name", outcome.Candidate.Name,
		"attempts", outcome.Attempts,
		"fetch_retries", outcome.FetchRetries,
	}
	switch outcome.Status {
	case models.PostStatusSuccess:
		slog.Info("Post published", append(attrs, "media_id", outcome.MediaID)...)
	case models.PostStatusSkipped:
		slog.Warn("Post skipped", append(attrs, "reason", outcome.Reason)...)
	default:
		slog.Error("Post failed", append(attrs, "error", outcome.Err)...)
	}
	return outcome
}

func (s *postService) executePost(ctx context.Context, slot models.ScheduleSlot) models.PostOutcome {
	owned := s.OwnedPool(ctx)
	remote := s.Remote.Items()
	exclude := make(map[string]bool)

	var (
		candidate models.MediaCandidate
		prepared  *preparedMedia
		attempts  int
	)
	for {
		attempts++
		if attempts > s.cfg.MaxSelectionAttempts {
			candidate = s.Candidates.Placeholder()
		} else {
			candidate = s.Candidates.SelectCandidate(ctx, owned, remote, exclude)
		}

		var err error
		prepared, err = s.prepare(ctx, candidate)
		if err == nil {
			break
		}
		if candidate.IsPlaceholder() {
			return models.PostOutcome{
				Status:    models.PostStatusSkipped,
				Reason:    "placeholder unavailable",
				Err:       err,
				Candidate: candidate,
				Attempts:  attempts,
			}
		}
		slog.Warn("Candidate rejected", "origin", candidate.Origin, "name", candidate.Name, "error", err)
		exclude[candidate.Identity()] = true
	}
	defer prepared.cleanup()

	mediaID, err := s.publish(ctx, candidate, prepared)
	if err == nil {
		s.record(ctx, slot, candidate, mediaID, nil)
		return models.PostOutcome{
			Status:    models.PostStatusSuccess,
			Candidate: candidate,
			MediaID:   mediaID,
			Attempts:  attempts,
		}
	}
	s.record(ctx, slot, candidate, "", err)
	if candidate.IsPlaceholder() {
		return models.PostOutcome{Status: models.PostStatusFailed, Err: err, Candidate: candidate, Attempts: attempts}
	}

	slog.Warn("Publish failed, falling back to placeholder", "origin", candidate.Origin, "name", candidate.Name, "error", err)
	placeholder := s.Candidates.Placeholder()
	fallback, perr := s.prepare(ctx, placeholder)
	if perr != nil {
		return models.PostOutcome{
			Status:    models.PostStatusFailed,
			Err:       errors.Join(err, perr),
			Candidate: candidate,
			Attempts:  attempts,
		}
	}
	defer fallback.cleanup()

	mediaID, perr = s.publish(ctx, placeholder, fallback)
	s.record(ctx, slot, placeholder, mediaID, perr)
	if perr != nil {
		return models.PostOutcome{
			Status:    models.PostStatusFailed,
			Err:       errors.Join(err, perr),
			Candidate: placeholder,
			Attempts:  attempts,
		}
	}
	return models.PostOutcome{
		Status:    models.PostStatusSuccess,
		Reason:    "placeholder fallback",
		Err:       err,
		Candidate: placeholder,
		MediaID:   mediaID,
		Attempts:  attempts,
	}
}

// OwnedPool lists local and blob media. Items already at quota are retired
// again so that a deletion which failed earlier gets another chance.
func (s *postService) OwnedPool(ctx context.Context) []models.MediaCandidate {
	var pool []models.MediaCandidate

	local, err := s.Local.Scan()
	if err != nil {
		slog.Warn("Failed to scan local media", "error", err)
	}
	pool = append(pool, local...)

	if s.Blob != nil {
		files, err := s.Blob.List(ctx)
		if err != nil {
			slog.Warn("Failed to list blob store", "error", err)
		}
		for _, f := range files {
			if c, ok := f.ToCandidate(); ok {
				pool = append(pool, c)
			}
		}
	}

	out := pool[:0]
	for _, c := range pool {
		if s.atQuota(c.UsageKey()) {
			s.retire(ctx, c)
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *postService) prepare(ctx context.Context, c models.MediaCandidate) (*preparedMedia, error) {
	data, err := s.acquire(ctx, c)
	if err != nil {
		return nil, err
	}

	var temp []string
	cleanup := func() {
		for _, p := range temp {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				slog.Warn("Failed to remove temporary file", "path", p, "error", err)
			}
		}
	}

	kind := c.Kind
	if sniffed, err := sniffBytes(data); err == nil {
		kind = sniffed
	}
	if kind == models.KindPhoto {
		return &preparedMedia{data: data, kind: kind, cleanup: cleanup}, nil
	}

	p, err := s.prepareVideo(ctx, data, &temp)
	if err != nil {
		cleanup()
		return nil, err
	}
	p.cleanup = cleanup
	return p, nil
}

func (s *postService) prepareVideo(ctx context.Context, data []byte, temp *[]string) (*preparedMedia, error) {
	videoPath, err := s.writeTemp("video-*.mp4", data)
	if err != nil {
		return nil, err
	}
	*temp = append(*temp, videoPath)

	duration, err := s.Media.ProbeDuration(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("probe duration: %w: %w", ErrInvalidMedia, err)
	}

	switch {
	case duration < s.cfg.VideoMinDuration:
		return nil, fmt.Errorf("video is %s, shorter than %s: %w", duration, s.cfg.VideoMinDuration, ErrInvalidMedia)
	case duration > s.cfg.VideoMaxDuration && !s.cfg.TrimOverlong:
		return nil, fmt.Errorf("video is %s, longer than %s: %w", duration, s.cfg.VideoMaxDuration, ErrInvalidMedia)
	case duration > s.cfg.VideoMaxDuration:
		trimmedPath, err := s.tempPath("trimmed-*.mp4")
		if err != nil {
			return nil, err
		}
		*temp = append(*temp, trimmedPath)
		if err := s.Media.Trim(ctx, videoPath, trimmedPath, s.cfg.VideoMaxDuration); err != nil {
			return nil, fmt.Errorf("trim video: %w: %w", ErrInvalidMedia, err)
		}
		if data, err = os.ReadFile(trimmedPath); err != nil {
			return nil, fmt.Errorf("read trimmed video: %w", err)
		}
		videoPath = trimmedPath
		slog.Info("Trimmed overlong video", "duration", duration, "max", s.cfg.VideoMaxDuration)
	}

	return &preparedMedia{data: data, cover: s.cover(ctx, videoPath, temp), kind: models.KindVideo}, nil
}

// cover extracts the cover frame, falling back to the placeholder image.
func (s *postService) cover(ctx context.Context, videoPath string, temp *[]string) []byte {
	coverPath, err := s.tempPath("cover-*.jpg")
	if err == nil {
		*temp = append(*temp, coverPath)
		err = s.Media.ExtractFrame(ctx, videoPath, s.cfg.CoverFrameOffset, coverPath)
	}
	if err == nil {
		var cover []byte
		if cover, err = os.ReadFile(coverPath); err == nil && len(cover) > 0 {
			return cover
		}
	}
	slog.Warn("Cover extraction failed, using placeholder cover", "error", err)

	cover, err := os.ReadFile(s.cfg.PlaceholderPath)
	if err != nil {
		slog.Warn("Placeholder cover unavailable", "error", err)
		return nil
	}
	return cover
}

func (s *postService) acquire(ctx context.Context, c models.MediaCandidate) ([]byte, error) {
	switch c.Origin {
	case models.OriginLocal, models.OriginPlaceholder:
		data, err := os.ReadFile(c.Locator)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w: %w", c.Locator, ErrPermanent, err)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", c.Locator, err)
		}
		return data, nil
	case models.OriginBlobStore:
		if s.Blob == nil {
			return nil, fmt.Errorf("blob %s: no blob store configured: %w", c.Locator, ErrPermanent)
		}
		return s.Blob.Download(ctx, c.Locator)
	case models.OriginRemoteAPI:
		return s.Content.Download(ctx, c)
	}
	return nil, fmt.Errorf("unknown origin %q: %w", c.Origin, ErrPermanent)
}

func (s *postService) publish(ctx context.Context, c models.MediaCandidate, p *preparedMedia) (string, error) {
	credit := ""
	if c.Origin == models.OriginRemoteAPI {
		credit = c.SourceAccountHandle
	}
	req := PublishRequest{Media: p.data, Cover: p.cover, Caption: s.Captions.Build(credit)}

	var (
		res PublishResult
		err error
	)
	if p.kind == models.KindVideo {
		res, err = s.Publisher.PublishVideo(ctx, req)
	} else {
		res, err = s.Publisher.PublishPhoto(ctx, req)
	}
	if err != nil {
		return "", err
	}
	return res.MediaID, nil
}

// record appends to the history and, on success, updates the usage ledger.
// Ledger and history flush failures are warnings; the post is never rolled back.
func (s *postService) record(ctx context.Context, slot models.ScheduleSlot, c models.MediaCandidate, mediaID string, publishErr error) {
	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
	}
	entry := models.PostingHistory{
		ID:        id,
		Source:    c.Origin,
		Username:  c.SourceAccountHandle,
		MediaType: c.Kind,
		Success:   publishErr == nil,
		MediaID:   mediaID,
		SlotID:    slot.ID,
		Timestamp: s.Now(),
	}
	if publishErr != nil {
		entry.Error = publishErr.Error()
	}
	if err := s.History.Create(ctx, &entry); err != nil {
		slog.Warn("Failed to record posting history", "error", err)
	}

	key := c.UsageKey()
	if publishErr != nil || key == "" {
		return
	}
	rec, err := s.Usage.RecordUse(ctx, key)
	if err != nil {
		slog.Warn("Failed to persist usage ledger", "key", key, "error", err)
	}
	if c.Retirable() && s.quota > 0 && rec.TimesPosted >= s.quota {
		s.retire(ctx, c)
	}
}

// retire deletes media that used up its quota and then drops its ledger record.
// When deletion fails the record stays, keeping the item ineligible.
func (s *postService) retire(ctx context.Context, c models.MediaCandidate) {
	key := c.UsageKey()
	s.Usage.MarkRetiring(key)
	defer s.Usage.ClearRetiring(key)

	var err error
	switch c.Origin {
	case models.OriginLocal:
		err = s.Local.Delete(c.Locator)
	case models.OriginBlobStore:
		if s.Blob != nil {
			err = s.Blob.Delete(ctx, c.Locator)
		}
	default:
		return
	}
	if err != nil {
		slog.Warn("Failed to delete retired media", "key", key, "error", err)
		return
	}
	if _, err := s.Usage.Retire(ctx, key); err != nil {
		slog.Warn("Failed to persist usage ledger", "key", key, "error", err)
	}
	slog.Info("Retired media after reaching quota", "origin", c.Origin, "key", key)
}

func (s *postService) atQuota(key string) bool {
	if key == "" || s.quota <= 0 {
		return false
	}
	rec, ok := s.Usage.Get(key)
	return ok && rec.TimesPosted >= s.quota
}

func (s *postService) writeTemp(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp(s.cfg.TempDir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return f.Name(), nil
}

func (s *postService) tempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(s.cfg.TempDir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	f.Close()
	return name, nil
}
