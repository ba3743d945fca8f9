package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	config "github.com/maheshrc27/autoposter/configs"
	"github.com/maheshrc27/autoposter/internal/repository"
)

var (
	jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01}
	mp4Header = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00}
)

// mp4With returns sniffable mp4 bytes made unique by tag.
func mp4With(tag string) []byte {
	return append(append([]byte{}, mp4Header...), tag...)
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

// firstRand always picks the first element and never skips a day.
type firstRand struct{}

func (firstRand) IntN(n int) int { return 0 }
func (firstRand) Int64N(n int64) int64 { return 0 }
func (firstRand) Float64() float64 { return 0.99 }
func (firstRand) Shuffle(n int, swap func(i, j int)) {}

type fakeMedia struct {
	durations map[string]time.Duration
	frameErr  error
	trimmed   int
}

func (m *fakeMedia) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	d, ok := m.durations[string(data)]
	if !ok {
		return 0, errors.New("unknown video")
	}
	return d, nil
}

func (m *fakeMedia) ExtractFrame(ctx context.Context, videoPath string, at time.Duration, outPath string) error {
	if m.frameErr != nil {
		return m.frameErr
	}
	return os.WriteFile(outPath, []byte("frame"), 0o644)
}

func (m *fakeMedia) Trim(ctx context.Context, inPath, outPath string, max time.Duration) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	m.trimmed++
	return os.WriteFile(outPath, data, 0o644)
}

type fakePublisher struct {
	mu     sync.Mutex
	photos []PublishRequest
	videos []PublishRequest
	fail   int
}

func (p *fakePublisher) PublishPhoto(ctx context.Context, req PublishRequest) (PublishResult, error) {
	return p.publish(&p.photos, req)
}

func (p *fakePublisher) PublishVideo(ctx context.Context, req PublishRequest) (PublishResult, error) {
	return p.publish(&p.videos, req)
}

func (p *fakePublisher) publish(into *[]PublishRequest, req PublishRequest) (PublishResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	*into = append(*into, req)
	if p.fail > 0 {
		p.fail--
		return PublishResult{}, errors.New("upload rejected")
	}
	return PublishResult{MediaID: "ig-media"}, nil
}

type postEnv struct {
	dir       string
	localDir  string
	tmpDir    string
	cfg       *config.Config
	usage     repository.UsageRepository
	seen      repository.SeenRepository
	history   repository.PostingHistoryRepository
	media     *fakeMedia
	publisher *fakePublisher
	remote    *RemotePool
	content   ContentService
	svc       PostService
}

func newPostEnv(t *testing.T, content ContentService, tweak func(*config.Config)) *postEnv {
	t.Helper()
	dir := t.TempDir()
	env := &postEnv{
		dir:       dir,
		localDir:  filepath.Join(dir, "local"),
		tmpDir:    filepath.Join(dir, "tmp"),
		media:     &fakeMedia{durations: map[string]time.Duration{}},
		publisher: &fakePublisher{},
		remote:    NewRemotePool(),
	}
	require.NoError(t, os.MkdirAll(env.localDir, 0o755))
	require.NoError(t, os.MkdirAll(env.tmpDir, 0o755))

	placeholder := filepath.Join(dir, "placeholder.jpg")
	require.NoError(t, os.WriteFile(placeholder, jpegBytes, 0o644))

	env.cfg = &config.Config{
		PriorityMode: config.PriorityLocal,
		UsageQuota:   2,
		SeenWindow:   48 * time.Hour,
		Media: config.Media{
			LocalDir:             env.localDir,
			PlaceholderPath:      placeholder,
			TempDir:              env.tmpDir,
			VideoMinDuration:     3 * time.Second,
			VideoMaxDuration:     60 * time.Second,
			CoverFrameOffset:     time.Second,
			MaxSelectionAttempts: 3,
		},
		Caption: config.Caption{BrandTag: "#CarnivalCompanion", HashtagCount: 5},
	}
	if tweak != nil {
		tweak(env.cfg)
	}
	if content == nil {
		content = NewContentService(config.Content{}, nil, noSleep)
	}
	env.content = content

	now := func() time.Time { return time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC) }
	store := repository.NewFileDocumentStore()
	env.usage = repository.NewUsageRepository(store, filepath.Join(dir, "usage.json"), now)
	env.seen = repository.NewSeenRepository(store, filepath.Join(dir, "seen.json"), now)
	env.history = repository.NewPostingHistoryRepository(store, filepath.Join(dir, "history.json"), 1000)
	ctx := context.Background()
	require.NoError(t, env.usage.Load(ctx))
	require.NoError(t, env.seen.Load(ctx))
	require.NoError(t, env.history.Load(ctx))

	candidates := NewCandidateService(env.cfg.PriorityMode, env.cfg.UsageQuota, env.usage, env.seen, firstRand{}, env.cfg.Media.PlaceholderPath)
	env.svc = NewPostService(env.cfg.Media, env.cfg.UsageQuota, PostServiceDeps{
		Candidates: candidates,
		Usage:      env.usage,
		History:    env.history,
		Local:      NewLocalMediaService(env.localDir),
		Content:    content,
		Remote:     env.remote,
		Media:      env.media,
		Captions:   NewCaptionService(env.cfg.Caption, firstRand{}, now),
		Publisher:  env.publisher,
		Now:        now,
	})
	return env
}

func (e *postEnv) writeLocal(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(e.localDir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}
