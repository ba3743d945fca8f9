package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/maheshrc27/autoposter/configs"
	"github.com/maheshrc27/autoposter/internal/models"
)

var testSlot = models.ScheduleSlot{ID: "slot-1", Status: models.SlotStatusPending}

func TestExecutePost_OverlongVideoIsRejected(t *testing.T) {
	env := newPostEnv(t, nil, nil)
	env.writeLocal(t, "a_long.mp4", mp4With("long"))
	env.writeLocal(t, "b_ok.mp4", mp4With("ok"))
	env.media.durations[string(mp4With("long"))] = 90 * time.Second
	env.media.durations[string(mp4With("ok"))] = 20 * time.Second

	out := env.svc.ExecutePost(context.Background(), testSlot)

	require.Equal(t, models.PostStatusSuccess, out.Status)
	assert.Equal(t, "b_ok.mp4", out.Candidate.Name)
	assert.Equal(t, 2, out.Attempts)
	require.Len(t, env.publisher.videos, 1)
	assert.Equal(t, mp4With("ok"), env.publisher.videos[0].Media)
	assert.Equal(t, []byte("frame"), env.publisher.videos[0].Cover)

	_, used := env.usage.Get("a_long.mp4")
	assert.False(t, used)
	rec, used := env.usage.Get("b_ok.mp4")
	require.True(t, used)
	assert.Equal(t, 1, rec.TimesPosted)
}

func TestExecutePost_OverlongVideoIsTrimmedWhenEnabled(t *testing.T) {
	env := newPostEnv(t, nil, func(c *config.Config) { c.Media.TrimOverlong = true })
	env.writeLocal(t, "long.mp4", mp4With("long"))
	env.media.durations[string(mp4With("long"))] = 90 * time.Second

	out := env.svc.ExecutePost(context.Background(), testSlot)

	require.Equal(t, models.PostStatusSuccess, out.Status)
	assert.Equal(t, "long.mp4", out.Candidate.Name)
	assert.Equal(t, 1, env.media.trimmed)
}

func TestExecutePost_FallsBackToPlaceholderAfterMaxAttempts(t *testing.T) {
	env := newPostEnv(t, nil, func(c *config.Config) { c.Media.MaxSelectionAttempts = 2 })
	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		env.writeLocal(t, name, mp4With(name))
		env.media.durations[string(mp4With(name))] = time.Second
	}

	out := env.svc.ExecutePost(context.Background(), testSlot)

	require.Equal(t, models.PostStatusSuccess, out.Status)
	assert.True(t, out.Candidate.IsPlaceholder())
	assert.Equal(t, 3, out.Attempts)
	assert.Len(t, env.publisher.photos, 1)
	assert.Empty(t, env.publisher.videos)
}

func TestExecutePost_RetiresLocalFileAtQuota(t *testing.T) {
	env := newPostEnv(t, nil, nil)
	path := env.writeLocal(t, "vid1.mp4", mp4With("vid1"))
	env.media.durations[string(mp4With("vid1"))] = 15 * time.Second
	ctx := context.Background()

	first := env.svc.ExecutePost(ctx, testSlot)
	require.Equal(t, models.PostStatusSuccess, first.Status)
	assert.Equal(t, "vid1.mp4", first.Candidate.Name)
	assert.FileExists(t, path)

	second := env.svc.ExecutePost(ctx, testSlot)
	require.Equal(t, models.PostStatusSuccess, second.Status)
	assert.Equal(t, "vid1.mp4", second.Candidate.Name)
	assert.NoFileExists(t, path)
	_, tracked := env.usage.Get("vid1.mp4")
	assert.False(t, tracked)

	third := env.svc.ExecutePost(ctx, testSlot)
	require.Equal(t, models.PostStatusSuccess, third.Status)
	assert.True(t, third.Candidate.IsPlaceholder())
}

func TestExecutePost_RemoteRateLimitedOnceThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(jpegBytes)
	}))
	defer srv.Close()

	content := NewContentService(config.Content{RateLimitRetries: 1, RateLimitBackoff: 30 * time.Second}, srv.Client(), noSleep)
	env := newPostEnv(t, content, nil)
	env.remote.Set([]models.MediaCandidate{{
		Origin:              models.OriginRemoteAPI,
		Locator:             srv.URL + "/media/r1.jpg",
		Kind:                models.KindPhoto,
		SourceAccountHandle: "mas_band",
		RemoteID:            "r1",
	}}, time.Now())

	out := env.svc.ExecutePost(context.Background(), testSlot)

	require.Equal(t, models.PostStatusSuccess, out.Status)
	assert.Equal(t, "r1", out.Candidate.RemoteID)
	assert.Equal(t, 1, out.FetchRetries)
	assert.Equal(t, int32(2), hits.Load())
	require.Len(t, env.publisher.photos, 1)
	assert.Contains(t, env.publisher.photos[0].Caption, "📸 @mas_band")
	assert.True(t, env.seen.IsSeen("r1"))

	history := env.history.List()
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)
	assert.Equal(t, models.OriginRemoteAPI, history[0].Source)
}

func TestExecutePost_RemoteNotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	content := NewContentService(config.Content{RateLimitRetries: 1}, srv.Client(), noSleep)
	env := newPostEnv(t, content, nil)
	env.remote.Set([]models.MediaCandidate{{
		Origin:   models.OriginRemoteAPI,
		Locator:  srv.URL + "/media/gone.jpg",
		Kind:     models.KindPhoto,
		RemoteID: "gone",
	}}, time.Now())

	out := env.svc.ExecutePost(context.Background(), testSlot)

	require.Equal(t, models.PostStatusSuccess, out.Status)
	assert.True(t, out.Candidate.IsPlaceholder())
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 0, out.FetchRetries)
}

func TestExecutePost_PublishFailureFallsBackToPlaceholder(t *testing.T) {
	env := newPostEnv(t, nil, nil)
	env.writeLocal(t, "costume.jpg", jpegBytes)
	env.publisher.fail = 1

	out := env.svc.ExecutePost(context.Background(), testSlot)

	require.Equal(t, models.PostStatusSuccess, out.Status)
	assert.Equal(t, "placeholder fallback", out.Reason)
	assert.True(t, out.Candidate.IsPlaceholder())
	assert.Error(t, out.Err)
	assert.Len(t, env.publisher.photos, 2)

	_, used := env.usage.Get("costume.jpg")
	assert.False(t, used)

	history := env.history.List()
	require.Len(t, history, 2)
	assert.False(t, history[0].Success)
	assert.Equal(t, "upload rejected", history[0].Error)
	assert.True(t, history[1].Success)
	assert.Equal(t, models.OriginPlaceholder, history[1].Source)
}

func TestExecutePost_FailsWhenFallbackAlsoFails(t *testing.T) {
	env := newPostEnv(t, nil, nil)
	env.writeLocal(t, "costume.jpg", jpegBytes)
	env.publisher.fail = 2

	out := env.svc.ExecutePost(context.Background(), testSlot)

	assert.Equal(t, models.PostStatusFailed, out.Status)
	assert.Error(t, out.Err)
	assert.Len(t, env.publisher.photos, 2)
}

func TestExecutePost_CoverFallsBackToPlaceholder(t *testing.T) {
	env := newPostEnv(t, nil, nil)
	env.writeLocal(t, "parade.mp4", mp4With("parade"))
	env.media.durations[string(mp4With("parade"))] = 10 * time.Second
	env.media.frameErr = assert.AnError

	out := env.svc.ExecutePost(context.Background(), testSlot)

	require.Equal(t, models.PostStatusSuccess, out.Status)
	require.Len(t, env.publisher.videos, 1)
	assert.Equal(t, jpegBytes, env.publisher.videos[0].Cover)
}

func TestExecutePost_SkipsWhenPlaceholderMissing(t *testing.T) {
	env := newPostEnv(t, nil, func(c *config.Config) { c.Media.PlaceholderPath = "/nonexistent/placeholder.jpg" })

	out := env.svc.ExecutePost(context.Background(), testSlot)

	assert.Equal(t, models.PostStatusSkipped, out.Status)
	assert.Equal(t, "placeholder unavailable", out.Reason)
	assert.Empty(t, env.publisher.photos)
}

func TestExecutePost_RemovesTemporaryFiles(t *testing.T) {
	env := newPostEnv(t, nil, nil)
	env.writeLocal(t, "parade.mp4", mp4With("parade"))
	env.media.durations[string(mp4With("parade"))] = 10 * time.Second

	out := env.svc.ExecutePost(context.Background(), testSlot)
	require.Equal(t, models.PostStatusSuccess, out.Status)

	entries, err := os.ReadDir(env.tmpDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOwnedPool_RetriesRetirementOfItemsAtQuota(t *testing.T) {
	env := newPostEnv(t, nil, nil)
	path := env.writeLocal(t, "old.jpg", jpegBytes)
	env.writeLocal(t, "new.jpg", jpegBytes)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := env.usage.RecordUse(ctx, "old.jpg")
		require.NoError(t, err)
	}

	pool := env.svc.OwnedPool(ctx)

	require.Len(t, pool, 1)
	assert.Equal(t, "new.jpg", pool[0].Name)
	assert.NoFileExists(t, path)
	_, tracked := env.usage.Get("old.jpg")
	assert.False(t, tracked)
}
