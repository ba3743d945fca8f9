package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	config "github.com/maheshrc27/autoposter/configs"
	"github.com/maheshrc27/autoposter/internal/models"
	"github.com/maheshrc27/autoposter/internal/transfer"
)

// ContentService lists and downloads media posted by third-party source accounts.
type ContentService interface {
	ListRecent(ctx context.Context, account string) ([]models.MediaCandidate, error)
	FetchPool(ctx context.Context, accounts []string) []models.MediaCandidate
	Download(ctx context.Context, c models.MediaCandidate) ([]byte, error)
	// Retries is the number of retried requests since startup.
	Retries() int64
}

type contentService struct {
	cfg     config.Content
	client  *http.Client
	sleep   Sleeper
	retries atomic.Int64
}

func NewContentService(cfg config.Content, client *http.Client, sleep Sleeper) ContentService {
	if client == nil {
		client = http.DefaultClient
	}
	if sleep == nil {
		sleep = SleepContext
	}
	return &contentService{cfg: cfg, client: client, sleep: sleep}
}

func (s *contentService) ListRecent(ctx context.Context, account string) ([]models.MediaCandidate, error) {
	handle := normalizeHandle(account)
	reqURL := fmt.Sprintf("%s/v1/posts?username_or_id_or_url=%s", s.cfg.BaseURL, url.QueryEscape(handle))

	body, err := s.get(ctx, handle, reqURL, s.cfg.ListTimeout, true)
	if err != nil {
		return nil, err
	}

	posts, err := transfer.DecodeRemotePosts(body)
	if err != nil {
		return nil, fmt.Errorf("decode posts for @%s: %w", handle, err)
	}

	var out []models.MediaCandidate
	for _, p := range posts {
		mediaURL, video := p.MediaURL()
		id := p.Identifier()
		if mediaURL == "" || id == "" {
			continue
		}
		owner := p.User.Username
		if owner == "" {
			owner = handle
		}
		kind := models.KindPhoto
		if video {
			kind = models.KindVideo
		}
		c := models.MediaCandidate{
			Origin:              models.OriginRemoteAPI,
			Locator:             mediaURL,
			Kind:                kind,
			SourceAccountHandle: owner,
			RemoteID:            id,
		}
		if p.TakenAt > 0 {
			c.TakenAt = time.Unix(p.TakenAt, 0).UTC()
		}
		out = append(out, c)
	}
	return out, nil
}

// FetchPool lists every source account in turn, spaced out to stay under the
// content API's radar. Accounts that fail are logged and skipped.
func (s *contentService) FetchPool(ctx context.Context, accounts []string) []models.MediaCandidate {
	var pool []models.MediaCandidate
	for i, acc := range accounts {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.FetchSpacing); err != nil {
				break
			}
		}
		items, err := s.ListRecent(ctx, acc)
		switch {
		case errors.Is(err, ErrPermanent):
			slog.Warn("Skipping source account permanently for this cycle", "account", acc, "error", err)
			continue
		case err != nil:
			slog.Error("Failed to fetch source account", "account", acc, "error", err)
			continue
		}
		slog.Info("Fetched source account", "account", acc, "items", len(items))
		pool = append(pool, items...)
	}
	return pool
}

func (s *contentService) Download(ctx context.Context, c models.MediaCandidate) ([]byte, error) {
	return s.get(ctx, c.SourceAccountHandle, c.Locator, s.cfg.DownloadTimeout, false)
}

func (s *contentService) Retries() int64 {
	return s.retries.Load()
}

// get performs a GET with a per-attempt timeout. Transient failures are retried
// up to RateLimitRetries times after a fixed backoff; permanent ones are not.
func (s *contentService) get(ctx context.Context, account, reqURL string, timeout time.Duration, authed bool) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		body, err := s.getOnce(ctx, account, reqURL, timeout, authed)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, ErrTransient) || attempt >= s.cfg.RateLimitRetries || ctx.Err() != nil {
			return nil, err
		}
		s.retries.Add(1)
		slog.Warn("Transient fetch error, backing off", "account", account, "error", err, "backoff", s.cfg.RateLimitBackoff.String())
		if err := s.sleep(ctx, s.cfg.RateLimitBackoff); err != nil {
			return nil, err
		}
	}
}

func (s *contentService) getOnce(ctx context.Context, account, reqURL string, timeout time.Duration, authed bool) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if authed {
		req.Header.Set("x-rapidapi-key", s.cfg.RapidAPIKey)
		req.Header.Set("x-rapidapi-host", s.cfg.RapidAPIHost)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{Account: account, URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{Account: account, URL: reqURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Account: account, URL: reqURL, Err: err}
	}
	return body, nil
}

func normalizeHandle(account string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(account)), "@")
}

// RemotePool holds the remote candidates fetched at the start of a cycle.
type RemotePool struct {
	mu        sync.RWMutex
	items     []models.MediaCandidate
	fetchedAt time.Time
}

func NewRemotePool() *RemotePool {
	return &RemotePool{}
}

func (p *RemotePool) Set(items []models.MediaCandidate, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = items
	p.fetchedAt = at
}

func (p *RemotePool) Items() []models.MediaCandidate {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.MediaCandidate, len(p.items))
	copy(out, p.items)
	return out
}

func (p *RemotePool) FetchedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fetchedAt
}
