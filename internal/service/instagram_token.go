package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	config "github.com/maheshrc27/autoposter/configs"
	"github.com/maheshrc27/autoposter/internal/models"
	"github.com/maheshrc27/autoposter/internal/repository"
	"github.com/maheshrc27/autoposter/internal/transfer"
)

// TokenManager supplies the Graph API bearer token and keeps the long-lived token fresh.
type TokenManager interface {
	oauth2.TokenSource
	RefreshIfDue(ctx context.Context) error
}

type igTokenSource struct {
	cfg      config.Instagram
	sessions repository.SessionRepository
	client   *http.Client
	now      func() time.Time

	mu      sync.Mutex
	session *models.Session
}

func NewInstagramTokenSource(cfg config.Instagram, sessions repository.SessionRepository, client *http.Client, now func() time.Time) TokenManager {
	if client == nil {
		client = http.DefaultClient
	}
	return &igTokenSource{cfg: cfg, sessions: sessions, client: client, now: now}
}

func (s *igTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLocked(ctx); err != nil {
		return nil, err
	}
	// Expired or unknown expiry: refresh inline. The window-based refresh is left to RefreshIfDue.
	if s.session.ExpiresAt.IsZero() || !s.now().Before(s.session.ExpiresAt) {
		if err := s.refreshLocked(ctx); err != nil {
			slog.Warn("Instagram token refresh failed, using current token", "error", err)
			s.session.ExpiresAt = s.now().Add(time.Hour)
		}
	}
	return &oauth2.Token{
		AccessToken: s.session.AccessToken,
		TokenType:   "Bearer",
		Expiry:      s.session.ExpiresAt,
	}, nil
}

func (s *igTokenSource) RefreshIfDue(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLocked(ctx); err != nil {
		return err
	}
	if !s.dueLocked() {
		return nil
	}
	return s.refreshLocked(ctx)
}

func (s *igTokenSource) ensureLocked(ctx context.Context) error {
	if s.session != nil {
		return nil
	}
	saved, err := s.sessions.Get(ctx)
	if err != nil {
		slog.Warn("Failed to load saved session, using configured token", "error", err)
	}
	if saved != nil && saved.AccessToken != "" {
		slog.Info("Reused saved Instagram session", "expires_at", saved.ExpiresAt)
		s.session = saved
		return nil
	}
	if s.cfg.AccessToken == "" {
		return errors.New("no Instagram access token available")
	}
	// Unknown expiry: the first refresh learns it.
	s.session = &models.Session{AccessToken: s.cfg.AccessToken}
	return nil
}

func (s *igTokenSource) dueLocked() bool {
	return s.session.ExpiresAt.IsZero() || s.session.ExpiresAt.Sub(s.now()) < s.cfg.TokenRefreshWindow
}

func (s *igTokenSource) refreshLocked(ctx context.Context) error {
	reqURL := fmt.Sprintf("%s/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		s.cfg.GraphBaseURL, url.QueryEscape(s.session.AccessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh token: unexpected status code from Instagram: %d", resp.StatusCode)
	}

	var result transfer.InstagramRefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	if result.AccessToken == "" {
		return errors.New("refresh token: empty access token")
	}

	now := s.now()
	s.session = &models.Session{
		AccessToken: result.AccessToken,
		ExpiresAt:   GetExpiresAt(now, result.ExpiresIn),
		RefreshedAt: now,
	}
	if err := s.sessions.Save(ctx, *s.session); err != nil {
		slog.Warn("Failed to persist refreshed session", "error", err)
	}
	slog.Info("Instagram session refreshed", "expires_at", s.session.ExpiresAt)
	return nil
}

// NewAuthorizedClient attaches the bearer token to every request without
// caching it past the source's own refresh decisions.
func NewAuthorizedClient(src oauth2.TokenSource, base http.RoundTripper) *http.Client {
	return &http.Client{Transport: &oauth2.Transport{Source: src, Base: base}}
}
