package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/autoposter/internal/service"
)

type TokenRefreshJob struct {
	ig service.TokenManager
}

func NewTokenRefreshJob(ig service.TokenManager) *TokenRefreshJob {
	return &TokenRefreshJob{ig: ig}
}

func (c *TokenRefreshJob) RefreshTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := c.ig.RefreshIfDue(ctx); err != nil {
		slog.Info("Unable to refresh tokens for Instagram", "error", err)
	}
}
