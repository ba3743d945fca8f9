package repository

import (
	"context"
	"fmt"

	"github.com/maheshrc27/autoposter/internal/models"
	"github.com/maheshrc27/autoposter/pkg/utils"
)

// SessionRepository keeps the publishing access token across restarts. The token
// is sealed with the secret key when one is configured.
type SessionRepository interface {
	Get(ctx context.Context) (*models.Session, error)
	Save(ctx context.Context, s models.Session) error
}

type sessionRepository struct {
	store     DocumentStore
	name      string
	secretKey []byte
}

func NewSessionRepository(store DocumentStore, name, secretKey string) SessionRepository {
	return &sessionRepository{store: store, name: name, secretKey: []byte(secretKey)}
}

func (r *sessionRepository) Get(ctx context.Context) (*models.Session, error) {
	var s models.Session
	found, err := r.store.Load(ctx, r.name, &s)
	if err != nil || !found {
		return nil, err
	}
	if s.Encrypted {
		if len(r.secretKey) == 0 {
			return nil, fmt.Errorf("session %s is encrypted but no secret key is set", r.name)
		}
		token, err := utils.Decrypt(s.AccessToken, r.secretKey)
		if err != nil {
			return nil, err
		}
		s.AccessToken = token
		s.Encrypted = false
	}
	return &s, nil
}

func (r *sessionRepository) Save(ctx context.Context, s models.Session) error {
	if len(r.secretKey) > 0 {
		sealed, err := utils.Encrypt([]byte(s.AccessToken), r.secretKey)
		if err != nil {
			return err
		}
		s.AccessToken = sealed
		s.Encrypted = true
	}
	return r.store.Save(ctx, r.name, s)
}
