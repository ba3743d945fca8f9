package models

import "time"

type Session struct {
	AccessToken string    `json:"access_token"`
	Encrypted   bool      `json:"encrypted"`
	ExpiresAt   time.Time `json:"expires_at"`
	RefreshedAt time.Time `json:"refreshed_at"`
}
