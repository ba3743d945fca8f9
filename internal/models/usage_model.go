package models

import "time"

type UsageRecord struct {
	TimesPosted   int        `json:"times_posted"`
	FirstPostedAt *time.Time `json:"first_posted_at,omitempty"`
	LastPostedAt  *time.Time `json:"last_posted_at,omitempty"`
}

type UsageDocument struct {
	Records map[string]UsageRecord `json:"records"`
}

type SeenDocument struct {
	Entries       []string  `json:"entries"`
	LastClearedAt time.Time `json:"last_cleared_at"`
}
