package models

import "time"

type PostingHistory struct {
	ID        string    `json:"id"`
	Source    Origin    `json:"source"`
	Username  string    `json:"username"`
	MediaType MediaKind `json:"media_type"`
	Success   bool      `json:"success"`
	MediaID   string    `json:"media_id,omitempty"`
	SlotID    string    `json:"slot_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
