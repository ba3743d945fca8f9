package models

import "time"

type Origin string

const (
	OriginLocal       Origin = "local"
	OriginRemoteAPI   Origin = "api"
	OriginBlobStore   Origin = "blob"
	OriginPlaceholder Origin = "placeholder"
)

type MediaKind string

const (
	KindPhoto MediaKind = "photo"
	KindVideo MediaKind = "video"
)

// MediaCandidate is built fresh for every posting attempt and never persisted.
// Locator is a file path (local, placeholder), a download URL (api) or a blob id.
type MediaCandidate struct {
	Origin              Origin    `json:"origin"`
	Locator             string    `json:"locator"`
	Kind                MediaKind `json:"kind"`
	Name                string    `json:"name,omitempty"`
	SourceAccountHandle string    `json:"source_account,omitempty"`
	RemoteID            string    `json:"remote_id,omitempty"`
	TakenAt             time.Time `json:"taken_at,omitempty"`
}

// UsageKey is the ledger identity: file name for local media, remote id otherwise.
// The placeholder has no usage key.
func (c MediaCandidate) UsageKey() string {
	switch c.Origin {
	case OriginLocal:
		return c.Name
	case OriginRemoteAPI, OriginBlobStore:
		return c.RemoteID
	default:
		return ""
	}
}

func (c MediaCandidate) IsPlaceholder() bool {
	return c.Origin == OriginPlaceholder
}

// Retirable reports whether the underlying media is deleted once its quota is used up.
func (c MediaCandidate) Retirable() bool {
	return c.Origin == OriginLocal || c.Origin == OriginBlobStore
}

// Identity distinguishes candidates across origins within one selection attempt.
func (c MediaCandidate) Identity() string {
	if key := c.UsageKey(); key != "" {
		return string(c.Origin) + ":" + key
	}
	return string(c.Origin) + ":" + c.Locator
}
