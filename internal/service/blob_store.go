package service

import (
	"context"
	"path"
	"strings"

	"github.com/maheshrc27/autoposter/internal/models"
)

type BlobFile struct {
	ID       string
	Name     string
	MimeType string
	Size     int64
}

// BlobStore is a cloud folder of curated media. Delete of a missing file is not an error.
type BlobStore interface {
	List(ctx context.Context) ([]BlobFile, error)
	Download(ctx context.Context, id string) ([]byte, error)
	Upload(ctx context.Context, name string, data []byte, mimeType string) (string, error)
	Delete(ctx context.Context, id string) error
}

// ToCandidate maps a listed blob to a candidate; ok is false for unsupported files.
func (f BlobFile) ToCandidate() (models.MediaCandidate, bool) {
	kind, ok := kindFor(f.MimeType, f.Name)
	if !ok {
		return models.MediaCandidate{}, false
	}
	return models.MediaCandidate{
		Origin:   models.OriginBlobStore,
		Locator:  f.ID,
		Kind:     kind,
		Name:     f.Name,
		RemoteID: f.ID,
	}, true
}

func kindFor(mimeType, name string) (models.MediaKind, bool) {
	switch {
	case strings.HasPrefix(mimeType, "video/"):
		return models.KindVideo, true
	case strings.HasPrefix(mimeType, "image/"):
		return models.KindPhoto, true
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".mp4", ".mov":
		return models.KindVideo, true
	case ".jpg", ".jpeg", ".png":
		return models.KindPhoto, true
	}
	return "", false
}
