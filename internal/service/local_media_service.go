package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/h2non/filetype"

	"github.com/maheshrc27/autoposter/internal/models"
)

var localMediaPattern = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|mp4)$`)

// LocalMediaService reads the curated local media directory.
type LocalMediaService interface {
	Scan() ([]models.MediaCandidate, error)
	Delete(path string) error
}

type localMediaService struct {
	dir string
}

func NewLocalMediaService(dir string) LocalMediaService {
	return &localMediaService{dir: dir}
}

// Scan lists postable files. The extension is a pre-filter; the kind comes from the content.
func (s *localMediaService) Scan() ([]models.MediaCandidate, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.dir, err)
	}

	var out []models.MediaCandidate
	for _, e := range entries {
		if e.IsDir() || !localMediaPattern.MatchString(e.Name()) {
			continue
		}
		p := filepath.Join(s.dir, e.Name())
		kind, err := sniffKind(p)
		if err != nil {
			slog.Warn("Skipping unreadable local media", "path", p, "error", err)
			continue
		}
		out = append(out, models.MediaCandidate{
			Origin:  models.OriginLocal,
			Locator: p,
			Kind:    kind,
			Name:    e.Name(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *localMediaService) Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func sniffKind(path string) (models.MediaKind, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return sniffBytes(head[:n])
}

func sniffBytes(data []byte) (models.MediaKind, error) {
	switch {
	case filetype.IsVideo(data):
		return models.KindVideo, nil
	case filetype.IsImage(data):
		return models.KindPhoto, nil
	default:
		return "", fmt.Errorf("unrecognized media content: %w", ErrInvalidMedia)
	}
}
