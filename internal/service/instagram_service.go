package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	config "github.com/maheshrc27/autoposter/configs"
	"github.com/maheshrc27/autoposter/internal/transfer"
)

const graphVersion = "v21.0"

// maxErrorBody caps how much of a non-JSON error body ends up in an error.
const maxErrorBody = 512

type PublishRequest struct {
	Media   []byte
	Cover   []byte
	Caption string
}

type PublishResult struct {
	MediaID string
}

// Publisher is the publishing backend.
type Publisher interface {
	PublishPhoto(ctx context.Context, req PublishRequest) (PublishResult, error)
	PublishVideo(ctx context.Context, req PublishRequest) (PublishResult, error)
}

type instagramService struct {
	cfg    config.Instagram
	stager MediaStager
	client *http.Client
	sleep  Sleeper
}

func NewInstagramService(cfg config.Instagram, stager MediaStager, client *http.Client, sleep Sleeper) Publisher {
	if sleep == nil {
		sleep = SleepContext
	}
	return &instagramService{cfg: cfg, stager: stager, client: client, sleep: sleep}
}

func (s *instagramService) PublishPhoto(ctx context.Context, req PublishRequest) (PublishResult, error) {
	imageURL, cleanup, err := s.stager.Stage(ctx, req.Media)
	if err != nil {
		return PublishResult{}, fmt.Errorf("stage photo: %w", err)
	}
	defer cleanup(context.WithoutCancel(ctx))

	return s.publish(ctx, map[string]any{
		"image_url": imageURL,
		"caption":   req.Caption,
	})
}

func (s *instagramService) PublishVideo(ctx context.Context, req PublishRequest) (PublishResult, error) {
	videoURL, cleanupVideo, err := s.stager.Stage(ctx, req.Media)
	if err != nil {
		return PublishResult{}, fmt.Errorf("stage video: %w", err)
	}
	defer cleanupVideo(context.WithoutCancel(ctx))

	payload := map[string]any{
		"media_type": "REELS",
		"video_url":  videoURL,
		"caption":    req.Caption,
	}
	if len(req.Cover) > 0 {
		coverURL, cleanupCover, err := s.stager.Stage(ctx, req.Cover)
		if err != nil {
			slog.Warn("Failed to stage cover, publishing without it", "error", err)
		} else {
			defer cleanupCover(context.WithoutCancel(ctx))
			payload["cover_url"] = coverURL
		}
	}
	return s.publish(ctx, payload)
}

func (s *instagramService) publish(ctx context.Context, payload map[string]any) (PublishResult, error) {
	var container transfer.InstagramContainer
	mediaURL := fmt.Sprintf("%s/%s/%s/media", s.cfg.GraphBaseURL, graphVersion, s.cfg.UserID)
	if err := s.postJSON(ctx, mediaURL, payload, &container); err != nil {
		return PublishResult{}, fmt.Errorf("create container: %w", err)
	}
	if container.ID == "" {
		return PublishResult{}, errors.New("no container ID returned from Instagram")
	}

	if err := s.waitForContainer(ctx, container.ID); err != nil {
		return PublishResult{}, err
	}

	var published transfer.InstagramContainer
	publishURL := fmt.Sprintf("%s/%s/%s/media_publish", s.cfg.GraphBaseURL, graphVersion, s.cfg.UserID)
	if err := s.postJSON(ctx, publishURL, map[string]any{"creation_id": container.ID}, &published); err != nil {
		return PublishResult{}, fmt.Errorf("publish container %s: %w", container.ID, err)
	}
	if published.ID == "" {
		return PublishResult{}, errors.New("no media ID returned from Instagram")
	}
	return PublishResult{MediaID: published.ID}, nil
}

// waitForContainer polls until the uploaded media has been processed.
func (s *instagramService) waitForContainer(ctx context.Context, id string) error {
	statusURL := fmt.Sprintf("%s/%s/%s?fields=status_code,status", s.cfg.GraphBaseURL, graphVersion, id)
	for i := 0; i < s.cfg.PublishPollLimit; i++ {
		var st transfer.InstagramContainerStatus
		if err := s.do(ctx, http.MethodGet, statusURL, nil, &st); err != nil {
			return fmt.Errorf("container %s status: %w", id, err)
		}
		switch st.StatusCode {
		case transfer.ContainerFinished, "":
			return nil
		case transfer.ContainerError, transfer.ContainerExpired:
			return fmt.Errorf("container %s %s: %s: %w", id, st.StatusCode, st.Status, ErrInvalidMedia)
		}
		if err := s.sleep(ctx, s.cfg.PublishPollEvery); err != nil {
			return err
		}
	}
	return fmt.Errorf("container %s not ready after %d checks: %w", id, s.cfg.PublishPollLimit, ErrTransient)
}

func (s *instagramService) postJSON(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling payload: %w", err)
	}
	return s.do(ctx, http.MethodPost, url, body, out)
}

func (s *instagramService) do(ctx context.Context, method, url string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr transfer.InstagramErrorResponse
		message := ""
		if err := json.Unmarshal(respBody, &apiErr); err == nil {
			message = apiErr.Error.Message
		}
		if message == "" {
			message = strings.TrimSpace(string(respBody))
			if len(message) > maxErrorBody {
				message = message[:maxErrorBody] + "..."
			}
		}
		class := ErrPermanent
		if apiErr.Error.IsTransient || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			class = ErrTransient
		}
		return fmt.Errorf("unexpected status code from Instagram: %d: %s: %w", resp.StatusCode, message, class)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}
	return nil
}
