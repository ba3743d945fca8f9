package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	config "github.com/maheshrc27/autoposter/configs"
)

type fakeStager struct {
	staged  int
	cleaned atomic.Int32
}

func (s *fakeStager) Stage(ctx context.Context, data []byte) (string, func(context.Context), error) {
	s.staged++
	url := fmt.Sprintf("https://pub.example/staging/%d.bin", s.staged)
	return url, func(context.Context) { s.cleaned.Add(1) }, nil
}

func newGraphConfig(baseURL string) config.Instagram {
	return config.Instagram{
		UserID:           "1784",
		GraphBaseURL:     baseURL,
		PublishPollEvery: time.Second,
		PublishPollLimit: 3,
	}
}

func TestPublishVideo_CreatesPollsAndPublishes(t *testing.T) {
	var statusChecks atomic.Int32
	var created map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v21.0/1784/media":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			w.Write([]byte(`{"id":"container-9"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v21.0/container-9":
			if statusChecks.Add(1) == 1 {
				w.Write([]byte(`{"id":"container-9","status_code":"IN_PROGRESS"}`))
				return
			}
			w.Write([]byte(`{"id":"container-9","status_code":"FINISHED"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v21.0/1784/media_publish":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "container-9", body["creation_id"])
			w.Write([]byte(`{"id":"media-77"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	stager := &fakeStager{}
	client := NewAuthorizedClient(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-1"}), srv.Client().Transport)
	pub := NewInstagramService(newGraphConfig(srv.URL), stager, client, noSleep)

	res, err := pub.PublishVideo(context.Background(), PublishRequest{Media: []byte("video"), Cover: []byte("cover"), Caption: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "media-77", res.MediaID)
	assert.Equal(t, "REELS", created["media_type"])
	assert.Equal(t, "hello", created["caption"])
	assert.NotEmpty(t, created["video_url"])
	assert.NotEmpty(t, created["cover_url"])
	assert.Equal(t, int32(2), statusChecks.Load())
	assert.Equal(t, int32(2), stager.cleaned.Load())
}

func TestPublishPhoto_TransientGraphError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Please retry","code":2,"is_transient":true}}`))
	}))
	defer srv.Close()

	client := NewAuthorizedClient(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-1"}), srv.Client().Transport)
	pub := NewInstagramService(newGraphConfig(srv.URL), &fakeStager{}, client, noSleep)

	_, err := pub.PublishPhoto(context.Background(), PublishRequest{Media: jpegBytes})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Contains(t, err.Error(), "Please retry")
}

func TestPublishPhoto_NonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>502 Bad Gateway</html>\n"))
	}))
	defer srv.Close()

	client := NewAuthorizedClient(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-1"}), srv.Client().Transport)
	pub := NewInstagramService(newGraphConfig(srv.URL), &fakeStager{}, client, noSleep)

	_, err := pub.PublishPhoto(context.Background(), PublishRequest{Media: jpegBytes})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Contains(t, err.Error(), "502: <html>502 Bad Gateway</html>:")
}

func TestPublishPhoto_ContainerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Write([]byte(`{"id":"c1"}`))
			return
		}
		w.Write([]byte(`{"id":"c1","status_code":"ERROR","status":"Error: unsupported aspect ratio"}`))
	}))
	defer srv.Close()

	client := NewAuthorizedClient(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-1"}), srv.Client().Transport)
	pub := NewInstagramService(newGraphConfig(srv.URL), &fakeStager{}, client, noSleep)

	_, err := pub.PublishPhoto(context.Background(), PublishRequest{Media: jpegBytes})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidMedia))
}

func TestPublishPhoto_ContainerNeverFinishes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Write([]byte(`{"id":"c1"}`))
			return
		}
		w.Write([]byte(`{"id":"c1","status_code":"IN_PROGRESS"}`))
	}))
	defer srv.Close()

	client := NewAuthorizedClient(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-1"}), srv.Client().Transport)
	pub := NewInstagramService(newGraphConfig(srv.URL), &fakeStager{}, client, noSleep)

	_, err := pub.PublishPhoto(context.Background(), PublishRequest{Media: jpegBytes})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransient))
}
