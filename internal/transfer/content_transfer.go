package transfer

import (
	"bytes"
	"encoding/json"
)

// FlexibleID accepts ids sent either as JSON strings or as numbers.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexibleID(n.String())
	return nil
}

const (
	RemoteMediaPhoto    = 1
	RemoteMediaVideo    = 2
	RemoteMediaCarousel = 8
)

type RemoteMediaURL struct {
	URL string `json:"url"`
}

type RemotePost struct {
	ID            FlexibleID       `json:"id"`
	Code          string           `json:"code"`
	MediaType     int              `json:"media_type"`
	TakenAt       int64            `json:"taken_at"`
	VideoVersions []RemoteMediaURL `json:"video_versions"`
	Videos        []RemoteMediaURL `json:"videos"`
	ImageVersions struct {
		Candidates []RemoteMediaURL `json:"candidates"`
	} `json:"image_versions2"`
	Images struct {
		StandardResolution RemoteMediaURL `json:"standard_resolution"`
	} `json:"images"`
	CarouselMedia []RemotePost `json:"carousel_media"`
	User          struct {
		Username string `json:"username"`
	} `json:"user"`
}

// RemotePostsEnvelope covers the shapes the content API has been seen to return:
// {"data":{"items":[...]}}, {"items":[...]} and a bare array.
type RemotePostsEnvelope struct {
	Data struct {
		Items []RemotePost `json:"items"`
	} `json:"data"`
	Items []RemotePost `json:"items"`
}

func DecodeRemotePosts(body []byte) ([]RemotePost, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var items []RemotePost
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var env RemotePostsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if len(env.Data.Items) > 0 {
		return env.Data.Items, nil
	}
	return env.Items, nil
}

// MediaURL returns the download URL and whether the post is a video.
func (p RemotePost) MediaURL() (string, bool) {
	switch p.MediaType {
	case RemoteMediaVideo:
		if u := firstURL(p.VideoVersions, p.Videos); u != "" {
			return u, true
		}
	case RemoteMediaPhoto:
		if u := firstURL(p.ImageVersions.Candidates); u != "" {
			return u, false
		}
		return p.Images.StandardResolution.URL, false
	case RemoteMediaCarousel:
		if len(p.CarouselMedia) > 0 {
			return p.CarouselMedia[0].MediaURL()
		}
		if u := firstURL(p.ImageVersions.Candidates); u != "" {
			return u, false
		}
	}
	return "", false
}

func (p RemotePost) Identifier() string {
	if p.ID != "" {
		return string(p.ID)
	}
	return p.Code
}

func firstURL(lists ...[]RemoteMediaURL) string {
	for _, l := range lists {
		for _, u := range l {
			if u.URL != "" {
				return u.URL
			}
		}
	}
	return ""
}
