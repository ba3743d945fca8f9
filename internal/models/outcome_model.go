package models

type PostStatus string

const (
	PostStatusSuccess PostStatus = "success"
	PostStatusSkipped PostStatus = "skipped"
	PostStatusFailed  PostStatus = "failed"
)

type PostOutcome struct {
	Status       PostStatus
	Reason       string
	Err          error
	Candidate    MediaCandidate
	MediaID      string
	Attempts     int
	FetchRetries int
}
