package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransient marks failures worth retrying: rate limiting, timeouts, 5xx.
	ErrTransient = errors.New("transient external error")
	// ErrPermanent marks failures that make a candidate or source unusable: not found, forbidden.
	ErrPermanent = errors.New("permanent external error")
	// ErrInvalidMedia marks media that fails validation, such as a video outside the duration bounds.
	ErrInvalidMedia = errors.New("invalid media")
)

// FetchError is an HTTP failure from an external backend, classified onto the taxonomy above.
type FetchError struct {
	Account    string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	target := e.URL
	if e.Account != "" {
		target = "@" + e.Account
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", target, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", target, e.Err)
}

func (e *FetchError) Unwrap() []error {
	out := []error{e.class()}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func (e *FetchError) class() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return ErrTransient
	case e.StatusCode >= 400:
		return ErrPermanent
	case errors.Is(e.Err, context.DeadlineExceeded):
		return ErrTransient
	case e.Err != nil:
		return ErrTransient
	default:
		return ErrPermanent
	}
}
