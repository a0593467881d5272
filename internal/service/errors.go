package service

import (
	"context"
	"errors"
	"net"
)

// Kind classifies why an image could not be relayed.
type Kind string

// Failure kinds. All of them surface to the client the same way; the kind is
// for logs and metrics.
const (
	KindDecode  Kind = "decode"
	KindBlocked Kind = "blocked"
	KindNetwork Kind = "network"
	KindTimeout Kind = "timeout"
	KindStatus  Kind = "status"
	KindRead    Kind = "read"
)

// ErrBodyTooLarge is returned when an upstream image exceeds proxy.max_body_bytes.
var ErrBodyTooLarge = errors.New("upstream body exceeds size limit")

// FetchError is the single failure type of the image proxy.
type FetchError struct {
	Kind Kind
	// URL is the decoded target, or "" when decoding itself failed.
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// classify picks KindTimeout for deadline errors and fallback otherwise.
func classify(err error, fallback Kind) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return fallback
}
