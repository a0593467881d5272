// Package model defines shared types for the image proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ImageRequest is a client request to relay a remote image.
type ImageRequest struct {
	Ctx context.Context
	// Encoded is the path suffix after the proxy prefix, still percent-encoded.
	Encoded string
}

// UpstreamResponse is the raw upstream answer before its body is read.
// The caller owns Body and must close it.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// ImageResponse is a fully read upstream image ready to relay to the client.
type ImageResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}
