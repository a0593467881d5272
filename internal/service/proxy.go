// Package service implements the image proxy's decode, fetch and relay logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"collage-devserver/internal/config"
	"collage-devserver/internal/model"
)

// Upstream fetches a URL. *client.ImageClient implements it.
type Upstream interface {
	Get(ctx context.Context, target string) (*model.UpstreamResponse, error)
}

// ImageProxyService turns an encoded path suffix into a fully read image.
type ImageProxyService struct {
	upstream           Upstream
	policy             *HostPolicy
	defaultContentType string
	maxBodyBytes       int64
	logger             *slog.Logger
}

// NewImageProxyService creates an ImageProxyService.
func NewImageProxyService(up Upstream, cfg *config.Config, logger *slog.Logger) *ImageProxyService {
	return &ImageProxyService{
		upstream:           up,
		policy:             NewHostPolicy(&cfg.Proxy),
		defaultContentType: cfg.Proxy.DefaultContentType,
		maxBodyBytes:       cfg.Proxy.MaxBodyBytes,
		logger:             logger.With("component", "image_proxy_service"),
	}
}

// Decode percent-decodes the path suffix into the target URL. The result is
// used verbatim; no scheme or host validation happens here.
func Decode(encoded string) (string, error) {
	target, err := url.PathUnescape(encoded)
	if err != nil {
		return "", &FetchError{Kind: KindDecode, Err: fmt.Errorf("decode target URL: %w", err)}
	}
	if target == "" {
		return "", &FetchError{Kind: KindDecode, Err: errors.New("decode target URL: empty")}
	}
	return target, nil
}

// Fetch decodes the request, fetches the target once and reads the whole body.
// Every failure is returned as a *FetchError.
func (s *ImageProxyService) Fetch(req *model.ImageRequest) (*model.ImageResponse, error) {
	target, err := Decode(req.Encoded)
	if err != nil {
		return nil, err
	}

	if err := s.policy.Check(target); err != nil {
		return nil, &FetchError{Kind: KindBlocked, URL: target, Err: err}
	}

	s.logger.Info("proxying image", "url", target)

	resp, err := s.upstream.Get(req.Ctx, target)
	if err != nil {
		return nil, &FetchError{Kind: classify(err, KindNetwork), URL: target, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &FetchError{
			Kind: KindStatus,
			URL:  target,
			Err:  fmt.Errorf("upstream returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}

	body, err := s.readBody(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: classify(err, KindRead), URL: target, Err: err}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = s.defaultContentType
	}

	return &model.ImageResponse{
		URL:         target,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
	}, nil
}

// readBody reads at most maxBodyBytes; anything longer is an error rather than
// a truncated image.
func (s *ImageProxyService) readBody(r io.Reader) ([]byte, error) {
	if s.maxBodyBytes <= 0 {
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read upstream body: %w", err)
		}
		return body, nil
	}

	body, err := io.ReadAll(io.LimitReader(r, s.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if int64(len(body)) > s.maxBodyBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, s.maxBodyBytes)
	}
	return body, nil
}
