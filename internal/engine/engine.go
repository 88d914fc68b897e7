package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/wondr/rembg/internal/apperrors"
)

const maxOutputBytes = 256 << 20

// Engine removes the background from an image. Implementations must be safe
// for concurrent use; one instance is shared by all requests.
type Engine interface {
	RemoveBackground(ctx context.Context, img image.Image) (image.Image, error)
}

// HTTPEngine calls a model sidecar that exposes POST /remove-background
// (PNG in, PNG with transparent background out) and GET /health.
type HTTPEngine struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// Config holds engine configuration
type Config struct {
	URL          string
	APIKey       string
	Timeout      time.Duration
	ProbeOnStart bool
	HTTPClient   *http.Client // Optional: defaults to a client with Timeout
}

// InitEngine builds the process-wide engine handle, probing the sidecar
// first when ProbeOnStart is set.
func InitEngine(ctx context.Context, config Config) (*HTTPEngine, error) {
	if config.URL == "" {
		return nil, errors.New("engine URL required")
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	e := &HTTPEngine{
		baseURL: config.URL,
		apiKey:  config.APIKey,
		client:  client,
	}

	if config.ProbeOnStart {
		if err := e.Health(ctx); err != nil {
			return nil, fmt.Errorf("engine probe failed: %w", err)
		}
	}
	return e, nil
}

// Health reports whether the sidecar answers its health endpoint
func (e *HTTPEngine) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return apperrors.New(apperrors.EngineUnavailable, "failed to build engine request", err)
	}
	e.authorize(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return apperrors.New(apperrors.EngineUnavailable, "engine unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return apperrors.Newf(apperrors.EngineUnavailable, "engine health returned status %d", resp.StatusCode)
	}
	return nil
}

func (e *HTTPEngine) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	var body bytes.Buffer
	if err := (&png.Encoder{CompressionLevel: png.BestSpeed}).Encode(&body, img); err != nil {
		return nil, apperrors.New(apperrors.EngineFailed, "failed to encode engine input", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/remove-background", &body)
	if err != nil {
		return nil, apperrors.New(apperrors.EngineFailed, "failed to build engine request", err)
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "image/png")
	e.authorize(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.EngineUnavailable, "engine unreachable", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, apperrors.Newf(apperrors.EngineUnavailable, "engine returned status %d", resp.StatusCode)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.Newf(apperrors.EngineFailed, "engine returned status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	out, err := png.Decode(io.LimitReader(resp.Body, maxOutputBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.New(apperrors.EngineUnavailable, "engine call timed out", ctx.Err())
		}
		return nil, apperrors.New(apperrors.EngineFailed, "engine returned an undecodable image", err)
	}
	return out, nil
}

func (e *HTTPEngine) authorize(req *http.Request) {
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
}
