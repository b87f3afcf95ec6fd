// Package mirrorclient calls the mirror HTTP API.
package mirrorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trustScope/internal/mirror"
	"trustScope/internal/model"
)

const defaultTimeout = 30 * time.Second

// StatusError is a non-2xx mirror response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("mirror: status %d", e.Code)
	}
	return fmt.Sprintf("mirror: status %d: %s", e.Code, e.Message)
}

// IsConflict reports whether err is a 409 from the mirror.
func IsConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

// IsNotFound reports whether err is a 404 from the mirror.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func hasStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client is a client for the mirror service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a mirror client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Profile reads GET /users/{wallet}.
func (c *Client) Profile(ctx context.Context, wallet string) (model.Profile, error) {
	var resp mirror.ProfileResponse
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(wallet), nil, &resp); err != nil {
		return model.Profile{}, err
	}
	return resp.Profile, nil
}

// RecordAttestation calls POST /attestations.
func (c *Client) RecordAttestation(ctx context.Context, req mirror.RecordAttestationRequest) (model.Attestation, error) {
	var resp mirror.AttestationResponse
	if err := c.do(ctx, http.MethodPost, "/attestations", req, &resp); err != nil {
		return model.Attestation{}, err
	}
	return resp.Attestation, nil
}

// RevokeAttestation calls POST /attestations/revoke.
func (c *Client) RevokeAttestation(ctx context.Context, req mirror.RevokeAttestationRequest) error {
	return c.do(ctx, http.MethodPost, "/attestations/revoke", req, nil)
}

// GetProject reads GET /projects/{id}.
func (c *Client) GetProject(ctx context.Context, id int64) (model.Project, error) {
	var resp mirror.ProjectResponse
	if err := c.do(ctx, http.MethodGet, "/projects/"+strconv.FormatInt(id, 10), nil, &resp); err != nil {
		return model.Project{}, err
	}
	return resp.Project, nil
}

// PatchProject calls PATCH /projects/{id}.
func (c *Client) PatchProject(ctx context.Context, id int64, patch model.ProjectPatch) (model.Project, error) {
	var resp mirror.ProjectResponse
	if err := c.do(ctx, http.MethodPatch, "/projects/"+strconv.FormatInt(id, 10), patch, &resp); err != nil {
		return model.Project{}, err
	}
	return resp.Project, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("mirror request",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp mirror.ErrorResponse
		_ = json.Unmarshal(respBody, &errResp)
		return &StatusError{Code: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
