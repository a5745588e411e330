package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/chatmod/chatmod/internal/setup/config"
	"github.com/chatmod/chatmod/pkg/utils"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a path does not exist in the remote repository.
	ErrNotFound = errors.New("path not found in remote repository")
	// ErrRemoteUnavailable is returned when the remote repository cannot be reached.
	ErrRemoteUnavailable = errors.New("remote repository unavailable")
)

// RemoteClient is the persistence contract to the authoritative store.
type RemoteClient interface {
	// Read returns the content stored at path, or ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, error)
	// Write stores content at path with the given commit message.
	Write(ctx context.Context, path string, content []byte, message string) error
}

// RepoClient talks to a GitHub-style contents API.
type RepoClient struct {
	httpClient      *http.Client
	baseURL         string
	token           string
	owner           string
	repo            string
	branch          string
	downloadTimeout time.Duration
	logger          *zap.Logger
}

// NewRepoClient creates a remote repository client from configuration.
func NewRepoClient(cfg *config.Repository, logger *zap.Logger) *RepoClient {
	downloadTimeout := time.Duration(cfg.DownloadTimeout) * time.Millisecond
	if downloadTimeout <= 0 {
		downloadTimeout = 30 * time.Second
	}

	return &RepoClient{
		httpClient:      &http.Client{},
		baseURL:         cfg.BaseURL,
		token:           cfg.Token,
		owner:           cfg.Owner,
		repo:            cfg.Name,
		branch:          cfg.Branch,
		downloadTimeout: downloadTimeout,
		logger:          logger.Named("repo_client"),
	}
}

// contentsURL builds the contents API URL for a repository path.
func (c *RepoClient) contentsURL(path string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", c.baseURL, c.owner, c.repo, path, c.branch)
}

// Read downloads the raw content stored at path. Large-object downloads are
// bounded by a client-side timeout; hitting it fails this read only, not the
// surrounding request.
func (c *RepoClient) Read(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.contentsURL(path), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build read request: %w", err)
	}

	c.setHeaders(req)
	req.Header.Set("Accept", "application/vnd.github.raw+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d for %s", ErrRemoteUnavailable, resp.StatusCode, path)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d reading %s", resp.StatusCode, path)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return content, nil
}

// Write stores content at path. Updating an existing file requires its blob
// sha, so the current metadata is fetched first. Writes are retried with
// backoff because they are the durability path for every mutation.
func (c *RepoClient) Write(ctx context.Context, path string, content []byte, message string) error {
	_, err := utils.WithRetry(ctx, func() (struct{}, error) {
		return struct{}{}, c.writeOnce(ctx, path, content, message)
	}, utils.GetStoreRetryOptions())

	return err
}

func (c *RepoClient) writeOnce(ctx context.Context, path string, content []byte, message string) error {
	sha, err := c.currentSHA(ctx, path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	payload := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  c.branch,
	}
	if sha != "" {
		payload["sha"] = sha
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal write payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.contentsURL(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build write request: %w", err)
	}

	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: status %d writing %s", ErrRemoteUnavailable, resp.StatusCode, path)
	}

	c.logger.Debug("Wrote remote document",
		zap.String("path", path),
		zap.Int("bytes", len(content)))

	return nil
}

// currentSHA fetches the blob sha of an existing file, or ErrNotFound.
func (c *RepoClient) currentSHA(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.contentsURL(path), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build metadata request: %w", err)
	}

	c.setHeaders(req)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d for %s", ErrRemoteUnavailable, resp.StatusCode, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metadata body: %w", err)
	}

	var meta struct {
		SHA string `json:"sha"`
	}
	if err := sonic.Unmarshal(body, &meta); err != nil {
		return "", fmt.Errorf("failed to parse metadata: %w", err)
	}

	return meta.SHA, nil
}

func (c *RepoClient) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}
