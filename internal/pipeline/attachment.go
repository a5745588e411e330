package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
)

// MaxImageBytes caps attached images. Larger downloads are rejected, not
// truncated.
const MaxImageBytes = 3 * 1024 * 1024

// ErrImageTooLarge is returned when an attachment exceeds MaxImageBytes.
var ErrImageTooLarge = errors.New("image attachment exceeds size limit")

// FetchImageDataURI downloads an image and encodes it as a base64 data URI
// for the chat-completion request. The mime type is inferred from the URL's
// file extension.
func FetchImageDataURI(ctx context.Context, httpClient *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create image request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d fetching image", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	if len(data) > MaxImageBytes {
		return "", fmt.Errorf("%w: %s", ErrImageTooLarge, url)
	}

	return fmt.Sprintf("data:%s;base64,%s",
		mimeFromExtension(url), base64.StdEncoding.EncodeToString(data)), nil
}

func mimeFromExtension(url string) string {
	if idx := strings.IndexAny(url, "?#"); idx >= 0 {
		url = url[:idx]
	}

	switch strings.ToLower(path.Ext(url)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
