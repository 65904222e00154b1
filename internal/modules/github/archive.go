package github

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// limitedBuffer fails the copy once more than max bytes are written.
type limitedBuffer struct {
	buf bytes.Buffer
	max int64
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.max > 0 && int64(b.buf.Len()+len(p)) > b.max {
		return 0, ErrArchiveTooLarge
	}
	return b.buf.Write(p)
}

// DownloadArchive fetches the default-branch zipball of loc into memory.
// GitHub answers with a redirect to codeload, which the HTTP client follows.
func (c *Client) DownloadArchive(ctx context.Context, loc Locator) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := fmt.Sprintf("repos/%s/%s/zipball", loc.Owner, loc.Repo)
	req, err := c.archive.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("github: build archive request: %w", err)
	}

	out := &limitedBuffer{max: c.maxArchiveBytes}
	resp, err := c.archive.Do(ctx, req, out)
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return nil, c.wrapError(err, "download archive")
	}
	if out.buf.Len() == 0 {
		return nil, fmt.Errorf("github: empty archive for %s", loc)
	}
	return out.buf.Bytes(), nil
}
