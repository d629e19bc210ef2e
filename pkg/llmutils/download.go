package llmutils

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
)

// DownloadImageData fetches an image over HTTP and returns its MIME type
// (e.g. "image/png") and raw bytes. Network and status failures carry the
// transport failure kind.
func DownloadImageData(ctx context.Context, url string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, errors.Wrap(err, "invalid image url")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, llms.Wrap(llms.ErrTransport, err, "failed to fetch image")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, errors.WithMessagef(llms.ErrorFromStatusCode(resp.StatusCode), "failed to fetch image from %s", url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, llms.Wrap(llms.ErrTransport, err, "failed to read image bytes")
	}

	contentType := resp.Header.Get("Content-Type")
	mimeType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mimeType, "image/") {
		return "", nil, errors.Newf("unexpected content type %q for image url", contentType)
	}

	return mimeType, data, nil
}
