package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/oapi-codegen/runtime"
)

type downloadLink struct {
	DownloadURL string `json:"download_url"`
}

// FileDownloadURL returns a short-lived download URL for a stored file
func (c *Legion) FileDownloadURL(ctx context.Context, fileID int64) (string, error) {
	pathParam, err := runtime.StyleParamWithLocation("simple", false, "id", runtime.ParamLocationPath, strconv.FormatInt(fileID, 10))
	if err != nil {
		return "", fmt.Errorf("failed to encode file id: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/v3/files/%s/download-link", pathParam), nil)
	if err != nil {
		return "", fmt.Errorf("failed to get download link for file %d: %w", fileID, err)
	}

	var link downloadLink
	if err := decodeResponse(resp, &link); err != nil {
		return "", fmt.Errorf("failed to decode download link response: %w", err)
	}
	if link.DownloadURL == "" {
		return "", fmt.Errorf("empty download link for file %d", fileID)
	}

	return link.DownloadURL, nil
}

// DownloadFile streams the content of a stored file into w and returns the number
// of bytes written
func (c *Legion) DownloadFile(ctx context.Context, fileID int64, w io.Writer) (int64, error) {
	link, err := c.FileDownloadURL(ctx, fileID)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download file %d: %w", fileID, err)
	}
	defer closeBody(resp.Body)

	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return 0, parseAPIError(resp.StatusCode, bodyBytes)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to write file %d: %w", fileID, err)
	}

	return n, nil
}
