package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	httpTimeout  = 10 * time.Second
	errBodyLimit = 512
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// postJSON POSTs v as JSON and fails on any non-2xx status, quoting the
// start of the response body.
func postJSON(ctx context.Context, client *http.Client, url string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		if msg := strings.TrimSpace(string(snippet)); msg != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
