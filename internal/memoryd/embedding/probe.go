package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pi-llama/memoryd/common/retry"
)

// WaitReady polls GET <baseURL>/health until llama-server reports 200 or
// the retry budget runs out. llama-server answers 503 while the model is
// still loading; a 404 means the server has no health route and is treated
// as ready-unknown (a permanent error, no further polling).
func WaitReady(ctx context.Context, baseURL string, client *http.Client, cfg retry.Config) error {
	if client == nil {
		client = http.DefaultClient
	}
	url := strings.TrimRight(baseURL, "/") + "/health"

	return retry.Do(ctx, cfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("embedding probe: create request: %w", err))
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("embedding probe: %w", err)
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return retry.Permanent(fmt.Errorf("embedding probe: %s has no health endpoint", baseURL))
		default:
			return fmt.Errorf("embedding probe: HTTP %d", resp.StatusCode)
		}
	})
}
