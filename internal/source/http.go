package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/kioskmon/internal/model"
	"github.com/t77yq/kioskmon/internal/monitor"
)

const (
	statusPath      = "/api/system/status"
	maxStatusBody   = 1 << 20
	defaultHTTPWait = 10 * time.Second
)

// HTTPSource fetches snapshots from a kiosk server's status endpoint
type HTTPSource struct {
	logger     *zap.Logger
	url        string
	httpClient *http.Client
}

// NewHTTPSource creates a source polling <baseURL>/api/system/status
func NewHTTPSource(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPSource {
	if timeout <= 0 {
		timeout = defaultHTTPWait
	}
	return &HTTPSource{
		logger: logger.Named("http-source"),
		url:    strings.TrimRight(baseURL, "/") + statusPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *HTTPSource) Name() string { return "http" }

// Fetch performs one GET against the status endpoint
func (s *HTTPSource) Fetch(ctx context.Context) (*model.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, &monitor.FetchError{Source: s.Name(), Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &monitor.FetchError{Source: s.Name(), Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxStatusBody))
		return nil, &monitor.FetchError{
			Source:     s.Name(),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBody))
	if err != nil {
		return nil, &monitor.FetchError{Source: s.Name(), Err: fmt.Errorf("failed to read response: %w", err)}
	}

	snapshot, err := model.DecodeSnapshot(body)
	if err != nil {
		return nil, &monitor.FetchError{Source: s.Name(), Err: fmt.Errorf("failed to decode status: %w", err)}
	}

	s.logger.Debug("Status fetched",
		zap.String("url", s.url),
		zap.Int("bytes", len(body)))
	return snapshot, nil
}
