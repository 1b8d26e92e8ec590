package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	probeRetryMax     = 1000
	probeRetryWaitMin = 100 * time.Millisecond
	probeRetryWaitMax = time.Second
	maxHealthBody     = 64 << 10
)

// Probe polls a /health URL until the server answers or ctx expires.
// Connection errors and 5xx responses are retried.
func Probe(ctx context.Context, url string, log *zap.Logger) (*HealthResponse, error) {
	if log == nil {
		log = zap.NewNop()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = probeRetryMax
	client.RetryWaitMin = probeRetryWaitMin
	client.RetryWaitMax = probeRetryWaitMax
	client.Logger = leveledLogger{log.Sugar()}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("probe request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHealthBody))
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("probe %s: unexpected status %s", url, resp.Status)
	}

	var health HealthResponse
	if err := sonic.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("probe %s: decode health: %w", url, err)
	}
	return &health, nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
