package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/mq/stream"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/model"
	"github.com/robsheahan/tipping-aggregator-web/pkg/logger"
)

const progressInterval = time.Second

// Client talks JSON to the aggregator API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{base: baseURL, http: &http.Client{Timeout: timeout}}
}

// do sends body as JSON and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	code, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, code)
	}
	return nil
}

// RegisterFixture upserts a fixture.
func (c *Client) RegisterFixture(ctx context.Context, f Fixture) error {
	code, err := c.do(ctx, http.MethodPut, "/events/"+url.PathEscape(string(f.EventID)), f, nil)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("%w: register %s: %d", ErrUnexpectedStatus, f.EventID, code)
	}
	return nil
}

// PostSnapshot submits one snapshot. It returns the acknowledgement
// for 202 and 200 responses.
func (c *Client) PostSnapshot(ctx context.Context, s stream.SnapshotMessage) (AckResponse, error) { //nolint:gocritic // wire payload travels by value
	var ack AckResponse
	code, err := c.do(ctx, http.MethodPost, "/snapshots", s, &ack)
	if err != nil {
		return ack, err
	}
	switch code {
	case http.StatusAccepted:
		return ack, nil
	case http.StatusOK:
		ack.Duplicate = true
		return ack, nil
	default:
		return ack, fmt.Errorf("%w: snapshot: %d", ErrUnexpectedStatus, code)
	}
}

// Consensus fetches GET /events/{id}/consensus.
func (c *Client) Consensus(ctx context.Context, id model.EventID) (Consensus, error) {
	var out Consensus
	code, err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(string(id))+"/consensus", nil, &out)
	if err != nil {
		return out, err
	}
	if code != http.StatusOK {
		return out, fmt.Errorf("%w: consensus %s: %d", ErrUnexpectedStatus, id, code)
	}
	return out, nil
}

// fanOut runs fn over items with cfg.Workers goroutines and reports progress.
func fanOut[T any](ctx context.Context, cfg *Config, stage string, items []T, fn func(context.Context, T) error) (ok, failed int) {
	log := logger.Named("simulate")
	var (
		done      int64
		failures  int64
		lastMu    sync.Mutex
		lastPrint = time.Now()
	)

	workers := max(1, min(cfg.Workers, len(items)))
	ch := make(chan T, workers*2)
	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range ch {
				if err := fn(ctx, item); err != nil {
					atomic.AddInt64(&failures, 1)
					if cfg.Verbose {
						log.Warn(ctx, "request failed", logger.String("stage", stage), logger.Error(err))
					}
				}
				n := atomic.AddInt64(&done, 1)

				lastMu.Lock()
				if time.Since(lastPrint) >= progressInterval {
					lastPrint = time.Now()
					log.Info(ctx, "progress",
						logger.String("stage", stage),
						logger.Int64("done", n),
						logger.Int("total", len(items)),
						logger.Int64("failed", atomic.LoadInt64(&failures)))
				}
				lastMu.Unlock()
			}
		}()
	}

	go func() {
		defer close(ch)
		for _, item := range items {
			select {
			case <-ctx.Done():
				return
			case ch <- item:
			}
		}
	}()

	wg.Wait()
	f := int(atomic.LoadInt64(&failures))
	return int(atomic.LoadInt64(&done)) - f, f
}
