package testevents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/uruk/pkg/logger"
)

// HTTPClient pushes SETs to a receiver.
type HTTPClient struct {
	client *http.Client
	bearer string
}

func newHTTPClient(timeout time.Duration, bearer string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{Timeout: timeout},
		bearer: bearer,
	}
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Push posts one compact SET and returns the status code and decoded error body.
func (c *HTTPClient) Push(ctx context.Context, url, token string) (int, *ErrorResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(token))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", ContentTypeSET)
	req.Header.Set("Accept", AcceptJSON)
	req.Header.Set("Authorization", "Bearer "+c.bearer)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusAccepted || len(body) == 0 {
		return resp.StatusCode, nil, nil
	}

	var e ErrorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		return resp.StatusCode, nil, nil
	}
	return resp.StatusCode, &e, nil
}

// tally collects push outcomes across workers.
type tally struct {
	pushed   atomic.Int64
	accepted atomic.Int64
	failed   atomic.Int64

	mu       sync.Mutex
	statuses map[int]int
	errs     map[string]int
}

func newTally() *tally {
	return &tally{statuses: map[int]int{}, errs: map[string]int{}}
}

func (t *tally) add(status int, e *ErrorResponse, err error) {
	t.pushed.Add(1)
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case err != nil:
		t.failed.Add(1)
		t.errs["transport"]++
	case status == http.StatusAccepted:
		t.accepted.Add(1)
		t.statuses[status]++
	default:
		t.failed.Add(1)
		t.statuses[status]++
		if e != nil {
			t.errs[e.Err]++
		}
	}
}

// pushTokens posts tokens with at most config.Workers requests in flight.
func pushTokens(ctx context.Context, config *Config, client *HTTPClient, tokens []Token) *tally {
	url := strings.TrimRight(config.BaseURL, "/") + config.EventsPath
	t := newTally()
	log := logger.Get()

	done := make(chan struct{})
	defer close(done)
	if !config.Verbose {
		go reportProgress(done, t, len(tokens))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(config.Workers, 1))
	for _, tok := range tokens {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			status, e, err := client.Push(gctx, url, tok.JWT)
			t.add(status, e, err)
			if config.Verbose && status != http.StatusAccepted {
				fields := []logger.Field{logger.String("jti", tok.JTI), logger.Int("status", status)}
				if e != nil {
					fields = append(fields, logger.String("err", e.Err))
				}
				if err != nil {
					fields = append(fields, logger.Error(err))
				}
				log.Warn(gctx, "push not accepted", fields...)
			}
			return nil
		})
	}
	_ = g.Wait()

	if !config.Verbose {
		fmt.Println()
	}
	return t
}

func reportProgress(done <-chan struct{}, t *tally, total int) {
	ticker := time.NewTicker(ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			fmt.Printf("\rPushed: %d/%d (accepted: %d, failed: %d)",
				t.pushed.Load(), total, t.accepted.Load(), t.failed.Load())
		}
	}
}
