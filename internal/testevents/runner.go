package testevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/uruk/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// ErrNoTokens is returned when there is nothing to save.
var ErrNoTokens = errors.New("no tokens to save")

// Run mints SETs, pushes them to the receiver and reports the outcome.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{
		StartTime:    time.Now(),
		StatusCounts: map[int]int{},
		ErrorCounts:  map[string]int{},
	}
	log := logger.Get()

	log.Info(ctx, "starting SET push run",
		logger.String("baseURL", config.BaseURL),
		logger.String("eventsPath", config.EventsPath),
		logger.Int("events", config.NumEvents),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Bool("replay", config.Replay),
		logger.String("clientID", config.ClientID))

	minter := NewMinter(config)
	bearer, err := minter.BearerToken()
	if err != nil {
		return nil, err
	}
	client := newHTTPClient(config.Timeout, bearer)

	if err := checkServiceHealth(ctx, config, client); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	tokens, err := generateTokens(ctx, config, minter, stats)
	if err != nil {
		return nil, fmt.Errorf("token minting failed: %w", err)
	}

	first := pushTokens(ctx, config, client, tokens)
	merge(stats, first)
	stats.TokensAccepted = int(first.accepted.Load())
	log.Info(ctx, "push completed",
		logger.Int("accepted", stats.TokensAccepted),
		logger.Int("failed", int(first.failed.Load())))

	if config.Replay {
		// A receiver acknowledges a replayed jti exactly like a new one.
		second := pushTokens(ctx, config, client, tokens)
		merge(stats, second)
		stats.TokensReplayed = int(second.accepted.Load())
		log.Info(ctx, "replay completed",
			logger.Int("acknowledged", stats.TokensReplayed),
			logger.Int("failed", int(second.failed.Load())))
	}

	if receiverStats, err := fetchStats(ctx, config, client); err != nil {
		log.Warn(ctx, "failed to fetch receiver stats", logger.Error(err))
	} else {
		log.Info(ctx, "receiver stats", logger.Any("stats", receiverStats))
	}

	if config.OutputFile != "" {
		if err := saveTokensToFile(ctx, config.OutputFile, tokens); err != nil {
			log.Warn(ctx, "failed to save tokens to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, nil
}

func merge(stats *Stats, t *tally) {
	stats.TokensPushed += int(t.pushed.Load())
	stats.TokensFailed += int(t.failed.Load())
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range t.statuses {
		stats.StatusCounts[k] += v
	}
	for k, v := range t.errs {
		stats.ErrorCounts[k] += v
	}
}

// checkServiceHealth verifies the receiver is running.
func checkServiceHealth(ctx context.Context, config *Config, client *HTTPClient) error {
	resp, err := client.Get(ctx, strings.TrimRight(config.BaseURL, "/")+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

func fetchStats(ctx context.Context, config *Config, client *HTTPClient) (map[string]any, error) {
	resp, err := client.Get(ctx, strings.TrimRight(config.BaseURL, "/")+"/stats")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return out, nil
}

// saveTokensToFile writes the minted tokens as a JSON array.
func saveTokensToFile(ctx context.Context, filename string, tokens []Token) error {
	if len(tokens) == 0 {
		return ErrNoTokens
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}
	if err := os.WriteFile(filename, data, logFilePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Get().Info(ctx, "tokens saved to file", logger.String("filename", filename))
	return nil
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var acceptRate, pushesPerSecond float64

	if stats.TokensPushed > 0 {
		acceptRate = float64(stats.TokensAccepted+stats.TokensReplayed) / float64(stats.TokensPushed) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		pushesPerSecond = float64(stats.TokensPushed) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("tokensMinted", stats.TokensMinted),
		logger.Int("tokensPushed", stats.TokensPushed),
		logger.Int("tokensAccepted", stats.TokensAccepted),
		logger.Int("tokensReplayed", stats.TokensReplayed),
		logger.Int("tokensFailed", stats.TokensFailed),
		logger.Any("statusCounts", stats.StatusCounts),
		logger.Any("errorCounts", stats.ErrorCounts),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("pushesPerSecond", pushesPerSecond))
}
