package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/uruk/internal/testevents"
)

// Default configuration constants.
const (
	defaultNumEvents  = 1000
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL        = flag.String("url", "http://localhost:9080", "Base URL of the receiver")
		eventsPath     = flag.String("path", "/events", "Push endpoint path")
		numEvents      = flag.Int("events", defaultNumEvents, "Number of SETs to push")
		workers        = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent pushes")
		timeout        = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		replay         = flag.Bool("replay", false, "Push every token twice")
		issuer         = flag.String("iss", "https://transmitter.example", "SET issuer")
		audience       = flag.String("aud", "uruk", "SET audience")
		signingKey     = flag.String("key", "", "HS256 signing key registered for the client")
		clientID       = flag.String("client", "Bob", "Client ID, sent as the bearer subject")
		bearerSecret   = flag.String("bearer-secret", "", "HS256 secret shared with the receiver's authenticator")
		bearerIssuer   = flag.String("bearer-iss", "", "Bearer token issuer")
		bearerAudience = flag.String("bearer-aud", "", "Bearer token audience")
		outputFile     = flag.String("output", "", "Write minted tokens to this JSON file")
		logFile        = flag.String("log", "", "Also log to this file")
		verbose        = flag.Bool("verbose", false, "Log every push that is not accepted")
		help           = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testevents.ShowHelp()
		return
	}
	if *signingKey == "" || *bearerSecret == "" {
		os.Stderr.WriteString("-key and -bearer-secret are required\n")
		os.Exit(2)
	}

	if err := testevents.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &testevents.Config{
		BaseURL:        *baseURL,
		EventsPath:     *eventsPath,
		NumEvents:      *numEvents,
		Workers:        *workers,
		Timeout:        *timeout,
		Replay:         *replay,
		OutputFile:     *outputFile,
		LogFile:        *logFile,
		Verbose:        *verbose,
		Issuer:         *issuer,
		Audience:       *audience,
		SigningKey:     *signingKey,
		ClientID:       *clientID,
		BearerSecret:   *bearerSecret,
		BearerIssuer:   *bearerIssuer,
		BearerAudience: *bearerAudience,
	}

	stats, err := testevents.Run(ctx, config)
	if err != nil {
		os.Stderr.WriteString("Run failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
	if stats.TokensFailed > 0 {
		cancel()
		os.Exit(1)
	}
}
