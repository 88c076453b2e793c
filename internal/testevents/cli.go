package testevents

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/uruk/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends log output to stdout and, when logFile is set, to that file.
// "auto" picks a timestamped filename.
func SetupLogging(logFile string) error {
	if logFile == "" {
		return logger.InitWith(logger.FormatText, os.Stdout)
	}
	if logFile == "auto" {
		logFile = "set_sender_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	return logger.InitWith(logger.FormatText, io.MultiWriter(os.Stdout, file))
}

// ShowHelp prints usage information for the sender.
func ShowHelp() {
	os.Stdout.WriteString(`uruk SET sender
===============

Mints signed security event tokens and pushes them to an uruk receiver.

Usage:
  go run ./cmd/set-sender [options]

Options:
  -url string            Base URL of the receiver (default "http://localhost:9080")
  -path string           Push endpoint path (default "/events")
  -events int            Number of SETs to push (default 1000)
  -workers int           Concurrent pushes (default CPU cores * 2)
  -timeout duration      HTTP request timeout (default 30s)
  -replay                Push every token twice
  -iss string            SET issuer (default "https://transmitter.example")
  -aud string            SET audience (default "uruk")
  -key string            HS256 signing key registered for the client
  -client string         Client ID, sent as the bearer subject (default "Bob")
  -bearer-secret string  HS256 secret shared with the receiver's authenticator
  -bearer-iss string     Bearer token issuer
  -bearer-aud string     Bearer token audience
  -output string         Write minted tokens to this JSON file
  -log string            Also log to this file ("auto" for a timestamped name)
  -verbose               Log every push that is not accepted
  -help                  Show this help message

Examples:
  go run ./cmd/set-sender -key "$BOB_KEY" -bearer-secret "$URUK_AUTH__SECRET"
  go run ./cmd/set-sender -events 50000 -workers 64 -replay -key k -bearer-secret s
`)
}
