package testevents

import "time"

// Config holds configuration for a sender run.
type Config struct {
	BaseURL    string        // Base URL of the receiver
	EventsPath string        // Push endpoint path
	NumEvents  int           // Number of SETs to mint and push
	Workers    int           // Number of concurrent pushes
	Timeout    time.Duration // HTTP request timeout
	Replay     bool          // Push every token a second time
	OutputFile string        // Output file for minted tokens
	LogFile    string        // Log file for run output
	Verbose    bool          // Log every non-accepted response

	// SET claims and signing key; must match a registration on the receiver.
	Issuer     string
	Audience   string
	SigningKey string

	// Bearer token presented on every push.
	ClientID       string
	BearerSecret   string
	BearerIssuer   string
	BearerAudience string
}

// Token is a minted SET together with its identifier.
type Token struct {
	JTI string `json:"jti"`
	JWT string `json:"jwt"`
}

// ErrorResponse is the body the receiver sends with a rejection.
type ErrorResponse struct {
	Err         string `json:"err"`
	Description string `json:"description,omitempty"`
}

// Stats holds run statistics.
type Stats struct {
	TokensMinted   int
	TokensPushed   int
	TokensAccepted int
	TokensReplayed int
	TokensFailed   int
	StatusCounts   map[int]int
	ErrorCounts    map[string]int
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}
