package testevents

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/uruk/internal/adapters/http/api"
	service "github.com/okian/uruk/internal/app"
	"github.com/okian/uruk/internal/config"
	"github.com/okian/uruk/pkg/logger"
)

var (
	bobKey       = strings.Repeat("a", 128)
	bearerSecret = "s3cret"
)

func TestMain(m *testing.M) {
	_ = logger.InitWith(logger.FormatText, io.Discard)
	os.Exit(m.Run())
}

func runConfig(baseURL string) *Config {
	return &Config{
		BaseURL:      baseURL,
		EventsPath:   "/events",
		NumEvents:    20,
		Workers:      4,
		Timeout:      5 * time.Second,
		Issuer:       "https://transmitter.example",
		Audience:     "uruk",
		SigningKey:   bobKey,
		ClientID:     "Bob",
		BearerSecret: bearerSecret,
	}
}

// startReceiver runs a full receiver with an in-memory store behind an httptest server.
func startReceiver(ctx context.Context) (*httptest.Server, *service.Service) {
	cfg := config.New(ctx)
	cfg.Auth.Secret = bearerSecret
	cfg.QueueSize = 100
	cfg.WorkerCount = 2
	cfg.Registrations = []config.Registration{
		{ClientID: "Bob", Algorithm: "HS256", Key: bobKey},
	}

	svc := service.New(cfg)
	if err := svc.Start(ctx); err != nil {
		panic(err)
	}
	srv, err := api.NewServer(svc, api.NewBearerAuthenticator([]byte(bearerSecret), "", ""))
	if err != nil {
		panic(err)
	}
	mux := http.NewServeMux()
	srv.Register(ctx, mux)
	return httptest.NewServer(mux), svc
}

func TestMinter(t *testing.T) {
	convey.Convey("Given a minter", t, func() {
		m := NewMinter(runConfig("http://unused"))
		fixed := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
		m.now = func() time.Time { return fixed }

		convey.Convey("When a SET is minted", func() {
			s, err := m.MintSET("abc123")
			convey.So(err, convey.ShouldBeNil)

			claims := jwt.MapClaims{}
			tok, err := jwt.ParseWithClaims(s, claims, func(*jwt.Token) (any, error) { return []byte(bobKey), nil },
				jwt.WithoutClaimsValidation())
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then it should carry the SET header and claims", func() {
				convey.So(tok.Header["typ"], convey.ShouldEqual, "secevent+jwt")
				convey.So(tok.Header["alg"], convey.ShouldEqual, "HS256")
				convey.So(claims["iss"], convey.ShouldEqual, "https://transmitter.example")
				convey.So(claims["aud"], convey.ShouldEqual, "uruk")
				convey.So(claims["jti"], convey.ShouldEqual, "abc123")
				convey.So(claims["iat"], convey.ShouldEqual, float64(fixed.Unix()))
				convey.So(claims["events"], convey.ShouldContainKey, "test")
			})
		})

		convey.Convey("When a bearer token is minted", func() {
			s, err := m.BearerToken()
			convey.So(err, convey.ShouldBeNil)

			claims := &jwt.RegisteredClaims{}
			_, err = jwt.ParseWithClaims(s, claims, func(*jwt.Token) (any, error) { return []byte(bearerSecret), nil },
				jwt.WithoutClaimsValidation())
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the subject is the client and it expires", func() {
				convey.So(claims.Subject, convey.ShouldEqual, "Bob")
				convey.So(claims.ExpiresAt.Unix(), convey.ShouldEqual, fixed.Add(BearerTTL).Unix())
				convey.So(claims.Audience, convey.ShouldBeEmpty)
			})
		})
	})
}

func TestPush(t *testing.T) {
	convey.Convey("Given a stub receiver", t, func() {
		var (
			gotContentType, gotAccept, gotAuth string
		)
		stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotContentType = r.Header.Get("Content-Type")
			gotAccept = r.Header.Get("Accept")
			gotAuth = r.Header.Get("Authorization")
			body, _ := io.ReadAll(r.Body)
			if string(body) == "bad" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"err":"invalid_request","description":"malformed"}`))
				return
			}
			w.WriteHeader(http.StatusAccepted)
		}))
		defer stub.Close()

		client := newHTTPClient(time.Second, "tok")

		convey.Convey("When a token is accepted", func() {
			status, e, err := client.Push(context.Background(), stub.URL+"/events", "good")
			convey.So(err, convey.ShouldBeNil)
			convey.So(status, convey.ShouldEqual, http.StatusAccepted)
			convey.So(e, convey.ShouldBeNil)

			convey.Convey("Then the push headers should be set", func() {
				convey.So(gotContentType, convey.ShouldEqual, ContentTypeSET)
				convey.So(gotAccept, convey.ShouldEqual, AcceptJSON)
				convey.So(gotAuth, convey.ShouldEqual, "Bearer tok")
			})
		})

		convey.Convey("When a token is rejected", func() {
			status, e, err := client.Push(context.Background(), stub.URL+"/events", "bad")
			convey.So(err, convey.ShouldBeNil)
			convey.So(status, convey.ShouldEqual, http.StatusBadRequest)
			convey.So(e, convey.ShouldNotBeNil)
			convey.So(e.Err, convey.ShouldEqual, "invalid_request")
			convey.So(e.Description, convey.ShouldEqual, "malformed")
		})

		convey.Convey("When outcomes are tallied", func() {
			tl := newTally()
			tl.add(http.StatusAccepted, nil, nil)
			tl.add(http.StatusBadRequest, &ErrorResponse{Err: "invalid_key"}, nil)
			tl.add(0, nil, io.ErrUnexpectedEOF)

			stats := &Stats{StatusCounts: map[int]int{}, ErrorCounts: map[string]int{}}
			merge(stats, tl)

			convey.So(stats.TokensPushed, convey.ShouldEqual, 3)
			convey.So(stats.TokensFailed, convey.ShouldEqual, 2)
			convey.So(stats.StatusCounts[http.StatusAccepted], convey.ShouldEqual, 1)
			convey.So(stats.ErrorCounts["invalid_key"], convey.ShouldEqual, 1)
			convey.So(stats.ErrorCounts["transport"], convey.ShouldEqual, 1)
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a running receiver", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		srv, svc := startReceiver(ctx)
		defer srv.Close()
		defer func() { _ = svc.Stop(context.Background()) }()

		convey.Convey("When the sender pushes and replays", func() {
			cfg := runConfig(srv.URL)
			cfg.Replay = true
			cfg.OutputFile = filepath.Join(t.TempDir(), "out", "tokens.json")

			stats, err := Run(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then every push is acknowledged", func() {
				convey.So(stats.TokensMinted, convey.ShouldEqual, 20)
				convey.So(stats.TokensPushed, convey.ShouldEqual, 40)
				convey.So(stats.TokensAccepted, convey.ShouldEqual, 20)
				convey.So(stats.TokensReplayed, convey.ShouldEqual, 20)
				convey.So(stats.TokensFailed, convey.ShouldEqual, 0)
				convey.So(stats.StatusCounts[http.StatusAccepted], convey.ShouldEqual, 40)
			})

			convey.Convey("Then replays are stored once", func() {
				mem, ok := svc.MemoryStore()
				convey.So(ok, convey.ShouldBeTrue)
				deadline := time.Now().Add(2 * time.Second)
				for mem.Count(ctx) < 20 && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				convey.So(mem.Count(ctx), convey.ShouldEqual, 20)
			})

			convey.Convey("Then the minted tokens are saved", func() {
				data, err := os.ReadFile(cfg.OutputFile)
				convey.So(err, convey.ShouldBeNil)
				var tokens []Token
				convey.So(json.Unmarshal(data, &tokens), convey.ShouldBeNil)
				convey.So(tokens, convey.ShouldHaveLength, 20)
			})
		})

		convey.Convey("When the signing key does not match the registration", func() {
			cfg := runConfig(srv.URL)
			cfg.NumEvents = 3
			cfg.SigningKey = strings.Repeat("b", 128)

			stats, err := Run(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(stats.TokensFailed, convey.ShouldEqual, 3)
			convey.So(stats.StatusCounts[http.StatusBadRequest], convey.ShouldEqual, 3)
			convey.So(stats.ErrorCounts["invalid_key"], convey.ShouldEqual, 3)
		})

		convey.Convey("When the bearer secret is wrong", func() {
			cfg := runConfig(srv.URL)
			cfg.NumEvents = 2
			cfg.BearerSecret = "nope"

			stats, err := Run(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(stats.StatusCounts[http.StatusUnauthorized], convey.ShouldEqual, 2)
			convey.So(stats.ErrorCounts["authentication_failed"], convey.ShouldEqual, 2)
		})

		convey.Convey("When the receiver is unreachable", func() {
			cfg := runConfig("http://127.0.0.1:1")
			_, err := Run(ctx, cfg)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "health check")
		})
	})
}

func TestSaveTokensToFile(t *testing.T) {
	convey.Convey("Saving no tokens should fail", t, func() {
		err := saveTokensToFile(context.Background(), filepath.Join(t.TempDir(), "x.json"), nil)
		convey.So(err, convey.ShouldEqual, ErrNoTokens)
	})
}
