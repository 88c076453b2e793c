package service_test

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/uruk/internal/app"
	"github.com/okian/uruk/internal/config"
	"github.com/okian/uruk/internal/domain/intake"
	"github.com/okian/uruk/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.InitWith(logger.FormatText, io.Discard); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var bobKey = strings.Repeat("a", 128)

func testConfig() *config.Config {
	cfg := config.New(context.Background())
	cfg.Auth.Secret = "s3cret"
	cfg.QueueSize = 100
	cfg.WorkerCount = 2
	cfg.Registrations = []config.Registration{
		{ClientID: "Bob", Algorithm: "HS256", Key: bobKey},
	}
	return cfg
}

// mintSET signs a security event token the way a transmitter would.
func mintSET(jti string) []byte {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":    "https://transmitter.example",
		"aud":    "uruk",
		"iat":    time.Now().Unix(),
		"jti":    jti,
		"events": map[string]any{"test": map[string]any{}},
	})
	tok.Header["typ"] = "secevent+jwt"
	s, err := tok.SignedString([]byte(bobKey))
	if err != nil {
		panic(err)
	}
	return []byte(s)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestService_Start(t *testing.T) {
	Convey("Given a new service", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc := service.New(testConfig())

		Convey("Before Start nothing is accepted", func() {
			stats := svc.GetStats(ctx)
			So(stats["started"], ShouldEqual, false)

			res := svc.Process(ctx, mintSET("x"), nil)
			So(res.Accepted, ShouldBeFalse)
			So(res.Operational, ShouldBeTrue)
			So(res.Code, ShouldEqual, intake.CodeQueueUnavailable)
			So(res.Description, ShouldEqual, "An error occurred when adding the event to the queue.")
		})

		Convey("When starting the service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			defer func() { _ = svc.Stop(ctx) }()

			Convey("Then registrations are loaded", func() {
				p, ok := svc.Lookup("Bob")
				So(ok, ShouldBeTrue)
				So(p.Audience(), ShouldEqual, "uruk")
				_, ok = svc.Lookup("Mallory")
				So(ok, ShouldBeFalse)
			})

			Convey("Then stats report the running components", func() {
				stats := svc.GetStats(ctx)
				So(stats["started"], ShouldEqual, true)
				So(stats["registrations"], ShouldEqual, 1)
				So(stats["workerCount"], ShouldEqual, 2)
				So(stats["queueCapacity"], ShouldEqual, 100)
				So(stats["store"], ShouldEqual, "memory")
			})

			Convey("Then starting twice is harmless", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})
		})
	})

	Convey("Given a config with a broken registration", t, func() {
		cfg := testConfig()
		cfg.Registrations[0].Algorithm = "none"

		err := service.New(cfg).Start(context.Background())
		So(err, ShouldNotBeNil)
	})

	Convey("Given an unknown store backend", t, func() {
		cfg := testConfig()
		cfg.Store.Backends = []string{"tape"}

		err := service.New(cfg).Start(context.Background())
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "tape")
	})
}

func TestService_Process(t *testing.T) {
	Convey("Given a started service with the in-memory store", t, func() {
		ctx := context.Background()
		svc := service.New(testConfig())
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		policy, ok := svc.Lookup("Bob")
		So(ok, ShouldBeTrue)
		store, ok := svc.MemoryStore()
		So(ok, ShouldBeTrue)

		Convey("A valid token is accepted and stored", func() {
			jti := uuid.NewString()
			res := svc.Process(ctx, mintSET(jti), policy)
			So(res.Accepted, ShouldBeTrue)

			So(eventually(func() bool { return store.Count(ctx) == 1 }), ShouldBeTrue)
			recs := store.List(ctx, "Bob")
			So(recs, ShouldHaveLength, 1)
			So(recs[0].Token.JTI, ShouldEqual, jti)
		})

		Convey("A replayed token is accepted but stored once", func() {
			raw := mintSET(uuid.NewString())
			So(svc.Process(ctx, raw, policy).Accepted, ShouldBeTrue)
			So(svc.Process(ctx, raw, policy).Accepted, ShouldBeTrue)

			So(eventually(func() bool { return store.Count(ctx) == 1 }), ShouldBeTrue)
			time.Sleep(20 * time.Millisecond)
			So(store.Count(ctx), ShouldEqual, 1)
			So(svc.GetStats(ctx)["duplicateEntries"], ShouldEqual, 1)
		})

		Convey("A token signed with another key is rejected", func() {
			tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
				"iss": "x", "aud": "uruk", "iat": time.Now().Unix(), "jti": "1",
				"events": map[string]any{"test": map[string]any{}},
			})
			tok.Header["typ"] = "secevent+jwt"
			raw, _ := tok.SignedString([]byte(strings.Repeat("b", 64)))

			res := svc.Process(ctx, []byte(raw), policy)
			So(res.Accepted, ShouldBeFalse)
			So(res.Operational, ShouldBeFalse)
			So(res.Code, ShouldEqual, intake.CodeInvalidKey)
		})

		Convey("Stop drains what was accepted", func() {
			for i := 0; i < 20; i++ {
				So(svc.Process(ctx, mintSET(uuid.NewString()), policy).Accepted, ShouldBeTrue)
			}
			So(svc.Stop(ctx), ShouldBeNil)
			So(store.Count(ctx), ShouldEqual, 20)
			So(svc.GetStats(ctx)["started"], ShouldEqual, false)

			res := svc.Process(ctx, mintSET(uuid.NewString()), policy)
			So(res, ShouldResemble, intake.QueueUnavailable())
		})
	})

	Convey("Given duplicate detection is disabled", t, func() {
		ctx := context.Background()
		cfg := testConfig()
		cfg.Duplicate.Enabled = false
		svc := service.New(cfg)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		policy, _ := svc.Lookup("Bob")
		raw := mintSET(uuid.NewString())
		So(svc.Process(ctx, raw, policy).Accepted, ShouldBeTrue)
		So(svc.Process(ctx, raw, policy).Accepted, ShouldBeTrue)

		Convey("Both deliveries reach the workers and the store keeps one", func() {
			So(eventually(func() bool { return svc.GetStats(ctx)["stored"] == int64(2) }), ShouldBeTrue)
			store, _ := svc.MemoryStore()
			So(store.Count(ctx), ShouldEqual, 1)
		})
	})
}
