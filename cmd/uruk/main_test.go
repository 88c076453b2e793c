package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	service "github.com/okian/uruk/internal/app"
	"github.com/okian/uruk/internal/config"
	"github.com/okian/uruk/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.InitWith(logger.FormatText, io.Discard)
	os.Exit(m.Run())
}

func clearEnv() {
	for _, k := range []string{"URUK_ADDR", "URUK_QUEUE_SIZE", "URUK_WORKER_COUNT", "URUK_AUTH__SECRET", "URUK_CONFIG"} {
		_ = os.Unsetenv(k)
	}
}

func TestMainConfiguration(t *testing.T) {
	convey.Convey("Given the receiver environment", t, func() {
		convey.Reset(clearEnv)
		_ = os.Setenv("URUK_ADDR", ":8080")
		_ = os.Setenv("URUK_QUEUE_SIZE", "1000")
		_ = os.Setenv("URUK_WORKER_COUNT", "2")

		convey.Convey("When the bearer secret is set", func() {
			_ = os.Setenv("URUK_AUTH__SECRET", "s3cret")

			convey.Convey("Then configuration should load", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When the bearer secret is missing", func() {
			convey.Convey("Then loading should fail", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestMainHTTPServer(t *testing.T) {
	convey.Convey("Given a started service", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		cfg := config.New(ctx)
		cfg.Auth.Secret = "s3cret"
		cfg.WorkerCount = 1
		cfg.QueueSize = 10

		svc := service.New(cfg)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(context.Background()) }()

		convey.Convey("When the HTTP server is built", func() {
			srv, err := newHTTPServer(ctx, cfg, svc)
			convey.So(err, convey.ShouldBeNil)
			convey.So(srv.Addr, convey.ShouldEqual, cfg.Addr)
			convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)

			convey.Convey("Then operational and docs routes should answer", func() {
				for _, path := range []string{"/healthz", "/stats", "/metrics", "/openapi.yaml"} {
					rec := httptest.NewRecorder()
					srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
					convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				}
			})

			convey.Convey("Then an unauthenticated push should be refused", func() {
				req := httptest.NewRequest(http.MethodPost, cfg.EventsPath, nil)
				req.Header.Set("Content-Type", "application/secevent+jwt")
				req.Header.Set("Accept", "application/json")
				rec := httptest.NewRecorder()
				srv.Handler.ServeHTTP(rec, req)
				convey.So(rec.Code, convey.ShouldEqual, http.StatusUnauthorized)
			})
		})

		convey.Convey("When metrics are refreshed", func() {
			convey.Convey("Then the updaters should not panic", func() {
				convey.So(updateSystemMetrics, convey.ShouldNotPanic)
				convey.So(func() { updateServiceMetrics(ctx, svc) }, convey.ShouldNotPanic)

				short, stop := context.WithTimeout(ctx, 50*time.Millisecond)
				defer stop()
				convey.So(func() { startSystemMetricsUpdater(short) }, convey.ShouldNotPanic)
				convey.So(func() { startServiceMetricsUpdater(short, svc) }, convey.ShouldNotPanic)
			})
		})
	})
}
