package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		registry := prometheus.NewRegistry()
		manager := NewManager(
			WithNamespace("test"),
			WithSubsystem("cycle"),
			WithLatencyBuckets([]float64{1, 5}),
			WithConstLabels(map[string]string{"env": "test"}),
			WithRegistry(registry),
		)

		Convey("Then they shape the registered metric names", func() {
			manager.RecordCycle("success", time.Second)
			count, err := testutil.GatherAndCount(registry, "test_cycle_cycles_total")
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 1)
		})

		Convey("Then const labels reach the gateway latency histogram", func() {
			manager.RecordGatewayLatency(2 * time.Second)
			families, err := registry.Gather()
			So(err, ShouldBeNil)

			labels := map[string]string{}
			for _, mf := range families {
				if mf.GetName() != "test_cycle_gateway_latency_seconds" {
					continue
				}
				So(mf.GetMetric(), ShouldHaveLength, 1)
				for _, lp := range mf.GetMetric()[0].GetLabel() {
					labels[lp.GetName()] = lp.GetValue()
				}
			}
			So(labels, ShouldResemble, map[string]string{"env": "test"})
		})

		Convey("Then empty values keep the defaults", func() {
			m := NewManager(WithNamespace(""), WithSubsystem(""), WithLatencyBuckets(nil), WithRegistry(nil))
			So(m.namespace, ShouldEqual, "aura")
			So(m.subsystem, ShouldEqual, "refresh")
			So(m.Registry(), ShouldNotBeNil)
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given a manager on its own registry", t, func() {
		manager := NewManager()

		Convey("When a degraded cycle is recorded", func() {
			manager.RecordCycle("degraded", 3*time.Second)
			manager.RecordGatewayError("quota")
			manager.RecordGatewayLatency(2 * time.Second)

			Convey("Then the outcome and the gateway kind are counted", func() {
				So(testutil.ToFloat64(manager.cycles.WithLabelValues("degraded")), ShouldEqual, 1)
				So(testutil.ToFloat64(manager.gatewayErrors.WithLabelValues("quota")), ShouldEqual, 1)
				So(testutil.CollectAndCount(manager.gatewayLatency), ShouldEqual, 1)
			})
		})

		Convey("When data quality problems are recorded", func() {
			manager.RecordExtractionError("no_object")
			manager.AddCoercionWarnings(2)
			manager.AddCoercionWarnings(0)
			manager.RecordStoreError("persist")

			Convey("Then each counter moves", func() {
				So(testutil.ToFloat64(manager.extractionErrors.WithLabelValues("no_object")), ShouldEqual, 1)
				So(testutil.ToFloat64(manager.coercionWarnings), ShouldEqual, 2)
				So(testutil.ToFloat64(manager.storeErrors.WithLabelValues("persist")), ShouldEqual, 1)
			})
		})

		Convey("When the roster gauges are set", func() {
			at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
			manager.SetRoster(10, 4)
			manager.SetLastRefresh(at)

			Convey("Then they hold the last values", func() {
				So(testutil.ToFloat64(manager.entities), ShouldEqual, 10)
				So(testutil.ToFloat64(manager.entitiesChanged), ShouldEqual, 4)
				So(testutil.ToFloat64(manager.lastRefreshUnix), ShouldEqual, float64(at.Unix()))
			})
		})

		Convey("When metrics are disabled", func() {
			off := NewManager(WithMetricsEnabled(false))
			off.RecordCycle("success", time.Second)
			off.SetRoster(3, 3)

			Convey("Then nothing is recorded", func() {
				So(testutil.ToFloat64(off.entities), ShouldEqual, 0)
				So(testutil.CollectAndCount(off.cycles), ShouldEqual, 0)
			})
		})

		Convey("When the manager is nil", func() {
			var nilManager *Manager

			Convey("Then recording is a no-op", func() {
				So(func() {
					nilManager.RecordCycle("success", time.Second)
					nilManager.RecordStoreError("load")
				}, ShouldNotPanic)
			})
		})
	})

	Convey("Given the default manager", t, func() {
		before := testutil.ToFloat64(Default().storeErrors.WithLabelValues("lock"))
		RecordStoreError("lock")
		RecordGatewayError("auth")
		RecordCycle("skipped", time.Millisecond)

		Convey("Then package helpers record on the shared registry", func() {
			So(testutil.ToFloat64(Default().storeErrors.WithLabelValues("lock")), ShouldEqual, before+1)
			So(Default().Registry(), ShouldEqual, GetRegistry())
		})
	})
}

func TestWriteTextfile(t *testing.T) {
	Convey("Given recorded metrics", t, func() {
		manager := NewManager()
		manager.RecordCycle("success", time.Second)
		manager.SetRoster(2, 1)
		path := filepath.Join(t.TempDir(), "aura.prom")

		Convey("When writing the textfile", func() {
			err := manager.WriteTextfile(path)

			Convey("Then it holds the exposition text", func() {
				So(err, ShouldBeNil)
				raw, readErr := os.ReadFile(path)
				So(readErr, ShouldBeNil)
				So(string(raw), ShouldContainSubstring, `aura_refresh_cycles_total{outcome="success"} 1`)
				So(string(raw), ShouldContainSubstring, "aura_refresh_entities 2")
			})
		})

		Convey("When the directory does not exist", func() {
			err := manager.WriteTextfile(filepath.Join(t.TempDir(), "missing", "aura.prom"))

			Convey("Then an export error is returned", func() {
				So(errors.Is(err, ErrExport), ShouldBeTrue)
			})
		})
	})
}

func TestPush(t *testing.T) {
	Convey("Given a pushgateway", t, func() {
		var (
			mu     sync.Mutex
			method string
			path   string
			body   string
		)
		status := http.StatusOK
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			mu.Lock()
			method, path, body = r.Method, r.URL.Path, string(raw)
			code := status
			mu.Unlock()
			w.WriteHeader(code)
		}))
		defer srv.Close()

		manager := NewManager()
		manager.RecordCycle("success", time.Second)

		Convey("When pushing", func() {
			err := manager.Push(context.Background(), srv.URL, "aura_refresh")

			Convey("Then the job group is replaced", func() {
				So(err, ShouldBeNil)
				mu.Lock()
				defer mu.Unlock()
				So(method, ShouldEqual, http.MethodPut)
				So(path, ShouldEqual, "/metrics/job/aura_refresh/instance/aura")
				So(len(body), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When the gateway rejects the push", func() {
			mu.Lock()
			status = http.StatusInternalServerError
			mu.Unlock()
			err := manager.Push(context.Background(), srv.URL, "aura_refresh")

			Convey("Then an export error is returned", func() {
				So(errors.Is(err, ErrExport), ShouldBeTrue)
				So(strings.Contains(err.Error(), srv.URL), ShouldBeTrue)
			})
		})
	})
}
