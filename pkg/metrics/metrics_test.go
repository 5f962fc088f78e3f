package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

// value reads the current value of a counter or gauge.
func value(c prometheus.Metric) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		panic(err)
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithPrometheusRegistry(registry),
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
			)

			Convey("Then its collectors are registered under the namespace", func() {
				So(m, ShouldNotBeNil)
				m.snapshotsIngested.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, f := range families {
					if f.GetName() == "test_unit_snapshots_ingested_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When const labels are set", func() {
			m := NewManager(WithPrometheusRegistry(registry), WithConstLabels(prometheus.Labels{"region": "au"}))
			m.snapshotsIngested.Inc()
			families, err := registry.Gather()
			So(err, ShouldBeNil)

			var labels []*dto.LabelPair
			for _, f := range families {
				if f.GetName() == "tipping_aggregator_snapshots_ingested_total" {
					labels = f.GetMetric()[0].GetLabel()
				}
			}
			So(len(labels), ShouldEqual, 1)
			So(labels[0].GetName(), ShouldEqual, "region")
			So(labels[0].GetValue(), ShouldEqual, "au")
		})

		Convey("When empty options are passed the defaults stay", func() {
			m := NewManager(WithPrometheusRegistry(registry), WithNamespace(""), WithHistogramBuckets(nil))
			So(m.namespace, ShouldEqual, "tipping")
			So(m.histogramBuckets, ShouldNotBeEmpty)
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording ingest metrics", func() {
			before := value(globalManager.snapshotsIngested)
			RecordSnapshotIngested()
			So(value(globalManager.snapshotsIngested), ShouldEqual, before+1)

			dup := value(globalManager.snapshotsDuplicate)
			RecordSnapshotDuplicate()
			So(value(globalManager.snapshotsDuplicate), ShouldEqual, dup+1)

			RecordSnapshotRejected("invalid")
			So(value(globalManager.snapshotsRejected.WithLabelValues("invalid")), ShouldBeGreaterThanOrEqualTo, 1)
		})

		Convey("When recording consensus outcomes", func() {
			empty := value(globalManager.consensusComputed.WithLabelValues("empty"))
			RecordConsensus(true, 1.5)
			So(value(globalManager.consensusComputed.WithLabelValues("empty")), ShouldEqual, empty+1)

			hits := value(globalManager.consensusCache.WithLabelValues("hit"))
			RecordConsensusCache(true)
			So(value(globalManager.consensusCache.WithLabelValues("hit")), ShouldEqual, hits+1)
		})

		Convey("When recording gauges", func() {
			UpdateQueueSize(7)
			UpdateQueueCapacity(100)
			UpdateWorkerCount(4)
			UpdateSnapshotsStored(12)
			UpdateWeightGroups(3)
			So(value(globalManager.queueSize), ShouldEqual, 7)
			So(value(globalManager.queueCapacity), ShouldEqual, 100)
			So(value(globalManager.workerCount), ShouldEqual, 4)
			So(value(globalManager.snapshotsStored), ShouldEqual, 12)
			So(value(globalManager.weightGroups), ShouldEqual, 3)
		})

		Convey("When recording labelled counters", func() {
			RecordPollDecision("final", true)
			So(value(globalManager.pollDecisions.WithLabelValues("final", "true")), ShouldBeGreaterThanOrEqualTo, 1)

			RecordPerformanceRecord(true)
			So(value(globalManager.performanceRecomputes.WithLabelValues("replace")), ShouldBeGreaterThanOrEqualTo, 1)

			RecordStreamMessage("odds.snapshots", "ok")
			So(value(globalManager.streamMessages.WithLabelValues("odds.snapshots", "ok")), ShouldBeGreaterThanOrEqualTo, 1)

			RecordHTTPRequest("/healthz", "GET", "200")
			RecordHTTPRequestDuration("/healthz", "GET", "200", 0.01)
			So(value(globalManager.httpRequests.WithLabelValues("/healthz", "GET", "200")), ShouldBeGreaterThanOrEqualTo, 1)

			RecordErrorByComponent("worker", "store")
			So(value(globalManager.errorsByComponent.WithLabelValues("worker", "store")), ShouldBeGreaterThanOrEqualTo, 1)
		})

		Convey("Then the registry is exposed", func() {
			So(GetRegistry(), ShouldEqual, customRegistry)
		})
	})
}
